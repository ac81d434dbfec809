package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

var _ Provider = (*KrakenProvider)(nil)

// KrakenProvider reads the last trade price for the XBTUSD pair from
// Kraken's public ticker endpoint.
type KrakenProvider struct {
	base
}

type krakenTickerResponse struct {
	Error  []string `json:"error"`
	Result map[string]struct {
		LastTrade []string `json:"c"`
	} `json:"result"`
}

func NewKrakenProvider(url, apiKey string, timeout time.Duration, logger zerolog.Logger) *KrakenProvider {
	return &KrakenProvider{base: newBase("kraken", url, apiKey, timeout, logger)}
}

func (p *KrakenProvider) FetchPrice(ctx context.Context) (float64, error) {
	body, err := p.httpGet(ctx, "/0/public/Ticker?pair=XBTUSD")
	if err != nil {
		return 0, err
	}

	var resp krakenTickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("kraken: decode: %w", err)
	}
	if len(resp.Error) > 0 {
		return 0, fmt.Errorf("kraken: api error: %v", resp.Error)
	}

	for _, pair := range resp.Result {
		if len(pair.LastTrade) == 0 {
			continue
		}
		price, err := strconv.ParseFloat(pair.LastTrade[0], 64)
		if err != nil {
			return 0, fmt.Errorf("kraken: parse price: %w", err)
		}
		return price, nil
	}
	return 0, fmt.Errorf("kraken: no ticker in response")
}
