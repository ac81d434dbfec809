package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

var _ Provider = (*CoinbaseProvider)(nil)

// CoinbaseProvider reads the spot BTC-USD price from Coinbase's public
// exchange rate endpoint.
type CoinbaseProvider struct {
	base
}

type coinbaseSpotResponse struct {
	Data struct {
		Amount string `json:"amount"`
	} `json:"data"`
}

func NewCoinbaseProvider(url, apiKey string, timeout time.Duration, logger zerolog.Logger) *CoinbaseProvider {
	return &CoinbaseProvider{base: newBase("coinbase", url, apiKey, timeout, logger)}
}

func (p *CoinbaseProvider) FetchPrice(ctx context.Context) (float64, error) {
	body, err := p.httpGet(ctx, "/v2/prices/BTC-USD/spot")
	if err != nil {
		return 0, err
	}

	var resp coinbaseSpotResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("coinbase: decode: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Data.Amount, 64)
	if err != nil {
		return 0, fmt.Errorf("coinbase: parse price: %w", err)
	}
	return price, nil
}
