package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

var _ Provider = (*BinanceProvider)(nil)

// BinanceProvider reads the last traded BTCUSDT price from Binance's
// ticker endpoint.
type BinanceProvider struct {
	base
}

type binanceTickerResponse struct {
	Price string `json:"price"`
}

func NewBinanceProvider(url, apiKey string, timeout time.Duration, logger zerolog.Logger) *BinanceProvider {
	return &BinanceProvider{base: newBase("binance", url, apiKey, timeout, logger)}
}

func (p *BinanceProvider) FetchPrice(ctx context.Context) (float64, error) {
	body, err := p.httpGet(ctx, "/api/v3/ticker/price?symbol=BTCUSDT")
	if err != nil {
		return 0, err
	}

	var resp binanceTickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("binance: decode: %w", err)
	}

	price, err := strconv.ParseFloat(resp.Price, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse price: %w", err)
	}
	return price, nil
}
