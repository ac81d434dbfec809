// Package provider implements the external price-feed clients polled by
// PriceIngestor (spec §4.1). Shape follows a price-feeder's provider
// package: a small embeddable base struct holding a per-provider request
// mutex, with each concrete source implementing its own request and
// response parsing. The base does no rate limiting; the per-source
// minimum polling interval is enforced by the PriceIngestor.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Name identifies a configured price source.
type Name string

// Provider is implemented by every external price feed client.
type Provider interface {
	Name() Name
	// FetchPrice performs one poll and returns the latest USD price for
	// BTC. Implementations must respect ctx's deadline (spec §5: every
	// outbound HTTP call carries a per-call timeout).
	FetchPrice(ctx context.Context) (float64, error)
}

// base holds everything common to HTTP-polled providers, mirroring a
// price-feeder `provider` struct (mtx, endpoints, logger, httpGet).
type base struct {
	mtx        sync.Mutex
	name       Name
	url        string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func newBase(name Name, url, apiKey string, timeout time.Duration, logger zerolog.Logger) base {
	return base{
		name:       name,
		url:        url,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("provider", string(name)).Logger(),
	}
}

func (b *base) Name() Name { return b.name }

// httpGet performs a GET against the provider's configured URL, returning
// the raw body. One request in flight per provider at a time (mirrors a
// per-provider mutex around polling).
func (b *base) httpGet(ctx context.Context, path string) ([]byte, error) {
	b.mtx.Lock()
	defer b.mtx.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", b.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", b.name, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%s: http %d: %s", b.name, resp.StatusCode, string(body))
	}
	return body, nil
}
