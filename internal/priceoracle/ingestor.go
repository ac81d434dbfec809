// Package priceoracle implements the on-chain price pipeline: ingestion,
// aggregation, volatility, and threshold-gated submission (spec §4.1-4.4).
package priceoracle

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/config"
	"github.com/bithedge/backend/internal/priceoracle/provider"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/pkg/syncutil"
)

// sourceWeight records the static weight config assigns a source
// (spec §4.1: major venues 1.5, mid-tier 1.3, others 1.0).
type sourceWeight struct {
	provider.Provider
	weight      float64
	minInterval time.Duration
}

// Ingestor polls every configured feed on a fixed interval and writes one
// PriceTick per successful response (spec §4.1).
type Ingestor struct {
	logger   zerolog.Logger
	closer   *syncutil.Closer
	db       *store.DB
	sources  []sourceWeight
	interval time.Duration
}

// NewIngestor builds an Ingestor from resolved provider clients and their
// per-feed config.
func NewIngestor(logger zerolog.Logger, db *store.DB, interval time.Duration, feeds []config.PriceFeed, providers map[string]provider.Provider) *Ingestor {
	var sources []sourceWeight
	for _, f := range feeds {
		p, ok := providers[f.Source]
		if !ok {
			continue
		}
		minInterval := time.Duration(f.MinIntervalSecs) * time.Second
		sources = append(sources, sourceWeight{Provider: p, weight: f.Weight, minInterval: minInterval})
	}
	return &Ingestor{
		logger:   logger.With().Str("module", "price_ingestor").Logger(),
		closer:   syncutil.NewCloser(),
		db:       db,
		sources:  sources,
		interval: interval,
	}
}

// Start runs the polling loop until ctx is cancelled, mirroring the
// teacher's Oracle.Start: blocking, tick, sleep, repeat.
func (in *Ingestor) Start(ctx context.Context) {
	defer in.closer.Finished()
	ticker := time.NewTicker(in.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-in.closer.Closed():
			return
		case <-ticker.C:
			in.tick(ctx)
		}
	}
}

func (in *Ingestor) Stop() {
	in.closer.Close()
	<-in.closer.Done()
}

func (in *Ingestor) tick(ctx context.Context) {
	now := time.Now()
	for _, src := range in.sources {
		source := string(src.Name())

		if last, found, err := in.db.LastTickTime(ctx, source); err == nil && found {
			if now.Sub(last) < src.minInterval {
				continue // respects per-source minimum polling interval
			}
		}

		price, err := src.FetchPrice(ctx)
		if err != nil {
			in.logger.Warn().Err(err).Str("source", source).Msg("price feed poll failed, will retry next tick")
			continue // no tick written for a failed source (spec §4.1)
		}

		tick := store.PriceTick{
			Source:        source,
			PriceUSDMicro: int64(price * 1_000_000),
			Weight:        src.weight,
			TimestampMs:   now.UnixMilli(),
		}
		if err := in.db.InsertTick(ctx, tick); err != nil {
			in.logger.Error().Err(err).Str("source", source).Msg("failed to persist price tick")
		}
	}
}
