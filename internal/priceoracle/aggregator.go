package priceoracle

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/store"
)

// Aggregator computes the outlier-filtered, weighted aggregate price
// (spec §4.2).
type Aggregator struct {
	logger zerolog.Logger
	db     *store.DB
}

func NewAggregator(logger zerolog.Logger, db *store.DB) *Aggregator {
	return &Aggregator{logger: logger.With().Str("module", "aggregator").Logger(), db: db}
}

// AggregateCurrentPrices implements aggregateCurrentPrices() → AggregatedPrice | null
// (spec §4.2). A nil result (ok=false) means aggregation could not
// produce a price this run; callers must not treat that as an error to
// surface, only as "nothing to submit this tick".
func (a *Aggregator) AggregateCurrentPrices(ctx context.Context) (store.AggregatedPrice, bool, error) {
	now := time.Now()

	ticks, err := a.db.TicksSince(ctx, now.Add(-15*time.Minute))
	if err != nil {
		return store.AggregatedPrice{}, false, err
	}

	// step 2: keep only the most recent tick per source
	latestBySource := map[string]store.PriceTick{}
	for _, t := range ticks {
		cur, ok := latestBySource[t.Source]
		if !ok || t.TimestampMs > cur.TimestampMs {
			latestBySource[t.Source] = t
		}
	}

	survivors := make([]store.PriceTick, 0, len(latestBySource))
	for _, t := range latestBySource {
		survivors = append(survivors, t)
	}

	// step 3: IQR outlier filter, only once >= 4 sources remain
	if len(survivors) >= 4 {
		survivors = filterIQROutliers(survivors)
	}

	if len(survivors) == 0 {
		a.logger.Warn().Msg("no surviving price ticks, skipping aggregation")
		return store.AggregatedPrice{}, false, nil
	}

	// step 4: weighted average
	var weightedSum, weightTotal float64
	for _, t := range survivors {
		price := microToFloat(t.PriceUSDMicro)
		weightedSum += price * t.Weight
		weightTotal += t.Weight
	}
	if weightTotal == 0 {
		a.logger.Warn().Msg("total weight is zero, skipping aggregation")
		return store.AggregatedPrice{}, false, nil
	}
	price := weightedSum / weightTotal

	// step 5: latest 30-day volatility snapshot
	volatility := 0.0
	if v, found, err := a.db.LatestVolatility(ctx, 30); err != nil {
		return store.AggregatedPrice{}, false, err
	} else if found {
		volatility = v.Volatility
	} else {
		a.logger.Warn().Msg("no historical volatility available yet, defaulting to 0")
	}

	// step 6: 24h range from daily price history
	var rangeLow, rangeHigh *int64
	dailies, err := a.db.DailyPricesLast24h(ctx, now.Add(-24*time.Hour).UnixMilli())
	if err != nil {
		return store.AggregatedPrice{}, false, err
	}
	if len(dailies) > 0 {
		lo, hi := dailies[0].CloseMicro, dailies[0].CloseMicro
		for _, d := range dailies {
			if d.CloseMicro < lo {
				lo = d.CloseMicro
			}
			if d.CloseMicro > hi {
				hi = d.CloseMicro
			}
		}
		rangeLow, rangeHigh = &lo, &hi
	}

	agg := store.AggregatedPrice{
		PriceUSDMicro:     floatToMicro(price),
		TimestampMs:       now.UnixMilli(),
		SourceCount:       len(survivors),
		Volatility:        volatility,
		Range24hLowMicro:  rangeLow,
		Range24hHighMicro: rangeHigh,
	}

	// step 7: persist
	if _, err := a.db.InsertAggregatedPrice(ctx, agg); err != nil {
		return store.AggregatedPrice{}, false, err
	}

	return agg, true, nil
}

// filterIQROutliers drops ticks outside [Q1 - 1.5*IQR, Q3 + 1.5*IQR]
// where Q1/Q3 are taken by index (floor(n/4), floor(3n/4)) after sorting
// by price (spec §4.2 step 3).
func filterIQROutliers(ticks []store.PriceTick) []store.PriceTick {
	sorted := append([]store.PriceTick(nil), ticks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PriceUSDMicro < sorted[j].PriceUSDMicro })

	n := len(sorted)
	q1 := microToFloat(sorted[n/4].PriceUSDMicro)
	q3 := microToFloat(sorted[(3*n)/4].PriceUSDMicro)
	iqr := q3 - q1
	lowerBound := q1 - 1.5*iqr
	upperBound := q3 + 1.5*iqr

	out := make([]store.PriceTick, 0, n)
	for _, t := range sorted {
		price := microToFloat(t.PriceUSDMicro)
		if price >= lowerBound && price <= upperBound {
			out = append(out, t)
		}
	}
	return out
}

func microToFloat(micro int64) float64 { return float64(micro) / 1_000_000 }

func floatToMicro(f float64) int64 { return int64(math.Round(f * 1_000_000)) }
