package priceoracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/bithedge/backend/internal/store"
)

// standardWindows are the periodDays the scheduled job keeps current
// (spec §4.3).
var standardWindows = []int{30, 60, 90, 180, 360}

const daysPerYear = 365.0

// VolatilityEngine computes annualized historical volatility from daily
// close log-returns, grounded on the price-feeder's stddev-over-a-window
// idiom but using gonum/stat for the actual standard deviation (spec §4.3).
type VolatilityEngine struct {
	logger zerolog.Logger
	db     *store.DB
}

func NewVolatilityEngine(logger zerolog.Logger, db *store.DB) *VolatilityEngine {
	return &VolatilityEngine{logger: logger.With().Str("module", "volatility_engine").Logger(), db: db}
}

// RecomputeAll runs calculateVolatilityForTimeframe for every standard
// window and persists the results, all stamped with the same timestamp
// (spec §4.3: "a single scheduled run computes all windows together").
func (v *VolatilityEngine) RecomputeAll(ctx context.Context) error {
	now := time.Now()
	for _, days := range standardWindows {
		vol, dataPoints, err := v.calculateVolatilityForTimeframe(ctx, days, now)
		if err != nil {
			v.logger.Warn().Err(err).Int("period_days", days).Msg("volatility computation skipped")
			continue
		}
		row := store.HistoricalVolatility{
			PeriodDays:  days,
			TimestampMs: now.UnixMilli(),
			Volatility:  vol,
			DataPoints:  dataPoints,
			Method:      "log_return_stddev_annualized",
		}
		if err := v.db.InsertVolatility(ctx, row); err != nil {
			return fmt.Errorf("volatility: persist period_days=%d: %w", days, err)
		}
	}
	return nil
}

// calculateVolatilityForTimeframe computes the annualized standard
// deviation of daily log-returns over the trailing `days` window,
// requiring at least 2 log-returns and preferring at least 0.8*days of
// them before trusting the result (spec §4.3).
func (v *VolatilityEngine) calculateVolatilityForTimeframe(ctx context.Context, days int, asOf time.Time) (float64, int, error) {
	from := asOf.AddDate(0, 0, -days).Format("2006-01-02")
	to := asOf.Format("2006-01-02")

	closes, err := v.db.DailyClosesBetween(ctx, from, to)
	if err != nil {
		return 0, 0, err
	}

	logReturns := make([]float64, 0, len(closes))
	for i := 1; i < len(closes); i++ {
		prev := microToFloat(closes[i-1].CloseMicro)
		cur := microToFloat(closes[i].CloseMicro)
		if prev <= 0 || cur <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(cur/prev))
	}

	if len(logReturns) < 2 {
		return 0, 0, fmt.Errorf("insufficient daily closes: need >=2 log-returns, have %d", len(logReturns))
	}
	minPreferred := int(0.8 * float64(days))
	if len(logReturns) < minPreferred {
		v.logger.Warn().Int("period_days", days).Int("log_returns", len(logReturns)).
			Msg("fewer log-returns than preferred for this window, computing anyway")
	}

	dailyStdDev := stat.StdDev(logReturns, nil)
	annualized := dailyStdDev * math.Sqrt(daysPerYear)
	return annualized, len(logReturns), nil
}

// VolatilityFor returns the stored volatility for periodDays, falling
// back to the closest available window if the exact one has no rows yet
// (spec §4.3).
func (v *VolatilityEngine) VolatilityFor(ctx context.Context, periodDays int) (store.HistoricalVolatility, error) {
	if vol, found, err := v.db.LatestVolatility(ctx, periodDays); err != nil {
		return store.HistoricalVolatility{}, err
	} else if found {
		return vol, nil
	}

	available, err := v.db.AllPeriodDays(ctx)
	if err != nil {
		return store.HistoricalVolatility{}, err
	}
	if len(available) == 0 {
		return store.HistoricalVolatility{}, fmt.Errorf("volatility: no windows computed yet")
	}

	closest := available[0]
	for _, d := range available[1:] {
		if abs(d-periodDays) < abs(closest-periodDays) {
			closest = d
		}
	}
	vol, found, err := v.db.LatestVolatility(ctx, closest)
	if err != nil {
		return store.HistoricalVolatility{}, err
	}
	if !found {
		return store.HistoricalVolatility{}, fmt.Errorf("volatility: closest window %d unexpectedly missing", closest)
	}
	return vol, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
