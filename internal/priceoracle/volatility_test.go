package priceoracle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/store"
)

func TestRecomputeAllPersistsEveryWindow(t *testing.T) {
	db := openTestDB(t)
	logger := zerolog.New(os.Stdout)
	v := NewVolatilityEngine(logger, db)

	ctx := context.Background()
	now := time.Now()
	price := 60000.0
	for i := 400; i >= 0; i-- {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		price *= 1 + 0.01*float64((i%5)-2)
		require.NoError(t, db.UpsertDailyPrice(ctx, store.HistoricalDailyPrice{
			Date:        date,
			CloseMicro:  floatToMicro(price),
			UpdatedAtMs: now.AddDate(0, 0, -i).UnixMilli(),
		}))
	}

	require.NoError(t, v.RecomputeAll(ctx))

	for _, days := range standardWindows {
		vol, found, err := db.LatestVolatility(ctx, days)
		require.NoError(t, err)
		require.True(t, found, "expected a persisted volatility row for period_days=%d", days)
		require.Greater(t, vol.Volatility, 0.0)
	}
}

func TestVolatilityForFallsBackToClosestWindow(t *testing.T) {
	db := openTestDB(t)
	logger := zerolog.New(os.Stdout)
	v := NewVolatilityEngine(logger, db)

	ctx := context.Background()
	require.NoError(t, db.InsertVolatility(ctx, store.HistoricalVolatility{
		PeriodDays: 90, TimestampMs: time.Now().UnixMilli(), Volatility: 0.55, DataPoints: 90, Method: "log_return_stddev_annualized",
	}))

	got, err := v.VolatilityFor(ctx, 60)
	require.NoError(t, err)
	require.Equal(t, 90, got.PeriodDays)
	require.Equal(t, 0.55, got.Volatility)
}

func TestVolatilityForNoWindowsComputed(t *testing.T) {
	db := openTestDB(t)
	logger := zerolog.New(os.Stdout)
	v := NewVolatilityEngine(logger, db)

	_, err := v.VolatilityFor(context.Background(), 30)
	require.Error(t, err)
}
