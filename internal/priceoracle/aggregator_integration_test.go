package priceoracle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bithedge_test.db")
	db, err := store.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestAggregateCurrentPricesWeightedAverage(t *testing.T) {
	db := openTestDB(t)
	logger := zerolog.New(os.Stdout)
	agg := NewAggregator(logger, db)

	now := time.Now()
	ctx := context.Background()
	require.NoError(t, db.InsertTick(ctx, store.PriceTick{Source: "kraken", PriceUSDMicro: floatToMicro(60000), Weight: 1.5, TimestampMs: now.UnixMilli()}))
	require.NoError(t, db.InsertTick(ctx, store.PriceTick{Source: "coinbase", PriceUSDMicro: floatToMicro(60200), Weight: 1.3, TimestampMs: now.UnixMilli()}))
	require.NoError(t, db.InsertTick(ctx, store.PriceTick{Source: "binance", PriceUSDMicro: floatToMicro(59900), Weight: 1.0, TimestampMs: now.UnixMilli()}))

	result, ok, err := agg.AggregateCurrentPrices(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 3, result.SourceCount)

	wantPrice := (60000*1.5 + 60200*1.3 + 59900*1.0) / (1.5 + 1.3 + 1.0)
	require.InDelta(t, wantPrice, microToFloat(result.PriceUSDMicro), 0.01)
}

func TestAggregateCurrentPricesNoTicks(t *testing.T) {
	db := openTestDB(t)
	logger := zerolog.New(os.Stdout)
	agg := NewAggregator(logger, db)

	_, ok, err := agg.AggregateCurrentPrices(context.Background())
	require.NoError(t, err)
	require.False(t, ok, "aggregation with no ticks should report ok=false, not an error")
}
