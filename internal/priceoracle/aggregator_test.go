package priceoracle

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/store"
)

func tickAt(source string, priceUSD float64, weight float64, tsMs int64) store.PriceTick {
	return store.PriceTick{Source: source, PriceUSDMicro: floatToMicro(priceUSD), Weight: weight, TimestampMs: tsMs}
}

func TestFilterIQROutliersDropsOutlier(t *testing.T) {
	ticks := []store.PriceTick{
		tickAt("a", 60000, 1.0, 1),
		tickAt("b", 60100, 1.0, 2),
		tickAt("c", 59950, 1.0, 3),
		tickAt("d", 60050, 1.0, 4),
		tickAt("e", 250000, 1.0, 5), // wildly off, should be dropped once >=4 sources
	}
	survivors := filterIQROutliers(ticks)
	for _, s := range survivors {
		require.NotEqual(t, "e", s.Source, "outlier source should have been filtered")
	}
	require.Len(t, survivors, 4)
}

func TestFilterIQROutliersKeepsTightCluster(t *testing.T) {
	ticks := []store.PriceTick{
		tickAt("a", 60000, 1.0, 1),
		tickAt("b", 60010, 1.0, 2),
		tickAt("c", 59995, 1.0, 3),
		tickAt("d", 60005, 1.0, 4),
	}
	survivors := filterIQROutliers(ticks)
	require.Len(t, survivors, 4)
}

func TestMicroFloatRoundTrip(t *testing.T) {
	require.Equal(t, int64(60_123_456), floatToMicro(60123.456))
	require.InDelta(t, 60123.456, microToFloat(60_123_456), 1e-9)
}
