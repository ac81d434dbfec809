package quote

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/config"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
)

type fakeVolatilitySource struct {
	vol float64
}

func (f fakeVolatilitySource) VolatilityFor(ctx context.Context, periodDays int) (store.HistoricalVolatility, error) {
	return store.HistoricalVolatility{PeriodDays: periodDays, Volatility: f.vol, Method: "fake"}, nil
}

func openQuoteTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "quote_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGetBuyerPremiumQuoteMatchesScenarioInputs(t *testing.T) {
	db := openQuoteTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertRiskParameters(ctx, store.RiskParameters{
		Asset: "BTC", PolicyType: types.PolicyTypePut,
		BaseRate: 0, VolMult: 1, DurFactor: 0, CoverageFactor: 1,
		TierMultConservative: 0.7, TierMultBalanced: 1.0, TierMultAggressive: 1.3,
	}))

	engine := NewEngine(zerolog.New(os.Stdout), db, fakeVolatilitySource{vol: 0.6}, config.QuoteConfig{RiskFreeRate: 0.02})

	spot := 60000.0
	quote, err := engine.GetBuyerPremiumQuote(ctx, BuyerPremiumInputs{
		ProtectedValuePct:    90,
		ProtectionAmountBTC:  1.0,
		ExpirationDays:       30,
		PolicyType:           types.PolicyTypePut,
		CurrentPriceOverride: &spot,
		IncludeScenarios:     true,
	})
	require.NoError(t, err)

	require.InDelta(t, 54000, quote.Strike, 1e-9)
	require.Greater(t, quote.Premium, 0.0)
	require.Len(t, quote.Scenarios, 21)
	require.InDelta(t, spot, quote.Scenarios[10].SpotPrice, 1e-6, "midpoint scenario should be the current spot")
}

func TestGetBuyerPremiumQuoteScalesWithCoverageFactor(t *testing.T) {
	db := openQuoteTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.UpsertRiskParameters(ctx, store.RiskParameters{
		Asset: "BTC", PolicyType: types.PolicyTypePut,
		BaseRate: 0, VolMult: 1, DurFactor: 0, CoverageFactor: 0.5,
		TierMultConservative: 0.7, TierMultBalanced: 1.0, TierMultAggressive: 1.3,
	}))

	engine := NewEngine(zerolog.New(os.Stdout), db, fakeVolatilitySource{vol: 0.6}, config.QuoteConfig{RiskFreeRate: 0.02})

	spot := 60000.0
	inputs := BuyerPremiumInputs{
		ProtectedValuePct:    90,
		ProtectionAmountBTC:  1.0,
		ExpirationDays:       30,
		PolicyType:           types.PolicyTypePut,
		CurrentPriceOverride: &spot,
	}
	halfCoverage, err := engine.GetBuyerPremiumQuote(ctx, inputs)
	require.NoError(t, err)

	require.NoError(t, db.UpsertRiskParameters(ctx, store.RiskParameters{
		Asset: "BTC", PolicyType: types.PolicyTypePut,
		BaseRate: 0, VolMult: 1, DurFactor: 0, CoverageFactor: 1.0,
		TierMultConservative: 0.7, TierMultBalanced: 1.0, TierMultAggressive: 1.3,
	}))
	fullCoverage, err := engine.GetBuyerPremiumQuote(ctx, inputs)
	require.NoError(t, err)

	require.Greater(t, fullCoverage.Premium, 0.0)
	require.InDelta(t, fullCoverage.Premium*0.5, halfCoverage.Premium, 1e-9, "premium must scale linearly with CoverageFactor")
}

func TestGetBuyerPremiumQuoteNoSpotAvailable(t *testing.T) {
	db := openQuoteTestDB(t)
	engine := NewEngine(zerolog.New(os.Stdout), db, fakeVolatilitySource{vol: 0.5}, config.QuoteConfig{})

	_, err := engine.GetBuyerPremiumQuote(context.Background(), BuyerPremiumInputs{
		ProtectedValuePct:   90,
		ProtectionAmountBTC: 1.0,
		ExpirationDays:      30,
		PolicyType:          types.PolicyTypePut,
	})
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindNoPriceData, kind)
}

func TestGetProviderYieldQuoteScalesWithTier(t *testing.T) {
	db := openQuoteTestDB(t)
	ctx := context.Background()
	_, err := db.InsertAggregatedPrice(ctx, store.AggregatedPrice{PriceUSDMicro: 60_000_000_000, TimestampMs: time.Now().UnixMilli(), SourceCount: 3})
	require.NoError(t, err)

	engine := NewEngine(zerolog.New(os.Stdout), db, fakeVolatilitySource{vol: 0.5}, config.QuoteConfig{})

	conservative, err := engine.GetProviderYieldQuote(ctx, ProviderYieldInputs{CommitmentUSD: 10000, Tier: types.TierConservative, PeriodDays: 90})
	require.NoError(t, err)
	aggressive, err := engine.GetProviderYieldQuote(ctx, ProviderYieldInputs{CommitmentUSD: 10000, Tier: types.TierAggressive, PeriodDays: 90})
	require.NoError(t, err)

	require.Greater(t, aggressive.AnnualizedYieldRate, conservative.AnnualizedYieldRate)
	require.GreaterOrEqual(t, aggressive.RiskLevel, conservative.RiskLevel)
}

func TestRiskLevelClampedToRange(t *testing.T) {
	require.GreaterOrEqual(t, riskLevel(types.TierAggressive, 30, 0.9), 1)
	require.LessOrEqual(t, riskLevel(types.TierAggressive, 30, 0.9), 10)
	require.Equal(t, 1, riskLevel(types.TierConservative, 365, 0.05))
}
