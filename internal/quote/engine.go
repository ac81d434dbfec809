package quote

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/config"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
)

// VolatilitySource resolves the annualized volatility to use for a given
// expiration window. Satisfied by *priceoracle.VolatilityEngine — no
// direct import of priceoracle is needed, keeping the pricing math
// decoupled from the ingestion pipeline that feeds it.
type VolatilitySource interface {
	VolatilityFor(ctx context.Context, periodDays int) (store.HistoricalVolatility, error)
}

// Engine implements QuoteEngine's two pure reads (spec §4.5).
type Engine struct {
	logger     zerolog.Logger
	db         *store.DB
	volatility VolatilitySource
	cfg        config.QuoteConfig
}

func NewEngine(logger zerolog.Logger, db *store.DB, volatility VolatilitySource, cfg config.QuoteConfig) *Engine {
	return &Engine{logger: logger.With().Str("module", "quote_engine").Logger(), db: db, volatility: volatility, cfg: cfg}
}

// BuyerPremiumInputs is getBuyerPremiumQuote's input (spec §4.5).
type BuyerPremiumInputs struct {
	ProtectedValuePct     float64
	ProtectionAmountBTC   float64
	ExpirationDays        int
	PolicyType            types.PolicyType
	CurrentPriceOverride  *float64
	IncludeScenarios      bool
}

// ScenarioPoint is one row of the optional scenario table (spec §4.5).
type ScenarioPoint struct {
	SpotPrice       float64
	ProtectionValue float64
	NetValue        float64
}

// BuyerPremiumQuote is getBuyerPremiumQuote's output.
type BuyerPremiumQuote struct {
	Premium           float64
	IntrinsicValue    float64
	TimeValue         float64
	VolatilityImpact  float64
	BreakEvenPrice    float64
	PremiumPct        float64
	AnnualizedPct     float64
	Strike            float64
	Spot              float64
	Volatility        float64
	Scenarios         []ScenarioPoint
}

// GetBuyerPremiumQuote implements spec §4.5's getBuyerPremiumQuote.
func (e *Engine) GetBuyerPremiumQuote(ctx context.Context, in BuyerPremiumInputs) (BuyerPremiumQuote, error) {
	spot, err := e.resolveSpot(ctx, in.CurrentPriceOverride)
	if err != nil {
		return BuyerPremiumQuote{}, err
	}

	vol, err := e.volatility.VolatilityFor(ctx, in.ExpirationDays)
	if err != nil {
		return BuyerPremiumQuote{}, fmt.Errorf("quote: volatility lookup: %w", err)
	}
	sigma := vol.Volatility

	riskParams, found, err := e.db.GetRiskParameters(ctx, "BTC", in.PolicyType)
	if err != nil {
		return BuyerPremiumQuote{}, fmt.Errorf("quote: risk parameters: %w", err)
	}
	if !found {
		riskParams = defaultRiskParameters()
		if e.cfg.CoverageFactor > 0 {
			riskParams.CoverageFactor = e.cfg.CoverageFactor
		}
	}

	strike := spot * in.ProtectedValuePct / 100
	t := float64(in.ExpirationDays) / 365
	r := e.cfg.RiskFreeRate
	if r == 0 {
		r = defaultRiskFreeRate
	}

	if !validPricingInputs(spot, strike, sigma, t, in.ProtectionAmountBTC) {
		return BuyerPremiumQuote{Strike: strike, Spot: spot, Volatility: sigma}, nil
	}

	perUnit := blackScholesPut(spot, strike, sigma, t, r)
	adjusted := perUnit * (1 + riskParams.BaseRate) * riskParams.VolMult * (1 + t*riskParams.DurFactor) * riskParams.CoverageFactor
	premium := safeOrZero(adjusted * in.ProtectionAmountBTC)

	intrinsic := math.Max(0, strike-spot) * in.ProtectionAmountBTC
	remainder := premium - intrinsic
	timeValue := remainder * 0.30
	volImpact := remainder * 0.70

	breakEven := strike - premium/in.ProtectionAmountBTC
	premiumPct := 0.0
	if strike*in.ProtectionAmountBTC > 0 {
		premiumPct = premium / (strike * in.ProtectionAmountBTC)
	}
	annualizedPct := premiumPct * 365 / float64(in.ExpirationDays)

	out := BuyerPremiumQuote{
		Premium:          premium,
		IntrinsicValue:   intrinsic,
		TimeValue:        timeValue,
		VolatilityImpact: volImpact,
		BreakEvenPrice:   breakEven,
		PremiumPct:       premiumPct,
		AnnualizedPct:    annualizedPct,
		Strike:           strike,
		Spot:             spot,
		Volatility:       sigma,
	}

	if in.IncludeScenarios {
		out.Scenarios = buildScenarios(spot, strike, premium, in.ProtectionAmountBTC)
	}
	return out, nil
}

func buildScenarios(spot, strike, premium, amount float64) []ScenarioPoint {
	scenarios := make([]ScenarioPoint, 0, 21)
	for i := -10; i <= 10; i++ {
		s := spot * (1 + float64(i)/20)
		protectionValue := math.Max(0, strike-s) * amount
		scenarios = append(scenarios, ScenarioPoint{
			SpotPrice:       s,
			ProtectionValue: protectionValue,
			NetValue:        protectionValue - premium,
		})
	}
	return scenarios
}

func (e *Engine) resolveSpot(ctx context.Context, override *float64) (float64, error) {
	if override != nil {
		return *override, nil
	}
	latest, found, err := e.db.LatestAggregatedPrice(ctx)
	if err != nil {
		return 0, fmt.Errorf("quote: spot price lookup: %w", err)
	}
	if !found {
		return 0, types.New(types.KindNoPriceData, "no aggregated price available")
	}
	return float64(latest.PriceUSDMicro) / 1_000_000, nil
}

func defaultRiskParameters() store.RiskParameters {
	return store.RiskParameters{
		Asset:                "BTC",
		PolicyType:           types.PolicyTypePut,
		BaseRate:             0,
		VolMult:              1,
		DurFactor:            0,
		CoverageFactor:       1.0,
		TierMultConservative: 0.7,
		TierMultBalanced:     1.0,
		TierMultAggressive:   1.3,
	}
}

// ProviderYieldInputs is getProviderYieldQuote's input (spec §4.5).
type ProviderYieldInputs struct {
	CommitmentUSD float64
	Tier          types.Tier
	PeriodDays    int
}

// ProviderYieldQuote is getProviderYieldQuote's output.
type ProviderYieldQuote struct {
	AnnualizedYieldRate float64
	EstimatedYield      float64
	BreakEvenBTCPrice   float64
	RiskLevel           int
}

// GetProviderYieldQuote implements spec §4.5's getProviderYieldQuote.
func (e *Engine) GetProviderYieldQuote(ctx context.Context, in ProviderYieldInputs) (ProviderYieldQuote, error) {
	vol, err := e.volatility.VolatilityFor(ctx, in.PeriodDays)
	if err != nil {
		return ProviderYieldQuote{}, fmt.Errorf("quote: volatility lookup: %w", err)
	}
	sigma := vol.Volatility

	riskParams, found, err := e.db.GetRiskParameters(ctx, "BTC", types.PolicyTypePut)
	if err != nil {
		return ProviderYieldQuote{}, fmt.Errorf("quote: risk parameters: %w", err)
	}
	if !found {
		riskParams = defaultRiskParameters()
	}
	tierMult := riskParams.TierMultiplier(in.Tier)

	baseAnnualRate := sigma * 0.8
	durationFactor := 1 - math.Exp(-float64(in.PeriodDays)/90)
	marketFactor := 1 + (sigma-0.2)*0.5

	annualizedYieldRate := baseAnnualRate * tierMult * durationFactor * marketFactor
	estimatedYield := annualizedYieldRate * float64(in.PeriodDays) / 365 * in.CommitmentUSD

	spot, _, err := e.db.LatestAggregatedPrice(ctx)
	if err != nil {
		return ProviderYieldQuote{}, fmt.Errorf("quote: spot lookup: %w", err)
	}
	spotUSD := float64(spot.PriceUSDMicro) / 1_000_000
	breakEven := math.Max(0, spotUSD*(1-estimatedYield/in.CommitmentUSD))

	return ProviderYieldQuote{
		AnnualizedYieldRate: annualizedYieldRate,
		EstimatedYield:      estimatedYield,
		BreakEvenBTCPrice:   breakEven,
		RiskLevel:           riskLevel(in.Tier, in.PeriodDays, sigma),
	}, nil
}

// riskLevel derives an integer 1-10 from tier base (1/3/5), a duration
// bucket, and a volatility bucket (spec §4.5).
func riskLevel(tier types.Tier, periodDays int, sigma float64) int {
	base := 3
	switch tier {
	case types.TierConservative:
		base = 1
	case types.TierAggressive:
		base = 5
	}

	durationBucket := 0
	switch {
	case periodDays >= 180:
		durationBucket = 0
	case periodDays >= 60:
		durationBucket = 1
	default:
		durationBucket = 2
	}

	volBucket := 0
	switch {
	case sigma >= 0.8:
		volBucket = 3
	case sigma >= 0.5:
		volBucket = 2
	case sigma >= 0.2:
		volBucket = 1
	}

	level := base + durationBucket + volBucket
	if level < 1 {
		return 1
	}
	if level > 10 {
		return 10
	}
	return level
}
