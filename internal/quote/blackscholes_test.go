package quote

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalCDF(t *testing.T) {
	require.InDelta(t, 0.5, normalCDF(0), 1e-9)
	require.Greater(t, normalCDF(1), 0.5)
	require.Less(t, normalCDF(-1), 0.5)
}

func TestBlackScholesPutZeroVolIsDiscountedIntrinsic(t *testing.T) {
	spot, strike, r, tYears := 55000.0, 60000.0, 0.02, 0.25
	got := blackScholesPut(spot, strike, 0, tYears, r)
	want := math.Exp(-r*tYears) * (strike - spot)
	require.InDelta(t, want, got, 1e-6)
}

func TestBlackScholesPutOutOfMoneyZeroVolIsZero(t *testing.T) {
	got := blackScholesPut(65000, 60000, 0, 0.25, 0.02)
	require.Equal(t, 0.0, got)
}

func TestBlackScholesPutIncreasesWithVolatility(t *testing.T) {
	lowVol := blackScholesPut(60000, 57000, 0.3, 0.25, 0.02)
	highVol := blackScholesPut(60000, 57000, 0.9, 0.25, 0.02)
	require.Greater(t, highVol, lowVol, "higher volatility should command a higher premium")
}

func TestValidPricingInputs(t *testing.T) {
	require.True(t, validPricingInputs(60000, 57000, 0.5, 0.25, 1.0))
	require.False(t, validPricingInputs(0, 57000, 0.5, 0.25, 1.0))
	require.False(t, validPricingInputs(60000, 57000, 0, 0.25, 1.0))
	require.False(t, validPricingInputs(60000, 57000, 0.5, 0, 1.0))
	require.False(t, validPricingInputs(60000, 57000, 0.5, 0.25, 0))
}

func TestSafeOrZero(t *testing.T) {
	require.Equal(t, 0.0, safeOrZero(math.NaN()))
	require.Equal(t, 0.0, safeOrZero(math.Inf(1)))
	require.Equal(t, 42.0, safeOrZero(42.0))
}
