// Package quote implements the two pure pricing reads the backend
// exposes: buyer premium quotes (Black-Scholes PUT) and provider yield
// quotes (spec §4.5). Both are read-only — no state mutation, no
// persistence — so the package exists purely as pricing math grounded on
// the standard library's math.Erf, with inputs sourced from the
// Aggregator/VolatilityEngine/RiskParameters store layer.
package quote

import (
	"math"
)

const defaultRiskFreeRate = 0.02

// normalCDF is Φ(x) = 0.5*(1+erf(x/sqrt(2))) (spec §4.5).
func normalCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}

// blackScholesPut returns the per-unit Black-Scholes PUT premium for spot
// S, strike K, volatility sigma, time-to-expiry T (years) and risk-free
// rate r (spec §4.5). When sigma*sqrt(T) is zero it returns the
// discounted intrinsic value instead of dividing by zero.
func blackScholesPut(spot, strike, sigma, t, r float64) float64 {
	sigmaSqrtT := sigma * math.Sqrt(t)
	if sigmaSqrtT == 0 {
		return math.Exp(-r*t) * math.Max(0, strike-spot)
	}

	d1 := (math.Log(spot/strike) + (r+sigma*sigma/2)*t) / sigmaSqrtT
	d2 := d1 - sigmaSqrtT
	return strike*math.Exp(-r*t)*normalCDF(-d2) - spot*normalCDF(-d1)
}

// validPricingInputs rejects non-positive spot, strike, sigma, T, or
// amount (spec §4.5 numeric guardrails).
func validPricingInputs(spot, strike, sigma, t, amount float64) bool {
	return spot > 0 && strike > 0 && sigma > 0 && t > 0 && amount > 0
}

func safeOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
