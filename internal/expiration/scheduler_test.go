package expiration

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestComputeSettlementAmountScenarioLiteral exercises the three policies
// from spec §8 scenario 5 directly: strike/spot in USD, amount in BTC.
func TestComputeSettlementAmountScenarioLiteral(t *testing.T) {
	toSats := func(usd float64) int64 { return int64(usd * 1e8) }

	cases := []struct {
		name       string
		strikeUSD  float64
		spotUSD    float64
		amountBTC  float64
		wantSettle int64
	}{
		{"policy1", 50000, 48000, 1, 2000},
		{"policy3", 52000, 40000, 0.5, 6000},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := computeSettlementAmount(toSats(c.strikeUSD), toSats(c.spotUSD), toSats(c.amountBTC))
			require.Equal(t, c.wantSettle, got)
		})
	}
}

func TestComputeSettlementAmountZeroWhenAtTheMoney(t *testing.T) {
	toSats := func(usd float64) int64 { return int64(usd * 1e8) }
	got := computeSettlementAmount(toSats(50000), toSats(50000), toSats(2))
	require.Equal(t, int64(0), got)
}
