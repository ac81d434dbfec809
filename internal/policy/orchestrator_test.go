package policy

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSettlementRequirementConvertsToBTCSats(t *testing.T) {
	// strike=54000, amount=1 BTC, spot=60000 -> worst-case $54,000 of
	// exposure, converted at the current BTC/USD rate into sats.
	got := settlementRequirement(54000, 1, 60000)
	want := int64(54000.0 / 60000.0 * 1e8)
	require.Equal(t, want, got)
}

func TestSettlementRequirementScalesWithAmount(t *testing.T) {
	one := settlementRequirement(50000, 1, 50000)
	two := settlementRequirement(50000, 2, 50000)
	require.Equal(t, one*2, two)
}

func TestSettlementRequirementZeroSpotFallsBackToRawNotional(t *testing.T) {
	got := settlementRequirement(50000, 1, 0)
	require.Equal(t, int64(50000*1e8), got)
}
