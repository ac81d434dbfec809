package premium

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
)

func openPremiumTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "premium_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPlanSplitsPremiumByAllocationBpsWithRemainderToLargest(t *testing.T) {
	db := openPremiumTestDB(t)
	d := NewDistributor(zerolog.New(os.Stdout), db, nil, "ST000.liquidity-pool")

	policy := store.Policy{ID: "policy-1", PremiumMicro: 1_000_000}
	allocations := []store.Allocation{
		{ID: "alloc-a", Provider: "providerA", PercentBps: 7000},
		{ID: "alloc-b", Provider: "providerB", PercentBps: 2000},
		{ID: "alloc-c", Provider: "providerC", PercentBps: 1000},
	}

	distributions, err := d.Plan(context.Background(), policy, allocations)
	require.NoError(t, err)
	require.Len(t, distributions, 3)

	var total int64
	for _, dist := range distributions {
		total += dist.PremiumShare
		require.Equal(t, types.PremiumDistPlanned, dist.Status)
	}
	require.Equal(t, policy.PremiumMicro, total, "distributed shares must sum exactly to the policy premium")
}

func TestConfirmPaidCreditsProviderPremiumEarned(t *testing.T) {
	db := openPremiumTestDB(t)
	ctx := context.Background()
	d := NewDistributor(zerolog.New(os.Stdout), db, nil, "ST000.liquidity-pool")

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 100_000, 5))

	dist := store.PremiumDistribution{ID: "dist-1", PolicyID: "policy-1", Provider: "providerA", PremiumShare: 5_000}
	require.NoError(t, d.ConfirmPaid(ctx, dist, types.TierBalanced, types.TokenNative))

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, int64(5_000), balances[0].PremiumEarned)
}

func TestContractNameOf(t *testing.T) {
	require.Equal(t, "liquidity-pool", contractNameOf("ST000ABC.liquidity-pool"))
	require.Equal(t, "no-dot", contractNameOf("no-dot"))
}

func TestAmountOfBps(t *testing.T) {
	require.Equal(t, int64(250), amountOfBps(1000, 2500))
}
