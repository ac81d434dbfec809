package allocator

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

func openAllocatorTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "allocator_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPlanSplitsProportionallyAndBpsSumTo10000(t *testing.T) {
	db := openAllocatorTestDB(t)
	ctx := context.Background()
	a := NewAllocator(zerolog.New(os.Stdout), db)

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 600_000, 100))
	require.NoError(t, db.UpsertDeposit(ctx, "providerB", types.TierBalanced, types.TokenNative, 300_000, 100))
	require.NoError(t, db.UpsertDeposit(ctx, "providerC", types.TierBalanced, types.TokenNative, 100_000, 100))

	plan, err := a.Plan(ctx, 500_000, types.TierBalanced, types.TokenNative)
	require.NoError(t, err)

	var totalLocked, totalBps int64
	for _, e := range plan.Entries {
		totalLocked += e.AmountLocked
		totalBps += e.PercentBps
	}
	require.Equal(t, int64(500_000), totalLocked)
	require.Equal(t, int64(10000), totalBps, "allocation percentages must sum to exactly 10000 bps")
}

func TestPlanInsufficientLiquidity(t *testing.T) {
	db := openAllocatorTestDB(t)
	ctx := context.Background()
	a := NewAllocator(zerolog.New(os.Stdout), db)

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 1000, 100))

	_, err := a.Plan(ctx, 5000, types.TierBalanced, types.TokenNative)
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindInsufficientLiq, kind)
}

func TestCommitLocksCapitalAndInsertsAllocations(t *testing.T) {
	db := openAllocatorTestDB(t)
	ctx := context.Background()
	a := NewAllocator(zerolog.New(os.Stdout), db)

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 500_000, 100))

	plan, err := a.Plan(ctx, 200_000, types.TierBalanced, types.TokenNative)
	require.NoError(t, err)

	allocations, err := a.Commit(ctx, "policy-1", plan)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	require.Equal(t, types.AllocationPending, allocations[0].Status)

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, int64(200_000), balances[0].Locked)
}

func TestApplySettlementDistributesLossProportionally(t *testing.T) {
	db := openAllocatorTestDB(t)
	ctx := context.Background()
	a := NewAllocator(zerolog.New(os.Stdout), db)

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 700_000, 100))
	require.NoError(t, db.UpsertDeposit(ctx, "providerB", types.TierBalanced, types.TokenNative, 300_000, 100))

	plan, err := a.Plan(ctx, 1_000_000, types.TierBalanced, types.TokenNative)
	require.NoError(t, err)
	_, err = a.Commit(ctx, "policy-2", plan)
	require.NoError(t, err)

	require.NoError(t, a.ApplySettlement(ctx, "policy-2", types.TokenNative, 400_000))

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	// providerA holds 70% of the pool, so it should absorb 70% of the loss.
	require.InDelta(t, 700_000-280_000, balances[0].Deposited, 1)
}

func TestReleaseUnlocksCapital(t *testing.T) {
	db := openAllocatorTestDB(t)
	ctx := context.Background()
	a := NewAllocator(zerolog.New(os.Stdout), db)

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 500_000, 100))
	plan, err := a.Plan(ctx, 200_000, types.TierBalanced, types.TokenNative)
	require.NoError(t, err)
	_, err = a.Commit(ctx, "policy-3", plan)
	require.NoError(t, err)

	require.NoError(t, a.Release(ctx, "policy-3", types.TokenNative))

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	require.Equal(t, int64(0), balances[0].Locked)
}

func TestBpsOfAndAmountOfBpsRoundTrip(t *testing.T) {
	bps := bpsOf(333, 1000)
	require.Equal(t, int64(3330), bps)
	require.Equal(t, int64(0), bpsOf(5, 0))

	amount := amountOfBps(1000, 3330)
	require.Equal(t, int64(333), amount)
}
