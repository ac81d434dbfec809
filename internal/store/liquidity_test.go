package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/types"
)

func openLiquidityTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "liquidity_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestWithdrawSucceedsWithinAvailableBalance(t *testing.T) {
	db := openLiquidityTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 10_000, 100))
	require.NoError(t, db.Withdraw(ctx, "providerA", types.TierBalanced, types.TokenNative, 4_000))

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	require.Len(t, balances, 1)
	require.Equal(t, int64(6_000), balances[0].Deposited)
}

func TestWithdrawRejectsBelowLockedBalance(t *testing.T) {
	db := openLiquidityTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierBalanced, types.TokenNative, 10_000, 100))

	// Lock 8,000 of the 10,000 deposited, leaving only 2,000 available.
	require.NoError(t, db.WithTx(ctx, func(tx *sql.Tx) error {
		return db.LockTx(ctx, tx, "providerA", types.TierBalanced, types.TokenNative, 8_000)
	}))

	err := db.Withdraw(ctx, "providerA", types.TierBalanced, types.TokenNative, 5_000)
	require.Error(t, err, "withdrawing more than the 2,000 available must fail")

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	require.Equal(t, int64(10_000), balances[0].Deposited, "rejected withdraw must leave deposited untouched")
}

func TestBalancesForProviderAcrossTiers(t *testing.T) {
	db := openLiquidityTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierConservative, types.TokenNative, 1_000, 1))
	require.NoError(t, db.UpsertDeposit(ctx, "providerA", types.TierAggressive, types.TokenWrappedBTC, 2_000, 2))
	require.NoError(t, db.UpsertDeposit(ctx, "providerB", types.TierBalanced, types.TokenNative, 3_000, 3))

	balances, err := db.BalancesForProvider(ctx, "providerA")
	require.NoError(t, err)
	require.Len(t, balances, 2)
}
