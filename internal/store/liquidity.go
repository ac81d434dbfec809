package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bithedge/backend/internal/types"
)

// ProviderTierBalance is keyed by (provider, tier, token). Invariant:
// 0 <= locked <= deposited (spec §3, §8 invariant 1).
type ProviderTierBalance struct {
	Provider          string
	Tier              types.Tier
	Token             types.Token
	Deposited         int64
	Locked            int64
	PremiumEarned     int64
	LastDepositHeight int64
	DepositCount      int64
}

// Available returns the uncommitted balance eligible for new allocations
// (spec §4.7 step 1).
func (b ProviderTierBalance) Available() int64 { return b.Deposited - b.Locked }

// EligibleBalances returns providers with at least 1 unit available for
// the given (tier, token), ordered by available descending (spec §4.7
// steps 1-2). querier lets callers pass either *DB's conn or a *sql.Tx.
func (db *DB) EligibleBalances(ctx context.Context, tier types.Tier, token types.Token) ([]ProviderTierBalance, error) {
	return queryBalances(ctx, db.conn, tier, token)
}

// EligibleBalancesTx is the same query scoped to an in-flight transaction.
// Allocator.Commit does not call it; it locks balances through LockTx.
func (db *DB) EligibleBalancesTx(ctx context.Context, tx *sql.Tx, tier types.Tier, token types.Token) ([]ProviderTierBalance, error) {
	return queryBalances(ctx, tx, tier, token)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func queryBalances(ctx context.Context, q querier, tier types.Tier, token types.Token) ([]ProviderTierBalance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT provider, tier, token, deposited, locked, premium_earned, last_deposit_height, deposit_count
		 FROM provider_tier_balances
		 WHERE tier = ? AND token = ? AND (deposited - locked) >= 1
		 ORDER BY (deposited - locked) DESC`,
		tier, token,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderTierBalance
	for rows.Next() {
		var b ProviderTierBalance
		if err := rows.Scan(&b.Provider, &b.Tier, &b.Token, &b.Deposited, &b.Locked, &b.PremiumEarned, &b.LastDepositHeight, &b.DepositCount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// LockTx increments `locked` for one provider's tier balance inside tx,
// failing if the result would violate locked <= deposited (concurrent
// change race, spec §4.7 commit). A missing row returns the same
// "lock would exceed deposited balance" error.
func (db *DB) LockTx(ctx context.Context, tx *sql.Tx, provider string, tier types.Tier, token types.Token, amount int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE provider_tier_balances SET locked = locked + ?
		 WHERE provider = ? AND tier = ? AND token = ? AND locked + ? <= deposited`,
		amount, provider, tier, token, amount,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("lock would exceed deposited balance (concurrent change)")
	}
	return nil
}

// UnlockTx decrements `locked` for one provider's tier balance inside tx
// (release or settlement impact paths).
func (db *DB) UnlockTx(ctx context.Context, tx *sql.Tx, provider string, tier types.Tier, token types.Token, amount int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE provider_tier_balances SET locked = locked - ? WHERE provider = ? AND tier = ? AND token = ?`,
		amount, provider, tier, token,
	)
	return err
}

// ApplyLossTx decrements both deposited and locked by amount, for
// Allocator.applySettlement (spec §4.7).
func (db *DB) ApplyLossTx(ctx context.Context, tx *sql.Tx, provider string, tier types.Tier, token types.Token, amount int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE provider_tier_balances SET deposited = deposited - ?, locked = locked - ? WHERE provider = ? AND tier = ? AND token = ?`,
		amount, amount, provider, tier, token,
	)
	return err
}

// CreditPremiumTx increments premiumEarned for a provider's tier balance.
func (db *DB) CreditPremiumTx(ctx context.Context, tx *sql.Tx, provider string, tier types.Tier, token types.Token, amount int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE provider_tier_balances SET premium_earned = premium_earned + ? WHERE provider = ? AND tier = ? AND token = ?`,
		amount, provider, tier, token,
	)
	return err
}

// UpsertDeposit increases a provider's deposited balance, creating the
// row if absent (LiquidityPool.deposit-{stx,sbtc} handler, spec §6).
func (db *DB) UpsertDeposit(ctx context.Context, provider string, tier types.Tier, token types.Token, amount, height int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO provider_tier_balances (provider, tier, token, deposited, locked, premium_earned, last_deposit_height, deposit_count)
		 VALUES (?, ?, ?, ?, 0, 0, ?, 1)
		 ON CONFLICT(provider, tier, token) DO UPDATE SET
			deposited = deposited + excluded.deposited,
			last_deposit_height = excluded.last_deposit_height,
			deposit_count = deposit_count + 1`,
		provider, tier, token, amount, height,
	)
	return err
}

// BalancesForProvider returns every (tier, token) balance row owned by
// one provider address, for listProviderBalances (spec §6).
func (db *DB) BalancesForProvider(ctx context.Context, provider string) ([]ProviderTierBalance, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT provider, tier, token, deposited, locked, premium_earned, last_deposit_height, deposit_count
		 FROM provider_tier_balances WHERE provider = ? ORDER BY tier, token`,
		provider,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProviderTierBalance
	for rows.Next() {
		var b ProviderTierBalance
		if err := rows.Scan(&b.Provider, &b.Tier, &b.Token, &b.Deposited, &b.Locked, &b.PremiumEarned, &b.LastDepositHeight, &b.DepositCount); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// Withdraw decreases a provider's deposited balance by amount, failing
// if doing so would drop deposited below locked (spec §3 invariant
// "0 <= locked <= deposited"; withdrawal must never touch committed
// collateral). The matching tier_capital row is adjusted in the same
// transaction so the aggregate stays consistent with the per-provider
// rows it summarizes.
func (db *DB) Withdraw(ctx context.Context, provider string, tier types.Tier, token types.Token, amount int64) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE provider_tier_balances SET deposited = deposited - ?
			 WHERE provider = ? AND tier = ? AND token = ? AND deposited - ? >= locked`,
			amount, provider, tier, token, amount,
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return errors.New("withdraw exceeds available balance")
		}
		return db.AdjustTierDepositedTx(ctx, tx, tier, token, -amount)
	})
}

// TierCapital is the aggregate per (tier, token): invariant totalLocked
// <= totalDeposited <= capacityLimit (spec §3).
type TierCapital struct {
	Tier           types.Tier
	Token          types.Token
	TotalDeposited int64
	TotalLocked    int64
	CapacityLimit  int64
}

func (db *DB) GetTierCapital(ctx context.Context, tier types.Tier, token types.Token) (TierCapital, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT tier, token, total_deposited, total_locked, capacity_limit FROM tier_capital WHERE tier = ? AND token = ?`,
		tier, token,
	)
	var c TierCapital
	if err := row.Scan(&c.Tier, &c.Token, &c.TotalDeposited, &c.TotalLocked, &c.CapacityLimit); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TierCapital{}, false, nil
		}
		return TierCapital{}, false, err
	}
	return c, true, nil
}

// AdjustTierLockedTx applies delta (positive or negative) to a tier's
// totalLocked inside tx.
func (db *DB) AdjustTierLockedTx(ctx context.Context, tx *sql.Tx, tier types.Tier, token types.Token, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tier_capital (tier, token, total_deposited, total_locked, capacity_limit)
		 VALUES (?, ?, 0, ?, 0)
		 ON CONFLICT(tier, token) DO UPDATE SET total_locked = total_locked + excluded.total_locked`,
		tier, token, delta,
	)
	return err
}

// AdjustTierDepositedTx applies delta to a tier's totalDeposited inside tx
// (used by applySettlement's loss write-down).
func (db *DB) AdjustTierDepositedTx(ctx context.Context, tx *sql.Tx, tier types.Tier, token types.Token, delta int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE tier_capital SET total_deposited = total_deposited + ? WHERE tier = ? AND token = ?`,
		delta, tier, token,
	)
	return err
}
