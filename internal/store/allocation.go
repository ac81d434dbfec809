package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bithedge/backend/internal/types"
)

// Allocation is a recorded claim on a specific provider's capital for a
// specific policy (spec §3).
type Allocation struct {
	ID           string
	PolicyID     string
	Provider     string
	Tier         types.Tier
	AmountLocked int64
	PercentBps   int64
	Status       types.AllocationStatus
}

func (db *DB) InsertAllocationTx(ctx context.Context, tx *sql.Tx, a Allocation) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO allocations (id, policy_id, provider, tier, amount_locked, percentage_bps, status)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.PolicyID, a.Provider, a.Tier, a.AmountLocked, a.PercentBps, a.Status,
	)
	return err
}

func (db *DB) AllocationsForPolicy(ctx context.Context, policyID string) ([]Allocation, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, policy_id, provider, tier, amount_locked, percentage_bps, status FROM allocations WHERE policy_id = ?`,
		policyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.PolicyID, &a.Provider, &a.Tier, &a.AmountLocked, &a.PercentBps, &a.Status); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) UpdateAllocationStatusTx(ctx context.Context, tx *sql.Tx, id string, status types.AllocationStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE allocations SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errors.New("allocation not found: " + id)
	}
	return nil
}
