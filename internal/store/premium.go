package store

import (
	"context"
	"database/sql"

	"github.com/bithedge/backend/internal/types"
)

// PremiumDistribution is one provider's slice of a policy's premium
// (spec §3).
type PremiumDistribution struct {
	ID           string
	PolicyID     string
	AllocationID string
	Provider     string
	PremiumShare int64
	Status       types.PremiumDistStatus
}

func (db *DB) InsertPremiumDistributionTx(ctx context.Context, tx *sql.Tx, d PremiumDistribution) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO premium_distributions (id, policy_id, allocation_id, provider, premium_share, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.PolicyID, d.AllocationID, d.Provider, d.PremiumShare, d.Status,
	)
	return err
}

func (db *DB) PremiumDistributionsForPolicy(ctx context.Context, policyID string) ([]PremiumDistribution, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, policy_id, allocation_id, provider, premium_share, status FROM premium_distributions WHERE policy_id = ?`,
		policyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PremiumDistribution
	for rows.Next() {
		var d PremiumDistribution
		if err := rows.Scan(&d.ID, &d.PolicyID, &d.AllocationID, &d.Provider, &d.PremiumShare, &d.Status); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (db *DB) UpdatePremiumDistributionStatus(ctx context.Context, id string, status types.PremiumDistStatus) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE premium_distributions SET status = ? WHERE id = ?`, status, id)
	return err
}
