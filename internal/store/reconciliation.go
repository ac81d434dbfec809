package store

import "context"

// ReconciliationRecord is written whenever off-chain state disagrees
// with on-chain state (spec §7 "Reconciliation"), e.g. a settlement
// shortfall (spec §4.7 applySettlement).
type ReconciliationRecord struct {
	Kind           string
	PolicyID       *string
	ExpectedAmount *int64
	ActualAmount   *int64
	Details        string
	CreatedAtMs    int64
}

func (db *DB) InsertReconciliation(ctx context.Context, r ReconciliationRecord) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reconciliation_records (kind, policy_id, expected_amount, actual_amount, details, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.Kind, r.PolicyID, r.ExpectedAmount, r.ActualAmount, r.Details, r.CreatedAtMs,
	)
	return err
}
