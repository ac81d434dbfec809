package store

import (
	"context"

	"github.com/bithedge/backend/internal/types"
)

// OracleSubmission records one attempted on-chain price write
// (spec §3/§4.4).
type OracleSubmission struct {
	TxID               string
	SubmittedPriceSats int64
	Reason             string
	SourceCount        int
	PercentChange      float64
	Status             types.OracleSubmissionStatus
	CreatedAtMs        int64
}

// InsertOracleSubmission persists a new submission row.
func (db *DB) InsertOracleSubmission(ctx context.Context, s OracleSubmission) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO oracle_submissions (tx_id, submitted_price_sats, reason, source_count, percent_change, status, created_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.TxID, s.SubmittedPriceSats, s.Reason, s.SourceCount, s.PercentChange, s.Status, s.CreatedAtMs,
	)
	return err
}

// UpdateOracleSubmissionStatus sets the status of the submission recorded
// under txID. No event handler in this module calls it.
func (db *DB) UpdateOracleSubmissionStatus(ctx context.Context, txID string, status types.OracleSubmissionStatus) error {
	_, err := db.conn.ExecContext(ctx, `UPDATE oracle_submissions SET status = ? WHERE tx_id = ?`, status, txID)
	return err
}

// LatestOracleSubmission returns the most recently persisted submission row.
func (db *DB) LatestOracleSubmission(ctx context.Context) (OracleSubmission, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT tx_id, submitted_price_sats, reason, source_count, percent_change, status, created_at_ms
		 FROM oracle_submissions ORDER BY created_at_ms DESC LIMIT 1`)
	var s OracleSubmission
	if err := row.Scan(&s.TxID, &s.SubmittedPriceSats, &s.Reason, &s.SourceCount, &s.PercentChange, &s.Status, &s.CreatedAtMs); err != nil {
		return OracleSubmission{}, err
	}
	return s, nil
}
