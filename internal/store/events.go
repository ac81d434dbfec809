package store

import (
	"context"
	"database/sql"
	"errors"
)

// CursorFor returns a contract's last processed event offset (0 if
// never advanced), for EventProcessor paging (spec §4.11).
func (db *DB) CursorFor(ctx context.Context, contract string) (int64, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT offset FROM event_cursors WHERE contract = ?`, contract)
	var offset int64
	if err := row.Scan(&offset); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return offset, nil
}

// AdvanceCursor sets a contract's cursor to newOffset. Callers must hold
// the per-contract serial-writer discipline described in spec §5 — this
// package does not itself serialize calls across goroutines.
func (db *DB) AdvanceCursor(ctx context.Context, contract string, newOffset int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO event_cursors (contract, offset) VALUES (?, ?)
		 ON CONFLICT(contract) DO UPDATE SET offset = excluded.offset`,
		contract, newOffset,
	)
	return err
}

// WasProcessed reports whether (txID, eventIndex) has already been
// handled (spec §4.11/§8 invariant 7, idempotence).
func (db *DB) WasProcessed(ctx context.Context, txID string, eventIndex int) (bool, error) {
	row := db.conn.QueryRowContext(ctx, `SELECT 1 FROM processed_events WHERE tx_id = ? AND event_index = ?`, txID, eventIndex)
	var one int
	if err := row.Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkProcessed records (txID, eventIndex) as handled.
func (db *DB) MarkProcessed(ctx context.Context, txID string, eventIndex int, nowMs int64) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO processed_events (tx_id, event_index, processed_at_ms) VALUES (?, ?, ?)`,
		txID, eventIndex, nowMs,
	)
	return err
}
