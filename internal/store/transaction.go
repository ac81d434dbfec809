package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bithedge/backend/internal/types"
)

// Transaction is the off-chain correlator for exactly one outbound
// on-chain action (spec §3, §4.10 invariant).
type Transaction struct {
	ConvexID     string
	ChainTxID    *string
	Kind         string
	Payload      string
	Status       types.TxStatus
	ErrorDetails *string
	Nonce        *int64
	RetryCount   int
	CreatedAtMs  int64
	UpdatedAtMs  int64
}

func (db *DB) InsertTransactionTx(ctx context.Context, tx *sql.Tx, t Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (convex_id, chain_tx_id, kind, payload, status, error_details, nonce, retry_count, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ConvexID, t.ChainTxID, t.Kind, t.Payload, t.Status, t.ErrorDetails, t.Nonce, t.RetryCount, t.CreatedAtMs, t.UpdatedAtMs,
	)
	return err
}

// InsertTransaction is the non-transactional variant for callers that
// aren't already inside a multi-row write (e.g. a standalone oracle
// submission).
func (db *DB) InsertTransaction(ctx context.Context, t Transaction) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO transactions (convex_id, chain_tx_id, kind, payload, status, error_details, nonce, retry_count, created_at_ms, updated_at_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ConvexID, t.ChainTxID, t.Kind, t.Payload, t.Status, t.ErrorDetails, t.Nonce, t.RetryCount, t.CreatedAtMs, t.UpdatedAtMs,
	)
	return err
}

func (db *DB) GetTransaction(ctx context.Context, convexID string) (Transaction, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT convex_id, chain_tx_id, kind, payload, status, error_details, nonce, retry_count, created_at_ms, updated_at_ms
		 FROM transactions WHERE convex_id = ?`, convexID)
	var t Transaction
	if err := row.Scan(&t.ConvexID, &t.ChainTxID, &t.Kind, &t.Payload, &t.Status, &t.ErrorDetails, &t.Nonce, &t.RetryCount, &t.CreatedAtMs, &t.UpdatedAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

func (db *DB) GetTransactionByChainTxID(ctx context.Context, chainTxID string) (Transaction, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT convex_id, chain_tx_id, kind, payload, status, error_details, nonce, retry_count, created_at_ms, updated_at_ms
		 FROM transactions WHERE chain_tx_id = ?`, chainTxID)
	var t Transaction
	if err := row.Scan(&t.ConvexID, &t.ChainTxID, &t.Kind, &t.Payload, &t.Status, &t.ErrorDetails, &t.Nonce, &t.RetryCount, &t.CreatedAtMs, &t.UpdatedAtMs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Transaction{}, false, nil
		}
		return Transaction{}, false, err
	}
	return t, true, nil
}

// UpdateTransactionStatus enforces the monotone lattice (spec §4.10)
// before writing.
func (db *DB) UpdateTransactionStatus(ctx context.Context, convexID string, newStatus types.TxStatus, chainTxID *string, errDetails *string, updatedAtMs int64) error {
	existing, found, err := db.GetTransaction(ctx, convexID)
	if err != nil {
		return err
	}
	if !found {
		return errors.New("transaction not found: " + convexID)
	}
	if !types.CanAdvanceTx(existing.Status, newStatus) {
		return errors.New("illegal transaction status regression: " + string(existing.Status) + " -> " + string(newStatus))
	}
	_, err = db.conn.ExecContext(ctx,
		`UPDATE transactions SET status = ?, chain_tx_id = COALESCE(?, chain_tx_id), error_details = ?, updated_at_ms = ? WHERE convex_id = ?`,
		newStatus, chainTxID, errDetails, updatedAtMs, convexID,
	)
	return err
}

// RecordRetry bumps retryCount and nonce on a BadNonce retry
// (spec §4.10 step 5).
func (db *DB) RecordRetry(ctx context.Context, convexID string, newNonce int64, updatedAtMs int64) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE transactions SET nonce = ?, retry_count = retry_count + 1, updated_at_ms = ? WHERE convex_id = ?`,
		newNonce, updatedAtMs, convexID,
	)
	return err
}
