// Package store is the persistence layer for every table in spec §3. It
// is a thin repository over database/sql + mattn/go-sqlite3 — no ORM,
// matching the dependency-free approach a price-feeder's own history
// database takes. Every table maps to one Go file; writes that
// touch multiple rows atomically (Allocator.commit, PolicyOrchestrator's
// policy-created activation) run inside a single *sql.Tx.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the underlying connection pool. It holds no writer lock of its
// own; call sites rely on SQLite's locking and on *sql.Tx for atomicity.
type DB struct {
	conn *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and runs
// the embedded migration.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1) // SQLite writers serialize; avoid pool contention under WAL.

	db := &DB{conn: conn}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) Close() error { return db.conn.Close() }

// WithTx runs fn inside a transaction, committing on nil error and
// rolling back otherwise. Used for every multi-row update named in
// spec §4.6/§4.7 (create-policy persistence, Allocator.commit/release/
// applySettlement).
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (db *DB) migrate(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, schemaDDL)
	return err
}
