package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PriceTick is one immutable, append-only sample from one source
// (spec §3). Price is stored as micro-USD (1e-6 USD) fixed point so the
// aggregator's weighted-average arithmetic stays in integers where
// possible; float64 is used only at read time for weighting math.
type PriceTick struct {
	ID            int64
	Source        string
	PriceUSDMicro int64
	Weight        float64
	TimestampMs   int64
}

// InsertTick appends one PriceTick row (spec §4.1: "each successful
// response is written as one PriceTick").
func (db *DB) InsertTick(ctx context.Context, t PriceTick) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO price_ticks (source, price_usd_micro, weight, timestamp_ms) VALUES (?, ?, ?, ?)`,
		t.Source, t.PriceUSDMicro, t.Weight, t.TimestampMs,
	)
	return err
}

// TicksSince returns every tick newer than the given cutoff, ordered by
// timestamp ascending so the caller can easily keep only the latest per
// source (spec §4.2 step 2).
func (db *DB) TicksSince(ctx context.Context, cutoff time.Time) ([]PriceTick, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, source, price_usd_micro, weight, timestamp_ms FROM price_ticks WHERE timestamp_ms >= ? ORDER BY timestamp_ms ASC`,
		cutoff.UnixMilli(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PriceTick
	for rows.Next() {
		var t PriceTick
		if err := rows.Scan(&t.ID, &t.Source, &t.PriceUSDMicro, &t.Weight, &t.TimestampMs); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// LastTickTime reports the timestamp of a given source's minimum polling
// interval bookkeeping (spec §4.1 rate limiting).
func (db *DB) LastTickTime(ctx context.Context, source string) (time.Time, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT timestamp_ms FROM price_ticks WHERE source = ? ORDER BY timestamp_ms DESC LIMIT 1`, source)
	var ms int64
	if err := row.Scan(&ms); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
