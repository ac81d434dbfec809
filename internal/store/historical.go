package store

import (
	"context"
	"database/sql"
	"errors"
)

// HistoricalDailyPrice is keyed by (date, isDaily=true); "today" is
// upsert-latest-wins, all other rows are immutable once the day rolls
// over (spec §3).
type HistoricalDailyPrice struct {
	Date        string // YYYY-MM-DD
	OpenMicro   *int64
	HighMicro   *int64
	LowMicro    *int64
	CloseMicro  int64
	Volume      *int64
	UpdatedAtMs int64
}

// UpsertDailyPrice inserts or overwrites today's row; a close for a past
// date should never be re-upserted by callers (callers only pass today's
// date in practice).
func (db *DB) UpsertDailyPrice(ctx context.Context, p HistoricalDailyPrice) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO historical_daily_prices (date, is_daily, open_micro, high_micro, low_micro, close_micro, volume, updated_at_ms)
		 VALUES (?, 1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET
			open_micro=excluded.open_micro,
			high_micro=excluded.high_micro,
			low_micro=excluded.low_micro,
			close_micro=excluded.close_micro,
			volume=excluded.volume,
			updated_at_ms=excluded.updated_at_ms`,
		p.Date, p.OpenMicro, p.HighMicro, p.LowMicro, p.CloseMicro, p.Volume, p.UpdatedAtMs,
	)
	return err
}

// DailyClosesBetween returns daily closes with date in [fromDate, toDate]
// ordered ascending by date — the input to VolatilityEngine's log-return
// computation (spec §4.3).
func (db *DB) DailyClosesBetween(ctx context.Context, fromDate, toDate string) ([]HistoricalDailyPrice, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT date, open_micro, high_micro, low_micro, close_micro, volume, updated_at_ms
		 FROM historical_daily_prices WHERE date >= ? AND date <= ? ORDER BY date ASC`,
		fromDate, toDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoricalDailyPrice
	for rows.Next() {
		var p HistoricalDailyPrice
		if err := rows.Scan(&p.Date, &p.OpenMicro, &p.HighMicro, &p.LowMicro, &p.CloseMicro, &p.Volume, &p.UpdatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DailyPricesLast24h returns rows updated within the last 24h, used for
// the Aggregator's range24h computation (spec §4.2 step 6).
func (db *DB) DailyPricesLast24h(ctx context.Context, sinceMs int64) ([]HistoricalDailyPrice, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT date, open_micro, high_micro, low_micro, close_micro, volume, updated_at_ms
		 FROM historical_daily_prices WHERE updated_at_ms >= ? ORDER BY updated_at_ms ASC`,
		sinceMs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoricalDailyPrice
	for rows.Next() {
		var p HistoricalDailyPrice
		if err := rows.Scan(&p.Date, &p.OpenMicro, &p.HighMicro, &p.LowMicro, &p.CloseMicro, &p.Volume, &p.UpdatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// HistoricalVolatility is append-only; the latest row per periodDays is
// authoritative (spec §3).
type HistoricalVolatility struct {
	ID          int64
	PeriodDays  int
	TimestampMs int64
	Volatility  float64
	DataPoints  int
	Method      string
}

// InsertVolatility appends one HistoricalVolatility row.
func (db *DB) InsertVolatility(ctx context.Context, v HistoricalVolatility) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO historical_volatility (period_days, timestamp_ms, volatility, data_points, method) VALUES (?, ?, ?, ?, ?)`,
		v.PeriodDays, v.TimestampMs, v.Volatility, v.DataPoints, v.Method,
	)
	return err
}

// LatestVolatility returns the most recent row for the given periodDays.
func (db *DB) LatestVolatility(ctx context.Context, periodDays int) (HistoricalVolatility, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, period_days, timestamp_ms, volatility, data_points, method
		 FROM historical_volatility WHERE period_days = ? ORDER BY timestamp_ms DESC LIMIT 1`,
		periodDays,
	)
	var v HistoricalVolatility
	if err := row.Scan(&v.ID, &v.PeriodDays, &v.TimestampMs, &v.Volatility, &v.DataPoints, &v.Method); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return HistoricalVolatility{}, false, nil
		}
		return HistoricalVolatility{}, false, err
	}
	return v, true, nil
}

// AllPeriodDays lists the distinct periodDays with at least one row,
// used by the fallback "closest window" lookup (spec §4.3).
func (db *DB) AllPeriodDays(ctx context.Context) ([]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT DISTINCT period_days FROM historical_volatility ORDER BY period_days ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
