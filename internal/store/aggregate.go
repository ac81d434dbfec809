package store

import (
	"context"
	"database/sql"
	"errors"
)

// AggregatedPrice is the immutable result of one Aggregator run
// (spec §3).
type AggregatedPrice struct {
	ID            int64
	PriceUSDMicro int64
	TimestampMs   int64
	SourceCount   int
	Volatility    float64
	Range24hLowMicro  *int64
	Range24hHighMicro *int64
}

// InsertAggregatedPrice persists one AggregatedPrice row.
func (db *DB) InsertAggregatedPrice(ctx context.Context, p AggregatedPrice) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT INTO aggregated_prices (price_usd_micro, timestamp_ms, source_count, volatility, range_24h_low_micro, range_24h_high_micro)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.PriceUSDMicro, p.TimestampMs, p.SourceCount, p.Volatility, p.Range24hLowMicro, p.Range24hHighMicro,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// LatestAggregatedPrice returns the most recently written AggregatedPrice,
// or (zero, false, nil) if none exists yet.
func (db *DB) LatestAggregatedPrice(ctx context.Context) (AggregatedPrice, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT id, price_usd_micro, timestamp_ms, source_count, volatility, range_24h_low_micro, range_24h_high_micro
		 FROM aggregated_prices ORDER BY timestamp_ms DESC LIMIT 1`)
	var p AggregatedPrice
	if err := row.Scan(&p.ID, &p.PriceUSDMicro, &p.TimestampMs, &p.SourceCount, &p.Volatility, &p.Range24hLowMicro, &p.Range24hHighMicro); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return AggregatedPrice{}, false, nil
		}
		return AggregatedPrice{}, false, err
	}
	return p, true, nil
}
