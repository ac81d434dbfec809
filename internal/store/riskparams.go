package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bithedge/backend/internal/types"
)

// RiskParameters backs QuoteEngine's risk-adjustment multipliers
// (spec §4.5) and the optional coverageFactor (spec §9 Open Questions,
// default 1.0).
type RiskParameters struct {
	Asset                string
	PolicyType           types.PolicyType
	BaseRate             float64
	VolMult              float64
	DurFactor            float64
	CoverageFactor       float64
	TierMultConservative float64
	TierMultBalanced     float64
	TierMultAggressive   float64
}

func (r RiskParameters) TierMultiplier(tier types.Tier) float64 {
	switch tier {
	case types.TierConservative:
		return r.TierMultConservative
	case types.TierAggressive:
		return r.TierMultAggressive
	default:
		return r.TierMultBalanced
	}
}

func (db *DB) GetRiskParameters(ctx context.Context, asset string, policyType types.PolicyType) (RiskParameters, bool, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT asset, policy_type, base_rate, vol_mult, dur_factor, coverage_factor,
			tier_mult_conservative, tier_mult_balanced, tier_mult_aggressive
		 FROM risk_parameters WHERE asset = ? AND policy_type = ?`,
		asset, policyType,
	)
	var r RiskParameters
	if err := row.Scan(&r.Asset, &r.PolicyType, &r.BaseRate, &r.VolMult, &r.DurFactor, &r.CoverageFactor,
		&r.TierMultConservative, &r.TierMultBalanced, &r.TierMultAggressive); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return RiskParameters{}, false, nil
		}
		return RiskParameters{}, false, err
	}
	return r, true, nil
}

func (db *DB) UpsertRiskParameters(ctx context.Context, r RiskParameters) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO risk_parameters (asset, policy_type, base_rate, vol_mult, dur_factor, coverage_factor,
			tier_mult_conservative, tier_mult_balanced, tier_mult_aggressive)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(asset, policy_type) DO UPDATE SET
			base_rate=excluded.base_rate, vol_mult=excluded.vol_mult, dur_factor=excluded.dur_factor,
			coverage_factor=excluded.coverage_factor,
			tier_mult_conservative=excluded.tier_mult_conservative,
			tier_mult_balanced=excluded.tier_mult_balanced,
			tier_mult_aggressive=excluded.tier_mult_aggressive`,
		r.Asset, r.PolicyType, r.BaseRate, r.VolMult, r.DurFactor, r.CoverageFactor,
		r.TierMultConservative, r.TierMultBalanced, r.TierMultAggressive,
	)
	return err
}
