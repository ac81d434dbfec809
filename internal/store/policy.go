package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/bithedge/backend/internal/types"
)

// Policy mirrors spec §3. CorrelationKey is the (owner, expirationHeight,
// strikeCents, amountSats) tuple used to match an on-chain
// policy-created event back to this row before onChainId is known
// (spec §4.6 "Event handling").
type Policy struct {
	ID               string
	OnChainID        *string
	Owner            string
	PolicyType       types.PolicyType
	RiskTier         types.Tier
	StrikeCents      int64
	AmountSats       int64
	PremiumMicro     int64
	CreationHeight   int64
	ExpirationHeight int64
	Status           types.PolicyStatus
	CollateralToken  types.Token
	SettlementToken  types.Token
	CorrelationKey   string
}

func (db *DB) InsertPolicyTx(ctx context.Context, tx *sql.Tx, p Policy) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO policies (id, on_chain_id, owner, policy_type, risk_tier, strike_cents, amount_sats, premium_micro,
			creation_height, expiration_height, status, collateral_token, settlement_token, correlation_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OnChainID, p.Owner, p.PolicyType, p.RiskTier, p.StrikeCents, p.AmountSats, p.PremiumMicro,
		p.CreationHeight, p.ExpirationHeight, p.Status, p.CollateralToken, p.SettlementToken, p.CorrelationKey,
	)
	return err
}

func (db *DB) GetPolicy(ctx context.Context, id string) (Policy, bool, error) {
	row := db.conn.QueryRowContext(ctx, policySelect+` WHERE id = ?`, id)
	return scanPolicy(row)
}

func (db *DB) GetPolicyByCorrelation(ctx context.Context, key string) (Policy, bool, error) {
	row := db.conn.QueryRowContext(ctx, policySelect+` WHERE correlation_key = ?`, key)
	return scanPolicy(row)
}

const policySelect = `SELECT id, on_chain_id, owner, policy_type, risk_tier, strike_cents, amount_sats, premium_micro,
	creation_height, expiration_height, status, collateral_token, settlement_token, correlation_key FROM policies`

func scanPolicy(row *sql.Row) (Policy, bool, error) {
	var p Policy
	if err := row.Scan(&p.ID, &p.OnChainID, &p.Owner, &p.PolicyType, &p.RiskTier, &p.StrikeCents, &p.AmountSats, &p.PremiumMicro,
		&p.CreationHeight, &p.ExpirationHeight, &p.Status, &p.CollateralToken, &p.SettlementToken, &p.CorrelationKey); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Policy{}, false, nil
		}
		return Policy{}, false, err
	}
	return p, true, nil
}

// ActiveExpiringBy returns Active policies whose expirationHeight has
// passed, limited to batchSize (spec §4.9 step 1).
func (db *DB) ActiveExpiringBy(ctx context.Context, currentHeight int64, batchSize int) ([]Policy, error) {
	rows, err := db.conn.QueryContext(ctx,
		policySelect+` WHERE status = ? AND expiration_height <= ? ORDER BY expiration_height ASC LIMIT ?`,
		types.PolicyActive, currentHeight, batchSize,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Policy
	for rows.Next() {
		var p Policy
		if err := rows.Scan(&p.ID, &p.OnChainID, &p.Owner, &p.PolicyType, &p.RiskTier, &p.StrikeCents, &p.AmountSats, &p.PremiumMicro,
			&p.CreationHeight, &p.ExpirationHeight, &p.Status, &p.CollateralToken, &p.SettlementToken, &p.CorrelationKey); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TransitionStatusTx moves a policy to a new status, enforcing the
// monotone state machine (spec §4.6, §8 invariant 4). onChainID, when
// non-nil, is set at the same time (activation).
func (db *DB) TransitionStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to types.PolicyStatus, onChainID *string) error {
	if !types.CanTransition(from, to) {
		return errors.New("illegal policy transition: " + string(from) + " -> " + string(to))
	}
	var err error
	if onChainID != nil {
		_, err = tx.ExecContext(ctx, `UPDATE policies SET status = ?, on_chain_id = ? WHERE id = ? AND status = ?`, to, *onChainID, id, from)
	} else {
		_, err = tx.ExecContext(ctx, `UPDATE policies SET status = ? WHERE id = ? AND status = ?`, to, id, from)
	}
	return err
}
