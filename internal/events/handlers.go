package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bithedge/backend/internal/premium"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
)

// PremiumDistributedPayload is the `premium-distributed` event's decoded
// shape (spec §6).
type PremiumDistributedPayload struct {
	PolicyID  string      `json:"policyId"`
	Amount    int64       `json:"amount"`
	Recipient string      `json:"recipient"`
	Token     types.Token `json:"token"`
}

// NewPremiumDistributedHandler confirms a PremiumDistribution on-chain
// (spec §4.8: "on confirmation: PremiumDistribution→Paid and
// ProviderTierBalance.premiumEarned += share").
func NewPremiumDistributedHandler(db *store.DB, distributor *premium.Distributor) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload PremiumDistributedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("premium-distributed: decode payload: %w", err)
		}

		dists, err := db.PremiumDistributionsForPolicy(ctx, payload.PolicyID)
		if err != nil {
			return err
		}
		p, found, err := db.GetPolicy(ctx, payload.PolicyID)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("premium-distributed: unknown policy %s", payload.PolicyID)
		}

		for _, dist := range dists {
			if dist.Provider != payload.Recipient || dist.Status == types.PremiumDistPaid {
				continue
			}
			if err := distributor.ConfirmPaid(ctx, dist, p.RiskTier, payload.Token); err != nil {
				return err
			}
			if err := db.UpdatePremiumDistributionStatus(ctx, dist.ID, types.PremiumDistPaid); err != nil {
				return err
			}
		}
		return nil
	}
}

// PolicyStatusUpdatedPayload is the `policy-status-updated` event's
// decoded shape (spec §6). The backend drives this transition itself via
// ExpirationScheduler; this handler exists to reconcile the off-chain
// Policy row if the on-chain write and the local state ever disagree.
type PolicyStatusUpdatedPayload struct {
	PolicyID string `json:"policyId"`
	Previous string `json:"previous"`
	New      string `json:"new"`
}

// NewPolicyStatusUpdatedHandler reconciles a divergent Policy status by
// writing a reconciliation record rather than silently overwriting local
// state (spec §7 Reconciliation).
func NewPolicyStatusUpdatedHandler(db *store.DB) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload PolicyStatusUpdatedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("policy-status-updated: decode payload: %w", err)
		}

		p, found, err := db.GetPolicy(ctx, payload.PolicyID)
		if err != nil {
			return err
		}
		if !found || string(p.Status) == payload.New {
			return nil
		}

		return db.InsertReconciliation(ctx, store.ReconciliationRecord{
			Kind:        "policy_status_mismatch",
			PolicyID:    &payload.PolicyID,
			Details:     fmt.Sprintf("on-chain reports %s, local state is %s", payload.New, p.Status),
			CreatedAtMs: time.Now().UnixMilli(),
		})
	}
}

// CollateralLockedPayload is the `collateral-locked` event's decoded
// shape (spec §6). Allocator.Commit already locks capital synchronously
// as part of the create-policy flow, so this handler only confirms the
// write landed — no local state to mutate beyond marking it processed
// (handled by the dispatcher's idempotent MarkProcessed).
type CollateralLockedPayload struct {
	PolicyID string      `json:"policyId"`
	Token    types.Token `json:"token"`
	Amount   int64       `json:"amount"`
}

func NewCollateralLockedHandler() Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload CollateralLockedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("collateral-locked: decode payload: %w", err)
		}
		return nil
	}
}
