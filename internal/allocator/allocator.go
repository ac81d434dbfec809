// Package allocator implements capital planning and commitment against
// liquidity-provider balances: plan/commit/release/applySettlement
// (spec §4.7). Grounded on the oracle price-feeder's weighted-aggregation
// idiom in oracle/convert.go (deterministic proportional split, remainder
// assigned to the largest contributor) applied to capital instead of
// price sources.
package allocator

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
	"github.com/bithedge/backend/pkg/idgen"
)

// PlanEntry is one provider's share of a capital requirement.
type PlanEntry struct {
	Provider     string
	Tier         types.Tier
	AmountLocked int64
	PercentBps   int64
}

// Plan is the output of Allocator.Plan: the full set of provider shares
// needed to cover one policy's requiredAmount.
type Plan struct {
	Tier     types.Tier
	Token    types.Token
	Required int64
	Entries  []PlanEntry
}

// Allocator implements spec §4.7's plan/commit/release/applySettlement.
type Allocator struct {
	logger zerolog.Logger
	db     *store.DB
}

func NewAllocator(logger zerolog.Logger, db *store.DB) *Allocator {
	return &Allocator{logger: logger.With().Str("module", "allocator").Logger(), db: db}
}

// Plan implements plan(requiredAmount, tier, token) (spec §4.7 steps
// 1-5). Returns a types.KindInsufficientLiq error if providers can't
// cover the full requirement.
func (a *Allocator) Plan(ctx context.Context, required int64, tier types.Tier, token types.Token) (Plan, error) {
	balances, err := a.db.EligibleBalances(ctx, tier, token)
	if err != nil {
		return Plan{}, err
	}
	if len(balances) == 0 {
		return Plan{}, types.New(types.KindInsufficientLiq, "no eligible providers")
	}

	var totalAvailable int64
	for _, b := range balances {
		totalAvailable += b.Available()
	}
	if totalAvailable < required {
		return Plan{}, types.New(types.KindInsufficientLiq, fmt.Sprintf("available %d < required %d", totalAvailable, required))
	}

	planned := make([]int64, len(balances))
	var remaining int64 = required

	// first pass: proportional share, floored
	for i, b := range balances {
		share := required * b.Available() / totalAvailable
		if share > b.Available() {
			share = b.Available()
		}
		if share > remaining {
			share = remaining
		}
		planned[i] = share
		remaining -= share
	}

	// second pass: walk providers in the same order assigning leftover
	// capacity until remaining is exhausted
	for remaining > 0 {
		progressed := false
		for i, b := range balances {
			if remaining == 0 {
				break
			}
			capacity := b.Available() - planned[i]
			if capacity <= 0 {
				continue
			}
			take := capacity
			if take > remaining {
				take = remaining
			}
			planned[i] += take
			remaining -= take
			progressed = true
		}
		if !progressed {
			break
		}
	}
	if remaining > 0 {
		return Plan{}, types.New(types.KindInsufficientLiq, "remainder distribution could not cover requirement")
	}

	entries := make([]PlanEntry, 0, len(balances))
	largestIdx := -1
	var largestShare int64
	var bpsAssigned int64
	for i, b := range balances {
		if planned[i] <= 0 {
			continue
		}
		bps := bpsOf(planned[i], required)
		bpsAssigned += bps
		entries = append(entries, PlanEntry{Provider: b.Provider, Tier: b.Tier, AmountLocked: planned[i], PercentBps: bps})
		if planned[i] > largestShare {
			largestShare = planned[i]
			largestIdx = len(entries) - 1
		}
	}
	// remainder bps from flooring goes to the largest provider (spec §4.7 step 5)
	if largestIdx >= 0 && bpsAssigned < 10000 {
		entries[largestIdx].PercentBps += 10000 - bpsAssigned
	}

	return Plan{Tier: tier, Token: token, Required: required, Entries: entries}, nil
}

// Commit implements commit(plan) (spec §4.7): locks capital and inserts
// Allocation rows atomically, failing the whole transaction if any lock
// would exceed a provider's deposited balance (concurrent change race —
// caller retries by re-planning).
func (a *Allocator) Commit(ctx context.Context, policyID string, plan Plan) ([]store.Allocation, error) {
	allocations := make([]store.Allocation, 0, len(plan.Entries))
	err := a.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, e := range plan.Entries {
			if err := a.db.LockTx(ctx, tx, e.Provider, e.Tier, plan.Token, e.AmountLocked); err != nil {
				return fmt.Errorf("allocator: commit: lock provider %s: %w", e.Provider, err)
			}
			if err := a.db.AdjustTierLockedTx(ctx, tx, e.Tier, plan.Token, e.AmountLocked); err != nil {
				return fmt.Errorf("allocator: commit: tier capital: %w", err)
			}
			alloc := store.Allocation{
				ID:           idgen.New(),
				PolicyID:     policyID,
				Provider:     e.Provider,
				Tier:         e.Tier,
				AmountLocked: e.AmountLocked,
				PercentBps:   e.PercentBps,
				Status:       types.AllocationPending,
			}
			if err := a.db.InsertAllocationTx(ctx, tx, alloc); err != nil {
				return fmt.Errorf("allocator: commit: insert allocation: %w", err)
			}
			allocations = append(allocations, alloc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return allocations, nil
}

// Release implements release(policyId) (spec §4.7): unlocks every
// allocation's capital and marks it Released.
func (a *Allocator) Release(ctx context.Context, policyID string, token types.Token) error {
	allocations, err := a.db.AllocationsForPolicy(ctx, policyID)
	if err != nil {
		return err
	}
	return a.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, alloc := range allocations {
			if alloc.Status != types.AllocationConfirmed && alloc.Status != types.AllocationPending {
				continue
			}
			if err := a.db.UnlockTx(ctx, tx, alloc.Provider, alloc.Tier, token, alloc.AmountLocked); err != nil {
				return fmt.Errorf("allocator: release: unlock provider %s: %w", alloc.Provider, err)
			}
			if err := a.db.AdjustTierLockedTx(ctx, tx, alloc.Tier, token, -alloc.AmountLocked); err != nil {
				return fmt.Errorf("allocator: release: tier capital: %w", err)
			}
			if err := a.db.UpdateAllocationStatusTx(ctx, tx, alloc.ID, types.AllocationReleased); err != nil {
				return err
			}
		}
		return nil
	})
}

// ApplySettlement implements applySettlement(policyId, totalLoss)
// (spec §4.7): distributes the loss proportionally across allocations by
// percentage, writing down both deposited and locked. A shortfall (the
// sum of allocation shares under-covering totalLoss) is recorded as a
// reconciliation error rather than pulled from an insurance fund
// (spec §9 "no insurance fund in the core MVP").
func (a *Allocator) ApplySettlement(ctx context.Context, policyID string, token types.Token, totalLoss int64) error {
	allocations, err := a.db.AllocationsForPolicy(ctx, policyID)
	if err != nil {
		return err
	}

	var distributed int64
	err = a.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, alloc := range allocations {
			if alloc.Status != types.AllocationConfirmed && alloc.Status != types.AllocationPending {
				continue
			}
			share := amountOfBps(totalLoss, alloc.PercentBps)
			if share > alloc.AmountLocked {
				share = alloc.AmountLocked
			}
			distributed += share

			if err := a.db.ApplyLossTx(ctx, tx, alloc.Provider, alloc.Tier, token, share); err != nil {
				return fmt.Errorf("allocator: applySettlement: provider %s: %w", alloc.Provider, err)
			}
			if err := a.db.AdjustTierDepositedTx(ctx, tx, alloc.Tier, token, -share); err != nil {
				return err
			}
			if err := a.db.AdjustTierLockedTx(ctx, tx, alloc.Tier, token, -share); err != nil {
				return err
			}
			if err := a.db.UpdateAllocationStatusTx(ctx, tx, alloc.ID, types.AllocationSettlementImpacted); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if distributed < totalLoss {
		shortfall := totalLoss - distributed
		a.logger.Error().Str("policy_id", policyID).Int64("shortfall", shortfall).Msg("settlement shortfall")
		return a.db.InsertReconciliation(ctx, store.ReconciliationRecord{
			Kind:           "settlement_shortfall",
			PolicyID:       &policyID,
			ExpectedAmount: &totalLoss,
			ActualAmount:   &distributed,
			Details:        fmt.Sprintf("allocations covered %d of %d required", distributed, totalLoss),
			CreatedAtMs:    time.Now().UnixMilli(),
		})
	}
	return nil
}

// bpsOf returns amount's share of total in basis points, rounded down.
// Uses sdk.Dec rather than plain integer division so the intermediate
// ratio isn't truncated before the ×10000 scale-up (spec §4.7 step 5,
// §8 invariant "entries' percentageBps sum to 10000").
func bpsOf(amount, total int64) int64 {
	if total == 0 {
		return 0
	}
	ratio := sdk.NewDec(amount).Quo(sdk.NewDec(total))
	return ratio.MulInt64(10000).TruncateInt64()
}

// amountOfBps returns bps/10000 of total, rounded down, via sdk.Dec —
// the inverse of bpsOf, used by applySettlement's proportional loss
// write-down.
func amountOfBps(total, bps int64) int64 {
	return sdk.NewDec(total).MulInt64(bps).QuoInt64(10000).TruncateInt64()
}
