// Package premium implements PremiumDistributor: splitting a policy's
// premium across its backing allocations and pushing the distribution
// on-chain (spec §4.8). Uses the same bps + remainder-to-largest split
// rule as allocator, grounded on the same convert.go weighted-split idiom.
package premium

import (
	"context"
	"database/sql"
	"fmt"

	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/txengine"
	"github.com/bithedge/backend/internal/types"
	"github.com/bithedge/backend/pkg/idgen"
)

// Distributor implements spec §4.8.
type Distributor struct {
	logger          zerolog.Logger
	db              *store.DB
	engine          *txengine.Engine
	liquidityPool   string
}

func NewDistributor(logger zerolog.Logger, db *store.DB, engine *txengine.Engine, liquidityPool string) *Distributor {
	return &Distributor{logger: logger.With().Str("module", "premium_distributor").Logger(), db: db, engine: engine, liquidityPool: liquidityPool}
}

// Plan computes and persists PremiumDistribution rows for an Active
// policy, splitting premiumMicro across its Confirmed allocations by the
// same percentage each already carries (spec §4.8).
func (d *Distributor) Plan(ctx context.Context, policy store.Policy, allocations []store.Allocation) ([]store.PremiumDistribution, error) {
	var largestIdx int
	var largestShare int64
	var assigned int64
	distributions := make([]store.PremiumDistribution, 0, len(allocations))

	for i, alloc := range allocations {
		share := amountOfBps(policy.PremiumMicro, alloc.PercentBps)
		assigned += share
		distributions = append(distributions, store.PremiumDistribution{
			ID:           idgen.New(),
			PolicyID:     policy.ID,
			AllocationID: alloc.ID,
			Provider:     alloc.Provider,
			PremiumShare: share,
			Status:       types.PremiumDistPlanned,
		})
		if share > largestShare {
			largestShare = share
			largestIdx = i
		}
	}
	if remainder := policy.PremiumMicro - assigned; remainder != 0 && len(distributions) > 0 {
		distributions[largestIdx].PremiumShare += remainder
	}

	err := d.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, dist := range distributions {
			if err := d.db.InsertPremiumDistributionTx(ctx, tx, dist); err != nil {
				return fmt.Errorf("premium: persist distribution: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return distributions, nil
}

// Distribute issues the on-chain distribute-premium call for a policy
// (spec §4.8: "one aggregate call if the contract supports it; otherwise
// one per provider" — this backend always issues one call per provider,
// since LiquidityPool.record-premium is scoped to a single recipient).
func (d *Distributor) Distribute(ctx context.Context, policy store.Policy, distributions []store.PremiumDistribution) error {
	for _, dist := range distributions {
		convexID := fmt.Sprintf("premium-distribute-%s", dist.ID)
		call := txengine.ContractCall{
			ContractAddress: d.liquidityPool,
			ContractName:    contractNameOf(d.liquidityPool),
			FunctionName:    "record-premium",
			Args:            [][]byte{[]byte(policy.ID), uint64Arg(dist.PremiumShare)},
		}
		if _, err := d.engine.Submit(ctx, convexID, "record-premium", call); err != nil {
			return fmt.Errorf("premium: submit distribution %s: %w", dist.ID, err)
		}
		if err := d.db.UpdatePremiumDistributionStatus(ctx, dist.ID, types.PremiumDistRecorded); err != nil {
			return err
		}
	}
	return nil
}

// ConfirmPaid is called once a distribution's Transaction confirms
// (spec §4.8): credits the provider's premiumEarned. It does not change
// the distribution row's status; the premium-distributed event handler
// marks the row Paid.
func (d *Distributor) ConfirmPaid(ctx context.Context, dist store.PremiumDistribution, tier types.Tier, token types.Token) error {
	return d.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := d.db.CreditPremiumTx(ctx, tx, dist.Provider, tier, token, dist.PremiumShare); err != nil {
			return err
		}
		return nil
	})
}

func contractNameOf(fullyQualified string) string {
	for i := len(fullyQualified) - 1; i >= 0; i-- {
		if fullyQualified[i] == '.' {
			return fullyQualified[i+1:]
		}
	}
	return fullyQualified
}

func uint64Arg(v int64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v & 0xff)
		v >>= 8
	}
	return out
}

// amountOfBps returns bps/10000 of total, rounded down, via sdk.Dec —
// same split rule allocator.ApplySettlement uses for its loss write-down.
func amountOfBps(total, bps int64) int64 {
	return sdk.NewDec(total).MulInt64(bps).QuoInt64(10000).TruncateInt64()
}
