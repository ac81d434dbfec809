// Package policy implements PolicyOrchestrator: the create-policy flow
// and the policy-created event handler that activates it (spec §4.6).
// The Policy state machine itself lives in internal/types and
// internal/store (legalPolicyTransitions, TransitionStatusTx); this
// package only drives transitions through it.
package policy

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/allocator"
	"github.com/bithedge/backend/internal/premium"
	"github.com/bithedge/backend/internal/quote"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/txengine"
	"github.com/bithedge/backend/internal/types"
	"github.com/bithedge/backend/pkg/idgen"
)

// validPeriodDays are the recognized expiration windows (spec §4.6 step
// 1, configurable; the core set spec §8 scenarios exercise).
var validPeriodDays = map[int]bool{7: true, 14: true, 30: true, 60: true, 90: true}

// CreatePolicyInputs is createPolicy's RPC input (spec §4.6, §6).
type CreatePolicyInputs struct {
	Owner               string
	Tier                types.Tier
	ProtectedValuePct   float64
	ProtectionAmountBTC float64
	PeriodDays          int
	CollateralToken     types.Token
	SettlementToken     types.Token
	CurrentHeight       int64
}

// CreatePolicyResult is returned to the RPC caller immediately
// (spec §4.6 step 7: "{policyId, txId}").
type CreatePolicyResult struct {
	PolicyID string
	TxID     string
}

// Orchestrator drives the Policy state machine (spec §4.6).
type Orchestrator struct {
	logger      zerolog.Logger
	db          *store.DB
	allocator   *allocator.Allocator
	quoteEngine *quote.Engine
	engine      *txengine.Engine
	distributor *premium.Distributor
	registry    string
	expirationDaysToBlocks int64 // blocks-per-day conversion for expirationHeight
}

func NewOrchestrator(logger zerolog.Logger, db *store.DB, alloc *allocator.Allocator, quoteEngine *quote.Engine, engine *txengine.Engine, distributor *premium.Distributor, registryContract string, blocksPerDay int64) *Orchestrator {
	return &Orchestrator{
		logger:                 logger.With().Str("module", "policy_orchestrator").Logger(),
		db:                     db,
		allocator:              alloc,
		quoteEngine:            quoteEngine,
		engine:                 engine,
		distributor:            distributor,
		registry:               registryContract,
		expirationDaysToBlocks: blocksPerDay,
	}
}

// CreatePolicy implements spec §4.6's create-policy flow, steps 1-7.
func (o *Orchestrator) CreatePolicy(ctx context.Context, in CreatePolicyInputs) (CreatePolicyResult, error) {
	if err := o.validate(in); err != nil {
		return CreatePolicyResult{}, err
	}

	quoteResult, err := o.quoteEngine.GetBuyerPremiumQuote(ctx, quote.BuyerPremiumInputs{
		ProtectedValuePct:   in.ProtectedValuePct,
		ProtectionAmountBTC: in.ProtectionAmountBTC,
		ExpirationDays:      in.PeriodDays,
		PolicyType:          types.PolicyTypePut,
	})
	if err != nil {
		return CreatePolicyResult{}, fmt.Errorf("policy orchestrator: quote: %w", err)
	}

	requiredAmount := settlementRequirement(quoteResult.Strike, in.ProtectionAmountBTC, quoteResult.Spot)
	plan, err := o.allocator.Plan(ctx, requiredAmount, in.Tier, in.CollateralToken)
	if err != nil {
		return CreatePolicyResult{}, err
	}

	expirationHeight := in.CurrentHeight + int64(in.PeriodDays)*o.expirationDaysToBlocks
	strikeCents := int64(quoteResult.Strike * 100)
	amountSats := int64(in.ProtectionAmountBTC * 1e8)
	premiumMicro := int64(quoteResult.Premium * 1_000_000)

	policyID := idgen.New()
	correlationKey := fmt.Sprintf("%s|%d|%d|%d", in.Owner, expirationHeight, strikeCents, amountSats)

	policyRow := store.Policy{
		ID:               policyID,
		Owner:            in.Owner,
		PolicyType:       types.PolicyTypePut,
		RiskTier:         in.Tier,
		StrikeCents:      strikeCents,
		AmountSats:       amountSats,
		PremiumMicro:     premiumMicro,
		CreationHeight:   in.CurrentHeight,
		ExpirationHeight: expirationHeight,
		Status:           types.PolicyPendingTx,
		CollateralToken:  in.CollateralToken,
		SettlementToken:  in.SettlementToken,
		CorrelationKey:   correlationKey,
	}

	convexID := fmt.Sprintf("create-policy-%s", policyID)

	// The Transaction row for convexID is created by engine.Submit below.
	err = o.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := o.db.InsertPolicyTx(ctx, tx, policyRow); err != nil {
			return fmt.Errorf("persist policy: %w", err)
		}
		return nil
	})
	if err != nil {
		return CreatePolicyResult{}, err
	}

	// Allocations are committed in their own transaction (spec §4.7
	// Allocator.commit), separate from the Policy insert.
	if _, err := o.allocator.Commit(ctx, policyID, plan); err != nil {
		return CreatePolicyResult{}, err
	}

	call := txengine.ContractCall{
		ContractAddress: o.registry,
		ContractName:    contractNameOf(o.registry),
		FunctionName:    "create-protection-policy",
		Args:            encodeCreatePolicyArgs(policyRow),
	}

	tx, err := o.engine.Submit(ctx, convexID, "create-protection-policy", call)
	if err != nil {
		_ = o.db.WithTx(ctx, func(sqlTx *sql.Tx) error {
			return o.db.TransitionStatusTx(ctx, sqlTx, policyID, types.PolicyPendingTx, types.PolicyFailed, nil)
		})
		return CreatePolicyResult{}, err
	}

	return CreatePolicyResult{PolicyID: policyID, TxID: derefOrEmpty(tx.ChainTxID)}, nil
}

// HandlePolicyCreated implements the `policy-created` event handler
// (spec §4.6): matches by CorrelationKey, flips Policy to Active,
// confirms its Allocations, and triggers the PremiumDistributor.
// TierCapital is not touched here; its locked total was already raised
// by Allocator.Commit.
func (o *Orchestrator) HandlePolicyCreated(ctx context.Context, correlationKey, onChainID string) error {
	p, found, err := o.db.GetPolicyByCorrelation(ctx, correlationKey)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("policy orchestrator: no policy for correlation key %q", correlationKey)
	}
	if p.Status != types.PolicyPendingTx {
		return nil // already activated, idempotent replay
	}

	allocations, err := o.db.AllocationsForPolicy(ctx, p.ID)
	if err != nil {
		return err
	}

	err = o.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := o.db.TransitionStatusTx(ctx, tx, p.ID, types.PolicyPendingTx, types.PolicyActive, &onChainID); err != nil {
			return err
		}
		for _, alloc := range allocations {
			if err := o.db.UpdateAllocationStatusTx(ctx, tx, alloc.ID, types.AllocationConfirmed); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	distributions, err := o.distributor.Plan(ctx, p, allocations)
	if err != nil {
		return fmt.Errorf("policy orchestrator: plan premium distribution: %w", err)
	}
	return o.distributor.Distribute(ctx, p, distributions)
}

func (o *Orchestrator) validate(in CreatePolicyInputs) error {
	if !in.Tier.Valid() {
		return types.New(types.KindValidation, "unknown tier")
	}
	if !validPeriodDays[in.PeriodDays] {
		return types.New(types.KindValidation, "unrecognized expiration window")
	}
	if in.ProtectionAmountBTC <= 0 {
		return types.New(types.KindValidation, "amount must be positive")
	}
	if in.ProtectedValuePct <= 0 || in.ProtectedValuePct > 100 {
		return types.New(types.KindValidation, "protectedValuePct out of range")
	}
	if !in.CollateralToken.Valid() || !in.SettlementToken.Valid() {
		return types.New(types.KindValidation, "unknown token")
	}
	return nil
}

// settlementRequirement is the worst-case collateral a PUT can demand: the
// full strike notional (strikeUSD·amountBTC), converted into the same unit
// ProviderTierBalance deposits are recorded in (spec §4.7: sats for
// wrapped BTC, micro-STX for native — see events/handlers.go's
// FundsDepositedHandler, which stores the raw on-chain deposit amount
// untouched). The only price feed this backend carries is BTC/USD, so
// that rate is the one used to convert the dollar requirement into
// BTC-denominated sats regardless of which token ultimately collateralizes
// the policy; see DESIGN.md's Open Question decisions for the STX case.
func settlementRequirement(strikeUSD, amountBTC, spotUSD float64) int64 {
	if spotUSD <= 0 {
		return int64(strikeUSD * amountBTC * 1e8)
	}
	worstCaseUSD := strikeUSD * amountBTC
	return int64(math.Round(worstCaseUSD / spotUSD * 1e8))
}

func encodeCreatePolicyArgs(p store.Policy) [][]byte {
	return [][]byte{
		[]byte(p.Owner),
		rightPad([]byte(p.PolicyType), 8),
		rightPad([]byte(p.RiskTier), 32),
		rightPad([]byte("BTC"), 10),
		rightPad([]byte(p.CollateralToken), 32),
		int64Arg(p.StrikeCents),
		int64Arg(p.AmountSats),
		int64Arg(p.ExpirationHeight),
		int64Arg(p.PremiumMicro),
	}
}

func rightPad(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func int64Arg(v int64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v & 0xff)
		v >>= 8
	}
	return out
}

func contractNameOf(fullyQualified string) string {
	for i := len(fullyQualified) - 1; i >= 0; i-- {
		if fullyQualified[i] == '.' {
			return fullyQualified[i+1:]
		}
	}
	return fullyQualified
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
