// Package events implements EventProcessor: per-contract cursor-paged
// polling of chain events with idempotent, topic-dispatched handlers
// (spec §4.11). Grounded on the oracle price-feeder's Start/tick polling
// loop, generalized from "fetch a price" to "page a contract's event log".
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bithedge/backend/internal/telemetry"
	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/chain"
	"github.com/bithedge/backend/internal/policy"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
	"github.com/bithedge/backend/pkg/syncutil"
)

// Handler processes one decoded event payload. Handlers must be
// idempotent on their own — the processor's (txId, event-index) dedup is
// a second layer, not a substitute (spec §4.11).
type Handler func(ctx context.Context, payload json.RawMessage) error

// Processor polls one or more tracked contracts and dispatches their
// events by topic (spec §4.11).
type Processor struct {
	logger      zerolog.Logger
	closer      *syncutil.Closer
	db          *store.DB
	chainClient *chain.Client
	contracts   []string
	handlers    map[string]Handler
	pollInterval time.Duration
	pageSize     int
}

func NewProcessor(logger zerolog.Logger, db *store.DB, chainClient *chain.Client, contracts []string, pollInterval time.Duration, pageSize int) *Processor {
	return &Processor{
		logger:       logger.With().Str("module", "event_processor").Logger(),
		closer:       syncutil.NewCloser(),
		db:           db,
		chainClient:  chainClient,
		contracts:    contracts,
		handlers:     map[string]Handler{},
		pollInterval: pollInterval,
		pageSize:     pageSize,
	}
}

// RegisterHandler binds a topic (event_type) to its handler.
func (p *Processor) RegisterHandler(topic string, handler Handler) {
	p.handlers[topic] = handler
}

func (p *Processor) Start(ctx context.Context) {
	defer p.closer.Finished()
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.closer.Closed():
			return
		case <-ticker.C:
			for _, contract := range p.contracts {
				if err := p.pollContract(ctx, contract); err != nil {
					p.logger.Error().Err(err).Str("contract", contract).Msg("event poll failed")
				}
			}
		}
	}
}

func (p *Processor) Stop() {
	p.closer.Close()
	<-p.closer.Done()
}

// pollContract pages one contract's events starting from its stored
// cursor. The cursor advances only after every event on the page has
// been handled successfully (spec §4.11 last sentence).
func (p *Processor) pollContract(ctx context.Context, contract string) error {
	offset, err := p.db.CursorFor(ctx, contract)
	if err != nil {
		return err
	}

	events, err := p.chainClient.ContractEvents(ctx, contract, p.pageSize, int(offset))
	if err != nil {
		return fmt.Errorf("events: page contract %s: %w", contract, err)
	}
	if len(events) == 0 {
		return nil
	}

	for _, ev := range events {
		if err := p.dispatch(ctx, ev); err != nil {
			return fmt.Errorf("events: handle %s/%d: %w", ev.TxID, ev.EventIndex, err)
		}
	}

	return p.db.AdvanceCursor(ctx, contract, offset+int64(len(events)))
}

func (p *Processor) dispatch(ctx context.Context, ev chain.ContractEvent) error {
	alreadyProcessed, err := p.db.WasProcessed(ctx, ev.TxID, ev.EventIndex)
	if err != nil {
		return err
	}
	if alreadyProcessed {
		telemetry.IncrCounter(1, "events", "replay_skipped")
		return nil
	}

	handler, ok := p.handlers[ev.EventType]
	if !ok {
		p.logger.Debug().Str("event_type", ev.EventType).Msg("no handler registered for event type, skipping")
		return p.db.MarkProcessed(ctx, ev.TxID, ev.EventIndex, time.Now().UnixMilli())
	}

	if err := handler(ctx, ev.Payload); err != nil {
		telemetry.IncrCounter(1, "events", "handler_error")
		return err
	}

	telemetry.IncrCounter(1, "events", "processed")
	return p.db.MarkProcessed(ctx, ev.TxID, ev.EventIndex, time.Now().UnixMilli())
}

// PolicyCreatedPayload is the `policy-created` event's decoded shape
// (spec §6).
type PolicyCreatedPayload struct {
	PolicyID          string `json:"policyId"`
	Owner             string `json:"owner"`
	ExpirationHeight  int64  `json:"expiration"`
	StrikeCents       int64  `json:"strike"`
	AmountSats        int64  `json:"amount"`
}

// NewPolicyCreatedHandler adapts policy.Orchestrator.HandlePolicyCreated
// into an events.Handler, recomputing the correlation key from the
// event payload the same way Orchestrator.CreatePolicy built it.
func NewPolicyCreatedHandler(orchestrator *policy.Orchestrator) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload PolicyCreatedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("policy-created: decode payload: %w", err)
		}
		correlationKey := fmt.Sprintf("%s|%d|%d|%d", payload.Owner, payload.ExpirationHeight, payload.StrikeCents, payload.AmountSats)
		return orchestrator.HandlePolicyCreated(ctx, correlationKey, payload.PolicyID)
	}
}

// FundsDepositedPayload is the `funds-deposited` event's decoded shape
// (spec §6).
type FundsDepositedPayload struct {
	Depositor string      `json:"depositor"`
	Amount    int64       `json:"amount"`
	Token     types.Token `json:"token"`
	Tier      types.Tier  `json:"tier"`
	Height    int64       `json:"height"`
}

// NewFundsDepositedHandler reflects an on-chain deposit into
// ProviderTierBalance (spec §6 LiquidityPool.deposit-{stx,sbtc}).
func NewFundsDepositedHandler(db *store.DB) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload FundsDepositedPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("funds-deposited: decode payload: %w", err)
		}
		return db.UpsertDeposit(ctx, payload.Depositor, payload.Tier, payload.Token, payload.Amount, payload.Height)
	}
}
