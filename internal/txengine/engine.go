// Package txengine builds, signs, broadcasts, and reconciles every
// outbound on-chain call the backend makes, serializing nonce
// acquisition per sender and absorbing a single BadNonce retry
// (spec §4.6, §4.10). Grounded on the oracle price-feeder's tick loop for
// the "serialize through one owner" idiom, generalized from a
// fire-and-forget topic submit into a full build/sign/broadcast/poll
// cycle against a Stacks-style node.
package txengine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tendermint/tendermint/crypto/tmhash"

	"github.com/bithedge/backend/internal/chain"
	"github.com/bithedge/backend/internal/signer"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/telemetry"
	"github.com/bithedge/backend/internal/types"
)

// ContractCall is the unsigned description of one outbound call; callers
// (PolicyOrchestrator, PremiumDistributor, ExpirationScheduler) build this
// and hand it to the engine.
type ContractCall struct {
	ContractAddress string
	ContractName    string
	FunctionName    string
	Args            [][]byte
	PostConditions  []byte // caller-provided list, empty = none
	DenyMode        bool   // false = Allow (default), true = Deny
}

// Engine owns the backend's single signer and serializes nonce
// acquisition across every call (spec §4.10 invariant: "two parallel
// submissions cannot reuse a nonce").
type Engine struct {
	logger       zerolog.Logger
	db           *store.DB
	chainClient  *chain.Client
	signer       *signer.Signer
	senderNonce  sync.Mutex // held for the duration of one build-sign-broadcast
	nextNonce    *uint64
}

func NewEngine(logger zerolog.Logger, db *store.DB, chainClient *chain.Client, sgnr *signer.Signer) *Engine {
	return &Engine{
		logger:      logger.With().Str("module", "tx_engine").Logger(),
		db:          db,
		chainClient: chainClient,
		signer:      sgnr,
	}
}

// Submit implements buildSignBroadcast (spec §4.6 steps 1-5): it creates
// the Transaction row, serializes the call, signs it, broadcasts it, and
// retries exactly once on BadNonce before giving up.
func (e *Engine) Submit(ctx context.Context, convexID, kind string, call ContractCall) (store.Transaction, error) {
	defer telemetry.MeasureSince(time.Now(), "txengine", "submit")

	e.senderNonce.Lock()
	defer e.senderNonce.Unlock()

	nonce, err := e.resolveNonce(ctx)
	if err != nil {
		return store.Transaction{}, types.Wrap(types.KindChainRejected, "resolve nonce", err)
	}

	now := time.Now().UnixMilli()
	nonceVal := int64(nonce)
	txRow := store.Transaction{
		ConvexID:    convexID,
		Kind:        kind,
		Payload:     fmt.Sprintf("%s.%s::%s", call.ContractAddress, call.ContractName, call.FunctionName),
		Status:      types.TxPending,
		Nonce:       &nonceVal,
		CreatedAtMs: now,
		UpdatedAtMs: now,
	}
	if err := e.db.InsertTransaction(ctx, txRow); err != nil {
		return store.Transaction{}, fmt.Errorf("txengine: persist pending transaction: %w", err)
	}

	result, err := e.buildSignBroadcast(ctx, call, nonce)
	if err != nil {
		telemetry.IncrCounter(1, "txengine", "broadcast_error")
		_ = e.db.UpdateTransactionStatus(ctx, convexID, types.TxFailed, nil, strPtr(err.Error()), time.Now().UnixMilli())
		return store.Transaction{}, err
	}

	if result.Reason == "BadNonce" && result.ExpectedNonce != nil {
		e.logger.Warn().Str("convex_id", convexID).Uint64("expected_nonce", *result.ExpectedNonce).Msg("bad nonce, retrying once")
		retryResult, retryErr := e.buildSignBroadcast(ctx, call, *result.ExpectedNonce)
		if retryErr != nil || retryResult.Error != "" {
			telemetry.IncrCounter(1, "txengine", "bad_nonce_persistence")
			_ = e.db.UpdateTransactionStatus(ctx, convexID, types.TxFailed, nil, strPtr("BadNoncePersistence"), time.Now().UnixMilli())
			return store.Transaction{}, types.New(types.KindBadNoncePersist, "nonce retry also rejected")
		}
		if err := e.db.RecordRetry(ctx, convexID, int64(*result.ExpectedNonce), time.Now().UnixMilli()); err != nil {
			return store.Transaction{}, err
		}
		e.rememberNonce(*result.ExpectedNonce + 1)
		return e.markSubmitted(ctx, convexID, retryResult.TxID)
	}

	if result.Error != "" {
		telemetry.IncrCounter(1, "txengine", "chain_rejected")
		_ = e.db.UpdateTransactionStatus(ctx, convexID, types.TxFailed, nil, strPtr(result.Error), time.Now().UnixMilli())
		return store.Transaction{}, types.New(types.KindChainRejected, result.Error)
	}

	e.rememberNonce(nonce + 1)
	return e.markSubmitted(ctx, convexID, result.TxID)
}

func (e *Engine) markSubmitted(ctx context.Context, convexID, chainTxID string) (store.Transaction, error) {
	if err := e.db.UpdateTransactionStatus(ctx, convexID, types.TxSubmitted, &chainTxID, nil, time.Now().UnixMilli()); err != nil {
		return store.Transaction{}, err
	}
	tx, _, err := e.db.GetTransaction(ctx, convexID)
	return tx, err
}

func (e *Engine) buildSignBroadcast(ctx context.Context, call ContractCall, nonce uint64) (chain.BroadcastResult, error) {
	payload := encodeCall(call, nonce)
	sig, err := e.signer.Sign(txHash(payload))
	if err != nil {
		return chain.BroadcastResult{}, fmt.Errorf("txengine: sign: %w", err)
	}
	raw := append(sig, payload...)
	return e.chainClient.Broadcast(ctx, raw)
}

// txHash hashes a serialized call payload before signing, the same way
// GetAggregateVoteHash hashes its vote payload before it goes on-chain.
func txHash(payload []byte) []byte {
	h := tmhash.New()
	_, _ = h.Write(payload)
	return h.Sum(nil)
}

// resolveNonce returns the next nonce to use: the locally cached
// in-flight value if one is pending, else a fresh RPC lookup
// (spec §4.6 step 1).
func (e *Engine) resolveNonce(ctx context.Context) (uint64, error) {
	if e.nextNonce != nil {
		return *e.nextNonce, nil
	}
	nonce, err := e.chainClient.AccountNonce(ctx, e.signer.Address())
	if err != nil {
		return 0, err
	}
	return nonce, nil
}

func (e *Engine) rememberNonce(n uint64) { e.nextNonce = &n }

// encodeCall serializes a contract call into the wire payload the node
// expects to see signed. The concrete Clarity argument encoding is out of
// scope here; callers are responsible for passing pre-encoded Args.
func encodeCall(call ContractCall, nonce uint64) []byte {
	buf := []byte(fmt.Sprintf("%s.%s::%s#%d", call.ContractAddress, call.ContractName, call.FunctionName, nonce))
	for _, a := range call.Args {
		buf = append(buf, a...)
	}
	buf = append(buf, call.PostConditions...)
	return buf
}

// CheckStatus implements checkTransactionStatus (spec §4.6, §4.10): maps
// the node's raw tx_status to the backend's monotone TxStatus lattice.
func (e *Engine) CheckStatus(ctx context.Context, convexID string) (types.TxStatus, error) {
	tx, found, err := e.db.GetTransaction(ctx, convexID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("txengine: unknown transaction %s", convexID)
	}
	if tx.ChainTxID == nil {
		return tx.Status, nil
	}

	chainStatus, err := e.chainClient.TransactionStatus(ctx, *tx.ChainTxID)
	if err != nil {
		return "", fmt.Errorf("txengine: status lookup: %w", err)
	}
	if !chainStatus.Found {
		return types.TxPending, nil
	}

	newStatus := mapChainStatus(chainStatus.RawStatus)
	if newStatus != tx.Status && types.CanAdvanceTx(tx.Status, newStatus) {
		if err := e.db.UpdateTransactionStatus(ctx, convexID, newStatus, tx.ChainTxID, nil, time.Now().UnixMilli()); err != nil {
			return "", err
		}
	}
	return newStatus, nil
}

func mapChainStatus(raw string) types.TxStatus {
	switch raw {
	case "success":
		return types.TxConfirmed
	case "pending":
		return types.TxPending
	case "failed", "abort_by_post_condition":
		return types.TxFailed
	case "dropped_replace_by_fee":
		return types.TxReplaced
	default:
		return types.TxPending
	}
}

func strPtr(s string) *string { return &s }
