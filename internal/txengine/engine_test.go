package txengine

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/bithedge/backend/internal/chain"
	"github.com/bithedge/backend/internal/signer"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/types"
)

// testSignerKey is a well-known test-only secp256k1 private key (hardhat's
// default account #0), never used against a real chain.
const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestTxHashIsDeterministicAnd32Bytes(t *testing.T) {
	payload := []byte("contract.call::func#1")
	h1 := txHash(payload)
	h2 := txHash(payload)
	require.Equal(t, h1, h2)
	require.Len(t, h1, 32, "signer requires an exactly-32-byte digest")
}

func TestEncodeCallIncludesNonceAndArgs(t *testing.T) {
	call := ContractCall{ContractAddress: "ST000", ContractName: "oracle", FunctionName: "submit-price", Args: [][]byte{[]byte("abc")}}
	encoded := encodeCall(call, 7)
	require.Contains(t, string(encoded), "ST000.oracle::submit-price#7")
	require.Contains(t, string(encoded), "abc")
}

func TestMapChainStatus(t *testing.T) {
	require.Equal(t, types.TxConfirmed, mapChainStatus("success"))
	require.Equal(t, types.TxPending, mapChainStatus("pending"))
	require.Equal(t, types.TxFailed, mapChainStatus("failed"))
	require.Equal(t, types.TxFailed, mapChainStatus("abort_by_post_condition"))
	require.Equal(t, types.TxReplaced, mapChainStatus("dropped_replace_by_fee"))
	require.Equal(t, types.TxPending, mapChainStatus("anything_else"))
}

func newTestEngine(t *testing.T, mux *http.ServeMux) (*Engine, *store.DB) {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db, err := store.Open(filepath.Join(t.TempDir(), "txengine_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sgnr, err := signer.New(testSignerKey)
	require.NoError(t, err)

	client := chain.NewClient(server.URL, 5*time.Second, zerolog.New(os.Stdout))
	return NewEngine(zerolog.New(os.Stdout), db, client, sgnr), db
}

// TestSubmitRetriesOnceOnBadNonce covers spec §8 scenario 6: the first
// broadcast is rejected with BadNonce + an expected nonce, the engine
// retries exactly once with that nonce, and the retry succeeds.
func TestSubmitRetriesOnceOnBadNonce(t *testing.T) {
	var broadcastCount int
	expected := uint64(42)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/accounts/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"nonce": 5})
	})
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		broadcastCount++
		if broadcastCount == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":       "rejected",
				"reason":      "BadNonce",
				"reason_data": map[string]any{"expected": expected, "actual": 5},
			})
			return
		}
		_ = json.NewEncoder(w).Encode("0xsuccesstxid")
	})

	engine, _ := newTestEngine(t, mux)
	tx, err := engine.Submit(context.Background(), "convex-1", "submit-price", ContractCall{
		ContractAddress: "ST000", ContractName: "oracle", FunctionName: "submit-price",
	})
	require.NoError(t, err)
	require.Equal(t, 2, broadcastCount, "expected exactly one retry after BadNonce")
	require.Equal(t, types.TxSubmitted, tx.Status)
}

// TestSubmitBadNoncePersistsAfterRetry covers the "retry also rejected"
// branch: the transaction is marked Failed with KindBadNoncePersist.
func TestSubmitBadNoncePersistsAfterRetry(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/accounts/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"nonce": 5})
	})
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":       "rejected",
			"reason":      "BadNonce",
			"reason_data": map[string]any{"expected": 42, "actual": 5},
		})
	})

	engine, db := newTestEngine(t, mux)
	_, err := engine.Submit(context.Background(), "convex-2", "submit-price", ContractCall{
		ContractAddress: "ST000", ContractName: "oracle", FunctionName: "submit-price",
	})
	require.Error(t, err)
	kind, ok := types.KindOf(err)
	require.True(t, ok)
	require.Equal(t, types.KindBadNoncePersist, kind)

	stored, found, err := db.GetTransaction(context.Background(), "convex-2")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, types.TxFailed, stored.Status)
}
