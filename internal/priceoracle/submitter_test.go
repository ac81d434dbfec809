package priceoracle

import (
	"context"
	"encoding/binary"
	"encoding/hex"
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
	"github.com/bithedge/backend/internal/txengine"
)

// testSignerKey is a well-known test-only secp256k1 private key (hardhat's
// default account #0), never used against a real chain.
const testSignerKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

// encodeClarityOkPrice builds the hex-encoded `(ok {price, timestamp})`
// response decodeClarityPriceResponse expects (internal/chain/oracle.go).
func encodeClarityOkPrice(priceSats, timestampMs int64) string {
	data := make([]byte, 17)
	data[0] = 0x07
	binary.BigEndian.PutUint64(data[1:9], uint64(priceSats))
	binary.BigEndian.PutUint64(data[9:17], uint64(timestampMs))
	return "0x" + hex.EncodeToString(data)
}

func newTestOracleSubmitter(t *testing.T, readMux func(w http.ResponseWriter, r *http.Request)) (*OracleSubmitter, *store.DB, *string) {
	t.Helper()
	var lastCallReadPath string

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/accounts/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"nonce": 1})
	})
	mux.HandleFunc("/v2/contracts/call-read/", func(w http.ResponseWriter, r *http.Request) {
		lastCallReadPath = r.URL.Path
		readMux(w, r)
	})
	mux.HandleFunc("/v2/transactions", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode("0xsubmittedtxid")
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	db, err := store.Open(filepath.Join(t.TempDir(), "submitter_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sgnr, err := signer.New(testSignerKey)
	require.NoError(t, err)

	client := chain.NewClient(server.URL, 5*time.Second, zerolog.New(os.Stdout))
	engine := txengine.NewEngine(zerolog.New(os.Stdout), db, client, sgnr)

	submitter := NewOracleSubmitter(zerolog.New(os.Stdout), db, client, engine,
		"ST000.oracle", "ST000", Thresholds{MinSourceCount: 1, MinPctChange: 1.0, MinInterval: 0, MaxInterval: time.Hour})

	return submitter, db, &lastCallReadPath
}

// TestCheckAndSubmitInitialUsesCorrectOracleFunctionNames covers the
// "NoData" branch (spec §6: Oracle.get-latest-price / Oracle.set-aggregated-price).
func TestCheckAndSubmitInitialUsesCorrectOracleFunctionNames(t *testing.T) {
	submitter, db, lastPath := newTestOracleSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		// Clarity-level (err u104): execution succeeded (okay=true), the
		// contract's own response is the OracleErrNoData tagged error.
		_ = json.NewEncoder(w).Encode(map[string]any{"okay": true, "result": "0x0800000068"})
	})
	ctx := context.Background()

	_, err := db.InsertAggregatedPrice(ctx, store.AggregatedPrice{PriceUSDMicro: 50_000_000_000, TimestampMs: time.Now().UnixMilli(), SourceCount: 3})
	require.NoError(t, err)

	require.NoError(t, submitter.CheckAndSubmit(ctx))
	require.Contains(t, *lastPath, "get-latest-price", "must read via Oracle.get-latest-price per spec §6, not a renamed function")

	subs, err := db.LatestOracleSubmission(ctx)
	require.NoError(t, err)
	require.Equal(t, "initial", subs.Reason)
	require.Equal(t, float64(0), subs.PercentChange, "no prior on-chain price to diff against")
}

// TestCheckAndSubmitThresholdPersistsPercentChange covers the percent-change
// bug: the stored submission must carry the same pctChange used to decide
// to submit, not a hardcoded zero.
func TestCheckAndSubmitThresholdPersistsPercentChange(t *testing.T) {
	onChainPriceSats := int64(50000 * 1e8)
	onChainTimestamp := time.Now().Add(-time.Hour).UnixMilli()

	submitter, db, lastPath := newTestOracleSubmitter(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"okay": true, "result": encodeClarityOkPrice(onChainPriceSats, onChainTimestamp)})
	})
	ctx := context.Background()

	_, err := db.InsertAggregatedPrice(ctx, store.AggregatedPrice{PriceUSDMicro: 51_000_000_000, TimestampMs: time.Now().UnixMilli(), SourceCount: 3})
	require.NoError(t, err)

	require.NoError(t, submitter.CheckAndSubmit(ctx))
	require.Contains(t, *lastPath, "get-latest-price")

	subs, err := db.LatestOracleSubmission(ctx)
	require.NoError(t, err)
	require.Equal(t, "threshold", subs.Reason)
	require.InDelta(t, 2.0, subs.PercentChange, 1e-6, "(51000-50000)/50000*100 = 2%")
}
