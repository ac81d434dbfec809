// Package chain implements the HTTP client for the Stacks-style chain RPC
// surface the backend talks to: tip height, account nonce, contract-call
// broadcast, transaction status, and contract event paging (spec §4.6,
// §6). Shape follows the price-feeder's oracle/client package — one
// client struct wrapping a single HTTP connection with a logger and a
// per-call timeout — generalized from Hedera's topic-submit RPC to
// Stacks' plain JSON-over-HTTP node API.
package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/types"
)

// Client talks to one Stacks node's HTTP API.
type Client struct {
	apiURL     string
	httpClient *http.Client
	logger     zerolog.Logger
}

func NewClient(apiURL string, timeout time.Duration, logger zerolog.Logger) *Client {
	return &Client{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("module", "chain_client").Logger(),
	}
}

// TipHeight reads the chain tip from GET /v2/info.
func (c *Client) TipHeight(ctx context.Context) (uint64, error) {
	var resp struct {
		StacksTipHeight uint64 `json:"stacks_tip_height"`
	}
	if err := c.getJSON(ctx, "/v2/info", &resp); err != nil {
		return 0, fmt.Errorf("chain: tip height: %w", err)
	}
	return resp.StacksTipHeight, nil
}

// AccountNonce reads the next usable nonce for addr via
// GET /v2/accounts/{addr}?proof=0 (spec §4.6 step 1).
func (c *Client) AccountNonce(ctx context.Context, addr string) (uint64, error) {
	var resp struct {
		Nonce uint64 `json:"nonce"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("/v2/accounts/%s?proof=0", addr), &resp); err != nil {
		return 0, fmt.Errorf("chain: account nonce: %w", err)
	}
	return resp.Nonce, nil
}

// BroadcastResult is the node's response to a raw transaction POST.
// Success carries TxID; failure carries Reason/ReasonData so the caller
// can detect BadNonce (spec §4.6 step 5).
type BroadcastResult struct {
	TxID          string
	Error         string
	Reason        string
	ExpectedNonce *uint64
}

// Broadcast POSTs a signed, serialized transaction to the node's
// broadcast endpoint.
func (c *Client) Broadcast(ctx context.Context, rawTx []byte) (BroadcastResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/v2/transactions", bytes.NewReader(rawTx))
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("chain: build broadcast request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return BroadcastResult{}, types.Wrap(types.KindChainRejected, "broadcast request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return BroadcastResult{}, fmt.Errorf("chain: read broadcast response: %w", err)
	}

	if resp.StatusCode == http.StatusOK {
		var txid string
		if err := json.Unmarshal(body, &txid); err == nil && txid != "" {
			return BroadcastResult{TxID: txid}, nil
		}
	}

	var errResp struct {
		Error      string `json:"error"`
		Reason     string `json:"reason"`
		ReasonData struct {
			Expected *uint64 `json:"expected"`
			Actual   *uint64 `json:"actual"`
		} `json:"reason_data"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return BroadcastResult{}, types.New(types.KindChainRejected, fmt.Sprintf("broadcast rejected, unparseable body: %s", string(body)))
	}
	return BroadcastResult{Error: errResp.Error, Reason: errResp.Reason, ExpectedNonce: errResp.ReasonData.Expected}, nil
}

// TxStatus is the chain-reported lifecycle of one broadcast transaction.
type TxStatus struct {
	Found       bool
	RawStatus   string
	BlockHeight *uint64
}

// TransactionStatus performs the GET /extended/v1/tx/{txid} lookup
// checkTransactionStatus needs (spec §4.6): a 404 is reported as
// Found=false rather than an error so the caller can treat it as Pending.
func (c *Client) TransactionStatus(ctx context.Context, txID string) (TxStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+"/extended/v1/tx/"+txID, nil)
	if err != nil {
		return TxStatus{}, fmt.Errorf("chain: build status request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TxStatus{}, fmt.Errorf("chain: status request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return TxStatus{Found: false}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return TxStatus{}, fmt.Errorf("chain: read status response: %w", err)
	}
	var parsed struct {
		TxStatus    string  `json:"tx_status"`
		BlockHeight *uint64 `json:"block_height"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return TxStatus{}, fmt.Errorf("chain: decode status response: %w", err)
	}
	return TxStatus{Found: true, RawStatus: parsed.TxStatus, BlockHeight: parsed.BlockHeight}, nil
}

// ContractEvent is one row from the contract event-paging endpoint.
type ContractEvent struct {
	TxID       string          `json:"tx_id"`
	EventIndex int             `json:"event_index"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"contract_log"`
}

// ContractEvents pages GET /extended/v1/address/{contract}/events
// (spec §4.6, §4.11).
func (c *Client) ContractEvents(ctx context.Context, contract string, limit, offset int) ([]ContractEvent, error) {
	var resp struct {
		Results []ContractEvent `json:"results"`
	}
	path := fmt.Sprintf("/extended/v1/address/%s/events?limit=%d&offset=%d", contract, limit, offset)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, fmt.Errorf("chain: contract events: %w", err)
	}
	return resp.Results, nil
}

// ReadOnlyCall performs a read-only contract call via
// POST /v2/contracts/call-read/{address}/{contract}/{function}, used by
// OracleSubmitter's readLatestOnChain (through ReadLatestOraclePrice) and
// ExpirationScheduler's historical price lookup. The raw Clarity-encoded result is returned for the caller to
// decode into a types.Result[T].
func (c *Client) ReadOnlyCall(ctx context.Context, address, contractName, functionName string, sender string, args [][]byte) ([]byte, error) {
	body, err := json.Marshal(struct {
		Sender    string   `json:"sender"`
		Arguments []string `json:"arguments"`
	}{Sender: sender, Arguments: hexEncodeAll(args)})
	if err != nil {
		return nil, fmt.Errorf("chain: encode read-only call: %w", err)
	}

	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s", address, contractName, functionName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("chain: build read-only call: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chain: read-only call failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chain: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("chain: read-only call http %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed struct {
		Okay  bool   `json:"okay"`
		Result string `json:"result"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("chain: decode read-only response: %w", err)
	}
	if !parsed.Okay {
		return nil, fmt.Errorf("chain: read-only call returned not-okay")
	}
	return []byte(parsed.Result), nil
}

func hexEncodeAll(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = fmt.Sprintf("0x%x", a)
	}
	return out
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
