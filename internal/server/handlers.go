package server

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/allocator"
	"github.com/bithedge/backend/internal/policy"
	"github.com/bithedge/backend/internal/quote"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/txengine"
	"github.com/bithedge/backend/internal/types"
)

// Handler implements every RPC named in spec §6.
type Handler struct {
	logger       zerolog.Logger
	db           *store.DB
	quoteEngine  *quote.Engine
	orchestrator *policy.Orchestrator
	allocator    *allocator.Allocator
	engine       *txengine.Engine
}

func NewHandler(logger zerolog.Logger, db *store.DB, quoteEngine *quote.Engine, orchestrator *policy.Orchestrator, alloc *allocator.Allocator, engine *txengine.Engine) *Handler {
	return &Handler{
		logger:       logger.With().Str("module", "rpc_handler").Logger(),
		db:           db,
		quoteEngine:  quoteEngine,
		orchestrator: orchestrator,
		allocator:    alloc,
		engine:       engine,
	}
}

// RegisterRoutes wires every RPC to its path (spec §6).
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/v1/quotes/buyer-premium", h.handleBuyerPremiumQuote).Methods("POST")
	r.HandleFunc("/api/v1/quotes/provider-yield", h.handleProviderYieldQuote).Methods("POST")
	r.HandleFunc("/api/v1/policies", h.handleCreatePolicy).Methods("POST")
	r.HandleFunc("/api/v1/policies/{policyId}", h.handleGetPolicy).Methods("GET")
	r.HandleFunc("/api/v1/capital/commit", h.handleCommitCapital).Methods("POST")
	r.HandleFunc("/api/v1/capital/withdraw", h.handleWithdrawCapital).Methods("POST")
	r.HandleFunc("/api/v1/transactions/{convexId}", h.handleGetTransactionStatus).Methods("GET")
	r.HandleFunc("/api/v1/providers/{address}/balances", h.handleListProviderBalances).Methods("GET")
	r.HandleFunc("/api/v1/health", h.handleHealth).Methods("GET")
}

// BuyerPremiumQuoteRequest is getBuyerPremiumQuote's wire request.
type BuyerPremiumQuoteRequest struct {
	ProtectedValuePct    float64  `json:"protectedValuePct"`
	ProtectionAmountBTC  float64  `json:"protectionAmountBTC"`
	ExpirationDays       int      `json:"expirationDays"`
	PolicyType           string   `json:"policyType"`
	CurrentPriceOverride *float64 `json:"currentPriceOverride,omitempty"`
	IncludeScenarios     bool     `json:"includeScenarios"`
}

func (h *Handler) handleBuyerPremiumQuote(w http.ResponseWriter, r *http.Request) {
	var req BuyerPremiumQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	policyType := types.PolicyTypePut
	if req.PolicyType != "" {
		policyType = types.PolicyType(req.PolicyType)
	}

	result, err := h.quoteEngine.GetBuyerPremiumQuote(r.Context(), quoteBuyerInputs(req, policyType))
	if err != nil {
		h.writeTypedError(w, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"quote": result})
}

func quoteBuyerInputs(req BuyerPremiumQuoteRequest, policyType types.PolicyType) quote.BuyerPremiumInputs {
	return quote.BuyerPremiumInputs{
		ProtectedValuePct:    req.ProtectedValuePct,
		ProtectionAmountBTC:  req.ProtectionAmountBTC,
		ExpirationDays:       req.ExpirationDays,
		PolicyType:           policyType,
		CurrentPriceOverride: req.CurrentPriceOverride,
		IncludeScenarios:     req.IncludeScenarios,
	}
}

// ProviderYieldQuoteRequest is getProviderYieldQuote's wire request.
type ProviderYieldQuoteRequest struct {
	CommitmentUSD float64 `json:"commitmentUSD"`
	Tier          string  `json:"tier"`
	PeriodDays    int     `json:"periodDays"`
}

func (h *Handler) handleProviderYieldQuote(w http.ResponseWriter, r *http.Request) {
	var req ProviderYieldQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier := types.Tier(req.Tier)
	if !tier.Valid() {
		h.writeError(w, http.StatusBadRequest, "unknown tier")
		return
	}

	result, err := h.quoteEngine.GetProviderYieldQuote(r.Context(), quote.ProviderYieldInputs{
		CommitmentUSD: req.CommitmentUSD,
		Tier:          tier,
		PeriodDays:    req.PeriodDays,
	})
	if err != nil {
		h.writeTypedError(w, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"quote": result})
}

// CreatePolicyRequest is createPolicy's wire request (spec §4.6, §6).
type CreatePolicyRequest struct {
	Owner               string  `json:"owner"`
	Tier                string  `json:"tier"`
	ProtectedValuePct   float64 `json:"protectedValuePct"`
	ProtectionAmountBTC float64 `json:"protectionAmountBTC"`
	PeriodDays          int     `json:"periodDays"`
	CollateralToken     string  `json:"collateralToken"`
	SettlementToken     string  `json:"settlementToken"`
	CurrentHeight       int64   `json:"currentHeight"`
}

func (h *Handler) handleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.orchestrator.CreatePolicy(r.Context(), policy.CreatePolicyInputs{
		Owner:               req.Owner,
		Tier:                types.Tier(req.Tier),
		ProtectedValuePct:   req.ProtectedValuePct,
		ProtectionAmountBTC: req.ProtectionAmountBTC,
		PeriodDays:          req.PeriodDays,
		CollateralToken:     types.Token(req.CollateralToken),
		SettlementToken:     types.Token(req.SettlementToken),
		CurrentHeight:       req.CurrentHeight,
	})
	if err != nil {
		h.writeTypedError(w, err)
		return
	}
	h.writeSuccess(w, map[string]interface{}{"policyId": result.PolicyID, "txId": result.TxID})
}

func (h *Handler) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	policyID := mux.Vars(r)["policyId"]
	p, found, err := h.db.GetPolicy(r.Context(), policyID)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		h.writeError(w, http.StatusNotFound, "policy not found")
		return
	}
	h.writeSuccess(w, map[string]interface{}{"policy": p})
}

func (h *Handler) handleGetTransactionStatus(w http.ResponseWriter, r *http.Request) {
	convexID := mux.Vars(r)["convexId"]
	status, err := h.engine.CheckStatus(r.Context(), convexID)
	if err != nil {
		h.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.writeSuccess(w, map[string]interface{}{"convexId": convexID, "status": status})
}

// CommitCapitalRequest is commitCapital's wire request (spec §6).
// LiquidityPool.deposit-{stx,sbtc} is the on-chain half of this flow;
// the off-chain row is reflected once the matching funds-deposited
// event lands (events.NewFundsDepositedHandler), so this endpoint only
// reports the provider's current balance back, it does not itself
// mutate state.
type CommitCapitalRequest struct {
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
	Token    string `json:"token"`
}

func (h *Handler) handleCommitCapital(w http.ResponseWriter, r *http.Request) {
	var req CommitCapitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	balances, err := h.db.BalancesForProvider(r.Context(), req.Provider)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeSuccess(w, map[string]interface{}{
		"message":  "commitment confirmed once the on-chain deposit transaction lands",
		"balances": balances,
	})
}

// WithdrawCapitalRequest is withdrawCapital's wire request (spec §6).
type WithdrawCapitalRequest struct {
	Provider string `json:"provider"`
	Tier     string `json:"tier"`
	Token    string `json:"token"`
	Amount   int64  `json:"amount"`
}

func (h *Handler) handleWithdrawCapital(w http.ResponseWriter, r *http.Request) {
	var req WithdrawCapitalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tier := types.Tier(req.Tier)
	token := types.Token(req.Token)
	if !tier.Valid() || !token.Valid() || req.Amount <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid tier, token, or amount")
		return
	}
	if err := h.db.Withdraw(r.Context(), req.Provider, tier, token, req.Amount); err != nil {
		h.writeError(w, http.StatusConflict, err.Error())
		return
	}
	h.writeSuccess(w, map[string]interface{}{"withdrawn": req.Amount})
}

func (h *Handler) handleListProviderBalances(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	balances, err := h.db.BalancesForProvider(r.Context(), address)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeSuccess(w, map[string]interface{}{"balances": balances})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (h *Handler) writeSuccess(w http.ResponseWriter, data map[string]interface{}) {
	data["success"] = true
	h.writeJSON(w, http.StatusOK, data)
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}

// writeTypedError maps a types.Kind to an HTTP status the way spec §7's
// error taxonomy intends: client-caused kinds map to 4xx, everything
// else is a 500 with the kind surfaced for the caller to branch on.
func (h *Handler) writeTypedError(w http.ResponseWriter, err error) {
	kind, ok := types.KindOf(err)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	status := http.StatusInternalServerError
	switch kind {
	case types.KindValidation:
		status = http.StatusBadRequest
	case types.KindInsufficientLiq, types.KindStalePrice, types.KindNoPriceData, types.KindStale:
		status = http.StatusConflict
	}
	h.writeJSON(w, status, map[string]interface{}{
		"success": false,
		"kind":    string(kind),
		"error":   err.Error(),
	})
}
