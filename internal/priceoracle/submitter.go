package priceoracle

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/bithedge/backend/internal/telemetry"
	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/chain"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/txengine"
	"github.com/bithedge/backend/internal/types"
)

// Thresholds configures OracleSubmitter's decision tree (spec §4.4).
type Thresholds struct {
	MinSourceCount int
	MinPctChange   float64
	MinInterval    time.Duration
	MaxInterval    time.Duration
}

// OracleSubmitter decides whether the latest AggregatedPrice warrants an
// on-chain write and, if so, submits it through the TransactionEngine
// (spec §4.4).
type OracleSubmitter struct {
	logger         zerolog.Logger
	db             *store.DB
	chainClient    *chain.Client
	engine         *txengine.Engine
	oracleContract string
	senderAddr     string
	thresholds     Thresholds
}

func NewOracleSubmitter(logger zerolog.Logger, db *store.DB, chainClient *chain.Client, engine *txengine.Engine, oracleContract, senderAddr string, thresholds Thresholds) *OracleSubmitter {
	return &OracleSubmitter{
		logger:         logger.With().Str("module", "oracle_submitter").Logger(),
		db:             db,
		chainClient:    chainClient,
		engine:         engine,
		oracleContract: oracleContract,
		senderAddr:     senderAddr,
		thresholds:     thresholds,
	}
}

// CheckAndSubmit implements checkAndSubmit() (spec §4.4 steps 1-7).
func (s *OracleSubmitter) CheckAndSubmit(ctx context.Context) error {
	latest, found, err := s.db.LatestAggregatedPrice(ctx)
	if err != nil {
		return err
	}
	if !found {
		s.logger.Debug().Msg("no aggregated price yet, skipping")
		return nil
	}

	if latest.SourceCount < s.thresholds.MinSourceCount {
		s.skip(ctx, "insufficient sources")
		return nil
	}

	onChain := s.chainClient.ReadLatestOraclePrice(ctx, s.oracleContract, s.senderAddr)
	if !onChain.IsOk() {
		code, _ := onChain.ErrCode()
		if code == types.OracleErrNoData {
			return s.submit(ctx, latest, "initial", 0)
		}
		s.skip(ctx, "on-chain read failed")
		return nil
	}
	current, _ := onChain.Unwrap()

	elapsed := time.Since(time.UnixMilli(current.TimestampMs))
	if elapsed < s.thresholds.MinInterval {
		s.skip(ctx, "below minimum interval")
		return nil
	}

	onChainUSD := float64(current.PriceSats) / 1e8
	latestUSD := microToFloat(latest.PriceUSDMicro)
	pctChange := math.Abs(latestUSD-onChainUSD) / onChainUSD * 100

	if pctChange >= s.thresholds.MinPctChange {
		return s.submit(ctx, latest, "threshold", pctChange)
	}
	if elapsed >= s.thresholds.MaxInterval {
		return s.submit(ctx, latest, "heartbeat", pctChange)
	}

	s.skip(ctx, "below threshold")
	return nil
}

func (s *OracleSubmitter) skip(ctx context.Context, reason string) {
	telemetry.IncrCounter(1, "oracle_submitter", "skip")
	s.logger.Debug().Str("reason", reason).Msg("skip")
}

func (s *OracleSubmitter) submit(ctx context.Context, price store.AggregatedPrice, reason string, pctChange float64) error {
	priceSats := int64(math.Round(microToFloat(price.PriceUSDMicro) * 1e8))

	convexID := fmt.Sprintf("oracle-submit-%d", price.TimestampMs)
	call := txengine.ContractCall{
		ContractAddress: s.senderAddr,
		ContractName:    contractNameOf(s.oracleContract),
		FunctionName:    "set-aggregated-price",
		Args:            [][]byte{uint64ToClarityArg(priceSats)},
	}

	tx, err := s.engine.Submit(ctx, convexID, "oracle-submit-price", call)
	if err != nil {
		telemetry.IncrCounter(1, "oracle_submitter", "submit_error")
		return fmt.Errorf("oracle submitter: submit: %w", err)
	}

	sub := store.OracleSubmission{
		TxID:               derefOrEmpty(tx.ChainTxID),
		SubmittedPriceSats: priceSats,
		Reason:             reason,
		SourceCount:        price.SourceCount,
		PercentChange:      pctChange,
		Status:             types.OracleSubmissionSubmitted,
		CreatedAtMs:        time.Now().UnixMilli(),
	}
	if err := s.db.InsertOracleSubmission(ctx, sub); err != nil {
		return fmt.Errorf("oracle submitter: persist submission: %w", err)
	}

	telemetry.IncrCounter(1, "oracle_submitter", "submitted")
	s.logger.Info().Str("reason", reason).Int64("price_sats", priceSats).Msg("submitted on-chain price")
	return nil
}

func contractNameOf(fullyQualified string) string {
	for i := len(fullyQualified) - 1; i >= 0; i-- {
		if fullyQualified[i] == '.' {
			return fullyQualified[i+1:]
		}
	}
	return fullyQualified
}

func uint64ToClarityArg(v int64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v & 0xff)
		v >>= 8
	}
	return out
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
