// Package expiration implements ExpirationScheduler: batching Active
// policies past their expiration height, resolving ITM/OTM against a
// single historical on-chain price per height group, and driving
// settlement or release (spec §4.9).
package expiration

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/bithedge/backend/internal/allocator"
	"github.com/bithedge/backend/internal/chain"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/txengine"
	"github.com/bithedge/backend/pkg/syncutil"
)

// Scheduler implements spec §4.9.
type Scheduler struct {
	logger         zerolog.Logger
	closer         *syncutil.Closer
	db             *store.DB
	chainClient    *chain.Client
	engine         *txengine.Engine
	allocator      *allocator.Allocator
	oracleContract string
	registry       string
	interval       time.Duration
	batchSize      int
}

func NewScheduler(logger zerolog.Logger, db *store.DB, chainClient *chain.Client, engine *txengine.Engine, alloc *allocator.Allocator, oracleContract, registryContract string, interval time.Duration, batchSize int) *Scheduler {
	return &Scheduler{
		logger:         logger.With().Str("module", "expiration_scheduler").Logger(),
		closer:         syncutil.NewCloser(),
		db:             db,
		chainClient:    chainClient,
		engine:         engine,
		allocator:      alloc,
		oracleContract: oracleContract,
		registry:       registryContract,
		interval:       interval,
		batchSize:      batchSize,
	}
}

func (s *Scheduler) Start(ctx context.Context, tipHeightFn func(ctx context.Context) (uint64, error)) {
	defer s.closer.Finished()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closer.Closed():
			return
		case <-ticker.C:
			height, err := tipHeightFn(ctx)
			if err != nil {
				s.logger.Warn().Err(err).Msg("tip height lookup failed, skipping this tick")
				continue
			}
			if err := s.RunBatch(ctx, int64(height)); err != nil {
				s.logger.Error().Err(err).Msg("expiration batch failed")
			}
		}
	}
}

func (s *Scheduler) Stop() {
	s.closer.Close()
	<-s.closer.Done()
}

// RunBatch implements spec §4.9 steps 1-6 for one scheduler tick.
func (s *Scheduler) RunBatch(ctx context.Context, currentHeight int64) error {
	policies, err := s.db.ActiveExpiringBy(ctx, currentHeight, s.batchSize)
	if err != nil {
		return err
	}
	if len(policies) == 0 {
		return nil
	}

	byHeight := map[int64][]store.Policy{}
	for _, p := range policies {
		byHeight[p.ExpirationHeight] = append(byHeight[p.ExpirationHeight], p)
	}

	for height, group := range byHeight {
		spotAtExpiry, err := s.priceAtHeight(ctx, height)
		if err != nil {
			s.logger.Error().Err(err).Int64("height", height).Msg("could not fetch historical price, skipping group")
			continue
		}
		for _, p := range group {
			if err := s.resolveOne(ctx, p, spotAtExpiry); err != nil {
				s.logger.Error().Err(err).Str("policy_id", p.ID).Msg("failed to resolve expiring policy")
			}
		}
	}
	return nil
}

func (s *Scheduler) priceAtHeight(ctx context.Context, height int64) (int64, error) {
	parts := splitContract(s.oracleContract)
	raw, err := s.chainClient.ReadOnlyCall(ctx, parts[0], parts[1], "get-bitcoin-price-at-height", parts[0], [][]byte{heightArg(height)})
	if err != nil {
		return 0, err
	}
	return decodePriceSats(raw)
}

// resolveOne implements spec §4.9 steps 3-5 for one policy.
func (s *Scheduler) resolveOne(ctx context.Context, p store.Policy, spotAtExpirySats int64) error {
	strikeSats := int64(float64(p.StrikeCents) / 100 * 1e8)
	itm := spotAtExpirySats < strikeSats

	if !itm {
		return s.expireOTM(ctx, p)
	}
	return s.exerciseITM(ctx, p, strikeSats, spotAtExpirySats)
}

func (s *Scheduler) expireOTM(ctx context.Context, p store.Policy) error {
	convexID := fmt.Sprintf("expire-policy-%s", p.ID)
	call := txengine.ContractCall{
		ContractAddress: s.registry,
		ContractName:    contractNameOf(s.registry),
		FunctionName:    "update-policy-status",
		Args:            [][]byte{[]byte(p.ID), statusCodeArg(2)}, // 2 = Expired
	}
	if _, err := s.engine.Submit(ctx, convexID, "update-policy-status", call); err != nil {
		return err
	}
	return s.allocator.Release(ctx, p.ID, p.CollateralToken)
}

func (s *Scheduler) exerciseITM(ctx context.Context, p store.Policy, strikeSats, spotSats int64) error {
	totalSettlement := computeSettlementAmount(strikeSats, spotSats, p.AmountSats)

	convexID := fmt.Sprintf("exercise-policy-%s", p.ID)
	statusCall := txengine.ContractCall{
		ContractAddress: s.registry,
		ContractName:    contractNameOf(s.registry),
		FunctionName:    "update-policy-status",
		Args:            [][]byte{[]byte(p.ID), statusCodeArg(1), int64Arg(totalSettlement), int64Arg(spotSats)}, // 1 = Exercised
	}
	if _, err := s.engine.Submit(ctx, convexID, "update-policy-status", statusCall); err != nil {
		return err
	}

	settleConvexID := fmt.Sprintf("pay-settlement-%s", p.ID)
	settleCall := txengine.ContractCall{
		ContractAddress: s.registry,
		ContractName:    contractNameOf(s.registry),
		FunctionName:    "pay-settlement",
		Args:            [][]byte{[]byte(p.ID), []byte(p.SettlementToken), int64Arg(totalSettlement), []byte(p.Owner)},
	}
	if _, err := s.engine.Submit(ctx, settleConvexID, "pay-settlement", settleCall); err != nil {
		return err
	}

	if err := s.allocator.ApplySettlement(ctx, p.ID, p.CollateralToken, totalSettlement); err != nil {
		return err
	}
	return s.allocator.Release(ctx, p.ID, p.CollateralToken)
}

// computeSettlementAmount implements spec §4.9 step 3: settlementPerUnit =
// strike − spotAtExpiry, total = settlementPerUnit · amount. strikeSats and
// spotSats are both USD prices scaled by 1e8 (the oracle's own price
// format); amountUnits is the protection amount in BTC scaled by 1e8. Both
// factors carry a spurious 1e8, so the product must be divided by 1e16, not
// 1e8, to recover the settlement value in the same unit spec §8 scenario 5
// uses (e.g. strike=50000, spot=48000, amount=1 ⇒ 2000).
func computeSettlementAmount(strikeSats, spotSats, amountUnits int64) int64 {
	strikeUSD := float64(strikeSats) / 1e8
	spotUSD := float64(spotSats) / 1e8
	amountBTC := float64(amountUnits) / 1e8
	return int64(math.Round((strikeUSD - spotUSD) * amountBTC))
}

func splitContract(fullyQualified string) [2]string {
	for i := len(fullyQualified) - 1; i >= 0; i-- {
		if fullyQualified[i] == '.' {
			return [2]string{fullyQualified[:i], fullyQualified[i+1:]}
		}
	}
	return [2]string{fullyQualified, ""}
}

func contractNameOf(fullyQualified string) string {
	parts := splitContract(fullyQualified)
	return parts[1]
}

func heightArg(h int64) []byte { return int64Arg(h) }

func statusCodeArg(code int64) []byte { return int64Arg(code) }

func int64Arg(v int64) []byte {
	out := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		out[i] = byte(v & 0xff)
		v >>= 8
	}
	return out
}

func decodePriceSats(raw []byte) (int64, error) {
	if s := string(raw); strings.HasPrefix(s, "0x") {
		decoded, err := hex.DecodeString(s[2:])
		if err != nil {
			return 0, fmt.Errorf("expiration: malformed price response: %w", err)
		}
		raw = decoded
	}
	if len(raw) < 9 {
		return 0, fmt.Errorf("expiration: truncated price response")
	}
	var price int64
	for _, b := range raw[1:9] {
		price = price<<8 | int64(b)
	}
	return price, nil
}
