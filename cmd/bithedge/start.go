package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bithedge/backend/internal/allocator"
	"github.com/bithedge/backend/internal/chain"
	"github.com/bithedge/backend/internal/config"
	"github.com/bithedge/backend/internal/events"
	"github.com/bithedge/backend/internal/expiration"
	"github.com/bithedge/backend/internal/policy"
	"github.com/bithedge/backend/internal/premium"
	"github.com/bithedge/backend/internal/priceoracle"
	"github.com/bithedge/backend/internal/priceoracle/provider"
	"github.com/bithedge/backend/internal/quote"
	"github.com/bithedge/backend/internal/server"
	"github.com/bithedge/backend/internal/signer"
	"github.com/bithedge/backend/internal/store"
	"github.com/bithedge/backend/internal/telemetry"
	"github.com/bithedge/backend/internal/txengine"
)

// blocksPerDay approximates a Stacks-style chain's block production rate,
// used to turn a policy's periodDays into an absolute expirationHeight
// (spec §4.6 step 3).
const blocksPerDay = 144

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "run the backend's ingestion, orchestration, and RPC services",
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			return run(configPath)
		},
	}
}

func run(configPath string) error {
	cfg, err := config.ParseConfig(configPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger := zerolog.New(os.Stdout).With().
		Timestamp().
		Str("service", "bithedge").
		Str("network", string(cfg.Network)).
		Logger().
		Level(zerolog.InfoLevel)

	if err := telemetry.Init("bithedge"); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	db, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	sgnr, err := signer.New(cfg.Signer.PrivateKeyHex)
	if err != nil {
		return fmt.Errorf("signer: %w", err)
	}
	logger.Info().Str("address", sgnr.Address()).Msg("signer ready")

	requestTimeout, err := config.ParseDuration(cfg.Chain.RequestTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	chainClient := chain.NewClient(cfg.Chain.APIURL, requestTimeout, logger)

	engine := txengine.NewEngine(logger, db, chainClient, sgnr)

	providers := buildProviders(cfg, logger)
	ingestInterval := 60 * time.Second
	ingestor := priceoracle.NewIngestor(logger, db, ingestInterval, cfg.Feeds, providers)
	aggregator := priceoracle.NewAggregator(logger, db)
	volatilityEngine := priceoracle.NewVolatilityEngine(logger, db)

	minInterval, err := config.ParseDuration(cfg.Thresholds.MinInterval, 15*time.Minute)
	if err != nil {
		return err
	}
	maxInterval, err := config.ParseDuration(cfg.Thresholds.MaxInterval, 24*time.Hour)
	if err != nil {
		return err
	}
	submitter := priceoracle.NewOracleSubmitter(logger, db, chainClient, engine,
		cfg.Chain.OracleContract, sgnr.Address(),
		priceoracle.Thresholds{
			MinSourceCount: cfg.Thresholds.MinSourceCount,
			MinPctChange:   cfg.Thresholds.MinPctChange,
			MinInterval:    minInterval,
			MaxInterval:    maxInterval,
		},
	)

	quoteEngine := quote.NewEngine(logger, db, volatilityEngine, cfg.Quote)
	alloc := allocator.NewAllocator(logger, db)
	distributor := premium.NewDistributor(logger, db, engine, cfg.Chain.LiquidityPoolContract)
	orchestrator := policy.NewOrchestrator(logger, db, alloc, quoteEngine, engine, distributor, cfg.Chain.PolicyRegistryContract, blocksPerDay)

	expirationInterval := time.Duration(cfg.Expiration.IntervalSecs) * time.Second
	scheduler := expiration.NewScheduler(logger, db, chainClient, engine, alloc,
		cfg.Chain.OracleContract, cfg.Chain.PolicyRegistryContract, expirationInterval, cfg.Expiration.BatchSize)

	eventPollInterval := time.Duration(cfg.Events.PollIntervalSecs) * time.Second
	trackedContracts := []string{cfg.Chain.PolicyRegistryContract, cfg.Chain.LiquidityPoolContract}
	processor := events.NewProcessor(logger, db, chainClient, trackedContracts, eventPollInterval, cfg.Events.PageSize)
	processor.RegisterHandler("policy-created", events.NewPolicyCreatedHandler(orchestrator))
	processor.RegisterHandler("funds-deposited", events.NewFundsDepositedHandler(db))
	processor.RegisterHandler("premium-distributed", events.NewPremiumDistributedHandler(db, distributor))
	processor.RegisterHandler("policy-status-updated", events.NewPolicyStatusUpdatedHandler(db))
	processor.RegisterHandler("collateral-locked", events.NewCollateralLockedHandler())

	rpcServer, err := server.New(logger, cfg.Server, db, quoteEngine, orchestrator, alloc, engine)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go ingestor.Start(ctx)
	go func() { runTicked(ctx, 30*time.Second, func() { _, _, _ = aggregator.AggregateCurrentPrices(ctx) }) }()
	go func() { runTicked(ctx, time.Hour, func() { _ = volatilityEngine.RecomputeAll(ctx) }) }()
	go func() { runTicked(ctx, 5*time.Minute, func() { _ = submitter.CheckAndSubmit(ctx) }) }()
	go scheduler.Start(ctx, chainClient.TipHeight)
	go processor.Start(ctx)
	rpcServer.Start()

	logger.Info().Msg("bithedge backend started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	ingestor.Stop()
	scheduler.Stop()
	processor.Stop()
	if err := rpcServer.Stop(); err != nil {
		logger.Error().Err(err).Msg("rpc server shutdown error")
	}
	return nil
}

// runTicked runs fn once per interval until ctx is cancelled. Used for
// the aggregator/volatility/submitter loops, which (unlike Ingestor,
// ExpirationScheduler and EventProcessor) have no dedicated Closer of
// their own — they're pure functions driven by the pipeline's cadence
// rather than long-lived stateful services.
func runTicked(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}

func buildProviders(cfg config.Config, logger zerolog.Logger) map[string]provider.Provider {
	providers := make(map[string]provider.Provider, len(cfg.Feeds))
	for _, feed := range cfg.Feeds {
		apiKey := ""
		if feed.APIKeyEnv != "" {
			apiKey = os.Getenv(feed.APIKeyEnv)
		}
		const feedTimeout = 10 * time.Second
		switch feed.Source {
		case "kraken":
			providers[feed.Source] = provider.NewKrakenProvider(feed.URL, apiKey, feedTimeout, logger)
		case "binance":
			providers[feed.Source] = provider.NewBinanceProvider(feed.URL, apiKey, feedTimeout, logger)
		case "coinbase":
			providers[feed.Source] = provider.NewCoinbaseProvider(feed.URL, apiKey, feedTimeout, logger)
		case "mock":
			providers[feed.Source] = provider.NewMockProvider(provider.Name(feed.Source), 60000.0)
		default:
			logger.Warn().Str("source", feed.Source).Msg("unknown price feed source, skipping")
		}
	}
	return providers
}
