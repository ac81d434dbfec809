// Package config defines every runtime option of the BitHedge backend as
// a named field of an explicit configuration struct — no stringly-typed
// dispatch (spec §9 Design Notes). Structure and validation style follow
// a TOML file decoded with struct-tag validation via go-playground/validator,
// with defaults filled in after decode.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"

	"github.com/bithedge/backend/internal/types"
)

// Network selects which chain environment the backend talks to.
type Network string

const (
	NetworkMainnet Network = "mainnet"
	NetworkTestnet Network = "testnet"
	NetworkDevnet  Network = "devnet"
)

func (n Network) Valid() bool {
	switch n {
	case NetworkMainnet, NetworkTestnet, NetworkDevnet:
		return true
	}
	return false
}

const (
	defaultListenAddr      = "0.0.0.0:7171"
	defaultSrvWriteTimeout = 15 * time.Second
	defaultSrvReadTimeout  = 15 * time.Second
	defaultFeedTimeout     = 10 * time.Second
	defaultIngestInterval  = 60 * time.Second
	defaultDatabasePath    = "bithedge.db"

	defaultMinSourceCount = 3
	defaultMinPctChange   = 1.0
	defaultMinInterval    = 15 * time.Minute
	defaultMaxInterval    = 24 * time.Hour

	defaultRiskFreeRate       = 0.02
	defaultCoverageFactor     = 1.0
	defaultExpirationInterval = 30 * time.Second
	defaultExpirationBatch    = 50
	defaultEventPollInterval  = 30 * time.Second
	defaultEventPageSize      = 50
)

var validate = validator.New()

// ErrEmptyConfigPath is returned when ParseConfig is called with no path.
var ErrEmptyConfigPath = errors.New("empty configuration file path")

type (
	// Config is the fully resolved backend configuration: file-provided
	// values overlaid with environment overrides (§6 "Configuration").
	Config struct {
		Network    Network           `toml:"network" validate:"required"`
		Server     Server            `toml:"server"`
		Feeds      []PriceFeed       `toml:"price_feeds" validate:"required,gt=0,dive,required"`
		Thresholds OracleThresholds  `toml:"oracle_thresholds"`
		Chain      ChainConfig       `toml:"chain" validate:"required"`
		Signer     SignerConfig      `toml:"-"`
		Quote      QuoteConfig       `toml:"quote"`
		Expiration ExpirationConfig  `toml:"expiration"`
		Events     EventsConfig      `toml:"events"`
		DatabasePath string          `toml:"database_path"`
	}

	// Server configures the JSON-over-HTTP RPC surface (spec §6).
	Server struct {
		ListenAddr     string   `toml:"listen_addr"`
		WriteTimeout   string   `toml:"write_timeout"`
		ReadTimeout    string   `toml:"read_timeout"`
		VerboseCORS    bool     `toml:"verbose_cors"`
		AllowedOrigins []string `toml:"allowed_origins"`
	}

	// PriceFeed names one external price source and its static weight
	// (spec §4.1: major venues 1.5, mid-tier 1.3, others 1.0).
	PriceFeed struct {
		Source          string  `toml:"source" validate:"required"`
		URL             string  `toml:"url" validate:"required"`
		Weight          float64 `toml:"weight" validate:"required,gt=0"`
		APIKeyEnv       string  `toml:"api_key_env"`
		MinIntervalSecs int     `toml:"min_interval_secs"`
	}

	// OracleThresholds configures the OracleSubmitter decision tree
	// (spec §4.4).
	OracleThresholds struct {
		MinSourceCount int     `toml:"min_source_count"`
		MinPctChange   float64 `toml:"min_pct_change"`
		MinInterval    string  `toml:"min_interval"`
		MaxInterval    string  `toml:"max_interval"`
	}

	// ChainConfig points at the on-chain contracts and RPC endpoints
	// (spec §6).
	ChainConfig struct {
		APIURL                  string            `toml:"api_url" validate:"required"`
		OracleContract          string            `toml:"oracle_contract" validate:"required"`
		PolicyRegistryContract  string            `toml:"policy_registry_contract" validate:"required"`
		LiquidityPoolContract   string            `toml:"liquidity_pool_contract" validate:"required"`
		RequestTimeout          string            `toml:"request_timeout"`
		ContractAddressesByNet  map[string]string `toml:"contract_addresses_by_net"`
	}

	// SignerConfig holds the backend's single signer key. Never read
	// from the TOML file (Signer.PrivateKeyHex is sourced exclusively
	// from the BACKEND_SIGNER_PRIVATE_KEY environment variable so it
	// never lands in a committed config file).
	SignerConfig struct {
		PrivateKeyHex string
	}

	// QuoteConfig carries the pricing-model constants spec §4.5 names.
	QuoteConfig struct {
		RiskFreeRate   float64 `toml:"risk_free_rate"`
		CoverageFactor float64 `toml:"coverage_factor"`
		RiskParamsPath string  `toml:"risk_params_path"`
	}

	// ExpirationConfig tunes the ExpirationScheduler (spec §4.9).
	ExpirationConfig struct {
		IntervalSecs int `toml:"interval_secs"`
		BatchSize    int `toml:"batch_size"`
	}

	// EventsConfig tunes the EventProcessor (spec §4.11).
	EventsConfig struct {
		PollIntervalSecs int `toml:"poll_interval_secs"`
		PageSize         int `toml:"page_size"`
	}
)

// Validate returns an error if the Config object fails struct validation.
func (c Config) Validate() error {
	return validate.Struct(c)
}

// ParseConfig reads and parses configuration from the given TOML path,
// fills in defaults, then layers environment overrides on top (§6).
func ParseConfig(configPath string) (Config, error) {
	var cfg Config

	if configPath == "" {
		return cfg, ErrEmptyConfigPath
	}

	configData, err := os.ReadFile(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if _, err := toml.Decode(string(configData), &cfg); err != nil {
		return cfg, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)

	if err := applyEnvOverlay(&cfg); err != nil {
		return cfg, err
	}

	if cfg.Signer.PrivateKeyHex == "" {
		return cfg, types.New(types.KindConfig, "BACKEND_SIGNER_PRIVATE_KEY is required")
	}
	if !cfg.Network.Valid() {
		return cfg, types.New(types.KindConfig, fmt.Sprintf("unknown network: %s", cfg.Network))
	}

	return cfg, cfg.Validate()
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultListenAddr
	}
	if cfg.Server.WriteTimeout == "" {
		cfg.Server.WriteTimeout = defaultSrvWriteTimeout.String()
	}
	if cfg.Server.ReadTimeout == "" {
		cfg.Server.ReadTimeout = defaultSrvReadTimeout.String()
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = defaultDatabasePath
	}
	if cfg.Thresholds.MinSourceCount == 0 {
		cfg.Thresholds.MinSourceCount = defaultMinSourceCount
	}
	if cfg.Thresholds.MinPctChange == 0 {
		cfg.Thresholds.MinPctChange = defaultMinPctChange
	}
	if cfg.Thresholds.MinInterval == "" {
		cfg.Thresholds.MinInterval = defaultMinInterval.String()
	}
	if cfg.Thresholds.MaxInterval == "" {
		cfg.Thresholds.MaxInterval = defaultMaxInterval.String()
	}
	if cfg.Chain.RequestTimeout == "" {
		cfg.Chain.RequestTimeout = defaultFeedTimeout.String()
	}
	if cfg.Quote.RiskFreeRate == 0 {
		cfg.Quote.RiskFreeRate = defaultRiskFreeRate
	}
	if cfg.Quote.CoverageFactor == 0 {
		cfg.Quote.CoverageFactor = defaultCoverageFactor
	}
	if cfg.Expiration.IntervalSecs == 0 {
		cfg.Expiration.IntervalSecs = int(defaultExpirationInterval.Seconds())
	}
	if cfg.Expiration.BatchSize == 0 {
		cfg.Expiration.BatchSize = defaultExpirationBatch
	}
	if cfg.Events.PollIntervalSecs == 0 {
		cfg.Events.PollIntervalSecs = int(defaultEventPollInterval.Seconds())
	}
	if cfg.Events.PageSize == 0 {
		cfg.Events.PageSize = defaultEventPageSize
	}
	for i := range cfg.Feeds {
		if cfg.Feeds[i].MinIntervalSecs == 0 {
			cfg.Feeds[i].MinIntervalSecs = int(defaultIngestInterval.Seconds())
		}
	}
}

// ParseDuration parses a config duration field, falling back to def on
// empty input.
func ParseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}
