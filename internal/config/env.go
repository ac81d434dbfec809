package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// applyEnvOverlay layers environment-variable overrides on top of the
// TOML-decoded config (spec §6: NETWORK, per-network *_API_URL,
// BACKEND_SIGNER_PRIVATE_KEY, per-contract *_CONTRACT_ADDRESS_{NET},
// feed API keys). Environment always wins over the file, matching how
// operators roll secrets without touching a committed config.
func applyEnvOverlay(cfg *Config) error {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if net := v.GetString("NETWORK"); net != "" {
		cfg.Network = Network(net)
	}

	if apiURL := v.GetString(fmt.Sprintf("%s_API_URL", strings.ToUpper(string(cfg.Network)))); apiURL != "" {
		cfg.Chain.APIURL = apiURL
	}

	cfg.Signer.PrivateKeyHex = v.GetString("BACKEND_SIGNER_PRIVATE_KEY")

	for name, contractEnv := range map[string]*string{
		"ORACLE":          &cfg.Chain.OracleContract,
		"POLICY_REGISTRY": &cfg.Chain.PolicyRegistryContract,
		"LIQUIDITY_POOL":  &cfg.Chain.LiquidityPoolContract,
	} {
		key := fmt.Sprintf("%s_CONTRACT_ADDRESS_%s", name, strings.ToUpper(string(cfg.Network)))
		if addr := v.GetString(key); addr != "" {
			*contractEnv = addr
		}
	}

	for i := range cfg.Feeds {
		if cfg.Feeds[i].APIKeyEnv == "" {
			continue
		}
		if key := os.Getenv(cfg.Feeds[i].APIKeyEnv); key != "" {
			// The key itself is consumed by the provider client at
			// request time (internal/priceoracle/provider), never
			// stored back onto the Config struct.
			_ = key
		}
	}

	return nil
}

// FeedAPIKey resolves a feed's API key from its configured environment
// variable name, if any.
func FeedAPIKey(feed PriceFeed) string {
	if feed.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(feed.APIKeyEnv)
}
