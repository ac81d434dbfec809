package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleTOML = `
network = "testnet"

[[price_feeds]]
source = "kraken"
url = "https://api.kraken.com"
weight = 1.5

[[price_feeds]]
source = "mock"
url = "http://localhost"
weight = 1.0

[chain]
api_url = "https://stacks-node.testnet.example"
oracle_contract = "ST000.oracle"
policy_registry_contract = "ST000.policy-registry"
liquidity_pool_contract = "ST000.liquidity-pool"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestParseConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	t.Setenv("BACKEND_SIGNER_PRIVATE_KEY", "deadbeef")

	cfg, err := ParseConfig(path)
	require.NoError(t, err)

	require.Equal(t, defaultListenAddr, cfg.Server.ListenAddr)
	require.Equal(t, defaultDatabasePath, cfg.DatabasePath)
	require.Equal(t, defaultMinSourceCount, cfg.Thresholds.MinSourceCount)
	require.Equal(t, defaultCoverageFactor, cfg.Quote.CoverageFactor)
	require.Equal(t, int(defaultExpirationInterval.Seconds()), cfg.Expiration.IntervalSecs)
	require.Equal(t, "deadbeef", cfg.Signer.PrivateKeyHex)
	require.Len(t, cfg.Feeds, 2)
	require.Equal(t, int(defaultIngestInterval.Seconds()), cfg.Feeds[0].MinIntervalSecs)
}

func TestParseConfigMissingSignerKey(t *testing.T) {
	path := writeConfig(t, sampleTOML)
	t.Setenv("BACKEND_SIGNER_PRIVATE_KEY", "")

	_, err := ParseConfig(path)
	require.Error(t, err)
}

func TestParseConfigEmptyPath(t *testing.T) {
	_, err := ParseConfig("")
	require.ErrorIs(t, err, ErrEmptyConfigPath)
}

func TestParseConfigUnknownNetwork(t *testing.T) {
	path := writeConfig(t, `
network = "regtest"

[[price_feeds]]
source = "mock"
url = "http://localhost"
weight = 1.0

[chain]
api_url = "https://stacks-node.example"
oracle_contract = "ST000.oracle"
policy_registry_contract = "ST000.policy-registry"
liquidity_pool_contract = "ST000.liquidity-pool"
`)
	t.Setenv("BACKEND_SIGNER_PRIVATE_KEY", "deadbeef")

	_, err := ParseConfig(path)
	require.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	d, err := ParseDuration("", defaultMinInterval)
	require.NoError(t, err)
	require.Equal(t, defaultMinInterval, d)

	d, err = ParseDuration("5m", defaultMinInterval)
	require.NoError(t, err)
	require.Equal(t, 5*60*1e9, float64(d))
}
