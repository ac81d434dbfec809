package store

// schemaDDL creates every table named in spec §3. All monetary fields
// are stored as INTEGER (smallest unit) per spec; timestamps are INTEGER
// Unix milliseconds unless the column name says "height".
const schemaDDL = `
CREATE TABLE IF NOT EXISTS price_ticks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	price_usd_micro INTEGER NOT NULL,
	weight REAL NOT NULL,
	timestamp_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_ticks_ts ON price_ticks(timestamp_ms);
CREATE INDEX IF NOT EXISTS idx_price_ticks_source ON price_ticks(source, timestamp_ms);

CREATE TABLE IF NOT EXISTS aggregated_prices (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	price_usd_micro INTEGER NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	source_count INTEGER NOT NULL,
	volatility REAL NOT NULL,
	range_24h_low_micro INTEGER,
	range_24h_high_micro INTEGER
);
CREATE INDEX IF NOT EXISTS idx_aggregated_ts ON aggregated_prices(timestamp_ms);

CREATE TABLE IF NOT EXISTS historical_daily_prices (
	date TEXT PRIMARY KEY,
	is_daily INTEGER NOT NULL DEFAULT 1,
	open_micro INTEGER,
	high_micro INTEGER,
	low_micro INTEGER,
	close_micro INTEGER NOT NULL,
	volume INTEGER,
	updated_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS historical_volatility (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	period_days INTEGER NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	volatility REAL NOT NULL,
	data_points INTEGER NOT NULL,
	method TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_hv_period_ts ON historical_volatility(period_days, timestamp_ms DESC);

CREATE TABLE IF NOT EXISTS oracle_submissions (
	tx_id TEXT PRIMARY KEY,
	submitted_price_sats INTEGER NOT NULL,
	reason TEXT NOT NULL,
	source_count INTEGER NOT NULL,
	percent_change REAL NOT NULL,
	status TEXT NOT NULL,
	created_at_ms INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS provider_tier_balances (
	provider TEXT NOT NULL,
	tier TEXT NOT NULL,
	token TEXT NOT NULL,
	deposited INTEGER NOT NULL DEFAULT 0,
	locked INTEGER NOT NULL DEFAULT 0,
	premium_earned INTEGER NOT NULL DEFAULT 0,
	last_deposit_height INTEGER NOT NULL DEFAULT 0,
	deposit_count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (provider, tier, token)
);

CREATE TABLE IF NOT EXISTS tier_capital (
	tier TEXT NOT NULL,
	token TEXT NOT NULL,
	total_deposited INTEGER NOT NULL DEFAULT 0,
	total_locked INTEGER NOT NULL DEFAULT 0,
	capacity_limit INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tier, token)
);

CREATE TABLE IF NOT EXISTS policies (
	id TEXT PRIMARY KEY,
	on_chain_id TEXT,
	owner TEXT NOT NULL,
	policy_type TEXT NOT NULL,
	risk_tier TEXT NOT NULL,
	strike_cents INTEGER NOT NULL,
	amount_sats INTEGER NOT NULL,
	premium_micro INTEGER NOT NULL,
	creation_height INTEGER NOT NULL,
	expiration_height INTEGER NOT NULL,
	status TEXT NOT NULL,
	collateral_token TEXT NOT NULL,
	settlement_token TEXT NOT NULL,
	correlation_key TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_policies_status ON policies(status, expiration_height);
CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_correlation ON policies(correlation_key);

CREATE TABLE IF NOT EXISTS allocations (
	id TEXT PRIMARY KEY,
	policy_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	tier TEXT NOT NULL,
	amount_locked INTEGER NOT NULL,
	percentage_bps INTEGER NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_allocations_policy ON allocations(policy_id);

CREATE TABLE IF NOT EXISTS premium_distributions (
	id TEXT PRIMARY KEY,
	policy_id TEXT NOT NULL,
	allocation_id TEXT NOT NULL,
	provider TEXT NOT NULL,
	premium_share INTEGER NOT NULL,
	status TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_premdist_policy ON premium_distributions(policy_id);

CREATE TABLE IF NOT EXISTS transactions (
	convex_id TEXT PRIMARY KEY,
	chain_tx_id TEXT,
	kind TEXT NOT NULL,
	payload TEXT NOT NULL,
	status TEXT NOT NULL,
	error_details TEXT,
	nonce INTEGER,
	retry_count INTEGER NOT NULL DEFAULT 0,
	created_at_ms INTEGER NOT NULL,
	updated_at_ms INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_chain_tx ON transactions(chain_tx_id);

CREATE TABLE IF NOT EXISTS event_cursors (
	contract TEXT PRIMARY KEY,
	offset INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS processed_events (
	tx_id TEXT NOT NULL,
	event_index INTEGER NOT NULL,
	processed_at_ms INTEGER NOT NULL,
	PRIMARY KEY (tx_id, event_index)
);

CREATE TABLE IF NOT EXISTS risk_parameters (
	asset TEXT NOT NULL,
	policy_type TEXT NOT NULL,
	base_rate REAL NOT NULL,
	vol_mult REAL NOT NULL,
	dur_factor REAL NOT NULL,
	coverage_factor REAL NOT NULL DEFAULT 1.0,
	tier_mult_conservative REAL NOT NULL DEFAULT 0.7,
	tier_mult_balanced REAL NOT NULL DEFAULT 1.0,
	tier_mult_aggressive REAL NOT NULL DEFAULT 1.3,
	PRIMARY KEY (asset, policy_type)
);

CREATE TABLE IF NOT EXISTS reconciliation_records (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	policy_id TEXT,
	expected_amount INTEGER,
	actual_amount INTEGER,
	details TEXT,
	created_at_ms INTEGER NOT NULL
);
`
