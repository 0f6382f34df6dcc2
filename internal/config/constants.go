package config

const (
	// DefaultBackendURL is the service the suite targets when none is configured.
	DefaultBackendURL = "http://localhost:3001"
	// DefaultClickHouseDatabase is the database the results sink writes into.
	DefaultClickHouseDatabase = "harness"
	// DefaultConfigFile is the YAML file picked up when present and no --config is given.
	DefaultConfigFile = "harness.yaml"

	// EnvURL overrides the backend URL.
	EnvURL = "HARNESS_URL"
	// EnvTimeout overrides the per-request timeout.
	EnvTimeout = "HARNESS_TIMEOUT"
	// EnvSymbolsLimit overrides how many symbols are sampled.
	EnvSymbolsLimit = "HARNESS_SYMBOLS_LIMIT"
	// EnvWebsocketDuration overrides the realtime observation window.
	EnvWebsocketDuration = "HARNESS_WEBSOCKET_DURATION"
	// EnvStressConnections overrides the concurrent connection count.
	EnvStressConnections = "HARNESS_STRESS_CONNECTIONS"
	// EnvStressHold overrides how long stress connections stay open.
	EnvStressHold = "HARNESS_STRESS_HOLD"
	// EnvLatencySamples overrides samples per latency endpoint.
	EnvLatencySamples = "HARNESS_LATENCY_SAMPLES"
	// EnvLatencyCeiling overrides the acceptable average latency.
	EnvLatencyCeiling = "HARNESS_LATENCY_CEILING"
	// EnvTrading enables the authenticated trading phase.
	EnvTrading = "HARNESS_TRADING"
	// EnvReportDir overrides where reports are written.
	EnvReportDir = "HARNESS_REPORT_DIR"
	// EnvMetricsAddr serves Prometheus metrics on this address while running.
	EnvMetricsAddr = "HARNESS_METRICS_ADDR"
	// EnvClickHouseURL enables the ClickHouse results sink.
	EnvClickHouseURL = "HARNESS_CLICKHOUSE_URL"
	// EnvClickHouseDatabase overrides the sink database.
	EnvClickHouseDatabase = "HARNESS_CLICKHOUSE_DATABASE"
)
