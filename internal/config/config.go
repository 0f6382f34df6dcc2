// Package config handles configuration loading and management
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/testcfg"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the resolved harness configuration.
type Config struct {
	BackendURL        string        `yaml:"url" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	SymbolsLimit      int           `yaml:"symbols_limit" validate:"gte=1"`
	WebsocketDuration time.Duration `yaml:"websocket_duration" validate:"gt=0"`
	StressConnections int           `yaml:"stress_connections" validate:"gte=1"`
	StressHold        time.Duration `yaml:"stress_hold" validate:"gte=0"`
	LatencySamples    int           `yaml:"latency_samples" validate:"gte=1"`
	LatencyCeiling    time.Duration `yaml:"latency_ceiling" validate:"gt=0"`

	Trading     bool  `yaml:"trading"`
	TradingSeed int64 `yaml:"trading_seed"`

	SaveReport bool   `yaml:"save_report"`
	ReportDir  string `yaml:"report_dir"`
	ReportName string `yaml:"report_name"`

	MetricsAddr        string `yaml:"metrics_addr" validate:"omitempty,hostname_port"`
	ClickHouseURL      string `yaml:"clickhouse_url" validate:"omitempty,url"`
	ClickHouseDatabase string `yaml:"clickhouse_database" validate:"omitempty,max=64"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	tc := testcfg.DefaultTestConfig()

	return &Config{
		BackendURL:         DefaultBackendURL,
		Timeout:            tc.RequestTimeout,
		SymbolsLimit:       tc.SymbolsLimit,
		WebsocketDuration:  tc.ObservationWindow,
		StressConnections:  tc.StressConnections,
		StressHold:         tc.StressHold,
		LatencySamples:     tc.LatencySamples,
		LatencyCeiling:     tc.LatencyCeiling,
		ReportDir:          ".",
		ClickHouseDatabase: DefaultClickHouseDatabase,
	}
}

// Load resolves configuration from defaults, the .env file and environment
// variables, then the optional YAML file at path. Flags are applied by the caller.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := Default()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.BackendURL = getEnv(EnvURL, c.BackendURL)
	c.ReportDir = getEnv(EnvReportDir, c.ReportDir)
	c.MetricsAddr = getEnv(EnvMetricsAddr, c.MetricsAddr)
	c.ClickHouseURL = getEnv(EnvClickHouseURL, c.ClickHouseURL)
	c.ClickHouseDatabase = getEnv(EnvClickHouseDatabase, c.ClickHouseDatabase)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{EnvTimeout, &c.Timeout},
		{EnvWebsocketDuration, &c.WebsocketDuration},
		{EnvStressHold, &c.StressHold},
		{EnvLatencyCeiling, &c.LatencyCeiling},
	}

	for _, d := range durations {
		raw := os.Getenv(d.key)
		if raw == "" {
			continue
		}

		v, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", d.key, err)
		}

		*d.dst = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{EnvSymbolsLimit, &c.SymbolsLimit},
		{EnvStressConnections, &c.StressConnections},
		{EnvLatencySamples, &c.LatencySamples},
	}

	for _, i := range ints {
		raw := os.Getenv(i.key)
		if raw == "" {
			continue
		}

		v, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", i.key, err)
		}

		*i.dst = v
	}

	if raw := os.Getenv(EnvTrading); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvTrading, err)
		}

		c.Trading = v
	}

	return nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate checks the configuration against its struct constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}

		return fmt.Errorf("invalid configuration: %w", err)
	}

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("invalid configuration: url must be http(s), got %q", c.BackendURL)
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func (c *Config) String() string {
	clickhouseDisplay := "(disabled)"
	if c.ClickHouseURL != "" {
		clickhouseDisplay = redact(c.ClickHouseURL)
	}

	metricsDisplay := "(disabled)"
	if c.MetricsAddr != "" {
		metricsDisplay = c.MetricsAddr
	}

	reportDisplay := "(not saved)"
	if c.SaveReport {
		reportDisplay = c.ReportDir
	}

	return fmt.Sprintf(`Current Configuration:
======================
Backend URL:            %s
Request Timeout:        %s
Symbols Limit:          %d
WebSocket Duration:     %s
Stress Connections:     %d (hold %s)
Latency Samples:        %d (ceiling %s)
Trading Flow:           %t
Report Directory:       %s
Metrics Address:        %s
ClickHouse Sink:        %s`,
		c.BackendURL,
		c.Timeout,
		c.SymbolsLimit,
		c.WebsocketDuration,
		c.StressConnections,
		c.StressHold,
		c.LatencySamples,
		c.LatencyCeiling,
		c.Trading,
		reportDisplay,
		metricsDisplay,
		clickhouseDisplay,
	)
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(invalid url)"
	}

	return u.Redacted()
}
