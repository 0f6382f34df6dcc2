package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/config"
	"github.com/ethpandaops/market-sim-harness/internal/harness"
	"github.com/ethpandaops/market-sim-harness/internal/harness/output"
	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/ethpandaops/market-sim-harness/internal/harness/sink"
	"github.com/ethpandaops/market-sim-harness/internal/harness/telemetry"
	"github.com/spf13/cobra"
)

// suiteMode selects which phases a run executes.
type suiteMode int

const (
	modeFull suiteMode = iota
	modeTrading
)

// suiteFlags mirror config.Config. Only flags set on the command line
// override the resolved configuration.
var suiteFlags struct {
	url               string
	timeout           time.Duration
	symbolsLimit      int
	websocketDuration time.Duration
	stressConnections int
	stressHold        time.Duration
	latencySamples    int
	latencyCeiling    time.Duration
	trading           bool
	seed              int64
	saveReport        bool
	reportDir         string
	reportName        string
	metricsAddr       string
	clickhouseURL     string
	clickhouseDB      string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full integration suite",
	Long: `Run every check against the backend: REST contracts, the auth boundary,
input validation, the leaderboard, realtime streaming, concurrent connections
and response times. Add --trading to also drive the authenticated trading flow.

The command prints a verdict and exits 0 whatever the verdict is. Only an
invalid configuration makes it fail.

Examples:
  sim-harness run
  sim-harness run --url http://staging:3001 --save-report --report-dir reports
  sim-harness run --trading --metrics-addr :9090`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runCommand(cmd, modeFull)
	},
}

func init() {
	addSuiteFlags(runCmd)
	runCmd.Flags().BoolVar(&suiteFlags.trading, "trading", false, "Also run the authenticated trading flow")

	rootCmd.AddCommand(runCmd)
}

func addSuiteFlags(cmd *cobra.Command) {
	def := config.Default()
	flags := cmd.Flags()

	flags.StringVar(&suiteFlags.url, "url", def.BackendURL, "Backend base URL")
	flags.DurationVar(&suiteFlags.timeout, "timeout", def.Timeout, "Per-request timeout")
	flags.IntVar(&suiteFlags.symbolsLimit, "symbols-limit", def.SymbolsLimit, "Number of discovered symbols to check")
	flags.DurationVar(&suiteFlags.websocketDuration, "websocket-duration", def.WebsocketDuration, "Realtime observation window")
	flags.IntVar(&suiteFlags.stressConnections, "stress-connections", def.StressConnections, "Concurrent realtime connections to open")
	flags.DurationVar(&suiteFlags.stressHold, "stress-hold", def.StressHold, "How long stress connections stay open")
	flags.IntVar(&suiteFlags.latencySamples, "latency-samples", def.LatencySamples, "Requests per latency endpoint")
	flags.DurationVar(&suiteFlags.latencyCeiling, "latency-ceiling", def.LatencyCeiling, "Highest acceptable average latency")
	flags.Int64Var(&suiteFlags.seed, "seed", 0, "Seed for trade selection (0 picks one from the clock)")
	flags.BoolVar(&suiteFlags.saveReport, "save-report", false, "Write the JSON report to disk")
	flags.StringVar(&suiteFlags.reportDir, "report-dir", def.ReportDir, "Directory for saved reports")
	flags.StringVar(&suiteFlags.reportName, "report-name", "", "Report file name (default test_report_<timestamp>.json)")
	flags.StringVar(&suiteFlags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	flags.StringVar(&suiteFlags.clickhouseURL, "clickhouse-url", "", "Persist outcomes to this ClickHouse DSN")
	flags.StringVar(&suiteFlags.clickhouseDB, "clickhouse-database", def.ClickHouseDatabase, "ClickHouse database for persisted outcomes")
}

// resolveConfig layers command-line flags over defaults, environment and the
// YAML file, then validates the result.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	path := configFile
	if path == "" {
		if _, err := os.Stat(config.DefaultConfigFile); err == nil {
			path = config.DefaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if cmd != nil {
		applyFlags(cmd, cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("url") {
		cfg.BackendURL = suiteFlags.url
	}

	if changed("timeout") {
		cfg.Timeout = suiteFlags.timeout
	}

	if changed("symbols-limit") {
		cfg.SymbolsLimit = suiteFlags.symbolsLimit
	}

	if changed("websocket-duration") {
		cfg.WebsocketDuration = suiteFlags.websocketDuration
	}

	if changed("stress-connections") {
		cfg.StressConnections = suiteFlags.stressConnections
	}

	if changed("stress-hold") {
		cfg.StressHold = suiteFlags.stressHold
	}

	if changed("latency-samples") {
		cfg.LatencySamples = suiteFlags.latencySamples
	}

	if changed("latency-ceiling") {
		cfg.LatencyCeiling = suiteFlags.latencyCeiling
	}

	if changed("trading") {
		cfg.Trading = suiteFlags.trading
	}

	if changed("seed") {
		cfg.TradingSeed = suiteFlags.seed
	}

	if changed("save-report") {
		cfg.SaveReport = suiteFlags.saveReport
	}

	if changed("report-dir") {
		cfg.ReportDir = suiteFlags.reportDir
	}

	if changed("report-name") {
		cfg.ReportName = suiteFlags.reportName
	}

	if changed("metrics-addr") {
		cfg.MetricsAddr = suiteFlags.metricsAddr
	}

	if changed("clickhouse-url") {
		cfg.ClickHouseURL = suiteFlags.clickhouseURL
	}

	if changed("clickhouse-database") {
		cfg.ClickHouseDatabase = suiteFlags.clickhouseDB
	}
}

func runCommand(cmd *cobra.Command, mode suiteMode) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}

	// Ctrl+C stops before the next phase; the partial report is still printed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, err = runSuite(ctx, cfg, mode)

	return err
}

// runSuite executes one harness run and prints the report. Check failures
// never surface as an error; only setup problems do.
func runSuite(ctx context.Context, cfg *config.Config, mode suiteMode) (*report.Report, error) {
	log := newLogger(verbose)
	formatter := output.NewFormatter(log, os.Stdout, verbose)

	var metrics *telemetry.Metrics

	if cfg.MetricsAddr != "" {
		metrics = telemetry.New()

		srv := telemetry.NewServer(log, cfg.MetricsAddr, metrics)
		if err := srv.Start(ctx); err != nil {
			return nil, fmt.Errorf("starting metrics server: %w", err)
		}

		defer func() {
			if err := srv.Stop(); err != nil {
				log.WithError(err).Warn("Failed to stop metrics server")
			}
		}()
	}

	var results sink.Sink
	if cfg.ClickHouseURL != "" {
		results = sink.New(log, sink.Config{DSN: cfg.ClickHouseURL, Database: cfg.ClickHouseDatabase})
	}

	orchestrator, err := harness.NewOrchestrator(&harness.OrchestratorConfig{
		Logger:            log,
		Writer:            os.Stdout,
		Verbose:           verbose,
		BackendURL:        cfg.BackendURL,
		Timeout:           cfg.Timeout,
		SymbolsLimit:      cfg.SymbolsLimit,
		ObservationWindow: cfg.WebsocketDuration,
		StressConnections: cfg.StressConnections,
		StressHold:        cfg.StressHold,
		LatencySamples:    cfg.LatencySamples,
		LatencyCeiling:    cfg.LatencyCeiling,
		Trading:           cfg.Trading,
		TradingSeed:       cfg.TradingSeed,
		Formatter:         formatter,
		Telemetry:         metrics,
		Sink:              results,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up orchestrator: %w", err)
	}

	if err := orchestrator.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting orchestrator: %w", err)
	}

	defer func() {
		if err := orchestrator.Stop(); err != nil {
			log.WithError(err).Warn("Failed to stop orchestrator")
		}
	}()

	var rep *report.Report

	switch mode {
	case modeTrading:
		rep = orchestrator.RunTrading(ctx)
	default:
		rep = orchestrator.Run(ctx)
	}

	formatter.PrintReport(rep)

	if cfg.SaveReport {
		path, err := rep.Save(cfg.ReportDir, cfg.ReportName)
		if err != nil {
			formatter.PrintError("Failed to save report", err)
		} else {
			formatter.PrintSuccess(fmt.Sprintf("Report saved to %s", path))
		}
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		formatter.PrintWarning("Run was interrupted; the report covers completed phases only")
	}

	return rep, nil
}
