// Package harness runs the black-box integration suite against a market
// simulation service: REST contract checks, the auth boundary, the realtime
// event stream, concurrent connection stress and latency sampling.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/output"
	"github.com/ethpandaops/market-sim-harness/internal/harness/probe"
	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime"
	"github.com/ethpandaops/market-sim-harness/internal/harness/recorder"
	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/ethpandaops/market-sim-harness/internal/harness/sink"
	"github.com/ethpandaops/market-sim-harness/internal/harness/stress"
	"github.com/ethpandaops/market-sim-harness/internal/harness/telemetry"
	"github.com/ethpandaops/market-sim-harness/internal/harness/testcfg"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ObservationNote explains what a failed observation-window check can and cannot prove.
const ObservationNote = "Realtime checks observe fixed windows; a failure means no data " +
	"arrived in the window, which can be a service bug or an idle tick generator."

// OrchestratorConfig contains configuration for a suite run.
type OrchestratorConfig struct {
	Logger            logrus.FieldLogger
	Writer            io.Writer
	Verbose           bool
	BackendURL        string
	Timeout           time.Duration
	SymbolsLimit      int
	ObservationWindow time.Duration
	StressConnections int
	StressHold        time.Duration
	LatencySamples    int
	LatencyCeiling    time.Duration
	Trading           bool
	TradingSeed       int64

	// Optional collaborators.
	TestConfig *testcfg.TestConfig
	Formatter  output.Formatter
	Telemetry  *telemetry.Metrics
	Sink       sink.Sink
}

// Orchestrator sequences the suite's phases. It owns the state shared between
// phases: the discovered symbols, the recorder and the captured-event buffer.
type Orchestrator struct {
	log       logrus.FieldLogger
	formatter output.Formatter
	recorder  recorder.Recorder
	probe     *probe.Client
	events    *realtime.EventBuffer
	telemetry *telemetry.Metrics
	sink      sink.Sink
	tc        *testcfg.TestConfig
	rng       *rand.Rand

	backendURL        string
	symbolsLimit      int
	window            time.Duration
	stressConnections int
	stressHold        time.Duration
	latencySamples    int
	latencyCeiling    time.Duration
	trading           bool

	runID          uuid.UUID
	startedAt      time.Time
	symbols        []string
	privilegedSeen int
	stressResult   *stress.Result
	notes          []string
}

// NewOrchestrator creates a new suite orchestrator.
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	writer := cfg.Writer
	if writer == nil {
		writer = os.Stdout
	}

	tc := cfg.TestConfig
	if tc == nil {
		tc = testcfg.DefaultTestConfig()
	}

	formatter := cfg.Formatter
	if formatter == nil {
		formatter = output.NewFormatter(cfg.Logger, writer, cfg.Verbose)
	}

	client, err := probe.New(cfg.Logger, cfg.BackendURL, orDefault(cfg.Timeout, tc.RequestTimeout),
		probe.WithTelemetry(cfg.Telemetry))
	if err != nil {
		return nil, fmt.Errorf("creating probe: %w", err)
	}

	seed := cfg.TradingSeed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Orchestrator{
		log:       cfg.Logger.WithField("component", "orchestrator"),
		formatter: formatter,
		recorder: recorder.New(cfg.Logger,
			recorder.WithPrinter(formatter),
			recorder.WithTelemetry(cfg.Telemetry),
		),
		probe:     client,
		events:    realtime.NewEventBuffer(tc.EventRetention),
		telemetry: cfg.Telemetry,
		sink:      cfg.Sink,
		tc:        tc,
		rng:       rand.New(rand.NewPCG(uint64(seed), uint64(seed>>1))), //nolint:gosec // test data selection

		backendURL:        cfg.BackendURL,
		symbolsLimit:      orDefault(cfg.SymbolsLimit, tc.SymbolsLimit),
		window:            orDefault(cfg.ObservationWindow, tc.ObservationWindow),
		stressConnections: orDefault(cfg.StressConnections, tc.StressConnections),
		stressHold:        orDefault(cfg.StressHold, tc.StressHold),
		latencySamples:    orDefault(cfg.LatencySamples, tc.LatencySamples),
		latencyCeiling:    orDefault(cfg.LatencyCeiling, tc.LatencyCeiling),
		trading:           cfg.Trading,

		runID: uuid.New(),
	}, nil
}

func orDefault[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}

	return v
}

// Start initializes the orchestrator and its optional sink. A sink that fails
// to start is disabled rather than failing the run.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.log.Debug("starting orchestrator")

	if err := o.recorder.Start(ctx); err != nil {
		return fmt.Errorf("starting recorder: %w", err)
	}

	if o.sink != nil {
		if err := o.sink.Start(ctx); err != nil {
			o.log.WithError(err).Warn("Results sink unavailable, continuing without it")
			o.formatter.PrintWarning(fmt.Sprintf("results sink disabled: %v", err))
			o.sink = nil
		}
	}

	o.startedAt = time.Now()

	return nil
}

// Stop releases the orchestrator's resources.
func (o *Orchestrator) Stop() error {
	var errs []error

	if err := o.recorder.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stopping recorder: %w", err))
	}

	if o.sink != nil {
		if err := o.sink.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping sink: %w", err))
		}
	}

	return errors.Join(errs...)
}

// RunID identifies this run in reports and the results sink.
func (o *Orchestrator) RunID() uuid.UUID {
	return o.runID
}

// Recorder exposes the outcome log.
func (o *Orchestrator) Recorder() recorder.Recorder {
	return o.recorder
}

type phase struct {
	name string
	run  func(ctx context.Context)
}

// Run executes every phase in order and returns the finished report. No check
// aborts the run; cancellation of ctx stops before the next phase.
func (o *Orchestrator) Run(ctx context.Context) *report.Report {
	phases := []phase{
		{"REST API", o.runREST},
		{"Auth Boundary", o.runAuthBoundary},
		{"Input Validation", o.runInputValidation},
		{"Leaderboard", o.runLeaderboard},
		{"Realtime", o.runRealtime},
		{"Concurrent Connections", o.runStress},
		{"Response Times", o.runLatency},
	}

	if o.trading {
		phases = append(phases, phase{"Trading", o.runTrading})
	}

	return o.execute(ctx, phases)
}

// RunTrading executes only symbol discovery and the authenticated trading flow.
func (o *Orchestrator) RunTrading(ctx context.Context) *report.Report {
	return o.execute(ctx, []phase{
		{"Symbols", func(ctx context.Context) { o.discoverSymbols(ctx) }},
		{"Trading", o.runTrading},
	})
}

func (o *Orchestrator) execute(ctx context.Context, phases []phase) *report.Report {
	o.formatter.PrintBanner(o.backendURL)

	if o.startedAt.IsZero() {
		o.startedAt = time.Now()
	}

	for _, p := range phases {
		if ctx.Err() != nil {
			o.log.WithField("phase", p.name).Warn("Run interrupted, skipping remaining phases")
			o.notes = append(o.notes, fmt.Sprintf("run interrupted before phase %q", p.name))

			break
		}

		o.formatter.PrintPhase(p.name)

		start := time.Now()
		p.run(ctx)

		o.log.WithFields(logrus.Fields{
			"phase":    p.name,
			"duration": time.Since(start),
		}).Debug("Phase complete")
	}

	return o.finish(ctx)
}

func (o *Orchestrator) finish(ctx context.Context) *report.Report {
	finished := time.Now()

	rep := report.Build(report.Meta{
		RunID:      o.runID,
		BackendURL: o.backendURL,
		StartedAt:  o.startedAt,
		FinishedAt: finished,
		Notes:      append([]string{ObservationNote}, o.notes...),
	}, o.recorder, o.events, o.stressResult)

	if o.sink != nil {
		// The run may have been interrupted; persisting still gets its own deadline.
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		err := o.sink.Write(writeCtx, sink.Run{
			ID:         o.runID,
			BackendURL: o.backendURL,
			StartedAt:  o.startedAt,
			FinishedAt: finished,
			Summary:    rep.Summary,
			Outcomes:   o.recorder.Outcomes(),
		})
		if err != nil {
			o.log.WithError(err).Warn("Failed to persist run")
		}
	}

	return rep
}

// checkResult is what a single check reports back to check().
type checkResult struct {
	passed  bool
	message string
	detail  any
}

func pass(format string, args ...any) checkResult {
	return checkResult{passed: true, message: fmt.Sprintf(format, args...)}
}

func fail(format string, args ...any) checkResult {
	return checkResult{message: fmt.Sprintf(format, args...)}
}

func (r checkResult) with(detail any) checkResult {
	r.detail = detail
	return r
}

func connectionFailure(err error) checkResult {
	return fail("Connection error: %v", err)
}

// check runs fn and records its result. A panic inside fn becomes a failed
// outcome so later checks still run.
func (o *Orchestrator) check(name string, fn func() checkResult) (passed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			o.log.WithFields(logrus.Fields{"check": name, "panic": rec}).Error("Check panicked")
			o.recorder.Record(recorder.Outcome{Name: name, Message: fmt.Sprintf("check panicked: %v", rec)})

			passed = false
		}
	}()

	res := fn()
	o.recorder.Record(recorder.Outcome{
		Name:    name,
		Passed:  res.passed,
		Message: res.message,
		Detail:  res.detail,
	})

	return res.passed
}

// sleep waits d or until ctx is done, reporting whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
