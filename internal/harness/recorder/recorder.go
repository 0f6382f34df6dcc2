// Package recorder provides the append-only, thread-safe log of check outcomes
// and the aggregate statistics derived from it.
package recorder

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/telemetry"
	"github.com/sirupsen/logrus"
)

const unnamedCheck = "unnamed check"

// Outcome is one recorded check. It is never mutated once recorded.
type Outcome struct {
	Name       string
	Passed     bool
	Message    string
	RecordedAt time.Time
	Detail     any
}

// Stats provides aggregate statistics over the outcome log.
type Stats struct {
	Total       int
	Passed      int
	Failed      int
	SuccessRate float64 // ratio in [0,1]
}

// Printer receives one console line per recorded outcome.
type Printer interface {
	PrintSuccess(message string)
	PrintFailure(message string)
}

// Recorder interface for outcome collection
type Recorder interface {
	Start(ctx context.Context) error
	Stop() error
	Record(outcome Outcome)
	Stats() Stats
	Outcomes() []Outcome
	Categorize(pred func(name string) bool) []Outcome
	Matching(substr string) []Outcome
	Elapsed() time.Duration
}

type recorder struct {
	log       logrus.FieldLogger
	printer   Printer
	telemetry *telemetry.Metrics

	mu        sync.RWMutex
	outcomes  []Outcome
	startTime time.Time
}

// Option configures a Recorder.
type Option func(*recorder)

// WithPrinter attaches a console printer.
func WithPrinter(p Printer) Option {
	return func(r *recorder) {
		r.printer = p
	}
}

// WithTelemetry counts every recorded outcome.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(r *recorder) {
		r.telemetry = m
	}
}

// New creates a new outcome recorder.
func New(log logrus.FieldLogger, opts ...Option) Recorder {
	r := &recorder{
		log:       log.WithField("component", "recorder"),
		outcomes:  make([]Outcome, 0, 64),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *recorder) Start(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.startTime = time.Now()

	r.log.Debug("recorder started")

	return nil
}

func (r *recorder) Stop() error {
	stats := r.Stats()

	r.log.WithFields(logrus.Fields{
		"total":  stats.Total,
		"passed": stats.Passed,
		"failed": stats.Failed,
	}).Debug("recorder stopped")

	return nil
}

// Record appends an outcome. It must never fail the caller, so printer panics
// are swallowed and logged.
func (r *recorder) Record(outcome Outcome) {
	if strings.TrimSpace(outcome.Name) == "" {
		outcome.Name = unnamedCheck
	}

	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}

	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()

	r.telemetry.RecordOutcome(outcome.Passed)
	r.emit(outcome)
}

func (r *recorder) emit(outcome Outcome) {
	if r.printer == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Warn("printer panicked while recording outcome")
		}
	}()

	line := fmt.Sprintf("%s: %s", outcome.Name, outcome.Message)
	if outcome.Passed {
		r.printer.PrintSuccess("✓ " + line)
	} else {
		r.printer.PrintFailure("✗ " + line)
	}
}

func (r *recorder) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return computeStats(r.outcomes)
}

func (r *recorder) Outcomes() []Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()
	// Return copy to avoid race conditions
	result := make([]Outcome, len(r.outcomes))
	copy(result, r.outcomes)

	return result
}

func (r *recorder) Categorize(pred func(name string) bool) []Outcome {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Outcome, 0)
	for _, o := range r.outcomes {
		if pred(o.Name) {
			result = append(result, o)
		}
	}

	return result
}

func (r *recorder) Matching(substr string) []Outcome {
	return r.Categorize(func(name string) bool {
		return strings.Contains(name, substr)
	})
}

func (r *recorder) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return time.Since(r.startTime)
}

// Summarize computes Stats over an arbitrary outcome slice.
func Summarize(outcomes []Outcome) Stats {
	return computeStats(outcomes)
}

func computeStats(outcomes []Outcome) Stats {
	stats := Stats{Total: len(outcomes)}

	for _, o := range outcomes {
		if o.Passed {
			stats.Passed++
		} else {
			stats.Failed++
		}
	}

	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Passed) / float64(stats.Total)
	}

	return stats
}

// Compile-time interface compliance check
var _ Recorder = (*recorder)(nil)
