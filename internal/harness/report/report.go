// Package report turns a finished run into the structured JSON document and
// the verdict printed at the end of the suite.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime"
	"github.com/ethpandaops/market-sim-harness/internal/harness/recorder"
	"github.com/ethpandaops/market-sim-harness/internal/harness/stress"
	"github.com/google/uuid"
)

const (
	// MessageTail is how many captured realtime events the report keeps.
	MessageTail = 50

	filenameLayout = "20060102_150405"
)

// Verdict is the overall assessment derived from the success rate.
type Verdict string

// Verdict tiers.
const (
	VerdictFullyFunctional  Verdict = "fully functional"
	VerdictWorkingWell      Verdict = "working well"
	VerdictPartiallyWorking Verdict = "partially working"
	VerdictNeedsFixes       Verdict = "needs fixes"
)

// Tier thresholds in percent.
const (
	FullyFunctionalThreshold  = 90.0
	WorkingWellThreshold      = 75.0
	PartiallyWorkingThreshold = 60.0
)

// VerdictFor maps a success rate in percent to its tier.
func VerdictFor(percent float64) Verdict {
	switch {
	case percent >= FullyFunctionalThreshold:
		return VerdictFullyFunctional
	case percent >= WorkingWellThreshold:
		return VerdictWorkingWell
	case percent >= PartiallyWorkingThreshold:
		return VerdictPartiallyWorking
	default:
		return VerdictNeedsFixes
	}
}

// Passing reports whether the tier counts as a healthy backend.
func (v Verdict) Passing() bool {
	return v == VerdictFullyFunctional || v == VerdictWorkingWell
}

// Meta identifies a run.
type Meta struct {
	RunID      uuid.UUID
	BackendURL string
	StartedAt  time.Time
	FinishedAt time.Time
	Notes      []string
}

// Summary is the headline block of the report.
type Summary struct {
	RunID       string  `json:"run_id"`
	Timestamp   string  `json:"timestamp"`
	BackendURL  string  `json:"backend_url"`
	DurationSec float64 `json:"duration_seconds"`
	TotalTests  int     `json:"total_tests"`
	TestsPassed int     `json:"tests_passed"`
	TestsFailed int     `json:"tests_failed"`
	SuccessRate float64 `json:"success_rate"`
	Verdict     Verdict `json:"verdict"`
}

// Category aggregates outcomes whose names share a prefix.
type Category struct {
	Name   string `json:"name"`
	Total  int    `json:"total"`
	Passed int    `json:"passed"`
	Failed int    `json:"failed"`
}

// TestResult is one outcome as serialized in the report.
type TestResult struct {
	Test      string `json:"test"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// Message is one captured realtime event.
type Message struct {
	Event     string         `json:"event"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// Activity counts captured events per channel.
type Activity struct {
	Tick              int `json:"tick"`
	HistoricalData    int `json:"historical_data"`
	PortfolioUpdate   int `json:"portfolio_update"`
	LeaderboardUpdate int `json:"leaderboard_update"`
}

// Stress is the concurrency stress block.
type Stress struct {
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Ratio     float64  `json:"ratio"`
	Passed    bool     `json:"passed"`
	Errors    []string `json:"errors,omitempty"`
}

// Report is the full JSON document.
type Report struct {
	Summary           Summary      `json:"test_summary"`
	Categories        []Category   `json:"categories"`
	Results           []TestResult `json:"test_results"`
	WebsocketMessages []Message    `json:"websocket_messages"`
	WebsocketActivity Activity     `json:"websocket_activity"`
	Stress            *Stress      `json:"stress,omitempty"`
	Notes             []string     `json:"notes,omitempty"`
}

// Build assembles the report from the run's recorder, captured events and
// stress result. events and stressResult may be nil.
func Build(meta Meta, rec recorder.Recorder, events *realtime.EventBuffer, stressResult *stress.Result) *Report {
	outcomes := rec.Outcomes()
	stats := recorder.Summarize(outcomes)
	percent := stats.SuccessRate * 100.0

	finished := meta.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	r := &Report{
		Summary: Summary{
			RunID:       meta.RunID.String(),
			Timestamp:   finished.Format(time.RFC3339),
			BackendURL:  meta.BackendURL,
			TotalTests:  stats.Total,
			TestsPassed: stats.Passed,
			TestsFailed: stats.Failed,
			SuccessRate: percent,
			Verdict:     VerdictFor(percent),
		},
		Categories:        Categorize(rec),
		Results:           make([]TestResult, 0, len(outcomes)),
		WebsocketMessages: []Message{},
		Notes:             meta.Notes,
	}

	if !meta.StartedAt.IsZero() {
		r.Summary.DurationSec = finished.Sub(meta.StartedAt).Seconds()
	}

	for _, o := range outcomes {
		r.Results = append(r.Results, TestResult{
			Test:      o.Name,
			Success:   o.Passed,
			Message:   o.Message,
			Timestamp: o.RecordedAt.Format(time.RFC3339Nano),
			Data:      o.Detail,
		})
	}

	if events != nil {
		for _, e := range events.Last(MessageTail) {
			r.WebsocketMessages = append(r.WebsocketMessages, Message{
				Event:     string(e.Channel),
				Data:      e.Payload,
				Timestamp: e.ReceivedAt.Format(time.RFC3339Nano),
			})
		}

		counts := make(map[realtime.Channel]int, len(realtime.Channels()))
		for _, ch := range realtime.Channels() {
			counts[ch] = events.Count(ch)
		}

		r.WebsocketActivity = Activity{
			Tick:              counts[realtime.ChannelTick],
			HistoricalData:    counts[realtime.ChannelHistoricalData],
			PortfolioUpdate:   counts[realtime.ChannelPortfolioUpdate],
			LeaderboardUpdate: counts[realtime.ChannelLeaderboardUpdate],
		}
	}

	if stressResult != nil {
		r.Stress = &Stress{
			Requested: stressResult.Requested,
			Succeeded: stressResult.Succeeded,
			Ratio:     stressResult.Ratio,
			Passed:    stressResult.Passed,
			Errors:    stressResult.Errors,
		}
	}

	return r
}

// Failures returns the failed results in recording order.
func (r *Report) Failures() []TestResult {
	out := make([]TestResult, 0)

	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}

	return out
}

// DefaultFilename is the report name used when none is given.
func DefaultFilename(at time.Time) string {
	return fmt.Sprintf("test_report_%s.json", at.Format(filenameLayout))
}

// Save writes the report as indented JSON into dir and returns the path.
func (r *Report) Save(dir, name string) (string, error) {
	if strings.TrimSpace(name) == "" {
		name = DefaultFilename(time.Now())
	}

	if dir == "" {
		dir = "."
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	return path, nil
}
