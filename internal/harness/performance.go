package harness

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/format"
	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime"
	"github.com/ethpandaops/market-sim-harness/internal/harness/stress"
)

func (o *Orchestrator) runStress(ctx context.Context) {
	runner := stress.NewRunner(o.log, func(int) stress.Conn {
		// Workers own their clients and buffers; nothing they capture feeds the report.
		return o.newRealtimeClient(
			realtime.WithRetryPolicy(realtime.RetryPolicy{}),
			realtime.WithBuffer(realtime.NewEventBuffer(1)),
		)
	}, stress.WithHold(o.stressHold))

	o.check("Concurrent Connections", func() checkResult {
		res := runner.Run(ctx, o.stressConnections, o.tc.StressConnectTimeout)
		o.stressResult = &res

		detail := map[string]any{
			"requested": res.Requested,
			"succeeded": res.Succeeded,
			"ratio":     res.Ratio,
		}

		if len(res.Errors) > 0 {
			detail["errors"] = res.Errors
		}

		if !res.Passed {
			return fail("%s (need %s)", res.Summary(), format.Percent(0.8)).with(detail)
		}

		return pass("%s", res.Summary()).with(detail)
	})
}

type latencyTarget struct {
	label string
	path  string
	query url.Values
}

// latencyTargets lists the sampled endpoints. It needs at least one discovered symbol.
func (o *Orchestrator) latencyTargets() []latencyTarget {
	s := o.symbols[0]

	return []latencyTarget{
		{label: "/health", path: "/health"},
		{label: "/symbols", path: "/symbols"},
		{
			label: "/history/" + s,
			path:  symbolPath("/history", s),
			query: url.Values{"limit": {strconv.Itoa(o.tc.LatencyHistoryLimit)}},
		},
		{
			label: "/candlestick/" + s,
			path:  symbolPath("/candlestick", s),
			query: url.Values{"interval": {"1m"}},
		},
	}
}

func (o *Orchestrator) runLatency(ctx context.Context) {
	if len(o.symbols) == 0 {
		o.log.Warn("No symbols discovered, skipping response time checks")
		return
	}

	for _, target := range o.latencyTargets() {
		o.check("Response Time "+target.label, func() checkResult {
			samples := o.sampleLatency(ctx, target)
			if len(samples) == 0 {
				return fail("No successful samples out of %d", o.latencySamples)
			}

			avg, peak := summarizeLatency(samples)
			detail := map[string]any{
				"samples": len(samples),
				"avg_ms":  float64(avg.Microseconds()) / 1000.0,
				"max_ms":  float64(peak.Microseconds()) / 1000.0,
			}

			msg := "Avg: " + format.Millis(avg) + ", Max: " + format.Millis(peak)
			if avg >= o.latencyCeiling {
				return fail("%s (ceiling %s)", msg, format.Duration(o.latencyCeiling)).with(detail)
			}

			return pass("%s", msg).with(detail)
		})
	}
}

// sampleLatency returns the latency of each sample that answered 200.
func (o *Orchestrator) sampleLatency(ctx context.Context, target latencyTarget) []time.Duration {
	samples := make([]time.Duration, 0, o.latencySamples)

	for i := 0; i < o.latencySamples; i++ {
		resp, err := o.probe.Get(ctx, target.path, target.query)
		if err != nil {
			o.log.WithError(err).WithField("target", target.label).Debug("Latency sample failed")
			continue
		}

		if resp.StatusCode == http.StatusOK {
			samples = append(samples, resp.Latency)
		}
	}

	return samples
}

func summarizeLatency(samples []time.Duration) (avg, peak time.Duration) {
	var total time.Duration

	for _, s := range samples {
		total += s
		peak = max(peak, s)
	}

	return total / time.Duration(len(samples)), peak
}
