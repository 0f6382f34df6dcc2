package harness

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/format"
	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime/realtimetest"
	"github.com/ethpandaops/market-sim-harness/internal/harness/recorder"
	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/ethpandaops/market-sim-harness/internal/harness/testcfg"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func fastTestConfig() *testcfg.TestConfig {
	tc := testcfg.DefaultTestConfig()
	tc.ConnectTimeout = 2 * time.Second
	tc.StressConnectTimeout = 2 * time.Second
	tc.RetryDelay = 10 * time.Millisecond
	tc.UnsubscribeSettle = 50 * time.Millisecond
	tc.PortfolioWindow = time.Second
	tc.TradePause = 0

	return tc
}

// startBackend serves the fake REST API and a Socket.IO endpoint on one address.
func startBackend(t *testing.T, svc *fakeService) *realtimetest.Server {
	t.Helper()

	return startBackendWith(t, svc, realtimetest.Config{
		TickInterval:     20 * time.Millisecond,
		HistoricalOnJoin: true,
	})
}

func startBackendWith(t *testing.T, svc *fakeService, cfg realtimetest.Config) *realtimetest.Server {
	t.Helper()

	cfg.Fallback = svc.handler()

	srv := realtimetest.NewServer(cfg)
	svc.rt = srv

	t.Cleanup(srv.Close)

	return srv
}

func newTestOrchestrator(t *testing.T, url string, trading bool) *Orchestrator {
	t.Helper()

	o, err := NewOrchestrator(&OrchestratorConfig{
		Logger:            quietLogger(),
		Writer:            io.Discard,
		BackendURL:        url,
		Timeout:           2 * time.Second,
		ObservationWindow: 300 * time.Millisecond,
		StressConnections: 5,
		StressHold:        10 * time.Millisecond,
		LatencySamples:    2,
		Trading:           trading,
		TradingSeed:       42,
		TestConfig:        fastTestConfig(),
	})
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))

	t.Cleanup(func() { _ = o.Stop() })

	return o
}

func outcome(t *testing.T, rec recorder.Recorder, name string) recorder.Outcome {
	t.Helper()

	for _, o := range rec.Outcomes() {
		if o.Name == name {
			return o
		}
	}

	require.Failf(t, "outcome not recorded", "%q", name)

	return recorder.Outcome{}
}

func failedNames(rec recorder.Recorder) []string {
	out := make([]string, 0)

	for _, o := range rec.Outcomes() {
		if !o.Passed {
			out = append(out, o.Name+": "+o.Message)
		}
	}

	return out
}

func TestRun_HealthyBackend(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService("AAPL", "MSFT"))
	o := newTestOrchestrator(t, srv.URL, false)

	rep := o.Run(context.Background())

	assert.Empty(t, failedNames(o.Recorder()))
	assert.Equal(t, report.VerdictFullyFunctional, rep.Summary.Verdict)
	assert.InDelta(t, 100.0, rep.Summary.SuccessRate, 1e-9)

	for _, name := range []string{
		"Health Check",
		"Symbols Endpoint",
		"History AAPL",
		"History MSFT",
		"History Pagination AAPL",
		"Candlestick AAPL 1m",
		"Candlestick AAPL 1h",
		"Auth Boundary POST /trade",
		"Auth Boundary GET /admin/simulation/status",
		"Input Validation zero quantity",
		"Leaderboard Limit",
		"WebSocket Connection",
		"WebSocket Market Data AAPL",
		"WebSocket Multiple Symbols",
		"WebSocket Privileged Events",
		"WebSocket Unsubscribe AAPL",
		"WebSocket Reconnect",
		"Concurrent Connections",
		"Response Time /health",
		"Response Time /candlestick/AAPL",
	} {
		assert.True(t, outcome(t, o.Recorder(), name).Passed, name)
	}

	assert.Equal(t, "5/5 connections successful", outcome(t, o.Recorder(), "Concurrent Connections").Message)
	assert.Contains(t, outcome(t, o.Recorder(), "Response Time /health").Message, "Avg: ")
	assert.Equal(t, "Found 2 symbols", outcome(t, o.Recorder(), "Symbols Endpoint").Message)

	assert.Contains(t, srv.Joins(), "AAPL")
	assert.Contains(t, srv.Joins(), "MSFT")
	assert.Contains(t, srv.Leaves(), "AAPL")

	require.NotNil(t, rep.Stress)
	assert.True(t, rep.Stress.Passed)
	assert.NotEmpty(t, rep.WebsocketMessages)
	assert.LessOrEqual(t, len(rep.WebsocketMessages), report.MessageTail)
	assert.Contains(t, rep.Notes, ObservationNote)

	names := make([]string, 0, len(rep.Categories))
	for _, c := range rep.Categories {
		names = append(names, c.Name)
	}

	assert.Equal(t, []string{
		report.CategoryHealth,
		report.CategorySymbols,
		report.CategoryHistory,
		report.CategoryCandlestick,
		report.CategoryAuthBoundary,
		report.CategoryInputValidation,
		report.CategoryLeaderboard,
		report.CategoryWebSocket,
		report.CategoryConcurrent,
		report.CategoryResponseTime,
	}, names)
}

func TestRun_HealthMissingFields(t *testing.T) {
	t.Parallel()

	svc := newFakeService("AAPL")
	svc.omitUptime = true

	srv := startBackend(t, svc)
	o := newTestOrchestrator(t, srv.URL, false)

	o.checkHealth(context.Background())

	health := outcome(t, o.Recorder(), "Health Check")
	assert.False(t, health.Passed)
	assert.Equal(t, "Missing fields: [uptime]", health.Message)
}

func TestRun_AuthBoundaryRegression(t *testing.T) {
	t.Parallel()

	svc := newFakeService("AAPL")
	svc.leakPortfolio = true

	srv := startBackend(t, svc)
	o := newTestOrchestrator(t, srv.URL, false)

	o.runAuthBoundary(context.Background())

	leaked := outcome(t, o.Recorder(), "Auth Boundary GET /portfolio")
	assert.False(t, leaked.Passed)
	assert.True(t, strings.HasPrefix(leaked.Message, "security regression"), leaked.Message)

	assert.True(t, outcome(t, o.Recorder(), "Auth Boundary GET /trades").Passed)
	assert.True(t, outcome(t, o.Recorder(), "Auth Boundary POST /admin/simulation/start").Passed)
	assert.Len(t, o.Recorder().Matching("Auth Boundary"), len(authBoundary))
}

func TestRun_InputValidation(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService("AAPL"))
	o := newTestOrchestrator(t, srv.URL, false)

	o.runInputValidation(context.Background())

	results := o.Recorder().Matching("Input Validation")
	require.Len(t, results, 4)

	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
		assert.Equal(t, "Rejected with 401", r.Message)
	}
}

func TestRun_EmptySymbolsSkipsSymbolChecks(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService())
	o := newTestOrchestrator(t, srv.URL, false)

	o.Run(context.Background())

	rec := o.Recorder()
	assert.False(t, outcome(t, rec, "Symbols Endpoint").Passed)
	assert.Empty(t, rec.Matching("History"))
	assert.Empty(t, rec.Matching("Candlestick"))
	assert.Empty(t, rec.Matching("WebSocket Market Data"))
	assert.Empty(t, rec.Matching("WebSocket Unsubscribe"))
	assert.True(t, outcome(t, rec, "WebSocket Reconnect").Passed)
	assert.Empty(t, rec.Matching("Response Time"))
	assert.True(t, outcome(t, rec, "WebSocket Privileged Events").Passed)
}

func TestRun_UnreachableBackend(t *testing.T) {
	t.Parallel()

	tc := fastTestConfig()
	tc.ConnectTimeout = 500 * time.Millisecond
	tc.StressConnectTimeout = 200 * time.Millisecond
	tc.RetryAttempts = 1

	o, err := NewOrchestrator(&OrchestratorConfig{
		Logger:            quietLogger(),
		Writer:            io.Discard,
		BackendURL:        "http://127.0.0.1:1",
		Timeout:           500 * time.Millisecond,
		ObservationWindow: 100 * time.Millisecond,
		StressHold:        time.Millisecond,
		LatencySamples:    1,
		TestConfig:        tc,
	})
	require.NoError(t, err)

	rep := o.Run(context.Background())

	health := outcome(t, o.Recorder(), "Health Check")
	assert.False(t, health.Passed)
	assert.True(t, strings.HasPrefix(health.Message, "Connection error: "), health.Message)

	assert.False(t, outcome(t, o.Recorder(), "WebSocket Connection").Passed)
	assert.Equal(t, "Not connected", outcome(t, o.Recorder(), "WebSocket Market Data").Message)
	assert.Equal(t, "0/5 connections successful (need 80.0%)", outcome(t, o.Recorder(), "Concurrent Connections").Message)

	assert.Equal(t, report.VerdictNeedsFixes, rep.Summary.Verdict)
	assert.Equal(t, rep.Summary.TotalTests, rep.Summary.TestsPassed+rep.Summary.TestsFailed)
}

func TestRun_CanceledContextStopsBeforeNextPhase(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService("AAPL"))
	o := newTestOrchestrator(t, srv.URL, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep := o.Run(ctx)

	assert.Zero(t, rep.Summary.TotalTests)
	assert.Contains(t, strings.Join(rep.Notes, "\n"), `run interrupted before phase "REST API"`)
}

func TestRunTrading(t *testing.T) {
	t.Parallel()

	svc := newFakeService("AAPL", "MSFT")
	srv := startBackend(t, svc)
	o := newTestOrchestrator(t, srv.URL, true)

	rep := o.RunTrading(context.Background())

	assert.Empty(t, failedNames(o.Recorder()))

	rec := o.Recorder()
	assert.True(t, outcome(t, rec, "Trading Create User").Passed)
	assert.True(t, outcome(t, rec, "Trading Realtime Portfolio").Passed)
	assert.Len(t, rec.Matching("Trading Buy"), 3)
	assert.NotEmpty(t, rec.Matching("Trading Sell"))
	assert.Contains(t, outcome(t, rec, "Trading Final Portfolio").Message, "Wealth change: 0.00")
	assert.Contains(t, outcome(t, rec, "Trading Trade Log").Message, "executed this run")

	assert.Equal(t, []string{fakeToken}, srv.Tokens())
	assert.Equal(t, report.VerdictFullyFunctional, rep.Summary.Verdict)
}

func TestCheck_RecoversPanics(t *testing.T) {
	t.Parallel()

	o, err := NewOrchestrator(&OrchestratorConfig{
		Logger:     quietLogger(),
		Writer:     io.Discard,
		BackendURL: "http://localhost:3001",
	})
	require.NoError(t, err)

	passed := o.check("Exploding Check", func() checkResult { panic("boom") })
	assert.False(t, passed)

	assert.True(t, o.check("Next Check", func() checkResult { return pass("fine") }))

	got := o.Recorder().Outcomes()
	require.Len(t, got, 2)
	assert.Equal(t, "check panicked: boom", got[0].Message)
	assert.True(t, got[1].Passed)
}

func TestNewOrchestrator_RequiresURL(t *testing.T) {
	t.Parallel()

	_, err := NewOrchestrator(&OrchestratorConfig{Logger: quietLogger(), Writer: io.Discard})
	require.Error(t, err)
}

func TestMissingFields(t *testing.T) {
	t.Parallel()

	obj := map[string]any{"status": "ok", "uptime": 1}

	assert.Equal(t, []string{"connectedUsers", "activeSymbols"}, missingFields(obj, healthFields...))
	assert.Empty(t, missingFields(obj, "status"))
}

func TestHoldingsOf(t *testing.T) {
	t.Parallel()

	assert.Equal(t, map[string]int{"AAPL": 10}, holdingsOf(map[string]any{"holdings": map[string]any{"AAPL": 10.0}}))
	assert.Equal(t, map[string]int{"MSFT": 4}, holdingsOf(map[string]any{
		"holdings": []any{map[string]any{"symbol": "MSFT", "quantity": 4.0}},
	}))
	assert.Empty(t, holdingsOf(map[string]any{}))
}

func TestSummarizeLatency(t *testing.T) {
	t.Parallel()

	avg, peak := summarizeLatency([]time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 30 * time.Millisecond})
	assert.Equal(t, 20*time.Millisecond, avg)
	assert.Equal(t, 30*time.Millisecond, peak)
}

// broadcastUntilDone pushes unauthenticated portfolio_update events until the test ends.
func broadcastUntilDone(t *testing.T, srv *realtimetest.Server) {
	t.Helper()

	done := make(chan struct{})
	t.Cleanup(func() { close(done) })

	go func() {
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				srv.Broadcast("portfolio_update", map[string]any{"symbol": "AAPL", "cash_balance": 1}, false)
			}
		}
	}()
}

func TestRealtime_IdleStreamFailsMarketData(t *testing.T) {
	t.Parallel()

	srv := startBackendWith(t, newFakeService("AAPL"), realtimetest.Config{})
	o := newTestOrchestrator(t, srv.URL, false)
	o.symbols = []string{"AAPL"}

	o.runRealtime(context.Background())

	data := outcome(t, o.Recorder(), "WebSocket Market Data AAPL")
	assert.False(t, data.Passed)
	assert.Equal(t,
		"No real-time data received for AAPL in "+format.Seconds(300*time.Millisecond)+
			" (service bug or idle tick generator)",
		data.Message)

	unsub := outcome(t, o.Recorder(), "WebSocket Unsubscribe AAPL")
	assert.True(t, unsub.Passed)
	assert.Contains(t, unsub.Message, "inconclusive")
}

func TestRealtime_PrivilegedEventLeak(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService("AAPL", "MSFT"))
	o := newTestOrchestrator(t, srv.URL, false)
	o.symbols = []string{"AAPL", "MSFT"}

	broadcastUntilDone(t, srv)
	o.runRealtime(context.Background())

	leak := outcome(t, o.Recorder(), "WebSocket Privileged Events")
	assert.False(t, leak.Passed)
	assert.True(t, strings.HasPrefix(leak.Message, "security regression"), leak.Message)

	assert.False(t, strings.Contains(outcome(t, o.Recorder(), "WebSocket Unsubscribe AAPL").Message, "inconclusive"))
}

func TestRealtime_PrivilegedEventLeakWithoutSymbols(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService())
	o := newTestOrchestrator(t, srv.URL, false)

	broadcastUntilDone(t, srv)
	o.runRealtime(context.Background())

	leak := outcome(t, o.Recorder(), "WebSocket Privileged Events")
	assert.False(t, leak.Passed)
	assert.True(t, strings.HasPrefix(leak.Message, "security regression"), leak.Message)
}

func TestRest_CandleMissingVolume(t *testing.T) {
	t.Parallel()

	svc := newFakeService("AAPL")
	svc.omitVolume = true

	srv := startBackend(t, svc)
	o := newTestOrchestrator(t, srv.URL, false)

	o.checkCandlestick(context.Background(), "AAPL", "1m")

	candle := outcome(t, o.Recorder(), "Candlestick AAPL 1m")
	assert.False(t, candle.Passed)
	assert.Equal(t, "Candle 0 Missing fields: [volume]", candle.Message)
}

func TestStress_ServerDropsDuringHold(t *testing.T) {
	t.Parallel()

	srv := startBackend(t, newFakeService("AAPL"))

	o, err := NewOrchestrator(&OrchestratorConfig{
		Logger:            quietLogger(),
		Writer:            io.Discard,
		BackendURL:        srv.URL,
		StressConnections: 5,
		StressHold:        time.Second,
		TestConfig:        fastTestConfig(),
	})
	require.NoError(t, err)

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for srv.Connected() < 5 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		srv.DropAll()
	}()

	o.runStress(context.Background())

	res := outcome(t, o.Recorder(), "Concurrent Connections")
	assert.False(t, res.Passed)
	assert.Equal(t, "0/5 connections successful (need 80.0%)", res.Message)
}
