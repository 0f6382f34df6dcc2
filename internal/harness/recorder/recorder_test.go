package recorder

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

type capturePrinter struct {
	mu    sync.Mutex
	lines []string
}

func (p *capturePrinter) PrintSuccess(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, message)
}

func (p *capturePrinter) PrintFailure(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lines = append(p.lines, message)
}

type panicPrinter struct{}

func (panicPrinter) PrintSuccess(string) { panic("boom") }
func (panicPrinter) PrintFailure(string) { panic("boom") }

func TestRecorder_StatsEmpty(t *testing.T) {
	t.Parallel()

	r := New(newTestLogger())
	stats := r.Stats()

	assert.Equal(t, Stats{}, stats)
	assert.InDelta(t, 0.0, stats.SuccessRate, 0)
}

func TestRecorder_RecordAndStats(t *testing.T) {
	t.Parallel()

	printer := &capturePrinter{}
	r := New(newTestLogger(), WithPrinter(printer))

	r.Record(Outcome{Name: "Health Endpoint", Passed: true, Message: "Status: ok"})
	r.Record(Outcome{Name: "Symbols Endpoint", Passed: false, Message: "No symbols returned"})
	r.Record(Outcome{Name: "WebSocket Connection", Passed: true, Message: "connected"})

	stats := r.Stats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Passed)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, stats.Total, stats.Passed+stats.Failed)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)

	outcomes := r.Outcomes()
	require.Len(t, outcomes, 3)
	assert.Equal(t, "Health Endpoint", outcomes[0].Name)
	assert.False(t, outcomes[0].RecordedAt.IsZero())

	require.Len(t, printer.lines, 3)
	assert.Equal(t, "✓ Health Endpoint: Status: ok", printer.lines[0])
	assert.Equal(t, "✗ Symbols Endpoint: No symbols returned", printer.lines[1])
}

func TestRecorder_OutcomesReturnsCopy(t *testing.T) {
	t.Parallel()

	r := New(newTestLogger())
	r.Record(Outcome{Name: "a", Passed: true})

	outcomes := r.Outcomes()
	outcomes[0].Name = "mutated"

	assert.Equal(t, "a", r.Outcomes()[0].Name)
}

func TestRecorder_BlankNameAndPrinterPanic(t *testing.T) {
	t.Parallel()

	r := New(newTestLogger(), WithPrinter(panicPrinter{}))

	assert.NotPanics(t, func() {
		r.Record(Outcome{Name: "  ", Passed: false})
	})

	require.Len(t, r.Outcomes(), 1)
	assert.Equal(t, unnamedCheck, r.Outcomes()[0].Name)
}

func TestRecorder_CategorizeAndMatching(t *testing.T) {
	t.Parallel()

	r := New(newTestLogger())
	r.Record(Outcome{Name: "WebSocket Connection", Passed: true})
	r.Record(Outcome{Name: "WebSocket Market Data (AAPL)", Passed: false})
	r.Record(Outcome{Name: "Candlestick (AAPL, 1m)", Passed: true})

	ws := r.Matching("WebSocket")
	require.Len(t, ws, 2)
	assert.Equal(t, "WebSocket Market Data (AAPL)", ws[1].Name)

	aapl := r.Categorize(func(name string) bool { return strings.Contains(name, "AAPL") })
	assert.Len(t, aapl, 2)

	assert.Empty(t, r.Matching("Trading"))
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	r := New(newTestLogger(), WithPrinter(&capturePrinter{}))

	const workers = 20
	const perWorker = 50

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				r.Record(Outcome{Name: fmt.Sprintf("worker %d check %d", w, i), Passed: i%2 == 0})
			}
		}(w)
	}
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, workers*perWorker, stats.Total)
	assert.Equal(t, stats.Total, stats.Passed+stats.Failed)
	assert.Equal(t, workers*perWorker/2, stats.Passed)
	assert.GreaterOrEqual(t, stats.SuccessRate, 0.0)
	assert.LessOrEqual(t, stats.SuccessRate, 1.0)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	stats := Summarize([]Outcome{{Passed: true}, {Passed: true}, {Passed: true}, {Passed: true}, {Passed: false}})
	assert.Equal(t, 5, stats.Total)
	assert.InDelta(t, 0.8, stats.SuccessRate, 1e-9)
}
