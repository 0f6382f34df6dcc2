package report

import (
	"strings"

	"github.com/ethpandaops/market-sim-harness/internal/harness/recorder"
)

// Category names, in display order. Each also serves as the outcome-name
// prefix that places an outcome in the category.
const (
	CategoryHealth          = "Health"
	CategorySymbols         = "Symbols"
	CategoryHistory         = "History"
	CategoryCandlestick     = "Candlestick"
	CategoryAuthBoundary    = "Auth Boundary"
	CategoryInputValidation = "Input Validation"
	CategoryLeaderboard     = "Leaderboard"
	CategoryWebSocket       = "WebSocket"
	CategoryConcurrent      = "Concurrent"
	CategoryResponseTime    = "Response Time"
	CategoryTrading         = "Trading"
)

var categoryOrder = []string{
	CategoryHealth,
	CategorySymbols,
	CategoryHistory,
	CategoryCandlestick,
	CategoryAuthBoundary,
	CategoryInputValidation,
	CategoryLeaderboard,
	CategoryWebSocket,
	CategoryConcurrent,
	CategoryResponseTime,
	CategoryTrading,
}

// Categorize groups the recorder's outcomes. Categories with no outcomes are omitted.
func Categorize(rec recorder.Recorder) []Category {
	out := make([]Category, 0, len(categoryOrder))

	for _, name := range categoryOrder {
		prefix := name

		matched := rec.Categorize(func(outcome string) bool {
			return strings.HasPrefix(outcome, prefix)
		})
		if len(matched) == 0 {
			continue
		}

		stats := recorder.Summarize(matched)
		out = append(out, Category{
			Name:   name,
			Total:  stats.Total,
			Passed: stats.Passed,
			Failed: stats.Failed,
		})
	}

	return out
}

// CategoryNames returns the category names in display order.
func CategoryNames() []string {
	return append([]string(nil), categoryOrder...)
}
