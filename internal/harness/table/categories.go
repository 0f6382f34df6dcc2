package table

import (
	"fmt"

	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/sirupsen/logrus"
)

// CategoryFormatter renders per-category pass counts.
type CategoryFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewCategoryFormatter creates a category formatter.
func NewCategoryFormatter(log logrus.FieldLogger, renderer Renderer) *CategoryFormatter {
	return &CategoryFormatter{
		log:      log.WithField("component", "table.category_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format renders one row per category.
func (f *CategoryFormatter) Format(categories []report.Category) string {
	if len(categories) == 0 {
		return "No categorized checks"
	}

	headers := []string{"Category", "Passed", "Rate"}
	rows := make([][]string, 0, len(categories))

	for _, c := range categories {
		rate := 0.0
		if c.Total > 0 {
			rate = float64(c.Passed) / float64(c.Total) * 100.0
		}

		rows = append(rows, []string{
			c.Name,
			f.colors.FormatRatio(c.Passed, c.Total),
			f.colors.FormatPercentage(rate),
		})
	}

	return fmt.Sprintf("\n%s\n\n%s", f.colors.Header("▸ Categories"), f.renderer.RenderToString(headers, rows))
}

// FormatActivity renders captured realtime event counts per channel.
func (f *CategoryFormatter) FormatActivity(a report.Activity) string {
	rows := [][]string{
		{"tick", fmt.Sprintf("%d", a.Tick)},
		{"historical_data", fmt.Sprintf("%d", a.HistoricalData)},
		{"portfolio_update", fmt.Sprintf("%d", a.PortfolioUpdate)},
		{"leaderboard_update", fmt.Sprintf("%d", a.LeaderboardUpdate)},
	}

	return fmt.Sprintf("\n%s\n\n%s",
		f.colors.Header("▸ Realtime Activity"),
		f.renderer.RenderToString([]string{"Channel", "Events"}, rows),
	)
}
