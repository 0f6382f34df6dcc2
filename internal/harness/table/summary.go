package table

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/sirupsen/logrus"
)

// SummaryFormatter renders the headline numbers of a report.
type SummaryFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewSummaryFormatter creates a summary formatter.
func NewSummaryFormatter(log logrus.FieldLogger, renderer Renderer) *SummaryFormatter {
	return &SummaryFormatter{
		log:      log.WithField("component", "table.summary_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format renders the summary table followed by the verdict line.
func (f *SummaryFormatter) Format(s report.Summary) string {
	failedValue := fmt.Sprintf("%d", s.TestsFailed)
	if s.TestsFailed > 0 {
		failedValue = f.colors.Failure(failedValue)
	} else {
		failedValue = f.colors.Success(failedValue)
	}

	var (
		headers = []string{"Metric", "Value"}
		rows    = [][]string{
			{"Backend", s.BackendURL},
			{"Run ID", f.colors.Muted(s.RunID)},
			{"Total Tests", f.colors.Bold(fmt.Sprintf("%d", s.TotalTests))},
			{"Passed", f.colors.Success(fmt.Sprintf("%d", s.TestsPassed))},
			{"Failed", failedValue},
			{"Success Rate", f.colors.FormatPercentage(s.SuccessRate)},
			{"Duration", fmt.Sprintf("%.1fs", s.DurationSec)},
		}
	)

	var b strings.Builder

	b.WriteString("\n" + f.colors.Header("▸ Summary") + "\n\n")
	b.WriteString(f.renderer.RenderToString(headers, rows))
	b.WriteString("\n" + f.colors.FormatVerdict(s.Verdict) + "\n")

	return b.String()
}
