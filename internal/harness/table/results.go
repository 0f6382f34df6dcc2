package table

import (
	"fmt"
	"strings"

	"github.com/ethpandaops/market-sim-harness/internal/harness/format"
	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/sirupsen/logrus"
)

const messageWidth = 60

// ResultsFormatter renders every check result plus a failure detail section.
type ResultsFormatter struct {
	log      logrus.FieldLogger
	renderer Renderer
	colors   *ColorHelper
}

// NewResultsFormatter creates a results formatter.
func NewResultsFormatter(log logrus.FieldLogger, renderer Renderer) *ResultsFormatter {
	return &ResultsFormatter{
		log:      log.WithField("component", "table.results_formatter"),
		renderer: renderer,
		colors:   NewColorHelper(),
	}
}

// Format renders the results table.
func (f *ResultsFormatter) Format(results []report.TestResult) string {
	if len(results) == 0 {
		return "No checks executed"
	}

	var (
		headers = []string{"Check", "Status", "Message"}
		rows    = make([][]string, 0, len(results))
		failed  = make([]report.TestResult, 0)
	)

	for _, res := range results {
		msg := format.Truncate(res.Message, messageWidth)
		if !res.Success {
			failed = append(failed, res)
			msg = f.colors.Muted(msg)
		}

		rows = append(rows, []string{res.Test, f.colors.FormatStatus(res.Success), msg})
	}

	output := "\n" + f.colors.Header("▸ Detailed Results") + "\n\n" + f.renderer.RenderToString(headers, rows)

	if len(failed) > 0 {
		output += f.formatFailureDetails(failed)
	}

	return output
}

func (f *ResultsFormatter) formatFailureDetails(failed []report.TestResult) string {
	var b strings.Builder

	b.WriteString("\n" + f.colors.Header("▸ Failed Check Details") + "\n\n")

	for _, res := range failed {
		b.WriteString(fmt.Sprintf("%s %s\n", f.colors.Failure("✗"), f.colors.Bold(res.Test)))

		message := res.Message
		if message == "" {
			message = "check failed (no details available)"
		}

		b.WriteString(fmt.Sprintf("  %s: %s\n", f.colors.Failure("Error"), message))
	}

	return b.String()
}
