// Package output prints the harness's human-facing console stream.
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/format"
	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/ethpandaops/market-sim-harness/internal/harness/table"
	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Formatter provides clean, human-friendly output
type Formatter interface {
	PrintBanner(target string)
	PrintPhase(phase string)
	PrintProgress(message string, duration time.Duration)
	PrintInfo(message string)
	PrintWarning(message string)
	PrintSuccess(message string)
	PrintFailure(message string)
	PrintError(message string, err error)
	PrintReport(r *report.Report)
}

type formatter struct {
	writer  io.Writer
	verbose bool

	summaryFormatter  *table.SummaryFormatter
	categoryFormatter *table.CategoryFormatter
	resultsFormatter  *table.ResultsFormatter

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	blue   *color.Color
	gray   *color.Color
}

// NewFormatter creates a new output formatter writing to writer.
func NewFormatter(log logrus.FieldLogger, writer io.Writer, verbose bool) Formatter {
	renderer := table.NewRenderer(log)

	return &formatter{
		writer:            writer,
		verbose:           verbose,
		summaryFormatter:  table.NewSummaryFormatter(log, renderer),
		categoryFormatter: table.NewCategoryFormatter(log, renderer),
		resultsFormatter:  table.NewResultsFormatter(log, renderer),
		green:             color.New(color.FgGreen),
		red:               color.New(color.FgRed),
		yellow:            color.New(color.FgYellow),
		blue:              color.New(color.FgBlue),
		gray:              color.New(color.FgHiBlack),
	}
}

// PrintBanner prints the run header.
func (f *formatter) PrintBanner(target string) {
	f.blue.Fprintf(f.writer, "🚀 Market simulation integration suite\n")
	f.gray.Fprintf(f.writer, "   target: %s\n", target)
}

// PrintPhase prints phase separator
func (f *formatter) PrintPhase(phase string) {
	f.blue.Fprintf(f.writer, "\n▸ %s\n", phase)
}

// PrintProgress prints a message with optional timing.
func (f *formatter) PrintProgress(message string, duration time.Duration) {
	if duration > 0 {
		f.gray.Fprintf(f.writer, "%s (%s)\n", message, format.Duration(duration))
	} else {
		fmt.Fprintf(f.writer, "%s\n", message)
	}
}

// PrintInfo prints informational text, only in verbose mode.
func (f *formatter) PrintInfo(message string) {
	if !f.verbose {
		return
	}

	f.gray.Fprintf(f.writer, "  %s\n", message)
}

func (f *formatter) PrintWarning(message string) {
	f.yellow.Fprintf(f.writer, "⚠ %s\n", message)
}

func (f *formatter) PrintSuccess(message string) {
	f.green.Fprintf(f.writer, "%s\n", message)
}

func (f *formatter) PrintFailure(message string) {
	f.red.Fprintf(f.writer, "%s\n", message)
}

// PrintError prints red message + error details
func (f *formatter) PrintError(message string, err error) {
	f.red.Fprintf(f.writer, "%s", message)

	if err != nil {
		f.red.Fprintf(f.writer, ": %v", err)
	}

	fmt.Fprintf(f.writer, "\n")
}

// PrintReport renders the whole report: summary, categories, activity and results.
func (f *formatter) PrintReport(r *report.Report) {
	if r == nil {
		return
	}

	fmt.Fprintln(f.writer, f.categoryFormatter.Format(r.Categories))
	fmt.Fprintln(f.writer, f.categoryFormatter.FormatActivity(r.WebsocketActivity))

	if f.verbose || len(r.Failures()) > 0 {
		fmt.Fprintln(f.writer, f.resultsFormatter.Format(r.Results))
	}

	for _, note := range r.Notes {
		f.gray.Fprintf(f.writer, "note: %s\n", note)
	}

	fmt.Fprintln(f.writer, f.summaryFormatter.Format(r.Summary))
}
