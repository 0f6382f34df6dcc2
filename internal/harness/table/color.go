package table

import (
	"fmt"

	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/fatih/color"
)

// ColorHelper colors cell text when the terminal supports it.
type ColorHelper struct {
	enabled bool
}

// NewColorHelper creates a helper honoring color.NoColor.
func NewColorHelper() *ColorHelper {
	return &ColorHelper{
		enabled: !color.NoColor,
	}
}

// Success returns green text.
func (c *ColorHelper) Success(text string) string {
	if !c.enabled {
		return text
	}

	return color.GreenString(text)
}

// Failure returns red text.
func (c *ColorHelper) Failure(text string) string {
	if !c.enabled {
		return text
	}

	return color.RedString(text)
}

// Warning returns yellow text.
func (c *ColorHelper) Warning(text string) string {
	if !c.enabled {
		return text
	}

	return color.YellowString(text)
}

// Muted returns gray text.
func (c *ColorHelper) Muted(text string) string {
	if !c.enabled {
		return text
	}

	return color.New(color.FgHiBlack).Sprint(text)
}

// Bold returns bold text.
func (c *ColorHelper) Bold(text string) string {
	if !c.enabled {
		return text
	}

	return color.New(color.Bold).Sprint(text)
}

// Header returns bold cyan text for section headers.
func (c *ColorHelper) Header(text string) string {
	if !c.enabled {
		return text
	}

	return color.New(color.FgCyan, color.Bold).Sprint(text)
}

// FormatStatus renders a pass/fail cell.
func (c *ColorHelper) FormatStatus(passed bool) string {
	if passed {
		return c.Success("✓ PASS")
	}

	return c.Failure("✗ FAIL")
}

// FormatRatio renders passed/total, green when complete and red when nothing passed.
func (c *ColorHelper) FormatRatio(passed, total int) string {
	text := fmt.Sprintf("%d/%d", passed, total)

	switch {
	case passed == total:
		return c.Success(text)
	case passed == 0:
		return c.Failure(text)
	default:
		return c.Warning(text)
	}
}

// FormatPercentage colors a percent value by verdict tier.
func (c *ColorHelper) FormatPercentage(value float64) string {
	text := fmt.Sprintf("%.1f%%", value)

	switch report.VerdictFor(value) {
	case report.VerdictFullyFunctional:
		return c.Success(text)
	case report.VerdictWorkingWell, report.VerdictPartiallyWorking:
		return c.Warning(text)
	default:
		return c.Failure(text)
	}
}

// FormatVerdict renders the final verdict line.
func (c *ColorHelper) FormatVerdict(v report.Verdict) string {
	switch v {
	case report.VerdictFullyFunctional:
		return c.Success("🎉 Backend is " + string(v))
	case report.VerdictWorkingWell:
		return c.Success("✅ Backend is " + string(v))
	case report.VerdictPartiallyWorking:
		return c.Warning("⚠️  Backend is " + string(v))
	default:
		return c.Failure("❌ Backend " + string(v))
	}
}
