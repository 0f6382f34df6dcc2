package table

import (
	"testing"

	"github.com/ethpandaops/market-sim-harness/internal/harness/report"
	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
)

func TestColorHelper_FormatStatus(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	assert.Equal(t, "✓ PASS", helper.FormatStatus(true))
	assert.Equal(t, "✗ FAIL", helper.FormatStatus(false))
}

func TestColorHelper_FormatRatio(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	tests := []struct {
		name     string
		passed   int
		total    int
		expected string
	}{
		{name: "all passed", passed: 4, total: 4, expected: "4/4"},
		{name: "partial", passed: 2, total: 4, expected: "2/4"},
		{name: "none", passed: 0, total: 4, expected: "0/4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, helper.FormatRatio(tt.passed, tt.total))
		})
	}
}

func TestColorHelper_FormatVerdict(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()

	assert.Equal(t, "🎉 Backend is fully functional", helper.FormatVerdict(report.VerdictFullyFunctional))
	assert.Equal(t, "❌ Backend needs fixes", helper.FormatVerdict(report.VerdictNeedsFixes))
	assert.Equal(t, "87.5%", helper.FormatPercentage(87.5))
}

func TestColorHelper_ColorsDisabledWhenNoColor(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	helper := NewColorHelper()
	assert.False(t, helper.enabled)

	assert.Equal(t, "test", helper.Success("test"))
	assert.Equal(t, "test", helper.Failure("test"))
	assert.Equal(t, "test", helper.Muted("test"))
}
