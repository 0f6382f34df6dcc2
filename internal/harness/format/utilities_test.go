package format

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		in       time.Duration
		expected string
	}{
		{name: "micro", in: 250 * time.Microsecond, expected: "250µs"},
		{name: "milli", in: 42 * time.Millisecond, expected: "42ms"},
		{name: "seconds", in: 2500 * time.Millisecond, expected: "2.5s"},
		{name: "minutes", in: 90 * time.Second, expected: "1.5m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Duration(tt.in))
		})
	}
}

func TestSeconds(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5s", Seconds(5*time.Second))
	assert.Equal(t, "2.5s", Seconds(2500*time.Millisecond))
}

func TestPercentAndMillis(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "80.0%", Percent(0.8))
	assert.Equal(t, "0.0%", Percent(0))
	assert.Equal(t, "12.5ms", Millis(12500*time.Microsecond))
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
}
