// Package testcfg provides suite execution configuration.
// It defines operational parameters for how checks execute (timeouts,
// observation windows, thresholds) rather than which service is targeted.
package testcfg

import "time"

// TestConfig holds suite execution operational parameters.
type TestConfig struct {
	// Transport
	RequestTimeout       time.Duration
	ConnectTimeout       time.Duration
	StressConnectTimeout time.Duration
	RetryAttempts        int
	RetryDelay           time.Duration

	// Observation windows
	ObservationWindow time.Duration
	UnsubscribeSettle time.Duration
	PortfolioWindow   time.Duration
	EventRetention    int

	// Sampling
	SymbolsLimit         int
	HistoryPageLimit     int
	LatencyHistoryLimit  int
	CandlestickIntervals []string
	LeaderboardLimit     int

	// Stress
	StressConnections int
	StressHold        time.Duration

	// Latency
	LatencySamples int
	LatencyCeiling time.Duration

	// Trading
	BuyCount         int
	SellCount        int
	MinQuantity      int
	MaxQuantity      int
	AmountTolerance  string
	TradePause       time.Duration
	MinMultiSymbols  int
	MultiSymbolLimit int
}

// DefaultTestConfig returns a TestConfig with default values for every parameter.
func DefaultTestConfig() *TestConfig {
	return &TestConfig{
		// Transport
		RequestTimeout:       10 * time.Second,
		ConnectTimeout:       10 * time.Second,
		StressConnectTimeout: 5 * time.Second,
		RetryAttempts:        3,
		RetryDelay:           time.Second,

		// Observation windows
		ObservationWindow: 5 * time.Second,
		UnsubscribeSettle: 250 * time.Millisecond,
		PortfolioWindow:   3 * time.Second,
		EventRetention:    10000,

		// Sampling
		SymbolsLimit:         3,
		HistoryPageLimit:     50,
		LatencyHistoryLimit:  100,
		CandlestickIntervals: []string{"1m", "5m", "15m", "1h"},
		LeaderboardLimit:     5,

		// Stress
		StressConnections: 5,
		StressHold:        2 * time.Second,

		// Latency
		LatencySamples: 3,
		LatencyCeiling: 2 * time.Second,

		// Trading
		BuyCount:         3,
		SellCount:        2,
		MinQuantity:      10,
		MaxQuantity:      30,
		AmountTolerance:  "0.01",
		TradePause:       time.Second,
		MinMultiSymbols:  2,
		MultiSymbolLimit: 3,
	}
}
