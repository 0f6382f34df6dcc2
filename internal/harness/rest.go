package harness

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

var (
	healthFields      = []string{"status", "connectedUsers", "activeSymbols", "uptime"}
	historyFields     = []string{"symbol", "data", "pagination"}
	candlestickFields = []string{"symbol", "interval", "data"}
	candleFields      = []string{"time", "open", "high", "low", "close", "volume"}
)

func (o *Orchestrator) runREST(ctx context.Context) {
	o.checkHealth(ctx)

	if !o.discoverSymbols(ctx) {
		o.log.Warn("No symbols discovered, skipping history, candlestick and response time checks")
		o.formatter.PrintWarning("no symbols discovered: history, candlestick, response time and symbol-based realtime checks skipped")

		return
	}

	for _, s := range o.symbols {
		o.checkHistory(ctx, s)
	}

	o.checkHistoryPagination(ctx, o.symbols[0])

	for _, iv := range o.tc.CandlestickIntervals {
		o.checkCandlestick(ctx, o.symbols[0], iv)
	}
}

func (o *Orchestrator) checkHealth(ctx context.Context) {
	o.check("Health Check", func() checkResult {
		resp, err := o.probe.Get(ctx, "/health", nil)
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		obj, ok := resp.Object()
		if !ok {
			return fail("Response is not a JSON object")
		}

		if missing := missingFields(obj, healthFields...); len(missing) > 0 {
			return fail("%s", missingMessage(missing)).with(obj)
		}

		return pass("Status: %v, Users: %v, Symbols: %v, Uptime: %v",
			obj["status"], obj["connectedUsers"], obj["activeSymbols"], obj["uptime"]).with(obj)
	})
}

// discoverSymbols records the symbols check and keeps the first symbolsLimit
// symbols for later phases. It reports whether any symbol was found.
func (o *Orchestrator) discoverSymbols(ctx context.Context) bool {
	o.symbols = nil

	o.check("Symbols Endpoint", func() checkResult {
		resp, err := o.probe.Get(ctx, "/symbols", nil)
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		arr, ok := resp.Array()
		if !ok {
			return fail("Expected a JSON array of symbols")
		}

		all := make([]string, 0, len(arr))
		for _, v := range arr {
			if s, ok := v.(string); ok && s != "" {
				all = append(all, s)
			}
		}

		if len(all) == 0 {
			return fail("No symbols returned")
		}

		limit := min(o.symbolsLimit, len(all))
		o.symbols = append([]string(nil), all[:limit]...)

		return pass("Found %d symbols", len(all)).with(map[string]any{
			"count":  len(all),
			"sample": o.symbols,
		})
	})

	return len(o.symbols) > 0
}

func (o *Orchestrator) checkHistory(ctx context.Context, symbol string) {
	o.check("History "+symbol, func() checkResult {
		resp, err := o.probe.Get(ctx, symbolPath("/history", symbol), nil)
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		obj, ok := resp.Object()
		if !ok {
			return fail("Response is not a JSON object")
		}

		if missing := missingFields(obj, historyFields...); len(missing) > 0 {
			return fail("%s", missingMessage(missing))
		}

		data, ok := arrayField(obj, "data")
		if !ok {
			return fail("data is not an array")
		}

		return pass("Retrieved %d records", len(data)).with(map[string]any{"records": len(data)})
	})
}

func (o *Orchestrator) checkHistoryPagination(ctx context.Context, symbol string) {
	limit := o.tc.HistoryPageLimit

	o.check("History Pagination "+symbol, func() checkResult {
		query := url.Values{"page": {"1"}, "limit": {strconv.Itoa(limit)}}

		resp, err := o.probe.Get(ctx, symbolPath("/history", symbol), query)
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		obj, ok := resp.Object()
		if !ok {
			return fail("Response is not a JSON object")
		}

		data, ok := arrayField(obj, "data")
		if !ok {
			return fail("data is not an array")
		}

		if len(data) > limit {
			return fail("Page returned %d records, limit was %d", len(data), limit)
		}

		pagination, ok := obj["pagination"].(map[string]any)
		if !ok {
			return fail("%s", missingMessage([]string{"pagination"}))
		}

		total, ok := pagination["totalRecords"]
		if !ok {
			return fail("%s", missingMessage([]string{"pagination.totalRecords"}))
		}

		return pass("Page 1: %d records of %v total", len(data), total)
	})
}

func (o *Orchestrator) checkCandlestick(ctx context.Context, symbol, interval string) {
	o.check(fmt.Sprintf("Candlestick %s %s", symbol, interval), func() checkResult {
		resp, err := o.probe.Get(ctx, symbolPath("/candlestick", symbol), url.Values{"interval": {interval}})
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			return fail("Status code: %d", resp.StatusCode)
		}

		obj, ok := resp.Object()
		if !ok {
			return fail("Response is not a JSON object")
		}

		if missing := missingFields(obj, candlestickFields...); len(missing) > 0 {
			return fail("%s", missingMessage(missing))
		}

		data, ok := arrayField(obj, "data")
		if !ok {
			return fail("data is not an array")
		}

		for i, entry := range data {
			candle, ok := entry.(map[string]any)
			if !ok {
				return fail("Candle %d is not an object", i)
			}

			if missing := missingFields(candle, candleFields...); len(missing) > 0 {
				return fail("Candle %d %s", i, missingMessage(missing))
			}
		}

		return pass("%d candles", len(data))
	})
}
