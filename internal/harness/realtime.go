package harness

import (
	"context"

	"github.com/ethpandaops/market-sim-harness/internal/harness/format"
	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime"
)

func (o *Orchestrator) retryPolicy() realtime.RetryPolicy {
	return realtime.RetryPolicy{Attempts: o.tc.RetryAttempts, Delay: o.tc.RetryDelay}
}

func (o *Orchestrator) newRealtimeClient(opts ...realtime.Option) *realtime.Client {
	base := []realtime.Option{
		realtime.WithRetryPolicy(o.retryPolicy()),
		realtime.WithTelemetry(o.telemetry),
	}

	return realtime.NewClient(o.log, o.backendURL, append(base, opts...)...)
}

// resetWindow starts a fresh observation window. Privileged events captured
// so far are tallied first so the privileged-event check sees every window.
func (o *Orchestrator) resetWindow() {
	o.privilegedSeen += o.events.Count(realtime.ChannelPortfolioUpdate)
	o.events.Clear()
}

func (o *Orchestrator) runRealtime(ctx context.Context) {
	client := o.newRealtimeClient(realtime.WithBuffer(o.events))
	defer client.Disconnect()

	connected := o.check("WebSocket Connection", func() checkResult {
		if client.Connect(ctx, o.tc.ConnectTimeout) {
			return pass("Connected after %d attempt(s)", client.Attempts()).
				with(map[string]any{"attempts": client.Attempts(), "sid": client.SessionID()})
		}

		return fail("Connection failed after %d attempt(s): %v", client.Attempts(), client.LastError())
	})

	if !connected {
		for _, name := range []string{"WebSocket Market Data", "WebSocket Multiple Symbols", "WebSocket Unsubscribe"} {
			o.check(name, func() checkResult { return fail("Not connected") })
		}

		return
	}

	if len(o.symbols) == 0 {
		o.log.Warn("No symbols discovered, skipping symbol-based realtime checks")

		// Still watch the unauthenticated connection for one window.
		o.resetWindow()
		sleep(ctx, o.window)
	} else {
		o.checkMarketData(ctx, client, o.symbols[0])
		o.checkMultipleSymbols(ctx, client)
	}

	o.checkPrivilegedEvents()

	if len(o.symbols) > 0 {
		o.checkUnsubscribe(ctx, client, o.symbols[0])
	}

	o.checkReconnect(ctx, client)
}

func (o *Orchestrator) checkMarketData(ctx context.Context, client *realtime.Client, symbol string) {
	o.check("WebSocket Market Data "+symbol, func() checkResult {
		o.resetWindow()

		if err := client.Subscribe(symbol); err != nil {
			return fail("Subscribe failed: %v", err)
		}

		sleep(ctx, o.window)

		ticks := o.events.CountFor(realtime.ChannelTick, symbol)
		bars := o.events.CountFor(realtime.ChannelHistoricalData, symbol)

		if ticks+bars == 0 {
			return fail("No real-time data received for %s in %s (service bug or idle tick generator)",
				symbol, format.Seconds(o.window))
		}

		return pass("Received %d events for %s (%d ticks, %d historical)", ticks+bars, symbol, ticks, bars).
			with(map[string]any{"tick": ticks, "historical_data": bars})
	})
}

func (o *Orchestrator) checkMultipleSymbols(ctx context.Context, client *realtime.Client) {
	if len(o.symbols) < o.tc.MinMultiSymbols {
		o.log.WithField("symbols", len(o.symbols)).Info("Not enough symbols for the multiple symbol check")
		return
	}

	subscribed := o.symbols[:min(o.tc.MultiSymbolLimit, len(o.symbols))]

	o.check("WebSocket Multiple Symbols", func() checkResult {
		o.resetWindow()

		for _, s := range subscribed {
			if err := client.Subscribe(s); err != nil {
				return fail("Subscribe to %s failed: %v", s, err)
			}
		}

		sleep(ctx, o.window)

		want := make(map[string]struct{}, len(subscribed))
		for _, s := range subscribed {
			want[s] = struct{}{}
		}

		seen := make([]string, 0, len(subscribed))

		for _, s := range o.events.Symbols(realtime.ChannelTick, realtime.ChannelHistoricalData) {
			if _, ok := want[s]; ok {
				seen = append(seen, s)
			}
		}

		detail := map[string]any{"subscribed": subscribed, "observed": seen}

		if len(seen) < o.tc.MinMultiSymbols {
			return fail("Received data for %d/%d symbols in %s, need at least %d",
				len(seen), len(subscribed), format.Seconds(o.window), o.tc.MinMultiSymbols).with(detail)
		}

		return pass("Received data for %d/%d symbols", len(seen), len(subscribed)).with(detail)
	})
}

func (o *Orchestrator) checkPrivilegedEvents() {
	o.check("WebSocket Privileged Events", func() checkResult {
		o.privilegedSeen += o.events.Count(realtime.ChannelPortfolioUpdate)
		seen := o.privilegedSeen
		o.privilegedSeen = 0

		if seen > 0 {
			return fail("security regression: received %d portfolio_update events without credentials", seen)
		}

		return pass("No portfolio_update received on unauthenticated connection")
	})
}

func (o *Orchestrator) checkUnsubscribe(ctx context.Context, client *realtime.Client, symbol string) {
	o.check("WebSocket Unsubscribe "+symbol, func() checkResult {
		baseline := o.events.CountFor(realtime.ChannelTick, symbol)

		if err := client.Unsubscribe(symbol); err != nil {
			return fail("Unsubscribe failed: %v", err)
		}

		sleep(ctx, o.tc.UnsubscribeSettle)
		o.resetWindow()

		window := o.window / 2
		sleep(ctx, window)

		if ticks := o.events.CountFor(realtime.ChannelTick, symbol); ticks > 0 {
			return fail("Received %d ticks for %s within %s after leave_symbol", ticks, symbol, format.Seconds(window))
		}

		detail := map[string]any{"ticks_before_leave": baseline}

		if baseline == 0 {
			return pass("No ticks for %s within %s after leave_symbol (no tick traffic before leave either, inconclusive)",
				symbol, format.Seconds(window)).with(detail)
		}

		return pass("No ticks for %s within %s after leave_symbol", symbol, format.Seconds(window)).with(detail)
	})
}

func (o *Orchestrator) checkReconnect(ctx context.Context, client *realtime.Client) {
	o.check("WebSocket Reconnect", func() checkResult {
		client.Disconnect()

		if client.State() != realtime.StateDisconnected {
			return fail("Client still %s after disconnect", client.State())
		}

		if !client.Connect(ctx, o.tc.ConnectTimeout) {
			return fail("Reconnect failed after %d attempt(s): %v", client.Attempts(), client.LastError())
		}

		if subs := client.Subscriptions(); len(subs) > 0 {
			return fail("Subscriptions survived reconnect: %v", subs)
		}

		return pass("Reconnected after %d attempt(s) with a clean subscription set", client.Attempts())
	})
}
