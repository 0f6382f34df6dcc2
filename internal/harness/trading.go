package harness

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/format"
	"github.com/ethpandaops/market-sim-harness/internal/harness/probe"
	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime"
	"github.com/shopspring/decimal"
)

var portfolioFields = []string{"cash_balance", "market_value", "total_wealth", "holdings"}

// tradingSession is the state one authenticated trading flow carries between steps.
type tradingSession struct {
	client   *probe.Client
	stream   *realtime.Client
	updates  *realtime.EventBuffer
	executed int
	initial  decimal.Decimal
	hasStart bool
}

func (o *Orchestrator) runTrading(ctx context.Context) {
	if len(o.symbols) == 0 {
		o.check("Trading Setup", func() checkResult { return fail("No symbols available to trade") })
		return
	}

	token := ""

	created := o.check("Trading Create User", func() checkResult {
		resp, err := o.probe.Post(ctx, "/test/create-test-user", nil)
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode == http.StatusNotFound {
			return fail("Test user endpoint not found (404)")
		}

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return fail("Status code: %d", resp.StatusCode)
		}

		obj, ok := resp.Object()
		if !ok {
			return fail("Response is not a JSON object")
		}

		if missing := missingFields(obj, "user", "token"); len(missing) > 0 {
			return fail("%s", missingMessage(missing))
		}

		t, ok := obj["token"].(string)
		if !ok || t == "" {
			return fail("token is not a non-empty string")
		}

		token = t

		return pass("Test user created")
	})

	if !created {
		o.log.Warn("Could not create a test user, skipping the trading flow")
		return
	}

	session := &tradingSession{
		client:  o.probe.WithAuth(token),
		updates: realtime.NewEventBuffer(0),
	}

	if wealth, ok := o.checkPortfolio(ctx, session, "Trading Initial Portfolio"); ok {
		session.initial, session.hasStart = wealth, true
	}

	session.stream = o.newRealtimeClient(realtime.WithAuthToken(token), realtime.WithBuffer(session.updates))
	defer session.stream.Disconnect()

	if !session.stream.Connect(ctx, o.tc.ConnectTimeout) {
		o.log.WithError(session.stream.LastError()).Warn("Authenticated realtime connection failed")
	}

	for i := 0; i < o.tc.BuyCount; i++ {
		symbol := o.symbols[o.rng.IntN(len(o.symbols))]
		qty := o.tc.MinQuantity + o.rng.IntN(o.tc.MaxQuantity-o.tc.MinQuantity+1)

		o.executeTrade(ctx, session, fmt.Sprintf("Trading Buy #%d %s", i+1, symbol), symbol, "buy", qty)
		sleep(ctx, o.tc.TradePause)
	}

	o.checkPortfolioUpdates(ctx, session)
	o.sellHoldings(ctx, session)

	if wealth, ok := o.checkPortfolio(ctx, session, "Trading Final Portfolio"); ok && session.hasStart {
		o.log.WithField("wealth_change", wealth.Sub(session.initial).StringFixed(2)).Info("Trading flow finished")
	}

	o.checkTradeLog(ctx, session)
}

// checkPortfolio validates the portfolio contract and returns total wealth.
func (o *Orchestrator) checkPortfolio(ctx context.Context, session *tradingSession, name string) (decimal.Decimal, bool) {
	var wealth decimal.Decimal

	ok := o.check(name, func() checkResult {
		obj, res := o.fetchPortfolio(ctx, session)
		if obj == nil {
			return res
		}

		cash, err := decimalField(obj, "cash_balance")
		if err != nil {
			return fail("%v", err)
		}

		total, err := decimalField(obj, "total_wealth")
		if err != nil {
			return fail("%v", err)
		}

		wealth = total

		msg := fmt.Sprintf("Cash: %s, Wealth: %s, Holdings: %d", cash.StringFixed(2), total.StringFixed(2), len(holdingsOf(obj)))
		if session.hasStart {
			msg += ", Wealth change: " + total.Sub(session.initial).StringFixed(2)
		}

		return pass("%s", msg).with(obj)
	})

	return wealth, ok
}

func (o *Orchestrator) fetchPortfolio(ctx context.Context, session *tradingSession) (map[string]any, checkResult) {
	resp, err := session.client.Get(ctx, "/portfolio", nil)
	if err != nil {
		return nil, connectionFailure(err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fail("Status code: %d", resp.StatusCode)
	}

	obj, ok := resp.Object()
	if !ok {
		return nil, fail("Response is not a JSON object")
	}

	if missing := missingFields(obj, portfolioFields...); len(missing) > 0 {
		return nil, fail("%s", missingMessage(missing))
	}

	return obj, checkResult{}
}

func (o *Orchestrator) executeTrade(ctx context.Context, session *tradingSession, name, symbol, side string, qty int) {
	tolerance := decimal.RequireFromString(o.tc.AmountTolerance)

	o.check(name, func() checkResult {
		resp, err := session.client.Post(ctx, "/trade", map[string]any{
			"symbol":     symbol,
			"order_type": side,
			"quantity":   qty,
		})
		if err != nil {
			return connectionFailure(err)
		}

		if resp.StatusCode != http.StatusOK {
			reason := "unknown error"
			if obj, ok := resp.Object(); ok {
				if e, ok := obj["error"].(string); ok {
					reason = e
				}
			}

			return fail("Trade rejected (%d): %s", resp.StatusCode, reason)
		}

		obj, ok := resp.Object()
		if !ok {
			return fail("Response is not a JSON object")
		}

		trade, ok := obj["trade"].(map[string]any)
		if !ok {
			return fail("%s", missingMessage([]string{"trade"}))
		}

		price, err := decimalField(trade, "price")
		if err != nil {
			return fail("%v", err)
		}

		total, err := decimalField(trade, "total_amount")
		if err != nil {
			return fail("%v", err)
		}

		expected := price.Mul(decimal.NewFromInt(int64(qty)))
		if expected.Sub(total).Abs().GreaterThan(tolerance) {
			return fail("total_amount %s != price %s x quantity %d (%s)",
				total.StringFixed(2), price.StringFixed(2), qty, expected.StringFixed(2)).with(trade)
		}

		session.executed++

		return pass("%s %d %s @ %s (total %s)", side, qty, symbol, price.StringFixed(2), total.StringFixed(2)).with(trade)
	})
}

func (o *Orchestrator) checkPortfolioUpdates(ctx context.Context, session *tradingSession) {
	o.check("Trading Realtime Portfolio", func() checkResult {
		if session.stream.State() != realtime.StateConnected {
			return fail("Authenticated realtime connection unavailable: %v", session.stream.LastError())
		}

		deadline := time.Now().Add(o.tc.PortfolioWindow)
		for session.updates.Count(realtime.ChannelPortfolioUpdate) == 0 && time.Now().Before(deadline) {
			if !sleep(ctx, 100*time.Millisecond) {
				break
			}
		}

		if n := session.updates.Count(realtime.ChannelPortfolioUpdate); n > 0 {
			return pass("Received %d portfolio_update events", n)
		}

		return fail("No portfolio_update received within %s after trading", format.Seconds(o.tc.PortfolioWindow))
	})
}

func (o *Orchestrator) sellHoldings(ctx context.Context, session *tradingSession) {
	obj, res := o.fetchPortfolio(ctx, session)
	if obj == nil {
		o.log.WithField("reason", res.message).Warn("Could not read holdings, skipping sells")
		return
	}

	holdings := holdingsOf(obj)

	symbols := make([]string, 0, len(holdings))
	for s, qty := range holdings {
		if qty > 0 {
			symbols = append(symbols, s)
		}
	}

	sort.Strings(symbols)

	for i, s := range symbols {
		if i >= o.tc.SellCount {
			break
		}

		qty := min(holdings[s], 5+o.rng.IntN(11))

		o.executeTrade(ctx, session, fmt.Sprintf("Trading Sell #%d %s", i+1, s), s, "sell", qty)
		sleep(ctx, o.tc.TradePause)
	}
}

func (o *Orchestrator) checkTradeLog(ctx context.Context, session *tradingSession) {
	o.check("Trading Trade Log", func() checkResult {
		resp, err := session.client.Get(ctx, "/trades", nil)
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

		trades, ok := arrayField(obj, "trades")
		if !ok {
			return fail("%s", missingMessage([]string{"trades"}))
		}

		if len(trades) < session.executed {
			return fail("%d trades listed, %d executed this run", len(trades), session.executed)
		}

		return pass("%d trades listed (%d executed this run)", len(trades), session.executed)
	})
}

// holdingsOf reads holdings as either {symbol: qty} or [{symbol, quantity}].
func holdingsOf(portfolio map[string]any) map[string]int {
	out := make(map[string]int)

	switch h := portfolio["holdings"].(type) {
	case map[string]any:
		for s, v := range h {
			if q, ok := v.(float64); ok {
				out[s] = int(q)
			}
		}
	case []any:
		for _, entry := range h {
			m, ok := entry.(map[string]any)
			if !ok {
				continue
			}

			s, _ := m["symbol"].(string)
			q, _ := m["quantity"].(float64)

			if s != "" {
				out[s] += int(q)
			}
		}
	}

	return out
}

func decimalField(obj map[string]any, key string) (decimal.Decimal, error) {
	switch v := obj[key].(type) {
	case float64:
		return decimal.NewFromFloat(v), nil
	case string:
		d, err := decimal.NewFromString(v)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%s is not numeric: %w", key, err)
		}

		return d, nil
	case nil:
		return decimal.Zero, fmt.Errorf("%s", missingMessage([]string{key}))
	default:
		return decimal.Zero, fmt.Errorf("%s has unexpected type %T", key, v)
	}
}
