package harness

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime/realtimetest"
)

const fakeToken = "test-token"

// fakeService is an in-process stand-in for the simulation backend's REST API.
type fakeService struct {
	symbols       []string
	omitUptime    bool
	omitVolume    bool
	leakPortfolio bool
	price         float64

	rt *realtimetest.Server

	mu       sync.Mutex
	holdings map[string]int
	trades   []map[string]any
}

func newFakeService(symbols ...string) *fakeService {
	return &fakeService{
		symbols:  symbols,
		price:    101.25,
		holdings: make(map[string]int),
	}
}

func (f *fakeService) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", f.health)
	mux.HandleFunc("GET /api/symbols", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, f.symbols)
	})
	mux.HandleFunc("GET /api/history/{symbol}", f.history)
	mux.HandleFunc("GET /api/candlestick/{symbol}", f.candlestick)
	mux.HandleFunc("GET /api/leaderboard", f.leaderboard)
	mux.HandleFunc("POST /api/test/create-test-user", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user": map[string]any{"role": "user"}, "token": fakeToken})
	})

	mux.HandleFunc("POST /api/trade", f.authenticated(f.trade))
	mux.HandleFunc("GET /api/portfolio", f.portfolioHandler)
	mux.HandleFunc("GET /api/trades", f.authenticated(f.tradeLog))
	mux.HandleFunc("GET /api/shorts", f.authenticated(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	}))
	mux.HandleFunc("/api/admin/simulation/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "admin only"})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeService) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+fakeToken {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
			return
		}

		next(w, r)
	}
}

func (f *fakeService) health(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":         "ok",
		"connectedUsers": 0,
		"activeSymbols":  len(f.symbols),
		"uptime":         12.5,
	}

	if f.omitUptime {
		delete(body, "uptime")
	}

	writeJSON(w, http.StatusOK, body)
}

func (f *fakeService) history(w http.ResponseWriter, r *http.Request) {
	data := []any{}
	for i := 0; i < 3; i++ {
		data = append(data, map[string]any{"time": i, "price": f.price})
	}

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(data) {
		data = data[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":     r.PathValue("symbol"),
		"data":       data,
		"pagination": map[string]any{"page": 1, "totalRecords": 3},
	})
}

func (f *fakeService) candlestick(w http.ResponseWriter, r *http.Request) {
	candle := map[string]any{"time": 1, "open": 1.0, "high": 2.0, "low": 0.5, "close": 1.5, "volume": 100}
	if f.omitVolume {
		delete(candle, "volume")
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":   r.PathValue("symbol"),
		"interval": r.URL.Query().Get("interval"),
		"data":     []any{candle},
	})
}

func (f *fakeService) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries := make([]any, 0, 8)
	for i := 0; i < 8; i++ {
		entries = append(entries, map[string]any{"rank": i + 1})
	}

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit < len(entries) {
		entries = entries[:limit]
	}

	writeJSON(w, http.StatusOK, entries)
}

func (f *fakeService) portfolioHandler(w http.ResponseWriter, r *http.Request) {
	if f.leakPortfolio {
		f.portfolio(w, r)
		return
	}

	f.authenticated(f.portfolio)(w, r)
}

func (f *fakeService) portfolio(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	holdings := make(map[string]any, len(f.holdings))
	value := 0.0

	for s, q := range f.holdings {
		holdings[s] = q
		value += float64(q) * f.price
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"cash_balance": 100000.0 - value,
		"market_value": value,
		"total_wealth": 100000.0,
		"holdings":     holdings,
	})
}

func (f *fakeService) trade(w http.ResponseWriter, r *http.Request) {
	var order struct {
		Symbol    string `json:"symbol"`
		OrderType string `json:"order_type"`
		Quantity  int    `json:"quantity"`
	}

	if err := json.NewDecoder(r.Body).Decode(&order); err != nil ||
		order.Symbol == "" || order.Quantity <= 0 ||
		(order.OrderType != "buy" && order.OrderType != "sell") {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid order"})
		return
	}

	f.mu.Lock()
	if strings.EqualFold(order.OrderType, "sell") {
		if f.holdings[order.Symbol] < order.Quantity {
			f.mu.Unlock()
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "insufficient holdings"})

			return
		}

		f.holdings[order.Symbol] -= order.Quantity
	} else {
		f.holdings[order.Symbol] += order.Quantity
	}

	trade := map[string]any{
		"symbol":       order.Symbol,
		"order_type":   order.OrderType,
		"quantity":     order.Quantity,
		"price":        f.price,
		"total_amount": f.price * float64(order.Quantity),
	}
	f.trades = append(f.trades, trade)
	f.mu.Unlock()

	if f.rt != nil {
		f.rt.Broadcast("portfolio_update", map[string]any{"symbol": order.Symbol}, true)
	}

	writeJSON(w, http.StatusOK, map[string]any{"trade": trade})
}

func (f *fakeService) tradeLog(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"trades": append(make([]map[string]any, 0, len(f.trades)), f.trades...)})
}
