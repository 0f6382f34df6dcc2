// Package realtimetest provides an in-process Socket.IO server that speaks
// just enough of the protocol to exercise the realtime client.
package realtimetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config controls the fake server's behavior.
type Config struct {
	// TickInterval emits a tick per joined symbol at this rate. Zero disables ticks.
	TickInterval time.Duration
	// RejectAttempts answers the first N upgrade requests with 503.
	RejectAttempts int
	// HistoricalOnJoin pushes one historical_data event when a symbol is joined.
	HistoricalOnJoin bool
	// RequireToken rejects Socket.IO CONNECT packets without an auth token.
	RequireToken bool
	// PingInterval sends Engine.IO pings at this rate. Zero disables pings.
	PingInterval time.Duration
	// Path mounts the Socket.IO endpoint somewhere other than /socket.io/.
	Path string
	// Fallback serves every path outside the Socket.IO endpoint, e.g. a fake REST API.
	Fallback http.Handler
}

// Server is a running fake Socket.IO endpoint.
type Server struct {
	*httptest.Server

	cfg      Config
	upgrader websocket.Upgrader
	attempts atomic.Int32
	pongs    atomic.Int32
	nextID   atomic.Int32

	mu     sync.Mutex
	conns  map[*conn]struct{}
	joins  []string
	leaves []string
	tokens []string
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
	token   string

	mu     sync.Mutex
	ticks  map[string]chan struct{}
	closed chan struct{}
	once   sync.Once
}

// NewServer starts a fake server.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:   cfg,
		conns: make(map[*conn]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	path := cfg.Path
	if path == "" {
		path = "/socket.io/"
	}

	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handle)

	if cfg.Fallback != nil {
		mux.Handle("/", cfg.Fallback)
	}
	s.Server = httptest.NewServer(mux)

	return s
}

// Close disconnects every client and stops the server.
func (s *Server) Close() {
	s.mu.Lock()
	for c := range s.conns {
		c.shutdown()
	}
	s.mu.Unlock()

	s.Server.Close()
}

// Attempts returns how many upgrade requests the server has seen.
func (s *Server) Attempts() int {
	return int(s.attempts.Load())
}

// Pongs returns how many Engine.IO pongs the server has received.
func (s *Server) Pongs() int {
	return int(s.pongs.Load())
}

// Connected returns how many Socket.IO sessions are currently open.
func (s *Server) Connected() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

// Joins returns every symbol joined, in order.
func (s *Server) Joins() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.joins...)
}

// Leaves returns every symbol left, in order.
func (s *Server) Leaves() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.leaves...)
}

// Tokens returns the auth tokens presented on CONNECT.
func (s *Server) Tokens() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.tokens...)
}

// Broadcast pushes an event to every session. With authenticatedOnly, only
// sessions that presented a token receive it.
func (s *Server) Broadcast(event string, payload any, authenticatedOnly bool) {
	s.mu.Lock()
	targets := make([]*conn, 0, len(s.conns))

	for c := range s.conns {
		if authenticatedOnly && c.token == "" {
			continue
		}

		targets = append(targets, c)
	}
	s.mu.Unlock()

	for _, c := range targets {
		_ = c.emit(event, payload)
	}
}

// DropAll closes every session from the server side.
func (s *Server) DropAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		c.shutdown()
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if int(s.attempts.Add(1)) <= s.cfg.RejectAttempts {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	c := &conn{ws: ws, ticks: make(map[string]chan struct{}), closed: make(chan struct{})}
	defer s.forget(c)

	sid := fmt.Sprintf("sid-%d", s.nextID.Add(1))

	open := fmt.Sprintf(`0{"sid":%q,"upgrades":[],"pingInterval":25000,"pingTimeout":20000,"maxPayload":1000000}`, sid)
	if err := c.write(open); err != nil {
		return
	}

	if s.cfg.PingInterval > 0 {
		go c.pingLoop(s.cfg.PingInterval)
	}

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}

		if !s.handleFrame(c, sid, string(msg)) {
			return
		}
	}
}

func (s *Server) handleFrame(c *conn, sid, frame string) bool {
	switch {
	case strings.HasPrefix(frame, "3"):
		s.pongs.Add(1)
	case strings.HasPrefix(frame, "40"):
		return s.handleConnect(c, sid, frame[2:])
	case strings.HasPrefix(frame, "41"), strings.HasPrefix(frame, "1"):
		return false
	case strings.HasPrefix(frame, "42"):
		s.handleEvent(c, frame[2:])
	}

	return true
}

func (s *Server) handleConnect(c *conn, sid, payload string) bool {
	var auth struct {
		Token string `json:"token"`
	}

	if payload != "" {
		_ = json.Unmarshal([]byte(payload), &auth)
	}

	if s.cfg.RequireToken && auth.Token == "" {
		_ = c.write(`44{"message":"authentication required"}`)
		return false
	}

	c.token = auth.Token

	if err := c.write(fmt.Sprintf(`40{"sid":%q}`, sid)); err != nil {
		return false
	}

	// Registered only after the ack so broadcasts never precede it.
	s.mu.Lock()
	s.conns[c] = struct{}{}
	if auth.Token != "" {
		s.tokens = append(s.tokens, auth.Token)
	}
	s.mu.Unlock()

	return true
}

func (s *Server) handleEvent(c *conn, payload string) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(payload), &parts); err != nil || len(parts) < 2 {
		return
	}

	var name, symbol string
	if json.Unmarshal(parts[0], &name) != nil || json.Unmarshal(parts[1], &symbol) != nil {
		return
	}

	switch name {
	case "join_symbol":
		s.mu.Lock()
		s.joins = append(s.joins, symbol)
		s.mu.Unlock()

		if s.cfg.HistoricalOnJoin {
			_ = c.emit("historical_data", map[string]any{"symbol": symbol, "data": []any{}})
		}

		if s.cfg.TickInterval > 0 {
			c.startTicks(symbol, s.cfg.TickInterval)
		}
	case "leave_symbol":
		s.mu.Lock()
		s.leaves = append(s.leaves, symbol)
		s.mu.Unlock()

		c.stopTicks(symbol)
	}
}

func (s *Server) forget(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()

	c.shutdown()
}

func (c *conn) write(frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(time.Second))

	return c.ws.WriteMessage(websocket.TextMessage, []byte(frame))
}

func (c *conn) emit(event string, payload any) error {
	body, err := json.Marshal([]any{event, payload})
	if err != nil {
		return err
	}

	return c.write("42" + string(body))
}

func (c *conn) startTicks(symbol string, every time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ticks[symbol]; ok {
		return
	}

	stop := make(chan struct{})
	c.ticks[symbol] = stop

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()

		price := 100.0

		for {
			select {
			case <-stop:
				return
			case <-c.closed:
				return
			case now := <-ticker.C:
				price += 0.25
				_ = c.emit("tick", map[string]any{
					"symbol":    symbol,
					"price":     price,
					"timestamp": now.UnixMilli(),
				})
			}
		}
	}()
}

func (c *conn) stopTicks(symbol string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if stop, ok := c.ticks[symbol]; ok {
		close(stop)
		delete(c.ticks, symbol)
	}
}

func (c *conn) pingLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			if c.write("2") != nil {
				return
			}
		}
	}
}

func (c *conn) shutdown() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.Close()
	})
}
