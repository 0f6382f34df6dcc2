// Package realtime is a minimal Socket.IO (v5 over Engine.IO v4) client used
// to observe the simulation service's event stream.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/telemetry"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultPath     = "/socket.io/"
	writeTimeout    = 5 * time.Second
	closeWait       = time.Second
	defaultLiveness = 45 * time.Second

	eventJoinSymbol  = "join_symbol"
	eventLeaveSymbol = "leave_symbol"
)

var (
	// ErrNotConnected is returned when an operation needs an established connection.
	ErrNotConnected = errors.New("realtime client is not connected")
	// ErrConnectRejected is returned when the server answers CONNECT with CONNECT_ERROR.
	ErrConnectRejected = errors.New("socket.io connect rejected")

	errUnexpectedPacket = errors.New("unexpected packet during handshake")
)

// State is the connection lifecycle of a Client.
type State int32

// Client states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// RetryPolicy controls reconnection inside a single Connect call.
// Attempts counts retries after the first failed dial.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy retries three times, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: time.Second}
}

type decoder func(json.RawMessage) (map[string]any, error)

// Option configures a Client.
type Option func(*Client)

// WithRetryPolicy overrides the default retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithAuthToken sends token in the Socket.IO CONNECT auth payload.
func WithAuthToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithBuffer captures events into a shared buffer.
func WithBuffer(b *EventBuffer) Option {
	return func(c *Client) {
		c.buffer = b
	}
}

// WithTelemetry records connection and event counters.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDialer overrides the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = d
	}
}

// WithPath overrides the Socket.IO endpoint path.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = path
	}
}

// Client connects to the service's Socket.IO endpoint and captures pushed events.
type Client struct {
	log      logrus.FieldLogger
	baseURL  string
	path     string
	token    string
	retry    RetryPolicy
	dialer   *websocket.Dialer
	buffer   *EventBuffer
	metrics  *telemetry.Metrics
	dispatch map[Channel]decoder

	state    atomic.Int32
	attempts atomic.Int32

	mu      sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
	subs    map[string]struct{}
	sid     string
	lastErr error

	writeMu sync.Mutex
}

// NewClient creates a disconnected client for the service at baseURL.
func NewClient(log logrus.FieldLogger, baseURL string, opts ...Option) *Client {
	c := &Client{
		log:     log.WithField("component", "realtime"),
		baseURL: strings.TrimRight(baseURL, "/"),
		path:    defaultPath,
		retry:   DefaultRetryPolicy(),
		dialer:  websocket.DefaultDialer,
		subs:    make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.buffer == nil {
		c.buffer = NewEventBuffer(DefaultRetention)
	}

	c.dispatch = map[Channel]decoder{
		ChannelTick:              decodeObject,
		ChannelHistoricalData:    decodeObject,
		ChannelPortfolioUpdate:   decodeObject,
		ChannelLeaderboardUpdate: decodeLeaderboard,
	}

	return c
}

// Connect dials the service, retrying per the policy, and reports whether the
// client reached Connected within timeout.
func (c *Client) Connect(ctx context.Context, timeout time.Duration) bool {
	if c.State() == StateConnected {
		return true
	}

	c.state.Store(int32(StateConnecting))
	c.attempts.Store(0)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	endpoint, err := c.endpoint()
	if err != nil {
		c.fail(err)
		return false
	}

	for attempt := 0; attempt <= c.retry.Attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				c.fail(fmt.Errorf("connect timed out after %d attempts: %w", attempt, ctx.Err()))
				return false
			case <-time.After(c.retry.Delay):
			}
		}

		c.attempts.Add(1)

		conn, sid, liveness, err := c.dial(ctx, endpoint)
		if err != nil {
			c.log.WithError(err).WithField("attempt", attempt+1).Debug("Dial failed")
			c.setLastErr(err)

			if ctx.Err() != nil {
				break
			}

			continue
		}

		c.install(conn, sid, liveness)
		c.metrics.RecordConnection(true)
		c.log.WithFields(logrus.Fields{"sid": sid, "attempts": attempt + 1}).Debug("Connected")

		return true
	}

	c.fail(c.LastError())

	return false
}

func (c *Client) fail(err error) {
	c.state.Store(int32(StateDisconnected))
	c.metrics.RecordConnection(false)

	if err != nil {
		c.setLastErr(err)
		c.log.WithError(err).Warn("Realtime connection failed")
	}
}

func (c *Client) endpoint() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}

	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}

	u.Path = c.path
	u.RawQuery = url.Values{"EIO": {"4"}, "transport": {"websocket"}}.Encode()

	return u.String(), nil
}

// dial performs one websocket + Engine.IO + Socket.IO handshake.
func (c *Client) dial(ctx context.Context, endpoint string) (*websocket.Conn, string, time.Duration, error) {
	conn, resp, err := c.dialer.DialContext(ctx, endpoint, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	if err != nil {
		return nil, "", 0, fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	sid, liveness, err := c.handshake(conn)
	if err != nil {
		_ = conn.Close()
		return nil, "", 0, err
	}

	return conn, sid, liveness, nil
}

func (c *Client) handshake(conn *websocket.Conn) (string, time.Duration, error) {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", 0, fmt.Errorf("reading open packet: %w", err)
	}

	open, err := DecodeEngine(string(msg))
	if err != nil {
		return "", 0, err
	}

	if open.Type != EngineOpen {
		return "", 0, fmt.Errorf("%w: engine type %q", errUnexpectedPacket, open.Type)
	}

	hs, err := DecodeHandshake(open.Data)
	if err != nil {
		return "", 0, err
	}

	liveness := hs.Liveness()
	if liveness <= 0 {
		liveness = defaultLiveness
	}

	var auth map[string]any
	if c.token != "" {
		auth = map[string]any{"token": c.token}
	}

	frame, err := EncodeConnect(auth)
	if err != nil {
		return "", 0, err
	}

	if err := writeFrame(conn, frame); err != nil {
		return "", 0, fmt.Errorf("sending connect: %w", err)
	}

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return "", 0, fmt.Errorf("awaiting connect ack: %w", err)
		}

		pkt, err := DecodeEngine(string(msg))
		if err != nil {
			return "", 0, err
		}

		switch pkt.Type {
		case EnginePing:
			if err := writeFrame(conn, EncodePong(pkt.Data)); err != nil {
				return "", 0, fmt.Errorf("answering ping: %w", err)
			}

			continue
		case EngineMessage:
		default:
			continue
		}

		sp, err := DecodeSocket(pkt.Data)
		if err != nil {
			return "", 0, err
		}

		switch sp.Type {
		case SocketConnect:
			var ack struct {
				SID string `json:"sid"`
			}

			if len(sp.Payload) > 0 {
				_ = json.Unmarshal(sp.Payload, &ack)
			}

			return ack.SID, liveness, nil
		case SocketConnectError:
			return "", 0, fmt.Errorf("%w: %s", ErrConnectRejected, string(sp.Payload))
		default:
			continue
		}
	}
}

func (c *Client) install(conn *websocket.Conn, sid string, liveness time.Duration) {
	done := make(chan struct{})

	c.mu.Lock()
	c.conn = conn
	c.done = done
	c.sid = sid
	c.subs = make(map[string]struct{})
	c.mu.Unlock()

	c.state.Store(int32(StateConnected))

	go c.readLoop(conn, done, liveness)
}

func (c *Client) readLoop(conn *websocket.Conn, done chan struct{}, liveness time.Duration) {
	defer close(done)
	defer c.detach(conn)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(liveness))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.current(conn) {
				c.log.WithError(err).Debug("Receive loop ended")
			}

			return
		}

		if !c.handleFrame(conn, string(msg)) {
			return
		}
	}
}

// handleFrame processes one inbound frame; false ends the receive loop.
func (c *Client) handleFrame(conn *websocket.Conn, frame string) bool {
	pkt, err := DecodeEngine(frame)
	if err != nil {
		c.log.WithError(err).Debug("Dropping malformed frame")
		return true
	}

	switch pkt.Type {
	case EnginePing:
		if err := c.write(conn, EncodePong(pkt.Data)); err != nil {
			c.log.WithError(err).Debug("Failed to answer ping")
		}

		return true
	case EngineClose:
		return false
	case EngineMessage:
	default:
		return true
	}

	sp, err := DecodeSocket(pkt.Data)
	if err != nil {
		c.log.WithError(err).Debug("Dropping malformed packet")
		return true
	}

	switch sp.Type {
	case SocketDisconnect:
		return false
	case SocketEvent, SocketBinaryEvent:
		c.dispatchEvent(sp)
	}

	return true
}

func (c *Client) dispatchEvent(sp SocketPacket) {
	name, args, err := sp.EventArgs()
	if err != nil {
		c.log.WithError(err).Debug("Dropping malformed event")
		return
	}

	channel := Channel(name)

	decode, ok := c.dispatch[channel]
	if !ok {
		return
	}

	var raw json.RawMessage
	if len(args) > 0 {
		raw = args[0]
	}

	payload, err := decode(raw)
	if err != nil {
		c.log.WithError(err).WithField("channel", name).Debug("Dropping undecodable payload")
		return
	}

	c.buffer.Append(Event{Channel: channel, Payload: payload, ReceivedAt: time.Now()})
	c.metrics.RecordEvent(name)
}

func (c *Client) detach(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != conn {
		return
	}

	c.conn = nil
	c.sid = ""
	c.subs = make(map[string]struct{})
	c.state.Store(int32(StateDisconnected))

	_ = conn.Close()
}

func (c *Client) current(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.conn == conn
}

// Subscribe asks the server to stream events for symbol.
func (c *Client) Subscribe(symbol string) error {
	if err := c.emit(eventJoinSymbol, symbol); err != nil {
		return fmt.Errorf("subscribing to %s: %w", symbol, err)
	}

	c.mu.Lock()
	c.subs[symbol] = struct{}{}
	c.mu.Unlock()

	return nil
}

// Unsubscribe asks the server to stop streaming events for symbol.
func (c *Client) Unsubscribe(symbol string) error {
	if err := c.emit(eventLeaveSymbol, symbol); err != nil {
		return fmt.Errorf("unsubscribing from %s: %w", symbol, err)
	}

	c.mu.Lock()
	delete(c.subs, symbol)
	c.mu.Unlock()

	return nil
}

func (c *Client) emit(event string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil || c.State() != StateConnected {
		return ErrNotConnected
	}

	frame, err := EncodeEvent(event, args...)
	if err != nil {
		return err
	}

	return c.write(conn, frame)
}

// Disconnect closes the connection and clears subscriptions. It is safe to
// call on a client that is already disconnected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	done := c.done
	c.conn = nil
	c.sid = ""
	c.subs = make(map[string]struct{})
	c.state.Store(int32(StateDisconnected))
	c.mu.Unlock()

	if conn == nil {
		return
	}

	_ = c.write(conn, EncodeDisconnect())
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout),
	)
	_ = conn.Close()

	select {
	case <-done:
	case <-time.After(closeWait):
		c.log.Debug("Receive loop did not exit in time")
	}
}

func (c *Client) write(conn *websocket.Conn, frame string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return writeFrame(conn, frame)
}

func writeFrame(conn *websocket.Conn, frame string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))

	return conn.WriteMessage(websocket.TextMessage, []byte(frame))
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Connected reports whether the client currently holds a live session.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Attempts returns how many dials the most recent Connect made.
func (c *Client) Attempts() int {
	return int(c.attempts.Load())
}

// LastError returns the most recent dial or handshake error.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.lastErr
}

func (c *Client) setLastErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

// SessionID returns the Socket.IO session id of the live connection.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sid
}

// Subscriptions returns the sorted set of subscribed symbols.
func (c *Client) Subscriptions() []string {
	c.mu.Lock()
	out := make([]string, 0, len(c.subs))

	for s := range c.subs {
		out = append(out, s)
	}
	c.mu.Unlock()

	sort.Strings(out)

	return out
}

// Buffer returns the buffer events are captured into.
func (c *Client) Buffer() *EventBuffer {
	return c.buffer
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding object payload: %w", err)
	}

	return out, nil
}

// decodeLeaderboard accepts either an object or a bare list of entries.
func decodeLeaderboard(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}

	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("decoding leaderboard payload: %w", err)
	}

	if obj, ok := v.(map[string]any); ok {
		return obj, nil
	}

	return map[string]any{"entries": v}, nil
}
