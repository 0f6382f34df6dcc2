// Package probe issues single REST calls against the service under test with
// a bounded per-call timeout, measuring latency and decoding JSON bodies.
// It performs no semantic validation.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/telemetry"
	"github.com/sirupsen/logrus"
)

const (
	apiPrefix      = "/api"
	defaultTimeout = 10 * time.Second
	maxBodyBytes   = 8 << 20
)

// ErrEmptyBaseURL is returned when the probe is created without a base URL.
var ErrEmptyBaseURL = errors.New("base url is required")

// ConnectionError wraps a transport-level failure: the service was unreachable,
// the call timed out, or the body could not be read.
type ConnectionError struct {
	Method string
	URL    string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Response is the transport-level result of a probe.
type Response struct {
	StatusCode int
	Body       any    // decoded JSON, nil when the body is not JSON
	Raw        string // raw body text
	IsJSON     bool
	Latency    time.Duration
}

// Object returns the body as a JSON object.
func (r *Response) Object() (map[string]any, bool) {
	obj, ok := r.Body.(map[string]any)
	return obj, ok
}

// Array returns the body as a JSON array.
func (r *Response) Array() ([]any, bool) {
	arr, ok := r.Body.([]any)
	return arr, ok
}

// StatusIn reports whether the status code is one of codes.
func (r *Response) StatusIn(codes ...int) bool {
	for _, code := range codes {
		if r.StatusCode == code {
			return true
		}
	}

	return false
}

// Client issues probes relative to <base>/api.
type Client struct {
	apiURL     string
	timeout    time.Duration
	token      string
	httpClient *http.Client
	telemetry  *telemetry.Metrics
	log        logrus.FieldLogger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sends "Authorization: Bearer <token>" on every call.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTelemetry records probe latency histograms.
func WithTelemetry(m *telemetry.Metrics) Option {
	return func(c *Client) {
		c.telemetry = m
	}
}

// New creates a probe client for baseURL. A non-positive timeout falls back to 10s.
func New(log logrus.FieldLogger, baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, ErrEmptyBaseURL
	}

	if timeout <= 0 {
		timeout = defaultTimeout
	}

	c := &Client{
		apiURL:     base + apiPrefix,
		timeout:    timeout,
		httpClient: &http.Client{},
		log:        log.WithField("component", "probe"),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// WithAuth returns a copy of the client that authenticates with token.
func (c *Client) WithAuth(token string) *Client {
	clone := *c
	clone.token = token

	return &clone
}

// Timeout returns the per-call timeout.
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// Get issues GET <base>/api<path>?<query>.
func (c *Client) Get(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.do(ctx, http.MethodGet, path, query, nil, false)
}

// Post issues POST <base>/api<path> with body encoded as JSON. A nil body sends
// an empty JSON object.
func (c *Client) Post(ctx context.Context, path string, body any) (*Response, error) {
	return c.do(ctx, http.MethodPost, path, nil, body, true)
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body any,
	hasBody bool,
) (*Response, error) {
	target := c.apiURL + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if hasBody {
		if body == nil {
			body = map[string]any{}
		}

		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.telemetry.ObserveProbe(method, path, 0, time.Since(start))
		return nil, &ConnectionError{Method: method, URL: target, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	latency := time.Since(start)

	c.telemetry.ObserveProbe(method, path, resp.StatusCode, latency)

	if err != nil {
		return nil, &ConnectionError{Method: method, URL: target, Err: fmt.Errorf("reading body: %w", err)}
	}

	result := &Response{
		StatusCode: resp.StatusCode,
		Raw:        string(raw),
		Latency:    latency,
	}

	var decoded any
	if len(bytes.TrimSpace(raw)) > 0 && json.Unmarshal(raw, &decoded) == nil {
		result.Body = decoded
		result.IsJSON = true
	}

	c.log.WithFields(logrus.Fields{
		"method":  method,
		"path":    path,
		"status":  resp.StatusCode,
		"latency": latency,
	}).Debug("probe completed")

	return result, nil
}
