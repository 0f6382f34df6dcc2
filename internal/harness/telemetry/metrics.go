// Package telemetry exposes prometheus metrics about the harness itself:
// probe latency, recorded outcomes, realtime connections and captured events.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "sim_harness"

// Metrics holds the harness collectors on a private registry.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry     *prometheus.Registry
	probeLatency *prometheus.HistogramVec
	outcomes     *prometheus.CounterVec
	connections  *prometheus.CounterVec
	events       *prometheus.CounterVec
}

// New creates a Metrics instance with all collectors registered.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		probeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "probe_duration_seconds",
			Help:      "Latency of REST probes against the service under test.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"method", "endpoint", "status"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Recorded check outcomes by result.",
		}, []string{"result"}),
		connections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_connections_total",
			Help:      "Realtime connection attempts by result.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Captured realtime events by channel.",
		}, []string{"channel"}),
	}

	m.registry.MustRegister(m.probeLatency, m.outcomes, m.connections, m.events)

	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}

	return m.registry
}

// ObserveProbe records a single REST probe. status 0 means the call never got a response.
func (m *Metrics) ObserveProbe(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}

	statusLabel := "error"
	if status > 0 {
		statusLabel = strconv.Itoa(status)
	}

	m.probeLatency.WithLabelValues(method, Endpoint(path), statusLabel).Observe(d.Seconds())
}

// RecordOutcome counts a recorded check.
func (m *Metrics) RecordOutcome(passed bool) {
	if m == nil {
		return
	}

	m.outcomes.WithLabelValues(resultLabel(passed)).Inc()
}

// RecordConnection counts a realtime connect attempt.
func (m *Metrics) RecordConnection(ok bool) {
	if m == nil {
		return
	}

	m.connections.WithLabelValues(resultLabel(ok)).Inc()
}

// RecordEvent counts a captured realtime event.
func (m *Metrics) RecordEvent(channel string) {
	if m == nil {
		return
	}

	m.events.WithLabelValues(channel).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Endpoint collapses a request path to its first segment so that per-symbol
// paths share one label value ("/history/AAPL" -> "/history").
func Endpoint(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if idx := strings.Index(trimmed, "?"); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	if idx := strings.Index(trimmed, "/"); idx >= 0 {
		trimmed = trimmed[:idx]
	}

	return "/" + trimmed
}

func resultLabel(ok bool) string {
	if ok {
		return "pass"
	}

	return "fail"
}

// Server exposes /metrics while a run is in progress.
type Server struct {
	addr    string
	metrics *Metrics
	log     logrus.FieldLogger
	srv     *http.Server
}

// NewServer creates a metrics server bound to addr.
func NewServer(log logrus.FieldLogger, addr string, metrics *Metrics) *Server {
	return &Server{
		addr:    addr,
		metrics: metrics,
		log:     log.WithField("component", "metrics_server"),
	}
}

// Start begins serving in the background.
func (s *Server) Start(_ context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", s.metrics.Handler())

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("metrics server stopped")
		}
	}()

	s.log.WithField("addr", s.addr).Info("metrics server started")

	return nil
}

// Stop shuts the server down.
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}

	return nil
}
