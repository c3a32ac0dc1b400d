// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Prometheus collectors for the relay event loop.

package control

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Close reasons recorded in relay_connections_closed_total.
const (
	ReasonQuit       = "quit"
	ReasonEOF        = "eof"
	ReasonReadError  = "read_error"
	ReasonHangup     = "hangup"
	ReasonWriteError = "write_error"
	ReasonOverflow   = "overflow"
	ReasonShutdown   = "shutdown"
)

// MetricsConfig configures the relay collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "relay").
	Namespace string

	// Registry receives the collectors and serves /metrics.
	// Default: a private registry, so several servers can coexist in one process.
	Registry *prometheus.Registry
}

// MetricsOption configures NewMetrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry *prometheus.Registry) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// Metrics holds the event loop collectors.
type Metrics struct {
	registry *prometheus.Registry

	Accepted      prometheus.Counter
	Rejected      prometheus.Counter
	Closed        *prometheus.CounterVec
	Active        prometheus.Gauge
	Events        prometheus.Counter
	Messages      prometheus.Counter
	RelayedBytes  prometheus.Counter
	WriteFailures prometheus.Counter
	Backlogged    prometheus.Counter
}

// NewMetrics creates and registers the relay collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{Namespace: "relay"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	f := promauto.With(cfg.Registry)
	ns := cfg.Namespace

	return &Metrics{
		registry: cfg.Registry,
		Accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "connections_accepted_total",
			Help: "Client connections accepted and registered.",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "connections_rejected_total",
			Help: "Client connections dropped before registration.",
		}),
		Closed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Name: "connections_closed_total",
			Help: "Client connections closed by the event loop, by reason.",
		}, []string{"reason"}),
		Active: f.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "connections_active",
			Help: "Connections currently in the registry.",
		}),
		Events: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "readiness_events_total",
			Help: "Readiness events dispatched by the event loop.",
		}),
		Messages: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "messages_relayed_total",
			Help: "Chunks read from a client and fanned out.",
		}),
		RelayedBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "relayed_bytes_total",
			Help: "Bytes handed to peers, counted once per recipient.",
		}),
		WriteFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "relay_write_failures_total",
			Help: "Relay writes that failed with a hard error.",
		}),
		Backlogged: f.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Name: "relay_writes_backlogged_total",
			Help: "Relay writes that were queued because the peer was not writable.",
		}),
	}
}

// Registry returns the registry backing these collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnClosed records one closed connection.
func (m *Metrics) ConnClosed(reason string) {
	m.Closed.WithLabelValues(reason).Inc()
	m.Active.Dec()
}
