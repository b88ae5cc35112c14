// Package metrics exposes Prometheus metrics for the assistant.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ashureev/multitool-assistant/internal/agent"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
	ParseFailures *prometheus.CounterVec

	// Tool metrics
	ToolCallsTotal   *prometheus.CounterVec
	ToolCallDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive prometheus.Gauge
	SessionsTotal  prometheus.Counter
	SessionsClosed *prometheus.CounterVec

	// Transport metrics
	WebSocketConnections prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_queries_total",
				Help: "Total number of answered queries",
			},
			[]string{"status", "state"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_query_duration_seconds",
				Help:    "Duration of queries in seconds",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80},
			},
			[]string{"status"},
		),
		ParseFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_parse_failures_total",
				Help: "Model replies that could not be acted on",
			},
			[]string{"reason"},
		),

		ToolCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_tool_calls_total",
				Help: "Total number of tool invocations",
			},
			[]string{"tool", "status"},
		),
		ToolCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "assistant_tool_call_duration_seconds",
				Help:    "Duration of tool invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),

		SessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assistant_sessions_active",
			Help: "Number of live chat sessions",
		}),
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assistant_sessions_total",
			Help: "Total number of chat sessions created",
		}),
		SessionsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "assistant_sessions_closed_total",
				Help: "Chat sessions destroyed, by reason",
			},
			[]string{"reason"},
		),

		WebSocketConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assistant_websocket_connections",
			Help: "Open chat WebSocket connections",
		}),
	}

	m.registry.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.ParseFailures,
		m.ToolCallsTotal,
		m.ToolCallDuration,
		m.SessionsActive,
		m.SessionsTotal,
		m.SessionsClosed,
		m.WebSocketConnections,
	)
	return m
}

// ObserveQuery records a finished query.
func (m *Metrics) ObserveQuery(status agent.Status, state agent.State, elapsed time.Duration) {
	m.QueriesTotal.WithLabelValues(string(status), string(state)).Inc()
	m.QueryDuration.WithLabelValues(string(status)).Observe(elapsed.Seconds())
}

// ObserveTool records a tool invocation.
func (m *Metrics) ObserveTool(tool string, err error, elapsed time.Duration) {
	status := "ok"
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = "timeout"
	case err != nil:
		status = "error"
	}
	m.ToolCallsTotal.WithLabelValues(tool, status).Inc()
	m.ToolCallDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// ObserveParseFailure records an unusable model reply.
func (m *Metrics) ObserveParseFailure(reason string) {
	m.ParseFailures.WithLabelValues(reason).Inc()
}

// SessionOpened records a new chat session.
func (m *Metrics) SessionOpened() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// SessionClosed records a destroyed chat session.
func (m *Metrics) SessionClosed(reason string) {
	m.SessionsActive.Dec()
	m.SessionsClosed.WithLabelValues(reason).Inc()
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
