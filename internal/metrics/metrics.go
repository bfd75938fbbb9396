// Package metrics provides Prometheus metrics for the puzzle backbone.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the process.
type Metrics struct {
	AICallsTotal          *prometheus.CounterVec
	AICallDuration        *prometheus.HistogramVec
	StoreCommitsTotal     *prometheus.CounterVec
	StoreRevision         prometheus.Gauge
	EventsTotal           *prometheus.CounterVec
	QuadrantFailuresTotal *prometheus.CounterVec
	SessionsTotal         *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		AICallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_ai_calls_total",
				Help: "Total LLM calls by agent task and status.",
			},
			[]string{"agent", "status"},
		),
		AICallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "puzzle_ai_call_duration_seconds",
				Help:    "LLM call duration by agent task.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30},
			},
			[]string{"agent"},
		),
		StoreCommitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_store_commits_total",
				Help: "Total context store commits by command.",
			},
			[]string{"command"},
		),
		StoreRevision: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "puzzle_store_revision",
				Help: "Current context store revision.",
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_events_total",
				Help: "Total events emitted on the bus by type.",
			},
			[]string{"type"},
		),
		QuadrantFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_quadrant_failures_total",
				Help: "Total failed or timed-out quadrant generations by mode.",
			},
			[]string{"mode"},
		),
		SessionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_sessions_total",
				Help: "Total generated puzzle sessions by status.",
			},
			[]string{"status"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "puzzle_errors_total",
				Help: "Total errors by module and type.",
			},
			[]string{"module", "type"},
		),
		registry: reg,
	}

	reg.MustRegister(m.AICallsTotal)
	reg.MustRegister(m.AICallDuration)
	reg.MustRegister(m.StoreCommitsTotal)
	reg.MustRegister(m.StoreRevision)
	reg.MustRegister(m.EventsTotal)
	reg.MustRegister(m.QuadrantFailuresTotal)
	reg.MustRegister(m.SessionsTotal)
	reg.MustRegister(m.ErrorsTotal)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAICall counts one LLM call and its latency. Its signature matches
// llm.Observer.
func (m *Metrics) RecordAICall(agent string, d time.Duration, err error) {
	if agent == "" {
		agent = "untagged"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.AICallsTotal.WithLabelValues(agent, status).Inc()
	m.AICallDuration.WithLabelValues(agent).Observe(d.Seconds())
}

// RecordCommit counts a store commit.
func (m *Metrics) RecordCommit(command string) {
	m.StoreCommitsTotal.WithLabelValues(command).Inc()
}

// SetRevision publishes the store revision.
func (m *Metrics) SetRevision(rev uint64) {
	m.StoreRevision.Set(float64(rev))
}

// RecordEvent counts an emitted event.
func (m *Metrics) RecordEvent(eventType string) {
	m.EventsTotal.WithLabelValues(eventType).Inc()
}

// RecordQuadrant counts a failed quadrant; successes are not counted here.
func (m *Metrics) RecordQuadrant(mode string, _ time.Duration, err error) {
	if err != nil {
		m.QuadrantFailuresTotal.WithLabelValues(mode).Inc()
	}
}

// RecordSession counts a generated session.
func (m *Metrics) RecordSession(status string) {
	m.SessionsTotal.WithLabelValues(status).Inc()
}

// RecordError increments the error counter.
func (m *Metrics) RecordError(module, errType string) {
	m.ErrorsTotal.WithLabelValues(module, errType).Inc()
}
