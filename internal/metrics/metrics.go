// Package metrics exposes Prometheus counters for governance events, the
// audit pipeline and HTTP traffic.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/civic-assembly/backend/internal/governance"
	"github.com/civic-assembly/backend/internal/models"
)

const namespace = "assembly"

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	events   *prometheus.CounterVec
	dropped  *prometheus.CounterVec
	jobs     *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// New creates the collectors and registers them with the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "governance_events_total",
			Help:      "Governance state transitions by audit event type.",
		}, []string{"type"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events the emitter could not hand to its sink.",
		}, []string{"reason"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_jobs_total",
			Help:      "Audit queue jobs handled by the worker, by result.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events, m.dropped, m.jobs, m.requests, m.latency,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request. route is the matched
// pattern, not the raw path, to bound label cardinality.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(method, route).Observe(d.Seconds())
}

// AuditDropped counts an event lost by the audit emitter.
func (m *Metrics) AuditDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

// AuditJob counts one worker job result ("stored", "retried", "dead_lettered"
// or "failed").
func (m *Metrics) AuditJob(result string) {
	m.jobs.WithLabelValues(result).Inc()
}

// CountEvents wraps next so every emitted event is counted before forwarding.
func (m *Metrics) CountEvents(next governance.Emitter) governance.Emitter {
	return &countingEmitter{next: next, events: m.events}
}

type countingEmitter struct {
	next   governance.Emitter
	events *prometheus.CounterVec
}

func (e *countingEmitter) Emit(ev models.AuditEvent) {
	e.events.WithLabelValues(string(ev.Type)).Inc()
	if e.next != nil {
		e.next.Emit(ev)
	}
}
