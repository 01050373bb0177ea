// Package metrics holds the Prometheus collectors of balanceview.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	writes        *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
	droppedBills  prometheus.Counter
	migrations    *prometheus.CounterVec
	purges        prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	events        *prometheus.CounterVec
}

// New registers all collectors on a fresh registry, plus the Go and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "balanceview_ledger_writes_total",
			Help: "Ledger writes completed, by kind.",
		}, []string{"kind"}),
		writeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "balanceview_ledger_write_failures_total",
			Help: "Ledger writes that failed after being accepted, by kind.",
		}, []string{"kind"}),
		writeDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "balanceview_ledger_write_duration_seconds",
			Help:    "Time from accepting a ledger write to its completion.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		droppedBills: f.NewCounter(prometheus.CounterOpts{
			Name: "balanceview_ledger_dropped_bills_total",
			Help: "Bill submissions dropped because of invalid input.",
		}),
		migrations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "balanceview_legacy_migrations_total",
			Help: "Legacy migrations attempted, by outcome.",
		}, []string{"outcome"}),
		purges: f.NewCounter(prometheus.CounterOpts{
			Name: "balanceview_legacy_purges_total",
			Help: "Legacy datasets deleted by the purge retention policy.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "balanceview_http_requests_total",
			Help: "HTTP requests served, by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "balanceview_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route"}),
		events: f.NewCounterVec(prometheus.CounterOpts{
			Name: "balanceview_events_total",
			Help: "Change events published or consumed, by name and outcome.",
		}, []string{"event", "outcome"}),
	}
}

func (m *Metrics) WriteCompleted(kind string, took time.Duration) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(kind).Inc()
	m.writeDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func (m *Metrics) WriteFailed(kind string) {
	if m == nil {
		return
	}
	m.writeFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) BillDropped() {
	if m == nil {
		return
	}
	m.droppedBills.Inc()
}

// Migration records a migration outcome: "ok" or "failed".
func (m *Metrics) Migration(outcome string) {
	if m == nil {
		return
	}
	m.migrations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Purged() {
	if m == nil {
		return
	}
	m.purges.Inc()
}

func (m *Metrics) Event(name, outcome string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) HTTPRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(took.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
