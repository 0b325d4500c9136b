package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the server. Each instance owns
// its registry, so tests can create as many as they need.
type Metrics struct {
	RequestCounter      *prometheus.CounterVec
	LatencyHistogram    *prometheus.HistogramVec
	RateLimitHits       *prometheus.CounterVec
	SaveOutcomes        *prometheus.CounterVec
	ConflictStoreErrors *prometheus.CounterVec
	DiffRenders         *prometheus.CounterVec
	ConflictsPurged     prometheus.Counter
	registry            *prometheus.Registry
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		RequestCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabrica_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		LatencyHistogram: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fabrica_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		RateLimitHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabrica_rate_limit_hits_total",
				Help: "Total number of rate limited requests",
			},
			[]string{"route"},
		),
		SaveOutcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabrica_save_outcomes_total",
				Help: "Save attempts by conflict detection outcome",
			},
			[]string{"outcome"},
		),
		ConflictStoreErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabrica_conflict_store_errors_total",
				Help: "Conflict store operations that failed",
			},
			[]string{"op"},
		),
		DiffRenders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fabrica_diff_renders_total",
				Help: "Diffs rendered by kind",
			},
			[]string{"kind"},
		),
		ConflictsPurged: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "fabrica_conflicts_purged_total",
				Help: "Expired conflict records removed",
			},
		),
		registry: registry,
	}

	registry.MustRegister(m.RequestCounter)
	registry.MustRegister(m.LatencyHistogram)
	registry.MustRegister(m.RateLimitHits)
	registry.MustRegister(m.SaveOutcomes)
	registry.MustRegister(m.ConflictStoreErrors)
	registry.MustRegister(m.DiffRenders)
	registry.MustRegister(m.ConflictsPurged)

	return m
}

func (m *Metrics) IncrementRequest(method, route string, status int) {
	m.RequestCounter.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}

func (m *Metrics) RecordLatency(method, route string, seconds float64) {
	m.LatencyHistogram.WithLabelValues(method, route).Observe(seconds)
}

func (m *Metrics) IncrementRateLimitHit(route string) {
	m.RateLimitHits.WithLabelValues(route).Inc()
}

func (m *Metrics) IncrementSaveOutcome(outcome string) {
	m.SaveOutcomes.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncrementStoreError(op string) {
	m.ConflictStoreErrors.WithLabelValues(op).Inc()
}

func (m *Metrics) IncrementDiffRender(kind string) {
	m.DiffRenders.WithLabelValues(kind).Inc()
}

func (m *Metrics) AddPurged(n int) {
	m.ConflictsPurged.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
