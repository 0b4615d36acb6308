// Package metrics exposes the prometheus collectors for the game service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fruitbot"

type Metrics struct {
	registry *prometheus.Registry

	Pulls          *prometheus.CounterVec
	PityTriggers   *prometheus.CounterVec
	Synthesized    *prometheus.CounterVec
	BatchDuration  prometheus.Histogram
	BatchFailures  *prometheus.CounterVec
	IncomeGranted  *prometheus.CounterVec
	StorageErrors  *prometheus.CounterVec
	SweepProcessed prometheus.Counter
	HTTPRequests   *prometheus.CounterVec
	HTTPDuration   *prometheus.HistogramVec
}

// New registers every collector on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Pulls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pulls_total",
			Help: "Items granted by pulls, by tier.",
		}, []string{"tier"}),
		PityTriggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pity_triggers_total",
			Help: "Pulls decided by the pity mechanism, by kind (hard, forced).",
		}, []string{"kind"}),
		Synthesized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "synthesized_items_total",
			Help: "Placeholder items granted for tiers with no catalog entries.",
		}, []string{"tier"}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "pull_batch_duration_seconds",
			Help:    "Latency of a whole pull batch including its transaction.",
			Buckets: prometheus.DefBuckets,
		}),
		BatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "pull_batch_failures_total",
			Help: "Rejected or rolled back pull batches, by reason.",
		}, []string{"reason"}),
		IncomeGranted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "income_granted_berries_total",
			Help: "Berries granted by income, by kind (passive, manual).",
		}, []string{"kind"}),
		StorageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "storage_errors_total",
			Help: "Storage failures, by operation.",
		}, []string{"op"}),
		SweepProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "passive_sweep_accounts_total",
			Help: "Accounts visited by the passive income sweep.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "http_requests_total",
			Help: "HTTP requests, by route and status code.",
		}, []string{"route", "code"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Pulls, m.PityTriggers, m.Synthesized, m.BatchDuration, m.BatchFailures,
		m.IncomeGranted, m.StorageErrors, m.SweepProcessed, m.HTTPRequests, m.HTTPDuration,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveBatch records a finished batch. A nil receiver is a no-op so
// callers never need to check whether metrics are enabled.
func (m *Metrics) ObserveBatch(started time.Time, failure string) {
	if m == nil {
		return
	}
	m.BatchDuration.Observe(time.Since(started).Seconds())
	if failure != "" {
		m.BatchFailures.WithLabelValues(failure).Inc()
	}
}

func (m *Metrics) Pull(tier string) {
	if m != nil {
		m.Pulls.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) PityTrigger(kind string) {
	if m != nil {
		m.PityTriggers.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) Synthesize(tier string) {
	if m != nil {
		m.Synthesized.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) Income(kind string, amount int64) {
	if m != nil && amount > 0 {
		m.IncomeGranted.WithLabelValues(kind).Add(float64(amount))
	}
}

func (m *Metrics) StorageError(op string) {
	if m != nil {
		m.StorageErrors.WithLabelValues(op).Inc()
	}
}

func (m *Metrics) Swept(n int) {
	if m != nil && n > 0 {
		m.SweepProcessed.Add(float64(n))
	}
}

func (m *Metrics) HTTP(route string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
