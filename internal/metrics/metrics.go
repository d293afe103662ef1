// Package metrics exports Prometheus counters and histograms for outbound
// fetches, cache lookups and HTTP requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nmi-agro/fdm/internal/web"
)

const namespace = "fdm"

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheStale = "stale"
)

// Metrics owns a registry with the application collectors. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
	requests      *prometheus.CounterVec
	jobs          *prometheus.CounterVec
}

// New registers the application collectors plus the Go runtime and process
// collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Outbound requests to external services by outcome.",
		}, []string{"upstream", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Duration of outbound requests to external services.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"upstream"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by cache and result (hit, miss, stale).",
		}, []string{"cache", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background job runs by task and outcome.",
		}, []string{"task", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.fetches,
		m.fetchDuration,
		m.cacheLookups,
		m.requests,
		m.jobs,
	)
	return m
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveFetch records one outbound request to upstream.
func (m *Metrics) ObserveFetch(upstream string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(upstream, outcome(err)).Inc()
	m.fetchDuration.WithLabelValues(upstream).Observe(d.Seconds())
}

// ObserveCache records a cache lookup result.
func (m *Metrics) ObserveCache(cache, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

// ObserveJob records one run of a background task.
func (m *Metrics) ObserveJob(task string, err error) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(task, outcome(err)).Inc()
}

// Middleware counts requests by method and final status code.
func (m *Metrics) Middleware() web.Middleware {
	return func(next web.HandlerFunc) web.HandlerFunc {
		return func(c web.Context) error {
			err := next(c)
			if m != nil {
				status := c.ResponseWriter().Status()
				m.requests.WithLabelValues(c.Request().Method, strconv.Itoa(status)).Inc()
			}
			return err
		}
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
