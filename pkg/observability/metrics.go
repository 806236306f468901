package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	ChecksTotal   *prometheus.CounterVec
	CheckDuration prometheus.Histogram

	// Entity gauges
	RolesTotal       prometheus.Gauge
	PermissionsTotal prometheus.Gauge

	// Consistency cache metrics
	CacheHitsTotal          prometheus.Gauge
	CacheMissesTotal        prometheus.Gauge
	CacheInvalidationsTotal prometheus.Gauge
	CacheEvictionsTotal     prometheus.Gauge
	CacheEntries            prometheus.Gauge

	// Snapshot persistence metrics
	SnapshotOperationsTotal  *prometheus.CounterVec
	SnapshotOperationSeconds *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ChecksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_authz_checks_total",
				Help: "Total number of authorization decisions by outcome",
			},
			[]string{"reason"},
		),
		CheckDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aegis_authz_check_duration_seconds",
				Help:    "Authorization check duration in seconds",
				Buckets: []float64{.00001, .00005, .0001, .0005, .001, .005, .01},
			},
		),

		RolesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_roles_total",
				Help: "Number of registered roles",
			},
		),
		PermissionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_permissions_total",
				Help: "Number of registered permissions",
			},
		),

		CacheHitsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cache_hits_total",
				Help: "Cumulative consistency cache hits",
			},
		),
		CacheMissesTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cache_misses_total",
				Help: "Cumulative consistency cache misses",
			},
		),
		CacheInvalidationsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cache_invalidations_total",
				Help: "Cumulative consistency cache invalidations",
			},
		),
		CacheEvictionsTotal: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cache_evictions_total",
				Help: "Cumulative consistency cache evictions",
			},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "aegis_cache_entries",
				Help: "Current number of cached resolved sets",
			},
		),

		SnapshotOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aegis_snapshot_operations_total",
				Help: "Total number of snapshot load/save operations",
			},
			[]string{"operation", "status"},
		),
		SnapshotOperationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aegis_snapshot_operation_duration_seconds",
				Help:    "Snapshot load/save duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.ChecksTotal,
		m.CheckDuration,
		m.RolesTotal,
		m.PermissionsTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.CacheEvictionsTotal,
		m.CacheEntries,
		m.SnapshotOperationsTotal,
		m.SnapshotOperationSeconds,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests with Prometheus metrics
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, r.URL.Path, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path).Observe(time.Since(start).Seconds())
		})
	}
}

// RecordCheck counts an authorization decision by outcome and observes its
// latency. It satisfies the gate's check recorder contract.
func (m *Metrics) RecordCheck(reason string, elapsed time.Duration) {
	m.ChecksTotal.WithLabelValues(reason).Inc()
	m.CheckDuration.Observe(elapsed.Seconds())
}

// CacheCounters mirrors the engine's cache counters without importing it here.
type CacheCounters struct {
	Hits          int64
	Misses        int64
	Invalidations int64
	Evictions     int64
	Entries       int
}

// UpdateCacheMetrics copies engine cache counters into the Prometheus gauges.
// Counters are cumulative since engine creation, so gauges are set, not added.
func (m *Metrics) UpdateCacheMetrics(c CacheCounters) {
	m.CacheHitsTotal.Set(float64(c.Hits))
	m.CacheMissesTotal.Set(float64(c.Misses))
	m.CacheInvalidationsTotal.Set(float64(c.Invalidations))
	m.CacheEvictionsTotal.Set(float64(c.Evictions))
	m.CacheEntries.Set(float64(c.Entries))
}

// RegisterMetricsEndpoint registers the /metrics endpoint
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
