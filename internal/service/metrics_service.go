package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for HTTP traffic,
// the read-model cache and the assignment engine.
type MetricsService struct {
	registry            *prometheus.Registry
	handler             http.Handler
	requestDuration     *prometheus.HistogramVec
	requestTotal        *prometheus.CounterVec
	cacheLatency        prometheus.Observer
	cacheWrite          prometheus.Observer
	cacheHitRatio       prometheus.Gauge
	cacheHits           prometheus.Counter
	cacheMisses         prometheus.Counter
	assignmentsTotal    prometheus.Counter
	placementsRejected  *prometheus.CounterVec
	autoAssignUnplaced  *prometheus.CounterVec
	autoAssignDurations prometheus.Histogram

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	assignmentsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "defense_assignments_committed_total",
		Help: "Defense assignments committed by manual or automatic scheduling",
	})

	placementsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "defense_placements_rejected_total",
		Help: "Manual placements rejected by the conflict validator",
	}, []string{"kind"})

	autoAssignUnplaced := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "defense_auto_assign_unassigned_total",
		Help: "Topics auto-assign could not place",
	}, []string{"reason"})

	autoAssignDurations := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "defense_auto_assign_duration_seconds",
		Help:    "Duration of scheduled auto-assign runs",
		Buckets: prometheus.DefBuckets,
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		assignmentsTotal, placementsRejected, autoAssignUnplaced, autoAssignDurations, goroutines)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:            registry,
		handler:             handler,
		requestDuration:     requestDuration,
		requestTotal:        requestTotal,
		cacheLatency:        cacheLatency,
		cacheWrite:          cacheWrite,
		cacheHitRatio:       cacheHitRatio,
		cacheHits:           cacheHits,
		cacheMisses:         cacheMisses,
		assignmentsTotal:    assignmentsTotal,
		placementsRejected:  placementsRejected,
		autoAssignUnplaced:  autoAssignUnplaced,
		autoAssignDurations: autoAssignDurations,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordAssignmentsCommitted counts committed assignments.
func (m *MetricsService) RecordAssignmentsCommitted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.assignmentsTotal.Add(float64(n))
}

// RecordPlacementRejected counts a validator rejection by failure kind.
func (m *MetricsService) RecordPlacementRejected(kind string) {
	if m == nil {
		return
	}
	m.placementsRejected.WithLabelValues(kind).Inc()
}

// RecordUnassigned counts a topic auto-assign left unplaced.
func (m *MetricsService) RecordUnassigned(reason string) {
	if m == nil {
		return
	}
	m.autoAssignUnplaced.WithLabelValues(reason).Inc()
}

// ObserveAutoAssignRun records how long a scheduled run took.
func (m *MetricsService) ObserveAutoAssignRun(duration time.Duration) {
	if m == nil {
		return
	}
	m.autoAssignDurations.Observe(duration.Seconds())
}
