package service

import (
	"net/http"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "archive"

// Resolver paths reported by RecordResolution.
const (
	ResolutionRegistry  = "registry"
	ResolutionDiscovery = "discovery"
	ResolutionFlat      = "flat"
	ResolutionUnknown   = "unknown"
)

// MetricsSnapshot is a compact view of the counters, served as JSON.
type MetricsSnapshot struct {
	RequestsTotal            uint64            `json:"requestsTotal"`
	AverageRequestDurationMs float64           `json:"averageRequestDurationMs"`
	CacheHits                uint64            `json:"cacheHits"`
	CacheMisses              uint64            `json:"cacheMisses"`
	CacheHitRatio            float64           `json:"cacheHitRatio"`
	Searches                 uint64            `json:"searches"`
	StoreQueries             uint64            `json:"storeQueries"`
	AverageStoreQueryMs      float64           `json:"averageStoreQueryMs"`
	Resolutions              map[string]uint64 `json:"resolutions"`
	Goroutines               int               `json:"goroutines"`
	GeneratedAt              time.Time         `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation for the archive.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
	cacheLatency    prometheus.Histogram
	storeDuration   *prometheus.HistogramVec
	searchDuration  prometheus.Histogram
	searchResults   prometheus.Histogram
	resolutions     *prometheus.CounterVec
	itemWrites      *prometheus.CounterVec
	eventJobs       *prometheus.CounterVec

	requestCount         atomic.Uint64
	requestDurationTotal atomic.Uint64
	cacheHitCount        atomic.Uint64
	cacheMissCount       atomic.Uint64
	searchCount          atomic.Uint64
	storeQueryCount      atomic.Uint64
	storeDurationTotal   atomic.Uint64
	resolutionCounts     [4]atomic.Uint64
}

// NewMetricsService registers the archive collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	m := &MetricsService{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "cache_lookups_total",
			Help:      "Cache lookups by outcome",
		}, []string{"result"}),
		cacheLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "cache_latency_seconds",
			Help:      "Latency of cache reads",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "store_query_duration_seconds",
			Help:      "Duration of archive store queries",
			Buckets:   prometheus.DefBuckets,
		}, []string{"query"}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_duration_seconds",
			Help:      "End-to-end duration of free-text searches that reached the store",
			Buckets:   prometheus.DefBuckets,
		}),
		searchResults: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "search_candidates",
			Help:      "Number of matching items per search before pagination",
			Buckets:   []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
		}),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "taxonomy_resolutions_total",
			Help:      "Sub-category resolutions by the path that produced them",
		}, []string{"path"}),
		itemWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "item_writes_total",
			Help:      "Archive item writes by action and outcome",
		}, []string{"action", "outcome"}),
		eventJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "item_event_jobs_total",
			Help:      "Processed item-change jobs by outcome",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.requestDuration, m.requestTotal, m.cacheLookups,
		m.cacheLatency, m.storeDuration,
		m.searchDuration, m.searchResults,
		m.resolutions, m.itemWrites, m.eventJobs,
		collectors.NewGoCollector(),
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
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

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := strconv.Itoa(status)
	m.requestDuration.WithLabelValues(method, route, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, route, labelStatus).Inc()
	m.requestCount.Add(1)
	m.requestDurationTotal.Add(uint64(duration.Nanoseconds()))
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheLookups.WithLabelValues("hit").Inc()
		m.cacheHitCount.Add(1)
		return
	}
	m.cacheLookups.WithLabelValues("miss").Inc()
	m.cacheMissCount.Add(1)
}

// ObserveStoreQuery records archive store timing.
func (m *MetricsService) ObserveStoreQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.storeDuration.WithLabelValues(label).Observe(duration.Seconds())
	m.storeQueryCount.Add(1)
	m.storeDurationTotal.Add(uint64(duration))
}

// ObserveSearch records one executed search.
func (m *MetricsService) ObserveSearch(candidates int, duration time.Duration) {
	if m == nil {
		return
	}
	m.searchDuration.Observe(duration.Seconds())
	m.searchResults.Observe(float64(candidates))
	m.searchCount.Add(1)
}

// RecordResolution counts which resolver path answered a sub-category request.
func (m *MetricsService) RecordResolution(path string) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(path).Inc()
	if idx := resolutionIndex(path); idx >= 0 {
		m.resolutionCounts[idx].Add(1)
	}
}

// RecordItemWrite counts lifecycle writes.
func (m *MetricsService) RecordItemWrite(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.itemWrites.WithLabelValues(action, outcome).Inc()
}

// RecordEventJob counts item-change job outcomes.
func (m *MetricsService) RecordEventJob(err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.eventJobs.WithLabelValues(outcome).Inc()
}

// Snapshot returns aggregated counters.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	hits := m.cacheHitCount.Load()
	misses := m.cacheMissCount.Load()
	requests := m.requestCount.Load()

	snap := MetricsSnapshot{
		RequestsTotal: requests,
		CacheHits:     hits,
		CacheMisses:   misses,
		Searches:      m.searchCount.Load(),
		Resolutions:   make(map[string]uint64, len(resolutionPaths)),
		Goroutines:    runtime.NumGoroutine(),
		GeneratedAt:   time.Now().UTC(),
	}
	if total := hits + misses; total > 0 {
		snap.CacheHitRatio = float64(hits) / float64(total)
	}
	if queries := m.storeQueryCount.Load(); queries > 0 {
		snap.StoreQueries = queries
		snap.AverageStoreQueryMs = float64(m.storeDurationTotal.Load()) / float64(queries) / float64(time.Millisecond)
	}
	if requests > 0 {
		snap.AverageRequestDurationMs = float64(m.requestDurationTotal.Load()) / float64(requests) / float64(time.Millisecond)
	}
	for i, path := range resolutionPaths {
		snap.Resolutions[path] = m.resolutionCounts[i].Load()
	}
	return snap
}

var resolutionPaths = [4]string{ResolutionRegistry, ResolutionDiscovery, ResolutionFlat, ResolutionUnknown}

func resolutionIndex(path string) int {
	for i, p := range resolutionPaths {
		if p == path {
			return i
		}
	}
	return -1
}
