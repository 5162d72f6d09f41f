package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics contains Prometheus metrics for the API facade
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHitsTotal  *prometheus.CounterVec
}

// NewHTTPMetrics creates and registers new HTTP metrics
func NewHTTPMetrics(registry *prometheus.Registry) (*HTTPMetrics, error) {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isotrace_http_requests_total",
			Help: "Total number of HTTP requests by method, path and status",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "isotrace_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "isotrace_aggregate_cache_total",
			Help: "Aggregate query cache hits and misses",
		}, []string{"result"}),
	}

	for _, collector := range []prometheus.Collector{m.requestsTotal, m.requestDuration, m.cacheHitsTotal} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// RecordRequest records one handled HTTP request
func (m *HTTPMetrics) RecordRequest(method, path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCacheHit records an aggregate cache hit
func (m *HTTPMetrics) RecordCacheHit() {
	m.cacheHitsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records an aggregate cache miss
func (m *HTTPMetrics) RecordCacheMiss() {
	m.cacheHitsTotal.WithLabelValues("miss").Inc()
}
