// Package middleware provides metrics for HTTP middleware components.
package middleware

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names, exported so dashboards and alerts reference one source.
// Everything carries the gridveil_ prefix to keep the series apart from
// other services scraped into the same Prometheus.
const (
	MetricRateLimitRequests     = "gridveil_rate_limit_requests_total"
	MetricRateLimitBlocked      = "gridveil_rate_limit_blocked_total"
	MetricRateLimitRedisErrors  = "gridveil_rate_limit_redis_errors_total"
	MetricHTTPRequestDuration   = "gridveil_http_request_duration_seconds"
	MetricHTTPRequestsTotal     = "gridveil_http_requests_total"
	MetricHTTPRequestSizeBytes  = "gridveil_http_request_size_bytes"
	MetricHTTPResponseSizeBytes = "gridveil_http_response_size_bytes"
)

// httpLabels label every HTTP series. Paths must already be normalized;
// raw session IDs in the path label would blow up series cardinality.
var httpLabels = []string{"method", "path", "status"}

// Metrics holds the Prometheus collectors for the middleware stack. All
// methods are safe for concurrent use.
type Metrics struct {
	rateLimitRequests    *prometheus.CounterVec
	rateLimitBlocked     *prometheus.CounterVec
	rateLimitRedisErrors prometheus.Counter
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
}

// NewMetrics builds the collectors without registering them; call Register
// to attach them to a registry.
func NewMetrics() *Metrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
		return prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: name, Help: help, Buckets: buckets}, labels)
	}

	// 100 B up to ~100 MB, covering map image uploads.
	sizeBuckets := prometheus.ExponentialBuckets(100, 10, 8)
	latencyBuckets := []float64{0.01, 0.1, 0.5, 1.0, 2.0}

	return &Metrics{
		rateLimitRequests: counter(MetricRateLimitRequests,
			"Rate limit checks per endpoint and key type", "endpoint", "key_type"),
		rateLimitBlocked: counter(MetricRateLimitBlocked,
			"Requests rejected with 429 per endpoint and key type", "endpoint", "key_type"),
		rateLimitRedisErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRateLimitRedisErrors,
			Help: "Redis failures during rate limiting; each one is a fail-open event",
		}),
		httpRequestDuration: histogram(MetricHTTPRequestDuration,
			"Request latency in seconds per route", latencyBuckets, httpLabels...),
		httpRequestsTotal: counter(MetricHTTPRequestsTotal,
			"Requests served per route and status", httpLabels...),
		httpRequestSize: histogram(MetricHTTPRequestSizeBytes,
			"Request body size in bytes per route", sizeBuckets, httpLabels...),
		httpResponseSize: histogram(MetricHTTPResponseSizeBytes,
			"Response body size in bytes per route", sizeBuckets, httpLabels...),
	}
}

// Collectors returns every collector owned by this Metrics instance.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.rateLimitRequests,
		m.rateLimitBlocked,
		m.rateLimitRedisErrors,
		m.httpRequestDuration,
		m.httpRequestsTotal,
		m.httpRequestSize,
		m.httpResponseSize,
	}
}

// Register attaches all collectors to reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncRateLimitRequests counts one rate limit check for endpoint. keyType is
// "user" or "ip".
func (m *Metrics) IncRateLimitRequests(endpoint, keyType string) {
	m.rateLimitRequests.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitBlocked counts one blocked request.
func (m *Metrics) IncRateLimitBlocked(endpoint, keyType string) {
	m.rateLimitBlocked.WithLabelValues(endpoint, keyType).Inc()
}

// IncRateLimitRedisErrors counts one fail-open event on a Redis error.
func (m *Metrics) IncRateLimitRedisErrors() {
	m.rateLimitRedisErrors.Inc()
}

// ObserveHTTPRequest records one completed request across the duration,
// count, and size series.
func (m *Metrics) ObserveHTTPRequest(method, path, status string, duration float64, requestSize, responseSize int64) {
	m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.httpRequestSize.WithLabelValues(method, path, status).Observe(float64(requestSize))
	m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))
}
