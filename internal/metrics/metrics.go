// Package metrics exposes Prometheus collectors for the case resolver.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	resolutionsTotal           *prometheus.CounterVec
	fetchAttemptsTotal         *prometheus.CounterVec
	rateLimitWaitSeconds       prometheus.Histogram
	cacheLookupsTotal          *prometheus.CounterVec
	apiThrottledTotal          prometheus.Counter
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		resolutionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_resolutions_total",
				Help: "Total number of finalized resolutions, labeled by status and error code.",
			},
			[]string{"status", "error_code"},
		)

		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_fetch_attempts_total",
				Help: "Total number of upstream GET attempts, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "resolver_rate_limit_wait_seconds",
				Help:    "Histogram of time spent waiting for an outbound request slot.",
				Buckets: []float64{0.1, 0.5, 1, 2, 3, 5, 10, 30},
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "resolver_cache_lookups_total",
				Help: "Total number of cache lookups, labeled by tier and result.",
			},
			[]string{"tier", "result"},
		)

		apiThrottledTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "resolver_api_throttled_total",
				Help: "Total number of API requests rejected by the per-client rate limit.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveResolution counts one finalized result.
func ObserveResolution(status, errorCode string) {
	Init()
	if errorCode == "" {
		errorCode = "none"
	}
	resolutionsTotal.WithLabelValues(status, errorCode).Inc()
}

// ObserveFetchAttempt counts one upstream attempt. outcome is "ok", an error
// code, or "transport_error" for retried failures.
func ObserveFetchAttempt(outcome string) {
	Init()
	fetchAttemptsTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitWait records the duration of a rate limit wait.
func ObserveRateLimitWait(duration time.Duration) {
	Init()
	rateLimitWaitSeconds.Observe(duration.Seconds())
}

// ObserveCacheLookup counts a cache lookup on tier ("raw" or "response").
func ObserveCacheLookup(tier string, hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(tier, result).Inc()
}

// ObserveAPIThrottled counts a request rejected by the API rate limit.
func ObserveAPIThrottled() {
	Init()
	apiThrottledTotal.Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
