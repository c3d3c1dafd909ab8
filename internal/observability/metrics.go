package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	apiDurationBuckets  = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
)

// Metrics holds all Prometheus metric instruments for the console. All
// recording helpers are safe to call on a nil *Metrics.
type Metrics struct {
	// Resource client metrics
	APIRequestsTotal    *prometheus.CounterVec
	APIRequestDuration  *prometheus.HistogramVec
	CircuitBreakerState prometheus.Gauge
	TokenRefreshesTotal *prometheus.CounterVec

	// Query cache metrics
	CacheHitsTotal          *prometheus.CounterVec
	CacheMissesTotal        *prometheus.CounterVec
	CacheInvalidationsTotal *prometheus.CounterVec
	CacheDiscardsTotal      *prometheus.CounterVec
	CacheEntries            prometheus.Gauge

	// Mutation metrics
	MutationsTotal          *prometheus.CounterVec
	MutationDuration        *prometheus.HistogramVec
	ValidationFailuresTotal *prometheus.CounterVec

	// Dev backend HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// System metrics
	DefinitionsLoaded prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// Resource client
		APIRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_api_requests_total",
			Help: "Total number of backend API requests.",
		}, []string{"resource", "method", "status"}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_api_request_duration_seconds",
			Help:    "Backend API request duration in seconds.",
			Buckets: apiDurationBuckets,
		}, []string{"resource"}),
		CircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_api_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
		TokenRefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_token_refreshes_total",
			Help: "Total number of access token refresh attempts.",
		}, []string{"outcome"}),

		// Query cache
		CacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_query_cache_hits_total",
			Help: "Total query cache hits.",
		}, []string{"resource"}),
		CacheMissesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_query_cache_misses_total",
			Help: "Total query cache misses, including stale entries.",
		}, []string{"resource"}),
		CacheInvalidationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_query_cache_invalidations_total",
			Help: "Total cache entries invalidated, by key prefix.",
		}, []string{"prefix"}),
		CacheDiscardsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_query_cache_discards_total",
			Help: "Total superseded responses discarded instead of committed.",
		}, []string{"resource"}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_query_cache_entries",
			Help: "Number of entries in the query cache.",
		}),

		// Mutations
		MutationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_mutations_total",
			Help: "Total number of mutations.",
		}, []string{"resource", "kind", "outcome"}),
		MutationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_mutation_duration_seconds",
			Help:    "Mutation duration in seconds.",
			Buckets: apiDurationBuckets,
		}, []string{"resource"}),
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_form_validation_failures_total",
			Help: "Total number of form submissions rejected by validation.",
		}, []string{"resource"}),

		// Dev backend
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "console_devbackend_http_requests_total",
			Help: "Total number of HTTP requests served by the dev backend.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "console_devbackend_http_request_duration_seconds",
			Help:    "Dev backend HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),

		// System
		DefinitionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "console_definitions_loaded",
			Help: "Number of loaded resource definitions.",
		}),
	}

	reg.MustRegister(
		m.APIRequestsTotal,
		m.APIRequestDuration,
		m.CircuitBreakerState,
		m.TokenRefreshesTotal,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheInvalidationsTotal,
		m.CacheDiscardsTotal,
		m.CacheEntries,
		m.MutationsTotal,
		m.MutationDuration,
		m.ValidationFailuresTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.DefinitionsLoaded,
	)

	return m
}

// --- Recording helpers ---

// RecordAPIRequest records a backend API request. status 0 means no response.
func (m *Metrics) RecordAPIRequest(resource, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestsTotal.WithLabelValues(resource, method, strconv.Itoa(status)).Inc()
	m.APIRequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the breaker gauge. 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(state float64) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.Set(state)
}

// RecordTokenRefresh records a refresh attempt outcome (success, failure).
func (m *Metrics) RecordTokenRefresh(outcome string) {
	if m == nil {
		return
	}
	m.TokenRefreshesTotal.WithLabelValues(outcome).Inc()
}

// RecordCacheHit records a fresh cache hit.
func (m *Metrics) RecordCacheHit(resource string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(resource).Inc()
}

// RecordCacheMiss records a cache miss or stale entry.
func (m *Metrics) RecordCacheMiss(resource string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(resource).Inc()
}

// RecordCacheInvalidation records n entries invalidated under prefix.
func (m *Metrics) RecordCacheInvalidation(prefix string, n int) {
	if m == nil {
		return
	}
	m.CacheInvalidationsTotal.WithLabelValues(prefix).Add(float64(n))
}

// RecordCacheDiscard records a superseded response that was not committed.
func (m *Metrics) RecordCacheDiscard(resource string) {
	if m == nil {
		return
	}
	m.CacheDiscardsTotal.WithLabelValues(resource).Inc()
}

// SetCacheEntries sets the current cache size.
func (m *Metrics) SetCacheEntries(n int) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(n))
}

// RecordMutation records a mutation outcome (success, error).
func (m *Metrics) RecordMutation(resource, kind, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.MutationsTotal.WithLabelValues(resource, kind, outcome).Inc()
	m.MutationDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordValidationFailure records a form submission rejected locally.
func (m *Metrics) RecordValidationFailure(resource string) {
	if m == nil {
		return
	}
	m.ValidationFailuresTotal.WithLabelValues(resource).Inc()
}

// RecordHTTPRequest records a dev backend HTTP request.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
}

// SetDefinitionsLoaded sets the number of loaded definitions.
func (m *Metrics) SetDefinitionsLoaded(count int) {
	if m == nil {
		return
	}
	m.DefinitionsLoaded.Set(float64(count))
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		m.RecordHTTPRequest(r.Method, routePattern(r), sw.status, time.Since(start))
	})
}

// Handler returns the Prometheus HTTP handler for the given gatherer.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	// RoutePattern collapses the /* joints of mounted sub-routers.
	if pattern := rctx.RoutePattern(); pattern != "" {
		return pattern
	}
	return r.URL.Path
}

// metricsResponseWriter wraps http.ResponseWriter to capture status.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}
