package metrics

import (
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Metrics holds all application metrics.
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestBytes     *prometheus.CounterVec
	patternsGenerated    *prometheus.CounterVec
	generationDuration   *prometheus.HistogramVec
	generationErrors     *prometheus.CounterVec
	verificationsTotal   *prometheus.CounterVec
	verificationDuration *prometheus.HistogramVec
	signingOperations    *prometheus.CounterVec
	keyRotationsTotal    prometheus.Counter
	storedPatterns       prometheus.Gauge
	activeConnections    prometheus.Gauge
	goroutines           prometheus.Gauge
	memoryAllocBytes     prometheus.Gauge
	memorySysBytes       prometheus.Gauge
}

// NewMetrics creates a new metrics instance.
func NewMetrics() *Metrics {
	return newMetricsWithRegistry(defaultRegistry)
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in HTTP requests",
			},
			[]string{"method", "path"},
		),
		patternsGenerated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "patterns_generated_total",
				Help: "Total number of patterns generated",
			},
			[]string{"algorithm"},
		),
		generationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pattern_generation_duration_seconds",
				Help:    "Pattern generation duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"algorithm"},
		),
		generationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_generation_errors_total",
				Help: "Total number of pattern generation errors",
			},
			[]string{"algorithm", "error_type"},
		),
		verificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pattern_verifications_total",
				Help: "Total number of pattern verifications",
			},
			[]string{"algorithm", "result"}, // result: "verified" or "rejected"
		),
		verificationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pattern_verification_duration_seconds",
				Help:    "Pattern verification duration in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
			[]string{"algorithm"},
		),
		signingOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signing_operations_total",
				Help: "Total number of signing operations",
			},
			[]string{"operation"}, // "sign" or "verify"
		),
		keyRotationsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "signing_key_rotations_total",
				Help: "Total number of signing key rotations",
			},
		),
		storedPatterns: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "stored_patterns",
				Help: "Number of patterns in the repository",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
	}
}

// RecordHTTPRequest records an HTTP request metric.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration, bytes int64) {
	m.httpRequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path, http.StatusText(status)).Observe(duration.Seconds())
	m.httpRequestBytes.WithLabelValues(method, path).Add(float64(bytes))
}

// RecordGeneration records a successful pattern generation.
func (m *Metrics) RecordGeneration(algorithm string, duration time.Duration) {
	m.patternsGenerated.WithLabelValues(algorithm).Inc()
	m.generationDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	m.signingOperations.WithLabelValues("sign").Inc()
}

// RecordGenerationError records a failed pattern generation.
func (m *Metrics) RecordGenerationError(algorithm, errorType string) {
	m.generationErrors.WithLabelValues(algorithm, errorType).Inc()
}

// RecordVerification records a pattern verification and its outcome.
func (m *Metrics) RecordVerification(algorithm string, verified bool, duration time.Duration) {
	result := "rejected"
	if verified {
		result = "verified"
	}
	m.verificationsTotal.WithLabelValues(algorithm, result).Inc()
	m.verificationDuration.WithLabelValues(algorithm).Observe(duration.Seconds())
	m.signingOperations.WithLabelValues("verify").Inc()
}

// RecordKeyRotation records a signing key rotation.
func (m *Metrics) RecordKeyRotation() {
	m.keyRotationsTotal.Inc()
}

// SetStoredPatterns updates the repository size gauge.
func (m *Metrics) SetStoredPatterns(n int) {
	m.storedPatterns.Set(float64(n))
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// HealthHandler returns a handler for the health check endpoint.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}
}

// ReadinessHandler returns a handler for the readiness probe.
func ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}

// LivenessHandler returns a handler for the liveness probe.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"alive"}`))
	}
}
