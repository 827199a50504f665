package middleware

import (
	"bufio"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures the Prometheus metrics middleware.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "loom").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics middleware.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// defaultMetricsConfig returns the default metrics configuration.
func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace:   "loom",
		Subsystem:   "",
		ConstLabels: nil,
		Buckets:     prometheus.DefBuckets,
		Registry:    prometheus.DefaultRegisterer,
	}
}

// metrics holds the Prometheus metrics for loom.
type metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	failuresTotal    *prometheus.CounterVec
	reloadsSent      prometheus.Counter
	clientsConnected prometheus.Gauge
	buildsTotal      *prometheus.CounterVec
	buildDuration    *prometheus.HistogramVec
}

// globalMetrics is the singleton metrics instance, created on the first
// call to Prometheus().
var (
	globalMetrics   *metrics
	globalMetricsMu sync.Mutex
)

// initMetrics initializes the Prometheus metrics.
func initMetrics(config MetricsConfig) *metrics {
	factory := promauto.With(config.Registry)

	return &metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of HTTP requests served",
			ConstLabels: config.ConstLabels,
		}, []string{"method", "code"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"method"}),

		failuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "failures_total",
			Help:        "Total number of coded failures by error code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),

		reloadsSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reloads_sent_total",
			Help:        "Total number of reload signals sent to browsers",
			ConstLabels: config.ConstLabels,
		}),

		clientsConnected: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "reload_clients",
			Help:        "Number of connected reload WebSocket clients",
			ConstLabels: config.ConstLabels,
		}),

		buildsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "builds_total",
			Help:        "Total number of target builds by status",
			ConstLabels: config.ConstLabels,
		}, []string{"target", "status"}),

		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "build_duration_seconds",
			Help:        "Target build duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"target"}),
	}
}

// Prometheus creates middleware that collects Prometheus metrics for
// every HTTP request.
//
// Metrics collected:
//   - loom_requests_total: Counter of requests by method and status code
//   - loom_request_duration_seconds: Histogram of request duration by method
//   - loom_failures_total: Counter of coded failures (via RecordFailure)
//   - loom_reloads_sent_total: Counter of reload signals (via RecordReload)
//   - loom_reload_clients: Gauge of connected reload clients
//   - loom_builds_total: Counter of target builds (via RecordBuild)
//   - loom_build_duration_seconds: Histogram of target build duration
//
// Example:
//
//	mux.Use(middleware.Prometheus(
//	    middleware.WithNamespace("myapp"),
//	))
//
//	// Expose metrics endpoint
//	mux.Handle("/metrics", promhttp.Handler())
func Prometheus(opts ...MetricsOption) func(http.Handler) http.Handler {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}

	globalMetricsMu.Lock()
	if globalMetrics == nil {
		globalMetrics = initMetrics(config)
	}
	m := globalMetrics
	globalMetricsMu.Unlock()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w}

			next.ServeHTTP(sw, r)

			m.requestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(r.Method, strconv.Itoa(sw.Status())).Inc()
		})
	}
}

// statusWriter records the response status code. It passes hijacking and
// flushing through so WebSocket upgrades and streaming keep working
// under the middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(b)
}

// Status returns the recorded status code, defaulting to 200.
func (w *statusWriter) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, http.ErrNotSupported
	}
	if w.status == 0 {
		w.status = http.StatusSwitchingProtocols
	}
	return h.Hijack()
}

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordFailure records a coded failure. Call this wherever a failure is
// surfaced to the user. Codes are a closed set, so the label stays
// low-cardinality.
func RecordFailure(code string) {
	if globalMetrics != nil {
		globalMetrics.failuresTotal.WithLabelValues(code).Inc()
	}
}

// RecordReload records a reload signal sent to browsers.
func RecordReload() {
	if globalMetrics != nil {
		globalMetrics.reloadsSent.Inc()
	}
}

// RecordClientConnect records a reload client connecting.
func RecordClientConnect() {
	if globalMetrics != nil {
		globalMetrics.clientsConnected.Inc()
	}
}

// RecordClientDisconnect records a reload client disconnecting.
func RecordClientDisconnect() {
	if globalMetrics != nil {
		globalMetrics.clientsConnected.Dec()
	}
}

// RecordBuild records a completed target build.
func RecordBuild(targetName, status string, seconds float64) {
	if globalMetrics != nil {
		globalMetrics.buildsTotal.WithLabelValues(targetName, status).Inc()
		globalMetrics.buildDuration.WithLabelValues(targetName).Observe(seconds)
	}
}

// =============================================================================
// Metrics Collector
// =============================================================================

// Collector exposes the metrics for custom registrations, so loom
// metrics can be collected alongside other application metrics.
type Collector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	failuresTotal    *prometheus.CounterVec
	reloadsSent      prometheus.Counter
	clientsConnected prometheus.Gauge
	buildsTotal      *prometheus.CounterVec
	buildDuration    *prometheus.HistogramVec
}

// GetMetrics returns the global metrics collector, or nil if the
// Prometheus middleware has not been initialized.
func GetMetrics() *Collector {
	if globalMetrics == nil {
		return nil
	}
	return &Collector{
		requestsTotal:    globalMetrics.requestsTotal,
		requestDuration:  globalMetrics.requestDuration,
		failuresTotal:    globalMetrics.failuresTotal,
		reloadsSent:      globalMetrics.reloadsSent,
		clientsConnected: globalMetrics.clientsConnected,
		buildsTotal:      globalMetrics.buildsTotal,
		buildDuration:    globalMetrics.buildDuration,
	}
}
