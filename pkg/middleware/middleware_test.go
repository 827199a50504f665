package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/trace"
)

func resetGlobalMetricsForTest() {
	globalMetricsMu.Lock()
	globalMetrics = nil
	globalMetricsMu.Unlock()
}

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestPrometheusMiddleware_RecordsRequests(t *testing.T) {
	t.Run("counts by method and status", func(t *testing.T) {
		resetGlobalMetricsForTest()
		reg := prometheus.NewRegistry()

		handler := Prometheus(WithRegistry(reg))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

		c := GetMetrics()
		if c == nil {
			t.Fatal("expected GetMetrics to return collector after initialization")
		}
		if got := metricCounterValue(t, c.requestsTotal.WithLabelValues("GET", "404")); got != 1 {
			t.Fatalf("requests_total(GET,404)=%v, want 1", got)
		}
		if got := metricHistogramCount(t, c.requestDuration.WithLabelValues("GET")); got == 0 {
			t.Fatal("expected request_duration_seconds histogram to have sample count > 0")
		}
	})

	t.Run("implicit 200 when handler only writes a body", func(t *testing.T) {
		resetGlobalMetricsForTest()
		reg := prometheus.NewRegistry()

		handler := Prometheus(WithRegistry(reg))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

		c := GetMetrics()
		if got := metricCounterValue(t, c.requestsTotal.WithLabelValues("GET", "200")); got != 1 {
			t.Fatalf("requests_total(GET,200)=%v, want 1", got)
		}
	})
}

func TestRecordingFunctions(t *testing.T) {
	resetGlobalMetricsForTest()
	reg := prometheus.NewRegistry()
	Prometheus(WithRegistry(reg))

	RecordFailure("E301")
	RecordFailure("E301")
	RecordReload()
	RecordClientConnect()
	RecordClientConnect()
	RecordClientDisconnect()
	RecordBuild("client", "success", 1.5)

	c := GetMetrics()
	if c == nil {
		t.Fatal("expected GetMetrics to return collector after initialization")
	}
	if got := metricCounterValue(t, c.failuresTotal.WithLabelValues("E301")); got != 2 {
		t.Fatalf("failures_total(E301)=%v, want 2", got)
	}
	if got := metricCounterValue(t, c.reloadsSent); got != 1 {
		t.Fatalf("reloads_sent_total=%v, want 1", got)
	}
	if got := metricGaugeValue(t, c.clientsConnected); got != 1 {
		t.Fatalf("reload_clients=%v, want 1", got)
	}
	if got := metricCounterValue(t, c.buildsTotal.WithLabelValues("client", "success")); got != 1 {
		t.Fatalf("builds_total(client,success)=%v, want 1", got)
	}
	if got := metricHistogramCount(t, c.buildDuration.WithLabelValues("client")); got != 1 {
		t.Fatalf("build_duration_seconds sample count=%v, want 1", got)
	}
}

func TestRecordingFunctions_NoopBeforeInit(t *testing.T) {
	resetGlobalMetricsForTest()

	// Must not panic without an initialized middleware.
	RecordFailure("E101")
	RecordReload()
	RecordClientConnect()
	RecordClientDisconnect()
	RecordBuild("ssr", "error", 0.2)

	if GetMetrics() != nil {
		t.Fatal("expected GetMetrics to return nil before initialization")
	}
}

func TestOpenTelemetryMiddleware_InjectsSpanContext(t *testing.T) {
	called := false
	handler := OpenTelemetry(WithTracerName("loom-test"))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if span := trace.SpanFromContext(r.Context()); span == nil {
			t.Fatal("expected a span on the request context")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/page", nil))

	if !called {
		t.Fatal("expected handler to be called")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestOpenTelemetryMiddleware_FilterSkipsTracing(t *testing.T) {
	called := false
	handler := OpenTelemetry(
		WithRequestFilter(func(r *http.Request) bool { return r.URL.Path != "/healthz" }),
	)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if !called {
		t.Fatal("expected handler to be called when filtered out")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestOpenTelemetryMiddleware_ErrorStatusPath(t *testing.T) {
	handler := OpenTelemetry()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}
