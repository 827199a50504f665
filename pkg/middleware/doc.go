// Package middleware provides HTTP middleware for loom servers.
//
// This package includes:
//   - Prometheus metrics middleware
//   - OpenTelemetry distributed tracing middleware
//
// # Prometheus Metrics
//
// The Prometheus middleware counts and times every request, and exposes
// recording hooks for loom's own signals (reloads, builds, failures):
//
//	mux.Use(middleware.Prometheus())
//	mux.Handle("/metrics", promhttp.Handler())
//
// # OpenTelemetry
//
// The OpenTelemetry middleware opens a server span per request against
// the global tracer provider and injects the trace context into the
// request, so handlers and outbound calls inherit the trace:
//
//	mux.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("my-app"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
package middleware
