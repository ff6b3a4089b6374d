// Package middleware provides HTTP middleware components for the API server.
package middleware

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
)

// Tracing wraps handlers in otelhttp instrumentation. Each request gets a
// server span named from its method and path, and inbound W3C traceparent
// headers stitch the span into the caller's trace. Place it after RequestID
// so the request ID is already in context when the span opens.
func Tracing(serviceName string) func(http.Handler) http.Handler {
	spanName := func(_ string, r *http.Request) string {
		return r.Method + " " + r.URL.Path
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, otelhttp.WithSpanNameFormatter(spanName))
	}
}

// GetTraceID returns the active trace ID for the request, or "" when no
// trace is recording.
func GetTraceID(r *http.Request) string {
	sc := trace.SpanContextFromContext(r.Context())
	if !sc.IsValid() {
		return ""
	}
	return sc.TraceID().String()
}
