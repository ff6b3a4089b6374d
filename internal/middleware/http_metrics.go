package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// normalizePath collapses session, token, and sub-resource IDs into route
// patterns so the path label stays bounded no matter how many games run.
func normalizePath(path string) string {
	switch path {
	case "/", "/health", "/ready", "/metrics":
		return path
	}

	if !strings.HasPrefix(path, "/sessions/") {
		// Unknown routes pass through unchanged so new endpoints still
		// show up in metrics before this table learns about them.
		return path
	}

	parts := strings.Split(path, "/")
	switch len(parts) {
	case 3: // /sessions/{id}
		if parts[2] != "" {
			return "/sessions/{id}"
		}
	case 4: // /sessions/{id}/events, vision, tokens, messages, roll, fog, map
		switch parts[3] {
		case "events", "vision", "tokens", "messages", "roll", "fog", "map":
			return "/sessions/{id}/" + parts[3]
		}
	case 5:
		if parts[3] == "fog" && (parts[4] == "reveal" || parts[4] == "clear" || parts[4] == "auto-reveal") {
			return "/sessions/{id}/fog/" + parts[4]
		}
		if parts[3] == "map" && parts[4] == "upload-url" {
			return "/sessions/{id}/map/upload-url"
		}
		if parts[3] == "tokens" && parts[4] != "" {
			return "/sessions/{id}/tokens/{token_id}"
		}
	}
	return path
}

// metricsResponseWriter captures status code and response size for the
// metrics middleware.
type metricsResponseWriter struct {
	http.ResponseWriter
	statusCode  int
	size        int64
	wroteHeader bool
}

func newMetricsResponseWriter(w http.ResponseWriter) *metricsResponseWriter {
	return &metricsResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (mrw *metricsResponseWriter) WriteHeader(code int) {
	if mrw.wroteHeader {
		return
	}
	mrw.statusCode = code
	mrw.wroteHeader = true
	mrw.ResponseWriter.WriteHeader(code)
}

func (mrw *metricsResponseWriter) Write(b []byte) (int, error) {
	n, err := mrw.ResponseWriter.Write(b)
	mrw.size += int64(n)
	return n, err
}

// Flush passes through so the SSE change feed keeps streaming.
func (mrw *metricsResponseWriter) Flush() {
	if f, ok := mrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// HTTPMetrics records duration, count, and size series for every request
// except the health probes, which Kubernetes hits often enough to drown the
// interesting traffic.
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" || r.URL.Path == "/ready" {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			mrw := newMetricsResponseWriter(w)

			var requestSize int64
			if contentLength := r.Header.Get("Content-Length"); contentLength != "" {
				if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
					requestSize = size
				}
			}

			next.ServeHTTP(mrw, r)

			metrics.ObserveHTTPRequest(
				r.Method,
				normalizePath(r.URL.Path),
				strconv.Itoa(mrw.statusCode),
				time.Since(start).Seconds(),
				requestSize,
				mrw.size,
			)
		})
	}
}
