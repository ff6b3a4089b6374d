package middleware

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TestMetricsThroughFullChain runs requests through the same middleware
// order main uses and scrapes the resulting /metrics output.
func TestMetricsThroughFullChain(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logBuf, nil))

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"tokens":[]}`))
	})
	handler = HTTPMetrics(metrics)(handler)
	handler = Logging(logger)(handler)
	handler = RequestID(handler)

	for _, sessionID := range []string{"sess-1", "sess-2", "sess-3"} {
		req := httptest.NewRequest(http.MethodGet, "/sessions/"+sessionID+"/tokens", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	scrape := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(scrape.Body)
	exposition := string(body)

	want := MetricHTTPRequestsTotal + `{method="GET",path="/sessions/{id}/tokens",status="200"} 3`
	if !strings.Contains(exposition, want) {
		t.Errorf("scrape missing %q:\n%s", want, exposition)
	}
	for _, sessionID := range []string{"sess-1", "sess-2", "sess-3"} {
		if strings.Contains(exposition, sessionID) {
			t.Errorf("raw session ID %q leaked into metric labels", sessionID)
		}
	}

	// The logging middleware keeps the raw path, so operators can still
	// find the specific session in the logs.
	if !strings.Contains(logBuf.String(), "/sessions/sess-1/tokens") {
		t.Error("access log missing raw request path")
	}
}

// TestRateLimitMetricsThroughChain checks that blocked rolls show up in
// both the 429 response and the block counter.
func TestRateLimitMetricsThroughChain(t *testing.T) {
	metrics := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler = RateLimiter(store, cfg, UserKeyFunc(), metrics)(handler)
	handler = HTTPMetrics(metrics)(handler)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/roll", nil)
		req.RemoteAddr = "203.0.113.5:4242"
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}

	if got := counterValue(t, metrics.rateLimitBlocked, "/sessions/sess-1/roll", "ip"); got != 2 {
		t.Errorf("blocked counter = %v, want 2", got)
	}

	scrape := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(scrape.Body.String(), `status="429"`) {
		t.Error("scrape missing 429 series for blocked rolls")
	}
}
