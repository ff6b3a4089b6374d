package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func profilingHandler(cfg ProfilingConfig) http.Handler {
	return Profiling(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("api"))
	}))
}

func TestProfiling_DisabledPassesThrough(t *testing.T) {
	handler := profilingHandler(ProfilingConfig{Enabled: false, Environment: "development"})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))

	if body := rr.Body.String(); body != "api" {
		t.Errorf("disabled profiling should fall through to the API handler, got %q", body)
	}
}

func TestProfiling_RefusedInProduction(t *testing.T) {
	for _, env := range []string{"production", "prod"} {
		t.Run(env, func(t *testing.T) {
			handler := profilingHandler(ProfilingConfig{Enabled: true, Environment: env})

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/heap", nil))

			if body := rr.Body.String(); body != "api" {
				t.Errorf("profiling must stay off in %s, got body %q", env, body)
			}
		})
	}
}

func TestProfiling_ServesIndexInDevelopment(t *testing.T) {
	handler := profilingHandler(ProfilingConfig{Enabled: true, Environment: "development"})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/debug/pprof/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200 from pprof index, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "pprof") {
		t.Errorf("expected pprof index page, got %q", rr.Body.String())
	}
}

func TestProfiling_NonDebugRoutesUnaffected(t *testing.T) {
	handler := profilingHandler(ProfilingConfig{Enabled: true, Environment: "development"})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sessions/sess-1/tokens", nil))

	if body := rr.Body.String(); body != "api" {
		t.Errorf("API routes must bypass the profiler, got %q", body)
	}
}
