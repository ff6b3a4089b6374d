package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// counterValue reads the current value of one labeled series from a counter
// vector.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v) error = %v", labels, err)
	}
	var m dto.Metric
	if err := counter.Write(&m); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	return m.GetCounter().GetValue()
}

func rollRequest(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/sessions/sess-1/roll", nil)
	if remoteAddr != "" {
		req.RemoteAddr = remoteAddr
	}
	return req
}

func TestRateLimitConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     RateLimitConfig
		wantErr bool
	}{
		{"valid", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}, false},
		{"zero requests", RateLimitConfig{RequestsPerWindow: 0, WindowDuration: time.Minute}, true},
		{"negative requests", RateLimitConfig{RequestsPerWindow: -5, WindowDuration: time.Minute}, true},
		{"zero window", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: 0}, true},
		{"negative window", RateLimitConfig{RequestsPerWindow: 10, WindowDuration: -time.Second}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDefaultLimits(t *testing.T) {
	if got := DefaultGlobalLimit(); got.RequestsPerWindow != 100 || got.WindowDuration != time.Minute {
		t.Errorf("DefaultGlobalLimit() = %+v, want 100/min", got)
	}
	if got := DefaultAuthLimit(); got.RequestsPerWindow != 10 || got.WindowDuration != time.Minute {
		t.Errorf("DefaultAuthLimit() = %+v, want 10/min", got)
	}
	if got := DefaultChatLimit(); got.RequestsPerWindow != 30 || got.WindowDuration != time.Minute {
		t.Errorf("DefaultChatLimit() = %+v, want 30/min", got)
	}
}

func TestInMemoryStore_AllowsUpToLimit(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _ := store.Allow(ctx, "user:player-7", cfg)
		if !allowed {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
	}

	allowed, retryAfter := store.Allow(ctx, "user:player-7", cfg)
	if allowed {
		t.Error("request over limit allowed, want blocked")
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within the minute window", retryAfter)
	}
}

func TestInMemoryStore_KeysAreIndependent(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()

	if allowed, _ := store.Allow(ctx, "user:gm-1", cfg); !allowed {
		t.Fatal("first request for gm-1 blocked")
	}
	if allowed, _ := store.Allow(ctx, "user:gm-1", cfg); allowed {
		t.Error("second request for gm-1 allowed, want blocked")
	}
	if allowed, _ := store.Allow(ctx, "user:player-7", cfg); !allowed {
		t.Error("player-7 blocked by gm-1's bucket")
	}
}

func TestInMemoryStore_WindowResets(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: 20 * time.Millisecond}
	ctx := context.Background()

	store.Allow(ctx, "ip:10.0.0.1", cfg)
	if allowed, _ := store.Allow(ctx, "ip:10.0.0.1", cfg); allowed {
		t.Fatal("second request in window allowed, want blocked")
	}

	time.Sleep(30 * time.Millisecond)
	if allowed, _ := store.Allow(ctx, "ip:10.0.0.1", cfg); !allowed {
		t.Error("request after window expiry blocked, want allowed")
	}
}

func TestInMemoryStore_Cleanup(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	ctx := context.Background()

	store.Allow(ctx, "ip:10.0.0.1", RateLimitConfig{RequestsPerWindow: 5, WindowDuration: 10 * time.Millisecond})
	store.Allow(ctx, "ip:10.0.0.2", RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Hour})

	time.Sleep(20 * time.Millisecond)
	store.Cleanup()

	store.mu.RLock()
	defer store.mu.RUnlock()
	if _, ok := store.windows["ip:10.0.0.1"]; ok {
		t.Error("expired bucket survived Cleanup()")
	}
	if _, ok := store.windows["ip:10.0.0.2"]; !ok {
		t.Error("live bucket removed by Cleanup()")
	}
}

func TestInMemoryStore_ConcurrentBursts(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Minute}
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := store.Allow(ctx, "user:player-7", cfg); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed %d of 100 concurrent requests, want exactly 50", allowed)
	}
}

func TestIPKeyFunc(t *testing.T) {
	keyFunc := IPKeyFunc()

	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr with port", "203.0.113.5:4242", nil, "203.0.113.5"},
		{"ipv6 remote addr", "[2001:db8::1]:4242", nil, "2001:db8::1"},
		{"remote addr without port", "203.0.113.5", nil, "203.0.113.5"},
		{
			"x-forwarded-for single",
			"10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "198.51.100.7"},
			"198.51.100.7",
		},
		{
			"x-forwarded-for chain uses first hop",
			"10.0.0.1:80",
			map[string]string{"X-Forwarded-For": "198.51.100.7, 10.0.0.2, 10.0.0.3"},
			"198.51.100.7",
		},
		{
			"x-real-ip",
			"10.0.0.1:80",
			map[string]string{"X-Real-IP": " 198.51.100.9 "},
			"198.51.100.9",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := rollRequest(tt.remoteAddr)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := keyFunc(req); got != tt.want {
				t.Errorf("key = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserKeyFunc(t *testing.T) {
	keyFunc := UserKeyFunc()

	req := rollRequest("203.0.113.5:4242")
	req = req.WithContext(SetUserID(req.Context(), "player-7"))
	if got := keyFunc(req); got != "user:player-7" {
		t.Errorf("authenticated key = %q, want user:player-7", got)
	}

	anon := rollRequest("203.0.113.5:4242")
	if got := keyFunc(anon); got != "ip:203.0.113.5" {
		t.Errorf("anonymous key = %q, want ip:203.0.113.5", got)
	}
}

func TestRateLimiter_BlocksWith429(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	calls := 0
	handler := RateLimiter(store, cfg, UserKeyFunc(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, rollRequest("203.0.113.5:4242"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, rec.Code)
		}
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, rollRequest("203.0.113.5:4242"))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if calls != 2 {
		t.Errorf("handler ran %d times, want 2", calls)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing on 429")
	}
	if rec.Header().Get("X-RateLimit-Reset") == "" {
		t.Error("X-RateLimit-Reset header missing on 429")
	}
}

func TestRateLimiter_SeparateGMAndPlayerBudgets(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	handler := RateLimiter(store, cfg, UserKeyFunc(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	asUser := func(userID string) *http.Request {
		req := rollRequest("")
		return req.WithContext(SetUserID(req.Context(), userID))
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser("gm-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("gm-1 first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser("gm-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("gm-1 second request status = %d, want 429", rec.Code)
	}

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, asUser("player-7"))
	if rec.Code != http.StatusOK {
		t.Errorf("player-7 status = %d, want own budget untouched by gm-1", rec.Code)
	}
}

func TestRateLimiter_RecordsMetrics(t *testing.T) {
	store := NewInMemoryRateLimitStore()
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	metrics := NewMetrics()
	handler := RateLimiter(store, cfg, UserKeyFunc(), metrics)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), rollRequest("203.0.113.5:4242"))
	handler.ServeHTTP(httptest.NewRecorder(), rollRequest("203.0.113.5:4242"))

	if got := counterValue(t, metrics.rateLimitRequests, "/sessions/sess-1/roll", "ip"); got != 2 {
		t.Errorf("rate limit requests counter = %v, want 2", got)
	}
	if got := counterValue(t, metrics.rateLimitBlocked, "/sessions/sess-1/roll", "ip"); got != 1 {
		t.Errorf("rate limit blocked counter = %v, want 1", got)
	}
}
