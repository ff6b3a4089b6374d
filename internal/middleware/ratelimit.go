package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig defines one fixed-window limit.
type RateLimitConfig struct {
	// RequestsPerWindow is the maximum number of requests allowed per
	// window. Must be > 0.
	RequestsPerWindow int
	// WindowDuration is the length of the window. Must be > 0.
	WindowDuration time.Duration
}

// Validate checks that the config has usable values.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

var (
	defaultGlobalLimit = RateLimitConfig{RequestsPerWindow: 100, WindowDuration: time.Minute}
	defaultAuthLimit   = RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Minute}
	defaultChatLimit   = RateLimitConfig{RequestsPerWindow: 30, WindowDuration: time.Minute}
)

// DefaultGlobalLimit returns the default per-user limit across all session
// endpoints (100 requests per minute).
func DefaultGlobalLimit() RateLimitConfig {
	return defaultGlobalLimit
}

// DefaultAuthLimit returns the default limit for token endpoints
// (10 requests per minute), tight enough to slow credential stuffing.
func DefaultAuthLimit() RateLimitConfig {
	return defaultAuthLimit
}

// DefaultChatLimit returns the default chat message limit (30 per minute),
// used to keep one table from flooding the room.
func DefaultChatLimit() RateLimitConfig {
	return defaultChatLimit
}

// RateLimitStore is the state backend behind the limiter. In-memory for a
// single instance, Redis when several instances share limits.
type RateLimitStore interface {
	// Allow reports whether a request under key fits the limit. When it
	// does not, the second value is the seconds until the window resets.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, retryAfter int)
}

type window struct {
	count int
	ends  time.Time
}

// InMemoryRateLimitStore is a fixed-window counter over a map. Safe for
// concurrent use.
type InMemoryRateLimitStore struct {
	mu      sync.RWMutex
	windows map[string]*window
}

// NewInMemoryRateLimitStore creates an empty in-memory store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{windows: make(map[string]*window)}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(_ context.Context, key string, config RateLimitConfig) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	win, ok := s.windows[key]
	if !ok || now.After(win.ends) {
		s.windows[key] = &window{count: 1, ends: now.Add(config.WindowDuration)}
		return true, 0
	}
	if win.count < config.RequestsPerWindow {
		win.count++
		return true, 0
	}

	retryAfter := int(win.ends.Sub(now).Seconds())
	if retryAfter <= 0 {
		retryAfter = 1
	}
	return false, retryAfter
}

// Cleanup drops expired windows. Run it periodically, every few multiples
// of the longest configured window.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, win := range s.windows {
		if now.After(win.ends) {
			delete(s.windows, key)
		}
	}
}

// KeyFunc extracts a rate limit key from an HTTP request.
type KeyFunc func(r *http.Request) string

// clientIP resolves the caller's address, preferring the proxy headers set
// by the load balancer in front of the API.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// IPKeyFunc keys limits by client IP.
func IPKeyFunc() KeyFunc {
	return clientIP
}

// UserKeyFunc keys limits by authenticated user, falling back to IP for
// unauthenticated requests. Players at the same table share an IP often
// enough that per-user keys matter.
func UserKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if userID := GetUserID(r.Context()); userID != "" {
			return "user:" + userID
		}
		return "ip:" + clientIP(r)
	}
}

// keyType returns the metric label for a rate limit key ("user" or "ip").
func keyType(key string) string {
	if strings.HasPrefix(key, "user:") {
		return "user"
	}
	return "ip"
}

// RateLimiter rejects requests over the limit with 429, a Retry-After
// header, and an X-RateLimit-Reset Unix timestamp. metrics may be nil to
// disable instrumentation.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			allowed, retryAfter := store.Allow(r.Context(), key, config)

			if metrics != nil {
				metrics.IncRateLimitRequests(r.URL.Path, keyType(key))
			}

			if !allowed {
				if metrics != nil {
					metrics.IncRateLimitBlocked(r.URL.Path, keyType(key))
				}
				ctx := SetErrorCode(r.Context(), "rate_limit_exceeded")
				UpdateResponseContext(w, ctx)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				resetTime := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime, 10))
				http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
