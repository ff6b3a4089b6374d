package middleware

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore implements fixed-window rate limiting backed by Redis,
// for deployments where multiple API instances must share limit state.
// It fails open: if Redis is unreachable, requests are allowed.
type RedisRateLimitStore struct {
	client *redis.Client
}

// NewRedisRateLimitStore creates a Redis-backed rate limit store.
func NewRedisRateLimitStore(client *redis.Client) *RedisRateLimitStore {
	return &RedisRateLimitStore{client: client}
}

// Allow checks if a request from the given key should be allowed.
// Returns whether the request is allowed, the remaining quota in the current
// window, and (when blocked) the seconds until the window resets.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int, int) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		// Fail open with a full quota rather than reject traffic on a
		// Redis outage.
		return true, config.RequestsPerWindow, 0
	}

	if count == 1 {
		if err := s.client.Expire(ctx, key, config.WindowDuration).Err(); err != nil {
			return true, config.RequestsPerWindow, 0
		}
	}

	if count <= int64(config.RequestsPerWindow) {
		return true, config.RequestsPerWindow - int(count), 0
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	retryAfter := int(ttl.Seconds())
	if err != nil || retryAfter <= 0 {
		retryAfter = 1
	}
	return false, 0, retryAfter
}

// redisStoreAdapter adapts RedisRateLimitStore to the RateLimitStore
// interface consumed by the RateLimiter middleware.
type redisStoreAdapter struct {
	store *RedisRateLimitStore
}

// Allow implements RateLimitStore.
func (a redisStoreAdapter) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	allowed, _, retryAfter := a.store.Allow(ctx, key, config)
	return allowed, retryAfter
}

// AsRateLimitStore returns a RateLimitStore view of the Redis store for use
// with the RateLimiter middleware.
func (s *RedisRateLimitStore) AsRateLimitStore() RateLimitStore {
	return redisStoreAdapter{store: s}
}
