package middleware

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisTestClient connects to a local Redis or skips the test. Multi-instance
// deployments share roll and chat limits through Redis, so these tests run
// against the real thing.
func redisTestClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func redisTestKey(userID string) string {
	return "ratelimit-test:" + userID + ":" + strconv.FormatInt(time.Now().UnixNano(), 10)
}

func TestRedisRateLimitStore_QuotaAndBlock(t *testing.T) {
	store := NewRedisRateLimitStore(redisTestClient(t))
	cfg := RateLimitConfig{RequestsPerWindow: 5, WindowDuration: time.Minute}
	ctx := context.Background()
	key := redisTestKey("player-7")

	for i := 0; i < 5; i++ {
		allowed, remaining, _ := store.Allow(ctx, key, cfg)
		if !allowed {
			t.Fatalf("request %d blocked, want allowed", i+1)
		}
		if want := 5 - (i + 1); remaining != want {
			t.Errorf("request %d remaining = %d, want %d", i+1, remaining, want)
		}
	}

	allowed, remaining, retryAfter := store.Allow(ctx, key, cfg)
	if allowed {
		t.Error("request over quota allowed, want blocked")
	}
	if remaining != 0 {
		t.Errorf("remaining = %d, want 0 when blocked", remaining)
	}
	if retryAfter <= 0 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within the minute window", retryAfter)
	}
}

func TestRedisRateLimitStore_SharedAcrossInstances(t *testing.T) {
	client := redisTestClient(t)
	cfg := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}
	ctx := context.Background()
	key := redisTestKey("gm-1")

	// Two stores over the same Redis stand in for two API instances.
	first := NewRedisRateLimitStore(client)
	second := NewRedisRateLimitStore(client)

	first.Allow(ctx, key, cfg)
	second.Allow(ctx, key, cfg)

	if allowed, _, _ := first.Allow(ctx, key, cfg); allowed {
		t.Error("third request allowed, want shared quota exhausted across instances")
	}
}

func TestRedisRateLimitStore_WindowExpires(t *testing.T) {
	store := NewRedisRateLimitStore(redisTestClient(t))
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second}
	ctx := context.Background()
	key := redisTestKey("player-7")

	store.Allow(ctx, key, cfg)
	if allowed, _, _ := store.Allow(ctx, key, cfg); allowed {
		t.Fatal("second request in window allowed, want blocked")
	}

	time.Sleep(1100 * time.Millisecond)
	if allowed, _, _ := store.Allow(ctx, key, cfg); !allowed {
		t.Error("request after window expiry blocked, want allowed")
	}
}

func TestRedisRateLimitStore_FailsOpen(t *testing.T) {
	// Point at a port nothing listens on. An unreachable Redis must not
	// take the table down with it.
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:1",
		DialTimeout: 100 * time.Millisecond,
	})
	defer client.Close()

	store := NewRedisRateLimitStore(client)
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	allowed, remaining, _ := store.Allow(context.Background(), "user:player-7", cfg)
	if !allowed {
		t.Error("request blocked while Redis unreachable, want fail open")
	}
	if remaining != cfg.RequestsPerWindow {
		t.Errorf("remaining = %d, want full quota on fail open", remaining)
	}
}

func TestRedisRateLimitStore_AsRateLimitStore(t *testing.T) {
	store := NewRedisRateLimitStore(redisTestClient(t))
	cfg := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	ctx := context.Background()
	key := redisTestKey("player-7")

	adapted := store.AsRateLimitStore()
	if allowed, _ := adapted.Allow(ctx, key, cfg); !allowed {
		t.Fatal("first request blocked through adapter")
	}
	allowed, retryAfter := adapted.Allow(ctx, key, cfg)
	if allowed {
		t.Error("second request allowed through adapter, want blocked")
	}
	if retryAfter <= 0 {
		t.Errorf("retryAfter = %d, want positive when blocked", retryAfter)
	}
}
