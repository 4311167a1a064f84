package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestLimiter(cfg *RateLimitConfig) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(cfg)
	rl.now = clock.Now
	return rl, clock
}

func TestRateLimiter_Allow(t *testing.T) {
	cfg := &RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2}
	limiter, clock := newTestLimiter(cfg)
	ctx := context.Background()

	allowed := 0
	for i := 0; i < 20; i++ {
		ok, err := limiter.Allow(ctx, "ip:203.0.113.7")
		require.NoError(t, err)
		if ok {
			allowed++
		}
	}
	assert.Equal(t, 12, allowed)

	clock.now = clock.now.Add(time.Second)
	ok, err := limiter.Allow(ctx, "ip:203.0.113.7")
	require.NoError(t, err)
	assert.True(t, ok, "tokens refill after a window")

	ok, err = limiter.Allow(ctx, "ip:198.51.100.1")
	require.NoError(t, err)
	assert.True(t, ok, "keys are independent")
}

func TestRateLimiter_Remaining(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 10, WindowDuration: time.Second, BurstSize: 2})
	ctx := context.Background()

	remaining, err := limiter.Remaining(ctx, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, 12, remaining)

	for i := 0; i < 5; i++ {
		_, _ = limiter.Allow(ctx, "ip:1")
	}
	remaining, err = limiter.Remaining(ctx, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, 7, remaining)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter, clock := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	_, _ = limiter.Allow(context.Background(), "ip:1")

	clock.now = clock.now.Add(3 * time.Second)
	limiter.Cleanup()

	limiter.mu.RLock()
	defer limiter.mu.RUnlock()
	assert.Empty(t, limiter.buckets)
}

func TestRateLimitMiddleware(t *testing.T) {
	limiter, _ := newTestLimiter(&RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute})
	handler := NewRateLimitMiddleware(limiter, true).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/api/v1/telemetry", nil)
		r.Header.Set("X-Forwarded-For", "203.0.113.7")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	w := send()
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusAccepted, send().Code)

	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (bool, error) {
	return false, errors.New("connection refused")
}
func (brokenLimiter) Remaining(context.Context, string) (int, error) { return 0, nil }
func (brokenLimiter) Config() *RateLimitConfig                      { return DefaultRateLimitConfig() }

func TestRateLimitMiddleware_LimiterErrors(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})

	w := httptest.NewRecorder()
	NewRateLimitMiddleware(brokenLimiter{}, true).Handler(next).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	NewRateLimitMiddleware(brokenLimiter{}, false).Handler(next).
		ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDistributedRateLimiter(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{RequestsPerWindow: 3, WindowDuration: time.Minute}, "")
	ctx := context.Background()

	require.NoError(t, limiter.HealthCheck(ctx))

	remaining, err := limiter.Remaining(ctx, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, 3, remaining)

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "ip:1")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "ip:1")
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err = limiter.Remaining(ctx, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	ttl, err := limiter.TTL(ctx, "ip:1")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)
	assert.True(t, mr.Exists("funnel:ratelimit:ip:1"))

	mr.FastForward(time.Minute)
	ok, err = limiter.Allow(ctx, "ip:1")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")

	require.NoError(t, limiter.Reset(ctx, "ip:1"))
	assert.False(t, mr.Exists("funnel:ratelimit:ip:1"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr, client := newTestRedis(t)
	limiter := NewDistributedRateLimiter(client, nil, "test")
	mr.Close()

	_, err := limiter.Allow(context.Background(), "ip:1")
	assert.Error(t, err)
}
