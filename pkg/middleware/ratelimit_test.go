package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/fxbill/pkg/observability"
)

func TestRateLimiter_Allow(t *testing.T) {
	config := &RateLimitConfig{
		RequestsPerWindow: 10,
		WindowDuration:    time.Second,
		BurstSize:         2,
	}
	limiter := NewRateLimiter(config)
	clock := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	allowedCount := 0
	for i := 0; i < config.RequestsPerWindow+config.BurstSize+5; i++ {
		ok, err := limiter.Allow(context.Background(), "customer:cus_001")
		require.NoError(t, err)
		if ok {
			allowedCount++
		}
	}
	assert.Equal(t, config.RequestsPerWindow+config.BurstSize, allowedCount)

	clock = clock.Add(time.Second)
	ok, _ := limiter.Allow(context.Background(), "customer:cus_001")
	assert.True(t, ok, "tokens refill after a window")

	ok, _ = limiter.Allow(context.Background(), "customer:cus_002")
	assert.True(t, ok, "keys are independent")
}

func TestRateLimiter_Cleanup(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Second})
	clock := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	limiter.Allow(context.Background(), "a")
	clock = clock.Add(3 * time.Second)
	limiter.Cleanup()

	assert.Empty(t, limiter.buckets)
}

func TestRateLimiter_Concurrency(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 50, WindowDuration: time.Hour})

	var wg sync.WaitGroup
	var mu sync.Mutex
	allowed := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := limiter.Allow(context.Background(), "shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", getClientIP(r))

	r.Header.Set("X-Real-IP", "10.0.0.2")
	assert.Equal(t, "10.0.0.2", getClientIP(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.3")
	assert.Equal(t, "203.0.113.7", getClientIP(r))
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return true, errors.New("redis down")
}
func (failingLimiter) Limit() int { return 1 }
func (failingLimiter) Window() time.Duration { return time.Minute }

func TestRateLimitMiddleware(t *testing.T) {
	limiter := NewRateLimiter(&RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Hour})
	handler := CustomerMiddleware("")(RateLimit(limiter, observability.NopLogger())(okHandler()))

	send := func(customer string) *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodPost, "/bff/billing/2024-05/generate", nil)
		r.Header.Set(CustomerHeader, customer)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w
	}

	assert.Equal(t, http.StatusOK, send("cus_001").Code)

	limited := send("cus_001")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.JSONEq(t, `{"error":"rate_limited"}`, limited.Body.String())
	assert.Equal(t, "3600", limited.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("cus_002").Code)
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	handler := RateLimit(failingLimiter{}, observability.NopLogger())(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestDistributedRateLimiter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewDistributedRateLimiter(client, &RateLimitConfig{
		RequestsPerWindow: 2,
		WindowDuration:    time.Minute,
		BurstSize:         1,
	}, "fxbill:ratelimit")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "customer:cus_001")
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err := limiter.Allow(ctx, "customer:cus_001")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, time.Minute, mr.TTL("fxbill:ratelimit:customer:cus_001"))

	mr.FastForward(time.Minute)
	ok, err = limiter.Allow(ctx, "customer:cus_001")
	require.NoError(t, err)
	assert.True(t, ok, "window expired")

	require.NoError(t, limiter.Reset(ctx, "customer:cus_001"))
	assert.False(t, mr.Exists("fxbill:ratelimit:customer:cus_001"))

	mr.Close()
	ok, err = limiter.Allow(ctx, "customer:cus_001")
	assert.Error(t, err)
	assert.True(t, ok, "fails open")
}
