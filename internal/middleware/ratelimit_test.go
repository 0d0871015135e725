package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/charlesng35/formgate/pkg/response"
)

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(NewMemoryRateStore(), 2, 100*time.Millisecond))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	// First two requests should pass
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/ping", nil)
		r.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	// Third request within window should be rate-limited
	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	var payload response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
	require.Equal(t, "RATE_LIMIT_EXCEEDED", payload.Error.Code)

	time.Sleep(120 * time.Millisecond)

	// After window resets, should pass again
	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/ping", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(nil, 0, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

type erroringRateStore struct{}

func (erroringRateStore) Increment(context.Context, string, time.Duration) (int, time.Duration, error) {
	return 0, 0, errors.New("store down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RateLimit(erroringRateStore{}, 1, time.Minute))
	r.GET("/ping", func(c *gin.Context) { c.String(200, "pong") })

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}
}

func TestMemoryRateStoreSweepsExpiredCounters(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	store := newMemoryRateStore(func() time.Time { return now })
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "a", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, time.Second, ttl)

	now = now.Add(2 * time.Second)
	count, _, err = store.Increment(ctx, "b", time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	store.mu.Lock()
	_, stale := store.data["a"]
	store.mu.Unlock()
	require.False(t, stale)
}

type fakeRedisCounter struct {
	mu      sync.Mutex
	counts  map[string]int64
	expires map[string]time.Duration
}

func newFakeRedisCounter() *fakeRedisCounter {
	return &fakeRedisCounter{counts: map[string]int64{}, expires: map[string]time.Duration{}}
}

func (f *fakeRedisCounter) Incr(_ context.Context, key string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedisCounter) PExpire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedisCounter) PTTL(_ context.Context, key string) *redis.DurationCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	ttl, ok := f.expires[key]
	if !ok {
		ttl = -1
	}
	return redis.NewDurationResult(ttl, nil)
}

func TestRedisRateStoreIncrement(t *testing.T) {
	client := newFakeRedisCounter()
	store := NewRedisRateStore(client)
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "1.2.3.4|/submit", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, count)
	require.Equal(t, time.Minute, ttl)
	require.Equal(t, time.Minute, client.expires[rateKeyPrefix+"1.2.3.4|/submit"])

	count, ttl, err = store.Increment(ctx, "1.2.3.4|/submit", time.Minute)
	require.NoError(t, err)
	require.Equal(t, 2, count)
	require.Equal(t, time.Minute, ttl)
}

func TestRedisRateStoreRestoresMissingExpiry(t *testing.T) {
	client := newFakeRedisCounter()
	client.counts[rateKeyPrefix+"k"] = 4
	store := NewRedisRateStore(client)

	count, ttl, err := store.Increment(context.Background(), "k", 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 5, count)
	require.Equal(t, 30*time.Second, ttl)
	require.Equal(t, 30*time.Second, client.expires[rateKeyPrefix+"k"])
}

func TestNewRedisRateStoreNilClient(t *testing.T) {
	require.Nil(t, NewRedisRateStore(nil))
}
