package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/aduser/internal/middleware"
	"github.com/lllypuk/aduser/internal/testutil"
)

func newRateLimitedEcho(store middleware.RateLimitStore, limit int) *echo.Echo {
	e := echo.New()
	e.Use(middleware.RateLimit(middleware.RateLimitConfig{
		Store:  store,
		Limit:  limit,
		Window: time.Minute,
	}))
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	return e
}

func doGet(e *echo.Echo, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit_MemoryStore(t *testing.T) {
	e := newRateLimitedEcho(middleware.NewMemoryRateLimitStore(), 2)

	assert.Equal(t, http.StatusOK, doGet(e, "10.0.0.1:1234").Code)
	rec := doGet(e, "10.0.0.1:1234")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Ratelimit-Remaining"))

	rec = doGet(e, "10.0.0.1:1234")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")

	// other clients have their own window
	assert.Equal(t, http.StatusOK, doGet(e, "10.0.0.2:1234").Code)
}

type failingStore struct{}

func (failingStore) Increment(context.Context, string, time.Duration) (int64, time.Duration, error) {
	return 0, 0, errors.New("redis down")
}

func TestRateLimit_StoreFailureAllowsRequest(t *testing.T) {
	e := newRateLimitedEcho(failingStore{}, 1)

	for range 3 {
		assert.Equal(t, http.StatusOK, doGet(e, "10.0.0.1:1234").Code)
	}
}

func TestRateLimit_NoStore(t *testing.T) {
	e := newRateLimitedEcho(nil, 1)

	for range 3 {
		assert.Equal(t, http.StatusOK, doGet(e, "10.0.0.1:1234").Code)
	}
}

func TestRedisRateLimitStore(t *testing.T) {
	client, prefix := testutil.SetupTestRedis(t)
	store := middleware.NewRedisRateLimitStore(client, prefix)
	ctx := context.Background()

	count, ttl, err := store.Increment(ctx, "user:alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Greater(t, ttl, 50*time.Second)

	count, _, err = store.Increment(ctx, "user:alice", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	count, _, err = store.Increment(ctx, "user:bob", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
