package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Rate limit defaults.
const (
	DefaultRateLimit       = 60
	DefaultRateLimitWindow = time.Minute
)

// RateLimitStore counts requests per key within a fixed window.
type RateLimitStore interface {
	// Increment bumps the counter for key and returns the new count and the
	// time left in the current window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}

// RateLimitConfig holds configuration for the rate limit middleware.
type RateLimitConfig struct {
	Logger *slog.Logger
	Store  RateLimitStore
	Limit  int
	Window time.Duration
}

// RateLimit limits requests per caller, falling back to the client IP for
// unauthenticated requests. Store failures let the request through.
func RateLimit(config RateLimitConfig) echo.MiddlewareFunc {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Limit <= 0 {
		config.Limit = DefaultRateLimit
	}
	if config.Window <= 0 {
		config.Window = DefaultRateLimitWindow
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if config.Store == nil {
				return next(c)
			}

			key := rateLimitKey(c)
			count, ttl, err := config.Store.Increment(c.Request().Context(), key, config.Window)
			if err != nil {
				config.Logger.Error("failed to increment rate limit counter",
					slog.String("key", key),
					slog.String("error", err.Error()),
				)
				return next(c)
			}

			limit := int64(config.Limit)
			header := c.Response().Header()
			header.Set("X-Ratelimit-Limit", strconv.FormatInt(limit, 10))
			header.Set("X-Ratelimit-Remaining", strconv.FormatInt(max(limit-count, 0), 10))

			if count > limit {
				config.Logger.Warn("rate limit exceeded",
					slog.String("key", key),
					slog.Int64("count", count),
					slog.String("path", c.Request().URL.Path),
				)
				if ttl > 0 {
					header.Set("Retry-After", strconv.FormatInt(int64(ttl.Seconds()+0.5), 10))
				}
				return c.JSON(http.StatusTooManyRequests,
					errorBody("RATE_LIMIT_EXCEEDED", "Too many requests. Please try again later."))
			}

			return next(c)
		}
	}
}

func rateLimitKey(c echo.Context) string {
	if actor := Actor(c); actor != "" {
		return "caller:" + actor
	}
	return "ip:" + c.RealIP()
}

// MemoryRateLimitStore keeps counters in process memory.
type MemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]memoryWindow
	now     func() time.Time
}

type memoryWindow struct {
	count   int64
	resetAt time.Time
}

// NewMemoryRateLimitStore creates an in-memory store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{
		windows: make(map[string]memoryWindow),
		now:     time.Now,
	}
}

// Increment implements RateLimitStore.
func (s *MemoryRateLimitStore) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memoryWindow{resetAt: now.Add(window)}
	}
	w.count++
	s.windows[key] = w

	return w.count, w.resetAt.Sub(now), nil
}

// RedisRateLimitStore shares counters between server replicas.
type RedisRateLimitStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisRateLimitStore creates a new Redis-based rate limit store.
func NewRedisRateLimitStore(client *redis.Client, keyPrefix string) *RedisRateLimitStore {
	if keyPrefix == "" {
		keyPrefix = "aduser:ratelimit:"
	}
	return &RedisRateLimitStore{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

// Increment implements RateLimitStore.
func (s *RedisRateLimitStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	fullKey := s.keyPrefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		pipe.ExpireNX(ctx, fullKey, window)
		ttl = pipe.PTTL(ctx, fullKey)
		return nil
	})
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment counter: %w", err)
	}

	return incr.Val(), ttl.Val(), nil
}
