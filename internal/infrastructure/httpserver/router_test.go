package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/aduser/internal/infrastructure/httpserver"
)

type pingRegistrar struct{}

func (pingRegistrar) RegisterRoutes(r *httpserver.Router) {
	r.API().GET("/ping", func(c echo.Context) error {
		return httpserver.RespondOK(c, "pong")
	})
}

func TestRouter(t *testing.T) {
	t.Run("registers api routes under prefix", func(t *testing.T) {
		e := echo.New()
		router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())
		router.RegisterAll(pingRegistrar{})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Same(t, e, router.Echo())
	})

	t.Run("middleware order is auth then rate limit", func(t *testing.T) {
		var order []string
		mark := func(name string) echo.MiddlewareFunc {
			return func(next echo.HandlerFunc) echo.HandlerFunc {
				return func(c echo.Context) error {
					order = append(order, name)
					return next(c)
				}
			}
		}

		e := echo.New()
		config := httpserver.DefaultRouterConfig()
		config.AuthMiddleware = mark("auth")
		config.RateLimitMiddleware = mark("rate_limit")
		router := httpserver.NewRouter(e, config)
		router.RegisterAll(pingRegistrar{})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/ping", nil))

		assert.Equal(t, []string{"auth", "rate_limit"}, order)
	})

	t.Run("auth does not guard routes outside the api group", func(t *testing.T) {
		e := echo.New()
		config := httpserver.DefaultRouterConfig()
		config.AuthMiddleware = func(echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return c.NoContent(http.StatusUnauthorized) }
		}
		httpserver.NewRouter(e, config)
		httpserver.RegisterHealthEndpoints(e, nil)

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("recovers panics", func(t *testing.T) {
		e := echo.New()
		router := httpserver.NewRouter(e, httpserver.DefaultRouterConfig())
		router.API().GET("/panic", func(echo.Context) error { panic("boom") })

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/panic", nil))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestHealthEndpoints(t *testing.T) {
	get := func(e *echo.Echo, path string) (*httptest.ResponseRecorder, httpserver.HealthResponse) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		var resp httpserver.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		return rec, resp
	}

	t.Run("liveness", func(t *testing.T) {
		e := echo.New()
		httpserver.RegisterHealthEndpoints(e, nil)

		rec, resp := get(e, "/health")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, httpserver.StatusHealthy, resp.Status)
	})

	t.Run("ready without checker", func(t *testing.T) {
		e := echo.New()
		httpserver.RegisterHealthEndpoints(e, nil)

		rec, resp := get(e, "/ready")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, httpserver.StatusReady, resp.Status)
	})

	t.Run("ready with healthy dependencies", func(t *testing.T) {
		e := echo.New()
		checker := httpserver.NewDependencyChecker(0,
			httpserver.Dependency{Name: "redis", Check: func(context.Context) error { return nil }},
			httpserver.Dependency{Name: "mongodb", Check: func(context.Context) error { return nil }},
		)
		httpserver.RegisterHealthEndpoints(e, checker)

		rec, resp := get(e, "/ready")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, resp.Components, 2)
	})

	t.Run("not ready names the failing dependency", func(t *testing.T) {
		e := echo.New()
		checker := httpserver.NewDependencyChecker(0,
			httpserver.Dependency{Name: "redis", Check: func(context.Context) error { return nil }},
			httpserver.Dependency{Name: "mongodb", Check: func(context.Context) error { return errors.New("no reachable servers") }},
		)
		httpserver.RegisterHealthEndpoints(e, checker)

		rec, resp := get(e, "/ready")

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, httpserver.StatusNotReady, resp.Status)
		require.Len(t, resp.Components, 2)
		assert.Equal(t, httpserver.ComponentStatus{Name: "redis", Status: httpserver.StatusHealthy}, resp.Components[0])
		assert.Equal(t, "mongodb", resp.Components[1].Name)
		assert.Equal(t, httpserver.StatusUnhealthy, resp.Components[1].Status)
		assert.Equal(t, "no reachable servers", resp.Components[1].Message)
	})

	t.Run("check honours timeout", func(t *testing.T) {
		checker := httpserver.NewDependencyChecker(10*time.Millisecond, httpserver.Dependency{
			Name: "slow",
			Check: func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			},
		})

		statuses := checker.GetHealthStatus(context.Background())

		require.Len(t, statuses, 1)
		assert.Equal(t, httpserver.StatusUnhealthy, statuses[0].Status)
	})
}
