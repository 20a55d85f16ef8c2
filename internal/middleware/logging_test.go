package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/aduser/internal/infrastructure/graph"
	"github.com/lllypuk/aduser/internal/middleware"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func TestLogging(t *testing.T) {
	t.Run("generates request id and logs request", func(t *testing.T) {
		logger, buf := newBufferLogger()
		e := echo.New()
		e.Use(middleware.Logging(middleware.LoggingConfig{Logger: logger}))

		var seenID string
		e.PATCH("/api/v1/users/:identity", func(c echo.Context) error {
			seenID = middleware.GetRequestID(c)
			return c.NoContent(http.StatusNoContent)
		})

		req := httptest.NewRequest(http.MethodPatch, "/api/v1/users/jane@contoso.com", bytes.NewBufferString(`{"password":"P@ss"}`))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		assert.NotEmpty(t, seenID)
		assert.Equal(t, seenID, rec.Header().Get(middleware.RequestIDHeader))
		assert.Contains(t, buf.String(), `"msg":"HTTP request"`)
		assert.Contains(t, buf.String(), `"status":204`)
		assert.NotContains(t, buf.String(), "P@ss")
	})

	t.Run("names the route and the caller", func(t *testing.T) {
		logger, buf := newBufferLogger()
		e := echo.New()
		e.Use(middleware.Logging(middleware.LoggingConfig{Logger: logger}))
		e.PATCH("/api/v1/users/:identity", func(c echo.Context) error {
			middleware.SetCaller(c, &graph.CallerClaims{Subject: "sub-1", Principal: "admin@contoso.com"})
			return c.NoContent(http.StatusNoContent)
		})

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/v1/users/jane@contoso.com", nil))

		assert.Contains(t, buf.String(), `"route":"/api/v1/users/:identity"`)
		assert.Contains(t, buf.String(), `"actor":"admin@contoso.com"`)
	})

	t.Run("keeps incoming request id", func(t *testing.T) {
		logger, buf := newBufferLogger()
		e := echo.New()
		e.Use(middleware.Logging(middleware.LoggingConfig{Logger: logger}))
		e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/x", nil)
		req.Header.Set(middleware.RequestIDHeader, "req-123")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
		assert.Contains(t, buf.String(), `"request_id":"req-123"`)
	})

	t.Run("logs client errors as warnings", func(t *testing.T) {
		logger, buf := newBufferLogger()
		e := echo.New()
		e.Use(middleware.Logging(middleware.LoggingConfig{Logger: logger}))
		e.GET("/x", func(echo.Context) error { return echo.NewHTTPError(http.StatusBadRequest, "bad") })

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

		assert.Contains(t, buf.String(), `"level":"WARN"`)
		assert.Contains(t, buf.String(), `"status":400`)
	})

	t.Run("skips health and metrics paths", func(t *testing.T) {
		logger, buf := newBufferLogger()
		config := middleware.DefaultLoggingConfig()
		config.Logger = logger
		e := echo.New()
		e.Use(middleware.Logging(config))
		e.GET("/health", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		assert.Empty(t, buf.String())
		assert.Empty(t, rec.Header().Get(middleware.RequestIDHeader))
	})
}

func TestRecovery(t *testing.T) {
	logger, buf := newBufferLogger()
	e := echo.New()
	e.Use(middleware.Recovery(logger))
	e.GET("/panic", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
	assert.Contains(t, buf.String(), "panic recovered")
	assert.Contains(t, buf.String(), "boom")
}
