package httpserver_test

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/aduser/internal/config"
	"github.com/lllypuk/aduser/internal/infrastructure/httpserver"
)

func TestNewServer(t *testing.T) {
	tests := []struct {
		name   string
		config config.ServerConfig
		logger *slog.Logger
	}{
		{
			name:   "defaults and nil logger",
			config: config.DefaultConfig().Server,
		},
		{
			name: "custom config and logger",
			config: config.ServerConfig{
				Host:         "127.0.0.1",
				Port:         3000,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
			},
			logger: slog.Default(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httpserver.NewServer(tt.config, tt.logger)

			require.NotNil(t, server)
			e := server.Echo()
			require.NotNil(t, e)
			assert.True(t, e.HideBanner)
			assert.True(t, e.HidePort)
			assert.Equal(t, tt.config.ReadTimeout, e.Server.ReadTimeout)
		})
	}
}

func TestServer_Address(t *testing.T) {
	server := httpserver.NewServer(config.ServerConfig{Host: "127.0.0.1", Port: 9090}, nil)

	assert.Equal(t, "127.0.0.1:9090", server.Address())
}

func TestServer_BodyLimit(t *testing.T) {
	cfg := config.DefaultConfig().Server
	cfg.BodyLimit = "1K"
	server := httpserver.NewServer(cfg, nil)
	server.Echo().PATCH("/x", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	t.Run("small body passes", func(t *testing.T) {
		rec := httptest.NewRecorder()
		server.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/x", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("large body rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		body := strings.NewReader(strings.Repeat("a", 4096))
		server.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/x", body))

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestServer_Metrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "aduser_test_total",
		Help: "test counter",
	})
	registry.MustRegister(counter)
	counter.Inc()

	server := httpserver.NewServer(config.DefaultConfig().Server, nil)
	server.Metrics("/metrics", registry)

	rec := httptest.NewRecorder()
	server.Echo().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "aduser_test_total 1")
}

func TestServer_StartAndShutdown(t *testing.T) {
	server := httpserver.NewServer(config.ServerConfig{
		Host:            "127.0.0.1",
		Port:            0,
		ShutdownTimeout: time.Second,
	}, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	require.Eventually(t, func() bool {
		return server.Echo().ListenerAddr() != nil
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, server.Shutdown(context.Background()))
	require.NoError(t, <-errCh)
}
