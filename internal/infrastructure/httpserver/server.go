// Package httpserver hosts the HTTP surface of the update operation.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lllypuk/aduser/internal/config"
)

// maxHeaderBytes bounds request headers; bearer tokens are the largest.
const maxHeaderBytes = 64 << 10

// Server is the echo instance serving user updates, health checks and metrics.
type Server struct {
	echo   *echo.Echo
	config config.ServerConfig
	logger *slog.Logger
}

// NewServer applies the server section of the configuration to a fresh echo
// instance. Zero timeouts fall back to the configuration defaults.
func NewServer(cfg config.ServerConfig, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = config.DefaultShutdownTimeout
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout
	e.Server.MaxHeaderBytes = maxHeaderBytes

	// update bodies are a handful of attributes and a password
	if cfg.BodyLimit != "" {
		e.Use(echomw.BodyLimit(cfg.BodyLimit))
	}

	return &Server{echo: e, config: cfg, logger: logger}
}

// Echo exposes the instance for routing.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// Metrics serves gatherer in the Prometheus text format at path.
func (s *Server) Metrics(path string, gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.echo.GET(path, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// Start listens on the configured address until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("serving user update API",
		slog.String("address", s.Address()),
		slog.String("body_limit", s.config.BodyLimit),
	)

	err := s.echo.Start(s.Address())
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown lets in-flight updates finish within the shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("user update API stopped")
	return nil
}

// Address is the host:port the server listens on.
func (s *Server) Address() string {
	return s.config.Address()
}
