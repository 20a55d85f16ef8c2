package httpserver

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/aduser/internal/middleware"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Logger *slog.Logger

	// AuthMiddleware guards the API group. Nil leaves the API open.
	AuthMiddleware echo.MiddlewareFunc

	// RateLimitMiddleware runs after authentication so callers are keyed by
	// username. Nil disables rate limiting.
	RateLimitMiddleware echo.MiddlewareFunc

	LoggingConfig middleware.LoggingConfig

	// APIPrefix is the prefix for all API routes. Default is "/api/v1".
	APIPrefix string
}

// DefaultRouterConfig returns a RouterConfig with sensible defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Logger:        slog.Default(),
		LoggingConfig: middleware.DefaultLoggingConfig(),
		APIPrefix:     "/api/v1",
	}
}

// Router wires global middleware and the API route group.
type Router struct {
	echo   *echo.Echo
	config RouterConfig
	logger *slog.Logger

	api *echo.Group
}

// NewRouter creates a new router with the given configuration.
func NewRouter(e *echo.Echo, config RouterConfig) *Router {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LoggingConfig.Logger == nil {
		config.LoggingConfig.Logger = config.Logger
	}
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/v1"
	}

	r := &Router{
		echo:   e,
		config: config,
		logger: config.Logger,
	}

	// recovery first so it catches panics from every other middleware
	e.Use(middleware.Recovery(config.Logger))
	e.Use(middleware.Logging(config.LoggingConfig))

	var chain []echo.MiddlewareFunc
	if config.AuthMiddleware != nil {
		chain = append(chain, config.AuthMiddleware)
	} else {
		r.logger.Warn("no auth middleware configured, API routes are public")
	}
	if config.RateLimitMiddleware != nil {
		chain = append(chain, config.RateLimitMiddleware)
	}
	r.api = e.Group(config.APIPrefix, chain...)

	return r
}

// Echo returns the underlying Echo instance.
func (r *Router) Echo() *echo.Echo {
	return r.echo
}

// API returns the API route group.
func (r *Router) API() *echo.Group {
	return r.api
}

// RouteRegistrar registers routes on a router.
type RouteRegistrar interface {
	RegisterRoutes(r *Router)
}

// RegisterAll registers all route registrars with the router.
func (r *Router) RegisterAll(registrars ...RouteRegistrar) {
	for _, registrar := range registrars {
		registrar.RegisterRoutes(r)
	}
}

// PrintRoutes logs all registered routes.
func (r *Router) PrintRoutes() {
	for _, route := range r.echo.Routes() {
		r.logger.Debug("registered route",
			slog.String("method", route.Method),
			slog.String("path", route.Path),
		)
	}
}
