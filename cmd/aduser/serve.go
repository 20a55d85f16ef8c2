package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	userapp "github.com/lllypuk/aduser/internal/application/user"
	"github.com/lllypuk/aduser/internal/config"
	httphandler "github.com/lllypuk/aduser/internal/handler/http"
	"github.com/lllypuk/aduser/internal/infrastructure/graph"
	"github.com/lllypuk/aduser/internal/infrastructure/httpserver"
	"github.com/lllypuk/aduser/internal/middleware"
)

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve user updates over HTTP",
		Long: `Serve user updates over HTTP.

PATCH /api/v1/users/{identity} applies a sparse update. The request is the
confirmation; ?what_if=true only describes the change. /health, /ready and
/metrics are served without authentication.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) runServe(ctx context.Context) error {
	container, err := NewContainer(ctx, a.cfg, WithLogger(a.logger))
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := container.Close(); closeErr != nil {
			a.logger.Warn("failed to close container", slog.String("error", closeErr.Error()))
		}
	}()
	container.RegisterRuntimeCollectors()

	server, cleanup, err := buildServer(container)
	if err != nil {
		return err
	}
	defer cleanup()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err = <-errCh:
		return err
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	}

	return server.Shutdown(context.WithoutCancel(ctx))
}

// buildServer wires the HTTP surface around the container. The returned
// cleanup stops background token key refresh.
func buildServer(c *Container) (*httpserver.Server, func(), error) {
	cfg := c.Config

	server := httpserver.NewServer(cfg.Server, c.Logger)

	routerConfig := httpserver.DefaultRouterConfig()
	routerConfig.Logger = c.Logger
	routerConfig.LoggingConfig.Logger = c.Logger

	cleanup := func() {}
	requiredRole := ""

	if cfg.Auth.Enabled {
		validator, err := graph.NewTokenValidator(graph.TokenValidatorConfig{
			JWKSURL:         cfg.Auth.JWKSURL,
			Issuer:          cfg.Auth.Issuer,
			Audience:        cfg.Auth.Audience,
			TenantID:        cfg.Auth.TenantID,
			Leeway:          cfg.Auth.Leeway,
			RefreshInterval: cfg.Auth.RefreshInterval,
			Logger:          c.Logger,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create token validator: %w", err)
		}
		cleanup = func() { _ = validator.Close() }

		authConfig := middleware.DefaultAuthConfig()
		authConfig.Logger = c.Logger
		authConfig.Validator = validator
		routerConfig.AuthMiddleware = middleware.Auth(authConfig)
		requiredRole = cfg.Auth.RequiredRole
	}

	if cfg.Server.RateLimit.Enabled {
		routerConfig.RateLimitMiddleware = middleware.RateLimit(middleware.RateLimitConfig{
			Logger: c.Logger,
			Store:  rateLimitStore(c),
			Limit:  cfg.Server.RateLimit.Limit,
			Window: cfg.Server.RateLimit.Window,
		})
	}

	router := httpserver.NewRouter(server.Echo(), routerConfig)
	httpserver.RegisterHealthEndpoints(server.Echo(), healthChecker(c))
	server.Metrics("/metrics", c.Registry)

	router.RegisterAll(
		httphandler.NewUserHandler(c.UpdateUseCase(userapp.AutoApprove), requiredRole),
	)
	router.PrintRoutes()

	return server, cleanup, nil
}

func rateLimitStore(c *Container) middleware.RateLimitStore {
	if strings.EqualFold(c.Config.Server.RateLimit.Store, config.StoreRedis) && c.Redis != nil {
		return middleware.NewRedisRateLimitStore(c.Redis, c.Config.Redis.KeyPrefix+"ratelimit:")
	}
	return middleware.NewMemoryRateLimitStore()
}

// healthChecker pings the backing services the container connected to.
func healthChecker(c *Container) *httpserver.DependencyChecker {
	var deps []httpserver.Dependency

	if c.Redis != nil {
		deps = append(deps, httpserver.Dependency{
			Name: "redis",
			Check: func(ctx context.Context) error {
				return c.Redis.Ping(ctx).Err()
			},
		})
	}
	if c.MongoDB != nil {
		deps = append(deps, httpserver.Dependency{
			Name: "mongodb",
			Check: func(ctx context.Context) error {
				return c.MongoDB.Ping(ctx, nil)
			},
		})
	}

	return httpserver.NewDependencyChecker(httpserver.DefaultCheckTimeout, deps...)
}
