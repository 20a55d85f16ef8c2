// Package middleware holds the echo middleware of the HTTP surface.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/lllypuk/aduser/internal/domain/errs"
	"github.com/lllypuk/aduser/internal/infrastructure/graph"
)

// callerKey holds the *graph.CallerClaims of an authenticated request.
const callerKey = "caller"

// Auth failures.
var (
	ErrNoBearerToken = fmt.Errorf("%w: bearer token required", errs.ErrUnauthorized)
	ErrMissingRole   = fmt.Errorf("%w: caller lacks the role to update users", errs.ErrForbidden)
)

// CallerValidator turns a bearer token into the caller it identifies.
type CallerValidator interface {
	Validate(ctx context.Context, token string) (*graph.CallerClaims, error)
}

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	Logger    *slog.Logger
	Validator CallerValidator

	// PublicPaths are served without a token.
	PublicPaths []string
}

// DefaultAuthConfig leaves health checks and metrics open.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		Logger:      slog.Default(),
		PublicPaths: []string{"/health", "/ready", "/metrics"},
	}
}

// Auth requires a valid bearer token outside PublicPaths and stores the
// caller on the context.
func Auth(config AuthConfig) echo.MiddlewareFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Validator == nil {
		logger.Error("auth enabled without a token validator, every API request will be refused")
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			path := c.Request().URL.Path
			if slices.Contains(config.PublicPaths, path) {
				return next(c)
			}

			token, ok := bearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
			if !ok || config.Validator == nil {
				return deny(c, ErrNoBearerToken)
			}

			caller, err := config.Validator.Validate(c.Request().Context(), token)
			if err != nil {
				logger.Warn("caller token rejected",
					slog.String("error", err.Error()),
					slog.String("path", path),
					slog.String("remote_ip", c.RealIP()),
				)
				return deny(c, fmt.Errorf("%w: %w", errs.ErrUnauthorized, err))
			}

			SetCaller(c, caller)
			return next(c)
		}
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func deny(c echo.Context, err error) error {
	switch {
	case errors.Is(err, errs.ErrForbidden):
		return c.JSON(http.StatusForbidden, errorBody("FORBIDDEN", "caller may not update directory users"))
	case errors.Is(err, graph.ErrTokenExpired):
		return c.JSON(http.StatusUnauthorized, errorBody("TOKEN_EXPIRED", "access token has expired"))
	case errors.Is(err, graph.ErrForeignTenant):
		return c.JSON(http.StatusUnauthorized, errorBody("FOREIGN_TENANT", "access token belongs to another tenant"))
	default:
		return c.JSON(http.StatusUnauthorized, errorBody("UNAUTHORIZED", "a valid bearer token is required"))
	}
}

// SetCaller stores caller on the request context.
func SetCaller(c echo.Context, caller *graph.CallerClaims) {
	c.Set(callerKey, caller)
}

// Caller returns the authenticated caller, or nil when the API runs without
// authentication.
func Caller(c echo.Context) *graph.CallerClaims {
	caller, _ := c.Get(callerKey).(*graph.CallerClaims)
	return caller
}

// Actor names the caller for logs and audit entries.
func Actor(c echo.Context) string {
	if caller := Caller(c); caller != nil {
		return caller.Actor()
	}
	return ""
}

// RequireRole refuses callers without the app role. An empty role allows
// everyone.
func RequireRole(role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if role == "" {
			return next
		}
		return func(c echo.Context) error {
			if caller := Caller(c); caller == nil || !caller.HasRole(role) {
				return deny(c, ErrMissingRole)
			}
			return next(c)
		}
	}
}
