package middleware

import (
	"errors"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

const requestIDKey = "request_id"

// LoggingConfig holds configuration for the logging middleware.
type LoggingConfig struct {
	Logger *slog.Logger

	// QuietPaths are served without an access log line.
	QuietPaths []string
}

// DefaultLoggingConfig keeps health checks and metric scrapes out of the log.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Logger:     slog.Default(),
		QuietPaths: []string{"/health", "/ready", "/metrics"},
	}
}

// Logging writes one line per request, tagged with a request id and the
// acting caller. Bodies are never logged since updates may carry a password.
func Logging(config LoggingConfig) echo.MiddlewareFunc {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if slices.Contains(config.QuietPaths, req.URL.Path) {
				return next(c)
			}

			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			c.Response().Header().Set(RequestIDHeader, id)
			c.Set(requestIDKey, id)

			started := time.Now()
			err := next(c)

			line := accessLine{
				status:  responseStatus(c, err),
				attrs:   make([]slog.Attr, 0, 8),
				elapsed: time.Since(started),
			}
			line.add(
				slog.String("request_id", id),
				slog.String("method", req.Method),
				slog.String("route", c.Path()),
				slog.String("path", req.URL.Path),
				slog.String("remote_ip", c.RealIP()),
			)
			if actor := Actor(c); actor != "" {
				line.add(slog.String("actor", actor))
			}
			if err != nil {
				line.add(slog.String("error", err.Error()))
			}
			line.write(c, logger)

			return err
		}
	}
}

type accessLine struct {
	status  int
	attrs   []slog.Attr
	elapsed time.Duration
}

func (l *accessLine) add(attrs ...slog.Attr) {
	l.attrs = append(l.attrs, attrs...)
}

func (l *accessLine) write(c echo.Context, logger *slog.Logger) {
	level := slog.LevelInfo
	switch {
	case l.status >= 500:
		level = slog.LevelError
	case l.status >= 400:
		level = slog.LevelWarn
	}

	l.add(slog.Int("status", l.status), slog.Duration("latency", l.elapsed))
	logger.LogAttrs(c.Request().Context(), level, "HTTP request", l.attrs...)
}

// responseStatus prefers the code of an echo.HTTPError that has not been
// written yet.
func responseStatus(c echo.Context, err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	return c.Response().Status
}

// GetRequestID returns the id assigned by Logging.
func GetRequestID(c echo.Context) string {
	id, _ := c.Get(requestIDKey).(string)
	return id
}
