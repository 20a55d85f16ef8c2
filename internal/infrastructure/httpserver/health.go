package httpserver

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Health status values shared by all health endpoints.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// DefaultCheckTimeout bounds a single dependency ping.
const DefaultCheckTimeout = 2 * time.Second

// ComponentStatus represents the health status of a single component.
type ComponentStatus struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the response for health endpoints.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components []ComponentStatus `json:"components,omitempty"`
}

// HealthChecker reports the state of the services the server depends on.
type HealthChecker interface {
	// GetHealthStatus returns the status of every component. The request
	// context bounds the checks.
	GetHealthStatus(ctx context.Context) []ComponentStatus
}

// Dependency is a named dependency ping, e.g. a redis or mongodb round trip.
type Dependency struct {
	Name  string
	Check func(ctx context.Context) error
}

// DependencyChecker checks dependencies concurrently, each under its own timeout.
type DependencyChecker struct {
	deps    []Dependency
	timeout time.Duration
}

// NewDependencyChecker creates a HealthChecker from deps.
func NewDependencyChecker(timeout time.Duration, deps ...Dependency) *DependencyChecker {
	if timeout <= 0 {
		timeout = DefaultCheckTimeout
	}
	return &DependencyChecker{deps: deps, timeout: timeout}
}

// GetHealthStatus implements HealthChecker.
func (p *DependencyChecker) GetHealthStatus(ctx context.Context) []ComponentStatus {
	statuses := make([]ComponentStatus, len(p.deps))

	var wg sync.WaitGroup
	for i, dep := range p.deps {
		wg.Add(1)
		go func() {
			defer wg.Done()

			checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
			defer cancel()

			status := ComponentStatus{Name: dep.Name, Status: StatusHealthy}
			if err := dep.Check(checkCtx); err != nil {
				status.Status = StatusUnhealthy
				status.Message = err.Error()
			}
			statuses[i] = status
		}()
	}
	wg.Wait()

	return statuses
}

// RegisterHealthEndpoints registers the health endpoints:
//   - GET /health - liveness, always 200 while the process runs
//   - GET /ready - 200 when every component is healthy, 503 otherwise
func RegisterHealthEndpoints(e *echo.Echo, checker HealthChecker) {
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, HealthResponse{Status: StatusHealthy})
	})

	e.GET("/ready", func(c echo.Context) error {
		if checker == nil {
			return c.JSON(http.StatusOK, HealthResponse{Status: StatusReady})
		}

		components := checker.GetHealthStatus(c.Request().Context())
		for _, comp := range components {
			if comp.Status != StatusHealthy {
				return c.JSON(http.StatusServiceUnavailable, HealthResponse{
					Status:     StatusNotReady,
					Components: components,
				})
			}
		}

		return c.JSON(http.StatusOK, HealthResponse{
			Status:     StatusReady,
			Components: components,
		})
	})
}
