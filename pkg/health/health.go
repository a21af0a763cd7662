// Package health serves liveness and readiness endpoints over the service's dependencies.
package health

import (
	"context"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Status represents the health status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const checkTimeout = 5 * time.Second

// CheckFunc pings one dependency.
type CheckFunc func(ctx context.Context) error

// CheckResult represents the result of a health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Response represents a health check response
type Response struct {
	Status     Status                 `json:"status"`
	Version    string                 `json:"version,omitempty"`
	Uptime     string                 `json:"uptime,omitempty"`
	Checks     map[string]CheckResult `json:"checks,omitempty"`
	ReportedAt time.Time              `json:"reported_at"`
}

type check struct {
	name     string
	fn       CheckFunc
	optional bool
}

// Checker runs the registered dependency checks. A failing required check makes the
// service unhealthy; a failing optional check only degrades it.
type Checker struct {
	checks    []check
	startTime time.Time
	version   string
	ready     atomic.Bool
}

// NewChecker creates a new health checker
func NewChecker(version string) *Checker {
	return &Checker{
		startTime: time.Now(),
		version:   version,
	}
}

// Require registers a check that must pass for the service to be ready.
func (c *Checker) Require(name string, fn CheckFunc) {
	c.checks = append(c.checks, check{name: name, fn: fn})
}

// Optional registers a check whose failure only degrades the service.
func (c *Checker) Optional(name string, fn CheckFunc) {
	c.checks = append(c.checks, check{name: name, fn: fn, optional: true})
}

// SetReady marks the service as ready to receive traffic
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

// Live reports that the process is serving.
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, Response{
		Status:     StatusHealthy,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		ReportedAt: time.Now(),
	})
}

// Ready runs every check once startup has finished.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, Response{
			Status:     StatusUnhealthy,
			Version:    c.version,
			ReportedAt: time.Now(),
			Checks: map[string]CheckResult{
				"startup": {Status: StatusUnhealthy, Message: "service is still starting up"},
			},
		})
	}

	resp := c.Run(ctx.Request().Context())
	statusCode := http.StatusOK
	if resp.Status == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}
	return ctx.JSON(statusCode, resp)
}

// Run executes every check and aggregates the result.
func (c *Checker) Run(ctx context.Context) Response {
	results := make(map[string]CheckResult, len(c.checks))
	overall := StatusHealthy

	for _, chk := range c.checks {
		result := runCheck(ctx, chk.fn)
		if result.Status == StatusUnhealthy && chk.optional {
			result.Status = StatusDegraded
		}
		results[chk.name] = result

		switch {
		case result.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case result.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Response{
		Status:     overall,
		Version:    c.version,
		Uptime:     time.Since(c.startTime).Round(time.Second).String(),
		Checks:     results,
		ReportedAt: time.Now(),
	}
}

func runCheck(ctx context.Context, fn CheckFunc) CheckResult {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := fn(ctx); err != nil {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: time.Since(start).String(),
		}
	}
	return CheckResult{
		Status:  StatusHealthy,
		Latency: time.Since(start).String(),
	}
}

// Names lists the registered checks.
func (c *Checker) Names() []string {
	names := make([]string, 0, len(c.checks))
	for _, chk := range c.checks {
		names = append(names, chk.name)
	}
	sort.Strings(names)
	return names
}

// RegisterRoutes registers the liveness and readiness endpoints.
func (c *Checker) RegisterRoutes(e *echo.Echo) {
	health := e.Group("/health")
	health.GET("/live", c.Live)
	health.GET("/ready", c.Ready)
}
