package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is anything that can report its own health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthCheckFunc adapts a function to HealthChecker.
type HealthCheckFunc func(ctx context.Context) error

func (f HealthCheckFunc) HealthCheck(ctx context.Context) error {
	return f(ctx)
}

type HealthHandler struct {
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
	now       func() time.Time
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

func NewHealthHandler(checks map[string]HealthChecker, version string) *HealthHandler {
	return &HealthHandler{
		checks:    checks,
		version:   version,
		startTime: time.Now(),
		now:       time.Now,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	services := make(map[string]string, len(names))
	overallStatus := "healthy"
	for _, name := range names {
		if err := h.checks[name].HealthCheck(c.Request.Context()); err != nil {
			services[name] = "unhealthy: " + err.Error()
			overallStatus = "degraded"
			continue
		}
		services[name] = "healthy"
	}

	statusCode := http.StatusOK
	if overallStatus != "healthy" {
		statusCode = http.StatusServiceUnavailable
	}

	now := h.now()
	c.JSON(statusCode, HealthResponse{
		Status:    overallStatus,
		Timestamp: now,
		Services:  services,
		Version:   h.version,
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
	})
}
