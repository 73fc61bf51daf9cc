// Package handlers provides HTTP handlers for the API.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/myworkflows/chat-service/internal/api/dto"
	"github.com/myworkflows/chat-service/internal/api/middleware"
	domainerrors "github.com/myworkflows/chat-service/internal/domain/errors"
)

// Pinger is a dependency that can report its reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	components []component
}

type component struct {
	name   string
	pinger Pinger
}

// NewHealthHandler creates a new HealthHandler. Nil dependencies are reported as disabled.
func NewHealthHandler(cacheClient, docDBClient, database Pinger) *HealthHandler {
	return &HealthHandler{
		components: []component{
			{name: "cache", pinger: cacheClient},
			{name: "docdb", pinger: docDBClient},
			{name: "database", pinger: database},
		},
	}
}

// Health handles the /health endpoint.
// @Summary Health check
// @Description Returns the overall health status and component statuses
// @Tags Health
// @Produce json
// @Success 200 {object} dto.HealthResponse "Service healthy"
// @Failure 503 {object} dto.HealthResponse "Service unhealthy"
// @Router /api/v1/health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	components := make(map[string]string, len(h.components))
	healthy := true

	for _, comp := range h.components {
		switch {
		case comp.pinger == nil:
			components[comp.name] = "disabled"
		case comp.pinger.Ping(c.Request.Context()) != nil:
			components[comp.name] = "unhealthy"
			healthy = false
		default:
			components[comp.name] = "healthy"
		}
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !healthy {
		status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, dto.HealthResponse{
		Status:     status,
		Components: components,
	})
}

// Ready handles the /ready endpoint.
// @Summary Readiness check
// @Description Returns 200 if the service is ready to accept traffic
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service ready"
// @Failure 503 {object} dto.ErrorResponse "Service not ready"
// @Router /api/v1/ready [get]
func (h *HealthHandler) Ready(c *gin.Context) {
	for _, comp := range h.components {
		if comp.pinger == nil {
			continue
		}
		if err := comp.pinger.Ping(c.Request.Context()); err != nil {
			middleware.HandleError(c, domainerrors.NewServiceUnavailableError(comp.name, err))
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
	})
}

// Live handles the /live endpoint.
// @Summary Liveness check
// @Description Returns 200 if the service is alive
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]string "Service alive"
// @Router /api/v1/live [get]
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
