package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	pkgredis "github.com/nqd2/bluemoon-admin-gateway/pkg/redis"
)

// BackendChecker reports whether the condo backend is reachable.
type BackendChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	backend BackendChecker
	redis   *pkgredis.Client
}

// NewHealthHandler creates a new HealthHandler. Redis is optional.
func NewHealthHandler(backend BackendChecker, redis *pkgredis.Client) *HealthHandler {
	return &HealthHandler{backend: backend, redis: redis}
}

// Health is the liveness probe
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready is the readiness probe: the gateway is ready when the condo backend
// answers and, when configured, Redis does too
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	checks := gin.H{}
	ready := true

	if h.backend != nil {
		if err := h.backend.HealthCheck(ctx); err != nil {
			checks["backend"] = "unreachable"
			ready = false
		} else {
			checks["backend"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.HealthCheck(ctx); err != nil {
			checks["redis"] = "unreachable"
			ready = false
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"ready": ready, "checks": checks})
}
