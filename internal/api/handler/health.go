package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xponent/shopcore/internal/service"
)

// HealthHandler reports service readiness. The service is healthy only when
// both the vector index and the embedding provider can serve; otherwise it
// reports degraded, since constraint-only search still works.
type HealthHandler struct {
	retrieval *service.RetrievalService
	startedAt time.Time
}

// NewHealthHandler creates a new health handler.
// Parameters:
//   - retrieval: retrieval service whose readiness is reported.
// Returns:
//   - *HealthHandler: initialized handler.
func NewHealthHandler(retrieval *service.RetrievalService) *HealthHandler {
	return &HealthHandler{
		retrieval: retrieval,
		startedAt: time.Now(),
	}
}

// Health handles GET /health.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	code := http.StatusOK
	if !h.retrieval.Ready() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status":         status,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"indexed":        h.retrieval.IndexSize(),
	})
}
