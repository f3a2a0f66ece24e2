package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xponent/shopcore/internal/catalog"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/repository"
	"github.com/xponent/shopcore/internal/service"
)

// AdminHandler handles catalog mutation and maintenance endpoints.
type AdminHandler struct {
	ingest   *service.IngestService
	snapshot *service.SnapshotService
	jobs     *repository.JobRepository
	feeds    map[string]catalog.Feed
}

// NewAdminHandler creates a new admin handler.
// Parameters:
//   - ingest: ingest service.
//   - snapshot: snapshot service; nil disables snapshot endpoints.
//   - jobs: job repository for run history.
//   - feeds: registered feeds keyed by feed ID.
// Returns:
//   - *AdminHandler: initialized handler.
func NewAdminHandler(
	ingest *service.IngestService,
	snapshot *service.SnapshotService,
	jobs *repository.JobRepository,
	feeds map[string]catalog.Feed,
) *AdminHandler {
	return &AdminHandler{
		ingest:   ingest,
		snapshot: snapshot,
		jobs:     jobs,
		feeds:    feeds,
	}
}

// UpsertProduct handles POST /api/v1/admin/products.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) UpsertProduct(c *gin.Context) {
	var product domain.Product
	if err := c.ShouldBindJSON(&product); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid product: " + err.Error(),
		})
		return
	}
	if product.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Product name is required",
		})
		return
	}

	if err := h.ingest.UpsertProduct(c.Request.Context(), &product); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Ingest failed: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, product)
}

// DeleteProduct handles DELETE /api/v1/admin/products/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) DeleteProduct(c *gin.Context) {
	if err := h.ingest.DeleteProduct(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Delete failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// TriggerIngest handles POST /api/v1/admin/ingest.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerIngest(c *gin.Context) {
	feedID := c.DefaultQuery("feed", catalog.FileFeedID)
	feed, ok := h.feeds[feedID]
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown feed: " + feedID,
		})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}

	job, err := h.ingest.SyncFeed(c.Request.Context(), feed, limit)
	if err != nil {
		status := http.StatusInternalServerError
		payload := gin.H{"error": "Feed sync failed: " + err.Error()}
		if job != nil {
			payload["job"] = job
		}
		c.JSON(status, payload)
		return
	}

	c.JSON(http.StatusOK, job)
}

// Reembed handles POST /api/v1/admin/reembed, retrying products whose
// embedding previously failed.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) Reembed(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	done, err := h.ingest.ReembedPending(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Re-embed failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"reembedded": done})
}

// ListJobs handles GET /api/v1/admin/jobs.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) ListJobs(c *gin.Context) {
	jobs, err := h.jobs.ListRecent(c.Request.Context(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// TriggerSnapshot handles POST /api/v1/admin/snapshot.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *AdminHandler) TriggerSnapshot(c *gin.Context) {
	if h.snapshot == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "Snapshot archival is not configured",
		})
		return
	}

	key, err := h.snapshot.Archive(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Snapshot failed: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
