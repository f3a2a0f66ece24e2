package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/service"
)

// SearchRequest is the body of POST /api/v1/search. TimeoutMs caps the
// whole retrieval; expiry maps to 504.
type SearchRequest struct {
	Query     string `json:"query" binding:"required"`
	TopK      int    `json:"top_k"`
	TimeoutMs int    `json:"timeout_ms"`
}

// SearchHandler handles search endpoints.
type SearchHandler struct {
	retrieval *service.RetrievalService
}

// NewSearchHandler creates a new search handler.
// Parameters:
//   - retrieval: retrieval orchestrator.
// Returns:
//   - *SearchHandler: initialized handler.
func NewSearchHandler(retrieval *service.RetrievalService) *SearchHandler {
	return &SearchHandler{retrieval: retrieval}
}

// Search handles POST /api/v1/search.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) Search(c *gin.Context) {
	var req SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	h.run(c, req.Query, req.TopK, req.TimeoutMs)
}

// SearchGet handles GET /api/v1/search for simple queries.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *SearchHandler) SearchGet(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query parameter 'q' is required",
		})
		return
	}

	topK := 0
	if raw := c.Query("top_k"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			topK = parsed
		}
	}
	timeoutMs := 0
	if raw := c.Query("timeout_ms"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			timeoutMs = parsed
		}
	}
	h.run(c, query, topK, timeoutMs)
}

func (h *SearchHandler) run(c *gin.Context, query string, topK, timeoutMs int) {
	if strings.TrimSpace(query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Query must not be empty",
		})
		return
	}

	ctx := c.Request.Context()
	if timeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		defer cancel()
	}

	result, err := h.retrieval.Search(ctx, query, topK)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrRetrievalTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{
				"error": "Search timed out",
			})
		case errors.Is(err, domain.ErrIndexUnavailable):
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Search backend unavailable",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Search failed: " + err.Error(),
			})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}
