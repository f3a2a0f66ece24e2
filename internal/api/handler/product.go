package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xponent/shopcore/internal/repository"
	"github.com/xponent/shopcore/internal/service"
)

// ProductHandler handles catalog browsing endpoints.
type ProductHandler struct {
	products  *repository.ProductRepository
	retrieval *service.RetrievalService
}

// NewProductHandler creates a new product handler.
// Parameters:
//   - products: catalog repository.
//   - retrieval: retrieval service, used for index statistics.
// Returns:
//   - *ProductHandler: initialized handler.
func NewProductHandler(products *repository.ProductRepository, retrieval *service.RetrievalService) *ProductHandler {
	return &ProductHandler{
		products:  products,
		retrieval: retrieval,
	}
}

// ListProducts handles GET /api/v1/products.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProductHandler) ListProducts(c *gin.Context) {
	limit := 20
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	offset := 0
	if raw := c.Query("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	products, err := h.products.ListByCategory(c.Request.Context(), c.Query("category"), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list products: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": products,
		"total":    len(products),
	})
}

// GetProduct handles GET /api/v1/products/:id.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProductHandler) GetProduct(c *gin.Context) {
	product, err := h.products.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get product: " + err.Error(),
		})
		return
	}
	if product == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Product not found",
		})
		return
	}
	c.JSON(http.StatusOK, product)
}

// GetCategories handles GET /api/v1/categories.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProductHandler) GetCategories(c *gin.Context) {
	categories, err := h.products.GetCategories(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get categories: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"categories": categories,
		"total":      len(categories),
	})
}

// GetBrands handles GET /api/v1/brands.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProductHandler) GetBrands(c *gin.Context) {
	brands, err := h.products.GetBrands(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get brands: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"brands": brands,
		"total":  len(brands),
	})
}

// GetStats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *ProductHandler) GetStats(c *gin.Context) {
	counts, err := h.products.CountByStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get stats: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"products": counts,
		"indexed":  h.retrieval.IndexSize(),
	})
}
