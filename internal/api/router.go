package api

import (
	"github.com/gin-gonic/gin"

	"github.com/xponent/shopcore/internal/api/handler"
	"github.com/xponent/shopcore/internal/api/middleware"
	"github.com/xponent/shopcore/internal/catalog"
	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/logger"
	"github.com/xponent/shopcore/internal/repository"
	"github.com/xponent/shopcore/internal/service"
)

// Dependencies carries the wired services the router needs.
type Dependencies struct {
	Retrieval *service.RetrievalService
	Ingest    *service.IngestService
	Snapshot  *service.SnapshotService
	Products  *repository.ProductRepository
	Jobs      *repository.JobRepository
	Feeds     map[string]catalog.Feed
	Log       *logger.Logger
}

// SetupRouter configures the Gin router with all routes.
// Parameters:
//   - cfg: server configuration (mode, CORS).
//   - deps: wired services and repositories.
// Returns:
//   - *gin.Engine: configured router.
func SetupRouter(cfg *config.ServerConfig, deps *Dependencies) *gin.Engine {
	switch cfg.Mode {
	case "prod", "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Log))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler(deps.Retrieval)
	searchHandler := handler.NewSearchHandler(deps.Retrieval)
	productHandler := handler.NewProductHandler(deps.Products, deps.Retrieval)
	adminHandler := handler.NewAdminHandler(deps.Ingest, deps.Snapshot, deps.Jobs, deps.Feeds)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/search", searchHandler.Search)
		v1.GET("/search", searchHandler.SearchGet)

		v1.GET("/products", productHandler.ListProducts)
		v1.GET("/products/:id", productHandler.GetProduct)
		v1.GET("/categories", productHandler.GetCategories)
		v1.GET("/brands", productHandler.GetBrands)
		v1.GET("/stats", productHandler.GetStats)

		admin := v1.Group("/admin")
		{
			admin.POST("/products", adminHandler.UpsertProduct)
			admin.DELETE("/products/:id", adminHandler.DeleteProduct)
			admin.POST("/ingest", adminHandler.TriggerIngest)
			admin.POST("/reembed", adminHandler.Reembed)
			admin.POST("/snapshot", adminHandler.TriggerSnapshot)
			admin.GET("/jobs", adminHandler.ListJobs)
		}
	}

	return r
}
