package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xponent/shopcore/internal/api"
	"github.com/xponent/shopcore/internal/catalog"
	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/index"
	"github.com/xponent/shopcore/internal/logger"
	"github.com/xponent/shopcore/internal/repository"
	"github.com/xponent/shopcore/internal/service"
	"github.com/xponent/shopcore/internal/storage"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLog := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLog)
	defer logger.Sync()

	db, err := repository.NewDB(&cfg.Database)
	if err != nil {
		appLog.Fatalf("Failed to initialize database: %v", err)
	}

	productRepo := repository.NewProductRepository(db)
	jobRepo := repository.NewJobRepository(db)
	feedRepo := repository.NewFeedRepository(db)

	ctx := context.Background()
	store, err := index.NewStore(ctx, &cfg.Index)
	if err != nil {
		appLog.Fatalf("Failed to open vector index: %v", err)
	}
	defer store.Close()

	embedder, err := service.NewHTTPEmbeddingProvider(&cfg.Embedding)
	if err != nil {
		appLog.Fatalf("Failed to create embedding provider: %v", err)
	}

	understanding := service.NewQueryUnderstanding(&cfg.Query)
	ranker := service.NewRanker(&cfg.Ranking)
	retrieval := service.NewRetrievalService(&cfg.Search, understanding, embedder, store, productRepo, ranker)
	ingest := service.NewIngestService(&cfg.Ingest, embedder, store, productRepo, jobRepo, feedRepo)

	var snapshot *service.SnapshotService
	if cfg.Snapshot.Enabled {
		snapshotter, ok := store.(index.Snapshotter)
		if !ok {
			appLog.Warnf("Snapshot archival configured but backend %q cannot snapshot", cfg.Index.Backend)
		} else {
			archive, err := storage.NewS3Storage(&storage.S3Config{
				Endpoint:  cfg.Snapshot.Endpoint,
				AccessKey: cfg.Snapshot.AccessKey,
				SecretKey: cfg.Snapshot.SecretKey,
				UseSSL:    cfg.Snapshot.UseSSL,
				Bucket:    cfg.Snapshot.Bucket,
				Region:    cfg.Snapshot.Region,
			})
			if err != nil {
				appLog.Fatalf("Failed to initialize snapshot storage: %v", err)
			}
			if err := archive.EnsureBucket(ctx); err != nil {
				appLog.Fatalf("Failed to ensure snapshot bucket: %v", err)
			}
			snapshot = service.NewSnapshotService(snapshotter, archive, cfg.Snapshot.Prefix)
		}
	}

	feeds := map[string]catalog.Feed{}
	if cfg.Feeds.File.Enabled {
		feeds[catalog.FileFeedID] = catalog.NewFileFeed(cfg.Feeds.File.Path)
	}

	router := api.SetupRouter(&cfg.Server, &api.Dependencies{
		Retrieval: retrieval,
		Ingest:    ingest,
		Snapshot:  snapshot,
		Products:  productRepo,
		Jobs:      jobRepo,
		Feeds:     feeds,
		Log:       appLog,
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLog.Infof("Starting API server on port %d (%s mode)", cfg.Server.Port, cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatalf("Server forced to shutdown: %v", err)
	}

	appLog.Info("Server exited")
}
