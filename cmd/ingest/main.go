package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/xponent/shopcore/internal/catalog"
	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/index"
	"github.com/xponent/shopcore/internal/logger"
	"github.com/xponent/shopcore/internal/repository"
	"github.com/xponent/shopcore/internal/service"
)

func main() {
	var (
		configPath = flag.String("config", os.Getenv("CONFIG_PATH"), "config file path")
		feedID     = flag.String("feed", catalog.FileFeedID, "feed to sync")
		filePath   = flag.String("file", "", "override catalog file path")
		limit      = flag.Int("limit", 0, "maximum products to ingest (0 = all)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := index.NewStore(ctx, &cfg.Index)
	if err != nil {
		appLog.Fatalf("Failed to open vector index: %v", err)
	}
	defer store.Close()

	embedder, err := service.NewHTTPEmbeddingProvider(&cfg.Embedding)
	if err != nil {
		appLog.Fatalf("Failed to create embedding provider: %v", err)
	}

	ingest := service.NewIngestService(
		&cfg.Ingest,
		embedder,
		store,
		repository.NewProductRepository(db),
		repository.NewJobRepository(db),
		repository.NewFeedRepository(db),
	)

	var feed catalog.Feed
	switch *feedID {
	case catalog.FileFeedID:
		path := cfg.Feeds.File.Path
		if *filePath != "" {
			path = *filePath
		}
		feed = catalog.NewFileFeed(path)
	default:
		appLog.Fatalf("Unknown feed: %s", *feedID)
	}

	job, err := ingest.SyncFeed(ctx, feed, *limit)
	if err != nil {
		appLog.Fatalf("Feed sync failed: %v", err)
	}

	appLog.Infof("Feed sync %s: %d processed, %d failed, %d skipped of %d",
		job.Status, job.ProcessedItems, job.FailedItems, job.SkippedItems, job.TotalItems)
}
