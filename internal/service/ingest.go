package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/xponent/shopcore/internal/catalog"
	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/index"
	"github.com/xponent/shopcore/internal/logger"
)

// CatalogWriter is the catalog surface the ingest pipeline writes through.
// The product repository satisfies it.
type CatalogWriter interface {
	Upsert(ctx context.Context, product *domain.Product) error
	UpdateStatus(ctx context.Context, id string, status domain.ProductStatus) error
	Delete(ctx context.Context, id string) error
	ListPendingEmbedding(ctx context.Context, limit int) ([]*domain.Product, error)
}

// JobTracker records ingest job lifecycles. The job repository satisfies it.
type JobTracker interface {
	Create(ctx context.Context, job *domain.IngestJob) error
	MarkRunning(ctx context.Context, id string) error
	Finish(ctx context.Context, job *domain.IngestJob) error
}

// FeedTracker persists feed sync progress. The feed repository satisfies it.
type FeedTracker interface {
	RecordSync(ctx context.Context, id, cursor string) error
}

// IngestService maintains the catalog and the vector index together: every
// accepted product ends up as a database row plus an index entry, and every
// index write failure is surfaced, never dropped.
type IngestService struct {
	embedder EmbeddingProvider
	store    index.Store
	products CatalogWriter
	jobs     JobTracker
	feeds    FeedTracker

	workers   int
	batchSize int
}

// NewIngestService wires the ingest pipeline.
// Parameters:
//   - cfg: worker and batch settings.
//   - embedder: embedding provider.
//   - store: vector index.
//   - products, jobs, feeds: catalog repositories.
// Returns:
//   - *IngestService: ready service.
func NewIngestService(
	cfg *config.IngestConfig,
	embedder EmbeddingProvider,
	store index.Store,
	products CatalogWriter,
	jobs JobTracker,
	feeds FeedTracker,
) *IngestService {
	s := &IngestService{
		embedder:  embedder,
		store:     store,
		products:  products,
		jobs:      jobs,
		feeds:     feeds,
		workers:   cfg.Workers,
		batchSize: cfg.BatchSize,
	}
	if s.workers <= 0 {
		s.workers = 5
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	return s
}

// UpsertProduct persists a product and indexes its embedding. The row is
// written first with pending status, so an embedding failure leaves a
// retryable record instead of losing the product.
// Parameters:
//   - ctx: request context.
//   - product: record to ingest; Status is managed by this method.
// Returns:
//   - error: embedding or index failures; the catalog row survives either.
func (s *IngestService) UpsertProduct(ctx context.Context, product *domain.Product) error {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.SourceType == "" {
		product.SourceType = "manual"
	}
	if product.SourceID == "" {
		product.SourceID = product.ID
	}
	product.Status = domain.ProductStatusPending

	if err := s.products.Upsert(ctx, product); err != nil {
		return err
	}
	return s.embedAndIndex(ctx, product)
}

// embedAndIndex computes the embedding, writes the index, and activates the
// catalog row.
func (s *IngestService) embedAndIndex(ctx context.Context, product *domain.Product) error {
	vector, err := s.embedder.Embed(ctx, product.EmbeddingText())
	if err != nil {
		if serr := s.products.UpdateStatus(ctx, product.ID, domain.ProductStatusFailed); serr != nil {
			logger.CtxError(ctx, "failed to mark product %s failed: %v", product.ID, serr)
		}
		return fmt.Errorf("embedding failed for %s: %w", product.ID, err)
	}

	meta := index.Metadata{
		Category: product.Category,
		Brand:    product.Brand,
		Color:    product.Color,
		Price:    product.Price,
	}
	if product.Stock != nil {
		inStock := *product.Stock > 0
		meta.InStock = &inStock
	}

	if err := s.store.Upsert(ctx, product.ID, vector, meta); err != nil {
		if serr := s.products.UpdateStatus(ctx, product.ID, domain.ProductStatusFailed); serr != nil {
			logger.CtxError(ctx, "failed to mark product %s failed: %v", product.ID, serr)
		}
		return err
	}

	return s.products.UpdateStatus(ctx, product.ID, domain.ProductStatusActive)
}

// DeleteProduct removes a product from the index and the catalog. Deleting
// an unknown ID is a no-op.
func (s *IngestService) DeleteProduct(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	return s.products.Delete(ctx, id)
}

// syncStats aggregates worker counters for a feed run.
type syncStats struct {
	total     atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64
}

// SyncFeed ingests a full feed through a worker pool and records the run as
// an ingest job.
// Parameters:
//   - ctx: run context; cancellation stops between batches.
//   - feed: product source.
//   - limit: maximum products to ingest; non-positive means all.
// Returns:
//   - *domain.IngestJob: the finished job record with counters.
//   - error: non-nil if the run could not start or the feed failed.
func (s *IngestService) SyncFeed(ctx context.Context, feed catalog.Feed, limit int) (*domain.IngestJob, error) {
	job := &domain.IngestJob{
		ID:     uuid.NewString(),
		FeedID: feed.FeedID(),
		Status: domain.JobStatusPending,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return nil, err
	}
	if err := s.jobs.MarkRunning(ctx, job.ID); err != nil {
		return nil, err
	}

	ctx = logger.SetJobID(logger.SetFeed(ctx, feed.FeedID()), job.ID)
	logger.CtxInfo(ctx, "feed sync started: %s", feed.DisplayName())
	start := time.Now()

	stats := &syncStats{}
	runErr := s.runSync(ctx, feed, limit, stats)

	job.TotalItems = int(stats.total.Load())
	job.ProcessedItems = int(stats.processed.Load())
	job.FailedItems = int(stats.failed.Load())
	job.SkippedItems = int(stats.skipped.Load())
	if runErr != nil {
		job.Status = domain.JobStatusFailed
		job.ErrorMessage = runErr.Error()
	} else {
		job.Status = domain.JobStatusCompleted
	}

	if err := s.jobs.Finish(ctx, job); err != nil {
		logger.CtxError(ctx, "failed to finish job record: %v", err)
	}

	logger.With(logger.Fields{
		"total":     job.TotalItems,
		"processed": job.ProcessedItems,
		"failed":    job.FailedItems,
		"skipped":   job.SkippedItems,
	}).WithDuration(time.Since(start).Milliseconds()).
		Info(ctx, "feed sync finished with status %s", job.Status)

	return job, runErr
}

func (s *IngestService) runSync(ctx context.Context, feed catalog.Feed, limit int, stats *syncStats) error {
	cursor := ""
	ingested := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batchSize := s.batchSize
		if limit > 0 && limit-ingested < batchSize {
			batchSize = limit - ingested
		}
		if batchSize <= 0 {
			break
		}

		batch, next, err := feed.FetchBatch(ctx, cursor, batchSize)
		if err != nil {
			return fmt.Errorf("feed fetch failed: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		stats.total.Add(int64(len(batch)))
		s.ingestBatch(ctx, batch, stats)
		ingested += len(batch)

		if s.feeds != nil {
			if err := s.feeds.RecordSync(ctx, feed.FeedID(), next); err != nil {
				logger.CtxWarn(ctx, "failed to record feed cursor: %v", err)
			}
		}

		if next == "" {
			break
		}
		cursor = next
	}
	return nil
}

// ingestBatch fans a batch out over the worker pool. Products with no name
// are skipped; everything else is upserted and indexed.
func (s *IngestService) ingestBatch(ctx context.Context, batch []domain.Product, stats *syncStats) {
	jobs := make(chan domain.Product)
	var wg sync.WaitGroup

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for product := range jobs {
				p := product
				if p.Name == "" {
					stats.skipped.Add(1)
					continue
				}
				if err := s.UpsertProduct(ctx, &p); err != nil {
					stats.failed.Add(1)
					logger.CtxWarn(ctx, "ingest failed for %s: %v", p.SourceID, err)
					continue
				}
				stats.processed.Add(1)
			}
		}()
	}

	for _, p := range batch {
		jobs <- p
	}
	close(jobs)
	wg.Wait()
}

// ReembedPending retries products whose embedding previously failed or was
// never computed.
// Parameters:
//   - ctx: run context.
//   - limit: maximum products to retry.
// Returns:
//   - int: number successfully activated.
//   - error: non-nil on catalog read failure.
func (s *IngestService) ReembedPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.products.ListPendingEmbedding(ctx, limit)
	if err != nil {
		return 0, err
	}

	done := 0
	for _, p := range pending {
		if err := s.embedAndIndex(ctx, p); err != nil {
			logger.CtxWarn(ctx, "re-embed failed for %s: %v", p.ID, err)
			continue
		}
		done++
	}
	return done, nil
}
