package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/xponent/shopcore/internal/domain"
)

// JobRepository provides database operations for ingest jobs.
type JobRepository struct {
	db *gorm.DB
}

// NewJobRepository creates a new job repository.
func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

// Create inserts a new ingest job record.
func (r *JobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create ingest job: %w", err)
	}
	return nil
}

// GetByID fetches a job record.
// Returns:
//   - *domain.IngestJob: the record, or nil if not found.
//   - error: non-nil on database failure.
func (r *JobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	var job domain.IngestJob
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingest job: %w", err)
	}
	return &job, nil
}

// MarkRunning transitions a job to running and stamps its start time.
func (r *JobRepository) MarkRunning(ctx context.Context, id string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     domain.JobStatusRunning,
			"started_at": &now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}
	return nil
}

// Finish records the terminal state and counters of a job run.
// Parameters:
//   - ctx: request context.
//   - job: job with Status, counters, and ErrorMessage already set.
// Returns:
//   - error: non-nil on database failure.
func (r *JobRepository) Finish(ctx context.Context, job *domain.IngestJob) error {
	now := time.Now()
	job.CompletedAt = &now
	err := r.db.WithContext(ctx).Model(&domain.IngestJob{}).
		Where("id = ?", job.ID).
		Updates(map[string]interface{}{
			"status":          job.Status,
			"total_items":     job.TotalItems,
			"processed_items": job.ProcessedItems,
			"failed_items":    job.FailedItems,
			"skipped_items":   job.SkippedItems,
			"error_message":   job.ErrorMessage,
			"completed_at":    job.CompletedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

// ListRecent returns the most recent jobs, newest first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*domain.IngestJob, error) {
	var jobs []*domain.IngestJob
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// FeedRepository provides database operations for catalog feed records.
type FeedRepository struct {
	db *gorm.DB
}

// NewFeedRepository creates a new feed repository.
func NewFeedRepository(db *gorm.DB) *FeedRepository {
	return &FeedRepository{db: db}
}

// Upsert registers a feed or updates its configuration.
func (r *FeedRepository) Upsert(ctx context.Context, feed *domain.CatalogFeed) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name", "type", "config", "is_enabled", "updated_at",
		}),
	}).Create(feed).Error
	if err != nil {
		return fmt.Errorf("failed to upsert feed: %w", err)
	}
	return nil
}

// GetByID fetches a feed record, or nil if not found.
func (r *FeedRepository) GetByID(ctx context.Context, id string) (*domain.CatalogFeed, error) {
	var feed domain.CatalogFeed
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&feed).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed: %w", err)
	}
	return &feed, nil
}

// ListEnabled returns all enabled feeds.
func (r *FeedRepository) ListEnabled(ctx context.Context) ([]*domain.CatalogFeed, error) {
	var feeds []*domain.CatalogFeed
	err := r.db.WithContext(ctx).Where("is_enabled = ?", true).Order("id ASC").Find(&feeds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

// RecordSync updates a feed's last sync time and cursor after a run.
func (r *FeedRepository) RecordSync(ctx context.Context, id, cursor string) error {
	now := time.Now()
	err := r.db.WithContext(ctx).Model(&domain.CatalogFeed{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_sync_at":     &now,
			"last_sync_cursor": cursor,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record feed sync: %w", err)
	}
	return nil
}
