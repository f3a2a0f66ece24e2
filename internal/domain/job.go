package domain

import "time"

// JobStatus represents the status of a catalog ingest job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IngestJob tracks a catalog feed synchronization run.
type IngestJob struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	FeedID         string     `gorm:"type:text;not null;index" json:"feed_id"`
	Status         JobStatus  `gorm:"type:text;not null;default:pending" json:"status"`
	TotalItems     int        `gorm:"default:0" json:"total_items"`
	ProcessedItems int        `gorm:"default:0" json:"processed_items"`
	FailedItems    int        `gorm:"default:0" json:"failed_items"`
	SkippedItems   int        `gorm:"default:0" json:"skipped_items"`
	ErrorMessage   string     `gorm:"type:text" json:"error_message,omitempty"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for IngestJob.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (IngestJob) TableName() string {
	return "ingest_jobs"
}
