package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// FeedType represents the kind of catalog feed.
// Values include FeedTypeFile and FeedTypeAPI.
type FeedType string

const (
	FeedTypeFile FeedType = "file"
	FeedTypeAPI  FeedType = "api"
)

// FeedConfig is a custom type for storing JSON config in the database.
type FeedConfig map[string]interface{}

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the config.
//   - error: non-nil if marshaling fails.
func (c FeedConfig) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	return json.Marshal(c)
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (c *FeedConfig) Scan(value interface{}) error {
	if value == nil {
		*c = FeedConfig{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan FeedConfig")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, c)
}

// CatalogFeed represents a catalog feed configuration record.
type CatalogFeed struct {
	ID             string     `gorm:"type:text;primaryKey" json:"id"`
	Name           string     `gorm:"type:text;not null" json:"name"`
	Type           FeedType   `gorm:"type:text;not null" json:"type"`
	Config         FeedConfig `gorm:"type:text" json:"config"`
	LastSyncAt     *time.Time `json:"last_sync_at,omitempty"`
	LastSyncCursor string     `gorm:"type:text" json:"last_sync_cursor,omitempty"`
	IsEnabled      bool       `gorm:"default:true" json:"is_enabled"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// TableName returns the database table name for CatalogFeed.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (CatalogFeed) TableName() string {
	return "catalog_feeds"
}
