package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// ProductStatus represents the indexing status of a product record.
// Values include ProductStatusPending, ProductStatusActive, and ProductStatusFailed.
type ProductStatus string

const (
	ProductStatusPending ProductStatus = "pending"
	ProductStatusActive  ProductStatus = "active"
	ProductStatusFailed  ProductStatus = "failed"
)

// StringArray is a custom type for storing string arrays as JSON in the database.
type StringArray []string

// Value implements the driver.Valuer interface for database serialization.
// Parameters: none.
// Returns:
//   - driver.Value: JSON-encoded string representation of the slice.
//   - error: non-nil if marshaling fails.
func (a StringArray) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface for database deserialization.
// Parameters:
//   - value: raw database value to decode.
// Returns:
//   - error: non-nil if decoding fails or the type is unexpected.
func (a *StringArray) Scan(value interface{}) error {
	if value == nil {
		*a = StringArray{}
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		str, ok := value.(string)
		if !ok {
			return errors.New("failed to scan StringArray")
		}
		bytes = []byte(str)
	}
	return json.Unmarshal(bytes, a)
}

// Product represents a catalog product record.
// The identifier is immutable; Price and Stock are nullable attributes.
// EmbeddedAt tracks when the current description was last embedded so stale
// embeddings can be detected after description edits.
type Product struct {
	ID          string        `gorm:"type:text;primaryKey" json:"id"`
	SourceType  string        `gorm:"type:text;not null;index:idx_products_source,unique" json:"source_type"`
	SourceID    string        `gorm:"type:text;not null;index:idx_products_source,unique" json:"source_id"`
	Name        string        `gorm:"type:text;not null" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	Category    string        `gorm:"type:text;index:idx_products_category" json:"category"`
	Brand       string        `gorm:"type:text;index:idx_products_brand" json:"brand"`
	Color       string        `gorm:"type:text" json:"color"`
	Material    string        `gorm:"type:text" json:"material,omitempty"`
	Features    StringArray   `gorm:"type:text" json:"features"`
	Price       *float64      `json:"price,omitempty"`
	Stock       *int          `json:"stock,omitempty"`
	Status      ProductStatus `gorm:"type:text;index:idx_products_status;default:pending" json:"status"`
	EmbeddedAt  *time.Time    `json:"embedded_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// TableName returns the database table name for Product.
// Parameters: none.
// Returns:
//   - string: table name for GORM mapping.
func (Product) TableName() string {
	return "products"
}

// EmbeddingText returns the text the product embedding is computed from.
// Name and description are concatenated so short names still carry signal.
func (p *Product) EmbeddingText() string {
	if p.Description == "" {
		return p.Name
	}
	if p.Name == "" {
		return p.Description
	}
	return p.Name + ". " + p.Description
}

// InStock reports whether the product is purchasable. An unknown stock count
// is treated as in stock rather than hiding the product.
func (p *Product) InStock() bool {
	return p.Stock == nil || *p.Stock > 0
}
