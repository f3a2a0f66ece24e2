package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/xponent/shopcore/internal/domain"
)

const FileFeedID = "file"

// fileRecord is the on-disk product shape. It is deliberately looser than
// domain.Product so hand-edited catalog files stay forgiving.
type fileRecord struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Brand       string   `json:"brand"`
	Color       string   `json:"color"`
	Material    string   `json:"material"`
	Features    []string `json:"features"`
	Price       *float64 `json:"price"`
	Stock       *int     `json:"stock"`
}

// FileFeed serves products from a local JSON catalog file. The whole file is
// parsed per batch; catalog files are small enough that this beats keeping
// parse state between calls.
type FileFeed struct {
	path string
}

// NewFileFeed creates a feed over a JSON catalog file.
// Parameters:
//   - path: catalog file containing a JSON array of product records.
// Returns:
//   - *FileFeed: ready feed; the file is read lazily per batch.
func NewFileFeed(path string) *FileFeed {
	return &FileFeed{path: path}
}

// FeedID returns the stable feed identifier.
func (f *FileFeed) FeedID() string {
	return FileFeedID
}

// DisplayName returns a human-readable feed name.
func (f *FileFeed) DisplayName() string {
	return fmt.Sprintf("file catalog (%s)", f.path)
}

// FetchBatch pages through the file. The cursor is the numeric offset of the
// next record.
func (f *FileFeed) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.Product, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read catalog file: %w", err)
	}

	var records []fileRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, "", fmt.Errorf("failed to parse catalog file: %w", err)
	}

	offset := 0
	if cursor != "" {
		offset, err = strconv.Atoi(cursor)
		if err != nil || offset < 0 {
			return nil, "", fmt.Errorf("invalid feed cursor %q", cursor)
		}
	}
	if offset >= len(records) {
		return nil, "", nil
	}

	end := offset + limit
	if limit <= 0 || end > len(records) {
		end = len(records)
	}

	products := make([]domain.Product, 0, end-offset)
	for _, rec := range records[offset:end] {
		products = append(products, f.toProduct(rec))
	}

	next := ""
	if end < len(records) {
		next = strconv.Itoa(end)
	}
	return products, next, nil
}

// toProduct normalizes a file record. Records without an explicit ID get a
// deterministic one derived from the feed and name, so re-syncs update
// instead of duplicating.
func (f *FileFeed) toProduct(rec fileRecord) domain.Product {
	sourceID := rec.ID
	if sourceID == "" {
		sourceID = strings.ToLower(strings.TrimSpace(rec.Name))
	}
	id := rec.ID
	if id == "" {
		id = uuid.NewSHA1(uuid.NameSpaceURL, []byte(FileFeedID+"/"+sourceID)).String()
	}
	return domain.Product{
		ID:          id,
		SourceType:  FileFeedID,
		SourceID:    sourceID,
		Name:        rec.Name,
		Description: rec.Description,
		Category:    rec.Category,
		Brand:       rec.Brand,
		Color:       rec.Color,
		Material:    rec.Material,
		Features:    rec.Features,
		Price:       rec.Price,
		Stock:       rec.Stock,
		Status:      domain.ProductStatusPending,
	}
}
