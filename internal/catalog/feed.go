package catalog

import (
	"context"

	"github.com/xponent/shopcore/internal/domain"
)

// Feed is a source of catalog products. Implementations page through their
// backing source with an opaque cursor.
type Feed interface {
	// FeedID returns the stable feed identifier.
	FeedID() string

	// DisplayName returns a human-readable feed name.
	DisplayName() string

	// FetchBatch returns up to limit products starting at cursor.
	// An empty cursor starts from the beginning; an empty next cursor
	// means the feed is exhausted.
	FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.Product, string, error)
}
