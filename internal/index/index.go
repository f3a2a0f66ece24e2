package index

import (
	"context"
	"io"
)

// Metadata is the filterable attribute set stored alongside each vector.
// It mirrors the product attributes the search path filters on, so hard
// filtering can happen inside the index without a catalog round trip.
type Metadata struct {
	Category string   `json:"category,omitempty"`
	Brand    string   `json:"brand,omitempty"`
	Color    string   `json:"color,omitempty"`
	Price    *float64 `json:"price,omitempty"`
	InStock  *bool    `json:"in_stock,omitempty"`
}

// Match is a single nearest-neighbor result. Distance is cosine distance
// (1 - cosine similarity), so lower is closer.
type Match struct {
	ID       string
	Distance float32
	Metadata Metadata
}

// Filter narrows a query to vectors whose metadata matches. Nil fields
// match everything.
type Filter struct {
	Category *string
	Brand    *string
	InStock  *bool
}

// Store is the vector index contract. Implementations must be safe for
// concurrent use; mutations are atomic with respect to queries.
type Store interface {
	// Upsert inserts or replaces the vector and metadata for an ID.
	// The vector length must match the store dimension.
	Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error

	// Delete removes an ID. Deleting an absent ID is a no-op.
	Delete(ctx context.Context, id string) error

	// Query returns up to k nearest neighbors ordered by ascending distance,
	// ties broken by ascending ID. An empty index returns an empty slice.
	Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error)

	// Len returns the number of live vectors.
	Len() int

	// Ready reports whether the store can serve queries.
	Ready() bool

	// Close releases resources. Operations after Close fail.
	Close() error
}

// Snapshotter is implemented by stores that can write a consistent
// point-in-time copy of their on-disk state.
type Snapshotter interface {
	// WriteSnapshot streams a consistent snapshot to w and returns the
	// number of bytes written.
	WriteSnapshot(ctx context.Context, w io.Writer) (int64, error)
}
