package storage

import (
	"context"
	"io"
)

// ObjectStorage defines the interface for snapshot archive storage.
type ObjectStorage interface {
	// Upload stores an object.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error

	// Download retrieves an object. The caller closes the reader.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes an object.
	Delete(ctx context.Context, key string) error

	// Exists checks whether an object is present.
	Exists(ctx context.Context, key string) (bool, error)

	// List returns the keys under a prefix, lexicographically ordered.
	List(ctx context.Context, prefix string) ([]string, error)
}
