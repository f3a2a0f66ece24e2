package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable indicates the embedding model could not be
	// invoked. Fatal for ingestion; at query time the engine degrades to
	// constraint-only matching instead of failing the request.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrRetrievalTimeout indicates a downstream call exceeded its bound.
	// Surfaced to the caller as a failed request, never as an empty result.
	ErrRetrievalTimeout = errors.New("retrieval timed out")

	// ErrIndexUnavailable indicates the vector index could not serve a read
	// and no constraint-only fallback was possible.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrIndexClosed indicates an operation on a closed index store.
	ErrIndexClosed = errors.New("vector index closed")

	// ErrDimensionMismatch indicates a vector whose length does not match
	// the index dimensionality.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
)

// IndexWriteError wraps a mutation that could not be durably committed.
// It is always surfaced to the ingestion caller, never silently dropped.
type IndexWriteError struct {
	Op  string
	ID  string
	Err error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index %s failed for %s: %v", e.Op, e.ID, e.Err)
}

func (e *IndexWriteError) Unwrap() error {
	return e.Err
}
