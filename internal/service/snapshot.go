package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/xponent/shopcore/internal/index"
	"github.com/xponent/shopcore/internal/logger"
	"github.com/xponent/shopcore/internal/storage"
)

// SnapshotService archives consistent copies of the local vector index to
// object storage. Only snapshot-capable index backends are supported; the
// remote backend manages its own durability.
type SnapshotService struct {
	source  index.Snapshotter
	archive storage.ObjectStorage
	prefix  string
}

// NewSnapshotService creates the snapshot service.
// Parameters:
//   - source: snapshot-capable index store.
//   - archive: object storage destination.
//   - prefix: key prefix for snapshot objects.
// Returns:
//   - *SnapshotService: ready service.
func NewSnapshotService(source index.Snapshotter, archive storage.ObjectStorage, prefix string) *SnapshotService {
	if prefix == "" {
		prefix = "snapshots"
	}
	return &SnapshotService{
		source:  source,
		archive: archive,
		prefix:  prefix,
	}
}

// Archive writes a point-in-time snapshot to object storage.
// Parameters:
//   - ctx: request context.
// Returns:
//   - string: the stored object key.
//   - error: non-nil if the snapshot or upload failed.
func (s *SnapshotService) Archive(ctx context.Context) (string, error) {
	start := time.Now()

	var buf bytes.Buffer
	n, err := s.source.WriteSnapshot(ctx, &buf)
	if err != nil {
		return "", fmt.Errorf("snapshot failed: %w", err)
	}

	key := fmt.Sprintf("%s/index-%s.db", s.prefix, time.Now().UTC().Format("20060102T150405Z"))
	if err := s.archive.Upload(ctx, key, &buf, n, "application/octet-stream"); err != nil {
		return "", fmt.Errorf("snapshot upload failed: %w", err)
	}

	logger.With(logger.Fields{logger.FieldStatus: "archived"}).
		WithDuration(time.Since(start).Milliseconds()).
		WithSize(int(n)).
		Info(ctx, "index snapshot archived as %s", key)

	return key, nil
}

// List returns archived snapshot keys, newest last.
func (s *SnapshotService) List(ctx context.Context) ([]string, error) {
	keys, err := s.archive.List(ctx, s.prefix+"/")
	if err != nil {
		return nil, err
	}
	sort.Strings(keys)
	return keys, nil
}
