package index

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/xponent/shopcore/internal/domain"
)

const indexFileName = "index.db"

var (
	bucketVectors = []byte("vectors")
	bucketMeta    = []byte("meta")
	bucketConfig  = []byte("config")

	keyDimension = []byte("dimension")
)

// BoltStore is a local vector index persisted in a single bbolt file under a
// directory owned exclusively by this process. Every mutation commits the
// vector and its metadata in one transaction, so a crash leaves the index at
// the previous committed state, never in between.
//
// Reads are served from an in-memory slab rebuilt from disk at open time:
// vectors live contiguously in one []float32 with an id-to-slot map, deleted
// slots go on a free list, and the slab is compacted once the free ratio
// crosses the configured threshold.
type BoltStore struct {
	db        *bolt.DB
	dimension int

	mu      sync.RWMutex
	data    []float32 // slab, dimension floats per slot
	norms   []float32 // vector norm per slot
	ids     []string  // slot -> id, "" when free
	slots   map[string]int
	metas   map[string]Metadata
	free    []int
	closed  bool
	compact float64
}

// OpenBolt opens (or creates) the index under dir.
// Parameters:
//   - dir: directory for the index file; created if missing.
//   - dimension: vector dimensionality; must match any existing index file.
//   - compactRatio: free-slot ratio that triggers slab compaction.
// Returns:
//   - *BoltStore: ready store with the slab loaded from disk.
//   - error: non-nil on IO failure or dimension mismatch.
func OpenBolt(dir string, dimension int, compactRatio float64) (*BoltStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid index dimension: %d", dimension)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	db, err := bolt.Open(filepath.Join(dir, indexFileName), 0o600, &bolt.Options{
		Timeout: 2 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}

	s := &BoltStore{
		db:        db,
		dimension: dimension,
		slots:     make(map[string]int),
		metas:     make(map[string]Metadata),
		compact:   compactRatio,
	}

	if err := s.init(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *BoltStore) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketVectors, bucketMeta, bucketConfig} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}

		cfg := tx.Bucket(bucketConfig)
		stored := cfg.Get(keyDimension)
		if stored == nil {
			buf := make([]byte, 4)
			binary.BigEndian.PutUint32(buf, uint32(s.dimension))
			return cfg.Put(keyDimension, buf)
		}
		if got := int(binary.BigEndian.Uint32(stored)); got != s.dimension {
			return fmt.Errorf("index file has dimension %d, configured %d: %w",
				got, s.dimension, domain.ErrDimensionMismatch)
		}
		return nil
	})
}

// load rebuilds the in-memory slab from the committed on-disk state.
func (s *BoltStore) load() error {
	return s.db.View(func(tx *bolt.Tx) error {
		vectors := tx.Bucket(bucketVectors)
		meta := tx.Bucket(bucketMeta)

		return vectors.ForEach(func(k, v []byte) error {
			id := string(k)
			vec, err := decodeVector(v, s.dimension)
			if err != nil {
				return fmt.Errorf("corrupt vector for %s: %w", id, err)
			}

			var m Metadata
			if raw := meta.Get(k); raw != nil {
				if err := json.Unmarshal(raw, &m); err != nil {
					return fmt.Errorf("corrupt metadata for %s: %w", id, err)
				}
			}

			s.place(id, vec, m)
			return nil
		})
	})
}

// place writes a vector into the slab. Caller must hold the write lock
// (or have exclusive access during load).
func (s *BoltStore) place(id string, vec []float32, m Metadata) {
	slot, exists := s.slots[id]
	if !exists {
		if n := len(s.free); n > 0 {
			slot = s.free[n-1]
			s.free = s.free[:n-1]
		} else {
			slot = len(s.ids)
			s.ids = append(s.ids, "")
			s.norms = append(s.norms, 0)
			s.data = append(s.data, make([]float32, s.dimension)...)
		}
		s.slots[id] = slot
		s.ids[slot] = id
	}
	copy(s.data[slot*s.dimension:(slot+1)*s.dimension], vec)
	s.norms[slot] = norm(vec)
	s.metas[id] = m
}

// Upsert inserts or replaces a vector and its metadata atomically.
func (s *BoltStore) Upsert(ctx context.Context, id string, vector []float32, meta Metadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(vector) != s.dimension {
		return &domain.IndexWriteError{Op: "upsert", ID: id, Err: fmt.Errorf(
			"got %d floats, want %d: %w", len(vector), s.dimension, domain.ErrDimensionMismatch)}
	}

	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return &domain.IndexWriteError{Op: "upsert", ID: id, Err: err}
	}
	vecBytes := encodeVector(vector)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &domain.IndexWriteError{Op: "upsert", ID: id, Err: domain.ErrIndexClosed}
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketVectors).Put([]byte(id), vecBytes); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Put([]byte(id), metaBytes)
	})
	if err != nil {
		return &domain.IndexWriteError{Op: "upsert", ID: id, Err: err}
	}

	// Disk commit succeeded; the slab now follows.
	s.place(id, vector, meta)
	return nil
}

// Delete removes an ID. Absent IDs are a no-op.
func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return &domain.IndexWriteError{Op: "delete", ID: id, Err: domain.ErrIndexClosed}
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket(bucketVectors).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketMeta).Delete([]byte(id))
	})
	if err != nil {
		return &domain.IndexWriteError{Op: "delete", ID: id, Err: err}
	}

	slot, ok := s.slots[id]
	if !ok {
		return nil
	}
	delete(s.slots, id)
	delete(s.metas, id)
	s.ids[slot] = ""
	s.free = append(s.free, slot)

	if s.compact > 0 && len(s.ids) > 0 &&
		float64(len(s.free))/float64(len(s.ids)) >= s.compact {
		s.compactSlab()
	}
	return nil
}

// compactSlab rebuilds the slab without free slots. Caller must hold the
// write lock.
func (s *BoltStore) compactSlab() {
	live := len(s.slots)
	data := make([]float32, 0, live*s.dimension)
	norms := make([]float32, 0, live)
	ids := make([]string, 0, live)
	slots := make(map[string]int, live)

	for slot, id := range s.ids {
		if id == "" {
			continue
		}
		slots[id] = len(ids)
		ids = append(ids, id)
		data = append(data, s.data[slot*s.dimension:(slot+1)*s.dimension]...)
		norms = append(norms, s.norms[slot])
	}

	s.data, s.norms, s.ids, s.slots = data, norms, ids, slots
	s.free = nil
}

// Query returns the k nearest neighbors by cosine distance.
func (s *BoltStore) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector has %d floats, want %d: %w",
			len(vector), s.dimension, domain.ErrDimensionMismatch)
	}
	if k <= 0 {
		return []Match{}, nil
	}

	qnorm := norm(vector)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, domain.ErrIndexClosed
	}

	matches := make([]Match, 0, k)
	for slot, id := range s.ids {
		if id == "" {
			continue
		}
		m := s.metas[id]
		if !filterMatches(filter, m) {
			continue
		}
		d := cosineDistance(vector, qnorm, s.data[slot*s.dimension:(slot+1)*s.dimension], s.norms[slot])
		matches = append(matches, Match{ID: id, Distance: d, Metadata: m})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func filterMatches(f *Filter, m Metadata) bool {
	if f == nil {
		return true
	}
	if f.Category != nil && *f.Category != m.Category {
		return false
	}
	if f.Brand != nil && *f.Brand != m.Brand {
		return false
	}
	if f.InStock != nil {
		inStock := m.InStock == nil || *m.InStock
		if *f.InStock != inStock {
			return false
		}
	}
	return true
}

// Len returns the number of live vectors.
func (s *BoltStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}

// Ready reports whether the store can serve queries.
func (s *BoltStore) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed
}

// WriteSnapshot streams a consistent copy of the index file to w.
// Parameters:
//   - ctx: request context, checked before the copy starts.
//   - w: destination writer.
// Returns:
//   - int64: bytes written.
//   - error: non-nil on IO failure or if the store is closed.
func (s *BoltStore) WriteSnapshot(ctx context.Context, w io.Writer) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return 0, domain.ErrIndexClosed
	}
	s.mu.RUnlock()

	var n int64
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		n, err = tx.WriteTo(w)
		return err
	})
	if err != nil {
		return n, fmt.Errorf("failed to write index snapshot: %w", err)
	}
	return n, nil
}

// Close releases the file lock. Further operations fail with ErrIndexClosed.
func (s *BoltStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte, dimension int) ([]float32, error) {
	if len(buf) != dimension*4 {
		return nil, fmt.Errorf("got %d bytes, want %d", len(buf), dimension*4)
	}
	vec := make([]float32, dimension)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec, nil
}

func norm(vec []float32) float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return float32(math.Sqrt(sum))
}

// cosineDistance returns 1 - cosine similarity. Zero-norm vectors have no
// direction and are treated as maximally distant.
func cosineDistance(a []float32, na float32, b []float32, nb float32) float32 {
	if na == 0 || nb == 0 {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return float32(1 - dot/(float64(na)*float64(nb)))
}
