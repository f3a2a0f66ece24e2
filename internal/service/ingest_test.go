package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/index"
)

// memCatalog is an in-memory CatalogWriter. Ingest workers hit it
// concurrently, so every method locks.
type memCatalog struct {
	mu        sync.Mutex
	rows      map[string]domain.Product
	upsertErr error
}

func newMemCatalog() *memCatalog {
	return &memCatalog{rows: make(map[string]domain.Product)}
}

func (m *memCatalog) Upsert(ctx context.Context, product *domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.rows[product.ID] = *product
	return nil
}

func (m *memCatalog) UpdateStatus(ctx context.Context, id string, status domain.ProductStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	if !ok {
		return nil
	}
	row.Status = status
	m.rows[id] = row
	return nil
}

func (m *memCatalog) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *memCatalog) ListPendingEmbedding(ctx context.Context, limit int) ([]*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var pending []*domain.Product
	for _, row := range m.rows {
		if row.Status == domain.ProductStatusPending {
			p := row
			pending = append(pending, &p)
			if limit > 0 && len(pending) >= limit {
				break
			}
		}
	}
	return pending, nil
}

func (m *memCatalog) get(id string) (domain.Product, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[id]
	return row, ok
}

func (m *memCatalog) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// recordingStore is an in-memory index.Store that remembers writes.
type recordingStore struct {
	mu        sync.Mutex
	vectors   map[string][]float32
	meta      map[string]index.Metadata
	upsertErr error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{
		vectors: make(map[string][]float32),
		meta:    make(map[string]index.Metadata),
	}
}

func (r *recordingStore) Upsert(ctx context.Context, id string, vector []float32, meta index.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.vectors[id] = vector
	r.meta[id] = meta
	return nil
}

func (r *recordingStore) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.vectors, id)
	delete(r.meta, id)
	return nil
}

func (r *recordingStore) Query(ctx context.Context, vector []float32, k int, filter *index.Filter) ([]index.Match, error) {
	return nil, nil
}

func (r *recordingStore) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.vectors)
}

func (r *recordingStore) Ready() bool  { return true }
func (r *recordingStore) Close() error { return nil }

type memJobs struct {
	mu       sync.Mutex
	created  []*domain.IngestJob
	running  []string
	finished []*domain.IngestJob
}

func (m *memJobs) Create(ctx context.Context, job *domain.IngestJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, job)
	return nil
}

func (m *memJobs) MarkRunning(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.running = append(m.running, id)
	return nil
}

func (m *memJobs) Finish(ctx context.Context, job *domain.IngestJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, job)
	return nil
}

type memFeeds struct {
	mu      sync.Mutex
	cursors map[string]string
}

func (m *memFeeds) RecordSync(ctx context.Context, id, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursors == nil {
		m.cursors = make(map[string]string)
	}
	m.cursors[id] = cursor
	return nil
}

// sliceFeed serves a fixed product list with numeric-offset pagination.
type sliceFeed struct {
	products []domain.Product
}

func (f *sliceFeed) FeedID() string      { return "slice" }
func (f *sliceFeed) DisplayName() string { return "slice feed" }

func (f *sliceFeed) FetchBatch(ctx context.Context, cursor string, limit int) ([]domain.Product, string, error) {
	start := 0
	if cursor != "" {
		for _, c := range cursor {
			start = start*10 + int(c-'0')
		}
	}
	if start >= len(f.products) {
		return nil, "", nil
	}
	end := len(f.products)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	batch := f.products[start:end]
	next := ""
	if end < len(f.products) {
		next = string(rune('0' + end))
	}
	return batch, next, nil
}

func newTestIngest(embedder EmbeddingProvider, store index.Store, cat CatalogWriter, jobs JobTracker, feeds FeedTracker) *IngestService {
	return NewIngestService(
		&config.IngestConfig{Workers: 2, BatchSize: 2},
		embedder, store, cat, jobs, feeds,
	)
}

func TestUpsertProductActivates(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, &memJobs{}, &memFeeds{})

	price := 49.99
	stock := 3
	p := &domain.Product{Name: "Red Tote", Category: "tote bags", Price: &price, Stock: &stock}
	if err := svc.UpsertProduct(context.Background(), p); err != nil {
		t.Fatalf("UpsertProduct failed: %v", err)
	}

	if p.ID == "" {
		t.Fatal("expected a generated ID")
	}
	row, ok := cat.get(p.ID)
	if !ok {
		t.Fatal("expected a catalog row")
	}
	if row.Status != domain.ProductStatusActive {
		t.Errorf("expected active status, got %s", row.Status)
	}
	if store.Len() != 1 {
		t.Fatalf("expected 1 indexed vector, got %d", store.Len())
	}
	meta := store.meta[p.ID]
	if meta.Price == nil || *meta.Price != price {
		t.Errorf("price not carried into index metadata: %+v", meta)
	}
	if meta.InStock == nil || !*meta.InStock {
		t.Errorf("stock not carried into index metadata: %+v", meta)
	}
}

func TestUpsertProductEmbeddingFailureKeepsRow(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	svc := newTestIngest(&fakeEmbedder{err: errors.New("provider down")}, store, cat, &memJobs{}, &memFeeds{})

	p := &domain.Product{ID: "p1", Name: "Tote"}
	if err := svc.UpsertProduct(context.Background(), p); err == nil {
		t.Fatal("expected an error when embedding fails")
	}

	row, ok := cat.get("p1")
	if !ok {
		t.Fatal("embedding failure must not lose the catalog row")
	}
	if row.Status != domain.ProductStatusFailed {
		t.Errorf("expected failed status for retry, got %s", row.Status)
	}
	if store.Len() != 0 {
		t.Errorf("expected no index entry, got %d", store.Len())
	}
}

func TestUpsertProductIndexFailureMarksFailed(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	store.upsertErr = errors.New("disk full")
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, &memJobs{}, &memFeeds{})

	p := &domain.Product{ID: "p1", Name: "Tote"}
	if err := svc.UpsertProduct(context.Background(), p); err == nil {
		t.Fatal("expected the index write failure to surface")
	}

	row, _ := cat.get("p1")
	if row.Status != domain.ProductStatusFailed {
		t.Errorf("expected failed status, got %s", row.Status)
	}
}

func TestUpsertProductIdempotent(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, &memJobs{}, &memFeeds{})
	ctx := context.Background()

	p := &domain.Product{ID: "p1", Name: "Tote"}
	if err := svc.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}
	p.Name = "Tote v2"
	if err := svc.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	if cat.count() != 1 {
		t.Errorf("re-upsert must update, not duplicate: %d rows", cat.count())
	}
	if store.Len() != 1 {
		t.Errorf("re-upsert must replace the vector: %d entries", store.Len())
	}
	row, _ := cat.get("p1")
	if row.Name != "Tote v2" || row.Status != domain.ProductStatusActive {
		t.Errorf("unexpected row after re-upsert: %+v", row)
	}
}

func TestDeleteProduct(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, &memJobs{}, &memFeeds{})
	ctx := context.Background()

	p := &domain.Product{ID: "p1", Name: "Tote"}
	if err := svc.UpsertProduct(ctx, p); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if err := svc.DeleteProduct(ctx, "p1"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok := cat.get("p1"); ok {
		t.Error("expected catalog row removed")
	}
	if store.Len() != 0 {
		t.Errorf("expected index entry removed, got %d", store.Len())
	}

	// Unknown ID is a no-op.
	if err := svc.DeleteProduct(ctx, "ghost"); err != nil {
		t.Errorf("deleting an unknown ID should not fail: %v", err)
	}
}

func TestSyncFeedCounters(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	jobs := &memJobs{}
	feeds := &memFeeds{}
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, jobs, feeds)

	feed := &sliceFeed{products: []domain.Product{
		{ID: "p1", Name: "Tote"},
		{ID: "p2", Name: ""},
		{ID: "p3", Name: "Clutch"},
	}}

	job, err := svc.SyncFeed(context.Background(), feed, 0)
	if err != nil {
		t.Fatalf("SyncFeed failed: %v", err)
	}

	if job.Status != domain.JobStatusCompleted {
		t.Errorf("expected completed job, got %s", job.Status)
	}
	if job.TotalItems != 3 || job.ProcessedItems != 2 || job.SkippedItems != 1 || job.FailedItems != 0 {
		t.Errorf("unexpected counters: total=%d processed=%d skipped=%d failed=%d",
			job.TotalItems, job.ProcessedItems, job.SkippedItems, job.FailedItems)
	}
	if len(jobs.created) != 1 || len(jobs.finished) != 1 {
		t.Errorf("expected one job record created and finished, got %d/%d",
			len(jobs.created), len(jobs.finished))
	}
	if _, ok := feeds.cursors["slice"]; !ok {
		t.Error("expected the feed cursor to be recorded")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 indexed products, got %d", store.Len())
	}
}

func TestSyncFeedLimit(t *testing.T) {
	cat := newMemCatalog()
	store := newRecordingStore()
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, &memJobs{}, &memFeeds{})

	feed := &sliceFeed{products: []domain.Product{
		{ID: "p1", Name: "A"}, {ID: "p2", Name: "B"},
		{ID: "p3", Name: "C"}, {ID: "p4", Name: "D"},
	}}

	job, err := svc.SyncFeed(context.Background(), feed, 3)
	if err != nil {
		t.Fatalf("SyncFeed failed: %v", err)
	}
	if job.TotalItems != 3 {
		t.Errorf("expected the limit to cap ingestion at 3, got %d", job.TotalItems)
	}
}

func TestReembedPending(t *testing.T) {
	cat := newMemCatalog()
	cat.rows["p1"] = domain.Product{ID: "p1", Name: "Tote", Status: domain.ProductStatusPending}
	cat.rows["p2"] = domain.Product{ID: "p2", Name: "Clutch", Status: domain.ProductStatusActive}
	store := newRecordingStore()
	svc := newTestIngest(&fakeEmbedder{vector: []float32{1, 0}, ready: true}, store, cat, &memJobs{}, &memFeeds{})

	done, err := svc.ReembedPending(context.Background(), 10)
	if err != nil {
		t.Fatalf("ReembedPending failed: %v", err)
	}
	if done != 1 {
		t.Errorf("expected 1 product re-embedded, got %d", done)
	}
	row, _ := cat.get("p1")
	if row.Status != domain.ProductStatusActive {
		t.Errorf("expected pending product activated, got %s", row.Status)
	}
	if store.Len() != 1 {
		t.Errorf("expected the re-embedded product indexed, got %d", store.Len())
	}
}
