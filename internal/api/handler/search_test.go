package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/index"
	"github.com/xponent/shopcore/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubEmbedder struct {
	vector []float32
	err    error
	ready  bool
}

func (s *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vector, nil
}

func (s *stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := s.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return len(s.vector) }
func (s *stubEmbedder) Ready() bool     { return s.ready }

type stubStore struct {
	matches []index.Match
	err     error
}

func (s *stubStore) Upsert(ctx context.Context, id string, vector []float32, meta index.Metadata) error {
	return nil
}
func (s *stubStore) Delete(ctx context.Context, id string) error { return nil }
func (s *stubStore) Query(ctx context.Context, vector []float32, k int, filter *index.Filter) ([]index.Match, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.matches, nil
}
func (s *stubStore) Len() int     { return len(s.matches) }
func (s *stubStore) Ready() bool  { return s.err == nil }
func (s *stubStore) Close() error { return nil }

type stubSource struct {
	products map[string]*domain.Product
	findErr  error
}

func (s *stubSource) GetByIDs(ctx context.Context, ids []string) ([]*domain.Product, error) {
	out := make([]*domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubSource) FindByConstraints(ctx context.Context, cs *domain.ConstraintSet, limit int) ([]*domain.Product, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return nil, nil
}

func newStubRetrieval(embedder service.EmbeddingProvider, store index.Store, source service.ProductSource) *service.RetrievalService {
	return service.NewRetrievalService(
		&config.SearchConfig{DefaultK: 6, MaxK: 50, CandidateMultiplier: 5},
		service.NewQueryUnderstanding(&config.QueryConfig{CacheSize: 4}),
		embedder,
		store,
		source,
		service.NewRanker(&config.RankingConfig{SimilarityWeight: 0.5, ConstraintWeight: 0.35, SignalWeight: 0.15}),
	)
}

func performSearch(h *SearchHandler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = req
	if req.Method == http.MethodPost {
		h.Search(c)
	} else {
		h.SearchGet(c)
	}
	return w
}

func TestSearchHandlerOK(t *testing.T) {
	price := 20.0
	retrieval := newStubRetrieval(
		&stubEmbedder{vector: []float32{1, 0}, ready: true},
		&stubStore{matches: []index.Match{{ID: "p1", Distance: 0.1}}},
		&stubSource{products: map[string]*domain.Product{
			"p1": {ID: "p1", Name: "Tote", Price: &price},
		}},
	)
	h := NewSearchHandler(retrieval)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=tote", nil)
	w := performSearch(h, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"p1"`) {
		t.Errorf("expected result payload, got %s", w.Body.String())
	}
}

func TestSearchHandlerMissingQuery(t *testing.T) {
	h := NewSearchHandler(newStubRetrieval(&stubEmbedder{ready: true}, &stubStore{}, &stubSource{}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	w := performSearch(h, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestSearchHandlerBadBody(t *testing.T) {
	h := NewSearchHandler(newStubRetrieval(&stubEmbedder{ready: true}, &stubStore{}, &stubSource{}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(`{"top_k": 5}`))
	req.Header.Set("Content-Type", "application/json")
	w := performSearch(h, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing query field, got %d", w.Code)
	}
}

func TestSearchHandlerTimeoutMapsTo504(t *testing.T) {
	h := NewSearchHandler(newStubRetrieval(
		&stubEmbedder{err: context.Canceled},
		&stubStore{},
		&stubSource{},
	))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=tote", nil)
	ctx, cancel := context.WithCancel(req.Context())
	cancel()
	req = req.WithContext(ctx)

	w := performSearch(h, req)
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504, got %d: %s", w.Code, w.Body.String())
	}
}

// waitingEmbedder blocks until the request context expires, standing in for
// a provider that is slower than the caller's budget.
type waitingEmbedder struct{}

func (w *waitingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (w *waitingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (w *waitingEmbedder) Dimensions() int { return 2 }
func (w *waitingEmbedder) Ready() bool     { return true }

func TestSearchHandlerCallerTimeoutBudget(t *testing.T) {
	h := NewSearchHandler(newStubRetrieval(&waitingEmbedder{}, &stubStore{}, &stubSource{}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=tote&timeout_ms=10", nil)
	w := performSearch(h, req)
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504 when the requested budget expires, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSearchHandlerTimeoutBodyField(t *testing.T) {
	h := NewSearchHandler(newStubRetrieval(&waitingEmbedder{}, &stubStore{}, &stubSource{}))

	body := strings.NewReader(`{"query": "tote", "timeout_ms": 10}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", body)
	req.Header.Set("Content-Type", "application/json")
	w := performSearch(h, req)
	if w.Code != http.StatusGatewayTimeout {
		t.Errorf("expected 504 from timeout_ms in the body, got %d: %s", w.Code, w.Body.String())
	}
}

func TestSearchHandlerBackendDownMapsTo503(t *testing.T) {
	h := NewSearchHandler(newStubRetrieval(
		&stubEmbedder{vector: []float32{1, 0}, ready: true},
		&stubStore{err: errors.New("index broken")},
		&stubSource{findErr: errors.New("catalog down")},
	))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search?q=tote", nil)
	w := performSearch(h, req)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHealthReportsDegraded(t *testing.T) {
	healthy := NewHealthHandler(newStubRetrieval(&stubEmbedder{ready: true}, &stubStore{}, &stubSource{}))
	degraded := NewHealthHandler(newStubRetrieval(&stubEmbedder{ready: false}, &stubStore{}, &stubSource{}))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	healthy.Health(c)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when ready, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)
	degraded.Health(c)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when degraded, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "degraded") {
		t.Errorf("expected degraded status in body, got %s", w.Body.String())
	}
}
