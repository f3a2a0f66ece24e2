package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
	"github.com/xponent/shopcore/internal/index"
	"github.com/xponent/shopcore/internal/logger"
)

// ProductSource supplies product records for candidate hydration and for the
// degraded constraint-only path. The catalog repository satisfies it.
type ProductSource interface {
	GetByIDs(ctx context.Context, ids []string) ([]*domain.Product, error)
	FindByConstraints(ctx context.Context, cs *domain.ConstraintSet, limit int) ([]*domain.Product, error)
}

// SearchResultItem is one scored product in a search response.
type SearchResultItem struct {
	Product         *domain.Product `json:"product"`
	Score           float64         `json:"score"`
	Similarity      float64         `json:"similarity"`
	ConstraintScore float64         `json:"constraint_score"`
	SignalScore     float64         `json:"signal_score"`
	Matched         []string        `json:"matched,omitempty"`
	Unmatched       []string        `json:"unmatched,omitempty"`
}

// SearchResponse is the full result of a retrieval run.
type SearchResponse struct {
	Query       string             `json:"query"`
	Constraints []string           `json:"constraints,omitempty"`
	Degraded    bool               `json:"degraded"`
	Results     []SearchResultItem `json:"results"`
	TookMs      int64              `json:"took_ms"`
}

// RetrievalService orchestrates the search pipeline: parse the query, embed
// it, gather candidates from the vector index, hydrate product records, and
// rank. When the embedding provider is down it degrades to constraint-only
// catalog filtering instead of failing.
type RetrievalService struct {
	understanding *QueryUnderstanding
	embedder      EmbeddingProvider
	store         index.Store
	products      ProductSource
	ranker        *Ranker

	defaultK     int
	maxK         int
	multiplier   int
	embedTimeout time.Duration
	indexTimeout time.Duration
}

// NewRetrievalService wires the retrieval pipeline.
// Parameters:
//   - cfg: search limits and stage timeouts.
//   - understanding: query parser.
//   - embedder: embedding provider.
//   - store: vector index.
//   - products: catalog repository.
//   - ranker: score fusion.
// Returns:
//   - *RetrievalService: ready orchestrator.
func NewRetrievalService(
	cfg *config.SearchConfig,
	understanding *QueryUnderstanding,
	embedder EmbeddingProvider,
	store index.Store,
	products ProductSource,
	ranker *Ranker,
) *RetrievalService {
	s := &RetrievalService{
		understanding: understanding,
		embedder:      embedder,
		store:         store,
		products:      products,
		ranker:        ranker,
		defaultK:      cfg.DefaultK,
		maxK:          cfg.MaxK,
		multiplier:    cfg.CandidateMultiplier,
		embedTimeout:  cfg.EmbedTimeout,
		indexTimeout:  cfg.IndexTimeout,
	}
	if s.defaultK <= 0 {
		s.defaultK = 6
	}
	if s.maxK <= 0 {
		s.maxK = 50
	}
	if s.multiplier <= 0 {
		s.multiplier = 5
	}
	return s
}

// Search runs the full retrieval pipeline.
// Parameters:
//   - ctx: request context.
//   - query: raw user query.
//   - k: requested result count; clamped to [1, maxK], 0 means default.
// Returns:
//   - *SearchResponse: ranked results; Degraded is true on the fallback path.
//   - error: ErrRetrievalTimeout on deadline, ErrIndexUnavailable when no
//     candidate source could serve.
func (s *RetrievalService) Search(ctx context.Context, query string, k int) (*SearchResponse, error) {
	start := time.Now()

	if k <= 0 {
		k = s.defaultK
	}
	if k > s.maxK {
		k = s.maxK
	}

	cs := s.understanding.Parse(ctx, query)
	ctx = logger.WithField(ctx, "constraints", len(cs.Constraints))

	candidates, degraded, err := s.gatherCandidates(ctx, cs, k)
	if err != nil {
		return nil, err
	}

	ranked := s.ranker.Rank(candidates, cs, k)
	items, err := s.hydrate(ctx, candidates, ranked)
	if err != nil {
		return nil, err
	}

	constraints := make([]string, 0, len(cs.Constraints))
	for _, c := range cs.Constraints {
		constraints = append(constraints, c.String())
	}

	resp := &SearchResponse{
		Query:       query,
		Constraints: constraints,
		Degraded:    degraded,
		Results:     items,
		TookMs:      time.Since(start).Milliseconds(),
	}

	logger.With(logger.Fields{"degraded": degraded}).
		WithDuration(resp.TookMs).
		WithCount(len(items)).
		Info(ctx, "search completed")

	return resp, nil
}

// gatherCandidates returns scored candidates from the vector path, or from
// the constraint-only catalog path when the embedder is unavailable.
func (s *RetrievalService) gatherCandidates(ctx context.Context, cs *domain.ConstraintSet, k int) ([]Candidate, bool, error) {
	vector, err := s.embedQuery(ctx, cs.Query)
	if err != nil {
		if errors.Is(err, domain.ErrRetrievalTimeout) {
			return nil, false, err
		}
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			logger.CtxWarn(ctx, "embedding unavailable, degrading to constraint-only search: %v", err)
			candidates, ferr := s.fallbackCandidates(ctx, cs, k)
			if ferr != nil {
				return nil, false, ferr
			}
			return candidates, true, nil
		}
		return nil, false, err
	}

	matches, err := s.queryIndex(ctx, vector, k*s.multiplier, cs)
	if err != nil {
		if errors.Is(err, domain.ErrRetrievalTimeout) {
			return nil, false, err
		}
		logger.CtxWarn(ctx, "index query failed, degrading to constraint-only search: %v", err)
		candidates, ferr := s.fallbackCandidates(ctx, cs, k)
		if ferr != nil {
			return nil, false, fmt.Errorf("%w: %v", domain.ErrIndexUnavailable, err)
		}
		return candidates, true, nil
	}

	ids := make([]string, len(matches))
	simByID := make(map[string]float64, len(matches))
	for i, m := range matches {
		ids[i] = m.ID
		simByID[m.ID] = NormalizeSimilarity(m.Distance)
	}

	products, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, false, err
	}

	candidates := make([]Candidate, 0, len(products))
	for _, p := range products {
		candidates = append(candidates, Candidate{
			Product:    p,
			Similarity: simByID[p.ID],
		})
	}
	return candidates, false, nil
}

func (s *RetrievalService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedCtx := ctx
	if s.embedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, s.embedTimeout)
		defer cancel()
	}

	vector, err := s.embedder.Embed(embedCtx, query)
	if err != nil {
		// A parent-context deadline is the caller's timeout; a stage
		// deadline with a live parent means the provider was too slow,
		// which reads as unavailability.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: embedding stage: %v", domain.ErrRetrievalTimeout, err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embed timeout", domain.ErrEmbeddingUnavailable)
		}
		return nil, err
	}
	return vector, nil
}

func (s *RetrievalService) queryIndex(ctx context.Context, vector []float32, limit int, cs *domain.ConstraintSet) ([]index.Match, error) {
	queryCtx := ctx
	if s.indexTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, s.indexTimeout)
		defer cancel()
	}

	// Single-valued category and brand constraints can narrow the scan
	// inside the index. Multi-valued ones stay with the ranker.
	var filter *index.Filter
	if cats := cs.Values(domain.ConstraintCategory); len(cats) == 1 {
		filter = &index.Filter{Category: &cats[0]}
	}
	if brands := cs.Values(domain.ConstraintBrand); len(brands) == 1 {
		if filter == nil {
			filter = &index.Filter{}
		}
		filter.Brand = &brands[0]
	}

	matches, err := s.store.Query(queryCtx, vector, limit, filter)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return nil, fmt.Errorf("%w: index stage: %v", domain.ErrRetrievalTimeout, err)
		}
		return nil, err
	}
	return matches, nil
}

// fallbackCandidates serves the degraded path from structured catalog
// filters alone, with neutral similarity so ranking stays meaningful.
func (s *RetrievalService) fallbackCandidates(ctx context.Context, cs *domain.ConstraintSet, k int) ([]Candidate, error) {
	products, err := s.products.FindByConstraints(ctx, cs, k*s.multiplier)
	if err != nil {
		return nil, fmt.Errorf("%w: catalog fallback: %v", domain.ErrIndexUnavailable, err)
	}

	candidates := make([]Candidate, 0, len(products))
	for _, p := range products {
		candidates = append(candidates, Candidate{
			Product:    p,
			Similarity: NeutralSimilarity,
			Degraded:   true,
		})
	}
	return candidates, nil
}

func (s *RetrievalService) hydrate(ctx context.Context, candidates []Candidate, ranked []domain.RankedCandidate) ([]SearchResultItem, error) {
	byID := make(map[string]*domain.Product, len(candidates))
	for _, c := range candidates {
		if c.Product != nil {
			byID[c.Product.ID] = c.Product
		}
	}

	items := make([]SearchResultItem, 0, len(ranked))
	for _, r := range ranked {
		p, ok := byID[r.ID]
		if !ok {
			continue
		}
		items = append(items, SearchResultItem{
			Product:         p,
			Score:           r.FusedScore,
			Similarity:      r.Similarity,
			ConstraintScore: r.ConstraintScore,
			SignalScore:     r.SignalScore,
			Matched:         r.Matched,
			Unmatched:       r.Unmatched,
		})
	}
	return items, nil
}

// Ready reports whether the full vector search path can serve.
func (s *RetrievalService) Ready() bool {
	return s.store.Ready() && s.embedder.Ready()
}

// IndexSize returns the number of indexed vectors.
func (s *RetrievalService) IndexSize() int {
	return s.store.Len()
}
