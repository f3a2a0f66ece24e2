package service

import (
	"sort"
	"strings"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
)

// Candidate pairs a product with its similarity evidence ahead of ranking.
type Candidate struct {
	Product    *domain.Product
	Similarity float64
	Degraded   bool
}

// NeutralSimilarity is used when no embedding evidence exists, such as on
// the degraded constraint-only path. It sits mid-scale so constraint and
// signal scores decide the order.
const NeutralSimilarity = 0.5

// NormalizeSimilarity maps cosine distance onto [0, 1] where 1 is identical.
// Cosine distance ranges over [0, 2]; opposite vectors land at 0.
func NormalizeSimilarity(distance float32) float64 {
	sim := (2 - float64(distance)) / 2
	if sim < 0 {
		return 0
	}
	if sim > 1 {
		return 1
	}
	return sim
}

// Ranker fuses vector similarity, constraint satisfaction, and business
// signals into a single score per candidate. Hard constraints (price bounds,
// exclusions) remove candidates outright; soft constraints only move scores.
type Ranker struct {
	simWeight        float64
	constraintWeight float64
	signalWeight     float64
}

// NewRanker creates a ranker with the configured fusion weights.
// Parameters:
//   - cfg: fusion weights; non-positive totals fall back to defaults.
// Returns:
//   - *Ranker: ready ranker.
func NewRanker(cfg *config.RankingConfig) *Ranker {
	r := &Ranker{
		simWeight:        cfg.SimilarityWeight,
		constraintWeight: cfg.ConstraintWeight,
		signalWeight:     cfg.SignalWeight,
	}
	if r.simWeight+r.constraintWeight+r.signalWeight <= 0 {
		r.simWeight, r.constraintWeight, r.signalWeight = 0.5, 0.35, 0.15
	}
	return r
}

// Rank filters and orders candidates.
// Parameters:
//   - candidates: products with similarity evidence.
//   - cs: parsed query constraints; nil means pure similarity ranking.
//   - limit: maximum results; non-positive means unlimited.
// Returns:
//   - []domain.RankedCandidate: ordered by descending fused score, ties by
//     descending constraint score then ascending ID. Constraint satisfaction
//     wins ties because it is exact evidence; similarity is approximate.
func (r *Ranker) Rank(candidates []Candidate, cs *domain.ConstraintSet, limit int) []domain.RankedCandidate {
	ranked := make([]domain.RankedCandidate, 0, len(candidates))

	for _, c := range candidates {
		if c.Product == nil {
			continue
		}
		if !passesHardConstraints(c.Product, cs) {
			continue
		}

		constraintScore, matched, unmatched := scoreConstraints(c.Product, cs)
		signalScore := scoreSignals(c.Product)
		fused := r.simWeight*c.Similarity +
			r.constraintWeight*constraintScore +
			r.signalWeight*signalScore

		ranked = append(ranked, domain.RankedCandidate{
			ID:              c.Product.ID,
			Similarity:      c.Similarity,
			ConstraintScore: constraintScore,
			SignalScore:     signalScore,
			FusedScore:      fused,
			Matched:         matched,
			Unmatched:       unmatched,
			Degraded:        c.Degraded,
		})
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].FusedScore != ranked[j].FusedScore {
			return ranked[i].FusedScore > ranked[j].FusedScore
		}
		if ranked[i].ConstraintScore != ranked[j].ConstraintScore {
			return ranked[i].ConstraintScore > ranked[j].ConstraintScore
		}
		return ranked[i].ID < ranked[j].ID
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// passesHardConstraints applies price bounds and exclusions. A product with
// no price passes price bounds only when no bound is set; a bounded query
// cannot vouch for an unpriced product.
func passesHardConstraints(p *domain.Product, cs *domain.ConstraintSet) bool {
	if cs.Empty() {
		return true
	}

	if max, ok := cs.MaxPrice(); ok {
		if p.Price == nil || *p.Price > max {
			return false
		}
	}
	if min, ok := cs.MinPrice(); ok {
		if p.Price == nil || *p.Price < min {
			return false
		}
	}

	if exclusions := cs.Values(domain.ConstraintExclusion); len(exclusions) > 0 {
		haystack := productText(p)
		for _, term := range exclusions {
			if strings.Contains(haystack, term) {
				return false
			}
		}
	}
	return true
}

// scoreConstraints returns the fraction of soft constraints the product
// satisfies, with the matched and unmatched constraint descriptions for
// explainability. No soft constraints yields a neutral full score.
func scoreConstraints(p *domain.Product, cs *domain.ConstraintSet) (float64, []string, []string) {
	soft := cs.Soft()
	if len(soft) == 0 {
		return 1, nil, nil
	}

	var matched, unmatched []string
	hits := 0
	for _, c := range soft {
		if constraintMatches(p, c) {
			matched = append(matched, c.String())
			hits++
		} else {
			unmatched = append(unmatched, c.String())
		}
	}
	return float64(hits) / float64(len(soft)), matched, unmatched
}

func constraintMatches(p *domain.Product, c domain.Constraint) bool {
	want := strings.ToLower(c.Text)
	switch c.Kind {
	case domain.ConstraintCategory:
		return strings.ToLower(p.Category) == want
	case domain.ConstraintBrand:
		return strings.ToLower(p.Brand) == want
	case domain.ConstraintColor:
		return strings.ToLower(p.Color) == want
	case domain.ConstraintKeyword:
		return strings.Contains(productText(p), want)
	}
	return false
}

func productText(p *domain.Product) string {
	parts := []string{p.Name, p.Description, p.Material, p.Color}
	parts = append(parts, p.Features...)
	return strings.ToLower(strings.Join(parts, " "))
}

// scoreSignals scores catalog-side quality signals. Stock availability
// dominates; a priced listing gets a small boost over an unpriced one.
func scoreSignals(p *domain.Product) float64 {
	score := 0.0
	if p.InStock() {
		score += 0.8
	}
	if p.Price != nil {
		score += 0.2
	}
	return score
}
