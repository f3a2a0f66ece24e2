package service

import (
	"math"
	"testing"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
)

func defaultRanker() *Ranker {
	return NewRanker(&config.RankingConfig{
		SimilarityWeight: 0.5,
		ConstraintWeight: 0.35,
		SignalWeight:     0.15,
	})
}

func product(id string, price *float64, opts func(*domain.Product)) *domain.Product {
	p := &domain.Product{
		ID:    id,
		Name:  "product " + id,
		Price: price,
	}
	if opts != nil {
		opts(p)
	}
	return p
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func TestNormalizeSimilarity(t *testing.T) {
	tests := []struct {
		distance float32
		want     float64
	}{
		{0, 1},
		{1, 0.5},
		{2, 0},
		{-0.1, 1},  // clamp above
		{2.5, 0},   // clamp below
	}
	for _, tt := range tests {
		if got := NormalizeSimilarity(tt.distance); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("NormalizeSimilarity(%v) = %v, want %v", tt.distance, got, tt.want)
		}
	}
}

func TestRankHardPriceFilter(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "under 50"}
	cs.Add(domain.PriceMax(50))

	candidates := []Candidate{
		{Product: product("cheap", floatPtr(30), nil), Similarity: 0.9},
		{Product: product("pricey", floatPtr(80), nil), Similarity: 0.99},
		{Product: product("unpriced", nil, nil), Similarity: 0.95},
	}

	ranked := r.Rank(candidates, cs, 10)
	if len(ranked) != 1 {
		t.Fatalf("expected only the in-budget product, got %d results", len(ranked))
	}
	if ranked[0].ID != "cheap" {
		t.Errorf("expected cheap, got %s", ranked[0].ID)
	}
}

func TestRankExclusionFilter(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "no leather"}
	cs.Add(domain.Exclusion("leather"))

	candidates := []Candidate{
		{Product: product("canvas", nil, func(p *domain.Product) { p.Material = "canvas" }), Similarity: 0.5},
		{Product: product("hide", nil, func(p *domain.Product) { p.Material = "Leather" }), Similarity: 0.9},
		{Product: product("desc", nil, func(p *domain.Product) { p.Description = "genuine leather finish" }), Similarity: 0.9},
	}

	ranked := r.Rank(candidates, cs, 10)
	if len(ranked) != 1 || ranked[0].ID != "canvas" {
		t.Fatalf("expected only canvas to survive exclusion, got %v", ranked)
	}
}

func TestRankSoftConstraintScoring(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "red tote"}
	cs.Add(domain.Category("tote bags"))
	cs.Add(domain.Color("red"))

	full := product("full", floatPtr(40), func(p *domain.Product) {
		p.Category = "Tote Bags"
		p.Color = "Red"
	})
	half := product("half", floatPtr(40), func(p *domain.Product) {
		p.Category = "tote bags"
		p.Color = "black"
	})

	ranked := r.Rank([]Candidate{
		{Product: full, Similarity: 0.5},
		{Product: half, Similarity: 0.5},
	}, cs, 10)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if ranked[0].ID != "full" {
		t.Errorf("expected full match first, got %s", ranked[0].ID)
	}
	if ranked[0].ConstraintScore != 1.0 {
		t.Errorf("expected constraint score 1.0, got %v", ranked[0].ConstraintScore)
	}
	if ranked[1].ConstraintScore != 0.5 {
		t.Errorf("expected constraint score 0.5, got %v", ranked[1].ConstraintScore)
	}
	if len(ranked[1].Matched) != 1 || len(ranked[1].Unmatched) != 1 {
		t.Errorf("expected one matched and one unmatched constraint, got %v / %v",
			ranked[1].Matched, ranked[1].Unmatched)
	}
}

func TestRankFusedScoreMath(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "red"}
	cs.Add(domain.Color("red"))

	p := product("p", floatPtr(20), func(p *domain.Product) {
		p.Color = "red"
		p.Stock = intPtr(3)
	})
	ranked := r.Rank([]Candidate{{Product: p, Similarity: 0.8}}, cs, 1)
	if len(ranked) != 1 {
		t.Fatalf("expected 1 result, got %d", len(ranked))
	}

	// in stock (0.8) + priced (0.2) = 1.0 signal
	want := 0.5*0.8 + 0.35*1.0 + 0.15*1.0
	if math.Abs(ranked[0].FusedScore-want) > 1e-9 {
		t.Errorf("fused score = %v, want %v", ranked[0].FusedScore, want)
	}
}

func TestRankSimilarityDominatesWithoutConstraints(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "anything"}

	ranked := r.Rank([]Candidate{
		{Product: product("far", floatPtr(10), nil), Similarity: 0.2},
		{Product: product("near", floatPtr(10), nil), Similarity: 0.9},
	}, cs, 10)

	if ranked[0].ID != "near" {
		t.Errorf("expected most similar first, got %s", ranked[0].ID)
	}
	if ranked[0].ConstraintScore != 1.0 {
		t.Errorf("no soft constraints should score neutral 1.0, got %v", ranked[0].ConstraintScore)
	}
}

func TestRankTiesBrokenByID(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "x"}

	ranked := r.Rank([]Candidate{
		{Product: product("b", floatPtr(10), nil), Similarity: 0.5},
		{Product: product("a", floatPtr(10), nil), Similarity: 0.5},
	}, cs, 10)

	if ranked[0].ID != "a" || ranked[1].ID != "b" {
		t.Errorf("expected tie broken by ascending ID, got %s then %s", ranked[0].ID, ranked[1].ID)
	}
}

func TestRankTiesPreferConstraintMatch(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "red"}
	cs.Add(domain.Color("red"))

	// Both fuse to 0.35: one entirely from similarity, one entirely from
	// constraint satisfaction. Exact constraint evidence must outrank the
	// approximate similarity signal, regardless of ID order.
	exact := product("zz-exact", nil, func(p *domain.Product) {
		p.Color = "red"
		p.Stock = intPtr(0)
	})
	similar := product("aa-similar", nil, func(p *domain.Product) {
		p.Color = "blue"
		p.Stock = intPtr(0)
	})

	ranked := r.Rank([]Candidate{
		{Product: similar, Similarity: 0.7},
		{Product: exact, Similarity: 0.0},
	}, cs, 10)

	if len(ranked) != 2 {
		t.Fatalf("expected 2 results, got %d", len(ranked))
	}
	if math.Abs(ranked[0].FusedScore-ranked[1].FusedScore) > 1e-9 {
		t.Fatalf("expected a fused-score tie, got %v vs %v", ranked[0].FusedScore, ranked[1].FusedScore)
	}
	if ranked[0].ID != "zz-exact" {
		t.Errorf("expected constraint match to win the tie, got %s first", ranked[0].ID)
	}
}

func TestRankLimit(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "x"}

	candidates := make([]Candidate, 5)
	for i := range candidates {
		candidates[i] = Candidate{
			Product:    product(string(rune('a'+i)), floatPtr(10), nil),
			Similarity: float64(i) / 10,
		}
	}
	ranked := r.Rank(candidates, cs, 2)
	if len(ranked) != 2 {
		t.Errorf("expected limit of 2, got %d", len(ranked))
	}
}

func TestRankOutOfStockPenalty(t *testing.T) {
	r := defaultRanker()
	cs := &domain.ConstraintSet{Query: "x"}

	ranked := r.Rank([]Candidate{
		{Product: product("sold-out", floatPtr(10), func(p *domain.Product) { p.Stock = intPtr(0) }), Similarity: 0.5},
		{Product: product("stocked", floatPtr(10), func(p *domain.Product) { p.Stock = intPtr(5) }), Similarity: 0.5},
	}, cs, 10)

	if ranked[0].ID != "stocked" {
		t.Errorf("expected in-stock product first, got %s", ranked[0].ID)
	}
}
