package service

import (
	"context"
	"testing"
	"time"

	"github.com/xponent/shopcore/internal/config"
	"github.com/xponent/shopcore/internal/domain"
)

func testQueryConfig() *config.QueryConfig {
	return &config.QueryConfig{
		CacheSize: 16,
		CacheTTL:  time.Minute,
		Vocabulary: config.VocabularyConfig{
			Categories: []string{"tote bags", "crossbody bags", "backpacks", "clutches"},
			Brands:     []string{"aldo", "guess", "michael kors"},
			Colors:     []string{"black", "red", "blue", "navy", "grey"},
			CategoryCorrections: map[string]string{
				"tote":      "tote bags",
				"totes":     "tote bags",
				"crossbody": "crossbody bags",
				"backpack":  "backpacks",
				"clutch":    "clutches",
			},
			ColorCorrections: map[string]string{
				"gray":      "grey",
				"navy blue": "navy",
			},
		},
	}
}

func hasConstraint(set *domain.ConstraintSet, want domain.Constraint) bool {
	for _, c := range set.Constraints {
		if c == want {
			return true
		}
	}
	return false
}

func TestParseConstraints(t *testing.T) {
	q := NewQueryUnderstanding(testQueryConfig())
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		want  []domain.Constraint
	}{
		{
			name:  "color category and price ceiling",
			query: "red tote bag under $50",
			want: []domain.Constraint{
				domain.Color("red"),
				domain.Category("tote bags"),
				domain.PriceMax(50),
			},
		},
		{
			name:  "price range with corrected color",
			query: "navy blue crossbody between 20 and 60",
			want: []domain.Constraint{
				domain.Color("navy"),
				domain.Category("crossbody bags"),
				domain.PriceMin(20),
				domain.PriceMax(60),
			},
		},
		{
			name:  "brand with exclusion",
			query: "guess bag without leather",
			want: []domain.Constraint{
				domain.Brand("guess"),
				domain.Exclusion("leather"),
			},
		},
		{
			name:  "price floor",
			query: "backpacks over $100",
			want: []domain.Constraint{
				domain.Category("backpacks"),
				domain.PriceMin(100),
			},
		},
		{
			name:  "bare dollar amount is a ceiling",
			query: "$30 clutch",
			want: []domain.Constraint{
				domain.PriceMax(30),
				domain.Category("clutches"),
			},
		},
		{
			name:  "multiword brand",
			query: "michael kors tote",
			want: []domain.Constraint{
				domain.Brand("michael kors"),
				domain.Category("tote bags"),
			},
		},
		{
			name:  "residual keyword survives",
			query: "something stylish for work",
			want: []domain.Constraint{
				domain.Keyword("stylish"),
				domain.Keyword("work"),
			},
		},
		{
			name:  "dollar range",
			query: "tote $25-$75",
			want: []domain.Constraint{
				domain.Category("tote bags"),
				domain.PriceMin(25),
				domain.PriceMax(75),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set := q.Parse(ctx, tt.query)
			for _, want := range tt.want {
				if !hasConstraint(set, want) {
					t.Errorf("query %q: missing constraint %s, got %v", tt.query, want, set.Constraints)
				}
			}
			if len(set.Constraints) != len(tt.want) {
				t.Errorf("query %q: expected %d constraints, got %d: %v",
					tt.query, len(tt.want), len(set.Constraints), set.Constraints)
			}
		})
	}
}

func TestParseEmptyQuery(t *testing.T) {
	q := NewQueryUnderstanding(testQueryConfig())
	set := q.Parse(context.Background(), "   ")
	if !set.Empty() {
		t.Errorf("expected empty constraint set, got %v", set.Constraints)
	}
}

func TestParseUnknownTermsAreKeywords(t *testing.T) {
	q := NewQueryUnderstanding(testQueryConfig())
	set := q.Parse(context.Background(), "vintage satchel")
	if !hasConstraint(set, domain.Keyword("vintage")) {
		t.Errorf("expected keyword constraint, got %v", set.Constraints)
	}
	if !hasConstraint(set, domain.Keyword("satchel")) {
		t.Errorf("expected unknown category to fall back to keyword, got %v", set.Constraints)
	}
}

func TestParseCaching(t *testing.T) {
	q := NewQueryUnderstanding(testQueryConfig())
	ctx := context.Background()

	first := q.Parse(ctx, "Red Tote Under $50")
	second := q.Parse(ctx, "red tote under $50")
	if first != second {
		t.Error("expected case-insensitive cache hit to return the same parse")
	}
}

func TestParseOverlappingCorrectionsDeterministic(t *testing.T) {
	cfg := testQueryConfig()
	cfg.Vocabulary.Categories = []string{"tote bags", "shoulder bags"}
	cfg.Vocabulary.CategoryCorrections = map[string]string{
		"tote":      "tote bags",
		"tote bags": "shoulder bags",
	}
	ctx := context.Background()

	// Overlapping correction keys must resolve the same way on every parse:
	// the longer key wins, no matter what order the map hands the keys out.
	// Fresh parsers each run so the cache cannot mask order differences.
	for i := 0; i < 100; i++ {
		set := NewQueryUnderstanding(cfg).Parse(ctx, "tote bags in stock")
		cats := set.Values(domain.ConstraintCategory)
		if len(cats) != 1 || cats[0] != "shoulder bags" {
			t.Fatalf("run %d: expected the longest correction to apply, got %v", i, cats)
		}
	}
}

func TestParseTightestPriceBoundWins(t *testing.T) {
	q := NewQueryUnderstanding(testQueryConfig())
	set := q.Parse(context.Background(), "under $80 under $40")

	max, ok := set.MaxPrice()
	if !ok {
		t.Fatal("expected a max price bound")
	}
	if max != 40 {
		t.Errorf("expected tightest bound 40, got %v", max)
	}
}
