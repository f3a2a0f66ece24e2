package domain

import (
	"fmt"
	"strings"
)

// ConstraintKind identifies the kind of a parsed query constraint.
type ConstraintKind string

const (
	ConstraintCategory  ConstraintKind = "category"
	ConstraintBrand     ConstraintKind = "brand"
	ConstraintColor     ConstraintKind = "color"
	ConstraintPriceMax  ConstraintKind = "price_max"
	ConstraintPriceMin  ConstraintKind = "price_min"
	ConstraintKeyword   ConstraintKind = "keyword"
	ConstraintExclusion ConstraintKind = "exclusion"
)

// Constraint is a single structured filter or scoring hint extracted from a
// natural-language query. It is a tagged variant: Kind selects whether Text
// or Number carries the value.
type Constraint struct {
	Kind   ConstraintKind `json:"kind"`
	Text   string         `json:"text,omitempty"`
	Number float64        `json:"number,omitempty"`
}

// Category creates a category constraint.
func Category(name string) Constraint {
	return Constraint{Kind: ConstraintCategory, Text: name}
}

// Brand creates a brand constraint.
func Brand(name string) Constraint {
	return Constraint{Kind: ConstraintBrand, Text: name}
}

// Color creates a color constraint.
func Color(name string) Constraint {
	return Constraint{Kind: ConstraintColor, Text: name}
}

// PriceMax creates an upper price bound constraint.
func PriceMax(v float64) Constraint {
	return Constraint{Kind: ConstraintPriceMax, Number: v}
}

// PriceMin creates a lower price bound constraint.
func PriceMin(v float64) Constraint {
	return Constraint{Kind: ConstraintPriceMin, Number: v}
}

// Keyword creates a free-text keyword constraint.
func Keyword(term string) Constraint {
	return Constraint{Kind: ConstraintKeyword, Text: term}
}

// Exclusion creates a negative constraint ("no leather", "without zips").
func Exclusion(term string) Constraint {
	return Constraint{Kind: ConstraintExclusion, Text: term}
}

// Hard reports whether the constraint is a hard filter. Hard constraints
// exclude candidates entirely; soft constraints only contribute to scoring.
func (c Constraint) Hard() bool {
	switch c.Kind {
	case ConstraintPriceMax, ConstraintPriceMin, ConstraintExclusion:
		return true
	}
	return false
}

// String returns a short human-readable form used in explainability records.
func (c Constraint) String() string {
	switch c.Kind {
	case ConstraintPriceMax:
		return fmt.Sprintf("price<=%.2f", c.Number)
	case ConstraintPriceMin:
		return fmt.Sprintf("price>=%.2f", c.Number)
	default:
		return fmt.Sprintf("%s:%s", c.Kind, c.Text)
	}
}

// ConstraintSet is the parsed form of a raw query. An empty set is a valid
// parse result (pure similarity search); it is never an error.
type ConstraintSet struct {
	Query       string       `json:"query"`
	Constraints []Constraint `json:"constraints"`
}

// Empty reports whether no constraints were extracted.
func (s *ConstraintSet) Empty() bool {
	return s == nil || len(s.Constraints) == 0
}

// Add appends a constraint, skipping exact duplicates.
func (s *ConstraintSet) Add(c Constraint) {
	for _, existing := range s.Constraints {
		if existing == c {
			return
		}
	}
	s.Constraints = append(s.Constraints, c)
}

// OfKind returns all constraints of the given kind.
func (s *ConstraintSet) OfKind(kind ConstraintKind) []Constraint {
	if s == nil {
		return nil
	}
	var out []Constraint
	for _, c := range s.Constraints {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// Values returns the lowercased text values of all constraints of a kind.
func (s *ConstraintSet) Values(kind ConstraintKind) []string {
	cons := s.OfKind(kind)
	out := make([]string, 0, len(cons))
	for _, c := range cons {
		out = append(out, strings.ToLower(c.Text))
	}
	return out
}

// MaxPrice returns the tightest upper price bound, if any.
func (s *ConstraintSet) MaxPrice() (float64, bool) {
	found := false
	best := 0.0
	for _, c := range s.OfKind(ConstraintPriceMax) {
		if !found || c.Number < best {
			best = c.Number
			found = true
		}
	}
	return best, found
}

// MinPrice returns the tightest lower price bound, if any.
func (s *ConstraintSet) MinPrice() (float64, bool) {
	found := false
	best := 0.0
	for _, c := range s.OfKind(ConstraintPriceMin) {
		if !found || c.Number > best {
			best = c.Number
			found = true
		}
	}
	return best, found
}

// Soft returns the scoring (non-hard) constraints.
func (s *ConstraintSet) Soft() []Constraint {
	if s == nil {
		return nil
	}
	var out []Constraint
	for _, c := range s.Constraints {
		if !c.Hard() {
			out = append(out, c)
		}
	}
	return out
}
