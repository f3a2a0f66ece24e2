package domain

import "testing"

func TestConstraintSetAddDeduplicates(t *testing.T) {
	set := &ConstraintSet{Query: "red red"}
	set.Add(Color("red"))
	set.Add(Color("red"))
	if len(set.Constraints) != 1 {
		t.Errorf("expected duplicate constraint to be dropped, got %d", len(set.Constraints))
	}
}

func TestConstraintHardness(t *testing.T) {
	tests := []struct {
		c    Constraint
		hard bool
	}{
		{PriceMax(50), true},
		{PriceMin(10), true},
		{Exclusion("leather"), true},
		{Category("tote bags"), false},
		{Brand("aldo"), false},
		{Color("red"), false},
		{Keyword("work"), false},
	}
	for _, tt := range tests {
		if got := tt.c.Hard(); got != tt.hard {
			t.Errorf("%s: Hard() = %v, want %v", tt.c, got, tt.hard)
		}
	}
}

func TestTightestBoundsWin(t *testing.T) {
	set := &ConstraintSet{}
	set.Add(PriceMax(100))
	set.Add(PriceMax(60))
	set.Add(PriceMin(10))
	set.Add(PriceMin(25))

	if max, ok := set.MaxPrice(); !ok || max != 60 {
		t.Errorf("MaxPrice = %v, %v; want 60, true", max, ok)
	}
	if min, ok := set.MinPrice(); !ok || min != 25 {
		t.Errorf("MinPrice = %v, %v; want 25, true", min, ok)
	}
}

func TestEmptySetQueries(t *testing.T) {
	var set *ConstraintSet
	if !set.Empty() {
		t.Error("nil set should be empty")
	}
	if _, ok := set.MaxPrice(); ok {
		t.Error("nil set should have no price bound")
	}
	if vals := set.Values(ConstraintCategory); len(vals) != 0 {
		t.Errorf("nil set should have no values, got %v", vals)
	}
}
