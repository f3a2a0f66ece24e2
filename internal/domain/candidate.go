package domain

// RankedCandidate is a per-query scoring result. Candidates are created fresh
// for every search and never persisted.
type RankedCandidate struct {
	ID              string   `json:"id"`
	Similarity      float64  `json:"similarity"`
	ConstraintScore float64  `json:"constraint_score"`
	SignalScore     float64  `json:"signal_score"`
	FusedScore      float64  `json:"fused_score"`
	Matched         []string `json:"matched_constraints,omitempty"`
	Unmatched       []string `json:"unmatched_constraints,omitempty"`
	Degraded        bool     `json:"degraded,omitempty"`
}
