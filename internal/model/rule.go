package model

import "time"

// MatchKind selects how a rule pattern is evaluated against target text.
type MatchKind string

// Match kind constants.
const (
	// MatchContains splits the pattern on "|" and matches if any token is a
	// substring of the normalized target.
	MatchContains MatchKind = "contains"
	// MatchRegex searches the pattern as a regular expression.
	MatchRegex MatchKind = "regex"
)

// Valid reports whether k is one of the known match kinds.
func (k MatchKind) Valid() bool {
	return k == MatchContains || k == MatchRegex
}

// CategoryRule maps a text pattern to a category. Rules are evaluated
// first-match-wins, ordered by (priority ascending, id ascending).
type CategoryRule struct {
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Name       string    `json:"name,omitempty"`
	Pattern    string    `json:"pattern"`
	MatchKind  MatchKind `json:"match_kind"`
	ID         int64     `json:"id"`
	CategoryID int64     `json:"category_id"`
	Priority   int       `json:"priority"`
	Confidence float64   `json:"confidence"`
	IsActive   bool      `json:"is_active"`
}
