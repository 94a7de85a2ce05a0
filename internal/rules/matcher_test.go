package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

// stubSource serves a fixed rule slice and counts fetches.
type stubSource struct {
	err     error
	rules   []model.CategoryRule
	fetches int
}

func (s *stubSource) GetActiveRules(_ context.Context) ([]model.CategoryRule, error) {
	s.fetches++
	return s.rules, s.err
}

func TestFindMatchPriorityOrder(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		{ID: 1, Pattern: "coffee|tea", MatchKind: model.MatchContains, CategoryID: 10, Priority: 10, IsActive: true},
		{ID: 2, Pattern: ".*", MatchKind: model.MatchRegex, CategoryID: 20, Priority: 20, IsActive: true},
	}}
	m := NewMatcher(src)

	rule, err := m.FindMatch(context.Background(), []string{"Coffee Shop"})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, int64(1), rule.ID, "the priority-10 rule should win over the catch-all")
}

func TestFindMatchCatchAllWhenNothingElse(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		{ID: 1, Pattern: "coffee|tea", MatchKind: model.MatchContains, CategoryID: 10, Priority: 10, IsActive: true},
		{ID: 2, Pattern: ".*", MatchKind: model.MatchRegex, CategoryID: 20, Priority: 20, IsActive: true},
	}}
	m := NewMatcher(src)

	rule, err := m.FindMatch(context.Background(), []string{"Hardware Store"})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, int64(2), rule.ID)
}

func TestFindMatchNoUsableText(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		{ID: 1, Pattern: ".*", MatchKind: model.MatchRegex, CategoryID: 10, Priority: 10, IsActive: true},
	}}
	m := NewMatcher(src)

	tests := []struct {
		name       string
		candidates []string
	}{
		{"nil slice", nil},
		{"empty slice", []string{}},
		{"all-empty candidates", []string{"", "", ""}},
		{"whitespace only", []string{"   ", "\t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := m.FindMatch(context.Background(), tt.candidates)
			require.NoError(t, err)
			assert.Nil(t, rule)
		})
	}

	assert.Zero(t, src.fetches, "no usable text should return before fetching rules")
}

func TestFindMatchNoActiveRules(t *testing.T) {
	m := NewMatcher(&stubSource{})

	rule, err := m.FindMatch(context.Background(), []string{"coffee"})
	require.NoError(t, err)
	assert.Nil(t, rule)
}

func TestFindMatchNormalizesCandidatesAndTokens(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		{ID: 1, Pattern: "コーヒー", MatchKind: model.MatchContains, CategoryID: 10, Priority: 10, IsActive: true},
	}}
	m := NewMatcher(src)

	// Half-width katakana candidate should meet the full-width katakana token
	// after both fold to hiragana.
	rule, err := m.FindMatch(context.Background(), []string{"ｺｰﾋｰ ｾｯﾄ"})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, int64(1), rule.ID)
}

func TestFindMatchJoinsCandidates(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		{ID: 1, Pattern: "shop tea", MatchKind: model.MatchContains, CategoryID: 10, Priority: 10, IsActive: true},
	}}
	m := NewMatcher(src)

	// "shop tea" spans the join boundary between two candidates.
	rule, err := m.FindMatch(context.Background(), []string{"Coffee Shop", "", "Tea Set"})
	require.NoError(t, err)
	require.NotNil(t, rule)
}

func TestFindMatchMalformedRegexSkipped(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		{ID: 1, Pattern: "([", MatchKind: model.MatchRegex, CategoryID: 10, Priority: 10, IsActive: true},
		{ID: 2, Pattern: "coffee", MatchKind: model.MatchContains, CategoryID: 20, Priority: 20, IsActive: true},
	}}
	m := NewMatcher(src)

	rule, err := m.FindMatch(context.Background(), []string{"coffee"})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, int64(2), rule.ID, "a malformed pattern is a non-match, not an abort")
}

func TestFindMatchRegexAgainstNormalizedTarget(t *testing.T) {
	src := &stubSource{rules: []model.CategoryRule{
		// Uppercase pattern against a lowered target: applied as written, so it
		// never matches. This asymmetry is the persisted-rule contract.
		{ID: 1, Pattern: "COFFEE", MatchKind: model.MatchRegex, CategoryID: 10, Priority: 10, IsActive: true},
		{ID: 2, Pattern: "coffee", MatchKind: model.MatchRegex, CategoryID: 20, Priority: 20, IsActive: true},
	}}
	m := NewMatcher(src)

	rule, err := m.FindMatch(context.Background(), []string{"Coffee Shop"})
	require.NoError(t, err)
	require.NotNil(t, rule)
	assert.Equal(t, int64(2), rule.ID)
}

func TestFindMatchSourceError(t *testing.T) {
	src := &stubSource{err: errors.New("db closed")}
	m := NewMatcher(src)

	rule, err := m.FindMatch(context.Background(), []string{"coffee"})
	assert.Error(t, err)
	assert.Nil(t, rule)
}

func TestValidatePattern(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		kind    model.MatchKind
		wantErr bool
	}{
		{"valid contains", "coffee|tea", model.MatchContains, false},
		{"contains with empty tokens", "|||", model.MatchContains, true},
		{"empty pattern", "", model.MatchContains, true},
		{"valid regex", `^コーヒー.*\d+$`, model.MatchRegex, false},
		{"invalid regex", "([", model.MatchRegex, true},
		{"unknown kind", "x", model.MatchKind("glob"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePattern(tt.pattern, tt.kind)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
