// Package rules evaluates user-defined category rules against receipt text.
package rules

import (
	"context"
	"regexp"
	"strings"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/textnorm"
)

// Source supplies the active rules in evaluation order: priority ascending,
// then id ascending, so lower priority numbers win and ties go to the
// earlier-created rule.
type Source interface {
	GetActiveRules(ctx context.Context) ([]model.CategoryRule, error)
}

// Matcher evaluates rules first-match-wins against normalized candidate text.
type Matcher struct {
	source Source
}

// NewMatcher creates a matcher backed by the given rule source.
func NewMatcher(source Source) *Matcher {
	return &Matcher{source: source}
}

// FindMatch normalizes every non-empty candidate, joins them into one target
// string, and returns the first active rule whose pattern matches it. Rules
// are re-fetched on every call; they may change between invocations. Returns
// (nil, nil) when no usable text or no rule matches.
func (m *Matcher) FindMatch(ctx context.Context, candidates []string) (*model.CategoryRule, error) {
	target := buildTarget(candidates)
	if target == "" {
		return nil, nil
	}

	rs, err := m.source.GetActiveRules(ctx)
	if err != nil {
		return nil, err
	}

	for i := range rs {
		if matches(&rs[i], target) {
			return &rs[i], nil
		}
	}
	return nil, nil
}

// buildTarget joins the normalized non-empty candidates with single spaces.
func buildTarget(candidates []string) string {
	parts := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if n := textnorm.Normalize(c); n != "" {
			parts = append(parts, n)
		}
	}
	return strings.Join(parts, " ")
}

// matches evaluates one rule against the normalized target.
func matches(rule *model.CategoryRule, target string) bool {
	switch rule.MatchKind {
	case model.MatchContains:
		for _, token := range strings.Split(rule.Pattern, "|") {
			if t := textnorm.Normalize(token); t != "" && strings.Contains(target, t) {
				return true
			}
		}
		return false
	case model.MatchRegex:
		// The pattern is applied as written against the normalized target.
		// A pattern that no longer compiles is a non-match, not an abort;
		// validity is enforced at rule creation.
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return false
		}
		return re.MatchString(target)
	}
	return false
}
