package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/textnorm"
)

// ValidatePattern checks that a pattern is syntactically valid for its match
// kind. Called before a rule is persisted; the matcher itself treats invalid
// patterns as non-matches rather than failing a scan.
func ValidatePattern(pattern string, kind model.MatchKind) error {
	if pattern == "" {
		return common.NewValidationError("pattern", "must not be empty")
	}

	switch kind {
	case model.MatchContains:
		for _, token := range strings.Split(pattern, "|") {
			if textnorm.Normalize(token) != "" {
				return nil
			}
		}
		return common.NewValidationError("pattern", "must contain at least one non-empty token")
	case model.MatchRegex:
		if _, err := regexp.Compile(pattern); err != nil {
			return common.NewValidationError("pattern", fmt.Sprintf("invalid regular expression: %v", err))
		}
		return nil
	default:
		return common.NewValidationError("match_kind", fmt.Sprintf("unknown kind %q", kind))
	}
}
