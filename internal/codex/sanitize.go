package codex

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// FallbackConfidenceCap is the confidence ceiling stamped on results whose
// category had to be substituted, so downstream consumers see the uncertainty.
const FallbackConfidenceCap = 0.3

// sanitizeCategory checks a returned category against the supplied vocabulary.
// In-vocabulary values pass through; anything else is replaced by the fallback
// category and flagged. A nil category stays nil: "unsure" is a valid answer.
func sanitizeCategory(category *string, vocabulary []string) (*string, bool) {
	if category == nil || len(vocabulary) == 0 {
		return category, false
	}
	for _, v := range vocabulary {
		if *category == v {
			return category, false
		}
	}
	fb := fallbackCategory(vocabulary)
	slog.Warn("codex returned out-of-vocabulary category",
		"returned", *category,
		"fallback", fb)
	return &fb, true
}

// fallbackCategory prefers an "other"-equivalent bucket when the vocabulary
// has one, else the first category in the list.
func fallbackCategory(vocabulary []string) string {
	for _, v := range vocabulary {
		if v == "その他" || strings.EqualFold(v, "other") {
			return v
		}
	}
	return vocabulary[0]
}

// coerceConfidence turns whatever the engine returned into a float in [0,1].
// Non-numeric values become 0.0.
func coerceConfidence(v any) float64 {
	f, ok := v.(float64)
	if !ok {
		return 0.0
	}
	if f < 0 {
		return 0.0
	}
	if f > 1 {
		return 1.0
	}
	return f
}

// writeTempJSON marshals v into a temp file and returns its path. Callers
// must remove the file on every exit path.
func writeTempJSON(pattern string, v any) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove temp file", "path", path, "error", fmt.Sprint(err))
	}
}
