// Package extract turns raw OCR engine output into a structured receipt draft.
// Producers disagree about output shape, so text assembly runs an ordered list
// of probes and stops at the first one that yields text.
package extract

import (
	"encoding/json"
	"strings"
)

// maxWalkDepth bounds the generic JSON walk so pathological nesting terminates.
const maxWalkDepth = 12

// lineBreakMarker is the literal escape sequence some engines leave inside
// string values in place of real newlines.
const lineBreakMarker = `\n`

// textProbe attempts to read one known output shape. Returns ok=false when the
// document does not have that shape.
type textProbe func(doc map[string]any) (string, bool)

// probes are tried in order; the first success wins.
var probes = []textProbe{
	probeGroupedBlocks,
	probeFlatLines,
	probeSingleText,
}

// AssembleText flattens raw OCR output into one newline-joined text block.
// Non-JSON input is taken as already-flattened text. The method never fails;
// unreadable structures degrade to an empty string.
func AssembleText(raw []byte) string {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return ""
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		// Line-oriented text block.
		return substituteBreaks(trimmed)
	}

	for _, probe := range probes {
		if text, ok := probe(doc); ok {
			return text
		}
	}

	// Last resort: walk the whole document for anything that looks like text.
	return walkForText(doc)
}

// probeGroupedBlocks reads {"blocks": [{"lines": [{"text": ...}, ...]}, ...]}.
func probeGroupedBlocks(doc map[string]any) (string, bool) {
	blocks, ok := doc["blocks"].([]any)
	if !ok {
		return "", false
	}
	var lines []string
	for _, b := range blocks {
		block, ok := b.(map[string]any)
		if !ok {
			continue
		}
		lines = append(lines, collectLines(block["lines"])...)
	}
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// probeFlatLines reads {"lines": [...]}, accepting either bare strings or
// {"text": ...} objects as elements.
func probeFlatLines(doc map[string]any) (string, bool) {
	lines := collectLines(doc["lines"])
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// probeSingleText reads {"text": "..."}.
func probeSingleText(doc map[string]any) (string, bool) {
	text, ok := doc["text"].(string)
	if !ok || strings.TrimSpace(text) == "" {
		return "", false
	}
	return substituteBreaks(text), true
}

// collectLines extracts line text from a []any of strings or {"text": ...}
// objects.
func collectLines(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	var lines []string
	for _, e := range arr {
		switch line := e.(type) {
		case string:
			if s := substituteBreaks(line); strings.TrimSpace(s) != "" {
				lines = append(lines, s)
			}
		case map[string]any:
			if text, ok := line["text"].(string); ok && strings.TrimSpace(text) != "" {
				lines = append(lines, substituteBreaks(text))
			}
		}
	}
	return lines
}

// walkForText recursively collects every string found under a key literally
// named "text", then every other string value, up to maxWalkDepth.
func walkForText(doc map[string]any) string {
	var textKeyed, other []string
	walk(doc, 0, &textKeyed, &other)

	collected := append(textKeyed, other...)
	if len(collected) == 0 {
		return ""
	}
	return strings.Join(collected, "\n")
}

func walk(v any, depth int, textKeyed, other *[]string) {
	if depth > maxWalkDepth {
		return
	}
	switch node := v.(type) {
	case map[string]any:
		for key, child := range node {
			if s, ok := child.(string); ok {
				if strings.TrimSpace(s) == "" {
					continue
				}
				if key == "text" {
					*textKeyed = append(*textKeyed, substituteBreaks(s))
				} else {
					*other = append(*other, substituteBreaks(s))
				}
				continue
			}
			walk(child, depth+1, textKeyed, other)
		}
	case []any:
		for _, child := range node {
			if s, ok := child.(string); ok {
				if strings.TrimSpace(s) != "" {
					*other = append(*other, substituteBreaks(s))
				}
				continue
			}
			walk(child, depth+1, textKeyed, other)
		}
	}
}

// substituteBreaks turns literal line-break markers into real newlines.
func substituteBreaks(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, lineBreakMarker, "\n"))
}
