// Package textnorm canonicalizes free text for matching. The same form is used
// by the rule matcher and by any other text comparison, so matching stays
// insensitive to character width, case, and the katakana/hiragana split that
// OCR output mixes freely.
package textnorm

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Katakana codepoints that have a hiragana counterpart exactly 0x60 below.
const (
	katakanaLo = 0x30A1 // ァ
	katakanaHi = 0x30F6 // ヶ
	kanaOffset = 0x60
)

// Normalize returns the canonical form of s: NFKC compatibility normalization,
// surrounding whitespace trimmed, lower-cased, and full-width katakana folded
// to hiragana. The fold is one-directional; normalized text is not meant to be
// mapped back. Total on all inputs; empty in, empty out.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	s = strings.ToLower(strings.TrimSpace(s))
	return foldKana(s)
}

// foldKana maps each full-width katakana rune down to its hiragana counterpart
// by the fixed codepoint offset. Runes outside the range pass through.
func foldKana(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= katakanaLo && r <= katakanaHi {
			r -= kanaOffset
		}
		b.WriteRune(r)
	}
	return b.String()
}
