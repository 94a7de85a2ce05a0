package extract

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/ponpaku/ai-kakeibo-2/internal/textnorm"
)

// Draft is the best-effort structured reading of one receipt. Every field is
// optional; extraction failures are per-field, never per-document.
type Draft struct {
	Merchant         string
	Date             string
	ProductNameGuess string
	TotalAmount      *int64
	Items            []DraftItem
}

// DraftItem is one candidate line item guessed from a "name amount" line.
type DraftItem struct {
	Name   string
	Amount int64
}

// Heuristic bounds.
const (
	merchantScanLines = 5
	merchantMinRunes  = 2
	merchantMaxRunes  = 40
	totalMaxAmount    = 10_000_000
	itemMaxAmount     = 1_000_000
)

// boilerplateTokens disqualify a line from being the merchant name and mark
// non-item lines. Compared against normalized text.
var boilerplateTokens = []string{
	"レシート", "領収", "receipt", "tel", "電話", "fax",
	"〒", "住所", "登録番号", "レジ", "責任者",
	"合計", "小計", "お預", "お釣", "釣銭", "現金",
	"クレジット", "ポイント", "対象額", "内税", "外税", "消費税",
}

// totalPatterns are tried per line, most specific first. The first capture in
// a plausible monetary range wins; lines are scanned bottom-up since totals
// print near the bottom.
var totalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`合計[:：\s]*[¥￥]?\s*([\d,]+)`),
	regexp.MustCompile(`小計[:：\s]*[¥￥]?\s*([\d,]+)`),
	regexp.MustCompile(`計[:：\s]*[¥￥]?\s*([\d,]+)`),
	regexp.MustCompile(`[¥￥]\s*([\d,]+)`),
	regexp.MustCompile(`([\d,]+)円`),
}

// datePatterns are tried per line, top-down. The match is kept verbatim; era
// dates are not converted here.
var datePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}[/-]\d{1,2}[/-]\d{1,2}`),
	regexp.MustCompile(`\d{1,2}[/-]\d{1,2}[/-]\d{4}`),
	regexp.MustCompile(`\d{4}年\d{1,2}月\d{1,2}日`),
	regexp.MustCompile(`令和\d{1,2}年\d{1,2}月\d{1,2}日`),
	regexp.MustCompile(`平成\d{1,2}年\d{1,2}月\d{1,2}日`),
}

// itemPattern splits a "name amount" line on the trailing numeric token.
var itemPattern = regexp.MustCompile(`^(.+?)[\s　]+[¥￥]?([\d,]+)$`)

// ExtractFields assembles text from raw OCR output and runs the field
// heuristics over it.
func ExtractFields(raw []byte) Draft {
	return ParseDraft(AssembleText(raw))
}

// ParseDraft runs the field heuristics over an already-flattened text block.
func ParseDraft(text string) Draft {
	lines := splitLines(text)

	draft := Draft{
		Merchant:    findMerchant(lines),
		Date:        findDate(lines),
		TotalAmount: findTotal(lines),
		Items:       findItems(lines),
	}

	if draft.Merchant != "" {
		draft.ProductNameGuess = draft.Merchant + "での購入"
	} else {
		draft.ProductNameGuess = "レシート購入品"
	}
	return draft
}

func splitLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

// findMerchant scans only the first few lines and accepts the first one that
// is plausibly a store name: bounded length, not purely numeric, free of
// receipt boilerplate.
func findMerchant(lines []string) string {
	limit := merchantScanLines
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		n := len([]rune(line))
		if n < merchantMinRunes || n > merchantMaxRunes {
			continue
		}
		if isNumericLine(line) {
			continue
		}
		if containsBoilerplate(line) {
			continue
		}
		return line
	}
	return ""
}

// findTotal tries each pattern over the whole text before falling through to
// the next, scanning lines bottom-up since totals print near the bottom. A
// keyword-anchored match anywhere beats a bare amount on a later line.
func findTotal(lines []string) *int64 {
	for _, pat := range totalPatterns {
		for i := len(lines) - 1; i >= 0; i-- {
			m := pat.FindStringSubmatch(lines[i])
			if m == nil {
				continue
			}
			amount, err := parseAmount(m[1])
			if err != nil {
				continue
			}
			if amount >= 1 && amount <= totalMaxAmount {
				return &amount
			}
		}
	}
	return nil
}

// findDate scans lines top-down and keeps the first date-shaped match verbatim.
func findDate(lines []string) string {
	for _, line := range lines {
		for _, pat := range datePatterns {
			if m := pat.FindString(line); m != "" {
				return m
			}
		}
	}
	return ""
}

// findItems collects "name amount" pairs from non-boilerplate lines whose
// trailing amount falls in a plausible per-item range. Best effort only; the
// result is a candidate list, not an authoritative itemization.
func findItems(lines []string) []DraftItem {
	var items []DraftItem
	for _, line := range lines {
		if containsBoilerplate(line) {
			continue
		}
		m := itemPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		if name == "" || isNumericLine(name) {
			continue
		}
		amount, err := parseAmount(m[2])
		if err != nil || amount < 1 || amount > itemMaxAmount {
			continue
		}
		items = append(items, DraftItem{Name: name, Amount: amount})
	}
	return items
}

// parseAmount strips thousands separators before parsing.
func parseAmount(s string) (int64, error) {
	return strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
}

func containsBoilerplate(line string) bool {
	n := textnorm.Normalize(line)
	for _, token := range boilerplateTokens {
		if strings.Contains(n, textnorm.Normalize(token)) {
			return true
		}
	}
	return false
}

func isNumericLine(line string) bool {
	seen := false
	for _, r := range line {
		if unicode.IsDigit(r) {
			seen = true
			continue
		}
		switch r {
		case ',', '.', '-', '/', ':', ' ', '　', '¥', '￥':
			continue
		}
		return false
	}
	return seen
}
