package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
)

const defaultOCRPrompt = "Return ONLY one minified JSON object that conforms to the schema. " +
	"No extra text. No spaces/newlines outside strings. " +
	"Use null if unsure. Do not invent items. " +
	"Extract all visible information from the receipt image accurately."

// ReceiptData is the structured receipt draft returned by the engine.
type ReceiptData struct {
	Store   *string       `json:"store"`
	Date    *string       `json:"date"`
	Time    *string       `json:"time"`
	Payment *PaymentInfo  `json:"payment"`
	Points  *PointsInfo   `json:"points"`
	Items   []ReceiptItem `json:"items"`
}

// PaymentInfo describes how the receipt was paid.
type PaymentInfo struct {
	Method    *string  `json:"method"`
	Amount    *float64 `json:"amount"`
	CardBrand *string  `json:"card_brand"`
	CardLast4 *string  `json:"card_last4"`
}

// PointsInfo describes loyalty point movement on the receipt.
type PointsInfo struct {
	Program *string  `json:"program"`
	Used    *float64 `json:"used"`
	Earned  *float64 `json:"earned"`
}

// ReceiptItem is one line item as read by the engine. CategorySubstituted is
// set when post-validation replaced an out-of-vocabulary category.
type ReceiptItem struct {
	Name                *string  `json:"name"`
	Quantity            *float64 `json:"quantity"`
	UnitPrice           *float64 `json:"unit_price"`
	LineTotal           *float64 `json:"line_total"`
	Category            *string  `json:"category"`
	CategorySubstituted bool     `json:"-"`
}

// OCRResult is the typed outcome of one receipt OCR invocation. Never an
// error: failures set Success=false with a message.
type OCRResult struct {
	Data      *ReceiptData
	Error     string
	RawOutput string
	Success   bool
}

// ProcessReceipt runs one "OCR + per-item categorize" invocation over a
// receipt image with the supplied category vocabulary.
func (c *Client) ProcessReceipt(ctx context.Context, imagePath string, categories []string, opts Options) OCRResult {
	if _, err := os.Stat(imagePath); err != nil {
		return OCRResult{Error: fmt.Sprintf("receipt image not found: %s", imagePath)}
	}

	schemaFile, err := writeTempJSON("codex-receipt-schema-*.json", receiptSchema(categories))
	if err != nil {
		return OCRResult{Error: fmt.Sprintf("failed to write schema file: %v", err)}
	}
	defer removeTemp(schemaFile)

	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = defaultOCRPrompt
	}

	args := append(baseArgs(opts),
		"-i", imagePath,
		"--output-schema", schemaFile,
		prompt,
	)

	slog.Info("codex receipt OCR started", "image", imagePath, "model", opts.Model)

	out, err := c.invoke(ctx, c.cfg.OCRTimeout, args)
	if err != nil {
		return OCRResult{Error: err.Error()}
	}

	raw := string(out)
	if len(raw) == 0 {
		return OCRResult{Error: "codex exec produced no output"}
	}

	var data ReceiptData
	if err := json.Unmarshal(out, &data); err != nil {
		return OCRResult{Error: fmt.Sprintf("failed to parse codex output: %v", err), RawOutput: raw}
	}

	// Defense against engines that ignore the schema.
	for i := range data.Items {
		data.Items[i].Category, data.Items[i].CategorySubstituted =
			sanitizeCategory(data.Items[i].Category, categories)
	}

	slog.Info("codex receipt OCR succeeded",
		"store", stringOrEmpty(data.Store),
		"items", len(data.Items))

	return OCRResult{Success: true, Data: &data, RawOutput: raw}
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
