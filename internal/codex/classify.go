package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

const classifyPromptFormat = "Based on the expense data (product_name, store_name, amount, note), " +
	"classify it into one of the following categories: %s. " +
	"Return ONLY one minified JSON object with 'category' and 'confidence' (0.0-1.0). " +
	"No extra text. Use null if unsure."

// ClassifyInput is the expense data handed to the engine for one item.
type ClassifyInput struct {
	ProductName string  `json:"product_name"`
	StoreName   string  `json:"store_name"`
	Note        string  `json:"note"`
	Amount      float64 `json:"amount"`
}

// ClassifyResult is the typed outcome of one classification invocation.
type ClassifyResult struct {
	Category    string
	Error       string
	Confidence  float64
	Success     bool
	Substituted bool
}

// Classify runs one "categorize this item" invocation against the supplied
// category vocabulary.
func (c *Client) Classify(ctx context.Context, input ClassifyInput, categories []string, opts Options) ClassifyResult {
	schemaFile, err := writeTempJSON("codex-classify-schema-*.json", classificationSchema(categories))
	if err != nil {
		return ClassifyResult{Error: fmt.Sprintf("failed to write schema file: %v", err)}
	}
	defer removeTemp(schemaFile)

	inputFile, err := writeTempJSON("codex-classify-input-*.json", input)
	if err != nil {
		return ClassifyResult{Error: fmt.Sprintf("failed to write input file: %v", err)}
	}
	defer removeTemp(inputFile)

	prompt := opts.SystemPrompt
	if prompt == "" {
		prompt = fmt.Sprintf(classifyPromptFormat, strings.Join(categories, ", "))
	}

	args := append(baseArgs(opts),
		"-i", inputFile,
		"--output-schema", schemaFile,
		prompt,
	)

	slog.Info("codex classification started", "product", input.ProductName, "model", opts.Model)

	out, err := c.invoke(ctx, c.cfg.ClassifyTimeout, args)
	if err != nil {
		return ClassifyResult{Error: err.Error()}
	}
	if len(out) == 0 {
		return ClassifyResult{Error: "codex exec produced no output"}
	}

	// Decode loosely: engines have been seen returning schema-violating
	// payloads, so category and confidence are re-checked here.
	var payload struct {
		Category   *string `json:"category"`
		Confidence any     `json:"confidence"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return ClassifyResult{Error: fmt.Sprintf("failed to parse codex output: %v", err)}
	}

	category, substituted := sanitizeCategory(payload.Category, categories)
	if category == nil {
		return ClassifyResult{Error: "codex returned no category"}
	}

	confidence := coerceConfidence(payload.Confidence)
	if substituted && confidence > FallbackConfidenceCap {
		confidence = FallbackConfidenceCap
	}

	slog.Info("codex classification succeeded",
		"category", *category,
		"confidence", confidence,
		"substituted", substituted)

	return ClassifyResult{
		Success:     true,
		Category:    *category,
		Confidence:  confidence,
		Substituted: substituted,
	}
}
