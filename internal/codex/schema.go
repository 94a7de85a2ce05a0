package codex

// The engine is told exactly which categories exist: the category field of
// every result is a closed enumeration over the caller's vocabulary, with null
// allowed for "unsure". Results are still post-validated; see sanitize.go.

// receiptSchema is the JSON Schema for "OCR this receipt image and categorize
// each item".
func receiptSchema(categories []string) map[string]any {
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"store", "date", "time", "payment", "points", "items"},
		"properties": map[string]any{
			"store": map[string]any{"type": []string{"string", "null"}},
			"date":  map[string]any{"type": []string{"string", "null"}},
			"time":  map[string]any{"type": []string{"string", "null"}},
			"payment": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []string{"method", "amount", "card_brand", "card_last4"},
						"properties": map[string]any{
							"method":     map[string]any{"type": []string{"string", "null"}},
							"amount":     map[string]any{"type": []string{"number", "null"}},
							"card_brand": map[string]any{"type": []string{"string", "null"}},
							"card_last4": map[string]any{"type": []string{"string", "null"}},
						},
					},
					map[string]any{"type": "null"},
				},
			},
			"points": map[string]any{
				"anyOf": []any{
					map[string]any{
						"type":                 "object",
						"additionalProperties": false,
						"required":             []string{"program", "used", "earned"},
						"properties": map[string]any{
							"program": map[string]any{"type": []string{"string", "null"}},
							"used":    map[string]any{"type": []string{"number", "null"}},
							"earned":  map[string]any{"type": []string{"number", "null"}},
						},
					},
					map[string]any{"type": "null"},
				},
			},
			"items": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":                 "object",
					"additionalProperties": false,
					"required":             []string{"name", "quantity", "unit_price", "line_total", "category"},
					"properties": map[string]any{
						"name":       map[string]any{"type": []string{"string", "null"}},
						"quantity":   map[string]any{"type": []string{"number", "null"}},
						"unit_price": map[string]any{"type": []string{"number", "null"}},
						"line_total": map[string]any{"type": []string{"number", "null"}},
						"category":   categoryEnum(categories),
					},
				},
			},
		},
	}
}

// classificationSchema is the JSON Schema for "categorize this one item".
func classificationSchema(categories []string) map[string]any {
	return map[string]any{
		"$schema":              "https://json-schema.org/draft/2020-12/schema",
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"category", "confidence"},
		"properties": map[string]any{
			"category": categoryEnum(categories),
			"confidence": map[string]any{
				"type":    []string{"number", "null"},
				"minimum": 0.0,
				"maximum": 1.0,
			},
		},
	}
}

// categoryEnum restricts a category field to the supplied vocabulary plus null.
func categoryEnum(categories []string) map[string]any {
	values := make([]any, 0, len(categories)+1)
	for _, c := range categories {
		values = append(values, c)
	}
	values = append(values, nil)
	return map[string]any{
		"type": []string{"string", "null"},
		"enum": values,
	}
}
