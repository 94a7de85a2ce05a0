package model

import (
	"encoding/json"
	"time"
)

// Field is a tagged-optional value for partial updates. It distinguishes a
// field that is absent from the payload (leave untouched) from one that is
// present but null (clear it).
type Field[T any] struct {
	value   *T
	present bool
}

// NewField returns a present Field holding v. Intended for tests and internal
// callers that build patches programmatically.
func NewField[T any](v T) Field[T] {
	return Field[T]{value: &v, present: true}
}

// NullField returns a present Field holding null.
func NullField[T any]() Field[T] {
	return Field[T]{present: true}
}

// Present reports whether the field appeared in the payload at all.
func (f Field[T]) Present() bool { return f.present }

// Get returns the value and whether it is non-null. Only meaningful when
// Present is true.
func (f Field[T]) Get() (T, bool) {
	if f.value == nil {
		var zero T
		return zero, false
	}
	return *f.value, true
}

// Ptr returns the underlying pointer, nil when the field was null.
func (f Field[T]) Ptr() *T { return f.value }

// UnmarshalJSON marks the field present; a JSON null leaves the value nil.
func (f *Field[T]) UnmarshalJSON(data []byte) error {
	f.present = true
	if string(data) == "null" {
		f.value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	f.value = &v
	return nil
}

// MarshalJSON round-trips the value; absent fields marshal as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if f.value == nil {
		return []byte("null"), nil
	}
	return json.Marshal(*f.value)
}

// ExpensePatch is a partial update for an expense header.
type ExpensePatch struct {
	OccurredAt    Field[time.Time] `json:"occurred_at"`
	StoreName     Field[string]    `json:"store_name"`
	TotalAmount   Field[int64]     `json:"total_amount"`
	Currency      Field[string]    `json:"currency"`
	PaymentMethod Field[string]    `json:"payment_method"`
	CardBrand     Field[string]    `json:"card_brand"`
	CardLast4     Field[string]    `json:"card_last4"`
	PointsProgram Field[string]    `json:"points_program"`
	PointsUsed    Field[float64]   `json:"points_used"`
	PointsEarned  Field[float64]   `json:"points_earned"`
	Note          Field[string]    `json:"note"`
}

// ItemPatch is a partial update for a line item. Setting CategoryID stamps the
// manual source; clearing it clears source and confidence with it.
type ItemPatch struct {
	ProductName Field[string]  `json:"product_name"`
	Quantity    Field[float64] `json:"quantity"`
	UnitPrice   Field[int64]   `json:"unit_price"`
	LineTotal   Field[int64]   `json:"line_total"`
	CategoryID  Field[int64]   `json:"category_id"`
}

// CategoryPatch is a partial update for a category.
type CategoryPatch struct {
	Name        Field[string] `json:"name"`
	Description Field[string] `json:"description"`
	Color       Field[string] `json:"color"`
	Icon        Field[string] `json:"icon"`
	SortOrder   Field[int]    `json:"sort_order"`
	IsActive    Field[bool]   `json:"is_active"`
}

// RulePatch is a partial update for a category rule.
type RulePatch struct {
	Name       Field[string]    `json:"name"`
	Pattern    Field[string]    `json:"pattern"`
	MatchKind  Field[MatchKind] `json:"match_kind"`
	CategoryID Field[int64]     `json:"category_id"`
	Confidence Field[float64]   `json:"confidence"`
	Priority   Field[int]       `json:"priority"`
	IsActive   Field[bool]      `json:"is_active"`
}

// SettingsPatch is a partial update for the engine settings row.
type SettingsPatch struct {
	OCRModel                   Field[string] `json:"ocr_model"`
	OCREnabled                 Field[bool]   `json:"ocr_enabled"`
	ClassificationModel        Field[string] `json:"classification_model"`
	ClassificationEnabled      Field[bool]   `json:"classification_enabled"`
	SandboxMode                Field[string] `json:"sandbox_mode"`
	SkipRepoCheck              Field[bool]   `json:"skip_repo_check"`
	OCRSystemPrompt            Field[string] `json:"ocr_system_prompt"`
	ClassificationSystemPrompt Field[string] `json:"classification_system_prompt"`
}
