package model

import "time"

// CategorySource records how a line item's category was decided.
type CategorySource string

// Category source constants.
const (
	SourceRule   CategorySource = "rule"
	SourceAI     CategorySource = "ai"
	SourceManual CategorySource = "manual"
	SourceOCR    CategorySource = "ocr"
)

// Valid reports whether s is one of the known source values.
func (s CategorySource) Valid() bool {
	switch s {
	case SourceRule, SourceAI, SourceManual, SourceOCR:
		return true
	}
	return false
}

// ExpenseItem is one purchased product on a receipt. Invariant: CategorySource
// is set if and only if CategoryID is set.
type ExpenseItem struct {
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CategoryID     *int64          `json:"category_id,omitempty"`
	CategorySource *CategorySource `json:"category_source,omitempty"`
	Confidence     *float64        `json:"confidence,omitempty"`
	Quantity       *float64        `json:"quantity,omitempty"`
	UnitPrice      *int64          `json:"unit_price,omitempty"`
	ProductName    string          `json:"product_name"`
	ID             int64           `json:"id"`
	ExpenseID      int64           `json:"expense_id"`
	Position       int             `json:"position"`
	LineTotal      int64           `json:"line_total"`
}

// Categorized reports whether the item carries a category assignment.
func (i *ExpenseItem) Categorized() bool {
	return i.CategoryID != nil
}
