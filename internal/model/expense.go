// Package model defines the core domain models used throughout the application.
package model

import "time"

// ExpenseStatus tracks how far an expense has moved through the ingestion pipeline.
type ExpenseStatus string

// Expense status constants.
const (
	StatusPending    ExpenseStatus = "pending"
	StatusProcessing ExpenseStatus = "processing"
	StatusCompleted  ExpenseStatus = "completed"
	StatusFailed     ExpenseStatus = "failed"
)

// Valid reports whether s is one of the known status values.
func (s ExpenseStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// Expense is one receipt or payment event. Category aggregation is driven by
// its line items, not by the expense itself.
type Expense struct {
	OccurredAt    time.Time     `json:"occurred_at"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	PointsUsed    *float64      `json:"points_used,omitempty"`
	PointsEarned  *float64      `json:"points_earned,omitempty"`
	StoreName     string        `json:"store_name"`
	Currency      string        `json:"currency"`
	PaymentMethod string        `json:"payment_method,omitempty"`
	CardBrand     string        `json:"card_brand,omitempty"`
	CardLast4     string        `json:"card_last4,omitempty"`
	PointsProgram string        `json:"points_program,omitempty"`
	Note          string        `json:"note,omitempty"`
	Status        ExpenseStatus `json:"status"`
	ID            int64         `json:"id"`
	TotalAmount   int64         `json:"total_amount"`
}
