package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

// Validation errors.
var (
	ErrNilContext     = errors.New("context cannot be nil")
	ErrEmptyString    = errors.New("string parameter cannot be empty")
	ErrNilParameter   = errors.New("parameter cannot be nil")
	ErrEmptySlice     = errors.New("slice cannot be empty")
	ErrInvalidExpense = errors.New("invalid expense")
	ErrInvalidItem    = errors.New("invalid expense item")
	ErrInvalidRule    = errors.New("invalid category rule")
	ErrInvalidReceipt = errors.New("invalid receipt")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateExpense validates a single expense.
func validateExpense(expense *model.Expense) error {
	if expense == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if expense.OccurredAt.IsZero() {
		return fmt.Errorf("%w: missing occurred_at", ErrInvalidExpense)
	}
	if expense.TotalAmount < 0 {
		return fmt.Errorf("%w: negative total amount", ErrInvalidExpense)
	}
	if expense.Status != "" && !expense.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidExpense, expense.Status)
	}
	return nil
}

// validateItems validates a slice of expense items.
func validateItems(items []model.ExpenseItem) error {
	if items == nil {
		return fmt.Errorf("%w: items", ErrNilParameter)
	}
	if len(items) == 0 {
		return fmt.Errorf("%w: items", ErrEmptySlice)
	}

	for i, item := range items {
		if err := validateItem(&item); err != nil {
			return fmt.Errorf("item at index %d: %w", i, err)
		}
	}
	return nil
}

// validateItem validates a single expense item. A category assignment and
// its source must be set together or not at all.
func validateItem(item *model.ExpenseItem) error {
	if item == nil {
		return fmt.Errorf("%w: item", ErrNilParameter)
	}
	if strings.TrimSpace(item.ProductName) == "" {
		return fmt.Errorf("%w: missing product name", ErrInvalidItem)
	}
	if (item.CategoryID == nil) != (item.CategorySource == nil) {
		return fmt.Errorf("%w: category and source must be set together", ErrInvalidItem)
	}
	if item.CategorySource != nil && !item.CategorySource.Valid() {
		return fmt.Errorf("%w: unknown category source %q", ErrInvalidItem, *item.CategorySource)
	}
	if item.Confidence != nil && (*item.Confidence < 0 || *item.Confidence > 1) {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidItem)
	}
	return nil
}

// validateRule validates a category rule.
func validateRule(rule *model.CategoryRule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if strings.TrimSpace(rule.Pattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
	}
	if !rule.MatchKind.Valid() {
		return fmt.Errorf("%w: unknown match kind %q", ErrInvalidRule, rule.MatchKind)
	}
	if rule.CategoryID <= 0 {
		return fmt.Errorf("%w: missing category", ErrInvalidRule)
	}
	if rule.Confidence < 0 || rule.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRule)
	}
	return nil
}

// validateReceipt validates a receipt record.
func validateReceipt(receipt *model.Receipt) error {
	if receipt == nil {
		return fmt.Errorf("%w: receipt", ErrNilParameter)
	}
	if receipt.ExpenseID <= 0 {
		return fmt.Errorf("%w: missing expense ID", ErrInvalidReceipt)
	}
	if strings.TrimSpace(receipt.StoredFilename) == "" {
		return fmt.Errorf("%w: missing stored filename", ErrInvalidReceipt)
	}
	if strings.TrimSpace(receipt.FilePath) == "" {
		return fmt.Errorf("%w: missing file path", ErrInvalidReceipt)
	}
	return nil
}
