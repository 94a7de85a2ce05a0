package storage

import (
	"context"
	"fmt"
	"time"
)

// CategorySummary aggregates line item spending for one category. Items
// without a category are grouped under a nil CategoryID.
type CategorySummary struct {
	CategoryID   *int64 `json:"category_id"`
	CategoryName string `json:"category_name"`
	Color        string `json:"color"`
	Total        int64  `json:"total"`
	ItemCount    int64  `json:"item_count"`
}

// MonthlySummary aggregates expense totals per calendar month.
type MonthlySummary struct {
	Month        string `json:"month"`
	Total        int64  `json:"total"`
	ExpenseCount int64  `json:"expense_count"`
}

// GetCategorySummary sums line item totals per category for expenses in
// [from, to). Aggregation is item level, so one receipt spreads across every
// category on it.
func (s *SQLiteStorage) GetCategorySummary(ctx context.Context, from, to time.Time) ([]CategorySummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if !from.Before(to) {
		return nil, fmt.Errorf("%w: from must be before to", ErrInvalidExpense)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT i.category_id,
		       COALESCE(c.name, ''),
		       COALESCE(c.color, ''),
		       COALESCE(SUM(i.line_total), 0),
		       COUNT(i.id)
		FROM expense_items i
		JOIN expenses e ON e.id = i.expense_id
		LEFT JOIN categories c ON c.id = i.category_id
		WHERE e.occurred_at >= ? AND e.occurred_at < ?
		GROUP BY i.category_id
		ORDER BY SUM(i.line_total) DESC
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to get category summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []CategorySummary
	for rows.Next() {
		var summary CategorySummary
		if scanErr := rows.Scan(&summary.CategoryID, &summary.CategoryName,
			&summary.Color, &summary.Total, &summary.ItemCount); scanErr != nil {
			return nil, fmt.Errorf("failed to scan category summary: %w", scanErr)
		}
		if summary.CategoryID == nil {
			summary.CategoryName = "未分類"
		}
		summaries = append(summaries, summary)
	}
	return summaries, rows.Err()
}

// GetMonthlySummary returns per-month expense totals for the most recent
// months, oldest first.
func (s *SQLiteStorage) GetMonthlySummary(ctx context.Context, months int) ([]MonthlySummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if months <= 0 {
		months = 6
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strftime('%Y-%m', occurred_at),
		       COALESCE(SUM(total_amount), 0),
		       COUNT(id)
		FROM expenses
		GROUP BY strftime('%Y-%m', occurred_at)
		ORDER BY strftime('%Y-%m', occurred_at) DESC
		LIMIT ?
	`, months)
	if err != nil {
		return nil, fmt.Errorf("failed to get monthly summary: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var summaries []MonthlySummary
	for rows.Next() {
		var summary MonthlySummary
		if scanErr := rows.Scan(&summary.Month, &summary.Total, &summary.ExpenseCount); scanErr != nil {
			return nil, fmt.Errorf("failed to scan monthly summary: %w", scanErr)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query returns newest first so LIMIT keeps the recent months.
	for i, j := 0, len(summaries)-1; i < j; i, j = i+1, j-1 {
		summaries[i], summaries[j] = summaries[j], summaries[i]
	}
	return summaries, nil
}
