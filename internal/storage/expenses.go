package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

// ExpenseFilter narrows ListExpenses. Zero values mean "no constraint".
type ExpenseFilter struct {
	From       *time.Time
	To         *time.Time
	Status     *model.ExpenseStatus
	CategoryID *int64
	Limit      int
	Offset     int
}

const expenseColumns = `id, occurred_at, store_name, total_amount, currency,
	payment_method, card_brand, card_last4, points_program, points_used,
	points_earned, note, status, created_at, updated_at`

// CreateExpense inserts an expense and its line items in one transaction.
// The IDs of the expense and items are filled in on success. Items may be
// empty when the expense is created ahead of OCR.
func (s *SQLiteStorage) CreateExpense(ctx context.Context, expense *model.Expense, items []model.ExpenseItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateExpense(expense); err != nil {
		return err
	}
	for i := range items {
		if err := validateItem(&items[i]); err != nil {
			return fmt.Errorf("item at index %d: %w", i, err)
		}
	}

	if expense.Status == "" {
		expense.Status = model.StatusPending
	}
	if expense.Currency == "" {
		expense.Currency = "JPY"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		INSERT INTO expenses (occurred_at, store_name, total_amount, currency,
			payment_method, card_brand, card_last4, points_program,
			points_used, points_earned, note, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, expense.OccurredAt, expense.StoreName, expense.TotalAmount, expense.Currency,
		expense.PaymentMethod, expense.CardBrand, expense.CardLast4, expense.PointsProgram,
		expense.PointsUsed, expense.PointsEarned, expense.Note, expense.Status)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}

	expense.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get expense ID: %w", err)
	}

	if err := insertItemsTx(ctx, tx, expense.ID, items); err != nil {
		return err
	}

	return tx.Commit()
}

// GetExpense retrieves one expense header by ID.
func (s *SQLiteStorage) GetExpense(ctx context.Context, id int64) (*model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+expenseColumns+` FROM expenses WHERE id = ?`, id)

	expense, err := scanExpense(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expense %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return expense, nil
}

// ListExpenses returns expense headers matching the filter, newest first.
func (s *SQLiteStorage) ListExpenses(ctx context.Context, filter ExpenseFilter) ([]model.Expense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var (
		conds []string
		args  []any
	)
	query := `SELECT DISTINCT e.id, e.occurred_at, e.store_name, e.total_amount, e.currency,
		e.payment_method, e.card_brand, e.card_last4, e.points_program, e.points_used,
		e.points_earned, e.note, e.status, e.created_at, e.updated_at
		FROM expenses e`

	if filter.CategoryID != nil {
		query += ` JOIN expense_items i ON i.expense_id = e.id`
		conds = append(conds, "i.category_id = ?")
		args = append(args, *filter.CategoryID)
	}
	if filter.From != nil {
		conds = append(conds, "e.occurred_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conds = append(conds, "e.occurred_at < ?")
		args = append(args, *filter.To)
	}
	if filter.Status != nil {
		conds = append(conds, "e.status = ?")
		args = append(args, *filter.Status)
	}

	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY e.occurred_at DESC, e.id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.Expense
	for rows.Next() {
		expense, scanErr := scanExpense(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", scanErr)
		}
		expenses = append(expenses, *expense)
	}
	return expenses, rows.Err()
}

// UpdateExpense applies a partial update to an expense header. Absent patch
// fields are left untouched; present-but-null fields are cleared where the
// column is nullable.
func (s *SQLiteStorage) UpdateExpense(ctx context.Context, id int64, patch model.ExpensePatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)

	if patch.OccurredAt.Present() {
		if v, ok := patch.OccurredAt.Get(); ok {
			sets = append(sets, "occurred_at = ?")
			args = append(args, v)
		}
	}
	if patch.StoreName.Present() {
		v, _ := patch.StoreName.Get()
		sets = append(sets, "store_name = ?")
		args = append(args, v)
	}
	if patch.TotalAmount.Present() {
		v, _ := patch.TotalAmount.Get()
		sets = append(sets, "total_amount = ?")
		args = append(args, v)
	}
	if patch.Currency.Present() {
		if v, ok := patch.Currency.Get(); ok && v != "" {
			sets = append(sets, "currency = ?")
			args = append(args, v)
		}
	}
	if patch.PaymentMethod.Present() {
		v, _ := patch.PaymentMethod.Get()
		sets = append(sets, "payment_method = ?")
		args = append(args, v)
	}
	if patch.CardBrand.Present() {
		v, _ := patch.CardBrand.Get()
		sets = append(sets, "card_brand = ?")
		args = append(args, v)
	}
	if patch.CardLast4.Present() {
		v, _ := patch.CardLast4.Get()
		sets = append(sets, "card_last4 = ?")
		args = append(args, v)
	}
	if patch.PointsProgram.Present() {
		v, _ := patch.PointsProgram.Get()
		sets = append(sets, "points_program = ?")
		args = append(args, v)
	}
	if patch.PointsUsed.Present() {
		sets = append(sets, "points_used = ?")
		args = append(args, patch.PointsUsed.Ptr())
	}
	if patch.PointsEarned.Present() {
		sets = append(sets, "points_earned = ?")
		args = append(args, patch.PointsEarned.Ptr())
	}
	if patch.Note.Present() {
		v, _ := patch.Note.Get()
		sets = append(sets, "note = ?")
		args = append(args, v)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	return requireRow(result, "expense", id)
}

// UpdateExpenseStatus moves an expense to a new pipeline status.
func (s *SQLiteStorage) UpdateExpenseStatus(ctx context.Context, id int64, status model.ExpenseStatus) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidExpense, status)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE expenses SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update expense status: %w", err)
	}
	return requireRow(result, "expense", id)
}

// DeleteExpense removes an expense. Items and the receipt row cascade.
func (s *SQLiteStorage) DeleteExpense(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM expenses WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
	}
	return requireRow(result, "expense", id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(row rowScanner) (*model.Expense, error) {
	var expense model.Expense
	err := row.Scan(
		&expense.ID,
		&expense.OccurredAt,
		&expense.StoreName,
		&expense.TotalAmount,
		&expense.Currency,
		&expense.PaymentMethod,
		&expense.CardBrand,
		&expense.CardLast4,
		&expense.PointsProgram,
		&expense.PointsUsed,
		&expense.PointsEarned,
		&expense.Note,
		&expense.Status,
		&expense.CreatedAt,
		&expense.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}

// requireRow maps a zero-row update or delete to ErrNotFound.
func requireRow(result sql.Result, entity string, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", entity, id, common.ErrNotFound)
	}
	return nil
}
