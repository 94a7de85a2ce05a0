package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

const itemColumns = `id, expense_id, position, product_name, quantity,
	unit_price, line_total, category_id, category_source, confidence,
	created_at, updated_at`

// CreateItems appends line items to an existing expense. Positions continue
// from the expense's current highest position.
func (s *SQLiteStorage) CreateItems(ctx context.Context, expenseID int64, items []model.ExpenseItem) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateItems(items); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position) + 1, 0) FROM expense_items WHERE expense_id = ?
	`, expenseID).Scan(&next)
	if err != nil {
		return fmt.Errorf("failed to get next position: %w", err)
	}

	for i := range items {
		items[i].Position = next + i
	}
	if err := insertItemsTx(ctx, tx, expenseID, items); err != nil {
		return err
	}

	return tx.Commit()
}

func insertItemsTx(ctx context.Context, tx *sql.Tx, expenseID int64, items []model.ExpenseItem) error {
	if len(items) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO expense_items (expense_id, position, product_name, quantity,
			unit_price, line_total, category_id, category_source, confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare item insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i := range items {
		item := &items[i]
		item.ExpenseID = expenseID
		if item.Position == 0 {
			item.Position = i
		}

		result, execErr := stmt.ExecContext(ctx,
			item.ExpenseID, item.Position, item.ProductName, item.Quantity,
			item.UnitPrice, item.LineTotal, item.CategoryID, item.CategorySource,
			item.Confidence)
		if execErr != nil {
			return fmt.Errorf("failed to insert item %d: %w", i, execErr)
		}
		item.ID, execErr = result.LastInsertId()
		if execErr != nil {
			return fmt.Errorf("failed to get item ID: %w", execErr)
		}
	}
	return nil
}

// GetItem retrieves one line item by ID.
func (s *SQLiteStorage) GetItem(ctx context.Context, id int64) (*model.ExpenseItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM expense_items WHERE id = ?`, id)

	item, err := scanItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// GetItemsByExpense returns the expense's line items in position order.
func (s *SQLiteStorage) GetItemsByExpense(ctx context.Context, expenseID int64) ([]model.ExpenseItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM expense_items
		WHERE expense_id = ?
		ORDER BY position, id
	`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

// UncategorizedItems returns the expense's items that still lack a category,
// in position order.
func (s *SQLiteStorage) UncategorizedItems(ctx context.Context, expenseID int64) ([]model.ExpenseItem, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+itemColumns+` FROM expense_items
		WHERE expense_id = ? AND category_id IS NULL
		ORDER BY position, id
	`, expenseID)
	if err != nil {
		return nil, fmt.Errorf("failed to get uncategorized items: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectItems(rows)
}

// SetItemCategory assigns a category to a line item, recording how the
// decision was made.
func (s *SQLiteStorage) SetItemCategory(ctx context.Context, itemID, categoryID int64, source model.CategorySource, confidence *float64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if !source.Valid() {
		return fmt.Errorf("%w: unknown category source %q", ErrInvalidItem, source)
	}
	if confidence != nil && (*confidence < 0 || *confidence > 1) {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidItem)
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE expense_items
		SET category_id = ?, category_source = ?, confidence = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, categoryID, source, confidence, itemID)
	if err != nil {
		return fmt.Errorf("failed to set item category: %w", err)
	}
	return requireRow(result, "item", itemID)
}

// ClearItemCategories removes the category assignment from every item of an
// expense. Used before reclassification; idempotent.
func (s *SQLiteStorage) ClearItemCategories(ctx context.Context, expenseID int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE expense_items
		SET category_id = NULL, category_source = NULL, confidence = NULL,
			updated_at = CURRENT_TIMESTAMP
		WHERE expense_id = ?
	`, expenseID)
	if err != nil {
		return fmt.Errorf("failed to clear item categories: %w", err)
	}
	return nil
}

// UpdateItem applies a partial update to a line item. A present category_id
// stamps the manual source; a null category_id clears source and confidence
// with it.
func (s *SQLiteStorage) UpdateItem(ctx context.Context, id int64, patch model.ItemPatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)

	if patch.ProductName.Present() {
		v, ok := patch.ProductName.Get()
		if !ok || strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: missing product name", ErrInvalidItem)
		}
		sets = append(sets, "product_name = ?")
		args = append(args, v)
	}
	if patch.Quantity.Present() {
		sets = append(sets, "quantity = ?")
		args = append(args, patch.Quantity.Ptr())
	}
	if patch.UnitPrice.Present() {
		sets = append(sets, "unit_price = ?")
		args = append(args, patch.UnitPrice.Ptr())
	}
	if patch.LineTotal.Present() {
		v, _ := patch.LineTotal.Get()
		sets = append(sets, "line_total = ?")
		args = append(args, v)
	}
	if patch.CategoryID.Present() {
		if v, ok := patch.CategoryID.Get(); ok {
			sets = append(sets, "category_id = ?", "category_source = ?", "confidence = NULL")
			args = append(args, v, model.SourceManual)
		} else {
			sets = append(sets, "category_id = NULL", "category_source = NULL", "confidence = NULL")
		}
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE expense_items SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}
	return requireRow(result, "item", id)
}

// DeleteItem removes a single line item.
func (s *SQLiteStorage) DeleteItem(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM expense_items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return requireRow(result, "item", id)
}

func scanItem(row rowScanner) (*model.ExpenseItem, error) {
	var item model.ExpenseItem
	err := row.Scan(
		&item.ID,
		&item.ExpenseID,
		&item.Position,
		&item.ProductName,
		&item.Quantity,
		&item.UnitPrice,
		&item.LineTotal,
		&item.CategoryID,
		&item.CategorySource,
		&item.Confidence,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func collectItems(rows *sql.Rows) ([]model.ExpenseItem, error) {
	var items []model.ExpenseItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}
