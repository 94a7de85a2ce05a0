package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

const categoryColumns = `id, name, description, color, icon, sort_order,
	is_active, created_at, updated_at`

// CreateCategory inserts a new category. Names are unique.
func (s *SQLiteStorage) CreateCategory(ctx context.Context, category *model.Category) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if category == nil {
		return fmt.Errorf("%w: category", ErrNilParameter)
	}
	if err := validateString(category.Name, "name"); err != nil {
		return err
	}

	if category.Color == "" {
		category.Color = "#6B7280"
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (name, description, color, icon, sort_order, is_active)
		VALUES (?, ?, ?, ?, ?, ?)
	`, category.Name, category.Description, category.Color, category.Icon,
		category.SortOrder, category.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", category.Name, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create category: %w", err)
	}

	category.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get category ID: %w", err)
	}
	return nil
}

// GetCategory retrieves one category by ID.
func (s *SQLiteStorage) GetCategory(ctx context.Context, id int64) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = ?`, id)

	category, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return category, nil
}

// GetCategoryByName retrieves one active category by its exact name.
func (s *SQLiteStorage) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(name, "name"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT `+categoryColumns+` FROM categories WHERE name = ? AND is_active = 1
	`, name)

	category, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %q: %w", name, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category by name: %w", err)
	}
	return category, nil
}

// ListCategories returns categories ordered by sort order then ID. Inactive
// categories are included only when requested.
func (s *SQLiteStorage) ListCategories(ctx context.Context, includeInactive bool) ([]model.Category, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT ` + categoryColumns + ` FROM categories`
	if !includeInactive {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY sort_order, id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var categories []model.Category
	for rows.Next() {
		category, scanErr := scanCategory(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan category: %w", scanErr)
		}
		categories = append(categories, *category)
	}
	return categories, rows.Err()
}

// CategoryNames returns the names of all active categories in display order.
// This is the closed vocabulary handed to the classification engine.
func (s *SQLiteStorage) CategoryNames(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT name FROM categories WHERE is_active = 1 ORDER BY sort_order, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get category names: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var names []string
	for rows.Next() {
		var name string
		if scanErr := rows.Scan(&name); scanErr != nil {
			return nil, fmt.Errorf("failed to scan category name: %w", scanErr)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// UpdateCategory applies a partial update to a category.
func (s *SQLiteStorage) UpdateCategory(ctx context.Context, id int64, patch model.CategoryPatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)

	if patch.Name.Present() {
		v, ok := patch.Name.Get()
		if !ok || strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: name", ErrEmptyString)
		}
		sets = append(sets, "name = ?")
		args = append(args, v)
	}
	if patch.Description.Present() {
		v, _ := patch.Description.Get()
		sets = append(sets, "description = ?")
		args = append(args, v)
	}
	if patch.Color.Present() {
		v, _ := patch.Color.Get()
		sets = append(sets, "color = ?")
		args = append(args, v)
	}
	if patch.Icon.Present() {
		v, _ := patch.Icon.Get()
		sets = append(sets, "icon = ?")
		args = append(args, v)
	}
	if patch.SortOrder.Present() {
		v, _ := patch.SortOrder.Get()
		sets = append(sets, "sort_order = ?")
		args = append(args, v)
	}
	if patch.IsActive.Present() {
		v, _ := patch.IsActive.Get()
		sets = append(sets, "is_active = ?")
		args = append(args, v)
	}

	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	result, err := s.db.ExecContext(ctx,
		"UPDATE categories SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category name: %w", common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	return requireRow(result, "category", id)
}

// DeleteCategory removes a category when nothing references it; a category
// still referenced by items or rules is deactivated instead so history keeps
// resolving.
func (s *SQLiteStorage) DeleteCategory(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var referenced bool
	err = tx.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM expense_items WHERE category_id = ?)
			OR EXISTS(SELECT 1 FROM category_rules WHERE category_id = ?)
	`, id, id).Scan(&referenced)
	if err != nil {
		return fmt.Errorf("failed to check category references: %w", err)
	}

	var result sql.Result
	if referenced {
		result, err = tx.ExecContext(ctx, `
			UPDATE categories SET is_active = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?
		`, id)
	} else {
		result, err = tx.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id)
	}
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if err := requireRow(result, "category", id); err != nil {
		return err
	}

	return tx.Commit()
}

func scanCategory(row rowScanner) (*model.Category, error) {
	var category model.Category
	err := row.Scan(
		&category.ID,
		&category.Name,
		&category.Description,
		&category.Color,
		&category.Icon,
		&category.SortOrder,
		&category.IsActive,
		&category.CreatedAt,
		&category.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &category, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
