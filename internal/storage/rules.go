package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

const ruleColumns = `id, name, pattern, match_kind, category_id, confidence,
	priority, is_active, created_at, updated_at`

// GetActiveRules returns the active rules in evaluation order: priority
// ascending, then ID ascending.
func (s *SQLiteStorage) GetActiveRules(ctx context.Context) ([]model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM category_rules
		WHERE is_active = 1
		ORDER BY priority, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get active rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRules(rows)
}

// ListRules returns every rule, active or not, in evaluation order.
func (s *SQLiteStorage) ListRules(ctx context.Context) ([]model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ruleColumns+` FROM category_rules ORDER BY priority, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer func() { _ = rows.Close() }()

	return collectRules(rows)
}

// GetRule retrieves one rule by ID.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.CategoryRule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM category_rules WHERE id = ?`, id)

	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("rule %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return rule, nil
}

// CreateRule inserts a new rule after verifying its category exists.
func (s *SQLiteStorage) CreateRule(ctx context.Context, rule *model.CategoryRule) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRule(rule); err != nil {
		return err
	}
	if err := s.requireCategory(ctx, rule.CategoryID); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO category_rules (name, pattern, match_kind, category_id,
			confidence, priority, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, rule.Name, rule.Pattern, rule.MatchKind, rule.CategoryID,
		rule.Confidence, rule.Priority, rule.IsActive)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}

	rule.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get rule ID: %w", err)
	}
	return nil
}

// UpdateRule applies a partial update to a rule.
func (s *SQLiteStorage) UpdateRule(ctx context.Context, id int64, patch model.RulePatch) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)

	if patch.Name.Present() {
		v, _ := patch.Name.Get()
		sets = append(sets, "name = ?")
		args = append(args, v)
	}
	if patch.Pattern.Present() {
		v, ok := patch.Pattern.Get()
		if !ok || strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: missing pattern", ErrInvalidRule)
		}
		sets = append(sets, "pattern = ?")
		args = append(args, v)
	}
	if patch.MatchKind.Present() {
		v, ok := patch.MatchKind.Get()
		if !ok || !v.Valid() {
			return fmt.Errorf("%w: unknown match kind", ErrInvalidRule)
		}
		sets = append(sets, "match_kind = ?")
		args = append(args, v)
	}
	if patch.CategoryID.Present() {
		v, ok := patch.CategoryID.Get()
		if !ok {
			return fmt.Errorf("%w: missing category", ErrInvalidRule)
		}
		if err := s.requireCategory(ctx, v); err != nil {
			return err
		}
		sets = append(sets, "category_id = ?")
		args = append(args, v)
	}
	if patch.Confidence.Present() {
		v, _ := patch.Confidence.Get()
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidRule)
		}
		sets = append(sets, "confidence = ?")
		args = append(args, v)
	}
	if patch.Priority.Present() {
		v, _ := patch.Priority.Get()
		sets = append(sets, "priority = ?")
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
		"UPDATE category_rules SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	return requireRow(result, "rule", id)
}

// DeleteRule removes a rule. Already-categorized items are untouched.
func (s *SQLiteStorage) DeleteRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM category_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return requireRow(result, "rule", id)
}

func (s *SQLiteStorage) requireCategory(ctx context.Context, categoryID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM categories WHERE id = ? AND is_active = 1)
	`, categoryID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check category existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("category %d: %w", categoryID, common.ErrUnknownCategory)
	}
	return nil
}

func scanRule(row rowScanner) (*model.CategoryRule, error) {
	var rule model.CategoryRule
	err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Pattern,
		&rule.MatchKind,
		&rule.CategoryID,
		&rule.Confidence,
		&rule.Priority,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func collectRules(rows *sql.Rows) ([]model.CategoryRule, error) {
	var rules []model.CategoryRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}
