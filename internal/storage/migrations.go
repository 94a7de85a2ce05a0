package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application
// expects. Failing to reach it is a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categories (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL DEFAULT '',
					color TEXT NOT NULL DEFAULT '#6B7280',
					icon TEXT NOT NULL DEFAULT '',
					sort_order INTEGER NOT NULL DEFAULT 0,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,

				`CREATE TABLE IF NOT EXISTS expenses (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					occurred_at DATETIME NOT NULL,
					store_name TEXT NOT NULL DEFAULT '',
					total_amount INTEGER NOT NULL DEFAULT 0,
					currency TEXT NOT NULL DEFAULT 'JPY',
					payment_method TEXT NOT NULL DEFAULT '',
					card_brand TEXT NOT NULL DEFAULT '',
					card_last4 TEXT NOT NULL DEFAULT '',
					points_program TEXT NOT NULL DEFAULT '',
					points_used REAL,
					points_earned REAL,
					note TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL DEFAULT 'pending',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_expenses_occurred_at ON expenses(occurred_at)`,
				`CREATE INDEX idx_expenses_status ON expenses(status)`,

				`CREATE TABLE IF NOT EXISTS expense_items (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					expense_id INTEGER NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
					position INTEGER NOT NULL DEFAULT 0,
					product_name TEXT NOT NULL,
					quantity REAL,
					unit_price INTEGER,
					line_total INTEGER NOT NULL DEFAULT 0,
					category_id INTEGER REFERENCES categories(id),
					category_source TEXT,
					confidence REAL,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_expense_items_expense_position ON expense_items(expense_id, position)`,
				`CREATE INDEX idx_expense_items_expense_category ON expense_items(expense_id, category_id)`,

				`CREATE TABLE IF NOT EXISTS receipts (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					expense_id INTEGER NOT NULL UNIQUE REFERENCES expenses(id) ON DELETE CASCADE,
					original_filename TEXT NOT NULL DEFAULT '',
					stored_filename TEXT NOT NULL,
					file_path TEXT NOT NULL,
					file_size INTEGER NOT NULL DEFAULT 0,
					mime_type TEXT NOT NULL DEFAULT '',
					engine_model TEXT NOT NULL DEFAULT '',
					raw_output TEXT NOT NULL DEFAULT '',
					ocr_processed INTEGER NOT NULL DEFAULT 0,
					ocr_started_at DATETIME,
					ocr_completed_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add category rules",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS category_rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					name TEXT NOT NULL DEFAULT '',
					pattern TEXT NOT NULL,
					match_kind TEXT NOT NULL DEFAULT 'contains',
					category_id INTEGER NOT NULL REFERENCES categories(id) ON DELETE CASCADE,
					confidence REAL NOT NULL DEFAULT 0.5,
					priority INTEGER NOT NULL DEFAULT 100,
					is_active INTEGER NOT NULL DEFAULT 1,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_category_rules_order ON category_rules(priority, id)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Add engine settings",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS engine_settings (
					id INTEGER PRIMARY KEY CHECK (id = 1),
					ocr_model TEXT NOT NULL,
					ocr_enabled INTEGER NOT NULL DEFAULT 1,
					classification_model TEXT NOT NULL,
					classification_enabled INTEGER NOT NULL DEFAULT 1,
					sandbox_mode TEXT NOT NULL DEFAULT 'read-only',
					skip_repo_check INTEGER NOT NULL DEFAULT 1,
					ocr_system_prompt TEXT NOT NULL DEFAULT '',
					classification_system_prompt TEXT NOT NULL DEFAULT '',
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)
			`)
			return err
		},
	},
}

// Migrate applies all pending database migrations.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	var currentVersion int
	err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	var finalVersion int
	err = s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&finalVersion)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}
