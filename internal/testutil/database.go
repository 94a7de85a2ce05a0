// Package testutil provides shared helpers for database-backed tests.
package testutil

import (
	"context"
	"testing"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/storage"
)

// DefaultCategoryNames are the categories seeded into every test database,
// in display order.
var DefaultCategoryNames = []string{"食費", "日用品", "交通費", "医療費", "その他"}

// TestDB wraps an in-memory storage seeded with categories.
type TestDB struct {
	Storage    *storage.SQLiteStorage
	Categories map[string]int64
	t          *testing.T
}

// SetupTestDB creates a migrated in-memory database seeded with the given
// category names (DefaultCategoryNames when none are given) and registers
// cleanup.
func SetupTestDB(t *testing.T, categoryNames ...string) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	if len(categoryNames) == 0 {
		categoryNames = DefaultCategoryNames
	}

	ids := make(map[string]int64, len(categoryNames))
	for i, name := range categoryNames {
		category := model.Category{
			Name:      name,
			SortOrder: i,
			IsActive:  true,
		}
		if err := store.CreateCategory(ctx, &category); err != nil {
			t.Fatalf("failed to seed category %q: %v", name, err)
		}
		ids[name] = category.ID
	}

	return &TestDB{
		Storage:    store,
		Categories: ids,
		t:          t,
	}
}

// CategoryID returns the seeded ID for name, failing the test when the
// category was not seeded.
func (db *TestDB) CategoryID(name string) int64 {
	db.t.Helper()

	id, ok := db.Categories[name]
	if !ok {
		db.t.Fatalf("category %q was not seeded", name)
	}
	return id
}
