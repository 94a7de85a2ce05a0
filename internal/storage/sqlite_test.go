package storage

import (
	"context"
	"testing"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()

	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedCategory(t *testing.T, store *SQLiteStorage, name string) int64 {
	t.Helper()

	category := model.Category{Name: name, IsActive: true}
	require.NoError(t, store.CreateCategory(context.Background(), &category))
	return category.ID
}

func TestMigrate(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	t.Run("reaches expected version", func(t *testing.T) {
		var version int
		require.NoError(t, store.db.QueryRow("PRAGMA user_version").Scan(&version))
		assert.Equal(t, ExpectedSchemaVersion, version)
	})

	t.Run("creates all tables", func(t *testing.T) {
		for _, table := range []string{"expenses", "expense_items", "categories", "receipts", "category_rules", "engine_settings"} {
			var count int
			err := store.db.QueryRow(`
				SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?
			`, table).Scan(&count)
			require.NoError(t, err)
			assert.Equal(t, 1, count, "missing table %s", table)
		}
	})

	t.Run("creates rule evaluation index", func(t *testing.T) {
		var count int
		err := store.db.QueryRow(`
			SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'idx_category_rules_order'
		`).Scan(&count)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
	})

	t.Run("is idempotent", func(t *testing.T) {
		require.NoError(t, store.Migrate(ctx))
	})
}

func TestValidateContext(t *testing.T) {
	assert.ErrorIs(t, validateContext(nil), ErrNilContext) //nolint:staticcheck // nil context is the case under test
	assert.NoError(t, validateContext(context.Background()))
}
