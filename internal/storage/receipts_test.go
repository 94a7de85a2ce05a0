package storage

import (
	"context"
	"testing"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedReceipt(t *testing.T, store *SQLiteStorage) (*model.Expense, *model.Receipt) {
	t.Helper()
	ctx := context.Background()

	expense := testExpense(time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, store.CreateExpense(ctx, expense, nil))

	receipt := &model.Receipt{
		ExpenseID:        expense.ID,
		OriginalFilename: "IMG_0042.jpg",
		StoredFilename:   "8f14e45f-ceea-4f3a-9c8e-000000000001.jpg",
		FilePath:         "uploads/8f14e45f-ceea-4f3a-9c8e-000000000001.jpg",
		FileSize:         204800,
		MimeType:         "image/jpeg",
	}
	require.NoError(t, store.CreateReceipt(ctx, receipt))
	return expense, receipt
}

func TestCreateReceipt(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	expense, receipt := seedReceipt(t, store)

	t.Run("round trips metadata", func(t *testing.T) {
		got, err := store.GetReceiptByExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.Equal(t, receipt.ID, got.ID)
		assert.Equal(t, "IMG_0042.jpg", got.OriginalFilename)
		assert.Equal(t, "image/jpeg", got.MimeType)
		assert.False(t, got.OCRProcessed)
		assert.Nil(t, got.OCRStartedAt)
	})

	t.Run("rejects second receipt for same expense", func(t *testing.T) {
		dup := &model.Receipt{
			ExpenseID:      expense.ID,
			StoredFilename: "other.jpg",
			FilePath:       "uploads/other.jpg",
		}
		err := store.CreateReceipt(ctx, dup)
		assert.ErrorIs(t, err, common.ErrDuplicateEntry)
	})

	t.Run("rejects missing stored filename", func(t *testing.T) {
		bad := &model.Receipt{ExpenseID: expense.ID, FilePath: "uploads/x.jpg"}
		err := store.CreateReceipt(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidReceipt)
	})
}

func TestReceiptOCRLifecycle(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	_, receipt := seedReceipt(t, store)
	started := time.Date(2025, 9, 1, 12, 5, 0, 0, time.UTC)
	completed := started.Add(42 * time.Second)

	t.Run("records start", func(t *testing.T) {
		require.NoError(t, store.MarkReceiptOCRStarted(ctx, receipt.ID, started))

		got, err := store.GetReceipt(ctx, receipt.ID)
		require.NoError(t, err)
		require.NotNil(t, got.OCRStartedAt)
		assert.True(t, got.OCRStartedAt.Equal(started))
		assert.Nil(t, got.OCRCompletedAt)
	})

	t.Run("records completion with raw output", func(t *testing.T) {
		raw := `{"store_name":"スーパー","total_amount":1580}`
		require.NoError(t, store.SetReceiptOCRResult(ctx, receipt.ID, "gpt-5.1-codex-mini", raw, true, completed))

		got, err := store.GetReceipt(ctx, receipt.ID)
		require.NoError(t, err)
		assert.True(t, got.OCRProcessed)
		assert.Equal(t, raw, got.RawOutput)
		assert.Equal(t, "gpt-5.1-codex-mini", got.EngineModel)
		require.NotNil(t, got.OCRCompletedAt)
		assert.True(t, got.OCRCompletedAt.Equal(completed))
	})

	t.Run("failed run keeps output for audit", func(t *testing.T) {
		require.NoError(t, store.SetReceiptOCRResult(ctx, receipt.ID, "gpt-5.1-codex-mini", "not json at all", false, completed))

		got, err := store.GetReceipt(ctx, receipt.ID)
		require.NoError(t, err)
		assert.False(t, got.OCRProcessed)
		assert.Equal(t, "not json at all", got.RawOutput)
	})

	t.Run("returns not found for unknown receipt", func(t *testing.T) {
		err := store.MarkReceiptOCRStarted(ctx, 99999, started)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}
