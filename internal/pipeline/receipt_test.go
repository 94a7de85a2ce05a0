package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/codex"
	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }
func f64Ptr(f float64) *float64 { return &f }

func ingestTestReceipt(t *testing.T, p *Pipeline) *model.Expense {
	t.Helper()

	expense, err := p.IngestReceipt(context.Background(), ReceiptUpload{
		OriginalFilename: "IMG_0042.jpg",
		StoredFilename:   "stored-0042.jpg",
		FilePath:         "uploads/stored-0042.jpg",
		FileSize:         1024,
		MimeType:         "image/jpeg",
	})
	require.NoError(t, err)
	return expense
}

func TestIngestReceipt(t *testing.T) {
	p, db, _, scheduler := newTestPipeline(t)
	ctx := context.Background()

	expense := ingestTestReceipt(t, p)

	got, err := db.Storage.GetExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	receipt, err := db.Storage.GetReceiptByExpense(ctx, expense.ID)
	require.NoError(t, err)
	assert.Equal(t, "IMG_0042.jpg", receipt.OriginalFilename)

	tasks := scheduler.recorded()
	require.Len(t, tasks, 1)
	assert.Equal(t, queue.TaskProcessReceipt, tasks[0].Kind)
	assert.Equal(t, expense.ID, tasks[0].ExpenseID)
}

func TestProcessReceipt(t *testing.T) {
	t.Run("structured result builds header and items", func(t *testing.T) {
		p, db, engine, scheduler := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		engine.ocrResult = codex.OCRResult{
			Success:   true,
			RawOutput: `{"store":"スーパーマルエツ"}`,
			Data: &codex.ReceiptData{
				Store: strPtr("スーパーマルエツ"),
				Date:  strPtr("2025/03/05"),
				Payment: &codex.PaymentInfo{
					Method:    strPtr("credit"),
					Amount:    f64Ptr(1580),
					CardBrand: strPtr("VISA"),
					CardLast4: strPtr("4242"),
				},
				Points: &codex.PointsInfo{
					Program: strPtr("Tポイント"),
					Earned:  f64Ptr(15),
				},
				Items: []codex.ReceiptItem{
					{Name: strPtr("牛乳"), LineTotal: f64Ptr(280), Category: strPtr("食費")},
					{Name: strPtr("洗剤"), LineTotal: f64Ptr(400), Category: strPtr("日用品")},
					{Name: strPtr("謎の品"), LineTotal: f64Ptr(900)},
				},
			},
		}

		require.NoError(t, p.ProcessReceipt(ctx, expense.ID, false))

		got, err := db.Storage.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.Equal(t, "スーパーマルエツ", got.StoreName)
		assert.Equal(t, int64(1580), got.TotalAmount)
		assert.Equal(t, "credit", got.PaymentMethod)
		assert.Equal(t, "4242", got.CardLast4)
		assert.Equal(t, "Tポイント", got.PointsProgram)
		assert.Equal(t, 2025, got.OccurredAt.Year())
		assert.Equal(t, time.March, got.OccurredAt.Month())
		assert.Equal(t, model.StatusProcessing, got.Status)

		items, err := db.Storage.GetItemsByExpense(ctx, expense.ID)
		require.NoError(t, err)
		require.Len(t, items, 3)

		require.NotNil(t, items[0].CategorySource)
		assert.Equal(t, model.SourceOCR, *items[0].CategorySource)
		assert.Equal(t, db.CategoryID("食費"), *items[0].CategoryID)
		assert.Equal(t, db.CategoryID("日用品"), *items[1].CategoryID)
		assert.Nil(t, items[2].CategoryID)

		// Only the uncategorized item needs an engine pass.
		tasks := scheduler.recorded()
		require.Len(t, tasks, 2)
		assert.Equal(t, queue.TaskProcessReceipt, tasks[0].Kind)
		assert.Equal(t, queue.TaskClassifyItem, tasks[1].Kind)
		assert.Equal(t, items[2].ID, tasks[1].ItemID)

		receipt, err := db.Storage.GetReceiptByExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.True(t, receipt.OCRProcessed)
		assert.Equal(t, engine.ocrResult.RawOutput, receipt.RawOutput)
		assert.NotNil(t, receipt.OCRStartedAt)
		assert.NotNil(t, receipt.OCRCompletedAt)
	})

	t.Run("empty item list falls back to text heuristics", func(t *testing.T) {
		p, db, engine, _ := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		engine.ocrResult = codex.OCRResult{
			Success:   true,
			RawOutput: "マルエツ 川崎店\n2025/03/05\n牛乳 ¥280\n合計 ¥280",
			Data:      &codex.ReceiptData{},
		}

		require.NoError(t, p.ProcessReceipt(ctx, expense.ID, false))

		got, err := db.Storage.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.Equal(t, "マルエツ 川崎店", got.StoreName)
		assert.Equal(t, int64(280), got.TotalAmount)

		items, err := db.Storage.GetItemsByExpense(ctx, expense.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.Equal(t, "牛乳", items[0].ProductName)
		assert.Equal(t, int64(280), items[0].LineTotal)
	})

	t.Run("unreadable receipt still gets a placeholder item", func(t *testing.T) {
		p, db, engine, _ := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		engine.ocrResult = codex.OCRResult{
			Success:   true,
			RawOutput: "???",
			Data:      &codex.ReceiptData{},
		}

		require.NoError(t, p.ProcessReceipt(ctx, expense.ID, false))

		items, err := db.Storage.GetItemsByExpense(ctx, expense.ID)
		require.NoError(t, err)
		require.Len(t, items, 1)
		assert.NotEmpty(t, items[0].ProductName)
	})

	t.Run("skip classify completes without scheduling", func(t *testing.T) {
		p, db, engine, scheduler := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		engine.ocrResult = codex.OCRResult{
			Success:   true,
			RawOutput: "{}",
			Data: &codex.ReceiptData{
				Items: []codex.ReceiptItem{{Name: strPtr("牛乳"), LineTotal: f64Ptr(280)}},
			},
		}

		require.NoError(t, p.ProcessReceipt(ctx, expense.ID, true))

		got, err := db.Storage.GetExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusCompleted, got.Status)

		for _, task := range scheduler.recorded() {
			assert.NotEqual(t, queue.TaskClassifyItem, task.Kind)
		}
	})

	t.Run("engine failure keeps raw output and errors", func(t *testing.T) {
		p, db, engine, _ := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		engine.ocrResult = codex.OCRResult{
			Success:   false,
			Error:     "codex exec timed out after 3m0s",
			RawOutput: "partial garbage",
		}

		err := p.ProcessReceipt(ctx, expense.ID, false)
		assert.ErrorContains(t, err, "timed out")

		receipt, getErr := db.Storage.GetReceiptByExpense(ctx, expense.ID)
		require.NoError(t, getErr)
		assert.False(t, receipt.OCRProcessed)
		assert.Equal(t, "partial garbage", receipt.RawOutput)
	})

	t.Run("disabled OCR refuses processing", func(t *testing.T) {
		p, db, engine, _ := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		_, err := db.Storage.UpdateEngineSettings(ctx, model.SettingsPatch{
			OCREnabled: model.NewField(false),
		})
		require.NoError(t, err)

		err = p.ProcessReceipt(ctx, expense.ID, false)
		assert.ErrorIs(t, err, common.ErrEngineDisabled)
		assert.Zero(t, engine.ocrCalls)
	})

	t.Run("redelivery does not duplicate items", func(t *testing.T) {
		p, db, engine, _ := newTestPipeline(t)
		ctx := context.Background()
		expense := ingestTestReceipt(t, p)

		engine.ocrResult = codex.OCRResult{
			Success:   true,
			RawOutput: "{}",
			Data: &codex.ReceiptData{
				Items: []codex.ReceiptItem{{Name: strPtr("牛乳"), LineTotal: f64Ptr(280)}},
			},
		}

		require.NoError(t, p.ProcessReceipt(ctx, expense.ID, true))
		require.NoError(t, p.ProcessReceipt(ctx, expense.ID, true))

		items, err := db.Storage.GetItemsByExpense(ctx, expense.ID)
		require.NoError(t, err)
		assert.Len(t, items, 1)
	})
}

func TestDraftDate(t *testing.T) {
	p, _, _, _ := newTestPipeline(t)

	tests := []struct {
		name string
		date string
		ok   bool
	}{
		{name: "iso date", date: "2025-03-05", ok: true},
		{name: "slash date", date: "2025/3/5", ok: true},
		{name: "kanji date", date: "2025年3月5日", ok: true},
		{name: "era date stays verbatim", date: "令和7年3月5日", ok: false},
		{name: "empty", date: "", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drafted := expenseDraft{data: &codex.ReceiptData{Date: &tt.date}}
			if tt.date == "" {
				drafted = expenseDraft{data: &codex.ReceiptData{}}
			}

			got, ok := p.draftDate(drafted)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, 2025, got.Year())
			}
		})
	}
}
