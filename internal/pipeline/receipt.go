package pipeline

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/codex"
	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/extract"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/queue"
)

// ReceiptUpload describes an already-saved receipt image.
type ReceiptUpload struct {
	OriginalFilename string
	StoredFilename   string
	FilePath         string
	MimeType         string
	FileSize         int64
}

// IngestReceipt creates a pending expense with its receipt record and
// schedules the OCR task. The expense's date starts as the upload time and is
// replaced once OCR reads the receipt date.
func (p *Pipeline) IngestReceipt(ctx context.Context, upload ReceiptUpload) (*model.Expense, error) {
	expense := &model.Expense{
		OccurredAt: p.now(),
		Status:     model.StatusPending,
	}
	if err := p.store.CreateExpense(ctx, expense, nil); err != nil {
		return nil, err
	}

	receipt := &model.Receipt{
		ExpenseID:        expense.ID,
		OriginalFilename: upload.OriginalFilename,
		StoredFilename:   upload.StoredFilename,
		FilePath:         upload.FilePath,
		FileSize:         upload.FileSize,
		MimeType:         upload.MimeType,
	}
	if err := p.store.CreateReceipt(ctx, receipt); err != nil {
		return nil, err
	}

	task := queue.Task{Kind: queue.TaskProcessReceipt, ExpenseID: expense.ID}
	if err := p.scheduler.Enqueue(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to enqueue receipt processing: %w", err)
	}

	p.logger.Info("Receipt ingested",
		"expense_id", expense.ID,
		"receipt_id", receipt.ID,
		"filename", upload.OriginalFilename)
	return expense, nil
}

// ProcessReceipt runs OCR over the expense's receipt, fills the expense
// header, builds line items, and hands uncategorized items to classification.
// Duplicate deliveries are harmless: an expense that already has items only
// gets its header refreshed.
func (p *Pipeline) ProcessReceipt(ctx context.Context, expenseID int64, skipClassify bool) error {
	settings, err := p.store.GetEngineSettings(ctx)
	if err != nil {
		return err
	}
	if !settings.OCREnabled {
		return fmt.Errorf("receipt OCR: %w", common.ErrEngineDisabled)
	}

	expense, err := p.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	receipt, err := p.store.GetReceiptByExpense(ctx, expenseID)
	if err != nil {
		return err
	}

	if err := p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusProcessing); err != nil {
		return err
	}
	if err := p.store.MarkReceiptOCRStarted(ctx, receipt.ID, p.now()); err != nil {
		return err
	}

	categories, err := p.store.CategoryNames(ctx)
	if err != nil {
		return err
	}

	result := p.engine.ProcessReceipt(ctx, receipt.FilePath, categories, engineOptions(settings, true))

	if err := p.store.SetReceiptOCRResult(ctx, receipt.ID, settings.OCRModel,
		result.RawOutput, result.Success, p.now()); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("receipt OCR failed: %s", result.Error)
	}

	drafted := draftFromOCR(result.Data, result.RawOutput)

	if err := p.updateHeaderFromDraft(ctx, expense, drafted); err != nil {
		return err
	}

	existing, err := p.store.GetItemsByExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		items := p.buildItems(ctx, drafted)
		if err := p.store.CreateItems(ctx, expenseID, items); err != nil {
			return err
		}
		existing = items
	}

	if skipClassify {
		return p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusCompleted)
	}

	// Re-read the header so rules see the OCR store name.
	expense, err = p.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	unmatched, err := p.applyRules(ctx, expense, existing)
	if err != nil {
		return err
	}
	return p.scheduleClassification(ctx, expenseID, unmatched)
}

// expenseDraft is the merged view of the structured OCR payload and, when the
// engine returned no line items, the plain-text field heuristics.
type expenseDraft struct {
	data      *codex.ReceiptData
	fallback  *extract.Draft
	storeName string
}

func draftFromOCR(data *codex.ReceiptData, rawOutput string) expenseDraft {
	drafted := expenseDraft{data: data}
	if data != nil && data.Store != nil {
		drafted.storeName = strings.TrimSpace(*data.Store)
	}

	if data == nil || len(data.Items) == 0 {
		fb := extract.ExtractFields([]byte(rawOutput))
		drafted.fallback = &fb
		if drafted.storeName == "" {
			drafted.storeName = fb.Merchant
		}
	}
	return drafted
}

func (p *Pipeline) updateHeaderFromDraft(ctx context.Context, expense *model.Expense, drafted expenseDraft) error {
	var patch model.ExpensePatch

	if drafted.storeName != "" {
		patch.StoreName = model.NewField(drafted.storeName)
	}

	if occurredAt, ok := p.draftDate(drafted); ok {
		patch.OccurredAt = model.NewField(occurredAt)
	}

	if total, ok := draftTotal(drafted); ok {
		patch.TotalAmount = model.NewField(total)
	}

	if data := drafted.data; data != nil {
		if payment := data.Payment; payment != nil {
			if payment.Method != nil {
				patch.PaymentMethod = model.NewField(*payment.Method)
			}
			if payment.CardBrand != nil {
				patch.CardBrand = model.NewField(*payment.CardBrand)
			}
			if payment.CardLast4 != nil {
				patch.CardLast4 = model.NewField(*payment.CardLast4)
			}
		}
		if points := data.Points; points != nil {
			if points.Program != nil {
				patch.PointsProgram = model.NewField(*points.Program)
			}
			if points.Used != nil {
				patch.PointsUsed = model.NewField(*points.Used)
			}
			if points.Earned != nil {
				patch.PointsEarned = model.NewField(*points.Earned)
			}
		}
	}

	return p.store.UpdateExpense(ctx, expense.ID, patch)
}

// draftDate resolves the receipt date. Era-formatted dates the parser does
// not understand leave the upload timestamp in place.
func (p *Pipeline) draftDate(drafted expenseDraft) (time.Time, bool) {
	var raw string
	if drafted.data != nil && drafted.data.Date != nil {
		raw = *drafted.data.Date
	} else if drafted.fallback != nil {
		raw = drafted.fallback.Date
	}
	if raw == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{
		"2006-01-02", "2006/01/02", "2006/1/2", "2006.01.02", "2006年1月2日", "2006年01月02日",
	} {
		if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
			return t, true
		}
	}
	p.logger.Warn("Unparsable receipt date kept as upload time", "date", raw)
	return time.Time{}, false
}

func draftTotal(drafted expenseDraft) (int64, bool) {
	if data := drafted.data; data != nil {
		if data.Payment != nil && data.Payment.Amount != nil {
			return yen(*data.Payment.Amount), true
		}
		if len(data.Items) > 0 {
			var sum int64
			for _, item := range data.Items {
				if item.LineTotal != nil {
					sum += yen(*item.LineTotal)
				}
			}
			if sum > 0 {
				return sum, true
			}
		}
	}
	if drafted.fallback != nil && drafted.fallback.TotalAmount != nil {
		return *drafted.fallback.TotalAmount, true
	}
	return 0, false
}

// buildItems turns the draft into persistable line items. Engine-assigned
// categories are resolved by name and stamped with the OCR source; unknown
// names are dropped with a warning. The result always has at least one item.
func (p *Pipeline) buildItems(ctx context.Context, drafted expenseDraft) []model.ExpenseItem {
	var items []model.ExpenseItem

	if data := drafted.data; data != nil {
		for _, ri := range data.Items {
			name := strings.TrimSpace(stringValue(ri.Name))
			if name == "" {
				continue
			}

			item := model.ExpenseItem{ProductName: name}
			if ri.Quantity != nil {
				item.Quantity = ri.Quantity
			}
			if ri.UnitPrice != nil {
				unitPrice := yen(*ri.UnitPrice)
				item.UnitPrice = &unitPrice
			}
			if ri.LineTotal != nil {
				item.LineTotal = yen(*ri.LineTotal)
			}

			p.assignOCRCategory(ctx, &item, ri)
			items = append(items, item)
		}
	}

	if len(items) == 0 && drafted.fallback != nil {
		for _, di := range drafted.fallback.Items {
			items = append(items, model.ExpenseItem{
				ProductName: di.Name,
				LineTotal:   di.Amount,
			})
		}
	}

	if len(items) == 0 {
		// Nothing recognizable: keep a single placeholder so the expense
		// still carries its total.
		name := "レシート購入品"
		var total int64
		if drafted.fallback != nil {
			if drafted.fallback.ProductNameGuess != "" {
				name = drafted.fallback.ProductNameGuess
			}
			if drafted.fallback.TotalAmount != nil {
				total = *drafted.fallback.TotalAmount
			}
		}
		if t, ok := draftTotal(drafted); ok {
			total = t
		}
		items = append(items, model.ExpenseItem{ProductName: name, LineTotal: total})
	}
	return items
}

func (p *Pipeline) assignOCRCategory(ctx context.Context, item *model.ExpenseItem, ri codex.ReceiptItem) {
	if ri.Category == nil {
		return
	}

	category, err := p.store.GetCategoryByName(ctx, *ri.Category)
	if err != nil {
		p.logger.Warn("Engine returned unknown category",
			"category", *ri.Category, "item", item.ProductName)
		return
	}

	source := model.SourceOCR
	item.CategoryID = &category.ID
	item.CategorySource = &source
	if ri.CategorySubstituted {
		confidence := codex.FallbackConfidenceCap
		item.Confidence = &confidence
	}
}

func yen(amount float64) int64 {
	return int64(math.Round(amount))
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
