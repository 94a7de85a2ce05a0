package pipeline

import (
	"context"
	"fmt"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/queue"
)

// CreateManualExpense persists a hand-entered expense, applies rules to its
// items synchronously, and schedules engine classification for the rest.
// Items the caller already categorized keep their manual assignment.
func (p *Pipeline) CreateManualExpense(ctx context.Context, expense *model.Expense, items []model.ExpenseItem) error {
	for i := range items {
		if items[i].CategoryID != nil && items[i].CategorySource == nil {
			source := model.SourceManual
			items[i].CategorySource = &source
		}
	}

	expense.Status = model.StatusPending
	if err := p.store.CreateExpense(ctx, expense, items); err != nil {
		return err
	}

	unmatched, err := p.applyRules(ctx, expense, items)
	if err != nil {
		return err
	}
	return p.scheduleClassification(ctx, expense.ID, unmatched)
}

// Reclassify wipes every item's category on the expense and runs the whole
// categorization pass again. Safe to call in any status.
func (p *Pipeline) Reclassify(ctx context.Context, expenseID int64) error {
	expense, err := p.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}

	if err := p.store.ClearItemCategories(ctx, expenseID); err != nil {
		return err
	}

	items, err := p.store.GetItemsByExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return fmt.Errorf("expense %d has no items to classify", expenseID)
	}

	unmatched, err := p.applyRules(ctx, expense, items)
	if err != nil {
		return err
	}

	p.logger.Info("Reclassification started",
		"expense_id", expenseID,
		"items", len(items),
		"scheduled", len(unmatched))
	return p.scheduleClassification(ctx, expenseID, unmatched)
}

// Reprocess reruns OCR over the expense's stored receipt image. Existing
// items are kept; the OCR task skips classification when asked.
func (p *Pipeline) Reprocess(ctx context.Context, expenseID int64, skipClassify bool) error {
	if _, err := p.store.GetReceiptByExpense(ctx, expenseID); err != nil {
		return err
	}
	if err := p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusPending); err != nil {
		return err
	}
	return p.scheduler.Enqueue(ctx, queue.Task{
		Kind:         queue.TaskProcessReceipt,
		ExpenseID:    expenseID,
		SkipClassify: skipClassify,
	})
}
