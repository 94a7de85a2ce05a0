// Package pipeline orchestrates expense ingestion: receipt OCR, rule
// matching, engine classification, and the expense status lifecycle.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/codex"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/ponpaku/ai-kakeibo-2/internal/queue"
	"github.com/ponpaku/ai-kakeibo-2/internal/rules"
	"github.com/ponpaku/ai-kakeibo-2/internal/storage"
)

// Storage is the persistence surface the pipeline needs.
type Storage interface {
	rules.Source

	CreateExpense(ctx context.Context, expense *model.Expense, items []model.ExpenseItem) error
	GetExpense(ctx context.Context, id int64) (*model.Expense, error)
	UpdateExpense(ctx context.Context, id int64, patch model.ExpensePatch) error
	UpdateExpenseStatus(ctx context.Context, id int64, status model.ExpenseStatus) error

	CreateItems(ctx context.Context, expenseID int64, items []model.ExpenseItem) error
	GetItem(ctx context.Context, id int64) (*model.ExpenseItem, error)
	GetItemsByExpense(ctx context.Context, expenseID int64) ([]model.ExpenseItem, error)
	UncategorizedItems(ctx context.Context, expenseID int64) ([]model.ExpenseItem, error)
	SetItemCategory(ctx context.Context, itemID, categoryID int64, source model.CategorySource, confidence *float64) error
	ClearItemCategories(ctx context.Context, expenseID int64) error

	GetCategoryByName(ctx context.Context, name string) (*model.Category, error)
	CategoryNames(ctx context.Context) ([]string, error)

	CreateReceipt(ctx context.Context, receipt *model.Receipt) error
	GetReceiptByExpense(ctx context.Context, expenseID int64) (*model.Receipt, error)
	MarkReceiptOCRStarted(ctx context.Context, id int64, startedAt time.Time) error
	SetReceiptOCRResult(ctx context.Context, id int64, engineModel, rawOutput string, processed bool, completedAt time.Time) error

	GetEngineSettings(ctx context.Context) (*model.EngineSettings, error)
}

// Engine runs OCR and classification. Satisfied by codex.Client.
type Engine interface {
	ProcessReceipt(ctx context.Context, imagePath string, categories []string, opts codex.Options) codex.OCRResult
	Classify(ctx context.Context, input codex.ClassifyInput, categories []string, opts codex.Options) codex.ClassifyResult
}

var _ Storage = (*storage.SQLiteStorage)(nil)

// Pipeline ties storage, the rule matcher, the engine, and the task queue
// together.
type Pipeline struct {
	store     Storage
	matcher   *rules.Matcher
	engine    Engine
	scheduler queue.Scheduler
	logger    *slog.Logger
	now       func() time.Time
}

// New creates a pipeline. The scheduler is attached separately because the
// queue needs the pipeline's task handler first.
func New(store Storage, engine Engine, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:   store,
		matcher: rules.NewMatcher(store),
		engine:  engine,
		logger:  logger,
		now:     time.Now,
	}
}

// SetScheduler attaches the task queue. Must be called before any operation
// that enqueues work.
func (p *Pipeline) SetScheduler(s queue.Scheduler) {
	p.scheduler = s
}

// HandleTask dispatches one queued task. Tasks are not retried. Only an
// extraction failure marks the expense failed; a classification failure leaves
// its item uncategorized, holding the header for a later recomputation or a
// manual pass.
func (p *Pipeline) HandleTask(ctx context.Context, task queue.Task) error {
	switch task.Kind {
	case queue.TaskProcessReceipt:
		if err := p.ProcessReceipt(ctx, task.ExpenseID, task.SkipClassify); err != nil {
			if statusErr := p.store.UpdateExpenseStatus(ctx, task.ExpenseID, model.StatusFailed); statusErr != nil {
				p.logger.Error("Failed to mark expense failed",
					"expense_id", task.ExpenseID, "error", statusErr)
			}
			return err
		}
		return nil
	case queue.TaskClassifyItem:
		return p.ClassifyItem(ctx, task.ExpenseID, task.ItemID)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}

// matchCandidates builds the texts a rule is evaluated against for one item.
func matchCandidates(item *model.ExpenseItem, expense *model.Expense) []string {
	return []string{item.ProductName, expense.StoreName, expense.Note}
}

// applyRules runs the rule matcher over every uncategorized item, assigning
// matches in place. It returns the items still left without a category.
func (p *Pipeline) applyRules(ctx context.Context, expense *model.Expense, items []model.ExpenseItem) ([]model.ExpenseItem, error) {
	var unmatched []model.ExpenseItem
	for i := range items {
		item := &items[i]
		if item.Categorized() {
			continue
		}

		rule, err := p.matcher.FindMatch(ctx, matchCandidates(item, expense))
		if err != nil {
			return nil, fmt.Errorf("rule matching failed: %w", err)
		}
		if rule == nil {
			unmatched = append(unmatched, *item)
			continue
		}

		confidence := rule.Confidence
		if err := p.store.SetItemCategory(ctx, item.ID, rule.CategoryID, model.SourceRule, &confidence); err != nil {
			return nil, err
		}
		p.logger.Info("Rule matched item",
			"item_id", item.ID,
			"rule_id", rule.ID,
			"category_id", rule.CategoryID)
	}
	return unmatched, nil
}

// scheduleClassification enqueues one classification task per item and moves
// the expense to processing. With no items left it completes the expense
// instead; with classification disabled it parks the expense at pending for
// manual resolution and enqueues nothing.
func (p *Pipeline) scheduleClassification(ctx context.Context, expenseID int64, items []model.ExpenseItem) error {
	if len(items) == 0 {
		return p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusCompleted)
	}

	settings, err := p.store.GetEngineSettings(ctx)
	if err != nil {
		return err
	}
	if !settings.ClassificationEnabled {
		p.logger.Info("Classification disabled, leaving expense for manual categorization",
			"expense_id", expenseID, "uncategorized", len(items))
		return p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusPending)
	}

	if err := p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusProcessing); err != nil {
		return err
	}
	for _, item := range items {
		task := queue.Task{Kind: queue.TaskClassifyItem, ExpenseID: expenseID, ItemID: item.ID}
		if err := p.scheduler.Enqueue(ctx, task); err != nil {
			return fmt.Errorf("failed to enqueue classification: %w", err)
		}
	}
	return nil
}

// completeIfCategorized promotes the expense to completed once no
// uncategorized items remain. Items still pending leave the status alone;
// their own tasks will run this check again.
func (p *Pipeline) completeIfCategorized(ctx context.Context, expenseID int64) error {
	remaining, err := p.store.UncategorizedItems(ctx, expenseID)
	if err != nil {
		return err
	}
	if len(remaining) > 0 {
		return nil
	}
	return p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusCompleted)
}

// engineOptions builds per-call invocation options from the settings row.
func engineOptions(settings *model.EngineSettings, forOCR bool) codex.Options {
	opts := codex.Options{
		SandboxMode:   settings.SandboxMode,
		SkipRepoCheck: settings.SkipRepoCheck,
	}
	if forOCR {
		opts.Model = settings.OCRModel
		opts.SystemPrompt = settings.OCRSystemPrompt
	} else {
		opts.Model = settings.ClassificationModel
		opts.SystemPrompt = settings.ClassificationSystemPrompt
	}
	return opts
}
