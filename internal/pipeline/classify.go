package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/ponpaku/ai-kakeibo-2/internal/codex"
	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

// ClassifyItem categorizes one line item: rules first, then the engine.
// Items that already have a category are skipped without touching the engine,
// which makes duplicate task deliveries cheap and safe.
func (p *Pipeline) ClassifyItem(ctx context.Context, expenseID, itemID int64) error {
	item, err := p.store.GetItem(ctx, itemID)
	if err != nil {
		return err
	}
	if item.Categorized() {
		p.logger.Info("Skipping categorized item", "item_id", itemID)
		return p.completeIfCategorized(ctx, expenseID)
	}

	expense, err := p.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}

	rule, err := p.matcher.FindMatch(ctx, matchCandidates(item, expense))
	if err != nil {
		return fmt.Errorf("rule matching failed: %w", err)
	}
	if rule != nil {
		confidence := rule.Confidence
		if err := p.store.SetItemCategory(ctx, itemID, rule.CategoryID, model.SourceRule, &confidence); err != nil {
			return err
		}
		return p.completeIfCategorized(ctx, expenseID)
	}

	settings, err := p.store.GetEngineSettings(ctx)
	if err != nil {
		return err
	}
	if !settings.ClassificationEnabled {
		// Disabled between scheduling and execution. Park the expense for
		// manual categorization instead of failing it.
		p.logger.Info("Classification disabled, skipping item", "item_id", itemID)
		return p.store.UpdateExpenseStatus(ctx, expenseID, model.StatusPending)
	}

	categories, err := p.store.CategoryNames(ctx)
	if err != nil {
		return err
	}

	input := codex.ClassifyInput{
		ProductName: item.ProductName,
		StoreName:   expense.StoreName,
		Note:        expense.Note,
		Amount:      float64(item.LineTotal),
	}
	result := p.engine.Classify(ctx, input, categories, engineOptions(settings, false))
	if !result.Success {
		return fmt.Errorf("classification failed for item %d: %s", itemID, result.Error)
	}

	category, err := p.store.GetCategoryByName(ctx, result.Category)
	if errors.Is(err, common.ErrNotFound) {
		// The vocabulary came from the same table, so this means a category
		// changed mid-flight. Leave the item for a manual pass.
		p.logger.Warn("Engine returned unknown category, leaving item uncategorized",
			"item_id", itemID, "category", result.Category)
		return p.completeIfCategorized(ctx, expenseID)
	}
	if err != nil {
		return err
	}

	confidence := result.Confidence
	if err := p.store.SetItemCategory(ctx, itemID, category.ID, model.SourceAI, &confidence); err != nil {
		return err
	}

	p.logger.Info("Item classified",
		"item_id", itemID,
		"category", result.Category,
		"confidence", result.Confidence,
		"substituted", result.Substituted)
	return p.completeIfCategorized(ctx, expenseID)
}
