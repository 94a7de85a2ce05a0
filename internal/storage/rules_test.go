package storage

import (
	"context"
	"testing"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedRule(t *testing.T, store *SQLiteStorage, categoryID int64, pattern string, priority int) *model.CategoryRule {
	t.Helper()

	rule := &model.CategoryRule{
		Pattern:    pattern,
		MatchKind:  model.MatchContains,
		CategoryID: categoryID,
		Confidence: 0.9,
		Priority:   priority,
		IsActive:   true,
	}
	require.NoError(t, store.CreateRule(context.Background(), rule))
	return rule
}

func TestCreateRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	categoryID := seedCategory(t, store, "食費")

	t.Run("creates valid rule", func(t *testing.T) {
		rule := seedRule(t, store, categoryID, "コーヒー|紅茶", 10)
		assert.NotZero(t, rule.ID)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		rule := &model.CategoryRule{
			Pattern:    "パン",
			MatchKind:  model.MatchContains,
			CategoryID: 99999,
			Confidence: 0.9,
		}
		err := store.CreateRule(ctx, rule)
		assert.ErrorIs(t, err, common.ErrUnknownCategory)
	})

	t.Run("rejects unknown match kind", func(t *testing.T) {
		rule := &model.CategoryRule{
			Pattern:    "パン",
			MatchKind:  "fuzzy",
			CategoryID: categoryID,
			Confidence: 0.9,
		}
		err := store.CreateRule(ctx, rule)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestGetActiveRules(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	categoryID := seedCategory(t, store, "食費")

	// Insert out of priority order to prove ordering comes from the query.
	second := seedRule(t, store, categoryID, "b", 20)
	firstLater := seedRule(t, store, categoryID, "c", 10)
	first := seedRule(t, store, categoryID, "a", 10)

	inactive := seedRule(t, store, categoryID, "d", 1)
	require.NoError(t, store.UpdateRule(ctx, inactive.ID, model.RulePatch{
		IsActive: model.NewField(false),
	}))

	got, err := store.GetActiveRules(ctx)
	require.NoError(t, err)
	require.Len(t, got, 3)

	// Priority ascending, then ID ascending within equal priority.
	assert.Equal(t, firstLater.ID, got[0].ID)
	assert.Equal(t, first.ID, got[1].ID)
	assert.Equal(t, second.ID, got[2].ID)
}

func TestUpdateRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	foodID := seedCategory(t, store, "食費")
	dailyID := seedCategory(t, store, "日用品")
	rule := seedRule(t, store, foodID, "洗剤", 50)

	t.Run("moves rule to another category", func(t *testing.T) {
		patch := model.RulePatch{
			CategoryID: model.NewField(dailyID),
			Priority:   model.NewField(5),
		}
		require.NoError(t, store.UpdateRule(ctx, rule.ID, patch))

		got, err := store.GetRule(ctx, rule.ID)
		require.NoError(t, err)
		assert.Equal(t, dailyID, got.CategoryID)
		assert.Equal(t, 5, got.Priority)
	})

	t.Run("rejects unknown category", func(t *testing.T) {
		patch := model.RulePatch{CategoryID: model.NewField(int64(99999))}
		err := store.UpdateRule(ctx, rule.ID, patch)
		assert.ErrorIs(t, err, common.ErrUnknownCategory)
	})

	t.Run("rejects null pattern", func(t *testing.T) {
		patch := model.RulePatch{Pattern: model.NullField[string]()}
		err := store.UpdateRule(ctx, rule.ID, patch)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestDeleteRule(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()
	categoryID := seedCategory(t, store, "食費")
	rule := seedRule(t, store, categoryID, "パン", 10)

	require.NoError(t, store.DeleteRule(ctx, rule.ID))
	_, err := store.GetRule(ctx, rule.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	assert.ErrorIs(t, store.DeleteRule(ctx, rule.ID), common.ErrNotFound)
}
