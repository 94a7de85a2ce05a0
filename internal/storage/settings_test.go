package storage

import (
	"context"
	"testing"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEngineSettings(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	t.Run("creates defaults on first access", func(t *testing.T) {
		got, err := store.GetEngineSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
		assert.Equal(t, model.DefaultOCRModel, got.OCRModel)
		assert.Equal(t, model.DefaultSandboxMode, got.SandboxMode)
		assert.True(t, got.OCREnabled)
		assert.True(t, got.ClassificationEnabled)
		assert.True(t, got.SkipRepoCheck)
	})

	t.Run("subsequent reads return the same row", func(t *testing.T) {
		got, err := store.GetEngineSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), got.ID)
	})
}

func TestUpdateEngineSettings(t *testing.T) {
	store := newTestStorage(t)
	ctx := context.Background()

	t.Run("updates present fields", func(t *testing.T) {
		got, err := store.UpdateEngineSettings(ctx, model.SettingsPatch{
			OCREnabled:      model.NewField(false),
			OCRSystemPrompt: model.NewField("カスタムプロンプト"),
		})
		require.NoError(t, err)
		assert.False(t, got.OCREnabled)
		assert.Equal(t, "カスタムプロンプト", got.OCRSystemPrompt)
		assert.Equal(t, model.DefaultClassificationModel, got.ClassificationModel)
	})

	t.Run("rejects null model", func(t *testing.T) {
		_, err := store.UpdateEngineSettings(ctx, model.SettingsPatch{
			OCRModel: model.NullField[string](),
		})
		assert.ErrorIs(t, err, ErrEmptyString)
	})

	t.Run("empty patch returns current settings", func(t *testing.T) {
		got, err := store.UpdateEngineSettings(ctx, model.SettingsPatch{})
		require.NoError(t, err)
		assert.False(t, got.OCREnabled)
	})
}
