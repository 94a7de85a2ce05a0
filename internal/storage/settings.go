package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

const settingsColumns = `id, ocr_model, ocr_enabled, classification_model,
	classification_enabled, sandbox_mode, skip_repo_check, ocr_system_prompt,
	classification_system_prompt, updated_at`

// GetEngineSettings returns the engine settings row, creating it with
// defaults on first access.
func (s *SQLiteStorage) GetEngineSettings(ctx context.Context) (*model.EngineSettings, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	settings, err := s.readEngineSettings(ctx)
	if err == nil {
		return settings, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to get engine settings: %w", err)
	}

	defaults := model.DefaultEngineSettings()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO engine_settings (id, ocr_model, ocr_enabled,
			classification_model, classification_enabled, sandbox_mode,
			skip_repo_check, ocr_system_prompt, classification_system_prompt)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, defaults.OCRModel, defaults.OCREnabled, defaults.ClassificationModel,
		defaults.ClassificationEnabled, defaults.SandboxMode, defaults.SkipRepoCheck,
		defaults.OCRSystemPrompt, defaults.ClassificationSystemPrompt)
	if err != nil {
		return nil, fmt.Errorf("failed to create default engine settings: %w", err)
	}

	settings, err = s.readEngineSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get engine settings: %w", err)
	}
	return settings, nil
}

func (s *SQLiteStorage) readEngineSettings(ctx context.Context) (*model.EngineSettings, error) {
	var settings model.EngineSettings
	err := s.db.QueryRowContext(ctx, `
		SELECT `+settingsColumns+` FROM engine_settings WHERE id = 1
	`).Scan(
		&settings.ID,
		&settings.OCRModel,
		&settings.OCREnabled,
		&settings.ClassificationModel,
		&settings.ClassificationEnabled,
		&settings.SandboxMode,
		&settings.SkipRepoCheck,
		&settings.OCRSystemPrompt,
		&settings.ClassificationSystemPrompt,
		&settings.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

// UpdateEngineSettings applies a partial update and returns the updated row.
func (s *SQLiteStorage) UpdateEngineSettings(ctx context.Context, patch model.SettingsPatch) (*model.EngineSettings, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	// Make sure the row exists before updating it.
	if _, err := s.GetEngineSettings(ctx); err != nil {
		return nil, err
	}

	var (
		sets []string
		args []any
	)

	setString := func(column string, f model.Field[string], required bool) error {
		if !f.Present() {
			return nil
		}
		v, ok := f.Get()
		if required && (!ok || strings.TrimSpace(v) == "") {
			return fmt.Errorf("%w: %s", ErrEmptyString, column)
		}
		sets = append(sets, column+" = ?")
		args = append(args, v)
		return nil
	}
	setBool := func(column string, f model.Field[bool]) {
		if !f.Present() {
			return
		}
		v, _ := f.Get()
		sets = append(sets, column+" = ?")
		args = append(args, v)
	}

	if err := setString("ocr_model", patch.OCRModel, true); err != nil {
		return nil, err
	}
	setBool("ocr_enabled", patch.OCREnabled)
	if err := setString("classification_model", patch.ClassificationModel, true); err != nil {
		return nil, err
	}
	setBool("classification_enabled", patch.ClassificationEnabled)
	if err := setString("sandbox_mode", patch.SandboxMode, true); err != nil {
		return nil, err
	}
	setBool("skip_repo_check", patch.SkipRepoCheck)
	if err := setString("ocr_system_prompt", patch.OCRSystemPrompt, false); err != nil {
		return nil, err
	}
	if err := setString("classification_system_prompt", patch.ClassificationSystemPrompt, false); err != nil {
		return nil, err
	}

	if len(sets) > 0 {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
		_, err := s.db.ExecContext(ctx,
			"UPDATE engine_settings SET "+strings.Join(sets, ", ")+" WHERE id = 1", args...)
		if err != nil {
			return nil, fmt.Errorf("failed to update engine settings: %w", err)
		}
	}

	return s.GetEngineSettings(ctx)
}
