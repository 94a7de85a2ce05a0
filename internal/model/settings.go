package model

import "time"

// Default engine models and execution mode.
const (
	DefaultOCRModel            = "gpt-5.1-codex-mini"
	DefaultClassificationModel = "gpt-5.1-codex-mini"
	DefaultSandboxMode         = "read-only"
)

// EngineSettings is the single-row, database-backed configuration for the
// external OCR/classification engine. Runtime-tunable, unlike file config.
type EngineSettings struct {
	UpdatedAt                  time.Time `json:"updated_at"`
	OCRModel                   string    `json:"ocr_model"`
	ClassificationModel        string    `json:"classification_model"`
	SandboxMode                string    `json:"sandbox_mode"`
	OCRSystemPrompt            string    `json:"ocr_system_prompt,omitempty"`
	ClassificationSystemPrompt string    `json:"classification_system_prompt,omitempty"`
	ID                         int64     `json:"id"`
	OCREnabled                 bool      `json:"ocr_enabled"`
	ClassificationEnabled      bool      `json:"classification_enabled"`
	SkipRepoCheck              bool      `json:"skip_repo_check"`
}

// DefaultEngineSettings returns the settings row created on first use.
func DefaultEngineSettings() EngineSettings {
	return EngineSettings{
		OCRModel:              DefaultOCRModel,
		OCREnabled:            true,
		ClassificationModel:   DefaultClassificationModel,
		ClassificationEnabled: true,
		SandboxMode:           DefaultSandboxMode,
		SkipRepoCheck:         true,
	}
}
