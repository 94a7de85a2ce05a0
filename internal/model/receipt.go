package model

import "time"

// Receipt holds the uploaded image metadata and the unmodified OCR engine
// output for one expense, kept for audit and reprocessing. One-to-one with an
// Expense; never created on its own.
type Receipt struct {
	CreatedAt        time.Time  `json:"created_at"`
	OCRStartedAt     *time.Time `json:"ocr_started_at,omitempty"`
	OCRCompletedAt   *time.Time `json:"ocr_completed_at,omitempty"`
	OriginalFilename string     `json:"original_filename"`
	StoredFilename   string     `json:"stored_filename"`
	FilePath         string     `json:"file_path"`
	MimeType         string     `json:"mime_type"`
	EngineModel      string     `json:"engine_model,omitempty"`
	RawOutput        string     `json:"-"`
	ID               int64      `json:"id"`
	ExpenseID        int64      `json:"expense_id"`
	FileSize         int64      `json:"file_size"`
	OCRProcessed     bool       `json:"ocr_processed"`
}
