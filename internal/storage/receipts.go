package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
	"github.com/ponpaku/ai-kakeibo-2/internal/model"
)

const receiptColumns = `id, expense_id, original_filename, stored_filename,
	file_path, file_size, mime_type, engine_model, raw_output, ocr_processed,
	ocr_started_at, ocr_completed_at, created_at`

// CreateReceipt inserts the receipt record for an expense. One receipt per
// expense.
func (s *SQLiteStorage) CreateReceipt(ctx context.Context, receipt *model.Receipt) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateReceipt(receipt); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO receipts (expense_id, original_filename, stored_filename,
			file_path, file_size, mime_type)
		VALUES (?, ?, ?, ?, ?, ?)
	`, receipt.ExpenseID, receipt.OriginalFilename, receipt.StoredFilename,
		receipt.FilePath, receipt.FileSize, receipt.MimeType)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("receipt for expense %d: %w", receipt.ExpenseID, common.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to create receipt: %w", err)
	}

	receipt.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get receipt ID: %w", err)
	}
	return nil
}

// GetReceipt retrieves one receipt by ID.
func (s *SQLiteStorage) GetReceipt(ctx context.Context, id int64) (*model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = ?`, id)

	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("receipt %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt: %w", err)
	}
	return receipt, nil
}

// GetReceiptByExpense retrieves the receipt attached to an expense.
func (s *SQLiteStorage) GetReceiptByExpense(ctx context.Context, expenseID int64) (*model.Receipt, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE expense_id = ?`, expenseID)

	receipt, err := scanReceipt(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("receipt for expense %d: %w", expenseID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt by expense: %w", err)
	}
	return receipt, nil
}

// MarkReceiptOCRStarted records the start of an OCR run.
func (s *SQLiteStorage) MarkReceiptOCRStarted(ctx context.Context, id int64, startedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE receipts SET ocr_started_at = ?, ocr_completed_at = NULL WHERE id = ?
	`, startedAt, id)
	if err != nil {
		return fmt.Errorf("failed to mark receipt OCR started: %w", err)
	}
	return requireRow(result, "receipt", id)
}

// SetReceiptOCRResult stores the unmodified engine output after a run
// finishes, successful or not.
func (s *SQLiteStorage) SetReceiptOCRResult(ctx context.Context, id int64, engineModel, rawOutput string, processed bool, completedAt time.Time) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE receipts
		SET engine_model = ?, raw_output = ?, ocr_processed = ?, ocr_completed_at = ?
		WHERE id = ?
	`, engineModel, rawOutput, processed, completedAt, id)
	if err != nil {
		return fmt.Errorf("failed to set receipt OCR result: %w", err)
	}
	return requireRow(result, "receipt", id)
}

func scanReceipt(row rowScanner) (*model.Receipt, error) {
	var receipt model.Receipt
	err := row.Scan(
		&receipt.ID,
		&receipt.ExpenseID,
		&receipt.OriginalFilename,
		&receipt.StoredFilename,
		&receipt.FilePath,
		&receipt.FileSize,
		&receipt.MimeType,
		&receipt.EngineModel,
		&receipt.RawOutput,
		&receipt.OCRProcessed,
		&receipt.OCRStartedAt,
		&receipt.OCRCompletedAt,
		&receipt.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &receipt, nil
}
