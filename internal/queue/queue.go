// Package queue provides asynchronous task scheduling for the ingestion
// pipeline, with an in-process backend for single-node deployments and a
// Redis backend for running workers separately.
package queue

import "context"

// TaskKind identifies what a queued task should do.
type TaskKind string

// Task kinds.
const (
	// TaskProcessReceipt runs OCR over an uploaded receipt and builds the
	// expense's line items.
	TaskProcessReceipt TaskKind = "process_receipt"
	// TaskClassifyItem categorizes a single uncategorized line item.
	TaskClassifyItem TaskKind = "classify_item"
)

// Valid reports whether k is a known task kind.
func (k TaskKind) Valid() bool {
	return k == TaskProcessReceipt || k == TaskClassifyItem
}

// Task is one unit of asynchronous work. Tasks are delivered at least once;
// handlers must tolerate duplicates.
type Task struct {
	Kind         TaskKind `json:"kind"`
	ExpenseID    int64    `json:"expense_id"`
	ItemID       int64    `json:"item_id,omitempty"`
	SkipClassify bool     `json:"skip_classify,omitempty"`
}

// Handler processes one task. A returned error marks the attempt failed; the
// task is not redelivered.
type Handler func(ctx context.Context, task Task) error

// Scheduler enqueues tasks for asynchronous execution.
type Scheduler interface {
	// Enqueue submits a task. It returns without waiting for execution.
	Enqueue(ctx context.Context, task Task) error
	// Close stops accepting tasks and waits for in-flight work to finish.
	Close() error
}
