package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrQueueClosed is returned when enqueueing after Close.
var ErrQueueClosed = errors.New("queue is closed")

const defaultBufferSize = 256

// MemoryQueue runs tasks on an in-process worker pool. Suitable for
// single-node deployments where the API server and the workers share one
// process.
type MemoryQueue struct {
	tasks   chan Task
	handler Handler
	logger  *slog.Logger
	wg      sync.WaitGroup
	closeMu sync.RWMutex
	closed  bool
}

// NewMemoryQueue starts workers delivering tasks to handler. The queue buffers
// up to defaultBufferSize pending tasks before Enqueue blocks.
func NewMemoryQueue(workers int, handler Handler, logger *slog.Logger) *MemoryQueue {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &MemoryQueue{
		tasks:   make(chan Task, defaultBufferSize),
		handler: handler,
		logger:  logger,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.worker(i)
	}
	return q
}

func (q *MemoryQueue) worker(id int) {
	defer q.wg.Done()

	for task := range q.tasks {
		// Worker context outlives the request that enqueued the task.
		ctx := context.Background()
		if err := q.handler(ctx, task); err != nil {
			q.logger.Error("Task failed",
				"worker", id,
				"kind", task.Kind,
				"expense_id", task.ExpenseID,
				"item_id", task.ItemID,
				"error", err)
		}
	}
}

// Enqueue submits a task to the worker pool.
func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	if !task.Kind.Valid() {
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}

	// The read lock keeps Close from closing the channel mid-send.
	q.closeMu.RLock()
	defer q.closeMu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued work to drain.
func (q *MemoryQueue) Close() error {
	q.closeMu.Lock()
	if q.closed {
		q.closeMu.Unlock()
		return nil
	}
	q.closed = true
	close(q.tasks)
	q.closeMu.Unlock()

	q.wg.Wait()
	return nil
}
