package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type taskRecorder struct {
	mu    sync.Mutex
	tasks []Task
	err   error
}

func (r *taskRecorder) handle(_ context.Context, task Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks = append(r.tasks, task)
	return r.err
}

func (r *taskRecorder) recorded() []Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Task(nil), r.tasks...)
}

func TestMemoryQueueDeliversTasks(t *testing.T) {
	recorder := &taskRecorder{}
	q := NewMemoryQueue(2, recorder.handle, nil)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Task{Kind: TaskProcessReceipt, ExpenseID: 1}))
	require.NoError(t, q.Enqueue(ctx, Task{Kind: TaskClassifyItem, ExpenseID: 1, ItemID: 10}))
	require.NoError(t, q.Enqueue(ctx, Task{Kind: TaskClassifyItem, ExpenseID: 1, ItemID: 11}))

	require.NoError(t, q.Close())

	got := recorder.recorded()
	require.Len(t, got, 3)

	kinds := make(map[TaskKind]int)
	for _, task := range got {
		kinds[task.Kind]++
	}
	assert.Equal(t, 1, kinds[TaskProcessReceipt])
	assert.Equal(t, 2, kinds[TaskClassifyItem])
}

func TestMemoryQueueRejectsUnknownKind(t *testing.T) {
	q := NewMemoryQueue(1, (&taskRecorder{}).handle, nil)
	defer func() { _ = q.Close() }()

	err := q.Enqueue(context.Background(), Task{Kind: "sweep_floor"})
	assert.Error(t, err)
}

func TestMemoryQueueSurvivesHandlerErrors(t *testing.T) {
	recorder := &taskRecorder{err: errors.New("boom")}
	q := NewMemoryQueue(1, recorder.handle, nil)

	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, Task{Kind: TaskClassifyItem, ExpenseID: 1, ItemID: 1}))
	require.NoError(t, q.Enqueue(ctx, Task{Kind: TaskClassifyItem, ExpenseID: 1, ItemID: 2}))
	require.NoError(t, q.Close())

	// Both tasks were attempted despite the first failing.
	assert.Len(t, recorder.recorded(), 2)
}

func TestMemoryQueueClose(t *testing.T) {
	t.Run("drains pending tasks", func(t *testing.T) {
		slow := &taskRecorder{}
		q := NewMemoryQueue(1, func(ctx context.Context, task Task) error {
			time.Sleep(10 * time.Millisecond)
			return slow.handle(ctx, task)
		}, nil)

		ctx := context.Background()
		for i := int64(1); i <= 5; i++ {
			require.NoError(t, q.Enqueue(ctx, Task{Kind: TaskClassifyItem, ExpenseID: 1, ItemID: i}))
		}

		require.NoError(t, q.Close())
		assert.Len(t, slow.recorded(), 5)
	})

	t.Run("enqueue after close fails", func(t *testing.T) {
		q := NewMemoryQueue(1, (&taskRecorder{}).handle, nil)
		require.NoError(t, q.Close())

		err := q.Enqueue(context.Background(), Task{Kind: TaskClassifyItem, ExpenseID: 1})
		assert.ErrorIs(t, err, ErrQueueClosed)
	})

	t.Run("double close is safe", func(t *testing.T) {
		q := NewMemoryQueue(1, (&taskRecorder{}).handle, nil)
		require.NoError(t, q.Close())
		require.NoError(t, q.Close())
	})
}
