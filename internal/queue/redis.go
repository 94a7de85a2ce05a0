package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ponpaku/ai-kakeibo-2/internal/common"
)

const (
	taskList    = "kakeibo:tasks"
	popTimeout  = 5 * time.Second
	pingTimeout = 5 * time.Second
)

// RedisQueue pushes tasks onto a Redis list and consumes them with blocking
// pops. It lets workers run in a separate process from the API server.
type RedisQueue struct {
	client  *redis.Client
	handler Handler
	logger  *slog.Logger
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewRedisQueue connects to Redis and starts consumer goroutines delivering
// tasks to handler. addr accepts either a redis:// URL or a host:port pair.
func NewRedisQueue(addr string, workers int, handler Handler, logger *slog.Logger) (*RedisQueue, error) {
	if workers <= 0 {
		workers = 2
	}
	if logger == nil {
		logger = slog.Default()
	}

	opt, err := redis.ParseURL(addr)
	if err != nil {
		opt = &redis.Options{Addr: addr}
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	consumeCtx, stop := context.WithCancel(context.Background())
	q := &RedisQueue{
		client:  client,
		handler: handler,
		logger:  logger,
		cancel:  stop,
	}

	q.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go q.consume(consumeCtx, i)
	}
	return q, nil
}

// Enqueue pushes a task onto the shared list. Transient Redis failures are
// retried with backoff.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	if !task.Kind.Valid() {
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	return common.WithRetry(ctx, func() error {
		return q.client.LPush(ctx, taskList, payload).Err()
	}, common.RetryOptions{MaxAttempts: 3})
}

func (q *RedisQueue) consume(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		result, err := q.client.BRPop(ctx, popTimeout, taskList).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			q.logger.Error("Failed to pop task", "worker", id, "error", err)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}

		// BRPop returns [key, value].
		if len(result) != 2 {
			continue
		}

		var task Task
		if err := json.Unmarshal([]byte(result[1]), &task); err != nil {
			q.logger.Error("Discarding malformed task", "worker", id, "error", err)
			continue
		}

		if err := q.handler(context.Background(), task); err != nil {
			q.logger.Error("Task failed",
				"worker", id,
				"kind", task.Kind,
				"expense_id", task.ExpenseID,
				"item_id", task.ItemID,
				"error", err)
		}
	}
}

// Close stops the consumers and closes the connection. Tasks still on the
// list stay in Redis for the next start.
func (q *RedisQueue) Close() error {
	q.cancel()
	q.wg.Wait()
	return q.client.Close()
}
