// Package batch accumulates near-simultaneous calls to the same
// logical operation and flushes them as a single executor invocation.
package batch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/optilayer/optilayer/pkg/errors"
	"github.com/optilayer/optilayer/pkg/types"
)

// ExecutorFunc executes one batch of parameters in order. The result
// slice must align index-for-index with params.
type ExecutorFunc func(ctx context.Context, params []any) ([]any, error)

// Config represents batch coordinator configuration.
type Config struct {
	BatchSize    int           `yaml:"batch_size"`
	BatchTimeout time.Duration `yaml:"batch_timeout"`

	Logger *slog.Logger `yaml:"-"`
}

// item is one enqueued call. done is buffered and written exactly once.
type item struct {
	params     any
	done       chan result
	enqueuedAt time.Time
}

type result struct {
	value any
	err   error
}

// queue holds pending items for one operation name. An armed timer
// means the queue is accumulating; flushes disarm it before removing
// items, so a size flush and a timer flush can never both settle the
// same item. The epoch advances on every disarm: a timer callback that
// fired but lost the mutex race to a size flush sees a newer epoch and
// leaves the re-queued remainder to its own fresh deadline.
type queue struct {
	items []*item
	timer *time.Timer
	epoch uint64
}

// Coordinator serializes queue mutation for all operations behind one
// mutex and fans batch results back to callers by position.
type Coordinator struct {
	mu        sync.Mutex
	queues    map[string]*queue
	executors map[string]ExecutorFunc

	batchSize    int
	batchTimeout time.Duration
	closed       bool

	stats  types.BatchStats
	logger *slog.Logger
}

// NewCoordinator creates a batch coordinator.
func NewCoordinator(config *Config) *Coordinator {
	if config == nil {
		config = &Config{}
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 10
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 100 * time.Millisecond
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Coordinator{
		queues:       make(map[string]*queue),
		executors:    make(map[string]ExecutorFunc),
		batchSize:    config.BatchSize,
		batchTimeout: config.BatchTimeout,
		logger:       config.Logger.With("component", "batch"),
	}
}

// Register binds an executor to an operation name.
func (c *Coordinator) Register(operation string, fn ExecutorFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.executors[operation] = fn
}

// Enqueue adds a call to the operation's queue and waits for its
// result. The queue flushes when it reaches the batch size or when the
// batch timeout fires, whichever comes first. A caller whose context
// ends while waiting gets the context error; the eventual batch result
// for its slot is discarded.
func (c *Coordinator) Enqueue(ctx context.Context, operation string, params any) (any, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, errors.NewError(errors.ErrCodeCoordinatorClosed, "coordinator is closed").
			WithComponent("batch").
			WithOperation(operation)
	}
	if _, ok := c.executors[operation]; !ok {
		c.mu.Unlock()
		return nil, errors.Newf(errors.ErrCodeUnknownOperation, "no batch executor registered for %q", operation).
			WithComponent("batch")
	}

	q := c.queues[operation]
	if q == nil {
		q = &queue{}
		c.queues[operation] = q
	}

	it := &item{
		params:     params,
		done:       make(chan result, 1),
		enqueuedAt: time.Now(),
	}
	q.items = append(q.items, it)
	c.stats.Enqueued++

	if len(q.items) >= c.batchSize {
		c.disarm(q)
		go c.flush(operation)
	} else if q.timer == nil {
		c.arm(operation, q)
	}
	c.mu.Unlock()

	select {
	case r := <-it.done:
		return r.value, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Flush forces an immediate flush of one operation's queue.
func (c *Coordinator) Flush(operation string) {
	c.flush(operation)
}

// Stats returns coordinator throughput statistics.
func (c *Coordinator) Stats() types.BatchStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	if stats.Flushes > 0 {
		stats.AvgBatchSize = float64(stats.Batched) / float64(stats.Flushes)
	}
	return stats
}

// Close flushes all residual items and rejects further enqueues.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	operations := make([]string, 0, len(c.queues))
	for op, q := range c.queues {
		c.disarm(q)
		operations = append(operations, op)
	}
	c.mu.Unlock()

	for _, op := range operations {
		for c.flushOnce(op) {
		}
	}
}

func (c *Coordinator) flush(operation string) {
	c.flushOnce(operation)
}

func (c *Coordinator) flushOnce(operation string) bool {
	return c.flushBatch(operation, 0, false)
}

// expire is the timer flush path. The epoch pins the callback to the
// accumulation window that armed it; on a mismatch the timer is stale
// and the queue belongs to a newer window.
func (c *Coordinator) expire(operation string, epoch uint64) {
	c.flushBatch(operation, epoch, true)
}

// flushBatch removes up to batchSize items from the queue, runs the
// executor once over their ordered params, and settles every removed
// item exactly once. It reports whether any items were flushed.
func (c *Coordinator) flushBatch(operation string, epoch uint64, matchEpoch bool) bool {
	c.mu.Lock()
	q := c.queues[operation]
	if matchEpoch && (q == nil || q.epoch != epoch) {
		c.mu.Unlock()
		return false
	}
	if q == nil || len(q.items) == 0 {
		if q != nil {
			c.disarm(q)
		}
		c.mu.Unlock()
		return false
	}

	c.disarm(q)

	n := len(q.items)
	if n > c.batchSize {
		n = c.batchSize
	}
	batch := q.items[:n:n]
	q.items = append([]*item(nil), q.items[n:]...)

	// Whatever stayed queued gets its own deadline.
	if len(q.items) > 0 && !c.closed {
		c.arm(operation, q)
	}

	exec := c.executors[operation]
	c.stats.Flushes++
	c.stats.Batched += int64(n)
	c.mu.Unlock()

	params := make([]any, len(batch))
	for i, it := range batch {
		params[i] = it.params
	}

	results, err := exec(context.Background(), params)
	if err == nil && len(results) != len(batch) {
		err = errors.Newf(errors.ErrCodeBatchExecutionFailed,
			"executor returned %d results for %d params", len(results), len(batch)).
			WithComponent("batch").
			WithOperation(operation)
	}

	if err != nil {
		batchErr, ok := err.(*errors.OptimizerError)
		if !ok {
			batchErr = errors.NewError(errors.ErrCodeBatchExecutionFailed, "batch executor failed").
				WithComponent("batch").
				WithOperation(operation).
				WithCause(err)
		}
		c.mu.Lock()
		c.stats.Errors += int64(len(batch))
		c.mu.Unlock()
		c.logger.Warn("batch flush failed", "operation", operation, "size", len(batch), "error", err)
		for _, it := range batch {
			it.done <- result{err: batchErr}
		}
		return true
	}

	for i, it := range batch {
		it.done <- result{value: results[i]}
	}
	return true
}

// arm schedules a timer flush for the queue's current accumulation
// window. Callers hold the mutex.
func (c *Coordinator) arm(operation string, q *queue) {
	epoch := q.epoch
	q.timer = time.AfterFunc(c.batchTimeout, func() {
		c.expire(operation, epoch)
	})
}

// disarm cancels the pending flush timer and invalidates any callback
// already in flight. Callers hold the mutex.
func (c *Coordinator) disarm(q *queue) {
	q.epoch++
	if q.timer != nil {
		q.timer.Stop()
		q.timer = nil
	}
}
