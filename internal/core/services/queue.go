package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
	"github.com/custodia-labs/complyref/internal/core/ports/driving"
	"github.com/custodia-labs/complyref/internal/logger"
)

// Ensure IngestQueue implements the interface.
var _ driving.TaskQueue = (*IngestQueue)(nil)

// Ensure IngestTask implements the interface.
var _ driving.Task = (*IngestTask)(nil)

// IngestQueue runs tasks one at a time on a single worker goroutine, in
// submission order. Every state change is journaled to the task store.
type IngestQueue struct {
	store driven.TaskStore
	now   func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*IngestTask
	closed  bool
	wg      sync.WaitGroup
}

// NewIngestQueue creates a queue journaling to store and starts its worker.
func NewIngestQueue(store driven.TaskStore) *IngestQueue {
	q := &IngestQueue{store: store, now: time.Now}
	q.cond = sync.NewCond(&q.mu)

	q.wg.Add(1)
	go q.work()
	return q
}

// Submit enqueues fn. The returned task is already journaled as queued.
func (q *IngestQueue) Submit(ctx context.Context, name string, fn driving.TaskFunc) (driving.Task, error) {
	if fn == nil {
		return nil, fmt.Errorf("task %q has no body: %w", name, domain.ErrInvalidInput)
	}

	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return nil, domain.ErrQueueClosed
	}

	task := &IngestTask{
		ctx:  ctx,
		fn:   fn,
		done: make(chan struct{}),
		record: domain.TaskRecord{
			ID:       uuid.New().String(),
			Name:     name,
			State:    domain.TaskQueued,
			QueuedAt: q.now(),
		},
	}
	// Journal before the worker can see the task, so states land in order.
	q.journal(task)

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.finish(task, domain.ErrQueueClosed)
		return nil, domain.ErrQueueClosed
	}
	q.pending = append(q.pending, task)
	q.cond.Signal()
	q.mu.Unlock()

	logger.Debug("task %s (%s) queued", task.ID(), name)
	return task, nil
}

// History returns journaled tasks, most recent first.
func (q *IngestQueue) History(ctx context.Context, limit int) ([]domain.TaskRecord, error) {
	tasks, err := q.store.ListTasks(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Close stops accepting tasks and blocks until every queued task has run.
func (q *IngestQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}

func (q *IngestQueue) work() {
	defer q.wg.Done()
	for {
		task, ok := q.next()
		if !ok {
			return
		}
		q.run(task)
	}
}

// next blocks for the oldest pending task. It reports false once the queue
// is closed and drained.
func (q *IngestQueue) next() (*IngestTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.pending) == 0 {
		return nil, false
	}
	task := q.pending[0]
	q.pending[0] = nil
	q.pending = q.pending[1:]
	return task, true
}

func (q *IngestQueue) run(task *IngestTask) {
	if err := task.ctx.Err(); err != nil {
		q.finish(task, fmt.Errorf("cancelled before start: %w", err))
		return
	}

	task.mu.Lock()
	task.record.State = domain.TaskRunning
	task.record.StartedAt = q.now()
	task.mu.Unlock()
	q.journal(task)

	logger.Section("Task " + task.record.Name)
	q.finish(task, task.call())
}

func (q *IngestQueue) finish(task *IngestTask, err error) {
	task.mu.Lock()
	task.err = err
	task.record.FinishedAt = q.now()
	if task.record.StartedAt.IsZero() {
		task.record.StartedAt = task.record.FinishedAt
	}
	if err != nil {
		task.record.State = domain.TaskFailed
		task.record.Error = err.Error()
	} else {
		task.record.State = domain.TaskSucceeded
	}
	rec := task.record
	task.mu.Unlock()

	q.journal(task)
	close(task.done)

	if err != nil {
		logger.Warn("task %s (%s) failed: %v", rec.ID, rec.Name, err)
		return
	}
	logger.Info("task %s (%s) finished in %s", rec.ID, rec.Name, rec.Duration().Round(time.Millisecond))
}

// journal records the task state. A journal failure never fails the task.
func (q *IngestQueue) journal(task *IngestTask) {
	rec := task.Record()
	if err := q.store.SaveTask(context.WithoutCancel(task.ctx), rec); err != nil {
		logger.Warn("journal task %s: %v", rec.ID, err)
	}
}

// IngestTask is a handle on a task submitted to an IngestQueue.
type IngestTask struct {
	ctx  context.Context
	fn   driving.TaskFunc
	done chan struct{}

	mu     sync.Mutex
	record domain.TaskRecord
	err    error
}

// ID returns the task identifier.
func (t *IngestTask) ID() string {
	return t.record.ID
}

// State returns the current lifecycle state.
func (t *IngestTask) State() domain.TaskState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record.State
}

// Record returns a snapshot of the journaled task state.
func (t *IngestTask) Record() domain.TaskRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.record
}

// Wait blocks until the task finishes or ctx is done.
func (t *IngestTask) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call runs the task body, turning a panic into a task failure so the
// worker survives.
func (t *IngestTask) call() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return t.fn(t.ctx)
}
