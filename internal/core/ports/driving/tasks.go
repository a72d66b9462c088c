package driving

import (
	"context"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// TaskFunc is the body of a background task.
type TaskFunc func(ctx context.Context) error

// Task is a handle on a submitted background task.
type Task interface {
	// ID returns the task identifier.
	ID() string

	// State returns the current lifecycle state.
	State() domain.TaskState

	// Wait blocks until the task finishes or ctx is done.
	// It returns the task's error once finished.
	Wait(ctx context.Context) error
}

// TaskQueue runs submitted tasks one at a time, in submission order.
// It is the single writer for the stores its tasks touch.
type TaskQueue interface {
	// Submit enqueues fn and returns immediately. fn runs with ctx, so
	// cancelling ctx cancels the task whether it is queued or running.
	Submit(ctx context.Context, name string, fn TaskFunc) (Task, error)

	// History returns journaled tasks, most recent first.
	History(ctx context.Context, limit int) ([]domain.TaskRecord, error)

	// Close stops accepting tasks and waits for queued ones to finish.
	Close() error
}
