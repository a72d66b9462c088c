package driven

import (
	"context"

	"github.com/custodia-labs/complyref/internal/core/domain"
)

// TaskStore journals background ingest tasks.
type TaskStore interface {
	// SaveTask creates or updates a task record by ID.
	SaveTask(ctx context.Context, task domain.TaskRecord) error

	// GetTask retrieves a task record.
	// Returns domain.ErrNotFound if the task does not exist.
	GetTask(ctx context.Context, id string) (*domain.TaskRecord, error)

	// ListTasks returns the most recent tasks first, at most limit (limit <= 0 means all).
	ListTasks(ctx context.Context, limit int) ([]domain.TaskRecord, error)
}
