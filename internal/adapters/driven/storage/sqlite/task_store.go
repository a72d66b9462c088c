package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/complyref/internal/core/domain"
	"github.com/custodia-labs/complyref/internal/core/ports/driven"
)

// ==================== Task Store ====================

// taskStore implements driven.TaskStore.
type taskStore struct {
	store *Store
}

var _ driven.TaskStore = (*taskStore)(nil)

// SaveTask creates or updates a task record by ID.
func (s *taskStore) SaveTask(ctx context.Context, task domain.TaskRecord) error {
	if task.ID == "" {
		return domain.ErrInvalidInput
	}
	if task.QueuedAt.IsZero() {
		task.QueuedAt = time.Now().UTC()
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO tasks (id, name, state, error, queued_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			error = excluded.error,
			started_at = excluded.started_at,
			finished_at = excluded.finished_at
	`, task.ID, task.Name, string(task.State), nullString(task.Error),
		task.QueuedAt.UTC().Format(time.RFC3339Nano),
		formatNullableTime(task.StartedAt), formatNullableTime(task.FinishedAt))

	if err != nil {
		return fmt.Errorf("saving task: %w", err)
	}
	return nil
}

// GetTask retrieves a task record by ID.
func (s *taskStore) GetTask(ctx context.Context, id string) (*domain.TaskRecord, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT id, name, state, error, queued_at, started_at, finished_at
		FROM tasks WHERE id = ?
	`, id)

	return scanTask(row)
}

// ListTasks returns the most recently queued tasks first.
func (s *taskStore) ListTasks(ctx context.Context, limit int) ([]domain.TaskRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, name, state, error, queued_at, started_at, finished_at
		FROM tasks
		ORDER BY queued_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying tasks: %w", err)
	}
	defer rows.Close()

	var tasks []domain.TaskRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tasks: %w", err)
	}
	return tasks, nil
}

// ==================== Helper Functions ====================

// scanTask scans one tasks row.
func scanTask(row scanner) (*domain.TaskRecord, error) {
	var task domain.TaskRecord
	var state, queuedAt string
	var errMsg, startedAt, finishedAt sql.NullString

	if err := row.Scan(&task.ID, &task.Name, &state, &errMsg,
		&queuedAt, &startedAt, &finishedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning task: %w", err)
	}

	task.State = domain.TaskState(state)
	task.Error = errMsg.String
	task.QueuedAt = parseNullableTime(sql.NullString{String: queuedAt, Valid: true})
	task.StartedAt = parseNullableTime(startedAt)
	task.FinishedAt = parseNullableTime(finishedAt)

	return &task, nil
}

// formatNullableTime formats a time as RFC3339, or returns nil for zero time.
func formatNullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseNullableTime parses a nullable RFC3339 string.
// Returns zero time if the string is empty or invalid.
func parseNullableTime(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
