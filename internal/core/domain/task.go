package domain

import "time"

// TaskState is the lifecycle state of a background ingest task.
type TaskState string

// Task lifecycle states.
const (
	TaskQueued    TaskState = "queued"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// IsTerminal returns true once the task can no longer change state.
func (s TaskState) IsTerminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskRecord is the journaled state of one queued task.
type TaskRecord struct {
	ID         string
	Name       string
	State      TaskState
	Error      string
	QueuedAt   time.Time
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns how long the task ran, or zero if it has not finished.
func (t TaskRecord) Duration() time.Duration {
	if t.StartedAt.IsZero() || t.FinishedAt.IsZero() {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
