// Package queue provides an in-process FIFO task queue with a bounded
// worker pool for background summary processing.
package queue

import (
	"sync"
	"time"
)

// TypeVideoSummary is the task type handled by the summary engine.
const TypeVideoSummary = "video_summary"

// Status represents the current state of a Task.
type Status string

const (
	// StatusPending indicates the task is waiting in the FIFO.
	StatusPending Status = "pending"
	// StatusProcessing indicates a worker is running the task handler.
	StatusProcessing Status = "processing"
	// StatusCompleted indicates the handler finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the handler returned an error.
	StatusFailed Status = "failed"
	// StatusCancelled indicates the task was cancelled before pickup.
	StatusCancelled Status = "cancelled"
)

// IsTerminal returns true if the status is a final state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Data carries the parameters of a video summary task.
type Data struct {
	// VideoPath is the path of the video being summarized.
	VideoPath string `json:"video_path"`
	// SummaryID is the store row id reserved for this run.
	SummaryID int64 `json:"summary_id"`
	// ModelName optionally overrides the default LLM model.
	ModelName string `json:"model_name,omitempty"`
	// UserID optionally tracks the requesting user.
	UserID string `json:"user_id,omitempty"`
}

// Task represents one background unit of work. All mutation goes through
// methods holding the task lock; readers take Snapshot copies.
type Task struct {
	mu sync.RWMutex

	// ID is the unique task identifier.
	ID string
	// Type selects the registered handler.
	Type string
	// Data carries the task parameters.
	Data Data
	// Status is the current lifecycle state.
	Status Status
	// Progress is free-text progress for display.
	Progress string
	// ProgressPercent is clamped to [0,100] and never decreases
	// within a task's lifetime.
	ProgressPercent int
	// Result holds the handler's return value on completion.
	Result any
	// Error holds the handler's error message on failure.
	Error string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Snapshot is an immutable copy of a task's state for API readers.
type Snapshot struct {
	ID              string     `json:"task_id"`
	Type            string     `json:"task_type"`
	Data            Data       `json:"data"`
	Status          Status     `json:"status"`
	Progress        string     `json:"progress"`
	ProgressPercent int        `json:"progress_percent"`
	Result          any        `json:"result,omitempty"`
	Error           string     `json:"error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Snapshot returns a copy of the task state safe for concurrent readers.
func (t *Task) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()

	snap := Snapshot{
		ID:              t.ID,
		Type:            t.Type,
		Data:            t.Data,
		Status:          t.Status,
		Progress:        t.Progress,
		ProgressPercent: t.ProgressPercent,
		Result:          t.Result,
		Error:           t.Error,
		CreatedAt:       t.CreatedAt,
	}
	if !t.StartedAt.IsZero() {
		started := t.StartedAt
		snap.StartedAt = &started
	}
	if !t.CompletedAt.IsZero() {
		completed := t.CompletedAt
		snap.CompletedAt = &completed
	}
	return snap
}

// SetProgress updates the task's progress message and percentage.
// Percentages are clamped to [0,100]; decreases are ignored so progress
// stays monotonic. Safe to call from the worker while readers snapshot.
func (t *Task) SetProgress(message string, percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Progress = message
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	if percent > t.ProgressPercent {
		t.ProgressPercent = percent
	}
}

// status returns the current status under the task lock.
func (t *Task) status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// markProcessing transitions pending → processing.
func (t *Task) markProcessing() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusProcessing
	t.StartedAt = time.Now().UTC()
}

// markCompleted transitions processing → completed with the handler result.
func (t *Task) markCompleted(result any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusCompleted
	t.CompletedAt = time.Now().UTC()
	t.Result = result
	t.Progress = "Completed"
	t.ProgressPercent = 100
}

// markFailed transitions processing → failed with the handler error.
func (t *Task) markFailed(errMsg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusFailed
	t.CompletedAt = time.Now().UTC()
	t.Error = errMsg
	t.Progress = "Failed: " + errMsg
}

// markCancelled transitions pending → cancelled.
func (t *Task) markCancelled() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Status = StatusCancelled
	t.CompletedAt = time.Now().UTC()
}

// completedBefore reports whether the task reached a terminal state before
// the cutoff instant. Non-terminal tasks always return false.
func (t *Task) completedBefore(cutoff time.Time) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status.IsTerminal() && !t.CompletedAt.IsZero() && t.CompletedAt.Before(cutoff)
}
