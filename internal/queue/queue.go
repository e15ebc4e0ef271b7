package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler executes a task and returns its result. Handlers run on worker
// goroutines; progress is reported through task.SetProgress.
type Handler func(ctx context.Context, task *Task) (any, error)

// ErrNoHandler is returned by workers when a task type has no registered handler.
var ErrNoHandler = errors.New("queue: no handler registered for task type")

// DefaultMaxWorkers bounds handler concurrency unless overridden.
const DefaultMaxWorkers = 2

// dispatchIdle is how long the dispatcher sleeps when the FIFO is empty or
// the worker pool is saturated.
const dispatchIdle = 100 * time.Millisecond

// Stats summarizes queue state for monitoring.
type Stats struct {
	TotalTasks    int            `json:"total_tasks"`
	PendingTasks  int            `json:"pending_tasks"`
	ActiveWorkers int            `json:"active_workers"`
	MaxWorkers    int            `json:"max_workers"`
	Running       bool           `json:"running"`
	StatusCounts  map[Status]int `json:"status_counts"`
}

// Queue is an in-memory FIFO task queue. A single dispatcher goroutine
// hands pending task ids to a bounded pool of worker goroutines; task
// records stay in memory until Cleanup removes terminal ones.
type Queue struct {
	mu         sync.Mutex
	tasks      map[string]*Task
	pendingIDs []string
	handlers   map[string]Handler
	active     int
	maxWorkers int
	running    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
	logger     *slog.Logger
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxWorkers bounds the number of concurrent handlers.
func WithMaxWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.maxWorkers = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// New creates a stopped Queue; call Start to begin dispatching.
func New(opts ...Option) *Queue {
	q := &Queue{
		tasks:      make(map[string]*Task),
		handlers:   make(map[string]Handler),
		maxWorkers: DefaultMaxWorkers,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Register binds a handler to a task type. Must be called before tasks of
// that type are dispatched.
func (q *Queue) Register(taskType string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.handlers[taskType] = handler
	q.logger.Info("registered task handler", slog.String("task_type", taskType))
}

// Start launches the dispatcher goroutine. Calling Start on a running
// queue is a no-op.
func (q *Queue) Start() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	q.wg.Add(1)
	go q.dispatch()
	q.logger.Info("task queue started", slog.Int("max_workers", q.maxWorkers))
}

// Stop halts the dispatcher and waits for in-flight workers to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	q.logger.Info("task queue stopped")
}

// Add creates a pending task and returns its id.
func (q *Queue) Add(taskType string, data Data) string {
	task := &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Data:      data,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	q.mu.Lock()
	q.tasks[task.ID] = task
	q.pendingIDs = append(q.pendingIDs, task.ID)
	q.mu.Unlock()

	q.logger.Info("task added",
		slog.String("task_id", task.ID),
		slog.String("task_type", taskType),
		slog.String("video_path", data.VideoPath),
	)
	return task.ID
}

// Get returns a snapshot of the task, or false when it does not exist.
func (q *Queue) Get(taskID string) (Snapshot, bool) {
	q.mu.Lock()
	task, ok := q.tasks[taskID]
	q.mu.Unlock()
	if !ok {
		return Snapshot{}, false
	}
	return task.Snapshot(), true
}

// FindActive returns the id of a non-terminal video summary task for the
// given video path, or false when none exists.
func (q *Queue) FindActive(videoPath string) (string, bool) {
	q.mu.Lock()
	tasks := make([]*Task, 0, len(q.tasks))
	for _, task := range q.tasks {
		tasks = append(tasks, task)
	}
	q.mu.Unlock()

	for _, task := range tasks {
		snap := task.Snapshot()
		if snap.Type != TypeVideoSummary || snap.Data.VideoPath != videoPath {
			continue
		}
		if snap.Status == StatusPending || snap.Status == StatusProcessing {
			return snap.ID, true
		}
	}
	return "", false
}

// Cancel cancels a task. It succeeds only while the task is still pending;
// running handlers are not interrupted.
func (q *Queue) Cancel(taskID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	task, ok := q.tasks[taskID]
	if !ok || task.status() != StatusPending {
		return false
	}

	task.markCancelled()
	for i, id := range q.pendingIDs {
		if id == taskID {
			q.pendingIDs = append(q.pendingIDs[:i], q.pendingIDs[i+1:]...)
			break
		}
	}
	return true
}

// Stats returns aggregate queue state.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	counts := make(map[Status]int)
	for _, task := range q.tasks {
		counts[task.status()]++
	}

	return Stats{
		TotalTasks:    len(q.tasks),
		PendingTasks:  len(q.pendingIDs),
		ActiveWorkers: q.active,
		MaxWorkers:    q.maxWorkers,
		Running:       q.running,
		StatusCounts:  counts,
	}
}

// Cleanup drops terminal tasks whose completion time is older than maxAge
// and returns the number removed.
func (q *Queue) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	q.mu.Lock()
	defer q.mu.Unlock()

	removed := 0
	for id, task := range q.tasks {
		if task.completedBefore(cutoff) {
			delete(q.tasks, id)
			removed++
		}
	}
	if removed > 0 {
		q.logger.Info("cleaned up old tasks", slog.Int("removed", removed))
	}
	return removed
}

// dispatch is the dispatcher loop: it moves pending ids to workers while
// capacity is available, sleeping briefly when idle or saturated.
func (q *Queue) dispatch() {
	defer q.wg.Done()

	for {
		select {
		case <-q.stopCh:
			return
		default:
		}

		q.mu.Lock()
		var task *Task
		if q.active < q.maxWorkers && len(q.pendingIDs) > 0 {
			id := q.pendingIDs[0]
			q.pendingIDs = q.pendingIDs[1:]
			task = q.tasks[id]
			if task != nil {
				// Marking processing here, still under the queue lock,
				// closes the window where Cancel could accept a task a
				// worker is about to run.
				task.markProcessing()
				q.active++
			}
		}
		q.mu.Unlock()

		if task == nil {
			select {
			case <-q.stopCh:
				return
			case <-time.After(dispatchIdle):
			}
			continue
		}

		q.wg.Add(1)
		go q.runTask(task)
	}
}

// runTask executes a single task on a worker goroutine. Handler panics
// are converted into task failures so one bad task cannot take down the
// process.
func (q *Queue) runTask(task *Task) {
	defer q.wg.Done()
	defer func() {
		q.mu.Lock()
		q.active--
		q.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			task.markFailed(fmt.Sprintf("panic: %v", r))
			q.logger.Error("task handler panicked",
				slog.String("task_id", task.ID),
				slog.Any("panic", r),
			)
		}
	}()

	q.mu.Lock()
	handler := q.handlers[task.Type]
	q.mu.Unlock()

	q.logger.Info("processing task",
		slog.String("task_id", task.ID),
		slog.String("task_type", task.Type),
	)

	if handler == nil {
		task.markFailed(ErrNoHandler.Error() + ": " + task.Type)
		q.logger.Error("task failed",
			slog.String("task_id", task.ID),
			slog.String("error", task.Snapshot().Error),
		)
		return
	}

	result, err := handler(context.Background(), task)
	if err != nil {
		task.markFailed(err.Error())
		q.logger.Error("task failed",
			slog.String("task_id", task.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	task.markCompleted(result)
	q.logger.Info("task completed", slog.String("task_id", task.ID))
}
