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

// waitForStatus polls until the task reaches want or the deadline passes.
func waitForStatus(t *testing.T, q *Queue, taskID string, want Status) Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, ok := q.Get(taskID)
		require.True(t, ok)
		if snap.Status == want {
			return snap
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s never reached status %s", taskID, want)
	return Snapshot{}
}

func TestTaskSnapshot(t *testing.T) {
	task := &Task{
		ID:        "t1",
		Type:      TypeVideoSummary,
		Data:      Data{VideoPath: "/videos/a.mp4", SummaryID: 7},
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	snap := task.Snapshot()
	assert.Equal(t, "t1", snap.ID)
	assert.Equal(t, StatusPending, snap.Status)
	assert.Equal(t, "/videos/a.mp4", snap.Data.VideoPath)
	assert.Nil(t, snap.StartedAt)
	assert.Nil(t, snap.CompletedAt)

	task.markProcessing()
	snap = task.Snapshot()
	assert.Equal(t, StatusProcessing, snap.Status)
	assert.NotNil(t, snap.StartedAt)

	task.markCompleted("done")
	snap = task.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, "done", snap.Result)
	assert.Equal(t, 100, snap.ProgressPercent)
	assert.NotNil(t, snap.CompletedAt)
}

func TestTaskSetProgress(t *testing.T) {
	task := &Task{ID: "t1", Status: StatusProcessing}

	task.SetProgress("halfway", 50)
	assert.Equal(t, 50, task.Snapshot().ProgressPercent)
	assert.Equal(t, "halfway", task.Snapshot().Progress)

	// Decreases are ignored; the message still updates.
	task.SetProgress("going back", 20)
	assert.Equal(t, 50, task.Snapshot().ProgressPercent)
	assert.Equal(t, "going back", task.Snapshot().Progress)

	task.SetProgress("too big", 150)
	assert.Equal(t, 100, task.Snapshot().ProgressPercent)

	task.SetProgress("negative", -5)
	assert.Equal(t, 100, task.Snapshot().ProgressPercent)
}

func TestStatusIsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusProcessing.IsTerminal())
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
}

func TestQueue_RunsHandler(t *testing.T) {
	q := New(WithMaxWorkers(1))
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		task.SetProgress("working", 50)
		return map[string]string{"ok": "yes"}, nil
	})
	q.Start()
	defer q.Stop()

	taskID := q.Add(TypeVideoSummary, Data{VideoPath: "/videos/a.mp4"})
	snap := waitForStatus(t, q, taskID, StatusCompleted)

	assert.Equal(t, 100, snap.ProgressPercent)
	assert.Equal(t, map[string]string{"ok": "yes"}, snap.Result)
	assert.NotNil(t, snap.StartedAt)
	assert.NotNil(t, snap.CompletedAt)
}

func TestQueue_HandlerError(t *testing.T) {
	q := New()
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		return nil, errors.New("pipeline exploded")
	})
	q.Start()
	defer q.Stop()

	taskID := q.Add(TypeVideoSummary, Data{VideoPath: "/videos/a.mp4"})
	snap := waitForStatus(t, q, taskID, StatusFailed)

	assert.Equal(t, "pipeline exploded", snap.Error)
}

func TestQueue_HandlerPanic(t *testing.T) {
	q := New()
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		panic("boom")
	})
	q.Start()
	defer q.Stop()

	taskID := q.Add(TypeVideoSummary, Data{})
	snap := waitForStatus(t, q, taskID, StatusFailed)

	assert.Contains(t, snap.Error, "boom")
}

func TestQueue_NoHandler(t *testing.T) {
	q := New()
	q.Start()
	defer q.Stop()

	taskID := q.Add("unregistered", Data{})
	snap := waitForStatus(t, q, taskID, StatusFailed)

	assert.Contains(t, snap.Error, "no handler registered")
}

func TestQueue_Cancel(t *testing.T) {
	t.Run("pending task cancels", func(t *testing.T) {
		q := New() // not started: tasks stay pending

		taskID := q.Add(TypeVideoSummary, Data{})
		assert.True(t, q.Cancel(taskID))

		snap, ok := q.Get(taskID)
		require.True(t, ok)
		assert.Equal(t, StatusCancelled, snap.Status)
		assert.Zero(t, q.Stats().PendingTasks)
	})

	t.Run("processing task does not cancel", func(t *testing.T) {
		release := make(chan struct{})
		q := New()
		q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
			<-release
			return nil, nil
		})
		q.Start()
		defer q.Stop()
		defer close(release)

		taskID := q.Add(TypeVideoSummary, Data{})
		waitForStatus(t, q, taskID, StatusProcessing)

		assert.False(t, q.Cancel(taskID))
	})

	t.Run("unknown task", func(t *testing.T) {
		q := New()
		assert.False(t, q.Cancel("no-such-task"))
	})
}

func TestQueue_FIFOOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		order []string
	)
	q := New(WithMaxWorkers(1))
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		mu.Lock()
		order = append(order, task.Data.VideoPath)
		mu.Unlock()
		return nil, nil
	})

	first := q.Add(TypeVideoSummary, Data{VideoPath: "/videos/1.mp4"})
	second := q.Add(TypeVideoSummary, Data{VideoPath: "/videos/2.mp4"})
	third := q.Add(TypeVideoSummary, Data{VideoPath: "/videos/3.mp4"})

	q.Start()
	defer q.Stop()

	waitForStatus(t, q, first, StatusCompleted)
	waitForStatus(t, q, second, StatusCompleted)
	waitForStatus(t, q, third, StatusCompleted)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/videos/1.mp4", "/videos/2.mp4", "/videos/3.mp4"}, order)
}

func TestQueue_BoundedConcurrency(t *testing.T) {
	const workers = 2

	var (
		mu      sync.Mutex
		active  int
		peak    int
		release = make(chan struct{})
	)
	q := New(WithMaxWorkers(workers))
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		<-release

		mu.Lock()
		active--
		mu.Unlock()
		return nil, nil
	})
	q.Start()
	defer q.Stop()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, q.Add(TypeVideoSummary, Data{}))
	}

	// Let the pool saturate, then drain.
	time.Sleep(300 * time.Millisecond)
	close(release)
	for _, id := range ids {
		waitForStatus(t, q, id, StatusCompleted)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, workers)
	assert.Equal(t, workers, peak)
}

func TestQueue_CancelRacingDispatch(t *testing.T) {
	var (
		mu  sync.Mutex
		ran = make(map[string]bool)
	)
	q := New(WithMaxWorkers(2))
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		mu.Lock()
		ran[task.ID] = true
		mu.Unlock()
		return nil, nil
	})
	q.Start()
	defer q.Stop()

	// Enqueue a burst, then cancel everything while the dispatcher is
	// draining. A Cancel that returns true must mean the handler never ran.
	const n = 200
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, q.Add(TypeVideoSummary, Data{}))
	}

	var (
		cmu       sync.Mutex
		cancelled = make(map[string]bool, n)
		wg        sync.WaitGroup
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if q.Cancel(id) {
				cmu.Lock()
				cancelled[id] = true
				cmu.Unlock()
			}
		}(id)
	}
	wg.Wait()

	deadline := time.Now().Add(10 * time.Second)
	for _, id := range ids {
		for {
			snap, ok := q.Get(id)
			require.True(t, ok)
			if snap.Status.IsTerminal() {
				break
			}
			require.True(t, time.Now().Before(deadline), "task %s never finished", id)
			time.Sleep(time.Millisecond)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	for _, id := range ids {
		if !cancelled[id] {
			continue
		}
		snap, ok := q.Get(id)
		require.True(t, ok)
		assert.Equal(t, StatusCancelled, snap.Status)
		assert.False(t, ran[id], "cancelled task %s still ran", id)
	}
}

func TestQueue_FindActive(t *testing.T) {
	q := New() // not started

	taskID := q.Add(TypeVideoSummary, Data{VideoPath: "/videos/a.mp4"})

	found, ok := q.FindActive("/videos/a.mp4")
	assert.True(t, ok)
	assert.Equal(t, taskID, found)

	_, ok = q.FindActive("/videos/other.mp4")
	assert.False(t, ok)

	q.Cancel(taskID)
	_, ok = q.FindActive("/videos/a.mp4")
	assert.False(t, ok)
}

func TestQueue_Stats(t *testing.T) {
	q := New(WithMaxWorkers(3))

	q.Add(TypeVideoSummary, Data{})
	q.Add(TypeVideoSummary, Data{})

	stats := q.Stats()
	assert.Equal(t, 2, stats.TotalTasks)
	assert.Equal(t, 2, stats.PendingTasks)
	assert.Equal(t, 0, stats.ActiveWorkers)
	assert.Equal(t, 3, stats.MaxWorkers)
	assert.False(t, stats.Running)
	assert.Equal(t, 2, stats.StatusCounts[StatusPending])
}

func TestQueue_Cleanup(t *testing.T) {
	q := New()
	q.Register(TypeVideoSummary, func(ctx context.Context, task *Task) (any, error) {
		return nil, nil
	})
	q.Start()

	done := q.Add(TypeVideoSummary, Data{})
	waitForStatus(t, q, done, StatusCompleted)
	q.Stop()

	pending := q.Add(TypeVideoSummary, Data{})

	// maxAge 0 makes every terminal task stale.
	removed := q.Cleanup(0)
	assert.Equal(t, 1, removed)

	_, ok := q.Get(done)
	assert.False(t, ok)
	_, ok = q.Get(pending)
	assert.True(t, ok)

	assert.Zero(t, q.Cleanup(time.Hour))
}

func TestQueue_StartStopIdempotent(t *testing.T) {
	q := New()
	q.Start()
	q.Start()
	q.Stop()
	q.Stop()
}
