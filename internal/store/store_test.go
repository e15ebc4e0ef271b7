package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// admit is a helper asserting a successful admission.
func admit(t *testing.T, s *Store, videoPath string, force bool) int64 {
	t.Helper()
	adm, err := s.Admit(context.Background(), videoPath, force)
	require.NoError(t, err)
	require.True(t, adm.Admitted, "expected admission, got rejection: %s", adm.Reason)
	return adm.SummaryID
}

// complete is a helper finishing a run with canned artifacts.
func complete(t *testing.T, s *Store, id int64) int {
	t.Helper()
	version, err := s.Complete(context.Background(), id, Completion{
		Summary:               "• the summary",
		Transcript:            "the transcript",
		ModelUsed:             "whisper-base+llama3.2:13b",
		AudioDurationSeconds:  120.5,
		ProcessingTimeSeconds: 42.1,
	})
	require.NoError(t, err)
	return version
}

func TestOpen_PersistsToDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "summaries.db")

	s, err := Open(path)
	require.NoError(t, err)
	id := admit(t, s, "/videos/a.mp4", false)
	complete(t, s, id)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	summary, err := s.GetByPath(context.Background(), "/videos/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, summary.Status)
}

func TestAdmit(t *testing.T) {
	ctx := context.Background()

	t.Run("first start creates pending row", func(t *testing.T) {
		s := newTestStore(t)

		adm, err := s.Admit(ctx, "/videos/a.mp4", false)
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
		assert.NotZero(t, adm.SummaryID)

		summary, err := s.GetByPath(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, summary.Status)
	})

	t.Run("completed without force rejects with snapshot", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		complete(t, s, id)

		adm, err := s.Admit(ctx, "/videos/a.mp4", false)
		require.NoError(t, err)
		assert.False(t, adm.Admitted)
		assert.Equal(t, "already exists", adm.Reason)
		require.NotNil(t, adm.Existing)
		assert.Equal(t, StatusCompleted, adm.Existing.Status)
		assert.Equal(t, "• the summary", adm.Existing.Summary)
	})

	t.Run("pending without force rejects as in progress", func(t *testing.T) {
		s := newTestStore(t)
		admit(t, s, "/videos/a.mp4", false)

		adm, err := s.Admit(ctx, "/videos/a.mp4", false)
		require.NoError(t, err)
		assert.False(t, adm.Admitted)
		assert.Equal(t, "already in progress", adm.Reason)
		assert.Nil(t, adm.Existing)
	})

	t.Run("processing without force rejects as in progress", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		require.NoError(t, s.MarkProcessing(ctx, id))

		adm, err := s.Admit(ctx, "/videos/a.mp4", false)
		require.NoError(t, err)
		assert.False(t, adm.Admitted)
		assert.Equal(t, "already in progress", adm.Reason)
	})

	t.Run("failed retries without force", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		require.NoError(t, s.MarkFailure(ctx, id, StatusFailed, "boom"))

		adm, err := s.Admit(ctx, "/videos/a.mp4", false)
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
		assert.Equal(t, id, adm.SummaryID)

		summary, err := s.GetByPath(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, summary.Status)
		assert.Empty(t, summary.ErrorMessage)
	})

	t.Run("no_audio retries without force", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		require.NoError(t, s.MarkFailure(ctx, id, StatusNoAudio, "no audio track"))

		adm, err := s.Admit(ctx, "/videos/a.mp4", false)
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
	})

	t.Run("force resets completed row", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		complete(t, s, id)

		adm, err := s.Admit(ctx, "/videos/a.mp4", true)
		require.NoError(t, err)
		assert.True(t, adm.Admitted)
		assert.Equal(t, id, adm.SummaryID)

		summary, err := s.GetByPath(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.Equal(t, StatusPending, summary.Status)
	})
}

func TestComplete_DenseVersions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := admit(t, s, "/videos/a.mp4", false)
	assert.Equal(t, 1, complete(t, s, id))

	admit(t, s, "/videos/a.mp4", true)
	assert.Equal(t, 2, complete(t, s, id))

	admit(t, s, "/videos/a.mp4", true)
	assert.Equal(t, 3, complete(t, s, id))

	versions, err := s.ListVersions(ctx, "/videos/a.mp4")
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, 3, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
	assert.Equal(t, 1, versions[2].Version)
}

func TestComplete_UpdatesSummaryRow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := admit(t, s, "/videos/a.mp4", false)
	complete(t, s, id)

	summary, err := s.GetByPath(ctx, "/videos/a.mp4")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, summary.Status)
	assert.Equal(t, "• the summary", summary.Summary)
	assert.Equal(t, "the transcript", summary.Transcript)
	assert.Equal(t, "whisper-base+llama3.2:13b", summary.ModelUsed)
	require.NotNil(t, summary.AudioDurationSeconds)
	assert.InDelta(t, 120.5, *summary.AudioDurationSeconds, 0.001)
	require.NotNil(t, summary.ProcessingTimeSeconds)
	assert.InDelta(t, 42.1, *summary.ProcessingTimeSeconds, 0.001)
	assert.Empty(t, summary.ErrorMessage)
	assert.False(t, summary.GeneratedAt.IsZero())
}

func TestComplete_UnknownID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Complete(context.Background(), 999, Completion{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id := admit(t, s, "/videos/a.mp4", false)

	t.Run("failed with message", func(t *testing.T) {
		require.NoError(t, s.MarkFailure(ctx, id, StatusFailed, "transcription: whisper failed"))

		summary, err := s.GetByPath(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, summary.Status)
		assert.Equal(t, "transcription: whisper failed", summary.ErrorMessage)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		assert.Error(t, s.MarkFailure(ctx, id, StatusCompleted, "nope"))
	})

	t.Run("unknown id", func(t *testing.T) {
		assert.ErrorIs(t, s.MarkFailure(ctx, 999, StatusFailed, "x"), ErrNotFound)
	})
}

func TestTolerantLookup(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := admit(t, s, "/mnt/media/courses/lecture.mp4", false)
	complete(t, s, id)

	t.Run("exact match", func(t *testing.T) {
		summary, err := s.GetByPath(ctx, "/mnt/media/courses/lecture.mp4")
		require.NoError(t, err)
		assert.Equal(t, "/mnt/media/courses/lecture.mp4", summary.VideoPath)
	})

	t.Run("relocated mount root", func(t *testing.T) {
		summary, err := s.GetByPath(ctx, "/new-mount/lecture.mp4")
		require.NoError(t, err)
		assert.Equal(t, "/mnt/media/courses/lecture.mp4", summary.VideoPath)
	})

	t.Run("windows style path", func(t *testing.T) {
		summary, err := s.GetByPath(ctx, `D:\media\lecture.mp4`)
		require.NoError(t, err)
		assert.Equal(t, "/mnt/media/courses/lecture.mp4", summary.VideoPath)
	})

	t.Run("different basename misses", func(t *testing.T) {
		_, err := s.GetByPath(ctx, "/mnt/media/courses/other.mp4")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("version lookup is tolerant too", func(t *testing.T) {
		v, err := s.GetVersion(ctx, "/elsewhere/lecture.mp4", 1)
		require.NoError(t, err)
		assert.Equal(t, 1, v.Version)
		assert.Equal(t, "• the summary", v.Summary)
	})

	t.Run("version list is tolerant too", func(t *testing.T) {
		versions, err := s.ListVersions(ctx, "/elsewhere/lecture.mp4")
		require.NoError(t, err)
		assert.Len(t, versions, 1)
	})
}

func TestGetVersion_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := admit(t, s, "/videos/a.mp4", false)
	complete(t, s, id)

	_, err := s.GetVersion(ctx, "/videos/a.mp4", 2)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBackfillInitialVersion(t *testing.T) {
	ctx := context.Background()

	t.Run("completed summary without versions", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		complete(t, s, id)

		// Simulate a summary that predates version history.
		_, err := s.db.Exec("DELETE FROM summary_versions")
		require.NoError(t, err)

		backfilled, err := s.BackfillInitialVersion(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.True(t, backfilled)

		v, err := s.GetVersion(ctx, "/videos/a.mp4", 1)
		require.NoError(t, err)
		assert.Equal(t, "• the summary", v.Summary)
	})

	t.Run("no duplicate when versions exist", func(t *testing.T) {
		s := newTestStore(t)
		id := admit(t, s, "/videos/a.mp4", false)
		complete(t, s, id)

		backfilled, err := s.BackfillInitialVersion(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.False(t, backfilled)
	})

	t.Run("no backfill for pending summary", func(t *testing.T) {
		s := newTestStore(t)
		admit(t, s, "/videos/a.mp4", false)

		backfilled, err := s.BackfillInitialVersion(ctx, "/videos/a.mp4")
		require.NoError(t, err)
		assert.False(t, backfilled)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id := admit(t, s, "/videos/a.mp4", false)
	complete(t, s, id)

	deleted, err := s.Delete(ctx, "/videos/a.mp4")
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.GetByPath(ctx, "/videos/a.mp4")
	assert.ErrorIs(t, err, ErrNotFound)

	versions, err := s.ListVersions(ctx, "/videos/a.mp4")
	require.NoError(t, err)
	assert.Empty(t, versions)

	deleted, err = s.Delete(ctx, "/videos/a.mp4")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idA := admit(t, s, "/videos/a.mp4", false)
	complete(t, s, idA)
	idB := admit(t, s, "/videos/b.mp4", false)
	require.NoError(t, s.MarkFailure(ctx, idB, StatusFailed, "boom"))
	admit(t, s, "/videos/c.mp4", false)

	t.Run("all", func(t *testing.T) {
		all, err := s.List(ctx, "", 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("status filter", func(t *testing.T) {
		failed, err := s.List(ctx, StatusFailed, 0)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, "/videos/b.mp4", failed[0].VideoPath)
	})

	t.Run("limit", func(t *testing.T) {
		limited, err := s.List(ctx, "", 2)
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	idA := admit(t, s, "/videos/a.mp4", false)
	complete(t, s, idA)
	idB := admit(t, s, "/videos/b.mp4", false)
	complete(t, s, idB)
	idC := admit(t, s, "/videos/c.mp4", false)
	require.NoError(t, s.MarkFailure(ctx, idC, StatusNoAudio, "no audio"))
	admit(t, s, "/videos/d.mp4", false)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.ByStatus[StatusCompleted])
	assert.Equal(t, 1, stats.ByStatus[StatusNoAudio])
	assert.Equal(t, 1, stats.ByStatus[StatusPending])
	assert.Equal(t, 2, stats.VideosWithAudio)
	assert.InDelta(t, 84.2, stats.TotalProcessingSeconds, 0.001)
	assert.InDelta(t, 42.1, stats.AvgProcessingSeconds, 0.001)
}
