// Package engine coordinates the summarization pipeline: admission against
// the store, task scheduling, the extract → transcribe → summarize handler,
// and read paths over summaries and versions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/vidsum/vidsum-api/internal/archive"
	"github.com/vidsum/vidsum-api/internal/extractor"
	"github.com/vidsum/vidsum-api/internal/queue"
	"github.com/vidsum/vidsum-api/internal/store"
	"github.com/vidsum/vidsum-api/internal/summarizer"
	"github.com/vidsum/vidsum-api/internal/transcriber"
)

// ErrVideoNotFound is returned by Start when the video file does not exist.
var ErrVideoNotFound = errors.New("engine: video file not found")

// AdmissionRejectedError is returned by Start when admission control
// declines to schedule a run.
type AdmissionRejectedError struct {
	// Reason is "already exists" or "already in progress".
	Reason string
	// Existing carries the completed summary on an "already exists" rejection.
	Existing *store.Summary
}

func (e *AdmissionRejectedError) Error() string {
	return "engine: admission rejected: " + e.Reason
}

// Extractor produces an audio artifact from a video file.
type Extractor interface {
	Extract(ctx context.Context, videoPath, outDir string) (extractor.Result, error)
}

// Transcriber converts an audio artifact into a timed transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (transcriber.Result, error)
	Model() string
}

// Summarizer generates summaries and jump points from transcripts.
type Summarizer interface {
	Summarize(ctx context.Context, transcript, modelName string) (summarizer.SummaryResult, error)
	GenerateJumpPoints(ctx context.Context, segments []transcriber.Segment, transcript, modelName string, maxPoints int) []summarizer.JumpPoint
	Health(ctx context.Context) summarizer.HealthStatus
	Pull(ctx context.Context, modelName string) (summarizer.PullResult, error)
	Model() string
}

// Deps are the collaborators an Engine is built from. All fields are
// required except Archive and Logger.
type Deps struct {
	Store       *store.Store
	Queue       *queue.Queue
	Extractor   Extractor
	Transcriber Transcriber
	Summarizer  Summarizer
	Archive     archive.Archive
	TempRoot    string
	Logger      *slog.Logger
}

// Engine is the pipeline coordinator. Construct it with New; it holds no
// hidden global state.
type Engine struct {
	store       *store.Store
	queue       *queue.Queue
	extractor   Extractor
	transcriber Transcriber
	summarizer  Summarizer
	archive     archive.Archive
	tempRoot    string
	logger      *slog.Logger
}

// New builds an Engine and registers its task handler on the queue.
func New(deps Deps) *Engine {
	e := &Engine{
		store:       deps.Store,
		queue:       deps.Queue,
		extractor:   deps.Extractor,
		transcriber: deps.Transcriber,
		summarizer:  deps.Summarizer,
		archive:     deps.Archive,
		tempRoot:    deps.TempRoot,
		logger:      deps.Logger,
	}
	if e.archive == nil {
		e.archive = archive.Disabled{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	e.queue.Register(queue.TypeVideoSummary, e.handleVideoSummary)
	return e
}

// Start admits a summarization run for videoPath and enqueues its task.
// force re-runs a completed or active video. modelName optionally overrides
// the default LLM model. Returns the task id.
func (e *Engine) Start(ctx context.Context, videoPath string, force bool, modelName string) (string, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return "", fmt.Errorf("%w: %s", ErrVideoNotFound, videoPath)
	}

	adm, err := e.store.Admit(ctx, videoPath, force)
	if err != nil {
		return "", err
	}
	if !adm.Admitted {
		return "", &AdmissionRejectedError{Reason: adm.Reason, Existing: adm.Existing}
	}

	taskID := e.queue.Add(queue.TypeVideoSummary, queue.Data{
		VideoPath: videoPath,
		SummaryID: adm.SummaryID,
		ModelName: modelName,
	})

	e.logger.Info("summarization started",
		slog.String("task_id", taskID),
		slog.String("video_path", videoPath),
		slog.Bool("force", force),
	)
	return taskID, nil
}

// Status returns the task snapshot for taskID.
func (e *Engine) Status(taskID string) (queue.Snapshot, bool) {
	return e.queue.Get(taskID)
}

// FindActiveTask returns the id of a pending or processing task for
// videoPath, if any.
func (e *Engine) FindActiveTask(videoPath string) (string, bool) {
	return e.queue.FindActive(videoPath)
}

// Latest is the read model for a video's current summary.
type Latest struct {
	Summary store.Summary
	// Transcript is the stored transcript with any jump point suffix removed.
	Transcript string
	JumpPoints []summarizer.JumpPoint
	Versions   []store.VersionInfo
}

// GetLatest returns the current summary for videoPath with its version
// descriptors. Completed summaries that predate version history get a
// version 1 backfilled from the summary row.
func (e *Engine) GetLatest(ctx context.Context, videoPath string) (Latest, error) {
	summary, err := e.store.GetByPath(ctx, videoPath)
	if err != nil {
		return Latest{}, err
	}

	versions, err := e.store.ListVersions(ctx, summary.VideoPath)
	if err != nil {
		return Latest{}, err
	}
	if len(versions) == 0 && summary.Status == store.StatusCompleted {
		backfilled, err := e.store.BackfillInitialVersion(ctx, summary.VideoPath)
		if err != nil {
			return Latest{}, err
		}
		if backfilled {
			if versions, err = e.store.ListVersions(ctx, summary.VideoPath); err != nil {
				return Latest{}, err
			}
		}
	}

	transcript, jumpPoints := SplitJumpPoints(summary.Transcript)
	return Latest{
		Summary:    summary,
		Transcript: transcript,
		JumpPoints: jumpPoints,
		Versions:   versions,
	}, nil
}

// VersionDetail is the read model for one historical version.
type VersionDetail struct {
	Version store.Version
	// Transcript is the stored transcript with any jump point suffix removed.
	Transcript string
	JumpPoints []summarizer.JumpPoint
}

// GetVersion returns one version body for videoPath.
func (e *Engine) GetVersion(ctx context.Context, videoPath string, version int) (VersionDetail, error) {
	v, err := e.store.GetVersion(ctx, videoPath, version)
	if err != nil {
		return VersionDetail{}, err
	}
	transcript, jumpPoints := SplitJumpPoints(v.Transcript)
	return VersionDetail{Version: v, Transcript: transcript, JumpPoints: jumpPoints}, nil
}

// ListVersions returns version descriptors for videoPath, newest first.
func (e *Engine) ListVersions(ctx context.Context, videoPath string) ([]store.VersionInfo, error) {
	return e.store.ListVersions(ctx, videoPath)
}

// ListSummaries returns summaries filtered by status ("" for all), newest
// first, at most limit entries (<= 0 for no limit).
func (e *Engine) ListSummaries(ctx context.Context, status store.Status, limit int) ([]store.Summary, error) {
	return e.store.List(ctx, status, limit)
}

// Delete removes the summary and versions for videoPath. It returns false
// when no summary matched.
func (e *Engine) Delete(ctx context.Context, videoPath string) (bool, error) {
	deleted, err := e.store.Delete(ctx, videoPath)
	if err != nil {
		return false, err
	}
	if deleted {
		e.logger.Info("summary deleted", slog.String("video_path", videoPath))
	}
	return deleted, nil
}

// EngineStats aggregates store and queue state.
type EngineStats struct {
	Summaries store.Stats `json:"summaries"`
	Queue     queue.Stats `json:"queue"`
}

// Stats returns aggregate counts over summaries and the task queue.
func (e *Engine) Stats(ctx context.Context) (EngineStats, error) {
	storeStats, err := e.store.Stats(ctx)
	if err != nil {
		return EngineStats{}, err
	}
	return EngineStats{Summaries: storeStats, Queue: e.queue.Stats()}, nil
}

// AIHealth probes the summarizer backend.
func (e *Engine) AIHealth(ctx context.Context) summarizer.HealthStatus {
	return e.summarizer.Health(ctx)
}

// PullModel downloads an LLM model to the summarizer backend.
func (e *Engine) PullModel(ctx context.Context, modelName string) (summarizer.PullResult, error) {
	return e.summarizer.Pull(ctx, modelName)
}
