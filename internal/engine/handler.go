package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/vidsum/vidsum-api/internal/archive"
	"github.com/vidsum/vidsum-api/internal/extractor"
	"github.com/vidsum/vidsum-api/internal/queue"
	"github.com/vidsum/vidsum-api/internal/store"
)

// TaskResult is the payload stored on a completed task.
type TaskResult struct {
	VideoPath             string  `json:"video_path"`
	SummaryID             int64   `json:"summary_id"`
	Version               int     `json:"version"`
	ModelUsed             string  `json:"model_used"`
	SummaryChars          int     `json:"summary_chars"`
	JumpPoints            int     `json:"jump_points"`
	AudioDurationSeconds  float64 `json:"audio_duration_seconds"`
	ProcessingTimeSeconds float64 `json:"processing_time_seconds"`
}

// handleVideoSummary runs the full pipeline for one video on a queue
// worker: extract audio, transcribe, summarize, derive jump points,
// persist, archive. Failures are mirrored onto the summary row before the
// task is failed.
func (e *Engine) handleVideoSummary(ctx context.Context, task *queue.Task) (any, error) {
	data := task.Data
	started := time.Now()

	log := e.logger.With(
		slog.String("task_id", task.ID),
		slog.String("video_path", data.VideoPath),
	)

	task.SetProgress("Starting video summarization", 0)
	if err := e.store.MarkProcessing(ctx, data.SummaryID); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	task.SetProgress("Preparing workspace", 5)
	tempDir, err := os.MkdirTemp(e.tempRoot, "summary-*")
	if err != nil {
		return nil, e.fail(ctx, data.SummaryID, store.StatusFailed,
			fmt.Errorf("create temp directory: %w", err))
	}
	defer func() {
		if err := os.RemoveAll(tempDir); err != nil {
			log.Warn("temp directory cleanup failed", slog.String("error", err.Error()))
		}
	}()

	task.SetProgress("Extracting audio", 15)
	audio, err := e.extractor.Extract(ctx, data.VideoPath, tempDir)
	if err != nil {
		if extractor.IsNoAudio(err) {
			return nil, e.fail(ctx, data.SummaryID, store.StatusNoAudio, err)
		}
		return nil, e.fail(ctx, data.SummaryID, store.StatusFailed,
			fmt.Errorf("audio extraction: %w", err))
	}
	task.SetProgress("Audio extracted", 20)
	log.Info("audio extracted",
		slog.String("audio_path", audio.AudioPath),
		slog.Float64("duration_seconds", audio.DurationSeconds),
	)

	task.SetProgress("Transcribing audio", 25)
	transcription, err := e.transcriber.Transcribe(ctx, audio.AudioPath, "")
	if err != nil {
		return nil, e.fail(ctx, data.SummaryID, store.StatusFailed,
			fmt.Errorf("transcription: %w", err))
	}
	task.SetProgress("Transcription complete", 50)
	log.Info("transcription complete",
		slog.Int("transcript_chars", len(transcription.Transcript)),
		slog.Int("segments", len(transcription.Segments)),
		slog.Float64("confidence", transcription.Confidence),
	)

	task.SetProgress("Generating summary", 60)
	summary, err := e.summarizer.Summarize(ctx, transcription.Transcript, data.ModelName)
	if err != nil {
		return nil, e.fail(ctx, data.SummaryID, store.StatusFailed,
			fmt.Errorf("summarization: %w", err))
	}
	task.SetProgress("Summary generated", 85)

	task.SetProgress("Deriving jump points", 90)
	jumpPoints := e.summarizer.GenerateJumpPoints(ctx,
		transcription.Segments, transcription.Transcript, data.ModelName, 0)
	if len(jumpPoints) == 0 {
		jumpPoints = HeuristicJumpPoints(transcription.Segments)
		log.Info("using heuristic jump points", slog.Int("count", len(jumpPoints)))
	}

	modelUsed := ComposeModelUsed(e.transcriber.Model(), summary.ModelUsed)
	processingSeconds := time.Since(started).Seconds()

	task.SetProgress("Saving results", 95)
	version, err := e.store.Complete(ctx, data.SummaryID, store.Completion{
		Summary:               summary.Summary,
		Transcript:            AppendJumpPoints(transcription.Transcript, jumpPoints),
		ModelUsed:             modelUsed,
		AudioDurationSeconds:  audio.DurationSeconds,
		ProcessingTimeSeconds: processingSeconds,
	})
	if err != nil {
		return nil, e.fail(ctx, data.SummaryID, store.StatusFailed,
			fmt.Errorf("persist results: %w", err))
	}

	e.archiveVersion(ctx, log, data.VideoPath, version, summary.Summary,
		transcription.Transcript, modelUsed, processingSeconds)

	// Drop the audio artifact before directory teardown.
	if err := os.Remove(audio.AudioPath); err != nil && !os.IsNotExist(err) {
		log.Warn("audio cleanup failed", slog.String("error", err.Error()))
	}

	task.SetProgress("Completed", 100)
	log.Info("summarization complete",
		slog.Int("version", version),
		slog.String("model_used", modelUsed),
		slog.Float64("processing_seconds", processingSeconds),
	)

	return TaskResult{
		VideoPath:             data.VideoPath,
		SummaryID:             data.SummaryID,
		Version:               version,
		ModelUsed:             modelUsed,
		SummaryChars:          len(summary.Summary),
		JumpPoints:            len(jumpPoints),
		AudioDurationSeconds:  audio.DurationSeconds,
		ProcessingTimeSeconds: processingSeconds,
	}, nil
}

// fail mirrors a pipeline error onto the summary row and returns it for
// the queue to record on the task.
func (e *Engine) fail(ctx context.Context, summaryID int64, status store.Status, cause error) error {
	if err := e.store.MarkFailure(ctx, summaryID, status, cause.Error()); err != nil {
		e.logger.Error("failed to record summary failure",
			slog.Int64("summary_id", summaryID),
			slog.String("error", err.Error()),
		)
	}
	return cause
}

// archiveVersion uploads the completed version when an archive is
// configured. Upload failures are logged, never propagated.
func (e *Engine) archiveVersion(ctx context.Context, log *slog.Logger, videoPath string, version int, summary, transcript, modelUsed string, processingSeconds float64) {
	if !e.archive.Enabled() {
		return
	}
	doc := archive.VersionDocument{
		VideoPath:             videoPath,
		Version:               version,
		Summary:               summary,
		Transcript:            transcript,
		ModelUsed:             modelUsed,
		ProcessingTimeSeconds: processingSeconds,
		GeneratedAt:           time.Now().UTC(),
	}
	if err := e.archive.StoreVersion(ctx, extractor.SafeBaseName(videoPath), doc); err != nil {
		log.Warn("version archive failed",
			slog.Int("version", version),
			slog.String("error", err.Error()),
		)
	}
}
