// Package server provides the HTTP surface of the summarization API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/vidsum/vidsum-api/internal/engine"
	"github.com/vidsum/vidsum-api/internal/store"
	"github.com/vidsum/vidsum-api/internal/summarizer"
)

// StartSummaryRequest is the HTTP request body for starting a summarization.
type StartSummaryRequest struct {
	// VideoPath is the path of the video to summarize.
	VideoPath string `json:"video_path" validate:"required"`
	// Force re-runs the pipeline even when a summary already exists.
	Force bool `json:"force"`
	// ModelName optionally overrides the default LLM model.
	ModelName string `json:"model_name" validate:"omitempty,max=128"`
}

// StartSummaryResponse is the HTTP response after admitting a run.
type StartSummaryResponse struct {
	TaskID string `json:"task_id"`
	Status string `json:"status"`
}

// SummaryPayload is the wire form of a summary row.
type SummaryPayload struct {
	VideoPath             string                 `json:"video_path"`
	Status                string                 `json:"status"`
	Summary               string                 `json:"summary,omitempty"`
	Transcript            string                 `json:"transcript,omitempty"`
	JumpPoints            []summarizer.JumpPoint `json:"jump_points,omitempty"`
	ModelUsed             string                 `json:"model_used,omitempty"`
	AudioDurationSeconds  *float64               `json:"audio_duration_seconds,omitempty"`
	ProcessingTimeSeconds *float64               `json:"processing_time_seconds,omitempty"`
	ErrorMessage          string                 `json:"error_message,omitempty"`
	GeneratedAt           time.Time              `json:"generated_at"`
}

// summaryPayload converts a store row (without transcript decoration) to
// its wire form.
func summaryPayload(s store.Summary, transcript string, jumpPoints []summarizer.JumpPoint) SummaryPayload {
	return SummaryPayload{
		VideoPath:             s.VideoPath,
		Status:                string(s.Status),
		Summary:               s.Summary,
		Transcript:            transcript,
		JumpPoints:            jumpPoints,
		ModelUsed:             s.ModelUsed,
		AudioDurationSeconds:  s.AudioDurationSeconds,
		ProcessingTimeSeconds: s.ProcessingTimeSeconds,
		ErrorMessage:          s.ErrorMessage,
		GeneratedAt:           s.GeneratedAt,
	}
}

// GetSummaryResponse is the HTTP response for the latest summary lookup.
type GetSummaryResponse struct {
	Found    bool                `json:"found"`
	Summary  *SummaryPayload     `json:"summary,omitempty"`
	Versions []store.VersionInfo `json:"versions,omitempty"`
}

// ActiveTaskResponse reports whether a video has a task in flight.
type ActiveTaskResponse struct {
	Active bool   `json:"active"`
	TaskID string `json:"task_id,omitempty"`
}

// ListVersionsResponse is the HTTP response for the version descriptor list.
type ListVersionsResponse struct {
	Found    bool                `json:"found"`
	Versions []store.VersionInfo `json:"versions"`
}

// VersionResponse is the HTTP response for a specific version body.
type VersionResponse struct {
	VideoPath             string                 `json:"video_path"`
	Version               int                    `json:"version"`
	Summary               string                 `json:"summary"`
	Transcript            string                 `json:"transcript,omitempty"`
	JumpPoints            []summarizer.JumpPoint `json:"jump_points,omitempty"`
	ModelUsed             string                 `json:"model_used,omitempty"`
	ProcessingTimeSeconds *float64               `json:"processing_time_seconds,omitempty"`
	GeneratedAt           time.Time              `json:"generated_at"`
}

// ListSummariesResponse is the HTTP response for the summary listing.
type ListSummariesResponse struct {
	Count     int              `json:"count"`
	Summaries []SummaryPayload `json:"summaries"`
}

// DeleteResponse is the HTTP response for a summary purge.
type DeleteResponse struct {
	OK bool `json:"ok"`
}

// AIHealthResponse reports the availability of the summarizer backend.
type AIHealthResponse struct {
	Healthy         bool     `json:"healthy"`
	ModelsAvailable []string `json:"models_available"`
	ModelReady      bool     `json:"model_ready"`
	Overall         bool     `json:"overall"`
	Error           string   `json:"error,omitempty"`
}

// PullModelRequest is the HTTP request body for downloading an LLM model.
type PullModelRequest struct {
	Name string `json:"name" validate:"required,max=128"`
}

// PullModelResponse is the HTTP response after a model pull.
type PullModelResponse struct {
	OK     bool `json:"ok"`
	Cached bool `json:"cached"`
}

// WhisperModelPayload describes one supported speech model.
type WhisperModelPayload struct {
	Name          string `json:"name"`
	Parameters    string `json:"parameters"`
	VRAMRequired  string `json:"vram_required"`
	RelativeSpeed string `json:"relative_speed"`
	Description   string `json:"description"`
	Default       bool   `json:"default"`
}

// ModelsResponse lists the supported speech models.
type ModelsResponse struct {
	Models []WhisperModelPayload `json:"models"`
}

// StatsResponse aggregates store and queue state.
type StatsResponse = engine.EngineStats

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
	// Existing carries the current summary when a start request is
	// rejected because one already exists.
	Existing *SummaryPayload `json:"existing,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
