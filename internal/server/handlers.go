package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/vidsum/vidsum-api/internal/engine"
	"github.com/vidsum/vidsum-api/internal/store"
	"github.com/vidsum/vidsum-api/internal/transcriber"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	engine       *engine.Engine
	validator    *validator.Validate
	logger       *slog.Logger
	whisperModel string
}

// NewHandlers creates a new Handlers instance. whisperModel is the default
// speech model, reported by the models endpoint.
func NewHandlers(eng *engine.Engine, whisperModel string, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		engine:       eng,
		validator:    validator.New(),
		logger:       logger,
		whisperModel: whisperModel,
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// StartSummary handles POST /summary/start requests.
func (h *Handlers) StartSummary(w http.ResponseWriter, r *http.Request) {
	var req StartSummaryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	taskID, err := h.engine.Start(r.Context(), req.VideoPath, req.Force, req.ModelName)
	if err != nil {
		var rejected *engine.AdmissionRejectedError
		switch {
		case errors.Is(err, engine.ErrVideoNotFound):
			writeError(w, http.StatusNotFound, "video file not found", "VIDEO_NOT_FOUND")
		case errors.As(err, &rejected):
			resp := ErrorResponse{Error: rejected.Reason, Code: "ADMISSION_REJECTED"}
			if rejected.Existing != nil {
				payload := summaryPayload(*rejected.Existing, "", nil)
				resp.Existing = &payload
			}
			writeJSON(w, http.StatusBadRequest, resp)
		default:
			h.logger.Error("failed to start summarization",
				slog.String("video_path", req.VideoPath),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to start summarization", "START_FAILED")
		}
		return
	}

	writeJSON(w, http.StatusOK, StartSummaryResponse{TaskID: taskID, Status: "processing"})
}

// TaskStatus handles GET /summary/status/{taskId} requests.
func (h *Handlers) TaskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("taskId")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	snap, ok := h.engine.Status(taskID)
	if !ok {
		writeError(w, http.StatusNotFound, "task not found", "TASK_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetSummary handles GET /summary/get requests.
func (h *Handlers) GetSummary(w http.ResponseWriter, r *http.Request) {
	videoPath, ok := queryVideoPath(w, r)
	if !ok {
		return
	}

	latest, err := h.engine.GetLatest(r.Context(), videoPath)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeJSON(w, http.StatusOK, GetSummaryResponse{Found: false})
			return
		}
		h.logger.Error("failed to get summary",
			slog.String("video_path", videoPath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get summary", "SUMMARY_FETCH_FAILED")
		return
	}

	payload := summaryPayload(latest.Summary, latest.Transcript, latest.JumpPoints)
	writeJSON(w, http.StatusOK, GetSummaryResponse{
		Found:    true,
		Summary:  &payload,
		Versions: latest.Versions,
	})
}

// ActiveTask handles GET /summary/active requests.
func (h *Handlers) ActiveTask(w http.ResponseWriter, r *http.Request) {
	videoPath, ok := queryVideoPath(w, r)
	if !ok {
		return
	}

	taskID, active := h.engine.FindActiveTask(videoPath)
	writeJSON(w, http.StatusOK, ActiveTaskResponse{Active: active, TaskID: taskID})
}

// ListVersions handles GET /summary/versions requests.
func (h *Handlers) ListVersions(w http.ResponseWriter, r *http.Request) {
	videoPath, ok := queryVideoPath(w, r)
	if !ok {
		return
	}

	versions, err := h.engine.ListVersions(r.Context(), videoPath)
	if err != nil {
		h.logger.Error("failed to list versions",
			slog.String("video_path", videoPath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list versions", "VERSIONS_FETCH_FAILED")
		return
	}

	if versions == nil {
		versions = []store.VersionInfo{}
	}
	writeJSON(w, http.StatusOK, ListVersionsResponse{Found: len(versions) > 0, Versions: versions})
}

// GetVersion handles GET /summary/version requests.
func (h *Handlers) GetVersion(w http.ResponseWriter, r *http.Request) {
	videoPath, ok := queryVideoPath(w, r)
	if !ok {
		return
	}

	version, err := strconv.Atoi(r.URL.Query().Get("version"))
	if err != nil || version < 1 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer", "INVALID_VERSION")
		return
	}

	detail, err := h.engine.GetVersion(r.Context(), videoPath, version)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "version not found", "VERSION_NOT_FOUND")
			return
		}
		h.logger.Error("failed to get version",
			slog.String("video_path", videoPath),
			slog.Int("version", version),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get version", "VERSION_FETCH_FAILED")
		return
	}

	writeJSON(w, http.StatusOK, VersionResponse{
		VideoPath:             detail.Version.VideoPath,
		Version:               detail.Version.Version,
		Summary:               detail.Version.Summary,
		Transcript:            detail.Transcript,
		JumpPoints:            detail.JumpPoints,
		ModelUsed:             detail.Version.ModelUsed,
		ProcessingTimeSeconds: detail.Version.ProcessingTimeSeconds,
		GeneratedAt:           detail.Version.GeneratedAt,
	})
}

// ListSummaries handles GET /summary/list requests. Optional query
// parameters: status (filter) and limit.
func (h *Handlers) ListSummaries(w http.ResponseWriter, r *http.Request) {
	status := store.Status(r.URL.Query().Get("status"))
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		var err error
		if limit, err = strconv.Atoi(raw); err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", "INVALID_LIMIT")
			return
		}
	}

	summaries, err := h.engine.ListSummaries(r.Context(), status, limit)
	if err != nil {
		h.logger.Error("failed to list summaries", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list summaries", "LIST_FAILED")
		return
	}

	payloads := make([]SummaryPayload, 0, len(summaries))
	for _, s := range summaries {
		// Listings carry metadata only; bodies come from the get endpoint.
		s.Summary = ""
		payloads = append(payloads, summaryPayload(s, "", nil))
	}
	writeJSON(w, http.StatusOK, ListSummariesResponse{Count: len(payloads), Summaries: payloads})
}

// DeleteSummary handles DELETE /summary/delete/{videoPath...} requests.
func (h *Handlers) DeleteSummary(w http.ResponseWriter, r *http.Request) {
	raw := r.PathValue("videoPath")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "video path is required", "MISSING_VIDEO_PATH")
		return
	}
	videoPath, err := url.PathUnescape(raw)
	if err != nil {
		videoPath = raw
	}
	// Absolute paths lose their leading slash in the wildcard segment.
	if !strings.HasPrefix(videoPath, "/") && !strings.Contains(videoPath, ":\\") {
		videoPath = "/" + videoPath
	}

	deleted, err := h.engine.Delete(r.Context(), videoPath)
	if err != nil {
		h.logger.Error("failed to delete summary",
			slog.String("video_path", videoPath),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete summary", "DELETE_FAILED")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "summary not found", "SUMMARY_NOT_FOUND")
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{OK: true})
}

// Stats handles GET /summary/stats requests.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to compute stats", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to compute stats", "STATS_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// AIHealth handles GET /ai-health requests.
func (h *Handlers) AIHealth(w http.ResponseWriter, r *http.Request) {
	health := h.engine.AIHealth(r.Context())
	models := health.ModelsAvailable
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, AIHealthResponse{
		Healthy:         health.Healthy,
		ModelsAvailable: models,
		ModelReady:      health.ModelReady,
		Overall:         health.Healthy && health.ModelReady,
		Error:           health.Error,
	})
}

// PullModel handles POST /ai-model/pull requests.
func (h *Handlers) PullModel(w http.ResponseWriter, r *http.Request) {
	var req PullModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	result, err := h.engine.PullModel(r.Context(), req.Name)
	if err != nil {
		h.logger.Error("model pull failed",
			slog.String("model", req.Name),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "model pull failed", "PULL_FAILED")
		return
	}
	writeJSON(w, http.StatusOK, PullModelResponse{OK: true, Cached: result.Cached})
}

// Models handles GET /models requests, listing supported speech models.
func (h *Handlers) Models(w http.ResponseWriter, r *http.Request) {
	names := transcriber.AvailableModels()
	models := make([]WhisperModelPayload, 0, len(names))
	for _, name := range names {
		info, _ := transcriber.GetModelInfo(name)
		models = append(models, WhisperModelPayload{
			Name:          name,
			Parameters:    info.Parameters,
			VRAMRequired:  info.VRAMRequired,
			RelativeSpeed: info.RelativeSpeed,
			Description:   info.Description,
			Default:       name == h.whisperModel,
		})
	}
	writeJSON(w, http.StatusOK, ModelsResponse{Models: models})
}

// queryVideoPath reads the video path query parameter, accepting both
// camelCase and snake_case spellings. It writes a 400 and returns false
// when missing.
func queryVideoPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	videoPath := r.URL.Query().Get("videoPath")
	if videoPath == "" {
		videoPath = r.URL.Query().Get("video_path")
	}
	if videoPath == "" {
		writeError(w, http.StatusBadRequest, "videoPath query parameter is required", "MISSING_VIDEO_PATH")
		return "", false
	}
	return videoPath, true
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
