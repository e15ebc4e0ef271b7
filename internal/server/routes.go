package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.Health)

	mux.HandleFunc("POST /summary/start", h.StartSummary)
	mux.HandleFunc("GET /summary/status/{taskId}", h.TaskStatus)
	mux.HandleFunc("GET /summary/get", h.GetSummary)
	mux.HandleFunc("GET /summary/active", h.ActiveTask)
	mux.HandleFunc("GET /summary/versions", h.ListVersions)
	mux.HandleFunc("GET /summary/version", h.GetVersion)
	mux.HandleFunc("GET /summary/list", h.ListSummaries)
	mux.HandleFunc("DELETE /summary/delete/{videoPath...}", h.DeleteSummary)
	mux.HandleFunc("GET /summary/stats", h.Stats)

	mux.HandleFunc("GET /ai-health", h.AIHealth)
	mux.HandleFunc("POST /ai-model/pull", h.PullModel)
	mux.HandleFunc("GET /models", h.Models)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
