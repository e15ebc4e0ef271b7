// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidWhisperModel is returned when WHISPER_MODEL is not a known model name.
	ErrInvalidWhisperModel = errors.New("config: WHISPER_MODEL must be one of tiny, base, small, medium, large")
	// ErrInvalidMaxWorkers is returned when MAX_WORKERS is not positive.
	ErrInvalidMaxWorkers = errors.New("config: MAX_WORKERS must be positive")
)

// whisperModels is the set of model names accepted for WHISPER_MODEL.
var whisperModels = map[string]bool{
	"tiny": true, "base": true, "small": true, "medium": true, "large": true,
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Ollama settings
	OllamaURL   string `env:"OLLAMA_URL, default=http://ollama:11434" json:"ollama_url"`
	OllamaModel string `env:"OLLAMA_MODEL, default=llama3.2:13b" json:"ollama_model"`

	// Whisper settings
	WhisperModel string `env:"WHISPER_MODEL, default=base" json:"whisper_model"`
	WhisperBin   string `env:"WHISPER_BIN, default=whisper" json:"whisper_bin"`

	// FFmpeg settings
	FFmpegBin  string `env:"FFMPEG_BIN, default=ffmpeg" json:"ffmpeg_bin"`
	FFprobeBin string `env:"FFPROBE_BIN, default=ffprobe" json:"ffprobe_bin"`

	// Storage settings
	DBPath  string `env:"DB_PATH, default=/data/summaries.db" json:"db_path"`
	TempDir string `env:"TEMP_DIR, default=/tmp/vidsum" json:"temp_dir"`

	// Processing settings
	MaxWorkers          int `env:"MAX_WORKERS, default=2" json:"max_workers"`
	MaxTranscriptChars  int `env:"MAX_TRANSCRIPT_CHARS, default=50000" json:"max_transcript_chars"`
	PromptBudgetChars   int `env:"PROMPT_BUDGET_CHARS, default=15000" json:"prompt_budget_chars"`
	ExtractorTimeoutSec int `env:"EXTRACTOR_TIMEOUT_SEC, default=300" json:"extractor_timeout_sec"`
	SummarizerTimeout   int `env:"SUMMARIZER_TIMEOUT_SEC, default=2700" json:"summarizer_timeout_sec"`
	TaskRetentionHours  int `env:"TASK_RETENTION_HOURS, default=24" json:"task_retention_hours"`

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 archive configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if !whisperModels[c.WhisperModel] {
		return fmt.Errorf("%w: got %q", ErrInvalidWhisperModel, c.WhisperModel)
	}
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidMaxWorkers, c.MaxWorkers)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, OllamaURL: %s, OllamaModel: %s, WhisperModel: %s, DBPath: %s, TempDir: %s, MaxWorkers: %d, S3Bucket: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.OllamaURL,
		c.OllamaModel,
		c.WhisperModel,
		c.DBPath,
		c.TempDir,
		c.MaxWorkers,
		c.S3Bucket,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
