package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "http://ollama:11434", cfg.OllamaURL)
	assert.Equal(t, "llama3.2:13b", cfg.OllamaModel)
	assert.Equal(t, "base", cfg.WhisperModel)
	assert.Equal(t, "whisper", cfg.WhisperBin)
	assert.Equal(t, "ffmpeg", cfg.FFmpegBin)
	assert.Equal(t, "ffprobe", cfg.FFprobeBin)
	assert.Equal(t, "/data/summaries.db", cfg.DBPath)
	assert.Equal(t, "/tmp/vidsum", cfg.TempDir)
	assert.Equal(t, 2, cfg.MaxWorkers)
	assert.Equal(t, 50000, cfg.MaxTranscriptChars)
	assert.Equal(t, 15000, cfg.PromptBudgetChars)
	assert.Equal(t, 300, cfg.ExtractorTimeoutSec)
	assert.Equal(t, 2700, cfg.SummarizerTimeout)
	assert.Equal(t, 24, cfg.TaskRetentionHours)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("OLLAMA_URL", "http://localhost:11434")
	t.Setenv("OLLAMA_MODEL", "mistral:7b")
	t.Setenv("WHISPER_MODEL", "small")
	t.Setenv("MAX_WORKERS", "4")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "eu-west-1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "http://localhost:11434", cfg.OllamaURL)
	assert.Equal(t, "mistral:7b", cfg.OllamaModel)
	assert.Equal(t, "small", cfg.WhisperModel)
	assert.Equal(t, 4, cfg.MaxWorkers)
	assert.True(t, cfg.S3Enabled())
}

func TestValidate(t *testing.T) {
	t.Run("unknown whisper model", func(t *testing.T) {
		t.Setenv("WHISPER_MODEL", "enormous")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidWhisperModel)
	})

	t.Run("non-positive max workers", func(t *testing.T) {
		t.Setenv("MAX_WORKERS", "0")

		_, err := Load()
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidMaxWorkers)
	})
}

func TestString_MasksSecrets(t *testing.T) {
	t.Setenv("AWS_ACCESS_KEY_ID", "AKIA-test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "super-secret")

	cfg, err := Load()
	require.NoError(t, err)

	s := cfg.String()
	assert.NotContains(t, s, "AKIA-test")
	assert.NotContains(t, s, "super-secret")
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		cfg := &Config{LogFormat: "json", LogLevel: "debug"}
		assert.NotNil(t, cfg.NewLogger())
	})

	t.Run("text format", func(t *testing.T) {
		cfg := &Config{LogFormat: "text", LogLevel: "nonsense"}
		assert.NotNil(t, cfg.NewLogger())
	})
}
