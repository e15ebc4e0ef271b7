package transcriber

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// MaxAudioBytes is the preflight size limit for input audio files.
const MaxAudioBytes = 200 << 20 // 200 MiB

// Static errors for transcription.
var (
	// ErrAudioNotFound is returned when the audio file does not exist.
	ErrAudioNotFound = errors.New("transcriber: audio file not found")
	// ErrAudioTooLarge is returned when the audio file exceeds MaxAudioBytes.
	ErrAudioTooLarge = errors.New("transcriber: audio file too large")
	// ErrAudioEmpty is returned when the audio file is zero bytes.
	ErrAudioEmpty = errors.New("transcriber: audio file is empty")
	// ErrNoSpeech is returned when the model produces no text.
	ErrNoSpeech = errors.New("transcriber: no speech detected in audio file")
	// ErrUnknownModel is returned when the configured model name is not supported.
	ErrUnknownModel = errors.New("transcriber: unknown whisper model")
)

// Compile-time check that WhisperCLI implements Transcriber.
var _ Transcriber = (*WhisperCLI)(nil)

// WhisperCLI runs transcription through the whisper command line tool,
// reading the JSON document it writes next to the audio file.
type WhisperCLI struct {
	binPath string
	model   string
}

// NewWhisperCLI creates a WhisperCLI for the given model.
// If binPath is empty, "whisper" is resolved via PATH.
func NewWhisperCLI(binPath, model string) (*WhisperCLI, error) {
	if binPath == "" {
		binPath = "whisper"
	}
	if !ValidModel(model) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, model)
	}
	return &WhisperCLI{binPath: binPath, model: model}, nil
}

// Model returns the Whisper model identifier in use.
func (w *WhisperCLI) Model() string {
	return w.model
}

// whisperJSON mirrors the JSON document written by the whisper CLI.
type whisperJSON struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []Segment `json:"segments"`
}

// Transcribe runs the whisper CLI on audioPath and parses its JSON output.
// The output directory for the JSON document is the audio file's directory,
// which the pipeline scopes to a per-task temp dir.
func (w *WhisperCLI) Transcribe(ctx context.Context, audioPath, language string) (Result, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s", ErrAudioNotFound, audioPath)
	}
	if info.Size() == 0 {
		return Result{}, ErrAudioEmpty
	}
	if info.Size() > MaxAudioBytes {
		return Result{}, fmt.Errorf("%w: %.1fMB (max 200MB)", ErrAudioTooLarge, float64(info.Size())/(1<<20))
	}

	outDir := filepath.Dir(audioPath)
	args := []string{
		audioPath,
		"--model", w.model,
		"--task", "transcribe",
		"--output_format", "json",
		"--output_dir", outDir,
		"--word_timestamps", "True",
		"--verbose", "False",
	}
	if language != "" {
		args = append(args, "--language", language)
	}

	// #nosec G204 - binPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, w.binPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("transcriber: cancelled: %w", ctx.Err())
		}
		return Result{}, fmt.Errorf("transcriber: whisper failed: %w, stderr: %s", err, lastLine(stderr.String()))
	}

	jsonPath := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".json"
	data, err := os.ReadFile(jsonPath) // #nosec G304 - path derived from trusted input
	if err != nil {
		return Result{}, fmt.Errorf("transcriber: read whisper output: %w", err)
	}

	var out whisperJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return Result{}, fmt.Errorf("transcriber: parse whisper output: %w", err)
	}

	return buildResult(out)
}

// buildResult normalizes a whisper JSON document into a Result.
func buildResult(out whisperJSON) (Result, error) {
	transcript := strings.TrimSpace(out.Text)
	if transcript == "" {
		return Result{}, ErrNoSpeech
	}

	language := out.Language
	if language == "" {
		language = "unknown"
	}

	segments := make([]Segment, 0, len(out.Segments))
	for _, seg := range out.Segments {
		seg.Text = strings.TrimSpace(seg.Text)
		segments = append(segments, seg)
	}

	return Result{
		Transcript: transcript,
		Language:   language,
		Segments:   segments,
		Confidence: EstimateConfidence(segments),
	}, nil
}

// EstimateConfidence derives a confidence estimate from segment no-speech
// probabilities: 1 - mean(no_speech_prob), rounded to 3 decimal places.
// Returns 0 when no segments are available.
func EstimateConfidence(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	var sum float64
	for _, seg := range segments {
		sum += seg.NoSpeechProb
	}
	confidence := 1 - sum/float64(len(segments))
	return math.Round(confidence*1000) / 1000
}

// lastLine returns the final non-empty line of s, capped at 200 chars.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	line := lines[len(lines)-1]
	if len(line) > 200 {
		line = line[:200]
	}
	return line
}
