// Package extractor produces normalized audio artifacts from video files
// using the ffmpeg CLI. The output is mono 16 kHz PCM16 WAV, the format
// Whisper handles best.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DefaultTimeout bounds a single ffmpeg extraction run.
const DefaultTimeout = 300 * time.Second

// Result holds the outcome of a successful extraction.
type Result struct {
	// AudioPath is the path to the extracted WAV file.
	AudioPath string
	// DurationSeconds is the media duration parsed from ffmpeg output.
	// Zero when the duration line could not be parsed; extraction may
	// still succeed without it.
	DurationSeconds float64
}

// ProbeInfo holds diagnostic metadata about a media file from ffprobe.
type ProbeInfo struct {
	DurationSeconds float64
	SizeBytes       int64
	HasAudio        bool
	HasVideo        bool
	AudioCodec      string
	VideoCodec      string
}

// FFmpegExtractor implements audio extraction using the ffmpeg CLI.
type FFmpegExtractor struct {
	ffmpegPath  string
	ffprobePath string
	timeout     time.Duration
}

// Option configures an FFmpegExtractor.
type Option func(*FFmpegExtractor)

// WithTimeout overrides the extraction timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *FFmpegExtractor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithFFprobePath sets the path to the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(e *FFmpegExtractor) {
		if path != "" {
			e.ffprobePath = path
		}
	}
}

// New creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func New(ffmpegPath string, opts ...Option) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegExtractor{
		ffmpegPath:  ffmpegPath,
		ffprobePath: "ffprobe",
		timeout:     DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// durationRe matches ffmpeg's stderr duration line: "Duration: 00:02:30.45".
var durationRe = regexp.MustCompile(`Duration: (\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// Extract produces a WAV artifact for videoPath inside outDir.
// The output filename is derived from the video basename with any character
// outside [A-Za-z0-9._-] replaced by an underscore.
// Failures are returned as *Error with a classified Kind.
func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, outDir string) (Result, error) {
	if _, err := os.Stat(videoPath); err != nil {
		return Result{}, &Error{
			Kind:    KindFileNotFound,
			Message: fmt.Sprintf("video file not found: %s", videoPath),
		}
	}

	if err := os.MkdirAll(outDir, 0750); err != nil {
		return Result{}, fmt.Errorf("create output directory: %w", err)
	}

	audioPath := filepath.Join(outDir, SafeBaseName(videoPath)+".wav")

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", videoPath,
		"-vn", // drop the video stream
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		audioPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return Result{}, &Error{
			Kind:    KindTimeout,
			Message: fmt.Sprintf("audio extraction timeout after %s", e.timeout),
		}
	}
	if runErr != nil {
		return Result{}, classifyStderr(stderr.String())
	}

	// An empty output file means the video had no usable audio stream.
	info, err := os.Stat(audioPath)
	if err != nil || info.Size() == 0 {
		return Result{}, &Error{
			Kind:    KindNoAudioTrack,
			Message: "audio extraction produced empty file - video may have no audio track",
		}
	}

	return Result{
		AudioPath:       audioPath,
		DurationSeconds: ParseDuration(stderr.String()),
	}, nil
}

// ParseDuration extracts the media duration in seconds from ffmpeg stderr
// output. Returns 0 when no duration line is present.
func ParseDuration(ffmpegOutput string) float64 {
	m := durationRe.FindStringSubmatch(ffmpegOutput)
	if m == nil {
		return 0
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(centis)/100
}

// safeNameRe matches characters that are not safe in output filenames.
var safeNameRe = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SafeBaseName returns the video basename without extension with unsafe
// characters replaced by underscores.
func SafeBaseName(videoPath string) string {
	base := filepath.Base(videoPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return safeNameRe.ReplaceAllString(base, "_")
}

// ffprobe JSON output shapes.
type probeFormat struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
}

type probeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
}

type probeOutput struct {
	Format  probeFormat   `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe returns basic information about a media file using ffprobe.
// Not used on the summarization hot path; intended for diagnostics.
func (e *FFmpegExtractor) Probe(ctx context.Context, videoPath string) (ProbeInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		videoPath,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return ProbeInfo{}, fmt.Errorf("ffprobe failed: %w, stderr: %s", err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return ProbeInfo{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := ProbeInfo{}
	info.DurationSeconds, _ = strconv.ParseFloat(out.Format.Duration, 64)
	info.SizeBytes, _ = strconv.ParseInt(out.Format.Size, 10, 64)
	for _, s := range out.Streams {
		switch s.CodecType {
		case "audio":
			if !info.HasAudio {
				info.AudioCodec = s.CodecName
			}
			info.HasAudio = true
		case "video":
			if !info.HasVideo {
				info.VideoCodec = s.CodecName
			}
			info.HasVideo = true
		}
	}
	return info, nil
}
