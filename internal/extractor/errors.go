package extractor

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies extraction failures so callers can react to specific
// conditions, most importantly the missing-audio-track case.
type Kind string

const (
	// KindFileNotFound indicates the input video does not exist or is unreadable.
	KindFileNotFound Kind = "file_not_found"
	// KindNoAudioTrack indicates the video has no audio stream.
	KindNoAudioTrack Kind = "no_audio_track"
	// KindCorrupted indicates ffmpeg could not parse the input.
	KindCorrupted Kind = "corrupted"
	// KindPermissionDenied indicates the input could not be accessed.
	KindPermissionDenied Kind = "permission_denied"
	// KindUnsupportedFormat indicates no decoder exists for the input.
	KindUnsupportedFormat Kind = "unsupported_format"
	// KindTimeout indicates extraction exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindUnknown covers everything else; Message carries the last stderr line.
	KindUnknown Kind = "unknown"
)

// Error is a classified extraction failure.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsNoAudio reports whether err is an extraction failure caused by a
// missing audio track.
func IsNoAudio(err error) bool {
	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr.Kind == KindNoAudioTrack
	}
	return false
}

// classifyStderr maps known ffmpeg stderr substrings to error kinds.
func classifyStderr(stderr string) *Error {
	switch {
	case stderr == "":
		return &Error{Kind: KindUnknown, Message: "unknown ffmpeg error"}
	case strings.Contains(stderr, "No such file or directory"):
		return &Error{Kind: KindFileNotFound, Message: "video file not found or cannot be accessed"}
	case strings.Contains(stderr, "Stream map") && strings.Contains(stderr, "matches no streams"):
		return &Error{Kind: KindNoAudioTrack, Message: "no audio track found in video file"}
	case strings.Contains(stderr, "Invalid data found when processing input"):
		return &Error{Kind: KindCorrupted, Message: "video file appears to be corrupted or in unsupported format"}
	case strings.Contains(stderr, "Permission denied"):
		return &Error{Kind: KindPermissionDenied, Message: "permission denied accessing video file"}
	case strings.Contains(stderr, "Decoder") && strings.Contains(stderr, "not found"):
		return &Error{Kind: KindUnsupportedFormat, Message: "video format not supported by ffmpeg"}
	default:
		// The last stderr line usually carries the main error.
		lines := strings.Split(strings.TrimSpace(stderr), "\n")
		msg := lines[len(lines)-1]
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &Error{Kind: KindUnknown, Message: fmt.Sprintf("ffmpeg failed: %s", msg)}
	}
}
