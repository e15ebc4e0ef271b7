// Package transcriber converts audio files to text with time-aligned
// segments using a Whisper speech model.
package transcriber

import "context"

// Word is an optional word-level timestamp within a segment.
type Word struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Word  string  `json:"word"`
}

// Segment is a time-aligned span of transcribed speech.
type Segment struct {
	Start        float64 `json:"start"`
	End          float64 `json:"end"`
	Text         string  `json:"text"`
	Words        []Word  `json:"words,omitempty"`
	NoSpeechProb float64 `json:"no_speech_prob,omitempty"`
}

// Result holds the outcome of a transcription run.
type Result struct {
	// Transcript is the full transcribed text.
	Transcript string
	// Language is the detected (or forced) language code.
	Language string
	// Segments are the time-aligned spans making up the transcript.
	Segments []Segment
	// Confidence is an estimate in [0,1] derived from segment
	// no-speech probabilities; zero when unavailable.
	Confidence float64
}

// Transcriber converts an audio file into text plus segments.
// Language may be empty for auto-detection.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) (Result, error)

	// Model returns the identifier of the speech model in use
	// (tiny, base, small, medium, large).
	Model() string
}

// ModelInfo describes a Whisper model variant.
type ModelInfo struct {
	Parameters    string
	VRAMRequired  string
	RelativeSpeed string
	Description   string
}

// modelCatalog holds descriptors for the supported Whisper models.
var modelCatalog = map[string]ModelInfo{
	"tiny":   {Parameters: "39 M", VRAMRequired: "~1 GB", RelativeSpeed: "~32x", Description: "Fastest, least accurate"},
	"base":   {Parameters: "74 M", VRAMRequired: "~1 GB", RelativeSpeed: "~16x", Description: "Good balance of speed and accuracy"},
	"small":  {Parameters: "244 M", VRAMRequired: "~2 GB", RelativeSpeed: "~6x", Description: "Better accuracy, moderate speed"},
	"medium": {Parameters: "769 M", VRAMRequired: "~5 GB", RelativeSpeed: "~2x", Description: "High accuracy, slower"},
	"large":  {Parameters: "1550 M", VRAMRequired: "~10 GB", RelativeSpeed: "1x", Description: "Highest accuracy, slowest"},
}

// AvailableModels returns the supported Whisper model names in size order.
func AvailableModels() []string {
	return []string{"tiny", "base", "small", "medium", "large"}
}

// ValidModel reports whether name is a supported Whisper model.
func ValidModel(name string) bool {
	_, ok := modelCatalog[name]
	return ok
}

// GetModelInfo returns the descriptor for a Whisper model, if known.
func GetModelInfo(name string) (ModelInfo, bool) {
	info, ok := modelCatalog[name]
	return info, ok
}
