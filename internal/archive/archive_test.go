package archive

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabled(t *testing.T) {
	var a Archive = Disabled{}

	assert.False(t, a.Enabled())
	assert.NoError(t, a.StoreVersion(context.Background(), "lecture.mp4", VersionDocument{}))
}

func TestVersionDocumentJSON(t *testing.T) {
	doc := VersionDocument{
		VideoPath:             "/videos/lecture.mp4",
		Version:               3,
		Summary:               "• A point",
		Transcript:            "the transcript",
		ModelUsed:             "whisper-base+llama3.2:13b",
		ProcessingTimeSeconds: 42.5,
		GeneratedAt:           time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC),
	}

	raw, err := json.Marshal(doc)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "/videos/lecture.mp4", got["video_path"])
	assert.Equal(t, float64(3), got["version"])
	assert.Equal(t, 42.5, got["processing_time_seconds"])
	assert.Equal(t, "2026-08-24T12:00:00Z", got["generated_at"])
}
