package engine

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vidsum/vidsum-api/internal/summarizer"
	"github.com/vidsum/vidsum-api/internal/transcriber"
)

func TestComposeModelUsed(t *testing.T) {
	assert.Equal(t, "whisper-base+llama3.2:13b", ComposeModelUsed("base", "llama3.2:13b"))
	assert.Equal(t, "whisper-large+mistral:7b", ComposeModelUsed("large", "mistral:7b"))
}

func TestAppendAndSplitJumpPoints(t *testing.T) {
	points := []summarizer.JumpPoint{
		{Seconds: 0, Title: "Intro"},
		{Seconds: 95, Title: "First demo"},
	}

	t.Run("round trip", func(t *testing.T) {
		stored := AppendJumpPoints("the raw transcript", points)
		assert.Contains(t, stored, "[JUMP_POINTS]")

		transcript, got := SplitJumpPoints(stored)
		assert.Equal(t, "the raw transcript", transcript)
		assert.Equal(t, points, got)
	})

	t.Run("no points leaves transcript alone", func(t *testing.T) {
		assert.Equal(t, "plain", AppendJumpPoints("plain", nil))
	})

	t.Run("split without marker", func(t *testing.T) {
		transcript, got := SplitJumpPoints("no marker here")
		assert.Equal(t, "no marker here", transcript)
		assert.Nil(t, got)
	})

	t.Run("split with garbage payload", func(t *testing.T) {
		stored := "text" + jumpPointsMarker + "not json"
		transcript, got := SplitJumpPoints(stored)
		assert.Equal(t, stored, transcript)
		assert.Nil(t, got)
	})
}

// longSegments builds n segments of secondsPer each with the given text.
func longSegments(n int, secondsPer float64, text string) []transcriber.Segment {
	segments := make([]transcriber.Segment, 0, n)
	for i := 0; i < n; i++ {
		start := float64(i) * secondsPer
		segments = append(segments, transcriber.Segment{
			Start: start,
			End:   start + secondsPer,
			Text:  text,
		})
	}
	return segments
}

func TestHeuristicJumpPoints(t *testing.T) {
	t.Run("empty segments", func(t *testing.T) {
		assert.Empty(t, HeuristicJumpPoints(nil))
	})

	t.Run("keyword windows rank above filler", func(t *testing.T) {
		segments := []transcriber.Segment{
			{Start: 0, End: 22, Text: "welcome to the intro of this course"},
			{Start: 22, End: 44, Text: "um so yeah right"},
			{Start: 44, End: 66, Text: "now a demo of the deployment workflow"},
			{Start: 66, End: 88, Text: "some filler words here"},
			{Start: 88, End: 110, Text: "finally a recap and summary of everything we learned"},
		}

		points := HeuristicJumpPoints(segments)
		require.NotEmpty(t, points)

		titles := make([]string, 0, len(points))
		for _, p := range points {
			titles = append(titles, p.Title)
		}
		joined := strings.Join(titles, " | ")
		assert.Contains(t, joined, "intro")
		assert.Contains(t, joined, "demo")
		assert.Contains(t, joined, "recap")
	})

	t.Run("chronological order", func(t *testing.T) {
		points := HeuristicJumpPoints(longSegments(30, 21, "a setup example with some detail"))
		require.NotEmpty(t, points)
		for i := 1; i < len(points); i++ {
			assert.Greater(t, points[i].Seconds, points[i-1].Seconds)
		}
	})

	t.Run("downsampled to at most eight", func(t *testing.T) {
		points := HeuristicJumpPoints(longSegments(50, 21, "an install demo example"))
		assert.LessOrEqual(t, len(points), heuristicMaxPoints)
	})

	t.Run("multibyte title stays valid utf-8 when capped", func(t *testing.T) {
		// Leading ASCII byte shifts the two-byte runes so a cut at the
		// byte cap would land mid-rune.
		long := "x" + strings.Repeat("é", 80)
		points := HeuristicJumpPoints([]transcriber.Segment{
			{Start: 0, End: 25, Text: long},
		})
		require.Len(t, points, 1)
		assert.True(t, utf8.ValidString(points[0].Title))
		assert.LessOrEqual(t, len(points[0].Title), heuristicTitleMax)
	})

	t.Run("titles capped at 100 chars", func(t *testing.T) {
		long := strings.Repeat("word ", 60) // no sentence punctuation
		points := HeuristicJumpPoints([]transcriber.Segment{
			{Start: 0, End: 25, Text: long},
		})
		require.Len(t, points, 1)
		assert.LessOrEqual(t, len(points[0].Title), heuristicTitleMax)
	})

	t.Run("title is first sentence", func(t *testing.T) {
		points := HeuristicJumpPoints([]transcriber.Segment{
			{Start: 3, End: 25, Text: "This covers the setup. Then we move on to more."},
		})
		require.Len(t, points, 1)
		assert.Equal(t, "This covers the setup", points[0].Title)
		assert.Equal(t, 3, points[0].Seconds)
	})
}
