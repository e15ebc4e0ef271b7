package engine

import (
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vidsum/vidsum-api/internal/summarizer"
	"github.com/vidsum/vidsum-api/internal/transcriber"
)

// jumpPointsMarker separates the raw transcript from the appended jump
// point payload in the stored transcript column.
const jumpPointsMarker = "\n\n[JUMP_POINTS]"

// AppendJumpPoints encodes points as JSON and appends them to the
// transcript behind the marker. The transcript is returned unchanged when
// there are no points.
func AppendJumpPoints(transcript string, points []summarizer.JumpPoint) string {
	if len(points) == 0 {
		return transcript
	}
	payload, err := json.Marshal(points)
	if err != nil {
		return transcript
	}
	return transcript + jumpPointsMarker + string(payload)
}

// SplitJumpPoints strips an appended jump point payload from a stored
// transcript. Transcripts without the marker, or with an unparsable
// payload, come back as-is with nil points.
func SplitJumpPoints(stored string) (string, []summarizer.JumpPoint) {
	idx := strings.LastIndex(stored, jumpPointsMarker)
	if idx < 0 {
		return stored, nil
	}

	var points []summarizer.JumpPoint
	if err := json.Unmarshal([]byte(stored[idx+len(jumpPointsMarker):]), &points); err != nil {
		return stored, nil
	}
	return stored[:idx], points
}

// ComposeModelUsed renders the model provenance string, e.g.
// "whisper-base+llama3.2:13b".
func ComposeModelUsed(whisperModel, llmModel string) string {
	return "whisper-" + whisperModel + "+" + llmModel
}

// jumpKeywords mark transcript windows likely to start a notable section.
var jumpKeywords = []string{
	"intro", "overview", "setup", "install", "configure", "demo", "example",
	"concept", "definition", "recap", "summary", "conclusion",
	"best practice", "tip", "troubleshoot", "issue",
}

const (
	heuristicWindowSeconds = 20.0
	heuristicWindowChars   = 220
	heuristicTopWindows    = 20
	heuristicMaxPoints     = 8
	heuristicTitleMax      = 100
)

// scoredWindow is a candidate jump point with its relevance score.
type scoredWindow struct {
	start float64
	text  string
	score float64
}

// HeuristicJumpPoints derives jump points from transcript segments without
// a model: segments are bucketed into ~20 second windows, each window is
// scored by keyword hits and text density, and the best windows become
// time-ordered points.
func HeuristicJumpPoints(segments []transcriber.Segment) []summarizer.JumpPoint {
	windows := buildWindows(segments)
	if len(windows) == 0 {
		return nil
	}

	// Top windows by score, then back to chronological order.
	sort.SliceStable(windows, func(i, j int) bool { return windows[i].score > windows[j].score })
	if len(windows) > heuristicTopWindows {
		windows = windows[:heuristicTopWindows]
	}
	sort.Slice(windows, func(i, j int) bool { return windows[i].start < windows[j].start })

	if len(windows) > heuristicMaxPoints {
		step := len(windows) / heuristicMaxPoints
		thinned := make([]scoredWindow, 0, heuristicMaxPoints)
		for i := 0; i < len(windows) && len(thinned) < heuristicMaxPoints; i += step {
			thinned = append(thinned, windows[i])
		}
		windows = thinned
	}

	points := make([]summarizer.JumpPoint, 0, len(windows))
	for _, w := range windows {
		seconds := int(w.start + 0.5)
		if seconds < 0 {
			seconds = 0
		}
		points = append(points, summarizer.JumpPoint{
			Seconds: seconds,
			Title:   windowTitle(w.text),
		})
	}
	return points
}

// buildWindows buckets segments into windows, flushing when elapsed time
// or accumulated text exceeds limits, and scores each window.
func buildWindows(segments []transcriber.Segment) []scoredWindow {
	var (
		windows []scoredWindow
		acc     strings.Builder
		start   float64
		open    bool
	)

	flush := func() {
		text := strings.TrimSpace(acc.String())
		if text != "" {
			windows = append(windows, scoredWindow{
				start: start,
				text:  text,
				score: scoreWindow(text),
			})
		}
		acc.Reset()
		open = false
	}

	for _, seg := range segments {
		if !open {
			start = seg.Start
			open = true
		}
		if acc.Len() > 0 {
			acc.WriteByte(' ')
		}
		acc.WriteString(strings.TrimSpace(seg.Text))

		if seg.End-start >= heuristicWindowSeconds || acc.Len() >= heuristicWindowChars {
			flush()
		}
	}
	if open {
		flush()
	}
	return windows
}

// scoreWindow rates a window: +2 for a keyword hit, plus up to 1.0 for
// text density.
func scoreWindow(text string) float64 {
	score := 0.0
	lower := strings.ToLower(text)
	for _, kw := range jumpKeywords {
		if strings.Contains(lower, kw) {
			score += 2
			break
		}
	}
	density := float64(len(text)) / 200
	if density > 1 {
		density = 1
	}
	return score + density
}

// windowTitle labels a window with its first sentence, capped for display.
func windowTitle(text string) string {
	title := text
	if idx := strings.IndexAny(text, ".!?"); idx > 0 {
		title = text[:idx]
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(text)
	}
	if len(title) > heuristicTitleMax {
		cut := heuristicTitleMax
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title
}
