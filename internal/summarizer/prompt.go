package summarizer

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/vidsum/vidsum-api/internal/transcriber"
)

// truncateOnRune cuts s to at most max bytes, backing off so a multi-byte
// rune is never split.
func truncateOnRune(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// summaryPromptTemplate elicits a structured response with labeled sections.
const summaryPromptTemplate = `You are a world-class technical explainer. Read the transcript and produce a rich, structured, highly useful summary. Do not add any preface like "here is the summary". Start with the sections below. Use short, information-dense bullets.

RESPONSE FORMAT (strict):

**KEY POINTS:**
• 3-6 bullets with the core takeaways and learning objectives
• Include at least one practical outcome the viewer can do after watching

**DETAILED SUMMARY:**
• Expand the topic with concrete details and miniature examples
• Explain important concepts and decisions, not just list them
• If a process is described, include a short numbered mini-guide:
  1) step ... 2) step ... 3) step ...
• Call out caveats/pitfalls where relevant

**KEY CONCEPTS, METHODOLOGIES, AND TECHNICAL DETAILS:**
• Key terms with one-line explanations (term — meaning)

**TOOLS, FRAMEWORKS, OR TECHNOLOGIES REFERENCED:**
• Name — what it was used for in this context

**PREREQUISITES OR BACKGROUND KNOWLEDGE DISCUSSED:**
• What the viewer should know beforehand

**PRACTICAL APPLICATIONS AND REAL-WORLD USE CASES:**
• Where and how to apply this

**STEP-BY-STEP PROCESSES OR WORKFLOWS MENTIONED:**
• If any, summarize as concise numbered steps

Rules:
- Keep bullets succinct; avoid narrative filler.
- Do not echo the instructions or say "the transcript says".
- Use only ASCII bullets (•) and numbered lists as shown.

Transcript:
%s

**KEY POINTS:**
•`

// buildSummaryPrompt renders the summarization prompt, truncating the
// transcript to the prompt budget.
func buildSummaryPrompt(transcript string, budgetChars int) string {
	return fmt.Sprintf(summaryPromptTemplate, TruncateTranscript(transcript, budgetChars))
}

// TruncateTranscript keeps the transcript within budgetChars by joining the
// first and last halves around a truncation marker, preserving the intro
// and the conclusion.
func TruncateTranscript(transcript string, budgetChars int) string {
	if len(transcript) <= budgetChars {
		return transcript
	}
	half := budgetChars / 2
	return transcript[:half] + "\n\n[... content truncated ...]\n\n" + transcript[len(transcript)-half:]
}

var (
	unwantedPhraseRe = regexp.MustCompile(`(?i)(the summary of the transcript in the requested format:?\s*|here is the summary of the transcript:?\s*|here's the summary:?\s*|summary of the transcript:?\s*|here is a comprehensive summary:?\s*|here's a comprehensive summary:?\s*|based on the transcript:?\s*|transcript summary:?\s*)`)
	introLineRe      = regexp.MustCompile(`(?i)^(Here is|Here are|This is|The following|Below are).*?:`)
	dashBulletRe     = regexp.MustCompile(`(?m)^[-*]\s*`)
	numberBulletRe   = regexp.MustCompile(`(?m)^\d+\.\s*`)
	sentenceSplitRe  = regexp.MustCompile(`[.!?]+\s+`)
	blankRunRe       = regexp.MustCompile(`\n\s*\n\s*\n`)
	spaceRunRe       = regexp.MustCompile(` +`)
	bulletAfterEndRe = regexp.MustCompile(`([.!?])\s*•`)
)

// leadingPrefixes are echoed prompt fragments stripped from the start of a
// raw summary before further cleanup.
var leadingPrefixes = []string{
	"Summary:", "Key Points:", "Here is", "Here are", "This video", "The video",
}

// PostProcessSummary cleans and normalizes a raw model response:
// boilerplate prefixes are stripped, bullet markers unified to "• ",
// unbulleted prose promoted to bullets, and whitespace collapsed.
func PostProcessSummary(raw string) string {
	summary := strings.TrimSpace(raw)

	for _, prefix := range leadingPrefixes {
		if strings.HasPrefix(summary, prefix) {
			summary = strings.TrimSpace(summary[len(prefix):])
		}
	}

	summary = unwantedPhraseRe.ReplaceAllString(summary, "")
	summary = strings.TrimSpace(introLineRe.ReplaceAllString(summary, ""))

	summary = dashBulletRe.ReplaceAllString(summary, "• ")
	summary = numberBulletRe.ReplaceAllString(summary, "• ")

	// No bullets at all: promote sentences of a long body to bullets.
	if !strings.Contains(summary, "•") && len(summary) > 100 {
		sentences := sentenceSplitRe.Split(summary, -1)
		if len(sentences) > 2 {
			var bullets []string
			for _, sentence := range sentences {
				sentence = strings.TrimSpace(sentence)
				if len(sentence) > 20 {
					bullets = append(bullets, "• "+sentence)
				}
			}
			if len(bullets) > 0 {
				summary = strings.Join(bullets, "\n")
			}
		}
	}

	summary = blankRunRe.ReplaceAllString(summary, "\n\n")
	summary = spaceRunRe.ReplaceAllString(summary, " ")
	summary = bulletAfterEndRe.ReplaceAllString(summary, "$1\n•")

	return strings.TrimSpace(summary)
}

// jsonArrayRe matches the first JSON-array-looking span in a response.
var jsonArrayRe = regexp.MustCompile(`\[[\s\S]*\]`)

// ExtractJSONArray returns the first balanced JSON array found in text,
// or "" when none exists.
func ExtractJSONArray(text string) string {
	loc := jsonArrayRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	// The greedy match may span past the first array; rebalance.
	depth := 0
	for i := loc[0]; i < len(text); i++ {
		switch text[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return text[loc[0] : i+1]
			}
		}
	}
	return ""
}

// candidate is a windowed snippet of transcript used for jump point prompts.
type candidate struct {
	Seconds int
	Snippet string
}

const (
	windowSeconds  = 20
	windowMaxChars = 220
	maxCandidates  = 60
)

// windowSegments buckets transcript segments into ~20 second windows,
// flushing a window when elapsed time or accumulated text exceeds limits.
// The candidate list is capped at maxCandidates by even downsampling.
func windowSegments(segments []transcriber.Segment) []candidate {
	var (
		candidates  []candidate
		acc         []string
		windowStart float64
		open        bool
	)

	flush := func() {
		snippet := strings.TrimSpace(strings.ReplaceAll(strings.Join(acc, " "), "\n", " "))
		if snippet != "" {
			snippet = truncateOnRune(snippet, windowMaxChars)
			candidates = append(candidates, candidate{
				Seconds: clampSeconds(windowStart),
				Snippet: snippet,
			})
		}
		acc = nil
		open = false
	}

	for _, seg := range segments {
		text := strings.TrimSpace(seg.Text)
		if !open {
			windowStart = seg.Start
			open = true
		}
		acc = append(acc, text)
		accLen := 0
		for _, t := range acc {
			accLen += len(t)
		}
		if seg.End-windowStart >= windowSeconds || accLen >= windowMaxChars {
			flush()
		}
	}
	if open && len(acc) > 0 {
		flush()
	}

	if len(candidates) > maxCandidates {
		candidates = downsampleCandidates(candidates, maxCandidates)
	}
	return candidates
}

// downsampleCandidates evenly thins a slice to at most n entries.
func downsampleCandidates(in []candidate, n int) []candidate {
	step := len(in) / n
	if step < 1 {
		step = 1
	}
	out := make([]candidate, 0, n)
	for i := 0; i < len(in); i += step {
		out = append(out, in[i])
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// DownsampleJumpPoints evenly thins a jump point list to at most n entries.
func DownsampleJumpPoints(in []JumpPoint, n int) []JumpPoint {
	if len(in) <= n {
		return in
	}
	step := len(in) / n
	if step < 1 {
		step = 1
	}
	out := make([]JumpPoint, 0, n)
	for i := 0; i < len(in); i += step {
		out = append(out, in[i])
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// buildJumpPointPrompt renders the jump point selection prompt from
// windowed candidates plus optional transcript context.
func buildJumpPointPrompt(candidates []candidate, transcript string) string {
	var b strings.Builder

	context := transcript
	if len(context) > 2000 {
		context = context[:2000]
	}
	fmt.Fprintf(&b, "Transcript context (optional, truncated):\n%s\n\n", context)

	b.WriteString("Candidate moments (time — snippet):\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "%s — %s\n", formatTimestamp(c.Seconds), c.Snippet)
	}

	b.WriteString("\nSelect 6-12 truly significant moments that a viewer would want to jump to. " +
		"Prefer topic changes, key demos, definitions, steps starting points, and conclusions. " +
		"Spread them across the video (don't cluster). " +
		`Respond ONLY as JSON array with objects: {"seconds": <int>, "title": "short label"}.`)

	return b.String()
}

// formatTimestamp renders seconds as M:SS.
func formatTimestamp(sec int) string {
	return fmt.Sprintf("%d:%02d", sec/60, sec%60)
}

// clampSeconds rounds a start offset to a non-negative whole second.
func clampSeconds(s float64) int {
	if s < 0 {
		return 0
	}
	return int(s + 0.5)
}

// topicKeywords maps display topics to trigger keywords for ExtractKeyTopics.
var topicKeywords = map[string][]string{
	"Programming":      {"code", "programming", "software", "development", "algorithm"},
	"Machine Learning": {"machine learning", "ml", "ai", "neural", "model", "training"},
	"Web Development":  {"web", "html", "css", "javascript", "frontend", "backend"},
	"Data Science":     {"data", "analysis", "statistics", "visualization", "dataset"},
	"DevOps":           {"deployment", "docker", "kubernetes", "ci/cd", "infrastructure"},
	"Security":         {"security", "authentication", "encryption", "vulnerability"},
	"Database":         {"database", "sql", "query", "table", "schema"},
	"Cloud":            {"cloud", "aws", "azure", "gcp", "serverless"},
	"Mobile":           {"mobile", "ios", "android", "app", "flutter", "react native"},
	"Design":           {"design", "ui", "ux", "interface", "user experience"},
}

// ExtractKeyTopics tags a summary with coarse topics by keyword matching.
func ExtractKeyTopics(summary string) []string {
	if summary == "" {
		return nil
	}
	lower := strings.ToLower(summary)
	var topics []string
	for topic, keywords := range topicKeywords {
		for _, kw := range keywords {
			if strings.Contains(lower, kw) {
				topics = append(topics, topic)
				break
			}
		}
	}
	sort.Strings(topics)
	return topics
}
