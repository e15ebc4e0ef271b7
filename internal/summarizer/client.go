package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/vidsum/vidsum-api/internal/transcriber"
)

// Static errors for summarizer operations.
var (
	// ErrEmptyTranscript is returned when the transcript is empty or whitespace.
	ErrEmptyTranscript = errors.New("summarizer: empty transcript provided")
	// ErrTranscriptTooLong is returned when the transcript exceeds the configured maximum.
	ErrTranscriptTooLong = errors.New("summarizer: transcript too long")
	// ErrEmptySummary is returned when the model produces no text.
	ErrEmptySummary = errors.New("summarizer: model returned empty summary")
	// ErrTimeout is returned when a generation call exceeds its deadline.
	ErrTimeout = errors.New("summarizer: request timed out")
	// ErrConnection is returned when the Ollama server is unreachable.
	ErrConnection = errors.New("summarizer: connection to Ollama service failed")
	// ErrUnhealthy is returned when the health probe fails before generation.
	ErrUnhealthy = errors.New("summarizer: Ollama service unavailable")
	// ErrServerError is returned when Ollama responds with a non-200 status.
	ErrServerError = errors.New("summarizer: Ollama API error")
)

// Default client limits.
const (
	DefaultTimeout         = 2700 * time.Second
	DefaultMaxTranscript   = 50000
	DefaultPromptBudget    = 15000
	healthTimeout          = 10 * time.Second
	pullTimeout            = 600 * time.Second
	jumpPointTimeout       = 600 * time.Second
	defaultJumpPointsLimit = 10
)

// Client generates summaries and jump points through an Ollama server.
type Client struct {
	baseURL       string
	model         string
	httpClient    *http.Client
	timeout       time.Duration
	maxTranscript int
	promptBudget  int
	logger        *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithTimeout sets the generation timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) {
		if d > 0 {
			cl.timeout = d
		}
	}
}

// WithMaxTranscriptChars sets the transcript length cap.
func WithMaxTranscriptChars(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.maxTranscript = n
		}
	}
}

// WithPromptBudgetChars sets the prompt truncation budget.
func WithPromptBudgetChars(n int) ClientOption {
	return func(cl *Client) {
		if n > 0 {
			cl.promptBudget = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}

// NewClient creates a summarizer client for the given Ollama base URL and
// default model. If baseURL is empty, the conventional in-cluster address
// is used.
func NewClient(baseURL, model string, opts ...ClientOption) *Client {
	if baseURL == "" {
		baseURL = "http://ollama:11434"
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		model:         model,
		httpClient:    &http.Client{},
		timeout:       DefaultTimeout,
		maxTranscript: DefaultMaxTranscript,
		promptBudget:  DefaultPromptBudget,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the default LLM model identifier.
func (c *Client) Model() string {
	return c.model
}

// Summarize generates a structured summary for the transcript.
// modelName overrides the client default when non-empty.
func (c *Client) Summarize(ctx context.Context, transcript, modelName string) (SummaryResult, error) {
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return SummaryResult{}, ErrEmptyTranscript
	}
	if len(transcript) > c.maxTranscript {
		return SummaryResult{}, fmt.Errorf("%w: %d characters (max %d)", ErrTranscriptTooLong, len(transcript), c.maxTranscript)
	}

	model := c.model
	if modelName != "" {
		model = modelName
	}

	health := c.Health(ctx)
	if !health.Healthy {
		return SummaryResult{}, fmt.Errorf("%w: %s", ErrUnhealthy, health.Error)
	}

	c.logger.Info("generating summary",
		slog.String("model", model),
		slog.Int("transcript_chars", len(transcript)),
	)

	req := generateRequest{
		Model:  model,
		Prompt: buildSummaryPrompt(transcript, c.promptBudget),
		Stream: false,
		Options: generateOptions{
			Temperature: 0.4,
			TopP:        0.9,
			NumPredict:  3500,
			Stop:        []string{"</summary>", "\n\n---"},
		},
	}

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", c.timeout, req, &resp); err != nil {
		return SummaryResult{}, err
	}

	raw := strings.TrimSpace(resp.Response)
	if raw == "" {
		return SummaryResult{}, ErrEmptySummary
	}

	result := SummaryResult{
		Summary:           PostProcessSummary(raw),
		ModelUsed:         model,
		TokensUsed:        resp.EvalCount,
		ProcessingSeconds: float64(resp.TotalDuration) / 1e9,
	}

	c.logger.Info("summary generated",
		slog.String("model", model),
		slog.Int("summary_chars", len(result.Summary)),
	)

	return result, nil
}

// GenerateJumpPoints asks the model to pick significant moments from the
// transcript segments. It returns nil (not an error) when the model is
// unavailable or its response cannot be parsed; the caller applies its own
// heuristic fallback in that case.
func (c *Client) GenerateJumpPoints(ctx context.Context, segments []transcriber.Segment, transcript, modelName string, maxPoints int) []JumpPoint {
	if maxPoints <= 0 {
		maxPoints = defaultJumpPointsLimit
	}

	candidates := windowSegments(segments)
	if len(candidates) == 0 {
		return nil
	}

	model := c.model
	if modelName != "" {
		model = modelName
	}

	if health := c.Health(ctx); !health.Healthy {
		return nil
	}

	req := generateRequest{
		Model:  model,
		Prompt: buildJumpPointPrompt(candidates, transcript),
		Stream: false,
		Options: generateOptions{
			Temperature: 0.2,
			TopP:        0.9,
			NumPredict:  800,
		},
	}

	var resp generateResponse
	if err := c.post(ctx, "/api/generate", jumpPointTimeout, req, &resp); err != nil {
		c.logger.Warn("jump point generation failed",
			slog.String("model", model),
			slog.String("error", err.Error()),
		)
		return nil
	}

	return parseJumpPoints(resp.Response, maxPoints)
}

// parseJumpPoints extracts and sanitizes a jump point array from a raw
// model response. Invalid entries are dropped; the result is time-ordered
// and evenly downsampled to maxPoints.
func parseJumpPoints(response string, maxPoints int) []JumpPoint {
	arr := ExtractJSONArray(response)
	if arr == "" {
		return nil
	}

	var raw []struct {
		Seconds int    `json:"seconds"`
		Title   string `json:"title"`
	}
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		return nil
	}

	out := make([]JumpPoint, 0, len(raw))
	for _, item := range raw {
		title := strings.TrimSpace(item.Title)
		if item.Seconds < 0 || title == "" {
			continue
		}
		title = truncateOnRune(title, 100)
		out = append(out, JumpPoint{Seconds: item.Seconds, Title: title})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seconds < out[j].Seconds })
	return DownsampleJumpPoints(out, maxPoints)
}

// Health probes the Ollama server and reports which models are available.
func (c *Client) Health(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return HealthStatus{Healthy: false, Error: err.Error()}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return HealthStatus{Healthy: false, Error: "Ollama service timeout"}
		}
		return HealthStatus{Healthy: false, Error: "cannot connect to Ollama service"}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{Healthy: false, Error: fmt.Sprintf("Ollama returned status %d", resp.StatusCode)}
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return HealthStatus{Healthy: false, Error: fmt.Sprintf("decode tags response: %v", err)}
	}

	models := make([]string, 0, len(tags.Models))
	ready := false
	for _, m := range tags.Models {
		models = append(models, m.Name)
		if m.Name == c.model {
			ready = true
		}
	}

	return HealthStatus{
		Healthy:         true,
		ModelsAvailable: models,
		ModelReady:      ready,
	}
}

// ModelInfo fetches details for an installed model. An empty modelName
// queries the client default.
func (c *Client) ModelInfo(ctx context.Context, modelName string) (ModelInfo, error) {
	if modelName == "" {
		modelName = c.model
	}

	var resp showResponse
	if err := c.post(ctx, "/api/show", healthTimeout, showRequest{Name: modelName}, &resp); err != nil {
		return ModelInfo{}, err
	}
	return ModelInfo{
		Name:              modelName,
		Family:            resp.Details.Family,
		ParameterSize:     resp.Details.ParameterSize,
		QuantizationLevel: resp.Details.QuantizationLevel,
	}, nil
}

// Pull downloads a model to the Ollama server. The operation is idempotent:
// when the model is already present, Pull returns immediately with
// Cached=true.
func (c *Client) Pull(ctx context.Context, modelName string) (PullResult, error) {
	health := c.Health(ctx)
	for _, m := range health.ModelsAvailable {
		if m == modelName {
			c.logger.Info("model already present", slog.String("model", modelName))
			return PullResult{Cached: true}, nil
		}
	}

	c.logger.Info("pulling model", slog.String("model", modelName))

	var resp json.RawMessage
	if err := c.post(ctx, "/api/pull", pullTimeout, pullRequest{Name: modelName, Stream: false}, &resp); err != nil {
		return PullResult{}, err
	}
	return PullResult{Cached: false}, nil
}

// post issues a JSON POST with a per-call deadline and decodes the response
// into out. Timeouts and connection failures surface as distinct errors.
func (c *Client) post(ctx context.Context, path string, timeout time.Duration, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("summarizer: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("summarizer: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w after %s", ErrTimeout, timeout)
		}
		return ErrConnection
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: %d - %s", ErrServerError, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("summarizer: decode response: %w", err)
	}
	return nil
}
