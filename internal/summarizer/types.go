// Package summarizer generates structured summaries and jump points from
// transcripts using a local Ollama LLM server.
package summarizer

// JumpPoint marks a navigable moment in the video.
type JumpPoint struct {
	Seconds int    `json:"seconds"`
	Title   string `json:"title"`
}

// SummaryResult holds the outcome of a successful summarization call.
type SummaryResult struct {
	// Summary is the post-processed summary text.
	Summary string
	// ModelUsed is the LLM model that produced the summary.
	ModelUsed string
	// TokensUsed is the model's eval token count, when reported.
	TokensUsed int
	// ProcessingSeconds is the model-side wall time, when reported.
	ProcessingSeconds float64
}

// HealthStatus describes the Ollama server's availability.
type HealthStatus struct {
	Healthy         bool     `json:"healthy"`
	ModelsAvailable []string `json:"models_available"`
	ModelReady      bool     `json:"model_ready"`
	Error           string   `json:"error,omitempty"`
}

// PullResult describes the outcome of a model pull.
type PullResult struct {
	// Cached is true when the model was already present.
	Cached bool
}

// generateRequest is the request body for Ollama's /api/generate endpoint.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

// generateOptions tunes a single generation.
type generateOptions struct {
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	NumPredict  int      `json:"num_predict,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// generateResponse is the response from Ollama's /api/generate endpoint.
type generateResponse struct {
	Response      string `json:"response"`
	EvalCount     int    `json:"eval_count"`
	TotalDuration int64  `json:"total_duration"` // nanoseconds
}

// tagsResponse is the response from Ollama's /api/tags endpoint.
type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// pullRequest is the request body for Ollama's /api/pull endpoint.
type pullRequest struct {
	Name   string `json:"name"`
	Stream bool   `json:"stream"`
}

// ModelInfo describes an installed LLM model.
type ModelInfo struct {
	Name              string `json:"name"`
	Family            string `json:"family"`
	ParameterSize     string `json:"parameter_size"`
	QuantizationLevel string `json:"quantization_level"`
}

// showRequest is the request body for Ollama's /api/show endpoint.
type showRequest struct {
	Name string `json:"name"`
}

// showResponse is the response from Ollama's /api/show endpoint.
type showResponse struct {
	Details struct {
		Family            string `json:"family"`
		ParameterSize     string `json:"parameter_size"`
		QuantizationLevel string `json:"quantization_level"`
	} `json:"details"`
}
