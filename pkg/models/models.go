// Package models defines the wire types shared by the visualizer API and
// its upstream completion client.
package models

import "encoding/json"

// ── Public API ──────────────────────────────────────────────

// VisualizeRequest is the body of POST /api/visualize.
type VisualizeRequest struct {
	FunctionDesc string `json:"functionDesc"`
}

// DataPoint is a single plottable sample.
type DataPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// VisualizeResponse is returned on success. DataPoints keeps generation
// order, which the plotting collaborator relies on to connect the line.
type VisualizeResponse struct {
	DataPoints []DataPoint `json:"dataPoints"`
}

// ErrorResponse is returned for every failed request. Details carries the
// upstream diagnostic payload when one exists.
type ErrorResponse struct {
	Error   string          `json:"error"`
	Details json.RawMessage `json:"details,omitempty"`
}

// ── Completion ──────────────────────────────────────────────

// ChatMessage represents one message in a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// SamplingParams holds the generation parameters sent upstream.
type SamplingParams struct {
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	TopP             float64  `json:"top_p" yaml:"top_p"`
	TopK             int      `json:"top_k" yaml:"top_k"`
	FrequencyPenalty float64  `json:"frequency_penalty" yaml:"frequency_penalty"`
	MaxTokens        int      `json:"max_tokens" yaml:"max_tokens"`
	Stop             []string `json:"stop,omitempty" yaml:"stop"`
}

// CompletionRequest is an immutable request to the completion model.
type CompletionRequest struct {
	Model    string
	Messages []ChatMessage
	Sampling SamplingParams
	Stream   bool
}

// SystemPrompt returns the content of the first system message.
func (r CompletionRequest) SystemPrompt() string {
	for _, m := range r.Messages {
		if m.Role == "system" {
			return m.Content
		}
	}
	return ""
}

// UserText returns the content of the last user message.
func (r CompletionRequest) UserText() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}
