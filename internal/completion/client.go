// Package completion talks to the remote language model.
//
// Client performs one OpenAI-compatible chat completion call and
// classifies its outcome; Retrier wraps a Client with the bounded
// re-attempt policy used for transient capacity failures.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbuliHe/visualizer/internal/telemetry"
	"github.com/tbuliHe/visualizer/pkg/models"
)

// Defaults.
const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryableCode = 50501
	DefaultMaxAttempts   = 3

	maxResponseBytes = 1 << 20
)

// Config configures a Client.
type Config struct {
	// URL is the full chat completions endpoint.
	URL    string
	APIKey string

	// Timeout bounds one call, connection to last byte.
	Timeout time.Duration

	// RetryableCode is the payload code that marks transient capacity
	// exhaustion upstream.
	RetryableCode int
}

// Client performs chat completion calls against one endpoint.
type Client struct {
	client        *http.Client
	url           string
	apiKey        string
	timeout       time.Duration
	retryableCode int
}

// NewClient creates a completion client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryableCode == 0 {
		cfg.RetryableCode = DefaultRetryableCode
	}
	return &Client{
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		url:           cfg.URL,
		apiKey:        cfg.APIKey,
		timeout:       cfg.Timeout,
		retryableCode: cfg.RetryableCode,
	}
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model            string               `json:"model"`
	Messages         []models.ChatMessage `json:"messages"`
	Stream           bool                 `json:"stream"`
	MaxTokens        int                  `json:"max_tokens,omitempty"`
	Stop             []string             `json:"stop,omitempty"`
	Temperature      float64              `json:"temperature"`
	TopP             float64              `json:"top_p"`
	TopK             int                  `json:"top_k,omitempty"`
	FrequencyPenalty float64              `json:"frequency_penalty"`
	N                int                  `json:"n"`
	ResponseFormat   responseFormat       `json:"response_format"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete performs one call and returns the first choice's content.
// Failures are *UpstreamError matching ErrRetryable or ErrFatal.
func (c *Client) Complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	start := time.Now()
	text, err := c.complete(ctx, req)
	telemetry.CompletionLatency.Observe(time.Since(start).Seconds())

	result := "success"
	switch {
	case err == nil:
	case isRetryable(err):
		result = "retryable"
	default:
		result = "fatal"
	}
	telemetry.CompletionAttemptsTotal.WithLabelValues(result).Inc()
	return text, err
}

func (c *Client) complete(ctx context.Context, req models.CompletionRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:            req.Model,
		Messages:         req.Messages,
		Stream:           req.Stream,
		MaxTokens:        req.Sampling.MaxTokens,
		Stop:             req.Sampling.Stop,
		Temperature:      req.Sampling.Temperature,
		TopP:             req.Sampling.TopP,
		TopK:             req.Sampling.TopK,
		FrequencyPenalty: req.Sampling.FrequencyPenalty,
		N:                1,
		ResponseFormat:   responseFormat{Type: "text"},
	})
	if err != nil {
		return "", &UpstreamError{Kind: ErrFatal, Message: "marshal request", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", &UpstreamError{Kind: ErrFatal, Message: "create request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &UpstreamError{Kind: ErrFatal, Message: "request failed", Err: err}
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return "", &UpstreamError{Kind: ErrFatal, StatusCode: httpResp.StatusCode, Message: "read response", Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return "", c.classify(httpResp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return "", &UpstreamError{
			Kind:       ErrFatal,
			StatusCode: httpResp.StatusCode,
			Message:    "decode response",
			Payload:    newPayload(respBody),
			Err:        err,
		}
	}
	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == nil ||
		strings.TrimSpace(*chatResp.Choices[0].Message.Content) == "" {
		return "", &UpstreamError{
			Kind:       ErrFatal,
			StatusCode: httpResp.StatusCode,
			Message:    "invalid API response format: no completion content",
			Payload:    newPayload(respBody),
		}
	}

	log.Debug().
		Str("completion_id", chatResp.ID).
		Int64("prompt_tokens", chatResp.Usage.PromptTokens).
		Int64("completion_tokens", chatResp.Usage.CompletionTokens).
		Msg("Completion received")

	return *chatResp.Choices[0].Message.Content, nil
}

// classify maps a non-2xx response to a retryable or fatal error.
func (c *Client) classify(status int, body []byte) *UpstreamError {
	code, message := payloadCode(body)
	if message == "" {
		message = fmt.Sprintf("unexpected upstream status (HTTP %d)", status)
	}

	kind := ErrFatal
	if code == c.retryableCode {
		kind = ErrRetryable
	}
	return &UpstreamError{
		Kind:       kind,
		StatusCode: status,
		Code:       code,
		Message:    message,
		Payload:    newPayload(body),
	}
}
