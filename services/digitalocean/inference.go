// Package digitalocean talks to DigitalOcean's GenAI serverless inference
// endpoint, which speaks the OpenAI chat completions protocol
package digitalocean

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	InferenceBaseURL        = "https://inference.do-ai.run"
	DefaultInferenceTimeout = 120 * time.Second
	DefaultInferenceModel   = "openai-gpt-oss-120b"

	completionsPath = "/v1/chat/completions"

	// appended to every system prompt in JSON mode
	jsonOnlySuffix = "\n\nYou MUST respond with valid JSON only. Do not include any markdown formatting, code blocks, or explanatory text. Output raw JSON only."
)

// APIError is a non-2xx answer from the inference endpoint
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("inference API error (status %d): %s", e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// InferenceConfig holds configuration for the inference client
type InferenceConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Model   string
}

// InferenceClient produces study artifacts from extracted text through one
// JSON-mode chat completion per request
type InferenceClient struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

func NewInferenceClient(config InferenceConfig) *InferenceClient {
	if config.BaseURL == "" {
		config.BaseURL = InferenceBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultInferenceTimeout
	}
	if config.Model == "" {
		config.Model = DefaultInferenceModel
	}

	return &InferenceClient{
		apiKey:     config.APIKey,
		endpoint:   config.BaseURL + completionsPath,
		model:      config.Model,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// InferenceUsage is the token accounting returned with a completion
type InferenceUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage InferenceUsage `json:"usage"`
}

// InferenceOption tweaks a completion request
type InferenceOption func(*chatRequest)

func WithInferenceTemperature(temp float64) InferenceOption {
	return func(req *chatRequest) { req.Temperature = temp }
}

func WithInferenceMaxTokens(tokens int) InferenceOption {
	return func(req *chatRequest) { req.MaxTokens = tokens }
}

// JSONCompletion sends one system/user exchange in JSON object mode and
// returns the raw content of the first choice. A reply cut off by the token
// limit is reported as an error since its JSON cannot be complete.
func (c *InferenceClient) JSONCompletion(ctx context.Context, systemPrompt, userPrompt string, options ...InferenceOption) (string, *InferenceUsage, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt + jsonOnlySuffix},
			{Role: "user", Content: userPrompt},
		},
		Temperature:    0.3,
		MaxTokens:      4096,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}
	for _, opt := range options {
		opt(&req)
	}

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", nil, err
	}
	if len(resp.Choices) == 0 {
		return "", nil, fmt.Errorf("no choices returned from inference API")
	}
	choice := resp.Choices[0]
	if choice.FinishReason == "length" {
		return "", &resp.Usage, fmt.Errorf("completion truncated at %d tokens", req.MaxTokens)
	}
	return choice.Message.Content, &resp.Usage, nil
}

func (c *InferenceClient) do(ctx context.Context, body chatRequest) (*chatResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var out chatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}
