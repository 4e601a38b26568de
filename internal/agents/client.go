// Package agents talks to the OpenAI-compatible chat completion API that
// generates agent behavior, and post-processes its output into strict JSON.
package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/time/rate"
)

// Options configures the chat client. Zero values fall back to the
// OPENROUTER_* environment variables and library defaults.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	// RequestsPerSecond paces outbound calls; zero disables pacing.
	RequestsPerSecond float64
}

// Client handles communication with the completion API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewClient creates a chat client from options and environment fallbacks.
func NewClient(opts Options) *Client {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = os.Getenv("OPENROUTER_BASE_URL")
	}
	if opts.BaseURL == "" {
		opts.BaseURL = "https://openrouter.ai/api/v1"
	}
	if opts.Model == "" {
		opts.Model = os.Getenv("OPENROUTER_MODEL")
	}
	if opts.Model == "" {
		opts.Model = "deepseek/deepseek-chat"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	return &Client{
		apiKey:     opts.APIKey,
		baseURL:    opts.BaseURL,
		model:      opts.Model,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    limiter,
	}
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the request to the completion API.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

// CompletionResponse is the response from the completion API.
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int     `json:"index"`
		Message Message `json:"message"`
		Reason  string  `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// CreateCompletion issues one completion call and returns the raw response.
func (c *Client) CreateCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("OPENROUTER_API_KEY not set")
	}
	if req.Model == "" {
		req.Model = c.model
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = 2048
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", fmt.Sprintf("%s/chat/completions", c.baseURL), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &GeneratorError{Op: "transport", Err: err, Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &GeneratorError{Op: "transport", Err: err, Retryable: true}
	}

	var completionResp CompletionResponse
	if err := json.Unmarshal(respBody, &completionResp); err != nil {
		return nil, &GeneratorError{Op: "decode", Err: fmt.Errorf("status %d: %w", resp.StatusCode, err), Retryable: resp.StatusCode >= 500}
	}

	if completionResp.Error != nil {
		return nil, &GeneratorError{
			Op:        "api",
			Err:       fmt.Errorf("%s (%s)", completionResp.Error.Message, completionResp.Error.Type),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &GeneratorError{
			Op:        "api",
			Err:       fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)),
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	if len(completionResp.Choices) == 0 {
		return nil, &GeneratorError{Op: "api", Err: fmt.Errorf("no choices in response"), Retryable: true}
	}

	return &completionResp, nil
}
