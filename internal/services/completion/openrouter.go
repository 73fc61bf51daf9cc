// Package completion streams chat completions from OpenRouter.
package completion

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// DefaultBaseURL is the public OpenRouter API endpoint.
	DefaultBaseURL = "https://openrouter.ai/api/v1"

	maxErrorBody = 4 * 1024
	scanBufInit  = 64 * 1024
	scanBufMax   = 2 * 1024 * 1024
	doneSentinel = "[DONE]"
	dataPrefix   = "data:"
)

// Upstream failure codes.
const (
	CodeInvalidAPIKey       = "invalid_api_key"
	CodeInsufficientBalance = "insufficient_balance"
	CodeRateLimited         = "rate_limited"
	CodeUpstreamError       = "upstream_error"
)

// Message is one chat message sent upstream.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is one completion request.
type Request struct {
	Model    string
	Messages []Message
}

// UpstreamError is a failure before any token was received.
type UpstreamError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("openrouter: %s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("openrouter: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

// ClassifyStatus maps an HTTP status to an upstream failure code.
func ClassifyStatus(status int) string {
	switch status {
	case http.StatusUnauthorized:
		return CodeInvalidAPIKey
	case http.StatusPaymentRequired:
		return CodeInsufficientBalance
	case http.StatusTooManyRequests:
		return CodeRateLimited
	default:
		return CodeUpstreamError
	}
}

// Streamer streams a completion, calling onToken for every content delta.
// It returns the accumulated text.
type Streamer interface {
	Stream(ctx context.Context, req *Request, onToken func(string) error) (string, error)
}

// Config configures the OpenRouter client.
type Config struct {
	BaseURL string
	APIKey  string
	SiteURL string
	AppName string
	Client  *http.Client
}

// OpenRouterClient implements Streamer.
type OpenRouterClient struct {
	baseURL string
	apiKey  string
	siteURL string
	appName string
	client  *http.Client
}

// NewOpenRouterClient creates a client. The HTTP client must not carry a
// total timeout since streams are long lived; cancellation comes from ctx.
func NewOpenRouterClient(cfg Config) (*OpenRouterClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{}
	}
	return &OpenRouterClient{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		siteURL: cfg.SiteURL,
		appName: cfg.AppName,
		client:  client,
	}, nil
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Stream implements Streamer. Failures before the response body is read are
// returned as *UpstreamError; failures while reading are plain errors.
func (c *OpenRouterClient) Stream(ctx context.Context, req *Request, onToken func(string) error) (string, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return "", errors.New("openrouter: model is required")
	}

	body, err := json.Marshal(chatRequest{Model: req.Model, Messages: req.Messages, Stream: true})
	if err != nil {
		return "", err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.siteURL != "" {
		httpReq.Header.Set("HTTP-Referer", c.siteURL)
	}
	if c.appName != "" {
		httpReq.Header.Set("X-Title", c.appName)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &UpstreamError{Code: CodeUpstreamError, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return "", &UpstreamError{StatusCode: resp.StatusCode, Code: ClassifyStatus(resp.StatusCode), Message: msg}
	}

	var full strings.Builder
	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, scanBufInit), scanBufMax)

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, dataPrefix))
		if data == doneSentinel {
			return full.String(), nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return full.String(), fmt.Errorf("openrouter: malformed stream chunk: %w", err)
		}
		if chunk.Error != nil && chunk.Error.Message != "" {
			return full.String(), fmt.Errorf("openrouter: stream error: %s", chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		full.WriteString(delta)
		if err := onToken(delta); err != nil {
			return full.String(), err
		}
	}

	if err := sc.Err(); err != nil {
		return full.String(), fmt.Errorf("openrouter: stream interrupted: %w", err)
	}
	return full.String(), nil
}
