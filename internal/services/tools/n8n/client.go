// Package n8n provides a minimal client for the n8n public REST API.
package n8n

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	apiKeyHeader   = "X-N8N-API-KEY"
	maxErrorBody   = 4 << 10
	defaultTimeout = 15 * time.Second
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("n8n returned status %d: %s", e.StatusCode, e.Body)
}

// APIClientConfig holds the configuration for the n8n API client.
type APIClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// APIClient calls one n8n instance with one API key.
type APIClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewAPIClient creates a new n8n API client.
func NewAPIClient(config *APIClientConfig) (*APIClient, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	base := strings.TrimRight(strings.TrimSpace(config.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}

	return &APIClient{
		baseURL:    base,
		apiKey:     config.APIKey,
		httpClient: httpClient,
	}, nil
}

// GetWorkflow fetches a workflow by its n8n id. The raw response body is
// returned alongside the decoded workflow.
func (c *APIClient) GetWorkflow(ctx context.Context, workflowID string) (*Workflow, []byte, error) {
	endpoint := fmt.Sprintf("%s/api/v1/workflows/%s", c.baseURL, url.PathEscape(workflowID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}

	var wf Workflow
	if err := json.Unmarshal(raw, &wf); err != nil {
		return nil, nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &wf, raw, nil
}

func (c *APIClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}
}
