package tools

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/myworkflows/chat-service/internal/domain/models"
	"github.com/myworkflows/chat-service/internal/pkg/encryption"
	"github.com/myworkflows/chat-service/internal/services/tools/n8n"
)

const maxRawBytes = 16 << 10

// User-facing failure messages.
const (
	msgNoConnection = "No active n8n connection found. Connect your n8n instance in Settings to let the assistant read your workflows."
	msgUnauthorized = "n8n API key is invalid or expired. Update the API key of your n8n connection."
	msgNotFound     = "Workflow not found in n8n. It may have been deleted or moved."
	msgForbidden    = "Insufficient permissions to read this workflow with the configured n8n API key."
)

// WorkflowFetcher fetches a workflow from one n8n instance.
type WorkflowFetcher interface {
	GetWorkflow(ctx context.Context, workflowID string) (*n8n.Workflow, []byte, error)
}

// FetcherFactory builds a fetcher for an instance URL and API key.
type FetcherFactory func(instanceURL, apiKey string) (WorkflowFetcher, error)

// N8NConfig holds the collaborators of N8NInvoker.
type N8NConfig struct {
	DB         *gorm.DB
	Encryptor  encryption.Encryptor
	Enabled    bool
	Timeout    time.Duration
	NewFetcher FetcherFactory  // optional
	Logger     *zerolog.Logger // optional, defaults to the global logger
}

// N8NInvoker implements Invoker against the user's linked n8n instance.
type N8NInvoker struct {
	db         *gorm.DB
	encryptor  encryption.Encryptor
	connected  bool
	newFetcher FetcherFactory
	logger     zerolog.Logger
}

// NewN8NInvoker creates an invoker.
func NewN8NInvoker(cfg N8NConfig) (*N8NInvoker, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("db is required")
	}
	if cfg.Encryptor == nil {
		return nil, fmt.Errorf("encryptor is required")
	}

	newFetcher := cfg.NewFetcher
	if newFetcher == nil {
		httpClient := &http.Client{Timeout: cfg.Timeout}
		newFetcher = func(instanceURL, apiKey string) (WorkflowFetcher, error) {
			return n8n.NewAPIClient(&n8n.APIClientConfig{BaseURL: instanceURL, APIKey: apiKey, HTTPClient: httpClient})
		}
	}

	inv := &N8NInvoker{
		db:         cfg.DB,
		encryptor:  cfg.Encryptor,
		connected:  cfg.Enabled,
		newFetcher: newFetcher,
		logger:     log.Logger,
	}
	if cfg.Logger != nil {
		inv.logger = *cfg.Logger
	}
	return inv, nil
}

// Connected implements Invoker.
func (i *N8NInvoker) Connected() bool {
	return i.connected
}

// Definitions implements Invoker.
func (i *N8NInvoker) Definitions() []Definition {
	return []Definition{{
		Name:        WorkflowDetailsTool,
		Description: "Fetch the full definition of one of the user's n8n workflows: nodes, triggers, tags and settings.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"workflowId": map[string]string{"type": "string", "description": "Internal workflow id"},
			},
			"required": []string{"workflowId"},
		},
	}}
}

// Invoke implements Invoker.
func (i *N8NInvoker) Invoke(ctx context.Context, name string, args map[string]string) (*Result, error) {
	if name != WorkflowDetailsTool {
		return nil, &ToolError{Code: CodeUnknownTool, Message: fmt.Sprintf("Unknown tool: %s", name)}
	}
	return i.workflowDetails(ctx, args["workflowId"], args["userId"])
}

func (i *N8NInvoker) workflowDetails(ctx context.Context, workflowID, userID string) (*Result, error) {
	if strings.TrimSpace(workflowID) == "" || strings.TrimSpace(userID) == "" {
		return nil, &ToolError{Code: CodeInvalidArguments, Message: "workflowId and userId are required"}
	}

	var conn models.N8NConnection
	err := i.db.WithContext(ctx).
		Where("user_id = ? AND is_active = ?", userID, true).
		Order("created_at DESC").
		Take(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ToolError{Code: CodeNoConnection, Message: msgNoConnection}
	}
	if err != nil {
		return nil, &ToolError{Code: CodeUpstream, Message: "Failed to load the n8n connection.", Err: err}
	}

	var wf models.Workflow
	err = i.db.WithContext(ctx).Where("id = ? AND user_id = ?", workflowID, userID).Take(&wf).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &ToolError{Code: CodeNotFound, Message: msgNotFound}
	}
	if err != nil {
		return nil, &ToolError{Code: CodeUpstream, Message: "Failed to load the workflow mapping.", Err: err}
	}

	apiKey, err := i.encryptor.DecryptString(conn.APIKeyEncrypted)
	if err != nil {
		return nil, &ToolError{Code: CodeUnauthorized, Message: msgUnauthorized, Err: err}
	}

	fetcher, err := i.newFetcher(conn.InstanceURL, apiKey)
	if err != nil {
		return nil, &ToolError{Code: CodeUpstream, Message: "The n8n instance URL is invalid.", Err: err}
	}

	workflow, raw, err := fetcher.GetWorkflow(ctx, wf.N8NWorkflowID)
	if err != nil {
		return nil, classify(err)
	}

	i.logger.Debug().
		Str("user_id", userID).
		Str("workflow_id", workflowID).
		Int("nodes", len(workflow.Nodes)).
		Msg("fetched workflow details")

	return &Result{
		Tool:    WorkflowDetailsTool,
		Summary: Summarize(workflow),
		Raw:     truncate(string(raw), maxRawBytes),
	}, nil
}

func classify(err error) error {
	var statusErr *n8n.StatusError
	if !errors.As(err, &statusErr) {
		return &ToolError{Code: CodeUpstream, Message: "Could not reach the n8n instance.", Err: err}
	}
	switch statusErr.StatusCode {
	case http.StatusUnauthorized:
		return &ToolError{Code: CodeUnauthorized, Message: msgUnauthorized, Err: err}
	case http.StatusForbidden:
		return &ToolError{Code: CodeForbidden, Message: msgForbidden, Err: err}
	case http.StatusNotFound:
		return &ToolError{Code: CodeNotFound, Message: msgNotFound, Err: err}
	default:
		return &ToolError{Code: CodeUpstream, Message: fmt.Sprintf("n8n returned status %d.", statusErr.StatusCode), Err: err}
	}
}

// Summarize renders a workflow as plain text for the model.
func Summarize(w *n8n.Workflow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Workflow: %s (ID: %s)\n", w.Name, w.ID)
	if w.Active {
		b.WriteString("Status: active\n")
	} else {
		b.WriteString("Status: inactive\n")
	}

	fmt.Fprintf(&b, "Nodes (%d):\n", len(w.Nodes))
	for _, n := range w.Nodes {
		fmt.Fprintf(&b, "- %s [%s]", n.Name, n.Type)
		if n.Disabled {
			b.WriteString(" (disabled)")
		}
		b.WriteString("\n")
	}

	if triggers := w.Triggers(); len(triggers) > 0 {
		names := make([]string, 0, len(triggers))
		for _, n := range triggers {
			names = append(names, n.Name)
		}
		fmt.Fprintf(&b, "Triggers: %s\n", strings.Join(names, ", "))
	} else {
		b.WriteString("Triggers: none\n")
	}

	if len(w.Tags) > 0 {
		tags := make([]string, 0, len(w.Tags))
		for _, t := range w.Tags {
			tags = append(tags, t.Name)
		}
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(tags, ", "))
	}
	if w.UpdatedAt != "" {
		fmt.Fprintf(&b, "Last updated: %s\n", w.UpdatedAt)
	}
	return strings.TrimRight(b.String(), "\n")
}

// truncate cuts s to at most max bytes on a rune boundary.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max] + "\n... (truncated)"
}
