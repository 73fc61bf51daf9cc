// Package tools exposes server-side tools the assistant can use during a
// chat turn behind a uniform Invoke call.
package tools

import (
	"context"
	"errors"
	"fmt"
)

// WorkflowDetailsTool fetches a workflow definition from the user's n8n instance.
const WorkflowDetailsTool = "get_workflow_details"

// ErrorCode classifies a tool failure.
type ErrorCode string

const (
	CodeNoConnection     ErrorCode = "no_connection"
	CodeUnauthorized     ErrorCode = "unauthorized"
	CodeNotFound         ErrorCode = "not_found"
	CodeForbidden        ErrorCode = "forbidden"
	CodeInvalidArguments ErrorCode = "invalid_arguments"
	CodeUnknownTool      ErrorCode = "unknown_tool"
	CodeUpstream         ErrorCode = "upstream_error"
)

// ToolError is a classified tool failure. Message is safe to show to the model.
type ToolError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *ToolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Message returns the user-facing message of err, or err.Error() when it is
// not a ToolError.
func Message(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Message
	}
	return err.Error()
}

// Definition describes a tool to the model.
type Definition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Result is the output of a successful invocation.
type Result struct {
	Tool    string `json:"tool"`
	Summary string `json:"summary"`
	Raw     string `json:"raw,omitempty"`
}

// Content renders the result for the model context.
func (r *Result) Content() string {
	if r.Raw == "" {
		return r.Summary
	}
	return r.Summary + "\n\nRaw workflow JSON:\n" + r.Raw
}

// Invoker runs tools by name.
type Invoker interface {
	Invoke(ctx context.Context, name string, args map[string]string) (*Result, error)

	// Connected reports whether tools are available. Fixed at construction.
	Connected() bool

	Definitions() []Definition
}
