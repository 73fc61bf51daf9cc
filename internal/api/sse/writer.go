// Package sse provides Server-Sent Events support for streaming chat turns.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// EventType represents the type of SSE event.
type EventType string

const (
	// EventToken carries one streamed completion fragment.
	EventToken EventType = "token"
	// EventComplete marks the end of the completion stream.
	EventComplete EventType = "complete"
	// EventMessageSaved carries a persisted message.
	EventMessageSaved EventType = "message_saved"
	// EventRateLimitExceeded carries a rate limit denial.
	EventRateLimitExceeded EventType = "rate_limit_exceeded"
	// EventTurnResult carries a replayed turn.
	EventTurnResult EventType = "turn_result"
	// EventError is an error event.
	EventError EventType = "error"
	// EventDone closes the stream.
	EventDone EventType = "done"
)

// TokenEvent is the payload of EventToken.
type TokenEvent struct {
	Content string `json:"content"`
}

// ErrorEvent represents an error event.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Writer writes Server-Sent Events to an HTTP response.
type Writer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
}

// NewWriter creates a new SSE writer.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	return &Writer{
		writer:  w,
		flusher: flusher,
	}, nil
}

// WriteEvent writes an SSE event with the given type and data.
func (w *Writer) WriteEvent(eventType EventType, data string) error {
	_, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", eventType, data)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// WriteJSON writes an SSE event with JSON-encoded data.
func (w *Writer) WriteJSON(eventType EventType, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	return w.WriteEvent(eventType, string(jsonData))
}

// WriteToken writes one completion fragment.
func (w *Writer) WriteToken(content string) error {
	return w.WriteJSON(EventToken, &TokenEvent{Content: content})
}

// WriteComplete signals that the completion stream ended.
func (w *Writer) WriteComplete() error {
	return w.WriteEvent(EventComplete, "{}")
}

// WriteMessageSaved writes a persisted message.
func (w *Writer) WriteMessageSaved(msg *models.Message) error {
	return w.WriteJSON(EventMessageSaved, msg)
}

// WriteRateLimited writes a rate limit denial.
func (w *Writer) WriteRateLimited(notice *models.RateLimitNotice) error {
	return w.WriteJSON(EventRateLimitExceeded, notice)
}

// WriteTurnResult writes a cached turn.
func (w *Writer) WriteTurnResult(turn *models.TurnResult) error {
	return w.WriteJSON(EventTurnResult, turn)
}

// WriteError writes an error event.
func (w *Writer) WriteError(code, message string, details string) error {
	return w.WriteJSON(EventError, &ErrorEvent{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// WriteDone writes a done event to signal stream completion.
func (w *Writer) WriteDone() error {
	return w.WriteEvent(EventDone, "stream completed")
}

// Emitter adapts a Writer to the chat bridge's event sink.
type Emitter struct {
	W *Writer
}

// Token writes a token event.
func (e Emitter) Token(content string) error { return e.W.WriteToken(content) }

// Complete writes a complete event.
func (e Emitter) Complete() error { return e.W.WriteComplete() }

// MessageSaved writes a message_saved event.
func (e Emitter) MessageSaved(msg *models.Message) error { return e.W.WriteMessageSaved(msg) }

// RateLimited writes a rate_limit_exceeded event.
func (e Emitter) RateLimited(notice *models.RateLimitNotice) error {
	return e.W.WriteRateLimited(notice)
}
