package ws

import (
	"github.com/myworkflows/chat-service/internal/domain/models"
)

// Inbound message types.
const (
	TypeChat       = "chat"
	TypeGetHistory = "get_history"
	TypeClearChat  = "clear_chat"
	TypeGetTurn    = "get_turn"
)

// Outbound event types.
const (
	EventConnected         = "connected"
	EventToken             = "token"
	EventComplete          = "complete"
	EventMessageSaved      = "message_saved"
	EventHistory           = "history"
	EventChatCleared       = "chat_cleared"
	EventError             = "error"
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventTurnResult        = "turn_result"
)

// Client-facing error texts.
const (
	errInvalidFormat   = "Invalid message format"
	errUnknownType     = "Unknown message type: %s"
	errEmptyContent    = "Message content is required"
	errThrottled       = "Too many messages, please slow down"
	errTurnFailed      = "Failed to process message"
	errHistoryFailed   = "Failed to load history"
	errClearFailed     = "Failed to clear chat"
	errTurnKeyRequired = "idempotencyKey is required"
	errTurnNotFound    = "Turn not found"

	connectedGreeting = "Connected to MyWorkflows chat"
)

// Inbound is a client frame. Fields are used depending on Type.
type Inbound struct {
	Type           string              `json:"type"`
	Content        string              `json:"content,omitempty"`
	WorkflowID     string              `json:"workflowId,omitempty"`
	Model          string              `json:"model,omitempty"`
	Attachments    []models.Attachment `json:"attachments,omitempty"`
	IdempotencyKey string              `json:"idempotencyKey,omitempty"`
	Limit          int                 `json:"limit,omitempty"`
}

// Event is a server frame. SessionID is the connection id.
type Event struct {
	Type       string             `json:"type"`
	SessionID  string             `json:"sessionId"`
	Content    string             `json:"content,omitempty"`
	Message    *models.Message    `json:"message,omitempty"`
	History    *[]models.Message  `json:"history,omitempty"`
	WorkflowID string             `json:"workflowId,omitempty"`
	Error      string             `json:"error,omitempty"`
	Turn       *models.TurnResult `json:"turn,omitempty"`

	*models.RateLimitNotice
}

func historyEvent(msgs []models.Message) Event {
	if msgs == nil {
		msgs = []models.Message{}
	}
	return Event{Type: EventHistory, History: &msgs}
}

func errorEvent(msg string) Event {
	return Event{Type: EventError, Error: msg}
}
