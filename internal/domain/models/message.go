// Package models contains domain models for the MyWorkflows chat service.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// MessageRole represents the role of a message sender.
type MessageRole string

const (
	// RoleUser represents a message from the user.
	RoleUser MessageRole = "user"
	// RoleAssistant represents a message from the assistant.
	RoleAssistant MessageRole = "assistant"
	// RoleTool represents stored tool output. Never shown in the chat UI.
	RoleTool MessageRole = "tool"
	// RoleSystem is only used for prompts sent upstream and is never persisted.
	RoleSystem MessageRole = "system"
)

// Valid reports whether the role may be persisted.
func (r MessageRole) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Conversation is the persistent thread for one (user, workflow) pair.
type Conversation struct {
	ID         string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_chat_sessions_user_workflow" json:"userId"`
	WorkflowID string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_chat_sessions_user_workflow" json:"workflowId"`
	Title      string    `gorm:"type:varchar(255)" json:"title,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// TableName overrides the gorm table name.
func (Conversation) TableName() string { return "chat_sessions" }

// Message is one persisted chat message.
// Seq breaks ties between messages sharing a CreatedAt timestamp.
type Message struct {
	Seq            uint64            `gorm:"primaryKey;autoIncrement" json:"-"`
	ID             string            `gorm:"type:varchar(36);not null;uniqueIndex" json:"id"`
	ConversationID string            `gorm:"type:varchar(36);not null;index:idx_chat_messages_conversation_created" json:"sessionId"`
	Role           MessageRole       `gorm:"type:varchar(16);not null" json:"role"`
	Content        string            `gorm:"type:text;not null" json:"content"`
	Metadata       datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"index:idx_chat_messages_conversation_created" json:"createdAt"`
}

// TableName overrides the gorm table name.
func (Message) TableName() string { return "chat_messages" }

// Metadata keys written by the chat bridge.
const (
	MetaModel          = "model"
	MetaAttachments    = "attachments"
	MetaIdempotencyKey = "idempotencyKey"
	MetaLatencyMs      = "latencyMs"
	MetaTokensInput    = "tokensInput"
	MetaTokensOutput   = "tokensOutput"
	MetaCreditsUsed    = "creditsUsed"
	MetaFallback       = "fallback"
	MetaFallbackReason = "fallbackReason"
	MetaToolUsed       = "toolUsed"
	MetaToolName       = "toolName"
	MetaToolError      = "toolError"
	MetaToolArgs       = "toolArgs"
)

// Attachment is a client-supplied file reference carried in message metadata.
type Attachment struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
}
