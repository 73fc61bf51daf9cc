// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import (
	"time"

	"github.com/myworkflows/chat-service/internal/domain/models"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// GetMessagesResponse is the visible history of one workflow conversation.
type GetMessagesResponse struct {
	WorkflowID     string           `json:"workflowId"`
	ConversationID string           `json:"conversationId,omitempty"`
	Messages       []models.Message `json:"messages"`
	Limit          int              `json:"limit"`
}

// ClearMessagesResponse acknowledges a cleared conversation.
type ClearMessagesResponse struct {
	WorkflowID string `json:"workflowId"`
	Cleared    bool   `json:"cleared"`
}

// UsageResponse is the caller's current allowance.
type UsageResponse struct {
	Allowed          bool               `json:"allowed"`
	PlanType         models.PlanType    `json:"planType,omitempty"`
	Reason           string             `json:"reason,omitempty"`
	RemainingCredits int                `json:"remainingCredits"`
	ResetAt          *time.Time         `json:"resetAt,omitempty"`
	UpgradeURL       string             `json:"upgradeUrl,omitempty"`
	ActionsLast24h   *int64             `json:"actionsLast24h,omitempty"`
	Recent           []*models.UsageLog `json:"recent,omitempty"`
}
