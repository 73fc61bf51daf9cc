// Package dto provides Data Transfer Objects for API requests and responses.
package dto

import "github.com/myworkflows/chat-service/internal/domain/models"

// ChatStreamRequest is the body of POST /chat/stream.
type ChatStreamRequest struct {
	Content        string              `json:"content" binding:"required,min=1,max=32000"`
	WorkflowID     string              `json:"workflowId"`
	Model          string              `json:"model"`
	Attachments    []models.Attachment `json:"attachments"`
	IdempotencyKey string              `json:"idempotencyKey"`
}

// GetMessagesQuery holds the query parameters of the history endpoint.
type GetMessagesQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
}
