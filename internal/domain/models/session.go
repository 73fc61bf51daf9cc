package models

import "time"

// Session is the ephemeral state of one authenticated WebSocket connection.
// It is never persisted.
type Session struct {
	ConnectionID    string
	UserID          string
	AuthToken       string
	BoundWorkflowID string
	ChatSessionID   string
	ConnectedAt     time.Time
}
