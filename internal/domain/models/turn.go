package models

import "time"

// Rate limit denial reasons.
const (
	ReasonUserNotFound        = "user_not_found"
	ReasonPlanConfigNotFound  = "plan_config_not_found"
	ReasonUsageNotFound       = "usage_not_found"
	ReasonDailyLimitReached   = "daily_limit_reached"
	ReasonInsufficientCredits = "insufficient_credits"
)

// RateLimitNotice is sent to the client when a turn is denied.
type RateLimitNotice struct {
	Reason           string     `json:"reason"`
	ResetAt          *time.Time `json:"resetAt,omitempty"`
	RemainingCredits int        `json:"remainingCredits"`
	UpgradeURL       string     `json:"upgradeUrl"`
}

// TurnResult is the outcome of one completed chat turn.
type TurnResult struct {
	IdempotencyKey   string    `json:"idempotencyKey,omitempty"`
	UserID           string    `json:"userId"`
	WorkflowID       string    `json:"workflowId"`
	ConversationID   string    `json:"conversationId"`
	UserMessage      *Message  `json:"userMessage"`
	AssistantMessage *Message  `json:"assistantMessage"`
	CreditsUsed      int       `json:"creditsUsed"`
	Fallback         bool      `json:"fallback"`
	CompletedAt      time.Time `json:"completedAt"`
}
