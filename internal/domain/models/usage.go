package models

import "time"

// PlanType is the billing plan of a user.
type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// IsFree reports whether the plan uses the daily interaction regime.
func (p PlanType) IsFree() bool {
	return p == PlanFree || p == ""
}

// Profile is the read-only user profile row.
type Profile struct {
	ID       string   `gorm:"type:varchar(64);primaryKey" json:"id"`
	Email    string   `gorm:"type:varchar(255)" json:"email"`
	PlanType PlanType `gorm:"type:varchar(32);not null;default:free" json:"planType"`
}

// TableName overrides the gorm table name.
func (Profile) TableName() string { return "profiles" }

// PlanConfig holds the limits of one plan.
type PlanConfig struct {
	PlanType               PlanType `gorm:"type:varchar(32);primaryKey" json:"planType"`
	DisplayName            string   `gorm:"type:varchar(64)" json:"displayName"`
	DailyInteractionsLimit int      `gorm:"not null;default:0" json:"dailyInteractionsLimit"`
	MonthlyCredits         int      `gorm:"not null;default:0" json:"monthlyCredits"`
}

// TableName overrides the gorm table name.
func (PlanConfig) TableName() string { return "plan_configs" }

// UsageRecord is the per-user usage ledger row.
// Free plans use the Daily* fields, paid plans the *Credits* fields.
type UsageRecord struct {
	UserID              string     `gorm:"type:varchar(64);primaryKey" json:"userId"`
	DailyInteractions   int        `gorm:"not null;default:0" json:"dailyInteractions"`
	DailyResetAt        *time.Time `json:"dailyResetAt,omitempty"`
	MonthlyCreditsUsed  int        `gorm:"not null;default:0" json:"monthlyCreditsUsed"`
	MonthlyCreditsLimit int        `gorm:"not null;default:0" json:"monthlyCreditsLimit"`
	CreditsResetAt      *time.Time `json:"creditsResetAt,omitempty"`
	TotalTokensUsed     int64      `gorm:"not null;default:0" json:"totalTokensUsed"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// TableName overrides the gorm table name.
func (UsageRecord) TableName() string { return "user_usage" }

// UsageLog is one append-only audit entry in the document store.
type UsageLog struct {
	ID          string                 `json:"id" bson:"_id"`
	UserID      string                 `json:"userId" bson:"userId"`
	CreditsUsed int                    `json:"creditsUsed" bson:"creditsUsed"`
	TokensUsed  int                    `json:"tokensUsed" bson:"tokensUsed"`
	Action      string                 `json:"action" bson:"action"`
	Model       string                 `json:"model,omitempty" bson:"model,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" bson:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"createdAt" bson:"createdAt"`
}

// UsageEvent is published to the message broker after usage is recorded.
type UsageEvent struct {
	EventID     string                 `json:"eventId"`
	UserID      string                 `json:"userId"`
	PlanType    PlanType               `json:"planType"`
	CreditsUsed int                    `json:"creditsUsed"`
	TokensUsed  int                    `json:"tokensUsed"`
	Model       string                 `json:"model,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	OccurredAt  time.Time              `json:"occurredAt"`
}
