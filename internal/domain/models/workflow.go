package models

import "time"

// N8NConnection is a user's linked n8n instance. Read-only here.
type N8NConnection struct {
	ID              string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string    `gorm:"type:varchar(64);not null;index" json:"userId"`
	InstanceURL     string    `gorm:"type:varchar(512);not null" json:"instanceUrl"`
	APIKeyEncrypted string    `gorm:"type:text;not null" json:"-"`
	IsActive        bool      `gorm:"not null;default:true" json:"isActive"`
	CreatedAt       time.Time `json:"createdAt"`
}

// TableName overrides the gorm table name.
func (N8NConnection) TableName() string { return "n8n_connections" }

// Workflow maps an internal workflow id to its n8n id. Read-only here.
type Workflow struct {
	ID            string    `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID        string    `gorm:"type:varchar(64);not null;index" json:"userId"`
	ConnectionID  string    `gorm:"type:varchar(36)" json:"connectionId"`
	N8NWorkflowID string    `gorm:"column:n8n_workflow_id;type:varchar(64);not null" json:"n8nWorkflowId"`
	Name          string    `gorm:"type:varchar(255)" json:"name"`
	CreatedAt     time.Time `json:"createdAt"`
}

// TableName overrides the gorm table name.
func (Workflow) TableName() string { return "workflows" }
