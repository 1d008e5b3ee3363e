package models

import (
	"time"

	"gorm.io/gorm"
)

// SMSMessage correlates an outbound SMS with the provider's message identifier
// so inbound delivery/bounce webhooks can be matched back to the send.
type SMSMessage struct {
	gorm.Model
	TenantID     uint `gorm:"not null;index" json:"tenant_id"`
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`
	StepID       uint `gorm:"not null;index" json:"step_id"`

	To                string `gorm:"not null" json:"to"`
	Provider          string `json:"provider"`
	ProviderMessageID string `gorm:"index" json:"provider_message_id"`
	Status            string `gorm:"default:'sent'" json:"status"` // sent, delivered, failed
}

// Task priorities
const (
	TaskPriorityLow    = "low"
	TaskPriorityMedium = "medium"
	TaskPriorityHigh   = "high"
)

// Task is a call/manual follow-up record created by task-type steps
type Task struct {
	gorm.Model
	TenantID     uint `gorm:"not null;index" json:"tenant_id"`
	ProspectID   uint `gorm:"not null;index" json:"prospect_id"`
	EnrollmentID uint `gorm:"index" json:"enrollment_id"`
	StepID       uint `gorm:"index" json:"step_id"`

	Title    string    `gorm:"not null" json:"title"`
	Kind     string    `json:"kind"` // call_task, manual_task
	Priority string    `gorm:"default:'medium'" json:"priority"`
	Assignee string    `json:"assignee"`
	DueAt    time.Time `gorm:"not null" json:"due_at"`

	Completed   bool       `gorm:"default:false" json:"completed"`
	CompletedAt *time.Time `json:"completed_at"`
}
