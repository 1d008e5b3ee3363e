package models

import (
	"time"

	"gorm.io/gorm"
)

// Sequence statuses
const (
	SequenceStatusDraft    = "draft"
	SequenceStatusActive   = "active"
	SequenceStatusPaused   = "paused"
	SequenceStatusArchived = "archived"
)

// Step types
const (
	StepTypeEmail        = "email"
	StepTypeSMS          = "sms"
	StepTypeProfessional = "professional_message"
	StepTypeCallTask     = "call_task"
	StepTypeManualTask   = "manual_task"
)

// Condition kinds
const (
	ConditionOpenedPrevious    = "opened_previous"
	ConditionNotOpenedPrevious = "not_opened_previous"
	ConditionReplied           = "replied"
	ConditionNotReplied        = "not_replied"
)

// Sequence represents an ordered outreach template applied to many prospects
type Sequence struct {
	gorm.Model
	TenantID uint `gorm:"not null;index" json:"tenant_id"`

	Name        string `gorm:"not null" json:"name"`
	Description string `json:"description"`
	Status      string `gorm:"default:'draft'" json:"status"` // draft, active, paused, archived

	// Settings
	StopOnReply bool `gorm:"default:true" json:"stop_on_reply"`

	// Relations
	Steps []SequenceStep `gorm:"foreignKey:SequenceID" json:"steps,omitempty"`
}

// IsActive reports whether the sequence is executable
func (s *Sequence) IsActive() bool {
	return s.Status == SequenceStatusActive
}

// StepAt returns the step at the given 0-based cursor position, or nil when
// the cursor has run past the last step. Steps are kept ordered by StepOrder.
func (s *Sequence) StepAt(index int) *SequenceStep {
	if index < 0 || index >= len(s.Steps) {
		return nil
	}
	return &s.Steps[index]
}

// SequenceStep represents one action definition at a fixed position in a sequence
type SequenceStep struct {
	gorm.Model
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`

	StepOrder int    `gorm:"not null" json:"step_order"` // 1-based position
	Type      string `gorm:"not null" json:"type"`       // email, sms, professional_message, call_task, manual_task

	// Content
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`
	Content string `gorm:"type:text" json:"content"` // sms / professional message text

	// Timing
	DelayDays  int `gorm:"not null" json:"delay_days"`
	DelayHours int `gorm:"default:0" json:"delay_hours"`
	// Optional fixed send time-of-day, "15:04" format. When set, the hour and
	// minute of the computed send instant are overwritten; the date is not rolled.
	SendTime *string `json:"send_time"`

	// Task metadata (call_task / manual_task)
	TaskTitle    string `json:"task_title"`
	TaskPriority string `json:"task_priority"`
	TaskAssignee string `json:"task_assignee"`
	TaskDueDays  int    `gorm:"default:1" json:"task_due_days"`

	// Relations
	Conditions []StepCondition `gorm:"foreignKey:StepID" json:"conditions,omitempty"`
}

// IsTask reports whether the step creates a task record instead of sending
func (st *SequenceStep) IsTask() bool {
	return st.Type == StepTypeCallTask || st.Type == StepTypeManualTask
}

// Delay returns the step's configured delay as a duration
func (st *SequenceStep) Delay() time.Duration {
	return time.Duration(st.DelayDays)*24*time.Hour + time.Duration(st.DelayHours)*time.Hour
}

// StepCondition gates step execution on prior engagement
type StepCondition struct {
	gorm.Model
	StepID uint   `gorm:"not null;index" json:"step_id"`
	Kind   string `gorm:"not null" json:"kind"` // opened_previous, not_opened_previous, replied, not_replied
}
