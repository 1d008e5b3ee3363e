package models

import (
	"time"

	"gorm.io/gorm"
)

// Enrollment statuses
const (
	EnrollmentStatusActive       = "active"
	EnrollmentStatusPaused       = "paused"
	EnrollmentStatusCompleted    = "completed"
	EnrollmentStatusRemoved      = "removed"
	EnrollmentStatusUnsubscribed = "unsubscribed"
	EnrollmentStatusBounced      = "bounced"
)

// Unenroll reasons
const (
	UnenrollReasonManual       = "manual"
	UnenrollReasonReplied      = "replied"
	UnenrollReasonConverted    = "converted"
	UnenrollReasonUnsubscribed = "unsubscribed"
	UnenrollReasonBounced      = "bounced"
)

// Step action statuses
const (
	ActionStatusSent      = "sent"
	ActionStatusScheduled = "scheduled"
	ActionStatusFailed    = "failed"
	ActionStatusSkipped   = "skipped"
	ActionStatusOpened    = "opened"
	ActionStatusClicked   = "clicked"
	ActionStatusReplied   = "replied"
	ActionStatusBounced   = "bounced"
)

// Enrollment tracks one prospect's live progress through one sequence.
// At most one active enrollment may exist per (prospect, sequence) pair,
// and CurrentStepIndex only ever moves forward.
type Enrollment struct {
	gorm.Model
	TenantID   uint `gorm:"not null;index" json:"tenant_id"`
	SequenceID uint `gorm:"not null;index" json:"sequence_id"`
	ProspectID uint `gorm:"not null;index" json:"prospect_id"`

	Status           string     `gorm:"default:'active';index" json:"status"`
	CurrentStepIndex int        `gorm:"default:0" json:"current_step_index"` // 0-based cursor
	EnrolledAt       time.Time  `gorm:"not null" json:"enrolled_at"`
	NextStepAt       *time.Time `json:"next_step_at"` // nil once steps are exhausted or status is terminal

	Outcome     *string    `json:"outcome"`
	OutcomeDate *time.Time `json:"outcome_date"`

	// Optimistic concurrency: bumped on every save so a sweep tick and a
	// concurrent webhook write cannot race on the same row undetected.
	Version int `gorm:"default:0" json:"version"`

	// Relations
	Actions []StepAction `gorm:"foreignKey:EnrollmentID" json:"actions,omitempty"`
}

// IsTerminal reports whether the enrollment has reached a final status
func (e *Enrollment) IsTerminal() bool {
	switch e.Status {
	case EnrollmentStatusCompleted, EnrollmentStatusRemoved,
		EnrollmentStatusUnsubscribed, EnrollmentStatusBounced:
		return true
	}
	return false
}

// ActionForStep returns the most recent action recorded for the given step ID
func (e *Enrollment) ActionForStep(stepID uint) *StepAction {
	for i := len(e.Actions) - 1; i >= 0; i-- {
		if e.Actions[i].StepID == stepID {
			return &e.Actions[i]
		}
	}
	return nil
}

// FailedAttempts counts failed send attempts recorded for the given step
func (e *Enrollment) FailedAttempts(stepID uint) int {
	n := 0
	for i := range e.Actions {
		if e.Actions[i].StepID == stepID && e.Actions[i].Status == ActionStatusFailed {
			n++
		}
	}
	return n
}

// StepAction is the append-only audit record of one attempted step execution.
// Engagement timestamps are filled in later by event ingestion, exactly once.
type StepAction struct {
	gorm.Model
	EnrollmentID uint `gorm:"not null;index" json:"enrollment_id"`
	StepID       uint `gorm:"not null;index" json:"step_id"`
	StepOrder    int  `gorm:"not null" json:"step_order"`

	ScheduledFor time.Time `gorm:"not null" json:"scheduled_for"`
	Status       string    `gorm:"not null" json:"status"`

	// Content snapshot at send time
	Subject string `json:"subject"`
	Body    string `gorm:"type:text" json:"body"`

	// Outbound correlation / idempotency key
	MessageID string `gorm:"index" json:"message_id"`

	SentAt        *time.Time `json:"sent_at"`
	DeliveredAt   *time.Time `json:"delivered_at"`
	OpenedAt      *time.Time `json:"opened_at"`
	FirstOpenedAt *time.Time `json:"first_opened_at"`
	ClickedAt     *time.Time `json:"clicked_at"`
	RepliedAt     *time.Time `json:"replied_at"`
	BouncedAt     *time.Time `json:"bounced_at"`
	BounceReason  string     `json:"bounce_reason"`

	Error      *string `json:"error"`
	RetryCount int     `gorm:"default:0" json:"retry_count"`
}
