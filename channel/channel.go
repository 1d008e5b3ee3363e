// Package channel holds the compile-time sender contracts the engine
// dispatches through, plus the production provider implementations.
// Unknown or unconfigured channels fail fast with a typed error from the
// engine instead of being resolved at runtime by name.
package channel

import (
	"context"
	"time"

	"reachflow/models"
)

// EmailMessage is one outbound email
type EmailMessage struct {
	From      string
	FromName  string
	To        string
	Subject   string
	Body      string
	MessageID string
}

// EmailSender delivers email through one configured provider
type EmailSender interface {
	SendEmail(ctx context.Context, tenant *models.Tenant, msg EmailMessage) error
}

// SMSResult carries the provider's response for an SMS send
type SMSResult struct {
	Success   bool
	MessageID string
	Provider  string
	Error     string
}

// SMSSender delivers a text message
type SMSSender interface {
	SendSMS(ctx context.Context, tenant *models.Tenant, to, message string, metadata map[string]string) (SMSResult, error)
}

// ProfessionalSender delivers a professional-network message
type ProfessionalSender interface {
	SendMessage(ctx context.Context, tenant *models.Tenant, recipient, content string) error
}

// TaskCreator records a call/manual follow-up task
type TaskCreator interface {
	CreateTask(ctx context.Context, task *models.Task) error
}

const defaultSendTimeout = 30 * time.Second

// Registry maps each step type onto one sender. It is assembled once at
// startup and injected into the engine, so tests can swap in fakes.
type Registry struct {
	Email         EmailSender
	FallbackEmail EmailSender
	SMS           SMSSender
	Professional  ProfessionalSender
	Tasks         TaskCreator

	// SendTimeout bounds every provider call
	SendTimeout time.Duration
}

// Timeout returns the configured per-send timeout
func (r *Registry) Timeout() time.Duration {
	if r.SendTimeout <= 0 {
		return defaultSendTimeout
	}
	return r.SendTimeout
}
