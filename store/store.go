package store

import (
	"errors"

	"reachflow/models"
)

var (
	// ErrNotFound is returned when a record does not exist in the store
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when an enrollment save loses an
	// optimistic-concurrency race with another writer
	ErrVersionConflict = errors.New("enrollment version conflict")
)

// Store is the tenant-scoped persistence contract the engine depends on.
// The production implementation is backed by Postgres through gorm; the
// in-memory implementation backs tests and embedded runs.
type Store interface {
	// Tenants
	ListTenants() ([]models.Tenant, error)
	GetTenant(id uint) (*models.Tenant, error)
	SaveTenant(t *models.Tenant) error

	// Sequences (steps and conditions are loaded in step order)
	GetSequence(tenantID, id uint) (*models.Sequence, error)
	ListSequences(tenantID uint) ([]models.Sequence, error)
	SaveSequence(seq *models.Sequence) error

	// Prospects
	GetProspect(tenantID, id uint) (*models.Prospect, error)
	SaveProspect(p *models.Prospect) error

	// Enrollments (actions are loaded in insertion order)
	GetEnrollment(tenantID, id uint) (*models.Enrollment, error)
	FindActiveEnrollment(tenantID, prospectID, sequenceID uint) (*models.Enrollment, error)
	ListActiveEnrollments(tenantID uint, limit int) ([]models.Enrollment, error)
	CreateEnrollment(e *models.Enrollment) error
	// SaveEnrollment persists the enrollment only when its version column is
	// unchanged since the read, then bumps the version. Returns
	// ErrVersionConflict when another writer got there first.
	SaveEnrollment(e *models.Enrollment) error

	// Step actions
	AppendAction(a *models.StepAction) error
	SaveAction(a *models.StepAction) error
	FindAction(tenantID, enrollmentID, stepID uint) (*models.StepAction, error)
	FindActionByMessageID(messageID string) (*models.StepAction, error)
	ListActionsForSequence(tenantID, sequenceID uint) ([]models.StepAction, error)

	// Analytics
	GetOrCreateAnalytics(tenantID, sequenceID uint) (*models.SequenceAnalytics, error)
	SaveAnalytics(a *models.SequenceAnalytics) error
	GetOrCreateStepStat(tenantID, sequenceID, stepID uint) (*models.StepStat, error)
	SaveStepStat(s *models.StepStat) error
	CountEnrollmentsByStatus(tenantID, sequenceID uint) (map[string]int, error)

	// Channel correlation records
	CreateSMSMessage(m *models.SMSMessage) error
	CreateTask(t *models.Task) error
}
