// Package engine owns every enrollment state transition: enroll/unenroll,
// the per-enrollment processing tick, step dispatch, and event ingestion.
package engine

import (
	"context"
	"fmt"
	"time"

	"reachflow/analytics"
	"reachflow/channel"
	"reachflow/models"
	"reachflow/store"
	"reachflow/utils"

	"github.com/sirupsen/logrus"
)

const (
	// maxSendAttempts bounds retries of a failed channel send for one step.
	// After the final failure the cursor advances so the enrollment cannot wedge.
	maxSendAttempts = 3
	// retryBackoff is the base delay before re-attempting a failed send;
	// doubled per prior failure (1h, 2h, 4h).
	retryBackoff = time.Hour
)

// Engine orchestrates sequences. All dependencies are injected so tests can
// substitute a fake clock, fake senders, and an in-memory store.
type Engine struct {
	store     store.Store
	senders   *channel.Registry
	analytics *analytics.Aggregator
	clock     Clock
	logger    *logrus.Entry

	// TrackingSecret signs open/click tracking tokens embedded into outgoing
	// email. Tracking injection is skipped when empty or when the tenant has
	// no tracking base URL.
	TrackingSecret string

	// CredentialKey opens tenant channel secrets loaded from the store.
	// When empty the stored values are used as-is.
	CredentialKey string
}

func New(s store.Store, senders *channel.Registry, agg *analytics.Aggregator, clock Clock, logger *logrus.Entry) *Engine {
	if clock == nil {
		clock = RealClock()
	}
	return &Engine{
		store:     s,
		senders:   senders,
		analytics: agg,
		clock:     clock,
		logger:    logger,
	}
}

// Enroll adds a prospect to an active sequence. At most one active enrollment
// may exist per (prospect, sequence) pair.
func (en *Engine) Enroll(ctx context.Context, tenantID, prospectID, sequenceID uint) (*models.Enrollment, error) {
	seq, err := en.store.GetSequence(tenantID, sequenceID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("sequence %d: %w", sequenceID, ErrNotFound)
		}
		return nil, err
	}
	if !seq.IsActive() {
		return nil, fmt.Errorf("sequence %d is %s: %w", sequenceID, seq.Status, ErrInvalidState)
	}

	prospect, err := en.store.GetProspect(tenantID, prospectID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, fmt.Errorf("prospect %d: %w", prospectID, ErrNotFound)
		}
		return nil, err
	}
	if !prospect.Contactable() {
		return nil, fmt.Errorf("prospect %d may not be contacted: %w", prospectID, ErrInvalidState)
	}

	if existing, err := en.store.FindActiveEnrollment(tenantID, prospectID, sequenceID); err == nil && existing != nil {
		return nil, fmt.Errorf("prospect %d already enrolled in sequence %d: %w", prospectID, sequenceID, ErrInvalidState)
	} else if err != nil && err != store.ErrNotFound {
		return nil, err
	}

	now := en.clock.Now()
	enrollment := &models.Enrollment{
		TenantID:         tenantID,
		SequenceID:       sequenceID,
		ProspectID:       prospectID,
		Status:           models.EnrollmentStatusActive,
		CurrentStepIndex: 0,
		EnrolledAt:       now,
	}
	if first := seq.StepAt(0); first != nil {
		at := en.scheduleFor(first, now)
		enrollment.NextStepAt = &at
	}

	if err := en.store.CreateEnrollment(enrollment); err != nil {
		return nil, err
	}

	en.analytics.Apply(tenantID, sequenceID, analytics.Deltas{TotalEnrolled: 1, ActiveProspects: 1})

	en.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"sequence_id":   sequenceID,
		"prospect_id":   prospectID,
		"enrollment_id": enrollment.ID,
	}).Info("prospect enrolled")
	return enrollment, nil
}

// Unenroll removes the prospect's active enrollment with the given reason
func (en *Engine) Unenroll(ctx context.Context, tenantID, prospectID, sequenceID uint, reason string) error {
	enrollment, err := en.store.FindActiveEnrollment(tenantID, prospectID, sequenceID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("no active enrollment for prospect %d in sequence %d: %w", prospectID, sequenceID, ErrNotFound)
		}
		return err
	}
	return en.finishEnrollment(tenantID, enrollment, reason)
}

// finishEnrollment moves an enrollment into its terminal status for the reason
// and updates the sequence counters. Records are retained for audit.
func (en *Engine) finishEnrollment(tenantID uint, enrollment *models.Enrollment, reason string) error {
	switch reason {
	case models.UnenrollReasonUnsubscribed:
		enrollment.Status = models.EnrollmentStatusUnsubscribed
	case models.UnenrollReasonBounced:
		enrollment.Status = models.EnrollmentStatusBounced
	default:
		enrollment.Status = models.EnrollmentStatusRemoved
	}

	now := en.clock.Now()
	enrollment.Outcome = &reason
	enrollment.OutcomeDate = &now
	enrollment.NextStepAt = nil

	if err := en.store.SaveEnrollment(enrollment); err != nil {
		return err
	}

	en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{ActiveProspects: -1, CompletedProspects: 1})

	en.logger.WithFields(logrus.Fields{
		"tenant_id":     tenantID,
		"enrollment_id": enrollment.ID,
		"reason":        reason,
		"status":        enrollment.Status,
	}).Info("prospect unenrolled")
	return nil
}

// ProcessNextStep is the per-enrollment tick. It is a silent no-op unless the
// enrollment and its sequence are both active and the next step is due.
func (en *Engine) ProcessNextStep(ctx context.Context, tenantID, enrollmentID uint) error {
	enrollment, err := en.store.GetEnrollment(tenantID, enrollmentID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("enrollment %d: %w", enrollmentID, ErrNotFound)
		}
		return err
	}
	if enrollment.Status != models.EnrollmentStatusActive {
		return nil
	}

	seq, err := en.store.GetSequence(tenantID, enrollment.SequenceID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("sequence %d: %w", enrollment.SequenceID, ErrNotFound)
		}
		return err
	}
	if !seq.IsActive() {
		return nil
	}

	step := seq.StepAt(enrollment.CurrentStepIndex)
	if step == nil {
		return en.completeEnrollment(tenantID, enrollment)
	}

	now := en.clock.Now()
	if enrollment.NextStepAt == nil || now.Before(*enrollment.NextStepAt) {
		return nil
	}

	if !EvaluateConditions(enrollment.Actions, step) {
		return en.skipStep(tenantID, seq, enrollment, step)
	}

	tenant, err := en.store.GetTenant(tenantID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("tenant %d: %w", tenantID, ErrNotFound)
		}
		return err
	}
	utils.DecryptTenantSecrets(en.CredentialKey, tenant)

	return en.executeStep(ctx, tenant, seq, enrollment, step)
}

// skipStep records a skipped action and advances the cursor without dispatching
func (en *Engine) skipStep(tenantID uint, seq *models.Sequence, enrollment *models.Enrollment, step *models.SequenceStep) error {
	action := &models.StepAction{
		EnrollmentID: enrollment.ID,
		StepID:       step.ID,
		StepOrder:    step.StepOrder,
		ScheduledFor: *enrollment.NextStepAt,
		Status:       models.ActionStatusSkipped,
	}
	if err := en.store.AppendAction(action); err != nil {
		return err
	}

	if err := en.advanceCursor(tenantID, seq, enrollment); err != nil {
		return err
	}

	en.analytics.RecordStepExecution(tenantID, seq.ID, step.ID, analytics.StepResultSkipped)
	en.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"step_order":    step.StepOrder,
	}).Info("step skipped by condition")
	return nil
}

// completeEnrollment marks the enrollment finished and updates the counters
func (en *Engine) completeEnrollment(tenantID uint, enrollment *models.Enrollment) error {
	now := en.clock.Now()
	outcome := "completed"
	enrollment.Status = models.EnrollmentStatusCompleted
	enrollment.Outcome = &outcome
	enrollment.OutcomeDate = &now
	enrollment.NextStepAt = nil

	if err := en.store.SaveEnrollment(enrollment); err != nil {
		return err
	}

	en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{ActiveProspects: -1, CompletedProspects: 1})
	en.logger.WithField("enrollment_id", enrollment.ID).Info("enrollment completed")
	return nil
}

// advanceCursor moves the enrollment past the current step, schedules the
// following step, or completes the enrollment when none remains.
func (en *Engine) advanceCursor(tenantID uint, seq *models.Sequence, enrollment *models.Enrollment) error {
	enrollment.CurrentStepIndex++
	next := seq.StepAt(enrollment.CurrentStepIndex)
	if next == nil {
		return en.completeEnrollment(tenantID, enrollment)
	}
	at := en.scheduleFor(next, en.clock.Now())
	enrollment.NextStepAt = &at
	return en.store.SaveEnrollment(enrollment)
}

// scheduleFor computes when a step becomes due: now plus the configured delay,
// then, when the step pins a send time-of-day, the hour and minute are
// overwritten on the delay-target day. The date is deliberately not rolled to
// the next occurrence, so the instant can land earlier than the delay alone.
func (en *Engine) scheduleFor(step *models.SequenceStep, now time.Time) time.Time {
	at := now.Add(step.Delay())
	if step.SendTime == nil {
		return at
	}
	t, err := time.Parse("15:04", *step.SendTime)
	if err != nil {
		en.logger.WithField("send_time", *step.SendTime).Warn("unparseable step send time, using delay only")
		return at
	}
	return time.Date(at.Year(), at.Month(), at.Day(), t.Hour(), t.Minute(), 0, 0, at.Location())
}
