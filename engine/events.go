package engine

import (
	"context"
	"fmt"
	"strings"

	"reachflow/analytics"
	"reachflow/models"
	"reachflow/store"

	"github.com/sirupsen/logrus"
)

// Event ingestion. Provider callbacks land here and mutate the same
// enrollment records the sweep reads. Every handler is idempotent by field:
// engagement timestamps are set exactly once, so re-delivered events are no-ops.

// bounce reasons treated as an unsubscribe signal rather than a delivery failure
var unsubscribeSignals = []string{"unsubscribe", "spam", "complaint", "list-unsubscribe"}

func classifyBounceReason(reason string) string {
	lower := strings.ToLower(reason)
	for _, signal := range unsubscribeSignals {
		if strings.Contains(lower, signal) {
			return models.UnenrollReasonUnsubscribed
		}
	}
	return models.UnenrollReasonBounced
}

func (en *Engine) loadActionContext(tenantID, enrollmentID, stepID uint) (*models.Enrollment, *models.StepAction, error) {
	enrollment, err := en.store.GetEnrollment(tenantID, enrollmentID)
	if err != nil {
		if err == store.ErrNotFound {
			return nil, nil, fmt.Errorf("enrollment %d: %w", enrollmentID, ErrNotFound)
		}
		return nil, nil, err
	}
	action := enrollment.ActionForStep(stepID)
	if action == nil {
		return nil, nil, fmt.Errorf("no action for step %d on enrollment %d: %w", stepID, enrollmentID, ErrNotFound)
	}
	return enrollment, action, nil
}

// HandleBounce records a bounce on the step's action and unenrolls the
// prospect, as unsubscribed when the reason is a spam/unsubscribe signal.
func (en *Engine) HandleBounce(ctx context.Context, tenantID, enrollmentID, stepID uint, reason string) error {
	enrollment, action, err := en.loadActionContext(tenantID, enrollmentID, stepID)
	if err != nil {
		return err
	}

	now := en.clock.Now()
	if action.BouncedAt == nil {
		action.Status = models.ActionStatusBounced
		action.BouncedAt = &now
		action.BounceReason = reason
		if err := en.store.SaveAction(action); err != nil {
			return err
		}
	}

	unenrollReason := classifyBounceReason(reason)
	if enrollment.Status == models.EnrollmentStatusActive {
		if err := en.finishEnrollment(tenantID, enrollment, unenrollReason); err != nil {
			return err
		}
	}

	if prospect, err := en.store.GetProspect(tenantID, enrollment.ProspectID); err == nil {
		if unenrollReason == models.UnenrollReasonUnsubscribed {
			prospect.IsUnsubscribed = true
		} else {
			prospect.IsBounced = true
		}
		if err := en.store.SaveProspect(prospect); err != nil {
			en.logger.WithError(err).Warn("prospect bounce flag update failed")
		}
	}

	en.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollmentID,
		"step_id":       stepID,
		"reason":        unenrollReason,
	}).Info("bounce processed")
	return nil
}

// HandleReply stamps the reply on the step's action and, when the sequence
// stops on response, pauses the enrollment with outcome replied.
func (en *Engine) HandleReply(ctx context.Context, tenantID, enrollmentID, stepID uint, content string) error {
	enrollment, action, err := en.loadActionContext(tenantID, enrollmentID, stepID)
	if err != nil {
		return err
	}

	now := en.clock.Now()
	if action.RepliedAt == nil {
		action.Status = models.ActionStatusReplied
		action.RepliedAt = &now
		if err := en.store.SaveAction(action); err != nil {
			return err
		}
		en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{TotalReplied: 1})
	}

	seq, err := en.store.GetSequence(tenantID, enrollment.SequenceID)
	if err != nil {
		return err
	}
	if seq.StopOnReply && enrollment.Status == models.EnrollmentStatusActive {
		outcome := models.UnenrollReasonReplied
		enrollment.Status = models.EnrollmentStatusPaused
		enrollment.Outcome = &outcome
		enrollment.OutcomeDate = &now
		if err := en.store.SaveEnrollment(enrollment); err != nil {
			return err
		}
		en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{ActiveProspects: -1})
		en.logger.WithField("enrollment_id", enrollmentID).Info("enrollment paused on reply")
	}
	return nil
}

// HandleOpen stamps the first open on the step's action. Re-delivery of the
// same event never overwrites firstOpenedAt.
func (en *Engine) HandleOpen(ctx context.Context, tenantID, enrollmentID, stepID uint) error {
	enrollment, action, err := en.loadActionContext(tenantID, enrollmentID, stepID)
	if err != nil {
		return err
	}

	if action.OpenedAt != nil {
		return nil
	}
	now := en.clock.Now()
	action.Status = models.ActionStatusOpened
	action.OpenedAt = &now
	if action.FirstOpenedAt == nil {
		action.FirstOpenedAt = &now
	}
	if err := en.store.SaveAction(action); err != nil {
		return err
	}
	en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{TotalOpened: 1})
	return nil
}

// HandleClick stamps the first click on the step's action
func (en *Engine) HandleClick(ctx context.Context, tenantID, enrollmentID, stepID uint) error {
	enrollment, action, err := en.loadActionContext(tenantID, enrollmentID, stepID)
	if err != nil {
		return err
	}

	if action.ClickedAt != nil {
		return nil
	}
	now := en.clock.Now()
	action.Status = models.ActionStatusClicked
	action.ClickedAt = &now
	if err := en.store.SaveAction(action); err != nil {
		return err
	}
	en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{TotalClicked: 1})
	return nil
}

// HandleDelivered stamps the provider's delivery confirmation on the step's
// action. Re-delivered confirmations never double-count.
func (en *Engine) HandleDelivered(ctx context.Context, tenantID, enrollmentID, stepID uint) error {
	enrollment, action, err := en.loadActionContext(tenantID, enrollmentID, stepID)
	if err != nil {
		return err
	}

	if action.DeliveredAt != nil {
		return nil
	}
	now := en.clock.Now()
	action.DeliveredAt = &now
	if err := en.store.SaveAction(action); err != nil {
		return err
	}
	en.analytics.Apply(tenantID, enrollment.SequenceID, analytics.Deltas{TotalDelivered: 1})
	return nil
}

// HandleReplyByMessageID resolves a reply detected by the inbox watcher to
// its enrollment and step via the outbound message ID.
func (en *Engine) HandleReplyByMessageID(ctx context.Context, tenantID uint, messageID, content string) error {
	action, err := en.store.FindActionByMessageID(messageID)
	if err != nil {
		if err == store.ErrNotFound {
			return fmt.Errorf("message %s: %w", messageID, ErrNotFound)
		}
		return err
	}
	return en.HandleReply(ctx, tenantID, action.EnrollmentID, action.StepID, content)
}
