package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reachflow/analytics"
	"reachflow/channel"
	"reachflow/models"
	"reachflow/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// executeStep dispatches one due step through its channel sender, records the
// resulting StepAction, and advances the enrollment. Dispatch failures of any
// kind — missing contact info, missing configuration, provider rejection — are
// caught here, recorded as a failed action, and never propagate to the sweep.
func (en *Engine) executeStep(ctx context.Context, tenant *models.Tenant, seq *models.Sequence, enrollment *models.Enrollment, step *models.SequenceStep) error {
	prospect, err := en.store.GetProspect(tenant.ID, enrollment.ProspectID)
	if err != nil {
		return fmt.Errorf("prospect %d: %w", enrollment.ProspectID, ErrNotFound)
	}

	now := en.clock.Now()
	action := &models.StepAction{
		EnrollmentID: enrollment.ID,
		StepID:       step.ID,
		StepOrder:    step.StepOrder,
		ScheduledFor: *enrollment.NextStepAt,
		Status:       models.ActionStatusSent,
		Subject:      step.Subject,
		Body:         step.Body,
		MessageID:    uuid.New().String(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, en.senders.Timeout())
	defer cancel()

	scheduled, dispatchErr := en.dispatch(sendCtx, tenant, prospect, enrollment, step, action)
	if dispatchErr != nil {
		return en.recordSendFailure(tenant.ID, seq, enrollment, step, action, dispatchErr)
	}

	if scheduled {
		action.Status = models.ActionStatusScheduled
	} else {
		action.SentAt = &now
	}
	if err := en.store.AppendAction(action); err != nil {
		return err
	}

	if err := en.advanceCursor(tenant.ID, seq, enrollment); err != nil {
		return err
	}

	en.analytics.RecordStepExecution(tenant.ID, seq.ID, step.ID, analytics.StepResultSuccess)
	if action.SentAt != nil {
		en.analytics.Apply(tenant.ID, seq.ID, analytics.Deltas{TotalSent: 1})
	}

	en.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"step_order":    step.StepOrder,
		"type":          step.Type,
		"message_id":    action.MessageID,
	}).Info("step executed")
	return nil
}

// recordSendFailure appends a failed action and decides between rescheduling
// the same step with backoff and, after the final attempt, moving on.
func (en *Engine) recordSendFailure(tenantID uint, seq *models.Sequence, enrollment *models.Enrollment, step *models.SequenceStep, action *models.StepAction, dispatchErr error) error {
	msg := dispatchErr.Error()
	action.Status = models.ActionStatusFailed
	action.Error = &msg
	action.RetryCount = enrollment.FailedAttempts(step.ID)

	if err := en.store.AppendAction(action); err != nil {
		return err
	}
	en.analytics.RecordStepExecution(tenantID, seq.ID, step.ID, analytics.StepResultFailed)

	attempts := action.RetryCount + 1
	if attempts < maxSendAttempts {
		next := en.clock.Now().Add(retryBackoff << (attempts - 1))
		enrollment.NextStepAt = &next
		if err := en.store.SaveEnrollment(enrollment); err != nil {
			return err
		}
	} else {
		if err := en.advanceCursor(tenantID, seq, enrollment); err != nil {
			return err
		}
	}

	en.logger.WithFields(logrus.Fields{
		"enrollment_id": enrollment.ID,
		"step_order":    step.StepOrder,
		"attempt":       attempts,
	}).WithError(dispatchErr).Warn("step dispatch failed")
	return nil
}

// dispatch routes the step to its channel sender. The returned bool is true
// for task steps, whose actions are marked scheduled instead of sent.
func (en *Engine) dispatch(ctx context.Context, tenant *models.Tenant, prospect *models.Prospect, enrollment *models.Enrollment, step *models.SequenceStep, action *models.StepAction) (bool, error) {
	if step.IsTask() {
		return true, en.dispatchTask(ctx, tenant, prospect, enrollment, step)
	}
	switch step.Type {
	case models.StepTypeEmail:
		return false, en.dispatchEmail(ctx, tenant, prospect, enrollment, step, action)
	case models.StepTypeSMS:
		return false, en.dispatchSMS(ctx, tenant, prospect, enrollment, step, action)
	case models.StepTypeProfessional:
		return false, en.dispatchProfessional(ctx, tenant, prospect, step)
	}
	return false, fmt.Errorf("unknown step type %q: %w", step.Type, ErrConfiguration)
}

func (en *Engine) dispatchEmail(ctx context.Context, tenant *models.Tenant, prospect *models.Prospect, enrollment *models.Enrollment, step *models.SequenceStep, action *models.StepAction) error {
	if prospect.Email == "" {
		return fmt.Errorf("prospect %d has no email address: %w", prospect.ID, ErrNotFound)
	}
	if tenant.FromEmail == "" {
		return fmt.Errorf("tenant %d has no from address: %w", tenant.ID, ErrConfiguration)
	}
	if en.senders.Email == nil {
		return fmt.Errorf("no email sender configured: %w", ErrConfiguration)
	}

	body := step.Body
	if en.TrackingSecret != "" && tenant.TrackingBaseURL != "" && tenant.TrackOpens {
		claims := utils.TrackingClaims{
			TenantID:     tenant.ID,
			EnrollmentID: enrollment.ID,
			StepID:       step.ID,
			MessageID:    action.MessageID,
		}
		tracked, err := utils.InjectTracking(body, tenant.TrackingBaseURL, en.TrackingSecret, claims, tenant.TrackClicks)
		if err != nil {
			en.logger.WithError(err).Warn("tracking token signing failed, sending untracked")
		} else {
			body = tracked
		}
	}
	action.Body = body

	msg := channel.EmailMessage{
		From:      tenant.FromEmail,
		FromName:  tenant.FromName,
		To:        prospect.Email,
		Subject:   step.Subject,
		Body:      body,
		MessageID: action.MessageID,
	}

	primaryErr := en.senders.Email.SendEmail(ctx, tenant, msg)
	if primaryErr == nil {
		return nil
	}

	// Single-level fallback, only when the tenant's preference names one and
	// its credentials exist; otherwise the primary error stands.
	if tenant.HasFallbackEmail() && en.senders.FallbackEmail != nil {
		if fallbackErr := en.senders.FallbackEmail.SendEmail(ctx, tenant, msg); fallbackErr != nil {
			return fmt.Errorf("fallback after %v: %v: %w", primaryErr, fallbackErr, ErrChannelSend)
		}
		en.logger.WithField("message_id", action.MessageID).Info("email delivered via fallback provider")
		return nil
	}
	return fmt.Errorf("%v: %w", primaryErr, ErrChannelSend)
}

func (en *Engine) dispatchSMS(ctx context.Context, tenant *models.Tenant, prospect *models.Prospect, enrollment *models.Enrollment, step *models.SequenceStep, action *models.StepAction) error {
	if prospect.Phone == "" {
		return fmt.Errorf("prospect %d has no phone number: %w", prospect.ID, ErrNotFound)
	}
	if en.senders.SMS == nil || !tenant.HasSMS() {
		return fmt.Errorf("no SMS provider configured for tenant %d: %w", tenant.ID, ErrConfiguration)
	}

	content := step.Content
	if content == "" {
		content = step.Body
	}
	action.Body = content

	result, err := en.senders.SMS.SendSMS(ctx, tenant, prospect.Phone, content, map[string]string{
		"reference": action.MessageID,
	})
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrChannelSend)
	}

	// Correlation record keyed by the provider's message ID so inbound
	// delivery/bounce webhooks can find their way back to this send.
	record := &models.SMSMessage{
		TenantID:          tenant.ID,
		EnrollmentID:      enrollment.ID,
		StepID:            step.ID,
		To:                prospect.Phone,
		Provider:          result.Provider,
		ProviderMessageID: result.MessageID,
	}
	if err := en.store.CreateSMSMessage(record); err != nil {
		en.logger.WithError(err).Warn("sms correlation record write failed")
	}
	return nil
}

func (en *Engine) dispatchProfessional(ctx context.Context, tenant *models.Tenant, prospect *models.Prospect, step *models.SequenceStep) error {
	if en.senders.Professional == nil || !tenant.HasProfessional() {
		return fmt.Errorf("no professional-network integration for tenant %d: %w", tenant.ID, ErrConfiguration)
	}

	recipient := prospect.ProfileURL
	if recipient == "" {
		recipient = prospect.Email
	}
	if recipient == "" {
		return fmt.Errorf("prospect %d has no profile URL or email: %w", prospect.ID, ErrNotFound)
	}

	content := step.Content
	if content == "" {
		content = step.Body
	}
	if err := en.senders.Professional.SendMessage(ctx, tenant, recipient, content); err != nil {
		return fmt.Errorf("%v: %w", err, ErrChannelSend)
	}
	return nil
}

func (en *Engine) dispatchTask(ctx context.Context, tenant *models.Tenant, prospect *models.Prospect, enrollment *models.Enrollment, step *models.SequenceStep) error {
	if en.senders.Tasks == nil {
		return fmt.Errorf("no task creator configured: %w", ErrConfiguration)
	}

	dueDays := step.TaskDueDays
	if dueDays <= 0 {
		dueDays = 1
	}
	title := step.TaskTitle
	if title == "" {
		title = "Follow up with " + strings.TrimSpace(prospect.FirstName+" "+prospect.LastName)
	}
	priority := step.TaskPriority
	if priority == "" {
		priority = models.TaskPriorityMedium
	}

	task := &models.Task{
		TenantID:     tenant.ID,
		ProspectID:   prospect.ID,
		EnrollmentID: enrollment.ID,
		StepID:       step.ID,
		Title:        title,
		Kind:         step.Type,
		Priority:     priority,
		Assignee:     step.TaskAssignee,
		DueAt:        en.clock.Now().Add(time.Duration(dueDays) * 24 * time.Hour),
	}
	if err := en.senders.Tasks.CreateTask(ctx, task); err != nil {
		return fmt.Errorf("%v: %w", err, ErrChannelSend)
	}
	return nil
}
