package analytics

import (
	"context"
	"time"

	"reachflow/models"
	"reachflow/store"

	"github.com/sirupsen/logrus"
)

// Reconciler rebuilds the denormalized counters from the StepAction log, the
// source of truth. Incremental updates can drift when a crash lands between an
// enrollment write and its analytics update; a periodic rebuild bounds the drift.
type Reconciler struct {
	store    store.Store
	logger   *logrus.Entry
	Interval time.Duration
}

func NewReconciler(s store.Store, logger *logrus.Entry) *Reconciler {
	return &Reconciler{store: s, logger: logger, Interval: 6 * time.Hour}
}

// Start runs the reconciliation loop until the context is cancelled
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	r.logger.Info("analytics reconciler started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("analytics reconciler shutting down")
			return
		case <-ticker.C:
			r.RunOnce()
		}
	}
}

// RunOnce recomputes analytics for every sequence of every tenant. Failures
// are logged per sequence and never abort the pass.
func (r *Reconciler) RunOnce() {
	tenants, err := r.store.ListTenants()
	if err != nil {
		r.logger.WithError(err).Error("reconcile: tenant listing failed")
		return
	}

	for _, tenant := range tenants {
		sequences, err := r.store.ListSequences(tenant.ID)
		if err != nil {
			r.logger.WithError(err).WithField("tenant_id", tenant.ID).Warn("reconcile: sequence listing failed")
			continue
		}
		for i := range sequences {
			if err := r.ReconcileSequence(tenant.ID, &sequences[i]); err != nil {
				r.logger.WithError(err).WithField("sequence_id", sequences[i].ID).Warn("reconcile failed")
			}
		}
	}
}

// ReconcileSequence recomputes one sequence's analytics and step stats from
// its enrollments and action log.
func (r *Reconciler) ReconcileSequence(tenantID uint, seq *models.Sequence) error {
	counts, err := r.store.CountEnrollmentsByStatus(tenantID, seq.ID)
	if err != nil {
		return err
	}
	actions, err := r.store.ListActionsForSequence(tenantID, seq.ID)
	if err != nil {
		return err
	}

	analytics, err := r.store.GetOrCreateAnalytics(tenantID, seq.ID)
	if err != nil {
		return err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	analytics.TotalEnrolled = total
	analytics.ActiveProspects = counts[models.EnrollmentStatusActive]
	analytics.CompletedProspects = total - counts[models.EnrollmentStatusActive] - counts[models.EnrollmentStatusPaused]

	analytics.TotalSent = 0
	analytics.TotalDelivered = 0
	analytics.TotalOpened = 0
	analytics.TotalClicked = 0
	analytics.TotalReplied = 0
	for i := range actions {
		a := &actions[i]
		if a.SentAt != nil {
			analytics.TotalSent++
		}
		if a.DeliveredAt != nil {
			analytics.TotalDelivered++
		}
		if a.FirstOpenedAt != nil {
			analytics.TotalOpened++
		}
		if a.ClickedAt != nil {
			analytics.TotalClicked++
		}
		if a.RepliedAt != nil {
			analytics.TotalReplied++
		}
	}
	analytics.Recompute()
	now := time.Now()
	analytics.LastRunAt = &now

	if err := r.store.SaveAnalytics(analytics); err != nil {
		return err
	}

	for si := range seq.Steps {
		step := &seq.Steps[si]
		stat, err := r.store.GetOrCreateStepStat(tenantID, seq.ID, step.ID)
		if err != nil {
			return err
		}
		stat.TotalExecutions = 0
		stat.SuccessCount = 0
		stat.FailedCount = 0
		stat.SkippedCount = 0
		for i := range actions {
			if actions[i].StepID != step.ID {
				continue
			}
			stat.TotalExecutions++
			switch actions[i].Status {
			case models.ActionStatusFailed:
				stat.FailedCount++
			case models.ActionStatusSkipped:
				stat.SkippedCount++
			default:
				stat.SuccessCount++
			}
		}
		stat.Recompute()
		if err := r.store.SaveStepStat(stat); err != nil {
			return err
		}
	}
	return nil
}
