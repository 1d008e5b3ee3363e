// Package analytics maintains the denormalized sequence and step counters.
// All writes here are best-effort: a failed analytics update is logged and
// swallowed so it can never break the enrollment flow that triggered it.
package analytics

import (
	"time"

	"reachflow/store"

	"github.com/sirupsen/logrus"
)

// Deltas is a partial set of counter increments. Zero fields are no-ops.
type Deltas struct {
	TotalEnrolled      int
	ActiveProspects    int
	CompletedProspects int
	TotalSent          int
	TotalDelivered     int
	TotalOpened        int
	TotalClicked       int
	TotalReplied       int
	MeetingsBooked     int
}

// Step execution results fed into StepStats
const (
	StepResultSuccess = "success"
	StepResultFailed  = "failed"
	StepResultSkipped = "skipped"
)

type Aggregator struct {
	store  store.Store
	logger *logrus.Entry
}

func NewAggregator(s store.Store, logger *logrus.Entry) *Aggregator {
	return &Aggregator{store: s, logger: logger}
}

// Apply adds each delta to the sequence's counters, then unconditionally
// recomputes the derived rates from the updated raw counters.
func (a *Aggregator) Apply(tenantID, sequenceID uint, d Deltas) {
	analytics, err := a.store.GetOrCreateAnalytics(tenantID, sequenceID)
	if err != nil {
		a.logger.WithError(err).WithField("sequence_id", sequenceID).Warn("analytics load failed")
		return
	}

	analytics.TotalEnrolled += d.TotalEnrolled
	analytics.ActiveProspects += d.ActiveProspects
	analytics.CompletedProspects += d.CompletedProspects
	analytics.TotalSent += d.TotalSent
	analytics.TotalDelivered += d.TotalDelivered
	analytics.TotalOpened += d.TotalOpened
	analytics.TotalClicked += d.TotalClicked
	analytics.TotalReplied += d.TotalReplied
	analytics.MeetingsBooked += d.MeetingsBooked

	analytics.Recompute()
	now := time.Now()
	analytics.LastRunAt = &now

	if err := a.store.SaveAnalytics(analytics); err != nil {
		a.logger.WithError(err).WithField("sequence_id", sequenceID).Warn("analytics save failed")
	}
}

// RecordStepExecution increments one of success/failed/skipped for the step
// and recomputes its success rate.
func (a *Aggregator) RecordStepExecution(tenantID, sequenceID, stepID uint, result string) {
	stat, err := a.store.GetOrCreateStepStat(tenantID, sequenceID, stepID)
	if err != nil {
		a.logger.WithError(err).WithField("step_id", stepID).Warn("step stat load failed")
		return
	}

	stat.TotalExecutions++
	switch result {
	case StepResultSuccess:
		stat.SuccessCount++
	case StepResultFailed:
		stat.FailedCount++
	case StepResultSkipped:
		stat.SkippedCount++
	}
	stat.Recompute()

	if err := a.store.SaveStepStat(stat); err != nil {
		a.logger.WithError(err).WithField("step_id", stepID).Warn("step stat save failed")
	}
}
