package analytics

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"reachflow/models"
	"reachflow/store"
)

func newTestAggregator() (*Aggregator, *store.MemoryStore) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := store.NewMemoryStore()
	return NewAggregator(st, logger.WithField("component", "analytics")), st
}

func TestApplyAccumulatesAndRecomputesRates(t *testing.T) {
	agg, st := newTestAggregator()

	agg.Apply(1, 10, Deltas{TotalEnrolled: 5, ActiveProspects: 5})
	for i := 0; i < 5; i++ {
		agg.Apply(1, 10, Deltas{TotalSent: 1})
	}
	agg.Apply(1, 10, Deltas{TotalDelivered: 2})
	agg.Apply(1, 10, Deltas{TotalOpened: 1})

	stats, err := st.GetOrCreateAnalytics(1, 10)
	require.NoError(t, err)
	require.Equal(t, 5, stats.TotalSent)
	require.Equal(t, 2, stats.TotalDelivered)
	require.InDelta(t, 40.0, stats.DeliveryRate, 0.001)
	require.InDelta(t, 20.0, stats.OpenRate, 0.001)
	require.NotNil(t, stats.LastRunAt)
}

func TestApplyRatesFollowCountersNotHistory(t *testing.T) {
	agg, st := newTestAggregator()

	agg.Apply(1, 10, Deltas{TotalSent: 4, TotalOpened: 4})
	stats, _ := st.GetOrCreateAnalytics(1, 10)
	require.InDelta(t, 100.0, stats.OpenRate, 0.001)

	// more sends pull the rate back down; it is never averaged
	agg.Apply(1, 10, Deltas{TotalSent: 4})
	stats, _ = st.GetOrCreateAnalytics(1, 10)
	require.InDelta(t, 50.0, stats.OpenRate, 0.001)
}

func TestRatesWithZeroSendsAreZero(t *testing.T) {
	a := models.SequenceAnalytics{TotalOpened: 3}
	a.Recompute()
	require.Zero(t, a.OpenRate)
	require.Zero(t, a.DeliveryRate)
}

func TestRecordStepExecution(t *testing.T) {
	agg, st := newTestAggregator()

	agg.RecordStepExecution(1, 10, 100, StepResultSuccess)
	agg.RecordStepExecution(1, 10, 100, StepResultSuccess)
	agg.RecordStepExecution(1, 10, 100, StepResultFailed)
	agg.RecordStepExecution(1, 10, 100, StepResultSkipped)

	stat, err := st.GetOrCreateStepStat(1, 10, 100)
	require.NoError(t, err)
	require.Equal(t, 4, stat.TotalExecutions)
	require.Equal(t, 2, stat.SuccessCount)
	require.Equal(t, 1, stat.FailedCount)
	require.Equal(t, 1, stat.SkippedCount)
	require.InDelta(t, 50.0, stat.SuccessRate, 0.001)
}

func TestReconcileRebuildsFromActionLog(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	st := store.NewMemoryStore()
	rec := NewReconciler(st, logger.WithField("component", "reconciler"))

	tenant := &models.Tenant{Name: "acme"}
	require.NoError(t, st.SaveTenant(tenant))

	seq := &models.Sequence{
		TenantID: tenant.ID,
		Name:     "outreach",
		Status:   models.SequenceStatusActive,
		Steps:    []models.SequenceStep{{StepOrder: 1, Type: models.StepTypeEmail}},
	}
	require.NoError(t, st.SaveSequence(seq))
	stepID := seq.Steps[0].ID

	now := time.Now()
	enrollments := []string{
		models.EnrollmentStatusActive,
		models.EnrollmentStatusCompleted,
		models.EnrollmentStatusBounced,
	}
	for _, status := range enrollments {
		e := &models.Enrollment{TenantID: tenant.ID, SequenceID: seq.ID, Status: status}
		require.NoError(t, st.CreateEnrollment(e))
		require.NoError(t, st.AppendAction(&models.StepAction{
			EnrollmentID:  e.ID,
			StepID:        stepID,
			StepOrder:     1,
			Status:        models.ActionStatusSent,
			SentAt:        &now,
			DeliveredAt:   &now,
			FirstOpenedAt: &now,
		}))
	}

	// drifted counters to be corrected
	drifted, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	drifted.TotalSent = 99
	drifted.TotalDelivered = 99
	drifted.TotalEnrolled = 1
	require.NoError(t, st.SaveAnalytics(drifted))

	rec.RunOnce()

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalEnrolled)
	require.Equal(t, 1, stats.ActiveProspects)
	require.Equal(t, 2, stats.CompletedProspects)
	require.Equal(t, 3, stats.TotalSent)
	require.Equal(t, 3, stats.TotalDelivered)
	require.Equal(t, 3, stats.TotalOpened)
	require.InDelta(t, 100.0, stats.OpenRate, 0.001)

	stat, err := st.GetOrCreateStepStat(tenant.ID, seq.ID, stepID)
	require.NoError(t, err)
	require.Equal(t, 3, stat.TotalExecutions)
	require.Equal(t, 3, stat.SuccessCount)
}
