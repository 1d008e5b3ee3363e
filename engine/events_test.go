package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reachflow/models"
	"reachflow/store"
)

// runs the first step so the enrollment has one sent action to hang events on
func sendFirstStep(t *testing.T, eng *Engine, st *store.MemoryStore, tenantID, enrollmentID uint) models.StepAction {
	t.Helper()
	require.NoError(t, eng.ProcessNextStep(context.Background(), tenantID, enrollmentID))
	e, err := st.GetEnrollment(tenantID, enrollmentID)
	require.NoError(t, err)
	require.NotEmpty(t, e.Actions)
	return e.Actions[0]
}

func TestHandleOpenIsIdempotent(t *testing.T) {
	eng, st, clock, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleOpen(context.Background(), tenant.ID, enrollment.ID, action.StepID))
	firstSeen := clock.Now()

	// the provider redelivers the same event later
	clock.advance(3 * time.Hour)
	require.NoError(t, eng.HandleOpen(context.Background(), tenant.ID, enrollment.ID, action.StepID))

	after, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Actions[0].FirstOpenedAt)
	require.Equal(t, firstSeen, *after.Actions[0].FirstOpenedAt)
	require.Equal(t, firstSeen, *after.Actions[0].OpenedAt)

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalOpened)
}

func TestHandleClickIsIdempotent(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleClick(context.Background(), tenant.ID, enrollment.ID, action.StepID))
	require.NoError(t, eng.HandleClick(context.Background(), tenant.ID, enrollment.ID, action.StepID))

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalClicked)
}

func TestHandleDeliveredIsIdempotent(t *testing.T) {
	eng, st, clock, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleDelivered(context.Background(), tenant.ID, enrollment.ID, action.StepID))
	firstSeen := clock.Now()

	clock.advance(time.Hour)
	require.NoError(t, eng.HandleDelivered(context.Background(), tenant.ID, enrollment.ID, action.StepID))

	after, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Actions[0].DeliveredAt)
	require.Equal(t, firstSeen, *after.Actions[0].DeliveredAt)

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalSent)
	require.Equal(t, 1, stats.TotalDelivered)
	require.InDelta(t, 100.0, stats.DeliveryRate, 0.01)
}

func TestHandleReplyPausesStopOnReplySequence(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleReply(context.Background(), tenant.ID, enrollment.ID, action.StepID, "sounds good"))

	after, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusPaused, after.Status)
	require.NotNil(t, after.Outcome)
	require.Equal(t, models.UnenrollReasonReplied, *after.Outcome)
	require.NotNil(t, after.Actions[0].RepliedAt)

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalReplied)
	require.Equal(t, 0, stats.ActiveProspects)

	// a duplicate reply event neither double-counts nor re-pauses
	require.NoError(t, eng.HandleReply(context.Background(), tenant.ID, enrollment.ID, action.StepID, "sounds good"))
	stats, err = st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalReplied)
}

func TestHandleReplyContinuesWhenStopOnReplyDisabled(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)

	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))
	seq.StopOnReply = false
	require.NoError(t, st.SaveSequence(seq))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleReply(context.Background(), tenant.ID, enrollment.ID, action.StepID, "thanks"))

	after, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, after.Status)
}

func TestHandleBounceEndsEnrollmentAndFlagsProspect(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleBounce(context.Background(), tenant.ID, enrollment.ID, action.StepID, "mailbox unavailable"))

	after, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusBounced, after.Status)
	require.Nil(t, after.NextStepAt)
	require.Equal(t, models.ActionStatusBounced, after.Actions[0].Status)
	require.Equal(t, "mailbox unavailable", after.Actions[0].BounceReason)

	flagged, err := st.GetProspect(tenant.ID, prospect.ID)
	require.NoError(t, err)
	require.True(t, flagged.IsBounced)
	require.False(t, flagged.IsUnsubscribed)
}

func TestHandleBounceSpamComplaintUnsubscribes(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)

	require.NoError(t, eng.HandleBounce(context.Background(), tenant.ID, enrollment.ID, action.StepID, "Spam complaint received"))

	flagged, err := st.GetProspect(tenant.ID, prospect.ID)
	require.NoError(t, err)
	require.True(t, flagged.IsUnsubscribed)
}

func TestHandleReplyByMessageID(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	action := sendFirstStep(t, eng, st, tenant.ID, enrollment.ID)
	require.NotEmpty(t, action.MessageID)

	require.NoError(t, eng.HandleReplyByMessageID(context.Background(), tenant.ID, action.MessageID, "re: hello"))

	after, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.NotNil(t, after.Actions[0].RepliedAt)

	err = eng.HandleReplyByMessageID(context.Background(), tenant.ID, "no-such-message", "")
	require.ErrorIs(t, err, ErrNotFound)
}
