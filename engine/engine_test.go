package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reachflow/models"
	"reachflow/utils"
)

func TestEnrollSchedulesFirstStep(t *testing.T) {
	eng, st, clock, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 2))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Equal(t, 0, enrollment.CurrentStepIndex)
	require.NotNil(t, enrollment.NextStepAt)
	require.Equal(t, clock.Now().Add(48*time.Hour), *enrollment.NextStepAt)

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalEnrolled)
	require.Equal(t, 1, stats.ActiveProspects)
}

func TestEnrollRejectsDuplicateActiveEnrollment(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))

	_, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)

	_, err = eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestEnrollAgainAfterCompletionIsAllowed(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))

	first, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	require.NoError(t, eng.ProcessNextStep(context.Background(), tenant.ID, first.ID))

	done, err := st.GetEnrollment(tenant.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCompleted, done.Status)

	second, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestEnrollRejectsInactiveSequence(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))
	seq.Status = models.SequenceStatusPaused
	require.NoError(t, st.SaveSequence(seq))

	_, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestEnrollRejectsDoNotContactProspect(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))

	prospect.IsDoNotContact = true
	prospect.IsUnsubscribed = true
	require.NoError(t, st.SaveProspect(prospect))

	_, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestEnrollRejectsProspectAfterBounce(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 5))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)
	require.NoError(t, eng.ProcessNextStep(context.Background(), tenant.ID, enrollment.ID))
	e, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.NoError(t, eng.HandleBounce(context.Background(), tenant.ID, enrollment.ID, e.Actions[0].StepID, "mailbox unavailable"))

	// the bounce flagged the prospect; no sequence may pick them up again
	other := seedSequence(t, st, tenant.ID, emailStep(1, 0))
	_, err = eng.Enroll(context.Background(), tenant.ID, prospect.ID, other.ID)
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestEnrollUnknownRecords(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))

	_, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, 999)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = eng.Enroll(context.Background(), tenant.ID, 999, seq.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestUnenrollSetsTerminalState(t *testing.T) {
	eng, st, _, _ := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 1))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)

	require.NoError(t, eng.Unenroll(context.Background(), tenant.ID, prospect.ID, seq.ID, models.UnenrollReasonUnsubscribed))

	final, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusUnsubscribed, final.Status)
	require.Nil(t, final.NextStepAt)
	require.NotNil(t, final.Outcome)
	require.Equal(t, models.UnenrollReasonUnsubscribed, *final.Outcome)
	require.NotNil(t, final.OutcomeDate)

	// no active enrollment remains to unenroll
	err = eng.Unenroll(context.Background(), tenant.ID, prospect.ID, seq.ID, models.UnenrollReasonManual)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestProcessNextStepNotDueIsNoOp(t *testing.T) {
	eng, st, _, f := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 3))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)

	require.NoError(t, eng.ProcessNextStep(context.Background(), tenant.ID, enrollment.ID))
	require.Empty(t, f.email.sent)

	unchanged, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, 0, unchanged.CurrentStepIndex)
}

func TestProcessNextStepPausedSequenceIsNoOp(t *testing.T) {
	eng, st, clock, f := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)

	seq.Status = models.SequenceStatusPaused
	require.NoError(t, st.SaveSequence(seq))

	clock.advance(time.Hour)
	require.NoError(t, eng.ProcessNextStep(context.Background(), tenant.ID, enrollment.ID))
	require.Empty(t, f.email.sent)
}

// Full run of a three-step sequence: the cursor only ever moves forward, each
// step produces exactly one action, and exhaustion completes the enrollment
// with no next run time.
func TestSequenceRunsToCompletion(t *testing.T) {
	eng, st, clock, f := newTestEngine(t)
	tenant := seedTenant(t, st)
	prospect := seedProspect(t, st, tenant.ID)
	seq := seedSequence(t, st, tenant.ID, emailStep(1, 0), emailStep(2, 2), emailStep(3, 1))

	enrollment, err := eng.Enroll(context.Background(), tenant.ID, prospect.ID, seq.ID)
	require.NoError(t, err)

	lastCursor := -1
	for i := 0; i < 10; i++ {
		require.NoError(t, eng.ProcessNextStep(context.Background(), tenant.ID, enrollment.ID))
		current, err := st.GetEnrollment(tenant.ID, enrollment.ID)
		require.NoError(t, err)
		require.GreaterOrEqual(t, current.CurrentStepIndex, lastCursor)
		lastCursor = current.CurrentStepIndex
		if current.IsTerminal() {
			break
		}
		clock.advance(49 * time.Hour)
	}

	final, err := st.GetEnrollment(tenant.ID, enrollment.ID)
	require.NoError(t, err)
	require.Equal(t, models.EnrollmentStatusCompleted, final.Status)
	require.Equal(t, 3, final.CurrentStepIndex)
	require.Nil(t, final.NextStepAt)
	require.Len(t, f.email.sent, 3)
	require.Len(t, final.Actions, 3)

	stats, err := st.GetOrCreateAnalytics(tenant.ID, seq.ID)
	require.NoError(t, err)
	require.Equal(t, 3, stats.TotalSent)
	require.Equal(t, 0, stats.ActiveProspects)
	require.Equal(t, 1, stats.CompletedProspects)
}

func TestScheduleForPinsSendTimeSameDay(t *testing.T) {
	eng, _, clock, _ := newTestEngine(t)

	s := emailStep(1, 1)
	s.SendTime = utils.Pointer("09:30")

	// delay lands at 2026-03-03 09:00; pinning overwrites to 09:30 that day
	at := eng.scheduleFor(&s, clock.Now())
	require.Equal(t, time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), at)

	// even when the pinned time is earlier in the day than the delay target
	clock.advance(8 * time.Hour) // now 17:00
	at = eng.scheduleFor(&s, clock.Now())
	require.Equal(t, time.Date(2026, 3, 3, 9, 30, 0, 0, time.UTC), at)
}

func TestScheduleForBadSendTimeFallsBackToDelay(t *testing.T) {
	eng, _, clock, _ := newTestEngine(t)

	s := emailStep(1, 0)
	s.DelayHours = 4
	s.SendTime = utils.Pointer("25:99")

	at := eng.scheduleFor(&s, clock.Now())
	require.Equal(t, clock.Now().Add(4*time.Hour), at)
}
