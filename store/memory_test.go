package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"reachflow/models"
)

func TestSaveEnrollmentVersionConflict(t *testing.T) {
	st := NewMemoryStore()

	tenant := &models.Tenant{Name: "acme"}
	require.NoError(t, st.SaveTenant(tenant))

	e := &models.Enrollment{TenantID: tenant.ID, SequenceID: 1, ProspectID: 1, Status: models.EnrollmentStatusActive}
	require.NoError(t, st.CreateEnrollment(e))

	// two readers load the same version
	first, err := st.GetEnrollment(tenant.ID, e.ID)
	require.NoError(t, err)
	second, err := st.GetEnrollment(tenant.ID, e.ID)
	require.NoError(t, err)

	first.CurrentStepIndex = 1
	require.NoError(t, st.SaveEnrollment(first))

	// the second writer lost the race
	second.CurrentStepIndex = 2
	err = st.SaveEnrollment(second)
	require.ErrorIs(t, err, ErrVersionConflict)

	// the first write stands
	final, err := st.GetEnrollment(tenant.ID, e.ID)
	require.NoError(t, err)
	require.Equal(t, 1, final.CurrentStepIndex)
}

func TestTenantScoping(t *testing.T) {
	st := NewMemoryStore()

	seq := &models.Sequence{TenantID: 1, Name: "a", Status: models.SequenceStatusActive}
	require.NoError(t, st.SaveSequence(seq))

	_, err := st.GetSequence(2, seq.ID)
	require.ErrorIs(t, err, ErrNotFound)

	e := &models.Enrollment{TenantID: 1, SequenceID: seq.ID, ProspectID: 1, Status: models.EnrollmentStatusActive}
	require.NoError(t, st.CreateEnrollment(e))

	_, err = st.GetEnrollment(2, e.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveSequenceReplacesStepList(t *testing.T) {
	st := NewMemoryStore()

	seq := &models.Sequence{TenantID: 1, Name: "a", Status: models.SequenceStatusDraft,
		Steps: []models.SequenceStep{
			{StepOrder: 1, Type: models.StepTypeEmail, Subject: "first"},
			{StepOrder: 2, Type: models.StepTypeEmail, Subject: "second"},
		}}
	require.NoError(t, st.SaveSequence(seq))

	// an edit submits a fresh step list without IDs; the stored list is
	// replaced, never merged with the previous generation
	edited := &models.Sequence{TenantID: 1, Name: "a", Status: models.SequenceStatusDraft,
		Steps: []models.SequenceStep{
			{StepOrder: 1, Type: models.StepTypeSMS, Content: "only step"},
		}}
	edited.ID = seq.ID
	require.NoError(t, st.SaveSequence(edited))

	loaded, err := st.GetSequence(1, seq.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 1)
	require.Equal(t, models.StepTypeSMS, loaded.Steps[0].Type)
	require.Equal(t, "only step", loaded.Steps[0].Content)
}

func TestFindActionReturnsLatestForStep(t *testing.T) {
	st := NewMemoryStore()

	e := &models.Enrollment{TenantID: 1, SequenceID: 1, ProspectID: 1, Status: models.EnrollmentStatusActive}
	require.NoError(t, st.CreateEnrollment(e))

	require.NoError(t, st.AppendAction(&models.StepAction{EnrollmentID: e.ID, StepID: 7, Status: models.ActionStatusFailed}))
	require.NoError(t, st.AppendAction(&models.StepAction{EnrollmentID: e.ID, StepID: 7, Status: models.ActionStatusSent}))

	a, err := st.FindAction(1, e.ID, 7)
	require.NoError(t, err)
	require.Equal(t, models.ActionStatusSent, a.Status)
}

func TestListActiveEnrollmentsLimit(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()

	for i := 0; i < 5; i++ {
		e := &models.Enrollment{TenantID: 1, SequenceID: 1, ProspectID: uint(i + 1),
			Status: models.EnrollmentStatusActive, NextStepAt: &now}
		require.NoError(t, st.CreateEnrollment(e))
	}
	e := &models.Enrollment{TenantID: 1, SequenceID: 1, ProspectID: 9, Status: models.EnrollmentStatusCompleted}
	require.NoError(t, st.CreateEnrollment(e))

	all, err := st.ListActiveEnrollments(1, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)

	capped, err := st.ListActiveEnrollments(1, 3)
	require.NoError(t, err)
	require.Len(t, capped, 3)
}
