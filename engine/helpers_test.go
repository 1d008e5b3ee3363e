package engine

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"reachflow/analytics"
	"reachflow/channel"
	"reachflow/models"
	"reachflow/store"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

type fakeEmailSender struct {
	sent []channel.EmailMessage
	err  error
}

func (f *fakeEmailSender) SendEmail(ctx context.Context, tenant *models.Tenant, msg channel.EmailMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

type fakeSMSSender struct {
	sent []string
	err  error
}

func (f *fakeSMSSender) SendSMS(ctx context.Context, tenant *models.Tenant, to, message string, metadata map[string]string) (channel.SMSResult, error) {
	if f.err != nil {
		return channel.SMSResult{Error: f.err.Error()}, f.err
	}
	f.sent = append(f.sent, to)
	return channel.SMSResult{Success: true, MessageID: "SM-test-1", Provider: "twilio"}, nil
}

type fakeProfessionalSender struct {
	sent []string
	err  error
}

func (f *fakeProfessionalSender) SendMessage(ctx context.Context, tenant *models.Tenant, recipient, content string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, recipient)
	return nil
}

type fakeSenders struct {
	email    *fakeEmailSender
	fallback *fakeEmailSender
	sms      *fakeSMSSender
	pro      *fakeProfessionalSender
}

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore, *testClock, *fakeSenders) {
	t.Helper()

	st := store.NewMemoryStore()
	clock := &testClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	f := &fakeSenders{
		email:    &fakeEmailSender{},
		fallback: &fakeEmailSender{},
		sms:      &fakeSMSSender{},
		pro:      &fakeProfessionalSender{},
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	senders := &channel.Registry{
		Email:         f.email,
		FallbackEmail: f.fallback,
		SMS:           f.sms,
		Professional:  f.pro,
		Tasks:         channel.NewStoreTaskCreator(st),
	}
	agg := analytics.NewAggregator(st, logger.WithField("component", "analytics"))
	eng := New(st, senders, agg, clock, logger.WithField("component", "engine"))
	return eng, st, clock, f
}

func seedTenant(t *testing.T, st *store.MemoryStore) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:      "acme",
		FromEmail: "sales@acme.test",
		FromName:  "Acme Sales",
		SMTPHost:  "smtp.acme.test",
	}
	require.NoError(t, st.SaveTenant(tenant))
	return tenant
}

func seedProspect(t *testing.T, st *store.MemoryStore, tenantID uint) *models.Prospect {
	t.Helper()
	p := &models.Prospect{
		TenantID:  tenantID,
		Email:     "jordan@example.test",
		Phone:     "+15550100",
		FirstName: "Jordan",
		LastName:  "Reyes",
	}
	require.NoError(t, st.SaveProspect(p))
	return p
}

func seedSequence(t *testing.T, st *store.MemoryStore, tenantID uint, steps ...models.SequenceStep) *models.Sequence {
	t.Helper()
	seq := &models.Sequence{
		TenantID:    tenantID,
		Name:        "onboarding",
		Status:      models.SequenceStatusActive,
		StopOnReply: true,
		Steps:       steps,
	}
	require.NoError(t, st.SaveSequence(seq))
	loaded, err := st.GetSequence(tenantID, seq.ID)
	require.NoError(t, err)
	return loaded
}

func emailStep(order, delayDays int) models.SequenceStep {
	return models.SequenceStep{
		StepOrder: order,
		Type:      models.StepTypeEmail,
		Subject:   "Hello",
		Body:      "<p>Hi there</p>",
		DelayDays: delayDays,
	}
}
