package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"reachflow/engine"
	"reachflow/store"
)

// SweepReport summarizes a single sweep run
type SweepReport struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

// Sweeper periodically finds enrollments whose next step has come due and
// ticks each one through the engine. A failure on one enrollment never stops
// the sweep from processing the rest.
type Sweeper struct {
	store    store.Store
	engine   *engine.Engine
	locker   Locker
	logger   *logrus.Entry
	clock    engine.Clock
	Interval time.Duration
	LeaseTTL time.Duration
	// BatchSize caps how many due enrollments a single run picks up per
	// tenant; 0 means no cap.
	BatchSize int
}

func NewSweeper(st store.Store, eng *engine.Engine, locker Locker, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:    st,
		engine:   eng,
		locker:   locker,
		logger:   logger.WithField("worker", "sweep"),
		clock:    engine.RealClock(),
		Interval: time.Hour,
		LeaseTTL: 5 * time.Minute,
	}
}

// WithClock overrides the sweep clock, used in tests
func (s *Sweeper) WithClock(c engine.Clock) *Sweeper {
	s.clock = c
	return s
}

// Start runs the sweep loop until the context is cancelled
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.WithField("interval", s.Interval.String()).Info("Starting sequence sweep worker")

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stopping sequence sweep worker")
			return
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.WithError(err).Error("Sweep run failed")
				continue
			}
			s.logger.WithFields(logrus.Fields{
				"processed": report.Processed,
				"errors":    report.Errors,
			}).Info("Sweep run complete")
		}
	}
}

// RunOnce performs a single sweep over all tenants. It returns an error only
// when the tenant list itself cannot be loaded; everything past that point is
// isolated per enrollment and reflected in the report instead.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport

	tenants, err := s.store.ListTenants()
	if err != nil {
		return report, fmt.Errorf("failed to list tenants: %w", err)
	}

	now := s.clock.Now()
	for i := range tenants {
		tenant := &tenants[i]
		enrollments, err := s.store.ListActiveEnrollments(tenant.ID, s.BatchSize)
		if err != nil {
			s.logger.WithError(err).WithField("tenant_id", tenant.ID).Error("Failed to list active enrollments")
			report.Errors++
			continue
		}

		for j := range enrollments {
			enrollment := &enrollments[j]
			if enrollment.NextStepAt == nil || now.Before(*enrollment.NextStepAt) {
				continue
			}
			report.Processed++
			if err := s.processOne(ctx, enrollment.TenantID, enrollment.ID); err != nil {
				s.logger.WithError(err).WithFields(logrus.Fields{
					"tenant_id":     enrollment.TenantID,
					"enrollment_id": enrollment.ID,
				}).Error("Failed to process due enrollment")
				report.Errors++
			}
		}
	}

	return report, nil
}

// processOne ticks a single enrollment under a lease, converting panics into
// errors so a bad record cannot take down the whole run
func (s *Sweeper) processOne(ctx context.Context, tenantID, enrollmentID uint) (err error) {
	key := fmt.Sprintf("sweep:enrollment:%d", enrollmentID)
	acquired, lockErr := s.locker.Acquire(ctx, key, s.LeaseTTL)
	if lockErr != nil {
		return fmt.Errorf("failed to acquire lease: %w", lockErr)
	}
	if !acquired {
		// Another worker holds it; it will be picked up again next run
		// if it is still due.
		return nil
	}
	defer s.locker.Release(ctx, key)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing enrollment %d: %v", enrollmentID, r)
			sentry.CurrentHub().Recover(r)
		}
	}()

	if err := s.engine.ProcessNextStep(ctx, tenantID, enrollmentID); err != nil {
		sentry.CaptureException(err)
		return err
	}
	return nil
}
