package store

import (
	"errors"
	"fmt"

	"reachflow/models"

	"gorm.io/gorm"
)

// GormStore implements Store on top of a gorm-managed Postgres database
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *GormStore) ListTenants() ([]models.Tenant, error) {
	var tenants []models.Tenant
	if err := s.db.Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

func (s *GormStore) GetTenant(id uint) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := s.db.First(&tenant, id).Error; err != nil {
		return nil, translate(err)
	}
	return &tenant, nil
}

func (s *GormStore) SaveTenant(t *models.Tenant) error {
	return s.db.Save(t).Error
}

func (s *GormStore) GetSequence(tenantID, id uint) (*models.Sequence, error) {
	var seq models.Sequence
	err := s.db.Where("id = ? AND tenant_id = ?", id, tenantID).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Preload("Steps.Conditions").
		First(&seq).Error
	if err != nil {
		return nil, translate(err)
	}
	return &seq, nil
}

func (s *GormStore) ListSequences(tenantID uint) ([]models.Sequence, error) {
	var seqs []models.Sequence
	err := s.db.Where("tenant_id = ?", tenantID).
		Preload("Steps", func(db *gorm.DB) *gorm.DB {
			return db.Order("step_order ASC")
		}).
		Preload("Steps.Conditions").
		Find(&seqs).Error
	if err != nil {
		return nil, err
	}
	return seqs, nil
}

// SaveSequence persists the sequence with its step list as given. Edited step
// lists arrive without IDs, so stored steps missing from the incoming list are
// deleted first or an edit would leave both generations interleaved by
// step_order. Steps loaded from the store keep their IDs and survive.
func (s *GormStore) SaveSequence(seq *models.Sequence) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if seq.ID != 0 {
			var kept []uint
			for i := range seq.Steps {
				if id := seq.Steps[i].ID; id != 0 {
					kept = append(kept, id)
				}
			}
			q := tx.Model(&models.SequenceStep{}).Where("sequence_id = ?", seq.ID)
			if len(kept) > 0 {
				q = q.Where("id NOT IN ?", kept)
			}
			var doomed []uint
			if err := q.Pluck("id", &doomed).Error; err != nil {
				return err
			}
			if len(doomed) > 0 {
				if err := tx.Where("step_id IN ?", doomed).Delete(&models.StepCondition{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", doomed).Delete(&models.SequenceStep{}).Error; err != nil {
					return err
				}
			}
		}
		return tx.Save(seq).Error
	})
}

func (s *GormStore) GetProspect(tenantID, id uint) (*models.Prospect, error) {
	var prospect models.Prospect
	err := s.db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&prospect).Error
	if err != nil {
		return nil, translate(err)
	}
	return &prospect, nil
}

func (s *GormStore) SaveProspect(p *models.Prospect) error {
	return s.db.Save(p).Error
}

func (s *GormStore) GetEnrollment(tenantID, id uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.Where("id = ? AND tenant_id = ?", id, tenantID).
		Preload("Actions", func(db *gorm.DB) *gorm.DB {
			return db.Order("id ASC")
		}).
		First(&enrollment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &enrollment, nil
}

func (s *GormStore) FindActiveEnrollment(tenantID, prospectID, sequenceID uint) (*models.Enrollment, error) {
	var enrollment models.Enrollment
	err := s.db.Where(
		"tenant_id = ? AND prospect_id = ? AND sequence_id = ? AND status = ?",
		tenantID, prospectID, sequenceID, models.EnrollmentStatusActive,
	).First(&enrollment).Error
	if err != nil {
		return nil, translate(err)
	}
	return &enrollment, nil
}

func (s *GormStore) ListActiveEnrollments(tenantID uint, limit int) ([]models.Enrollment, error) {
	var enrollments []models.Enrollment
	q := s.db.Where("tenant_id = ? AND status = ?", tenantID, models.EnrollmentStatusActive)
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&enrollments).Error; err != nil {
		return nil, err
	}
	return enrollments, nil
}

func (s *GormStore) CreateEnrollment(e *models.Enrollment) error {
	return s.db.Create(e).Error
}

func (s *GormStore) SaveEnrollment(e *models.Enrollment) error {
	current := e.Version
	res := s.db.Model(&models.Enrollment{}).
		Where("id = ? AND version = ?", e.ID, current).
		Updates(map[string]interface{}{
			"status":             e.Status,
			"current_step_index": e.CurrentStepIndex,
			"next_step_at":       e.NextStepAt,
			"outcome":            e.Outcome,
			"outcome_date":       e.OutcomeDate,
			"version":            current + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("enrollment %d: %w", e.ID, ErrVersionConflict)
	}
	e.Version = current + 1
	return nil
}

func (s *GormStore) AppendAction(a *models.StepAction) error {
	return s.db.Create(a).Error
}

func (s *GormStore) SaveAction(a *models.StepAction) error {
	return s.db.Save(a).Error
}

func (s *GormStore) FindAction(tenantID, enrollmentID, stepID uint) (*models.StepAction, error) {
	var action models.StepAction
	err := s.db.
		Joins("JOIN enrollments ON enrollments.id = step_actions.enrollment_id").
		Where("enrollments.tenant_id = ? AND step_actions.enrollment_id = ? AND step_actions.step_id = ?",
			tenantID, enrollmentID, stepID).
		Order("step_actions.id DESC").
		First(&action).Error
	if err != nil {
		return nil, translate(err)
	}
	return &action, nil
}

func (s *GormStore) FindActionByMessageID(messageID string) (*models.StepAction, error) {
	var action models.StepAction
	err := s.db.Where("message_id = ?", messageID).First(&action).Error
	if err != nil {
		return nil, translate(err)
	}
	return &action, nil
}

func (s *GormStore) ListActionsForSequence(tenantID, sequenceID uint) ([]models.StepAction, error) {
	var actions []models.StepAction
	err := s.db.
		Joins("JOIN enrollments ON enrollments.id = step_actions.enrollment_id").
		Where("enrollments.tenant_id = ? AND enrollments.sequence_id = ?", tenantID, sequenceID).
		Order("step_actions.id ASC").
		Find(&actions).Error
	if err != nil {
		return nil, err
	}
	return actions, nil
}

func (s *GormStore) GetOrCreateAnalytics(tenantID, sequenceID uint) (*models.SequenceAnalytics, error) {
	analytics := models.SequenceAnalytics{TenantID: tenantID, SequenceID: sequenceID}
	err := s.db.Where("tenant_id = ? AND sequence_id = ?", tenantID, sequenceID).
		FirstOrCreate(&analytics).Error
	if err != nil {
		return nil, err
	}
	return &analytics, nil
}

func (s *GormStore) SaveAnalytics(a *models.SequenceAnalytics) error {
	return s.db.Save(a).Error
}

func (s *GormStore) GetOrCreateStepStat(tenantID, sequenceID, stepID uint) (*models.StepStat, error) {
	stat := models.StepStat{TenantID: tenantID, SequenceID: sequenceID, StepID: stepID}
	err := s.db.Where("tenant_id = ? AND step_id = ?", tenantID, stepID).
		FirstOrCreate(&stat).Error
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

func (s *GormStore) SaveStepStat(stat *models.StepStat) error {
	return s.db.Save(stat).Error
}

func (s *GormStore) CountEnrollmentsByStatus(tenantID, sequenceID uint) (map[string]int, error) {
	var rows []struct {
		Status string
		N      int
	}
	err := s.db.Model(&models.Enrollment{}).
		Select("status, COUNT(*) AS n").
		Where("tenant_id = ? AND sequence_id = ?", tenantID, sequenceID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.N
	}
	return counts, nil
}

func (s *GormStore) CreateSMSMessage(m *models.SMSMessage) error {
	return s.db.Create(m).Error
}

func (s *GormStore) CreateTask(t *models.Task) error {
	return s.db.Create(t).Error
}
