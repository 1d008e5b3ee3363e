package store

import (
	"fmt"
	"sort"
	"sync"

	"reachflow/models"
)

// MemoryStore is an in-process Store used by tests and embedded runs.
// Records are copied on the way in and out so callers observe the same
// isolation the database-backed store provides.
type MemoryStore struct {
	mu sync.Mutex

	nextID      uint
	tenants     map[uint]models.Tenant
	sequences   map[uint]models.Sequence
	prospects   map[uint]models.Prospect
	enrollments map[uint]models.Enrollment
	actions     map[uint]models.StepAction
	analytics   map[uint]models.SequenceAnalytics // keyed by sequence ID
	stepStats   map[uint]models.StepStat          // keyed by step ID
	smsMessages map[uint]models.SMSMessage
	tasks       map[uint]models.Task
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:      1,
		tenants:     make(map[uint]models.Tenant),
		sequences:   make(map[uint]models.Sequence),
		prospects:   make(map[uint]models.Prospect),
		enrollments: make(map[uint]models.Enrollment),
		actions:     make(map[uint]models.StepAction),
		analytics:   make(map[uint]models.SequenceAnalytics),
		stepStats:   make(map[uint]models.StepStat),
		smsMessages: make(map[uint]models.SMSMessage),
		tasks:       make(map[uint]models.Task),
	}
}

func (s *MemoryStore) id() uint {
	id := s.nextID
	s.nextID++
	return id
}

func copySequence(seq models.Sequence) models.Sequence {
	out := seq
	out.Steps = make([]models.SequenceStep, len(seq.Steps))
	copy(out.Steps, seq.Steps)
	for i := range out.Steps {
		conds := make([]models.StepCondition, len(out.Steps[i].Conditions))
		copy(conds, out.Steps[i].Conditions)
		out.Steps[i].Conditions = conds
	}
	return out
}

func copyEnrollment(e models.Enrollment) models.Enrollment {
	out := e
	out.Actions = make([]models.StepAction, len(e.Actions))
	copy(out.Actions, e.Actions)
	return out
}

func (s *MemoryStore) ListTenants() ([]models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetTenant(id uint) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (s *MemoryStore) SaveTenant(t *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.tenants[t.ID] = *t
	return nil
}

func (s *MemoryStore) GetSequence(tenantID, id uint) (*models.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.sequences[id]
	if !ok || seq.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := copySequence(seq)
	return &out, nil
}

func (s *MemoryStore) ListSequences(tenantID uint) ([]models.Sequence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Sequence
	for _, seq := range s.sequences {
		if seq.TenantID == tenantID {
			out = append(out, copySequence(seq))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SaveSequence(seq *models.Sequence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq.ID == 0 {
		seq.ID = s.id()
	}
	for i := range seq.Steps {
		if seq.Steps[i].ID == 0 {
			seq.Steps[i].ID = s.id()
		}
		seq.Steps[i].SequenceID = seq.ID
		for j := range seq.Steps[i].Conditions {
			if seq.Steps[i].Conditions[j].ID == 0 {
				seq.Steps[i].Conditions[j].ID = s.id()
			}
			seq.Steps[i].Conditions[j].StepID = seq.Steps[i].ID
		}
	}
	s.sequences[seq.ID] = copySequence(*seq)
	return nil
}

func (s *MemoryStore) GetProspect(tenantID, id uint) (*models.Prospect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prospects[id]
	if !ok || p.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (s *MemoryStore) SaveProspect(p *models.Prospect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.id()
	}
	s.prospects[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetEnrollment(tenantID, id uint) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[id]
	if !ok || e.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := copyEnrollment(e)
	out.Actions = s.actionsFor(id)
	return &out, nil
}

func (s *MemoryStore) actionsFor(enrollmentID uint) []models.StepAction {
	var out []models.StepAction
	for _, a := range s.actions {
		if a.EnrollmentID == enrollmentID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *MemoryStore) FindActiveEnrollment(tenantID, prospectID, sequenceID uint) (*models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.enrollments {
		if e.TenantID == tenantID && e.ProspectID == prospectID &&
			e.SequenceID == sequenceID && e.Status == models.EnrollmentStatusActive {
			out := copyEnrollment(e)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActiveEnrollments(tenantID uint, limit int) ([]models.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Enrollment
	for _, e := range s.enrollments {
		if e.TenantID == tenantID && e.Status == models.EnrollmentStatusActive {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CreateEnrollment(e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == 0 {
		e.ID = s.id()
	}
	s.enrollments[e.ID] = copyEnrollment(*e)
	return nil
}

func (s *MemoryStore) SaveEnrollment(e *models.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.enrollments[e.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != e.Version {
		return fmt.Errorf("enrollment %d: %w", e.ID, ErrVersionConflict)
	}
	e.Version++
	s.enrollments[e.ID] = copyEnrollment(*e)
	return nil
}

func (s *MemoryStore) AppendAction(a *models.StepAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == 0 {
		a.ID = s.id()
	}
	s.actions[a.ID] = *a
	return nil
}

func (s *MemoryStore) SaveAction(a *models.StepAction) error {
	return s.AppendAction(a)
}

func (s *MemoryStore) FindAction(tenantID, enrollmentID, stepID uint) (*models.StepAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentID]
	if !ok || e.TenantID != tenantID {
		return nil, ErrNotFound
	}
	var found *models.StepAction
	for _, a := range s.actionsFor(enrollmentID) {
		if a.StepID == stepID {
			match := a
			found = &match
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (s *MemoryStore) FindActionByMessageID(messageID string) (*models.StepAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a.MessageID == messageID {
			match := a
			return &match, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActionsForSequence(tenantID, sequenceID uint) ([]models.StepAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StepAction
	for _, e := range s.enrollments {
		if e.TenantID != tenantID || e.SequenceID != sequenceID {
			continue
		}
		out = append(out, s.actionsFor(e.ID)...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetOrCreateAnalytics(tenantID, sequenceID uint) (*models.SequenceAnalytics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analytics[sequenceID]
	if !ok {
		a = models.SequenceAnalytics{TenantID: tenantID, SequenceID: sequenceID}
		a.ID = s.id()
		s.analytics[sequenceID] = a
	}
	return &a, nil
}

func (s *MemoryStore) SaveAnalytics(a *models.SequenceAnalytics) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analytics[a.SequenceID] = *a
	return nil
}

func (s *MemoryStore) GetOrCreateStepStat(tenantID, sequenceID, stepID uint) (*models.StepStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stat, ok := s.stepStats[stepID]
	if !ok {
		stat = models.StepStat{TenantID: tenantID, SequenceID: sequenceID, StepID: stepID}
		stat.ID = s.id()
		s.stepStats[stepID] = stat
	}
	return &stat, nil
}

func (s *MemoryStore) SaveStepStat(stat *models.StepStat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepStats[stat.StepID] = *stat
	return nil
}

func (s *MemoryStore) CountEnrollmentsByStatus(tenantID, sequenceID uint) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := make(map[string]int)
	for _, e := range s.enrollments {
		if e.TenantID == tenantID && e.SequenceID == sequenceID {
			counts[e.Status]++
		}
	}
	return counts, nil
}

func (s *MemoryStore) CreateSMSMessage(m *models.SMSMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.ID == 0 {
		m.ID = s.id()
	}
	s.smsMessages[m.ID] = *m
	return nil
}

func (s *MemoryStore) CreateTask(t *models.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		t.ID = s.id()
	}
	s.tasks[t.ID] = *t
	return nil
}

// SMSMessages returns all correlation records, for tests
func (s *MemoryStore) SMSMessages() []models.SMSMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SMSMessage
	for _, m := range s.smsMessages {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tasks returns all task records, for tests
func (s *MemoryStore) Tasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Task
	for _, t := range s.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
