package sandbox

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/medalert/internal/errs"
	"github.com/and161185/medalert/internal/model"
)

// Account is a login identity. Patients link to their profile through PatientID.
type Account struct {
	ID        uuid.UUID
	Email     string
	PwdHash   string
	Role      string
	PatientID string
}

// Store keeps every sandbox entity in memory. Returned values never alias stored ones.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	accounts   map[string]*Account
	byID       map[uuid.UUID]*Account
	patients   map[string]*model.Patient
	notifs     map[string][]model.MedicineNotification
	caretakers []model.Caretaker
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:      time.Now,
		accounts: map[string]*Account{},
		byID:     map[uuid.UUID]*Account{},
		patients: map[string]*model.Patient{},
		notifs:   map[string][]model.MedicineNotification{},
	}
}

func newID() string { return uuid.Must(uuid.NewV4()).String() }

func normEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

// CreatePatientAccount stores an account and its empty-medication profile.
func (s *Store) CreatePatientAccount(email, pwdHash string, profile model.Patient) (Account, model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normEmail(email)
	if _, ok := s.accounts[key]; ok {
		return Account{}, model.Patient{}, errs.ErrAlreadyExists
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return Account{}, model.Patient{}, err
	}
	now := s.now().UTC()
	p := profile.Clone()
	p.ID = newID()
	p.UserID = uid.String()
	p.Email = email
	p.IsActive = true
	p.CreatedAt, p.UpdatedAt = now, now
	if p.CurrentMedications == nil {
		p.CurrentMedications = []model.Medication{}
	}
	for i := range p.CurrentMedications {
		if p.CurrentMedications[i].ID == "" {
			p.CurrentMedications[i].ID = newID()
		}
	}

	a := &Account{ID: uid, Email: email, PwdHash: pwdHash, Role: model.RolePatient, PatientID: p.ID}
	s.accounts[key] = a
	s.byID[uid] = a
	s.patients[p.ID] = &p
	return *a, p.Clone(), nil
}

// AccountByEmail looks up an account case-insensitively.
func (s *Store) AccountByEmail(email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[normEmail(email)]
	if !ok {
		return Account{}, errs.ErrNotFound
	}
	return *a, nil
}

// AccountByID looks up an account by user id.
func (s *Store) AccountByID(id uuid.UUID) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.byID[id]
	if !ok {
		return Account{}, errs.ErrNotFound
	}
	return *a, nil
}

// Patient returns a copy of the profile.
func (s *Store) Patient(id string) (model.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.patients[id]
	if !ok {
		return model.Patient{}, errs.ErrNotFound
	}
	return p.Clone(), nil
}

// withPatient runs fn on the stored profile under the write lock and stamps UpdatedAt on success.
func (s *Store) withPatient(id string, fn func(p *model.Patient, now time.Time) error) (model.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	if !ok {
		return model.Patient{}, errs.ErrNotFound
	}
	now := s.now().UTC()
	work := p.Clone()
	if err := fn(&work, now); err != nil {
		return model.Patient{}, err
	}
	work.UpdatedAt = now
	s.patients[id] = &work
	return work.Clone(), nil
}

// ReplacePatient overwrites the editable profile. Identity, ownership and caretaker fields are kept.
func (s *Store) ReplacePatient(id string, in model.Patient) (model.Patient, error) {
	return s.withPatient(id, func(p *model.Patient, _ time.Time) error {
		next := in.Clone()
		next.ID, next.UserID, next.Email = p.ID, p.UserID, p.Email
		next.CreatedAt = p.CreatedAt
		next.IsActive = p.IsActive
		next.SelectedCaretaker = p.SelectedCaretaker
		next.CaretakerApprovals = p.CaretakerApprovals
		if next.CurrentMedications == nil {
			next.CurrentMedications = []model.Medication{}
		}
		for i := range next.CurrentMedications {
			m := &next.CurrentMedications[i]
			if err := model.ValidateTimings(m.Timing); err != nil {
				return fmt.Errorf("medication %q: %w", m.Name, err)
			}
			if m.ID == "" {
				m.ID = newID()
			}
		}
		*p = next
		return nil
	})
}

func medicineAt(p *model.Patient, index int) (*model.Medication, error) {
	if index < 0 || index >= len(p.CurrentMedications) {
		return nil, fmt.Errorf("medicine %d: %w", index, errs.ErrNotFound)
	}
	return &p.CurrentMedications[index], nil
}

// UpdateMedicine merges a partial field map into one medication. Id and adherence are not editable.
func (s *Store) UpdateMedicine(patientID string, index int, fields map[string]any) (model.Medication, error) {
	var out model.Medication
	_, err := s.withPatient(patientID, func(p *model.Patient, now time.Time) error {
		m, err := medicineAt(p, index)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(fields)
		if err != nil {
			return fmt.Errorf("fields: %w", errs.ErrInvalidInput)
		}
		next := m.Clone()
		if err := json.Unmarshal(raw, &next); err != nil {
			return fmt.Errorf("fields: %v: %w", err, errs.ErrInvalidInput)
		}
		if err := model.ValidateTimings(next.Timing); err != nil {
			return err
		}
		next.ID, next.Adherence, next.LastTaken = m.ID, m.Adherence, m.LastTaken
		next.UpdatedAt = &now
		next.UpdatedBy = model.RolePatient
		*m = next
		out = next.Clone()
		return nil
	})
	return out, err
}

// DeleteMedicine removes the medication at index.
func (s *Store) DeleteMedicine(patientID string, index int) error {
	_, err := s.withPatient(patientID, func(p *model.Patient, _ time.Time) error {
		if _, err := medicineAt(p, index); err != nil {
			return err
		}
		p.CurrentMedications = slices.Delete(p.CurrentMedications, index, index+1)
		return nil
	})
	return err
}

// AddAdherence appends one record; a taken dose also moves LastTaken.
func (s *Store) AddAdherence(patientID string, index int, rec model.AdherenceRecord) error {
	_, err := s.withPatient(patientID, func(p *model.Patient, _ time.Time) error {
		m, err := medicineAt(p, index)
		if err != nil {
			return err
		}
		m.Adherence = append(m.Adherence, rec)
		if rec.Taken && (m.LastTaken == nil || rec.Timestamp.After(*m.LastTaken)) {
			ts := rec.Timestamp
			m.LastTaken = &ts
		}
		return nil
	})
	return err
}

// UpsertNotification creates or replaces the patient's reminder config for a medicine name.
func (s *Store) UpsertNotification(patientID string, req model.SetTimingsRequest) (model.MedicineNotification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[patientID]; !ok {
		return model.MedicineNotification{}, errs.ErrNotFound
	}
	n := model.MedicineNotification{
		PatientID:         patientID,
		MedicineName:      req.MedicineName,
		Dosage:            req.Dosage,
		NotificationTimes: slices.Clone(req.NotificationTimes),
		Instructions:      req.Instructions,
		FoodTiming:        req.FoodTiming,
		Frequency:         req.Frequency,
		Duration:          req.Duration,
		IsActive:          true,
	}
	list := s.notifs[patientID]
	for i := range list {
		if strings.EqualFold(list[i].MedicineName, req.MedicineName) {
			n.ID = list[i].ID
			list[i] = n
			return n, nil
		}
	}
	n.ID = newID()
	s.notifs[patientID] = append(list, n)
	return n, nil
}

// Notifications lists the patient's reminder configs.
func (s *Store) Notifications(patientID string) []model.MedicineNotification {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MedicineNotification, 0, len(s.notifs[patientID]))
	for _, n := range s.notifs[patientID] {
		n.NotificationTimes = slices.Clone(n.NotificationTimes)
		out = append(out, n)
	}
	return out
}

// AddCaretaker registers a caretaker available for assignment.
func (s *Store) AddCaretaker(c model.Caretaker) model.Caretaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	if c.UserID == "" {
		c.UserID = newID()
	}
	s.caretakers = append(s.caretakers, c)
	return c
}

// Caretakers filters caretakers by a case-insensitive substring of name or email.
func (s *Store) Caretakers(search string) []model.Caretaker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(search))
	out := []model.Caretaker{}
	for _, c := range s.caretakers {
		if q == "" || strings.Contains(strings.ToLower(c.Name), q) || strings.Contains(strings.ToLower(c.Email), q) {
			out = append(out, c)
		}
	}
	return out
}

// AssignCaretaker selects a caretaker and opens a pending approval unless one is already pending.
func (s *Store) AssignCaretaker(patientID, caretakerUserID string) (model.Patient, error) {
	s.mu.RLock()
	idx := slices.IndexFunc(s.caretakers, func(c model.Caretaker) bool { return c.UserID == caretakerUserID })
	var c model.Caretaker
	if idx >= 0 {
		c = s.caretakers[idx]
	}
	s.mu.RUnlock()
	if idx < 0 {
		return model.Patient{}, fmt.Errorf("caretaker: %w", errs.ErrNotFound)
	}

	return s.withPatient(patientID, func(p *model.Patient, now time.Time) error {
		p.SelectedCaretaker = &model.SelectedCaretaker{
			CaretakerID:     c.ID,
			CaretakerUserID: c.UserID,
			CaretakerName:   c.Name,
			CaretakerEmail:  c.Email,
			AssignedAt:      now,
		}
		for _, a := range p.CaretakerApprovals {
			if a.CaretakerID == c.ID && a.Status == model.ApprovalPending {
				return nil
			}
		}
		p.CaretakerApprovals = append(p.CaretakerApprovals, model.NewCaretakerApproval(c.ID, now))
		return nil
	})
}

// DecideApproval applies a caretaker's decision to the latest request of that caretaker.
func (s *Store) DecideApproval(patientID, caretakerID string, status model.ApprovalStatus) (model.CaretakerApproval, error) {
	var out model.CaretakerApproval
	_, err := s.withPatient(patientID, func(p *model.Patient, now time.Time) error {
		for i := len(p.CaretakerApprovals) - 1; i >= 0; i-- {
			if p.CaretakerApprovals[i].CaretakerID != caretakerID {
				continue
			}
			next, err := p.CaretakerApprovals[i].Decide(status, now)
			if err != nil {
				return err
			}
			p.CaretakerApprovals[i] = next
			out = next
			return nil
		}
		return fmt.Errorf("approval: %w", errs.ErrNotFound)
	})
	return out, err
}
