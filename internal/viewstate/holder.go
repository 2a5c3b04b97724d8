// Package viewstate holds the observable state a patient UI renders.
package viewstate

import (
	"context"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/model"
	"github.com/and161185/medalert/internal/observe"
)

// Repository is the sync layer the holder drives.
type Repository interface {
	Login(ctx context.Context, email, password string) (model.Session, error)
	Register(ctx context.Context, req model.RegisterRequest) (model.Session, error)
	Logout() error
	CachedPatient() (model.Patient, bool)

	FetchProfile(ctx context.Context) (model.Patient, error)
	UpdateProfile(ctx context.Context, p model.Patient) (model.Patient, error)
	UpdateMedicine(ctx context.Context, medicationID string, fields map[string]any) (model.Medication, error)
	DeleteMedicine(ctx context.Context, medicationID string) error
	SetReminderTimes(ctx context.Context, req model.SetTimingsRequest) (model.MedicineNotification, error)
	FetchNotifications(ctx context.Context) ([]model.MedicineNotification, error)
	RecordAdherence(ctx context.Context, medicationID string, taken bool, note string, at time.Time) error
	SearchCaretakers(ctx context.Context, search string) ([]model.Caretaker, error)
	AssignCaretaker(ctx context.Context, caretakerUserID string) error
}

// ReminderSyncer re-arms local reminders from a patient's medications.
type ReminderSyncer interface {
	Sync(p model.Patient)
}

// State is one immutable frame of UI state. Err holds the last failure until cleared.
type State struct {
	Patient       *model.Patient
	Medications   []model.Medication
	Notifications []model.MedicineNotification
	Caretakers    []model.Caretaker
	IsLoading     bool
	Err           error
}

// ErrMessage returns the display text of Err, or "".
func (s State) ErrMessage() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// Holder turns intents into repository calls and publishes the resulting state.
// Every intent replaces the state once on start and once on completion.
type Holder struct {
	repo      Repository
	state     *observe.Value[State]
	reminders ReminderSyncer
	log       *zap.Logger
}

type Option func(*Holder)

// WithReminders re-syncs reminders after each successful profile load.
func WithReminders(r ReminderSyncer) Option { return func(h *Holder) { h.reminders = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(h *Holder) { h.log = l } }

// New creates a Holder seeded from the cached patient, if any.
func New(repo Repository, opts ...Option) *Holder {
	h := &Holder{repo: repo, log: zap.NewNop()}
	for _, o := range opts {
		o(h)
	}
	var init State
	if p, ok := repo.CachedPatient(); ok {
		init = withPatient(init, p)
	}
	h.state = observe.NewValue(init)
	return h
}

// State returns the current frame.
func (h *Holder) State() State { return h.state.Get() }

// Watch yields the current frame now and every later one; the channel closes with ctx.
func (h *Holder) Watch(ctx context.Context) <-chan State { return h.state.Subscribe(ctx) }

func withPatient(s State, p model.Patient) State {
	s.Patient = &p
	s.Medications = slices.Clone(p.CurrentMedications)
	return s
}

func (h *Holder) begin() {
	h.state.Update(func(s State) State {
		s.IsLoading = true
		s.Err = nil
		return s
	})
}

func (h *Holder) fail(err error) error {
	h.state.Update(func(s State) State {
		s.IsLoading = false
		s.Err = err
		return s
	})
	return err
}

func (h *Holder) succeed(fn func(State) State) {
	h.state.Update(func(s State) State {
		s = fn(s)
		s.IsLoading = false
		s.Err = nil
		return s
	})
}

// applyPatient publishes p, re-syncs reminders and then loads reminder data.
func (h *Holder) applyPatient(ctx context.Context, p model.Patient) {
	h.succeed(func(s State) State { return withPatient(s, p) })
	if h.reminders != nil {
		h.reminders.Sync(p)
	}
	_ = h.LoadReminderData(ctx)
}

// refresh is the completion step of every mutation: the profile is re-fetched, never patched.
func (h *Holder) refresh(ctx context.Context) error {
	p, err := h.repo.FetchProfile(ctx)
	if err != nil {
		return h.fail(err)
	}
	h.applyPatient(ctx, p)
	return nil
}

func (h *Holder) mutate(ctx context.Context, call func() error) error {
	h.begin()
	if err := call(); err != nil {
		return h.fail(err)
	}
	return h.refresh(ctx)
}

// Login authenticates and publishes the returned patient.
func (h *Holder) Login(ctx context.Context, email, password string) error {
	h.begin()
	sess, err := h.repo.Login(ctx, email, password)
	if err != nil {
		return h.fail(err)
	}
	h.applyPatient(ctx, sess.Patient)
	return nil
}

// Register creates a patient account and publishes it.
func (h *Holder) Register(ctx context.Context, req model.RegisterRequest) error {
	h.begin()
	sess, err := h.repo.Register(ctx, req)
	if err != nil {
		return h.fail(err)
	}
	h.applyPatient(ctx, sess.Patient)
	return nil
}

// Logout clears the session and resets state. Reminders are cancelled.
func (h *Holder) Logout() error {
	if err := h.repo.Logout(); err != nil {
		return h.fail(err)
	}
	h.state.Set(State{})
	if h.reminders != nil {
		h.reminders.Sync(model.Patient{})
	}
	return nil
}

// LoadPatientData fetches the profile.
func (h *Holder) LoadPatientData(ctx context.Context) error {
	h.begin()
	return h.refresh(ctx)
}

// LoadReminderData fetches notification configs. It is best effort: a failure is
// logged and returned but never published to Err, and IsLoading is not touched.
func (h *Holder) LoadReminderData(ctx context.Context) error {
	ns, err := h.repo.FetchNotifications(ctx)
	if err != nil {
		h.log.Warn("load reminder data", zap.Error(err))
		return err
	}
	h.state.Update(func(s State) State {
		s.Notifications = ns
		return s
	})
	return nil
}

// UpdateProfile replaces the profile, then re-fetches it.
func (h *Holder) UpdateProfile(ctx context.Context, p model.Patient) error {
	return h.mutate(ctx, func() error {
		_, err := h.repo.UpdateProfile(ctx, p)
		return err
	})
}

// UpdateMedicine applies a field map to one medication.
func (h *Holder) UpdateMedicine(ctx context.Context, medicationID string, fields map[string]any) error {
	return h.mutate(ctx, func() error {
		_, err := h.repo.UpdateMedicine(ctx, medicationID, fields)
		return err
	})
}

// DeleteMedicine removes one medication.
func (h *Holder) DeleteMedicine(ctx context.Context, medicationID string) error {
	return h.mutate(ctx, func() error { return h.repo.DeleteMedicine(ctx, medicationID) })
}

// RecordAdherence logs a dose taken now.
func (h *Holder) RecordAdherence(ctx context.Context, medicationID string, taken bool, note string) error {
	return h.mutate(ctx, func() error {
		return h.repo.RecordAdherence(ctx, medicationID, taken, note, time.Time{})
	})
}

// AssignCaretaker requests a caretaker.
func (h *Holder) AssignCaretaker(ctx context.Context, caretakerUserID string) error {
	return h.mutate(ctx, func() error { return h.repo.AssignCaretaker(ctx, caretakerUserID) })
}

// SetReminderTimes stores a schedule. Completion re-fetches notifications instead of the profile.
func (h *Holder) SetReminderTimes(ctx context.Context, req model.SetTimingsRequest) error {
	h.begin()
	if _, err := h.repo.SetReminderTimes(ctx, req); err != nil {
		return h.fail(err)
	}
	ns, err := h.repo.FetchNotifications(ctx)
	if err != nil {
		h.log.Warn("reload reminder data", zap.Error(err))
		h.succeed(func(s State) State { return s })
		return nil
	}
	h.succeed(func(s State) State {
		s.Notifications = ns
		return s
	})
	return nil
}

// LoadCaretakers searches available caretakers.
func (h *Holder) LoadCaretakers(ctx context.Context, search string) error {
	h.begin()
	cs, err := h.repo.SearchCaretakers(ctx, search)
	if err != nil {
		return h.fail(err)
	}
	h.succeed(func(s State) State {
		s.Caretakers = cs
		return s
	})
	return nil
}

// ClearError drops the published error.
func (h *Holder) ClearError() {
	h.state.Update(func(s State) State {
		s.Err = nil
		return s
	})
}
