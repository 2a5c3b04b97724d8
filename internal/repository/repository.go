// Package repository is the sync layer between the session cache and the remote backend.
// Each operation issues at most one remote call and reports every failure as *errs.Error.
package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/errs"
	"github.com/and161185/medalert/internal/model"
	"github.com/and161185/medalert/internal/remote"
)

// SessionStore is the part of prefs.Store the repository writes to. It is the only writer.
type SessionStore interface {
	// Session returns the cached token and snapshot; ok is false without a token.
	Session() (model.Session, bool)
	// SaveSession writes token and snapshot as one write.
	SaveSession(s model.Session) error
	// SaveSnapshot replaces the cached patient.
	SaveSnapshot(p model.Patient) error
	// IsLoggedIn reports whether a non-expired token is cached.
	IsLoggedIn() bool
	// Clear drops token and snapshot together.
	Clear() error
}

// PatientRepository implements the patient-facing sync operations.
type PatientRepository struct {
	api   remote.Client
	store SessionStore
	log   *zap.Logger
	now   func() time.Time
}

// New constructs a PatientRepository.
func New(api remote.Client, store SessionStore, log *zap.Logger) *PatientRepository {
	if log == nil {
		log = zap.NewNop()
	}
	return &PatientRepository{api: api, store: store, log: log, now: time.Now}
}

// recoverInto turns a panic in a collaborator into a transport failure.
func (r *PatientRepository) recoverInto(op string, err *error) {
	if rec := recover(); rec != nil {
		r.log.Error("panic", zap.String("op", op), zap.Any("reason", rec))
		*err = errs.New(errs.KindTransport, op, "Unexpected client error", fmt.Errorf("panic: %v", rec))
	}
}

// fail classifies a remote-layer error. failMsg is the display message for this operation.
func (r *PatientRepository) fail(op, failMsg string, err error) error {
	var (
		se *remote.StatusError
		e  *errs.Error
	)
	switch {
	case errors.As(err, &e):
		// already classified
	case errors.As(err, &se):
		msg := se.Message
		if msg == "" {
			msg = failMsg
		}
		e = &errs.Error{Kind: errs.KindRemoteRejected, Op: op, Status: se.Code, Message: msg, Err: err}
	case errors.Is(err, remote.ErrEmptyPayload):
		e = errs.New(errs.KindRemoteRejected, op, failMsg, err)
	default:
		e = errs.New(errs.KindTransport, op, fmt.Sprintf("%s: %v", failMsg, err), err)
	}
	r.log.Warn("sync failed",
		zap.String("op", op),
		zap.Stringer("kind", e.Kind),
		zap.Int("status", e.Status),
		zap.Error(err),
	)
	return e
}

func notAuthenticated(op string) error {
	return errs.New(errs.KindNotAuthenticated, op, "User not logged in", nil)
}

func invalid(op string, err error) error {
	return errs.New(errs.KindInvalidInput, op, err.Error(), err)
}

// token returns the cached non-expired token.
func (r *PatientRepository) token(op string) (string, error) {
	sess, ok := r.store.Session()
	if !ok || !sess.Valid(r.now()) {
		return "", notAuthenticated(op)
	}
	return sess.Token, nil
}

// session returns token and cached patient; the patient must carry a backend id.
func (r *PatientRepository) session(op string) (model.Session, error) {
	sess, ok := r.store.Session()
	if !ok || !sess.Valid(r.now()) || sess.Patient.ID == "" {
		return model.Session{}, notAuthenticated(op)
	}
	return sess, nil
}

// medicineIndex maps a stable medication id to the positional index the backend expects.
func medicineIndex(op string, p model.Patient, medicationID string) (int, error) {
	idx := p.MedicationIndex(medicationID)
	if idx < 0 {
		return -1, invalid(op, fmt.Errorf("medication %q is not in the cached profile", medicationID))
	}
	return idx, nil
}

// patchMedications saves the cached patient with fn applied to a copy of its medications,
// so ids keep resolving to the backend's current indexes.
func (r *PatientRepository) patchMedications(op string, p model.Patient, fn func([]model.Medication) []model.Medication) error {
	next := p.Clone()
	next.CurrentMedications = fn(next.CurrentMedications)
	if err := r.store.SaveSnapshot(next); err != nil {
		return r.fail(op, "Failed to save profile", err)
	}
	return nil
}

func (r *PatientRepository) saveSession(op string, resp *model.AuthResponse) (model.Session, error) {
	sess := model.Session{Token: resp.Token, Patient: *resp.User}
	if err := r.store.SaveSession(sess); err != nil {
		return model.Session{}, r.fail(op, "Failed to save session", err)
	}
	saved, _ := r.store.Session()
	return saved, nil
}

// Login authenticates as a patient and caches the session.
func (r *PatientRepository) Login(ctx context.Context, email, password string) (sess model.Session, err error) {
	const op = "login"
	defer r.recoverInto(op, &err)

	resp, err := r.api.Login(ctx, model.LoginRequest{Email: email, Password: password, Role: model.RolePatient})
	if err != nil {
		return model.Session{}, r.fail(op, "Login failed", err)
	}
	return r.saveSession(op, resp)
}

// Register creates a patient account and caches the session.
func (r *PatientRepository) Register(ctx context.Context, req model.RegisterRequest) (sess model.Session, err error) {
	const op = "register"
	defer r.recoverInto(op, &err)

	req.Role = model.RolePatient
	resp, err := r.api.Register(ctx, req)
	if err != nil {
		return model.Session{}, r.fail(op, "Registration failed", err)
	}
	return r.saveSession(op, resp)
}

// Logout clears the cached session.
func (r *PatientRepository) Logout() error {
	if err := r.store.Clear(); err != nil {
		return r.fail("logout", "Failed to clear session", err)
	}
	return nil
}

// IsLoggedIn reports whether a usable token is cached.
func (r *PatientRepository) IsLoggedIn() bool { return r.store.IsLoggedIn() }

// CachedPatient returns the last cached patient snapshot.
func (r *PatientRepository) CachedPatient() (model.Patient, bool) {
	sess, ok := r.store.Session()
	if !ok || sess.Patient.ID == "" {
		return model.Patient{}, false
	}
	return sess.Patient, true
}

// FetchProfile loads the patient from the backend and refreshes the snapshot.
func (r *PatientRepository) FetchProfile(ctx context.Context) (p model.Patient, err error) {
	const op = "fetchProfile"
	defer r.recoverInto(op, &err)

	sess, err := r.session(op)
	if err != nil {
		return model.Patient{}, err
	}
	out, err := r.api.GetPatientProfile(ctx, sess.Token, sess.Patient.ID)
	if err != nil {
		return model.Patient{}, r.fail(op, "Failed to get profile", err)
	}
	if err := r.store.SaveSnapshot(*out); err != nil {
		return model.Patient{}, r.fail(op, "Failed to save profile", err)
	}
	return *out, nil
}

// UpdateProfile replaces the patient profile and refreshes the snapshot.
func (r *PatientRepository) UpdateProfile(ctx context.Context, p model.Patient) (out model.Patient, err error) {
	const op = "updateProfile"
	defer r.recoverInto(op, &err)

	token, err := r.token(op)
	if err != nil {
		return model.Patient{}, err
	}
	if p.ID == "" {
		return model.Patient{}, invalid(op, errors.New("patient id is empty"))
	}
	upd, err := r.api.UpdatePatientProfile(ctx, token, p.ID, p)
	if err != nil {
		return model.Patient{}, r.fail(op, "Failed to update profile", err)
	}
	if err := r.store.SaveSnapshot(*upd); err != nil {
		return model.Patient{}, r.fail(op, "Failed to save profile", err)
	}
	return *upd, nil
}

// UpdateMedicine applies a partial field map to one medication and writes the result into the snapshot.
func (r *PatientRepository) UpdateMedicine(ctx context.Context, medicationID string, fields map[string]any) (m model.Medication, err error) {
	const op = "updateMedicine"
	defer r.recoverInto(op, &err)

	sess, err := r.session(op)
	if err != nil {
		return model.Medication{}, err
	}
	if err := validateMedicineFields(fields); err != nil {
		return model.Medication{}, invalid(op, err)
	}
	idx, err := medicineIndex(op, sess.Patient, medicationID)
	if err != nil {
		return model.Medication{}, err
	}
	out, err := r.api.UpdateMedicine(ctx, sess.Token, idx, fields)
	if err != nil {
		return model.Medication{}, r.fail(op, "Failed to update medicine", err)
	}
	upd := *out
	if upd.ID == "" {
		upd.ID = medicationID
	}
	err = r.patchMedications(op, sess.Patient, func(ms []model.Medication) []model.Medication {
		ms[idx] = upd.Clone()
		return ms
	})
	if err != nil {
		return model.Medication{}, err
	}
	return upd, nil
}

// validateMedicineFields checks the "timing" entry when the update carries one.
func validateMedicineFields(fields map[string]any) error {
	if len(fields) == 0 {
		return errors.New("no fields to update")
	}
	raw, ok := fields["timing"]
	if !ok {
		return nil
	}
	var timing []string
	switch v := raw.(type) {
	case []string:
		timing = v
	case []any:
		for _, it := range v {
			s, ok := it.(string)
			if !ok {
				return fmt.Errorf("timing: want strings, got %T", it)
			}
			timing = append(timing, s)
		}
	default:
		return fmt.Errorf("timing: want list of HH:MM, got %T", raw)
	}
	return model.ValidateTimings(timing)
}

// DeleteMedicine removes one medication from the backend and from the snapshot.
func (r *PatientRepository) DeleteMedicine(ctx context.Context, medicationID string) (err error) {
	const op = "deleteMedicine"
	defer r.recoverInto(op, &err)

	sess, err := r.session(op)
	if err != nil {
		return err
	}
	idx, err := medicineIndex(op, sess.Patient, medicationID)
	if err != nil {
		return err
	}
	if err := r.api.DeleteMedicine(ctx, sess.Token, idx); err != nil {
		return r.fail(op, "Failed to delete medicine", err)
	}
	return r.patchMedications(op, sess.Patient, func(ms []model.Medication) []model.Medication {
		return slices.Delete(ms, idx, idx+1)
	})
}

// SetReminderTimes stores the reminder schedule of one medicine. Times are validated and deduped first.
func (r *PatientRepository) SetReminderTimes(ctx context.Context, req model.SetTimingsRequest) (n model.MedicineNotification, err error) {
	const op = "setReminderTimes"
	defer r.recoverInto(op, &err)

	token, err := r.token(op)
	if err != nil {
		return model.MedicineNotification{}, err
	}
	if req.MedicineName == "" {
		return model.MedicineNotification{}, invalid(op, errors.New("medicine name is empty"))
	}
	times, err := model.NormalizeReminderTimes(req.NotificationTimes)
	if err != nil {
		return model.MedicineNotification{}, invalid(op, err)
	}
	if len(times) == 0 {
		return model.MedicineNotification{}, invalid(op, errors.New("at least one reminder time is required"))
	}
	req.NotificationTimes = times

	out, err := r.api.SetMedicineTimings(ctx, token, req)
	if err != nil {
		return model.MedicineNotification{}, r.fail(op, "Failed to set timings", err)
	}
	return *out, nil
}

// FetchNotifications loads the patient's reminder configurations.
func (r *PatientRepository) FetchNotifications(ctx context.Context) (ns []model.MedicineNotification, err error) {
	const op = "fetchNotifications"
	defer r.recoverInto(op, &err)

	sess, err := r.session(op)
	if err != nil {
		return nil, err
	}
	out, err := r.api.GetMedicineNotifications(ctx, sess.Token, sess.Patient.ID)
	if err != nil {
		return nil, r.fail(op, "Failed to get notifications", err)
	}
	return out, nil
}

// RecordAdherence logs one dose as taken or missed. A zero at means now.
func (r *PatientRepository) RecordAdherence(ctx context.Context, medicationID string, taken bool, note string, at time.Time) (err error) {
	const op = "recordAdherence"
	defer r.recoverInto(op, &err)

	sess, err := r.session(op)
	if err != nil {
		return err
	}
	idx, err := medicineIndex(op, sess.Patient, medicationID)
	if err != nil {
		return err
	}
	if at.IsZero() {
		at = r.now()
	}
	req := model.AdherenceRequest{Taken: taken, Timestamp: at.UnixMilli(), Notes: note}
	if err := r.api.RecordAdherence(ctx, sess.Token, sess.Patient.ID, idx, req); err != nil {
		return r.fail(op, "Failed to record adherence", err)
	}
	r.log.Debug("adherence recorded", zap.String("medication", medicationID), zap.Bool("taken", taken))
	return nil
}

// SearchCaretakers lists caretakers available for assignment.
func (r *PatientRepository) SearchCaretakers(ctx context.Context, search string) (cs []model.Caretaker, err error) {
	const op = "searchCaretakers"
	defer r.recoverInto(op, &err)

	token, err := r.token(op)
	if err != nil {
		return nil, err
	}
	out, err := r.api.GetAvailableCaretakers(ctx, token, search)
	if err != nil {
		return nil, r.fail(op, "Failed to get caretakers", err)
	}
	return out, nil
}

// AssignCaretaker requests the given caretaker for the patient.
func (r *PatientRepository) AssignCaretaker(ctx context.Context, caretakerUserID string) (err error) {
	const op = "assignCaretaker"
	defer r.recoverInto(op, &err)

	token, err := r.token(op)
	if err != nil {
		return err
	}
	if caretakerUserID == "" {
		return invalid(op, errors.New("caretaker user id is empty"))
	}
	if err := r.api.AssignCaretaker(ctx, token, caretakerUserID); err != nil {
		return r.fail(op, "Failed to assign caretaker", err)
	}
	return nil
}
