// Package remote is the contract of the MedAlert REST backend and its HTTP implementation.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/medalert/internal/model"
)

// Client is the fixed set of backend operations. Every method except Login and Register
// needs a bearer token. Medicine addressing is positional, as the backend defines it.
type Client interface {
	Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error)
	Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error)

	GetPatientProfile(ctx context.Context, token, patientID string) (*model.Patient, error)
	UpdatePatientProfile(ctx context.Context, token, patientID string, p model.Patient) (*model.Patient, error)

	UpdateMedicine(ctx context.Context, token string, index int, fields map[string]any) (*model.Medication, error)
	DeleteMedicine(ctx context.Context, token string, index int) error

	SetMedicineTimings(ctx context.Context, token string, req model.SetTimingsRequest) (*model.MedicineNotification, error)
	GetMedicineNotifications(ctx context.Context, token, patientID string) ([]model.MedicineNotification, error)

	RecordAdherence(ctx context.Context, token, patientID string, index int, req model.AdherenceRequest) error

	GetAvailableCaretakers(ctx context.Context, token, search string) ([]model.Caretaker, error)
	AssignCaretaker(ctx context.Context, token, caretakerUserID string) error
}

// ErrEmptyPayload is returned when a 2xx response lacks the payload the operation needs.
var ErrEmptyPayload = errors.New("remote: empty payload")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remote: status %d: %s", e.Code, e.Message)
}
