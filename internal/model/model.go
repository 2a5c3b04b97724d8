// Package model defines the patient-side domain entities shared by the client and the sandbox.
package model

import (
	"slices"
	"time"
)

// Patient is the profile returned by the backend. It owns its medications and caretaker approvals.
type Patient struct {
	ID                 string              `json:"_id"`
	UserID             string              `json:"userId"`
	Name               string              `json:"name"`
	Email              string              `json:"email"`
	DateOfBirth        string              `json:"dateOfBirth,omitempty"`
	Age                int                 `json:"age,omitempty"`
	Gender             string              `json:"gender,omitempty"`
	PhoneNumber        string              `json:"phoneNumber,omitempty"`
	EmergencyContact   *EmergencyContact   `json:"emergencyContact,omitempty"`
	MedicalHistory     []MedicalCondition  `json:"medicalHistory,omitempty"`
	Allergies          []string            `json:"allergies,omitempty"`
	CurrentMedications []Medication        `json:"currentMedications"`
	Visits             []Visit             `json:"visits,omitempty"`
	SelectedCaretaker  *SelectedCaretaker  `json:"selectedCaretaker,omitempty"`
	CaretakerApprovals []CaretakerApproval `json:"caretakerApprovals,omitempty"`
	IsActive           bool                `json:"isActive"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// MedicationIndex returns the positional index of the medication with the given id, or -1.
func (p Patient) MedicationIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range p.CurrentMedications {
		if p.CurrentMedications[i].ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy so callers never alias the owned lists.
func (p Patient) Clone() Patient {
	c := p
	if p.EmergencyContact != nil {
		ec := *p.EmergencyContact
		c.EmergencyContact = &ec
	}
	if p.SelectedCaretaker != nil {
		sc := *p.SelectedCaretaker
		c.SelectedCaretaker = &sc
	}
	c.MedicalHistory = slices.Clone(p.MedicalHistory)
	c.Allergies = slices.Clone(p.Allergies)
	c.CaretakerApprovals = slices.Clone(p.CaretakerApprovals)
	if p.Visits != nil {
		c.Visits = make([]Visit, len(p.Visits))
		for i, v := range p.Visits {
			v.Medicines = slices.Clone(v.Medicines)
			c.Visits[i] = v
		}
	}
	if p.CurrentMedications != nil {
		c.CurrentMedications = make([]Medication, len(p.CurrentMedications))
		for i, m := range p.CurrentMedications {
			c.CurrentMedications[i] = m.Clone()
		}
	}
	return c
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship"`
}

type MedicalCondition struct {
	Condition     string `json:"condition"`
	DiagnosisDate string `json:"diagnosisDate,omitempty"`
	Status        string `json:"status,omitempty"`
}

// Medication is embedded in a Patient; Timing holds validated "HH:MM" strings.
type Medication struct {
	ID             string            `json:"_id"`
	Name           string            `json:"name"`
	Dosage         string            `json:"dosage"`
	Frequency      string            `json:"frequency,omitempty"`
	Duration       string            `json:"duration,omitempty"`
	Instructions   string            `json:"instructions,omitempty"`
	Timing         []string          `json:"timing"`
	FoodTiming     string            `json:"foodTiming,omitempty"`
	PrescribedBy   string            `json:"prescribedBy,omitempty"`
	PrescribedDate string            `json:"prescribedDate,omitempty"`
	PrescriptionID string            `json:"prescriptionId,omitempty"`
	Adherence      []AdherenceRecord `json:"adherence"`
	LastTaken      *time.Time        `json:"lastTaken,omitempty"`
	UpdatedAt      *time.Time        `json:"updatedAt,omitempty"`
	UpdatedBy      string            `json:"updatedBy,omitempty"`
}

// Clone copies the timing and adherence lists.
func (m Medication) Clone() Medication {
	c := m
	c.Timing = slices.Clone(m.Timing)
	c.Adherence = slices.Clone(m.Adherence)
	if m.LastTaken != nil {
		lt := *m.LastTaken
		c.LastTaken = &lt
	}
	if m.UpdatedAt != nil {
		ua := *m.UpdatedAt
		c.UpdatedAt = &ua
	}
	return c
}

// AdherenceRecord is an immutable log entry for one dose.
type AdherenceRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	Taken      bool      `json:"taken"`
	Notes      string    `json:"notes,omitempty"`
	RecordedBy string    `json:"recordedBy,omitempty"`
}

type Visit struct {
	VisitDate        string               `json:"visitDate"`
	VisitType        string               `json:"visitType,omitempty"`
	DoctorID         string               `json:"doctorId,omitempty"`
	DoctorName       string               `json:"doctorName,omitempty"`
	Diagnosis        string               `json:"diagnosis,omitempty"`
	Notes            string               `json:"notes,omitempty"`
	Medicines        []PrescribedMedicine `json:"medicines,omitempty"`
	FollowUpDate     string               `json:"followUpDate,omitempty"`
	FollowUpRequired bool                 `json:"followUpRequired"`
}

type PrescribedMedicine struct {
	Name         string `json:"name"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency,omitempty"`
	Duration     string `json:"duration,omitempty"`
	Instructions string `json:"instructions,omitempty"`
}

// SelectedCaretaker is the caretaker currently assigned to the patient.
type SelectedCaretaker struct {
	CaretakerID     string    `json:"caretakerId"`
	CaretakerUserID string    `json:"caretakerUserId"`
	CaretakerName   string    `json:"caretakerName"`
	CaretakerEmail  string    `json:"caretakerEmail"`
	AssignedAt      time.Time `json:"assignedAt"`
}

// Caretaker is a secondary caregiver account available for assignment.
type Caretaker struct {
	ID     string `json:"_id"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phoneNumber,omitempty"`
}

// MedicineNotification is the server-side reminder configuration for one medicine.
type MedicineNotification struct {
	ID                string         `json:"_id"`
	PatientID         string         `json:"patientId"`
	MedicineName      string         `json:"medicineName"`
	Dosage            string         `json:"dosage"`
	NotificationTimes []ReminderTime `json:"notificationTimes"`
	Instructions      string         `json:"instructions,omitempty"`
	FoodTiming        string         `json:"foodTiming,omitempty"`
	Frequency         string         `json:"frequency,omitempty"`
	Duration          string         `json:"duration,omitempty"`
	IsActive          bool           `json:"isActive"`
}

// Session is the cached authentication state. ExpiresAt is zero when the token carries no exp.
type Session struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Patient   Patient   `json:"-"`
}

// Valid reports whether the session has a token that has not expired at now.
func (s Session) Valid(now time.Time) bool {
	if s.Token == "" {
		return false
	}
	return s.ExpiresAt.IsZero() || now.Before(s.ExpiresAt)
}
