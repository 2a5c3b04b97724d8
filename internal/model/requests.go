package model

// RolePatient is the only role this client logs in with.
const RolePatient = "patient"

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type RegisterRequest struct {
	Name             string            `json:"name"`
	Email            string            `json:"email"`
	Password         string            `json:"password"`
	Role             string            `json:"role"`
	PhoneNumber      string            `json:"phoneNumber,omitempty"`
	DateOfBirth      string            `json:"dateOfBirth,omitempty"`
	Age              int               `json:"age,omitempty"`
	Gender           string            `json:"gender,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
}

// AuthResponse is returned by login and registration.
type AuthResponse struct {
	Token   string   `json:"token"`
	User    *Patient `json:"user"`
	Message string   `json:"message,omitempty"`
}

// SetTimingsRequest configures reminder times for one medicine. Metadata fields are optional.
type SetTimingsRequest struct {
	MedicineName      string         `json:"medicineName"`
	Dosage            string         `json:"dosage"`
	NotificationTimes []ReminderTime `json:"notificationTimes"`
	Instructions      string         `json:"instructions,omitempty"`
	FoodTiming        string         `json:"foodTiming,omitempty"`
	Frequency         string         `json:"frequency,omitempty"`
	Duration          string         `json:"duration,omitempty"`
}

// AdherenceRequest is the wire body for recording one dose; Timestamp is unix milliseconds.
type AdherenceRequest struct {
	Taken     bool   `json:"taken"`
	Timestamp int64  `json:"timestamp"`
	Notes     string `json:"notes"`
}

// AssignCaretakerRequest selects a caretaker by user id.
type AssignCaretakerRequest struct {
	CaretakerUserID string `json:"caretakerUserId"`
}

// ApprovalDecision is a caretaker's answer to a pending request.
type ApprovalDecision struct {
	CaretakerID string         `json:"caretakerId"`
	Status      ApprovalStatus `json:"status"`
}
