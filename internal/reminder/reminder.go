// Package reminder arms device-local medication reminders and records the patient's answer.
//
// Each (medication, timing) slot moves Scheduled -> Fired -> Responded. Firing shows a
// notification with two actions and arms the next day's occurrence of the same slot.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Clock is the time source. AfterFunc runs f on its own goroutine once d has elapsed.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc call.
type Timer interface {
	Stop() bool
}

type wallClock struct{}

// WallClock returns the real clock.
func WallClock() Clock { return wallClock{} }

func (wallClock) Now() time.Time { return time.Now() }

func (wallClock) AfterFunc(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// Action is one button of a reminder notification.
type Action struct {
	Label string
	Taken bool
}

// Actions are offered on every reminder, taken first.
var Actions = []Action{
	{Label: "Mark as Taken", Taken: true},
	{Label: "Mark as Missed", Taken: false},
}

// Notification is what the Notifier shows. Key identifies it for Respond and Cancel.
type Notification struct {
	Key          uuid.UUID
	MedicationID string
	MedicineName string
	Title        string
	Body         string
	DueAt        time.Time
	Actions      []Action
}

// Notifier shows and dismisses notifications.
type Notifier interface {
	Notify(n Notification) error
	Cancel(key uuid.UUID) error
}

// Recorder stores the patient's answer. The sync repository satisfies it.
type Recorder interface {
	RecordAdherence(ctx context.Context, medicationID string, taken bool, note string, at time.Time) error
}

// State of a reminder slot.
type State int

const (
	Scheduled State = iota
	Fired
	Responded
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case Fired:
		return "fired"
	case Responded:
		return "responded"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Entry describes one slot, one unanswered firing or one answered firing.
// Taken and AnsweredAt are set only in the Responded state.
type Entry struct {
	Key          uuid.UUID
	MedicationID string
	MedicineName string
	Time         string
	Due          time.Time
	State        State
	Taken        bool
	AnsweredAt   time.Time
}

// AdherenceEvent is emitted when the patient answers a reminder.
type AdherenceEvent struct {
	Key          uuid.UUID
	MedicationID string
	MedicineName string
	Taken        bool
	At           time.Time
}

// keySpace namespaces notification keys.
var keySpace = uuid.NewV5(uuid.NamespaceURL, "medalert:reminder")

// NotificationKey is the stable key of a medication's notifications.
// All timings of one medication share it, so a newer reminder replaces an unanswered one.
func NotificationKey(medicationID, medicineName string) uuid.UUID {
	return uuid.NewV5(keySpace, medicationID+"\x00"+medicineName)
}

func notificationFor(key uuid.UUID, medID, name, dosage, instructions string, due time.Time) Notification {
	body := "Time to take " + name
	if dosage != "" {
		body += " (" + dosage + ")"
	}
	if instructions != "" {
		body += "\n\nInstructions: " + instructions
	}
	return Notification{
		Key:          key,
		MedicationID: medID,
		MedicineName: name,
		Title:        "Medication Reminder",
		Body:         body,
		DueAt:        due,
		Actions:      Actions,
	}
}
