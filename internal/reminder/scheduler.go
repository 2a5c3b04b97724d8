package reminder

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/errs"
	"github.com/and161185/medalert/internal/model"
)

// ErrNoPendingReminder is returned by Respond for a key with no unanswered firing.
var ErrNoPendingReminder = errors.New("reminder: no pending reminder")

type slot struct {
	key          uuid.UUID
	medID        string
	name         string
	dosage       string
	instructions string
	at           model.TimeOfDay
	due          time.Time
	timer        Timer
}

type firing struct {
	medID string
	name  string
	due   time.Time
}

// answer is a responded firing, kept until the slot fires again or leaves the schedule.
type answer struct {
	firing
	taken bool
	at    time.Time
}

// Scheduler arms reminders for a patient's medication timings and handles the answers.
type Scheduler struct {
	mu       sync.Mutex
	clock    Clock
	notifier Notifier
	recorder Recorder
	log      *zap.Logger

	gen     uint64
	slots   map[string]*slot
	pending map[uuid.UUID]firing
	answers map[uuid.UUID]answer
	events  chan AdherenceEvent
	closed  bool
}

type Option func(*Scheduler)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithEventBuffer sets the capacity of the Events channel.
func WithEventBuffer(n int) Option {
	return func(s *Scheduler) { s.events = make(chan AdherenceEvent, n) }
}

// NewScheduler returns an idle scheduler. Call Sync to arm reminders.
func NewScheduler(n Notifier, r Recorder, opts ...Option) *Scheduler {
	s := &Scheduler{
		clock:    WallClock(),
		notifier: n,
		recorder: r,
		log:      zap.NewNop(),
		slots:    map[string]*slot{},
		pending:  map[uuid.UUID]firing{},
		answers:  map[uuid.UUID]answer{},
		events:   make(chan AdherenceEvent, 16),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Events yields one event per answered reminder. Events are dropped when nobody reads.
func (s *Scheduler) Events() <-chan AdherenceEvent { return s.events }

// Sync replaces every scheduled slot with the timings of p's medications.
// Unanswered notifications of medications no longer present are dismissed and their
// answers forgotten.
func (s *Scheduler) Sync(p model.Patient) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.gen++
	now := s.clock.Now()
	keep := map[uuid.UUID]bool{}

	for _, m := range p.CurrentMedications {
		if m.ID == "" {
			s.log.Warn("medication without id skipped", zap.String("name", m.Name))
			continue
		}
		key := NotificationKey(m.ID, m.Name)
		keep[key] = true
		for _, raw := range m.Timing {
			at, err := model.ParseTimeOfDay(raw)
			if err != nil {
				s.log.Warn("invalid timing skipped",
					zap.String("medication", m.ID), zap.String("timing", raw), zap.Error(err))
				continue
			}
			id := m.ID + "@" + at.String()
			if _, dup := s.slots[id]; dup {
				continue
			}
			sl := &slot{
				key:          key,
				medID:        m.ID,
				name:         m.Name,
				dosage:       m.Dosage,
				instructions: m.Instructions,
				at:           at,
			}
			s.slots[id] = sl
			s.armLocked(id, sl, at.Next(now))
		}
	}

	for key := range s.answers {
		if !keep[key] {
			delete(s.answers, key)
		}
	}
	var stale []uuid.UUID
	for key := range s.pending {
		if !keep[key] {
			stale = append(stale, key)
			delete(s.pending, key)
		}
	}
	armed := len(s.slots)
	s.mu.Unlock()

	for _, key := range stale {
		if err := s.notifier.Cancel(key); err != nil {
			s.log.Warn("cancel notification", zap.Stringer("key", key), zap.Error(err))
		}
	}
	s.log.Debug("reminders synced", zap.Int("slots", armed), zap.Int("dismissed", len(stale)))
}

func (s *Scheduler) armLocked(id string, sl *slot, due time.Time) {
	gen := s.gen
	sl.due = due
	sl.timer = s.clock.AfterFunc(due.Sub(s.clock.Now()), func() { s.fire(id, gen) })
}

func (s *Scheduler) stopLocked() {
	for id, sl := range s.slots {
		if sl.timer != nil {
			sl.timer.Stop()
		}
		delete(s.slots, id)
	}
}

// fire shows the notification of one slot and arms its next occurrence.
func (s *Scheduler) fire(id string, gen uint64) {
	s.mu.Lock()
	sl, ok := s.slots[id]
	if !ok || gen != s.gen || s.closed {
		s.mu.Unlock()
		return
	}
	due := sl.due
	s.pending[sl.key] = firing{medID: sl.medID, name: sl.name, due: due}
	delete(s.answers, sl.key)
	n := notificationFor(sl.key, sl.medID, sl.name, sl.dosage, sl.instructions, due)

	next := s.clock.Now()
	if next.Before(due) {
		next = due
	}
	s.armLocked(id, sl, sl.at.Next(next))
	s.mu.Unlock()

	if err := s.notifier.Notify(n); err != nil {
		s.log.Warn("notify", zap.String("medication", n.MedicationID), zap.Error(err))
	}
}

// Respond records the answer to a fired reminder, dismisses its notification and emits an event.
// Recording is not retried; a failure is logged and returned.
func (s *Scheduler) Respond(ctx context.Context, key uuid.UUID, taken bool) error {
	const op = "respond"

	s.mu.Lock()
	f, ok := s.pending[key]
	now := s.clock.Now()
	if ok {
		delete(s.pending, key)
		s.answers[key] = answer{firing: f, taken: taken, at: now}
	}
	s.mu.Unlock()
	if !ok {
		return errs.New(errs.KindInvalidInput, op, "No pending reminder", ErrNoPendingReminder)
	}

	if err := s.notifier.Cancel(key); err != nil {
		s.log.Warn("cancel notification", zap.Stringer("key", key), zap.Error(err))
	}

	ev := AdherenceEvent{Key: key, MedicationID: f.medID, MedicineName: f.name, Taken: taken, At: now}
	select {
	case s.events <- ev:
	default:
		s.log.Debug("adherence event dropped", zap.String("medication", f.medID))
	}

	if err := s.recorder.RecordAdherence(ctx, f.medID, taken, "", now); err != nil {
		s.log.Warn("record adherence from reminder",
			zap.String("medication", f.medID), zap.Bool("taken", taken), zap.Error(err))
		return err
	}
	s.log.Info("reminder answered", zap.String("medicine", f.name), zap.Bool("taken", taken))
	return nil
}

// Entries lists scheduled slots, unanswered firings and the latest answer of each
// notification, ordered by due time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.slots)+len(s.pending)+len(s.answers))
	for _, sl := range s.slots {
		out = append(out, Entry{
			Key: sl.key, MedicationID: sl.medID, MedicineName: sl.name,
			Time: sl.at.String(), Due: sl.due, State: Scheduled,
		})
	}
	for key, f := range s.pending {
		out = append(out, Entry{
			Key: key, MedicationID: f.medID, MedicineName: f.name,
			Time: f.due.Format("15:04"), Due: f.due, State: Fired,
		})
	}
	for key, a := range s.answers {
		out = append(out, Entry{
			Key: key, MedicationID: a.medID, MedicineName: a.name,
			Time: a.due.Format("15:04"), Due: a.due, State: Responded,
			Taken: a.taken, AnsweredAt: a.at,
		})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := a.Due.Compare(b.Due); c != 0 {
			return c
		}
		return int(a.State) - int(b.State)
	})
	return out
}

// Close stops every timer. Pending notifications are left as they are.
func (s *Scheduler) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.closed = true
}
