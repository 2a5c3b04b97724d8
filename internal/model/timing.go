package model

import (
	"fmt"
	"time"

	"github.com/and161185/medalert/internal/errs"
)

// ReminderTime is one entry of a medicine's reminder schedule. Label is descriptive only.
type ReminderTime struct {
	Time     string `json:"time"`
	Label    string `json:"label"`
	IsActive bool   `json:"isActive"`
}

// TimeOfDay is a validated 24h wall-clock time.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay accepts strictly "HH:MM" with two-digit fields in 24h range.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if len(s) != 5 || s[2] != ':' {
		return TimeOfDay{}, fmt.Errorf("timing %q: want HH:MM: %w", s, errs.ErrInvalidInput)
	}
	h, okH := twoDigits(s[0], s[1])
	m, okM := twoDigits(s[3], s[4])
	if !okH || !okM || h > 23 || m > 59 {
		return TimeOfDay{}, fmt.Errorf("timing %q: want HH:MM in 24h range: %w", s, errs.ErrInvalidInput)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

func twoDigits(a, b byte) (int, bool) {
	if a < '0' || a > '9' || b < '0' || b > '9' {
		return 0, false
	}
	return int(a-'0')*10 + int(b-'0'), true
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// Next returns the first occurrence of t strictly after the given instant, in its location.
func (t TimeOfDay) Next(after time.Time) time.Time {
	y, mo, d := after.Date()
	at := time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, after.Location())
	if !at.After(after) {
		at = time.Date(y, mo, d+1, t.Hour, t.Minute, 0, 0, after.Location())
	}
	return at
}

// NormalizeReminderTimes validates every time and drops later duplicates, keeping order.
func NormalizeReminderTimes(in []ReminderTime) ([]ReminderTime, error) {
	out := make([]ReminderTime, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for i, rt := range in {
		tod, err := ParseTimeOfDay(rt.Time)
		if err != nil {
			return nil, fmt.Errorf("notificationTimes[%d]: %w", i, err)
		}
		key := tod.String()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		rt.Time = key
		out = append(out, rt)
	}
	return out, nil
}

// ValidateTimings checks a medication timing list.
func ValidateTimings(timing []string) error {
	for i, s := range timing {
		if _, err := ParseTimeOfDay(s); err != nil {
			return fmt.Errorf("timing[%d]: %w", i, err)
		}
	}
	return nil
}
