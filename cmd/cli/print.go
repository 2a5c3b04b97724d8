package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/and161185/medalert/internal/model"
	"github.com/and161185/medalert/internal/reminder"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func tsString(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func printProfile(w io.Writer, p model.Patient) {
	fmt.Fprintf(w, "%s <%s>\n", p.Name, p.Email)
	if p.Age > 0 || p.Gender != "" {
		fmt.Fprintf(w, "age %d, %s\n", p.Age, orDash(p.Gender))
	}
	if len(p.Allergies) > 0 {
		fmt.Fprintf(w, "allergies: %s\n", strings.Join(p.Allergies, ", "))
	}
	if c := p.SelectedCaretaker; c != nil {
		fmt.Fprintf(w, "caretaker: %s <%s>\n", c.CaretakerName, c.CaretakerEmail)
	}
	for _, a := range p.CaretakerApprovals {
		fmt.Fprintf(w, "  approval %s: %s\n", a.CaretakerID, a.Status)
	}
	fmt.Fprintf(w, "%d medication(s)\n", len(p.CurrentMedications))
}

func printMeds(w io.Writer, meds []model.Medication) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tDOSAGE\tTIMING\tLAST TAKEN\tDOSES")
	for _, m := range meds {
		taken := 0
		for _, a := range m.Adherence {
			if a.Taken {
				taken++
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\n",
			m.ID, m.Name, orDash(m.Dosage), orDash(strings.Join(m.Timing, ",")),
			tsString(m.LastTaken), taken, len(m.Adherence))
	}
	return tw.Flush()
}

func printNotifications(w io.Writer, ns []model.MedicineNotification) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MEDICINE\tDOSAGE\tTIMES\tACTIVE")
	for _, n := range ns {
		times := make([]string, 0, len(n.NotificationTimes))
		for _, t := range n.NotificationTimes {
			s := t.Time
			if t.Label != "" {
				s += " (" + t.Label + ")"
			}
			times = append(times, s)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%t\n", n.MedicineName, orDash(n.Dosage), strings.Join(times, ", "), n.IsActive)
	}
	return tw.Flush()
}

func printCaretakers(w io.Writer, cs []model.Caretaker) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER ID\tNAME\tEMAIL\tPHONE")
	for _, c := range cs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.UserID, c.Name, c.Email, orDash(c.Phone))
	}
	return tw.Flush()
}

func printEntries(w io.Writer, es []reminder.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DUE\tMEDICINE\tSTATE\tKEY")
	for _, e := range es {
		state := e.State.String()
		switch {
		case e.State == reminder.Responded && e.Taken:
			state += " (taken)"
		case e.State == reminder.Responded:
			state += " (missed)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Due.Local().Format("Mon 15:04"), e.MedicineName, state, e.Key)
	}
	return tw.Flush()
}

// parseFields turns "key=value" arguments into a medicine update. "timing" takes a comma list
// of HH:MM; other values are kept as strings.
func parseFields(args []string) (map[string]any, error) {
	out := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("field %q: want key=value", a)
		}
		if k == "timing" {
			out[k] = splitList(v)
			continue
		}
		out[k] = v
	}
	return out, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTimes builds reminder times from "08:00,20:00" and optional matching labels.
func parseTimes(times, labels string) ([]model.ReminderTime, error) {
	ts := splitList(times)
	var ls []string
	if labels != "" {
		ls = strings.Split(labels, ",")
		if len(ls) != len(ts) {
			return nil, fmt.Errorf("%d labels for %d times", len(ls), len(ts))
		}
	}
	out := make([]model.ReminderTime, len(ts))
	for i, t := range ts {
		out[i] = model.ReminderTime{Time: t, IsActive: true}
		if ls != nil {
			out[i].Label = strings.TrimSpace(ls[i])
		}
	}
	return out, nil
}
