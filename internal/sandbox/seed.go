package sandbox

import (
	"context"
	"fmt"

	"github.com/and161185/medalert/internal/model"
)

// Demo credentials created by Seed.
const (
	DemoEmail    = "demo@medalert.local"
	DemoPassword = "demo1234"
)

// Seed adds two caretakers and a demo patient with a morning and an evening medication.
func Seed(ctx context.Context, auth *AuthService) error {
	st := auth.store
	st.AddCaretaker(model.Caretaker{Name: "Bob Carer", Email: "bob@medalert.local", Phone: "+1-555-0100"})
	st.AddCaretaker(model.Caretaker{Name: "Carol Nurse", Email: "carol@medalert.local", Phone: "+1-555-0101"})

	resp, err := auth.Register(ctx, model.RegisterRequest{
		Name:     "Demo Patient",
		Email:    DemoEmail,
		Password: DemoPassword,
		Role:     model.RolePatient,
		Age:      67,
		Gender:   "female",
	})
	if err != nil {
		return fmt.Errorf("seed patient: %w", err)
	}
	p := *resp.User
	p.Allergies = []string{"Penicillin"}
	p.CurrentMedications = []model.Medication{
		{Name: "Aspirin", Dosage: "100mg", Frequency: "Once daily", Timing: []string{"08:00"}, FoodTiming: "After food"},
		{Name: "Metformin", Dosage: "500mg", Frequency: "Twice daily", Timing: []string{"08:00", "20:00"}, Instructions: "Take with water"},
	}
	if _, err := st.ReplacePatient(p.ID, p); err != nil {
		return fmt.Errorf("seed medications: %w", err)
	}
	return nil
}
