package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/medalert/internal/limiter"
	"github.com/and161185/medalert/internal/model"
)

type env struct {
	e     *echo.Echo
	auth  *AuthService
	store *Store
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st := NewStore()
	auth := NewAuthService(st, []byte("test-key"), time.Hour, limiter.NewMemory(time.Minute, 3, time.Minute))
	require.NoError(t, Seed(context.Background(), auth))
	return &env{e: New(auth, st, zaptest.NewLogger(t)).Handler(), auth: auth, store: st}
}

func (v *env) do(t *testing.T, method, path, token string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	v.e.ServeHTTP(rec, req)
	return rec.Code, rec.Body.Bytes()
}

func (v *env) login(t *testing.T) model.AuthResponse {
	t.Helper()
	code, raw := v.do(t, http.MethodPost, "/api/auth/login", "", model.LoginRequest{
		Email: DemoEmail, Password: DemoPassword, Role: model.RolePatient,
	})
	require.Equal(t, http.StatusOK, code, string(raw))
	var resp model.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

type dataBody[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
}

func decodeBody[T any](t *testing.T, raw []byte) dataBody[T] {
	t.Helper()
	var b dataBody[T]
	require.NoError(t, json.Unmarshal(raw, &b), string(raw))
	return b
}

func TestLogin_ReturnsTokenAndSeededPatient(t *testing.T) {
	v := newEnv(t)
	resp := v.login(t)
	require.NotEmpty(t, resp.Token)
	require.Equal(t, "Demo Patient", resp.User.Name)
	require.Len(t, resp.User.CurrentMedications, 2)
	require.NotEmpty(t, resp.User.CurrentMedications[0].ID)
}

func TestLogin_BadPasswordThenRateLimited(t *testing.T) {
	v := newEnv(t)
	bad := model.LoginRequest{Email: DemoEmail, Password: "nope", Role: model.RolePatient}

	code, raw := v.do(t, http.MethodPost, "/api/auth/login", "", bad)
	require.Equal(t, http.StatusUnauthorized, code)
	require.Equal(t, "Invalid credentials", decodeBody[any](t, raw).Message)

	v.do(t, http.MethodPost, "/api/auth/login", "", bad)
	code, _ = v.do(t, http.MethodPost, "/api/auth/login", "", bad)
	require.Equal(t, http.StatusTooManyRequests, code)

	code, _ = v.do(t, http.MethodPost, "/api/auth/login", "", model.LoginRequest{Email: DemoEmail, Password: DemoPassword})
	require.Equal(t, http.StatusTooManyRequests, code)
}

func TestRegister(t *testing.T) {
	v := newEnv(t)
	req := model.RegisterRequest{Name: "Ann", Email: "ann@x.com", Password: "pw", Role: model.RolePatient}

	code, raw := v.do(t, http.MethodPost, "/api/auth/register", "", req)
	require.Equal(t, http.StatusCreated, code, string(raw))
	var resp model.AuthResponse
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, "ann@x.com", resp.User.Email)
	require.Empty(t, resp.User.CurrentMedications)

	code, _ = v.do(t, http.MethodPost, "/api/auth/register", "", req)
	require.Equal(t, http.StatusConflict, code)

	req.Email, req.Role = "doc@x.com", "doctor"
	code, _ = v.do(t, http.MethodPost, "/api/auth/register", "", req)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestPatientRoutes_RequireOwnToken(t *testing.T) {
	v := newEnv(t)
	resp := v.login(t)
	id := resp.User.ID

	code, _ := v.do(t, http.MethodGet, "/api/patients/"+id, "", nil)
	require.Equal(t, http.StatusUnauthorized, code)
	code, _ = v.do(t, http.MethodGet, "/api/patients/"+id, "garbage", nil)
	require.Equal(t, http.StatusUnauthorized, code)

	code, raw := v.do(t, http.MethodGet, "/api/patients/"+id, resp.Token, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, id, decodeBody[model.Patient](t, raw).Data.ID)

	code, _ = v.do(t, http.MethodGet, "/api/patients/someone-else", resp.Token, nil)
	require.Equal(t, http.StatusForbidden, code)
}

func TestMedicineRoutes(t *testing.T) {
	v := newEnv(t)
	resp := v.login(t)
	tok, id := resp.Token, resp.User.ID

	code, raw := v.do(t, http.MethodPut, "/api/patients/medicines/1", tok, map[string]any{"dosage": "850mg", "timing": []string{"07:30"}})
	require.Equal(t, http.StatusOK, code, string(raw))
	m := decodeBody[model.Medication](t, raw).Data
	require.Equal(t, "Metformin", m.Name)
	require.Equal(t, "850mg", m.Dosage)
	require.Equal(t, []string{"07:30"}, m.Timing)

	code, _ = v.do(t, http.MethodPut, "/api/patients/medicines/0", tok, map[string]any{"timing": []string{"7am"}})
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = v.do(t, http.MethodPost, "/api/patients/"+id+"/medicines/0/adherence", tok,
		model.AdherenceRequest{Taken: true, Timestamp: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC).UnixMilli()})
	require.Equal(t, http.StatusOK, code)

	p, err := v.store.Patient(id)
	require.NoError(t, err)
	require.Len(t, p.CurrentMedications[0].Adherence, 1)
	require.NotNil(t, p.CurrentMedications[0].LastTaken)

	code, _ = v.do(t, http.MethodDelete, "/api/patients/medicines/0", tok, nil)
	require.Equal(t, http.StatusOK, code)
	code, raw = v.do(t, http.MethodDelete, "/api/patients/medicines/5", tok, nil)
	require.Equal(t, http.StatusNotFound, code)
	require.NotEmpty(t, decodeBody[any](t, raw).Message)

	p, _ = v.store.Patient(id)
	require.Len(t, p.CurrentMedications, 1)
	require.Equal(t, "Metformin", p.CurrentMedications[0].Name)
}

func TestNotificationRoutes(t *testing.T) {
	v := newEnv(t)
	resp := v.login(t)
	tok, id := resp.Token, resp.User.ID

	req := model.SetTimingsRequest{
		MedicineName: "Aspirin", Dosage: "100mg",
		NotificationTimes: []model.ReminderTime{{Time: "08:00", IsActive: true}, {Time: "08:00"}},
	}
	code, raw := v.do(t, http.MethodPost, "/api/medicine-notifications", tok, req)
	require.Equal(t, http.StatusCreated, code, string(raw))
	first := decodeBody[model.MedicineNotification](t, raw).Data
	require.Len(t, first.NotificationTimes, 1)

	req.NotificationTimes = []model.ReminderTime{{Time: "09:00"}}
	code, raw = v.do(t, http.MethodPost, "/api/medicine-notifications", tok, req)
	require.Equal(t, http.StatusCreated, code)
	require.Equal(t, first.ID, decodeBody[model.MedicineNotification](t, raw).Data.ID)

	code, raw = v.do(t, http.MethodGet, "/api/medicine-notifications/patient/"+id, tok, nil)
	require.Equal(t, http.StatusOK, code)
	list := decodeBody[[]model.MedicineNotification](t, raw).Data
	require.Len(t, list, 1)
	require.Equal(t, "09:00", list[0].NotificationTimes[0].Time)

	req.NotificationTimes = nil
	code, _ = v.do(t, http.MethodPost, "/api/medicine-notifications", tok, req)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestCaretakerRoutes(t *testing.T) {
	v := newEnv(t)
	resp := v.login(t)
	tok, id := resp.Token, resp.User.ID

	code, raw := v.do(t, http.MethodGet, "/api/patients/caretakers?search=bob", tok, nil)
	require.Equal(t, http.StatusOK, code)
	cs := decodeBody[[]model.Caretaker](t, raw).Data
	require.Len(t, cs, 1)

	code, _ = v.do(t, http.MethodPost, "/api/patients/assign-caretaker", tok, model.AssignCaretakerRequest{CaretakerUserID: "missing"})
	require.Equal(t, http.StatusNotFound, code)

	code, _ = v.do(t, http.MethodPost, "/api/patients/assign-caretaker", tok, model.AssignCaretakerRequest{CaretakerUserID: cs[0].UserID})
	require.Equal(t, http.StatusOK, code)

	p, _ := v.store.Patient(id)
	require.Equal(t, "Bob Carer", p.SelectedCaretaker.CaretakerName)
	require.Len(t, p.CaretakerApprovals, 1)
	require.Equal(t, model.ApprovalPending, p.CaretakerApprovals[0].Status)

	decision := model.ApprovalDecision{CaretakerID: cs[0].ID, Status: model.ApprovalApproved}
	code, raw = v.do(t, http.MethodPut, "/api/caretakers/approvals/"+id, tok, decision)
	require.Equal(t, http.StatusOK, code, string(raw))
	require.Equal(t, model.ApprovalApproved, decodeBody[model.CaretakerApproval](t, raw).Data.Status)

	code, _ = v.do(t, http.MethodPut, "/api/caretakers/approvals/"+id, tok, decision)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestBearerToken(t *testing.T) {
	for in, want := range map[string]string{
		"Bearer abc":   "abc",
		"bearer  abc ": "abc",
		"Basic abc":    "",
		"Bearer ":      "",
		"":             "",
	} {
		got, ok := bearerToken(in)
		require.Equal(t, want, got, in)
		require.Equal(t, want != "", ok, in)
	}
}

func TestRecover_Returns500(t *testing.T) {
	e := echo.New()
	e.Use(Recover(zaptest.NewLogger(t)))
	e.GET("/boom", func(echo.Context) error { panic("boom") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}
