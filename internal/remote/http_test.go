package remote

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/medalert/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL, WithLogger(zaptest.NewLogger(t)), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNew_RejectsBadScheme(t *testing.T) {
	t.Parallel()
	_, err := New("ftp://x")
	require.Error(t, err)
	_, err = New("http://localhost:8080/")
	require.NoError(t, err)
}

func TestLogin_SendsRoleAndDecodes(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/auth/login", r.URL.Path)
		require.Empty(t, r.Header.Get("Authorization"))
		var req model.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, model.LoginRequest{Email: "a@x.com", Password: "p", Role: "patient"}, req)
		writeJSON(w, http.StatusOK, model.AuthResponse{Token: "tok", User: &model.Patient{ID: "p1"}})
	})

	out, err := c.Login(context.Background(), model.LoginRequest{Email: "a@x.com", Password: "p", Role: model.RolePatient})
	require.NoError(t, err)
	require.Equal(t, "tok", out.Token)
	require.Equal(t, "p1", out.User.ID)
}

func TestLogin_MissingBodyIsEmptyPayload(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	_, err := c.Login(context.Background(), model.LoginRequest{})
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestStatusError_CarriesMessage(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Medicine not found"})
	})
	err := c.DeleteMedicine(context.Background(), "tok", 7)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusNotFound, se.Code)
	require.Equal(t, "Medicine not found", se.Message)
}

func TestStatusError_FallsBackToStatusText(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>oops</html>"))
	})
	_, err := c.GetAvailableCaretakers(context.Background(), "tok", "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, "Bad Gateway", se.Message)
}

func TestGetPatientProfile_BearerAndEnvelope(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/api/patients/p1", r.URL.Path)
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{"data": model.Patient{ID: "p1", Name: "Ann"}, "message": "ok"})
	})
	p, err := c.GetPatientProfile(context.Background(), "tok", "p1")
	require.NoError(t, err)
	require.Equal(t, "Ann", p.Name)
}

func TestEnvelope_NullDataIsEmptyPayload(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"data": nil, "message": "nothing"})
	})
	_, err := c.GetMedicineNotifications(context.Background(), "tok", "p1")
	require.ErrorIs(t, err, ErrEmptyPayload)
}

func TestRecordAdherence_PathAndBody(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/patients/p1/medicines/2/adherence", r.URL.Path)
		var body model.AdherenceRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, model.AdherenceRequest{Taken: true, Timestamp: 1700000000000, Notes: "late"}, body)
		writeJSON(w, http.StatusOK, map[string]string{"message": "recorded"})
	})
	err := c.RecordAdherence(context.Background(), "tok", "p1", 2,
		model.AdherenceRequest{Taken: true, Timestamp: 1700000000000, Notes: "late"})
	require.NoError(t, err)
}

func TestGetAvailableCaretakers_SearchQuery(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "bob", r.URL.Query().Get("search"))
		writeJSON(w, http.StatusOK, map[string]any{"data": []model.Caretaker{{UserID: "c1", Name: "Bob"}}})
	})
	out, err := c.GetAvailableCaretakers(context.Background(), "tok", "bob")
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, "Bob", out[0].Name)
}

func TestTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url)
	require.NoError(t, err)
	err = c.AssignCaretaker(context.Background(), "tok", "c1")
	require.Error(t, err)
	var se *StatusError
	require.False(t, errors.As(err, &se))
}

func TestDecodeFailure(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{not json"))
	})
	_, err := c.UpdateMedicine(context.Background(), "tok", 0, map[string]any{"dosage": "1"})
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrEmptyPayload)
}

func TestNewTransport_Variants(t *testing.T) {
	t.Parallel()

	tr, err := NewTransport("", true)
	require.NoError(t, err)
	require.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	_, err = NewTransport("", false)
	require.NoError(t, err)

	bad := filepath.Join(t.TempDir(), "bad.pem")
	require.NoError(t, os.WriteFile(bad, []byte("not pem"), 0o600))
	_, err = NewTransport(bad, false)
	require.Error(t, err)

	_, err = NewTransport(filepath.Join(t.TempDir(), "missing.pem"), false)
	require.Error(t, err)
}
