package remote

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/model"
)

// maxBody bounds how much of a response is read.
const maxBody = 4 << 20

// HTTPClient talks JSON over HTTP(S) to the backend.
type HTTPClient struct {
	base *url.URL
	hc   *http.Client
	log  *zap.Logger
}

var _ Client = (*HTTPClient)(nil)

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option { return func(c *HTTPClient) { c.hc = hc } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *HTTPClient) { c.log = l } }

// New builds a client for baseURL, e.g. "https://api.medalert.example".
func New(baseURL string, opts ...Option) (*HTTPClient, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("remote: base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("remote: base url %q: want http or https", baseURL)
	}
	c := &HTTPClient{
		base: u,
		hc:   &http.Client{Timeout: 30 * time.Second},
		log:  zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewTransport returns an HTTP transport trusting caPath (PEM) or the system roots.
func NewTransport(caPath string, insecure bool) (*http.Transport, error) {
	t := http.DefaultTransport.(*http.Transport).Clone()
	switch {
	case insecure:
		t.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dev only
	case caPath != "":
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("bad CA cert")
		}
		t.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}
	return t, nil
}

type envelope[T any] struct {
	Data    *T     `json:"data"`
	Message string `json:"message"`
}

// do sends one request and decodes a 2xx body into out (when non-nil).
func (c *HTTPClient) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("remote: encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), rd)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return fmt.Errorf("remote: read %s %s: %w", method, path, err)
	}

	// только метаданные, без тел запросов
	c.log.Debug("http",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(raw, resp.StatusCode)}
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("remote: decode %s %s: %w", method, path, err)
	}
	return nil
}

func errorMessage(raw []byte, code int) string {
	var e struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return http.StatusText(code)
}

// data runs do with an enveloped response and requires the payload.
func data[T any](ctx context.Context, c *HTTPClient, method, path, token string, query url.Values, body any) (*T, error) {
	var env envelope[T]
	if err := c.do(ctx, method, path, token, query, body, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, ErrEmptyPayload
	}
	return env.Data, nil
}

func (c *HTTPClient) auth(ctx context.Context, path string, body any) (*model.AuthResponse, error) {
	var out model.AuthResponse
	if err := c.do(ctx, http.MethodPost, path, "", nil, body, &out); err != nil {
		return nil, err
	}
	if out.Token == "" || out.User == nil {
		return nil, ErrEmptyPayload
	}
	return &out, nil
}

func (c *HTTPClient) Login(ctx context.Context, req model.LoginRequest) (*model.AuthResponse, error) {
	return c.auth(ctx, "/api/auth/login", req)
}

func (c *HTTPClient) Register(ctx context.Context, req model.RegisterRequest) (*model.AuthResponse, error) {
	return c.auth(ctx, "/api/auth/register", req)
}

func (c *HTTPClient) GetPatientProfile(ctx context.Context, token, patientID string) (*model.Patient, error) {
	return data[model.Patient](ctx, c, http.MethodGet, "/api/patients/"+patientID, token, nil, nil)
}

func (c *HTTPClient) UpdatePatientProfile(ctx context.Context, token, patientID string, p model.Patient) (*model.Patient, error) {
	return data[model.Patient](ctx, c, http.MethodPut, "/api/patients/"+patientID, token, nil, p)
}

func (c *HTTPClient) UpdateMedicine(ctx context.Context, token string, index int, fields map[string]any) (*model.Medication, error) {
	return data[model.Medication](ctx, c, http.MethodPut, "/api/patients/medicines/"+strconv.Itoa(index), token, nil, fields)
}

func (c *HTTPClient) DeleteMedicine(ctx context.Context, token string, index int) error {
	return c.do(ctx, http.MethodDelete, "/api/patients/medicines/"+strconv.Itoa(index), token, nil, nil, nil)
}

func (c *HTTPClient) SetMedicineTimings(ctx context.Context, token string, req model.SetTimingsRequest) (*model.MedicineNotification, error) {
	return data[model.MedicineNotification](ctx, c, http.MethodPost, "/api/medicine-notifications", token, nil, req)
}

func (c *HTTPClient) GetMedicineNotifications(ctx context.Context, token, patientID string) ([]model.MedicineNotification, error) {
	out, err := data[[]model.MedicineNotification](ctx, c, http.MethodGet,
		"/api/medicine-notifications/patient/"+patientID, token, nil, nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *HTTPClient) RecordAdherence(ctx context.Context, token, patientID string, index int, req model.AdherenceRequest) error {
	path := fmt.Sprintf("/api/patients/%s/medicines/%d/adherence", patientID, index)
	return c.do(ctx, http.MethodPost, path, token, nil, req, nil)
}

func (c *HTTPClient) GetAvailableCaretakers(ctx context.Context, token, search string) ([]model.Caretaker, error) {
	var q url.Values
	if search != "" {
		q = url.Values{"search": {search}}
	}
	out, err := data[[]model.Caretaker](ctx, c, http.MethodGet, "/api/patients/caretakers", token, q, nil)
	if err != nil {
		return nil, err
	}
	return *out, nil
}

func (c *HTTPClient) AssignCaretaker(ctx context.Context, token, caretakerUserID string) error {
	return c.do(ctx, http.MethodPost, "/api/patients/assign-caretaker", token, nil,
		model.AssignCaretakerRequest{CaretakerUserID: caretakerUserID}, nil)
}
