// Package sandbox is an in-memory implementation of the MedAlert REST backend for local runs and tests.
package sandbox

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/errs"
	"github.com/and161185/medalert/internal/model"
)

// Server wires the auth service and store into echo handlers.
type Server struct {
	auth  *AuthService
	store *Store
	log   *zap.Logger
}

// New constructs the HTTP layer.
func New(auth *AuthService, store *Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{auth: auth, store: store, log: log}
}

// Handler returns an echo instance with every route registered.
func (s *Server) Handler() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(Recover(s.log), Logging(s.log))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.POST("/api/auth/login", s.login)
	e.POST("/api/auth/register", s.register)

	api := e.Group("/api", Bearer(s.auth))
	api.GET("/patients/caretakers", s.searchCaretakers)
	api.POST("/patients/assign-caretaker", s.assignCaretaker)
	api.PUT("/patients/medicines/:index", s.updateMedicine)
	api.DELETE("/patients/medicines/:index", s.deleteMedicine)
	api.GET("/patients/:id", s.getPatient)
	api.PUT("/patients/:id", s.updatePatient)
	api.POST("/patients/:id/medicines/:index/adherence", s.recordAdherence)
	api.POST("/medicine-notifications", s.setTimings)
	api.GET("/medicine-notifications/patient/:id", s.listNotifications)
	api.PUT("/caretakers/approvals/:patientId", s.decideApproval)
	return e
}

// httpError maps sentinel errors onto statuses with a display message.
func (s *Server) httpError(err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, errs.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, errs.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "Access denied")
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, errs.ErrAlreadyExists):
		return echo.NewHTTPError(http.StatusConflict, "User already exists")
	case errors.Is(err, errs.ErrVersionConflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, errs.ErrRateLimited):
		return echo.NewHTTPError(http.StatusTooManyRequests, "Too many login attempts")
	default:
		s.log.Error("handler", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal")
	}
}

func decode(c echo.Context, v any) error {
	if err := json.NewDecoder(c.Request().Body).Decode(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return nil
}

func data(c echo.Context, code int, v any) error {
	return c.JSON(code, echo.Map{"data": v})
}

func message(c echo.Context, msg string) error {
	return c.JSON(http.StatusOK, echo.Map{"message": msg})
}

func account(c echo.Context) Account {
	a, _ := AccountFromCtx(c.Request().Context())
	return a
}

// ownPatient resolves a path id, allowing only the caller's own profile.
func ownPatient(c echo.Context, param string) (string, error) {
	id := c.Param(param)
	if id != account(c).PatientID {
		return "", errs.ErrForbidden
	}
	return id, nil
}

func indexParam(c echo.Context) (int, error) {
	i, err := strconv.Atoi(c.Param("index"))
	if err != nil || i < 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid medicine index")
	}
	return i, nil
}

func (s *Server) login(c echo.Context) error {
	var req model.LoginRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	resp, err := s.auth.LoginWithIP(c.Request().Context(), req, c.RealIP())
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) register(c echo.Context) error {
	var req model.RegisterRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	resp, err := s.auth.Register(c.Request().Context(), req)
	if err != nil {
		return s.httpError(err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) getPatient(c echo.Context) error {
	id, err := ownPatient(c, "id")
	if err != nil {
		return s.httpError(err)
	}
	p, err := s.store.Patient(id)
	if err != nil {
		return s.httpError(err)
	}
	return data(c, http.StatusOK, p)
}

func (s *Server) updatePatient(c echo.Context) error {
	id, err := ownPatient(c, "id")
	if err != nil {
		return s.httpError(err)
	}
	var in model.Patient
	if err := decode(c, &in); err != nil {
		return err
	}
	p, err := s.store.ReplacePatient(id, in)
	if err != nil {
		return s.httpError(err)
	}
	return data(c, http.StatusOK, p)
}

func (s *Server) updateMedicine(c echo.Context) error {
	idx, err := indexParam(c)
	if err != nil {
		return err
	}
	var fields map[string]any
	if err := decode(c, &fields); err != nil {
		return err
	}
	m, err := s.store.UpdateMedicine(account(c).PatientID, idx, fields)
	if err != nil {
		return s.httpError(err)
	}
	return data(c, http.StatusOK, m)
}

func (s *Server) deleteMedicine(c echo.Context) error {
	idx, err := indexParam(c)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMedicine(account(c).PatientID, idx); err != nil {
		return s.httpError(err)
	}
	return message(c, "Medicine deleted successfully")
}

func (s *Server) recordAdherence(c echo.Context) error {
	id, err := ownPatient(c, "id")
	if err != nil {
		return s.httpError(err)
	}
	idx, err := indexParam(c)
	if err != nil {
		return err
	}
	var req model.AdherenceRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	at := time.Now().UTC()
	if req.Timestamp > 0 {
		at = time.UnixMilli(req.Timestamp).UTC()
	}
	rec := model.AdherenceRecord{Timestamp: at, Taken: req.Taken, Notes: req.Notes, RecordedBy: model.RolePatient}
	if err := s.store.AddAdherence(id, idx, rec); err != nil {
		return s.httpError(err)
	}
	return message(c, "Adherence recorded successfully")
}

func (s *Server) setTimings(c echo.Context) error {
	var req model.SetTimingsRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	times, err := model.NormalizeReminderTimes(req.NotificationTimes)
	if err != nil {
		return s.httpError(err)
	}
	if req.MedicineName == "" || len(times) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "medicineName and notificationTimes are required")
	}
	req.NotificationTimes = times
	n, err := s.store.UpsertNotification(account(c).PatientID, req)
	if err != nil {
		return s.httpError(err)
	}
	return data(c, http.StatusCreated, n)
}

func (s *Server) listNotifications(c echo.Context) error {
	id, err := ownPatient(c, "id")
	if err != nil {
		return s.httpError(err)
	}
	return data(c, http.StatusOK, s.store.Notifications(id))
}

func (s *Server) searchCaretakers(c echo.Context) error {
	return data(c, http.StatusOK, s.store.Caretakers(c.QueryParam("search")))
}

func (s *Server) assignCaretaker(c echo.Context) error {
	var req model.AssignCaretakerRequest
	if err := decode(c, &req); err != nil {
		return err
	}
	if req.CaretakerUserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "caretakerUserId is required")
	}
	if _, err := s.store.AssignCaretaker(account(c).PatientID, req.CaretakerUserID); err != nil {
		return s.httpError(err)
	}
	return message(c, "Caretaker assignment requested")
}

// decideApproval lets a caretaker answer a pending request. The sandbox has no caretaker
// accounts, so any authenticated caller may decide.
func (s *Server) decideApproval(c echo.Context) error {
	var req model.ApprovalDecision
	if err := decode(c, &req); err != nil {
		return err
	}
	a, err := s.store.DecideApproval(c.Param("patientId"), req.CaretakerID, req.Status)
	if err != nil {
		return s.httpError(err)
	}
	return data(c, http.StatusOK, a)
}
