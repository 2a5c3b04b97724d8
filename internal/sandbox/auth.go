package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/medalert/internal/crypto"
	"github.com/and161185/medalert/internal/errs"
	"github.com/and161185/medalert/internal/limiter"
	"github.com/and161185/medalert/internal/model"
)

// AuthService registers patients and issues access tokens.
type AuthService struct {
	store     *Store
	signKey   []byte
	accessTTL time.Duration
	lim       limiter.Limiter
	now       func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(store *Store, signKey []byte, accessTTL time.Duration, lim limiter.Limiter) *AuthService {
	return &AuthService{store: store, signKey: signKey, accessTTL: accessTTL, lim: lim, now: time.Now}
}

// Register creates a patient account. Only the patient role is served here.
func (s *AuthService) Register(_ context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return model.AuthResponse{}, fmt.Errorf("name, email and password are required: %w", errs.ErrInvalidInput)
	}
	if req.Role != "" && req.Role != model.RolePatient {
		return model.AuthResponse{}, fmt.Errorf("role %q: %w", req.Role, errs.ErrInvalidInput)
	}
	hash, err := pkgcrypto.EncodePassword(req.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}
	profile := model.Patient{
		Name:             req.Name,
		PhoneNumber:      req.PhoneNumber,
		DateOfBirth:      req.DateOfBirth,
		Age:              req.Age,
		Gender:           req.Gender,
		EmergencyContact: req.EmergencyContact,
	}
	acc, p, err := s.store.CreatePatientAccount(req.Email, hash, profile)
	if err != nil {
		return model.AuthResponse{}, err
	}
	tok, _, err := s.issueAccessToken(acc.ID)
	if err != nil {
		return model.AuthResponse{}, err
	}
	return model.AuthResponse{Token: tok, User: &p, Message: "Registration successful"}, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthService) LoginWithIP(ctx context.Context, req model.LoginRequest, ip string) (model.AuthResponse, error) {
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, req.Email, ipHash)
	if err != nil {
		return model.AuthResponse{}, err
	}
	if !allowed {
		return model.AuthResponse{}, errs.ErrRateLimited
	}

	acc, err := s.store.AccountByEmail(req.Email)
	ok := false
	if err == nil {
		ok, err = pkgcrypto.VerifyPassword(req.Password, acc.PwdHash)
	}
	if err != nil || !ok || (req.Role != "" && req.Role != acc.Role) {
		if blocked, _, ferr := s.lim.Failure(ctx, req.Email, ipHash); ferr == nil && blocked {
			return model.AuthResponse{}, errs.ErrRateLimited
		}
		// unknown user and wrong password look the same
		return model.AuthResponse{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, req.Email, ipHash)

	p, err := s.store.Patient(acc.PatientID)
	if err != nil {
		return model.AuthResponse{}, err
	}
	tok, _, err := s.issueAccessToken(acc.ID)
	if err != nil {
		return model.AuthResponse{}, err
	}
	return model.AuthResponse{Token: tok, User: &p, Message: "Login successful"}, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthService) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// Authenticate verifies an HS256 bearer token and returns its account.
func (s *AuthService) Authenticate(token string) (Account, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithLeeway(30*time.Second), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return Account{}, errs.ErrUnauthorized
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return Account{}, errs.ErrUnauthorized
	}
	acc, err := s.store.AccountByID(id)
	if err != nil {
		return Account{}, errs.ErrUnauthorized
	}
	return acc, nil
}
