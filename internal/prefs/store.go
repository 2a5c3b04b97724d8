// Package prefs is the durable cache of the auth token and the last patient snapshot.
package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/and161185/medalert/internal/crypto/clientcrypto"
	"github.com/and161185/medalert/internal/model"
	"github.com/and161185/medalert/internal/observe"
)

// entrySession holds token, expiry and snapshot together so they are replaced in one write.
const entrySession = "session"

type sessionFile struct {
	AccessToken string         `json:"access_token,omitempty"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Patient     *model.Patient `json:"patient,omitempty"`
}

// Store caches the session. Reads are safe from any goroutine; writes are serialized
// and become visible to readers only after the backend has persisted them.
// Values delivered by the Watch methods are shared and must be treated as read-only.
type Store struct {
	mu      sync.Mutex // serializes writes
	backend Backend
	log     *zap.Logger
	now     func() time.Time

	expires time.Time
	token   *observe.Value[*string]
	patient *observe.Value[*model.Patient]
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Store) { s.log = l } }

// WithClock overrides time.Now for expiry checks.
func WithClock(now func() time.Time) Option { return func(s *Store) { s.now = now } }

// New loads the current entries from backend. Unreadable entries are dropped with a warning.
func New(backend Backend, opts ...Option) (*Store, error) {
	s := &Store{
		backend: backend,
		log:     zap.NewNop(),
		now:     time.Now,
		token:   observe.NewValue[*string](nil),
		patient: observe.NewValue[*model.Patient](nil),
	}
	for _, o := range opts {
		o(s)
	}

	var sf sessionFile
	switch err := s.load(entrySession, &sf); {
	case errors.Is(err, ErrNoEntry):
		return s, nil
	case err != nil:
		return nil, err
	}
	if sf.AccessToken != "" {
		s.token.Set(&sf.AccessToken)
		s.expires = sf.ExpiresAt
	}
	if sf.Patient != nil {
		s.patient.Set(sf.Patient)
	}
	return s, nil
}

// OpenFile opens the sealed file store in dir. With a passphrase the key is derived with
// Argon2id from it; otherwise a random device key is kept in dir/device.key.
func OpenFile(dir, passphrase string, opts ...Option) (*Store, error) {
	var key []byte
	if passphrase != "" {
		salt, err := clientcrypto.LoadOrCreateSalt(filepath.Join(dir, "key.salt"))
		if err != nil {
			return nil, fmt.Errorf("prefs: salt: %w", err)
		}
		key = clientcrypto.DeriveKey([]byte(passphrase), salt)
	} else {
		k, err := clientcrypto.LoadOrCreateKey(filepath.Join(dir, "device.key"))
		if err != nil {
			return nil, fmt.Errorf("prefs: device key: %w", err)
		}
		key = k
	}
	sealer, err := clientcrypto.NewSealer(key)
	if err != nil {
		return nil, err
	}
	return New(NewFile(dir, sealer), opts...)
}

// load decodes one entry; corrupt or foreign entries count as missing.
func (s *Store) load(name string, v any) error {
	b, err := s.backend.Get(name)
	if errors.Is(err, ErrNoEntry) {
		return ErrNoEntry
	}
	if errors.Is(err, ErrCorrupt) {
		s.log.Warn("prefs entry unreadable, ignoring", zap.String("entry", name), zap.Error(err))
		return ErrNoEntry
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		s.log.Warn("prefs entry undecodable, ignoring", zap.String("entry", name), zap.Error(err))
		return ErrNoEntry
	}
	return nil
}

// TokenExpiry reads the exp claim of a JWT without verifying it. Zero when absent or unparsable.
func TokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	_, _, err := jwt.NewParser().ParseUnverified(token, &claims)
	if err != nil || claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}

// persistLocked writes the whole session entry. The caller publishes the new values
// only after it succeeds.
func (s *Store) persistLocked(token *string, exp time.Time, p *model.Patient) error {
	sf := sessionFile{ExpiresAt: exp, Patient: p}
	if token != nil {
		sf.AccessToken = *token
	}
	b, err := json.Marshal(sf)
	if err != nil {
		return err
	}
	return s.backend.Put(entrySession, b)
}

// SaveSession writes token and patient snapshot as one write.
func (s *Store) SaveSession(sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := sess.ExpiresAt
	if exp.IsZero() {
		exp = TokenExpiry(sess.Token)
	}
	tok := sess.Token
	p := sess.Patient.Clone()
	if err := s.persistLocked(&tok, exp, &p); err != nil {
		return fmt.Errorf("prefs: save session: %w", err)
	}
	s.expires = exp
	s.token.Set(&tok)
	s.patient.Set(&p)
	return nil
}

// SaveToken replaces the cached bearer token, keeping the snapshot.
func (s *Store) SaveToken(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp := TokenExpiry(token)
	if err := s.persistLocked(&token, exp, s.patient.Get()); err != nil {
		return fmt.Errorf("prefs: save token: %w", err)
	}
	s.expires = exp
	s.token.Set(&token)
	return nil
}

// SaveSnapshot replaces the cached patient, keeping the token.
func (s *Store) SaveSnapshot(p model.Patient) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p = p.Clone()
	if err := s.persistLocked(s.token.Get(), s.expires, &p); err != nil {
		return fmt.Errorf("prefs: save snapshot: %w", err)
	}
	s.patient.Set(&p)
	return nil
}

// Token returns the cached token.
func (s *Store) Token() (string, bool) {
	t := s.token.Get()
	if t == nil {
		return "", false
	}
	return *t, true
}

// Snapshot returns a private copy of the cached patient.
func (s *Store) Snapshot() (model.Patient, bool) {
	p := s.patient.Get()
	if p == nil {
		return model.Patient{}, false
	}
	return p.Clone(), true
}

// Session assembles the cached session; ok is false without a token.
func (s *Store) Session() (model.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tok, ok := s.Token()
	if !ok {
		return model.Session{}, false
	}
	p, _ := s.Snapshot()
	return model.Session{Token: tok, ExpiresAt: s.expires, Patient: p}, true
}

// IsLoggedIn reports whether a non-expired token is cached.
func (s *Store) IsLoggedIn() bool {
	sess, ok := s.Session()
	return ok && sess.Valid(s.now())
}

// WatchToken yields the token (nil when absent) now and after every write.
func (s *Store) WatchToken(ctx context.Context) <-chan *string { return s.token.Subscribe(ctx) }

// WatchSnapshot yields the patient (nil when absent) now and after every write.
func (s *Store) WatchSnapshot(ctx context.Context) <-chan *model.Patient {
	return s.patient.Subscribe(ctx)
}

// Clear removes token and snapshot together.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.Delete(entrySession); err != nil {
		return fmt.Errorf("prefs: clear: %w", err)
	}
	s.expires = time.Time{}
	s.token.Set(nil)
	s.patient.Set(nil)
	return nil
}
