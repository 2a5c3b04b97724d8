package prefs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/and161185/medalert/internal/model"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	s, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)
	return s
}

func samplePatient() model.Patient {
	return model.Patient{
		ID:    "p1",
		Name:  "Ann",
		Email: "a@x.com",
		CurrentMedications: []model.Medication{
			{ID: "m1", Name: "Aspirin", Dosage: "100mg", Timing: []string{"08:00"}},
		},
	}
}

func TestStore_SessionRoundTrip(t *testing.T) {
	t.Parallel()

	s, err := New(NewMemory(), WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.False(t, s.IsLoggedIn())
	_, ok := s.Snapshot()
	require.False(t, ok)

	p := samplePatient()
	require.NoError(t, s.SaveSession(model.Session{Token: "tok", Patient: p}))

	tok, ok := s.Token()
	require.True(t, ok)
	require.Equal(t, "tok", tok)
	got, ok := s.Snapshot()
	require.True(t, ok)
	require.Equal(t, p, got)
	require.True(t, s.IsLoggedIn())

	sess, ok := s.Session()
	require.True(t, ok)
	require.Equal(t, "tok", sess.Token)
	require.Equal(t, "p1", sess.Patient.ID)
}

func TestStore_SnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s, err := New(NewMemory())
	require.NoError(t, err)
	require.NoError(t, s.SaveSnapshot(samplePatient()))

	p, _ := s.Snapshot()
	p.CurrentMedications[0].Name = "changed"
	again, _ := s.Snapshot()
	require.Equal(t, "Aspirin", again.CurrentMedications[0].Name)
}

func TestStore_ClearRemovesBoth(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	s, err := New(mem)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(model.Session{Token: "tok", Patient: samplePatient()}))
	require.NoError(t, s.Clear())

	require.False(t, s.IsLoggedIn())
	_, ok := s.Snapshot()
	require.False(t, ok)
	_, err = mem.Get(entrySession)
	require.ErrorIs(t, err, ErrNoEntry)
}

func TestStore_ExpiryFromJWT(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s, err := New(NewMemory(), WithClock(func() time.Time { return now }))
	require.NoError(t, err)

	require.NoError(t, s.SaveToken(signedToken(t, now.Add(time.Hour))))
	require.True(t, s.IsLoggedIn())

	require.NoError(t, s.SaveToken(signedToken(t, now.Add(-time.Minute))))
	require.False(t, s.IsLoggedIn())

	require.True(t, TokenExpiry("opaque").IsZero())
}

func TestStore_WatchReceivesLatest(t *testing.T) {
	t.Parallel()

	s, err := New(NewMemory())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	toks := s.WatchToken(ctx)
	snaps := s.WatchSnapshot(ctx)
	require.Nil(t, <-toks)
	require.Nil(t, <-snaps)

	require.NoError(t, s.SaveSession(model.Session{Token: "t1", Patient: samplePatient()}))
	require.Equal(t, "t1", *(<-toks))
	require.Equal(t, "p1", (<-snaps).ID)

	require.NoError(t, s.Clear())
	require.Nil(t, <-toks)
	require.Nil(t, <-snaps)
}

type failingBackend struct{ *Memory }

func (failingBackend) Put(string, []byte) error { return os.ErrPermission }

// flakyBackend accepts the first ok writes and fails the rest.
type flakyBackend struct {
	*Memory
	ok int
}

func (b *flakyBackend) Put(name string, data []byte) error {
	if b.ok == 0 {
		return os.ErrPermission
	}
	b.ok--
	return b.Memory.Put(name, data)
}

func TestStore_FailedWriteIsNotObservable(t *testing.T) {
	t.Parallel()

	s, err := New(failingBackend{NewMemory()})
	require.NoError(t, err)
	require.ErrorIs(t, s.SaveSession(model.Session{Token: "t", Patient: samplePatient()}), os.ErrPermission)
	_, ok := s.Token()
	require.False(t, ok)
	_, ok = s.Snapshot()
	require.False(t, ok)
}

func TestStore_FailedWriteKeepsTokenAndSnapshotTogether(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	s, err := New(&flakyBackend{Memory: mem, ok: 1})
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(model.Session{Token: "old", Patient: samplePatient()}))

	next := samplePatient()
	next.Name = "Ann Smith"
	require.Error(t, s.SaveSession(model.Session{Token: "new", Patient: next}))
	require.Error(t, s.SaveSnapshot(next))

	reopened, err := New(mem)
	require.NoError(t, err)
	tok, _ := reopened.Token()
	require.Equal(t, "old", tok)
	p, _ := reopened.Snapshot()
	require.Equal(t, samplePatient(), p)
}

func TestStore_PartialWritesKeepTheOtherHalf(t *testing.T) {
	t.Parallel()

	mem := NewMemory()
	s, err := New(mem)
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(model.Session{Token: "t1", Patient: samplePatient()}))
	require.NoError(t, s.SaveToken("t2"))
	next := samplePatient()
	next.Name = "Ann Smith"
	require.NoError(t, s.SaveSnapshot(next))

	reopened, err := New(mem)
	require.NoError(t, err)
	tok, _ := reopened.Token()
	require.Equal(t, "t2", tok)
	p, _ := reopened.Snapshot()
	require.Equal(t, "Ann Smith", p.Name)
}

func TestOpenFile_PersistsAcrossReopen(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "medalert")
	s, err := OpenFile(dir, "")
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(model.Session{Token: "tok", Patient: samplePatient()}))

	raw, err := os.ReadFile(filepath.Join(dir, "session.bin"))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "Aspirin")

	s2, err := OpenFile(dir, "")
	require.NoError(t, err)
	tok, ok := s2.Token()
	require.True(t, ok)
	require.Equal(t, "tok", tok)
	p, ok := s2.Snapshot()
	require.True(t, ok)
	require.Equal(t, samplePatient(), p)

	require.NoError(t, s2.Clear())
	_, err = os.Stat(filepath.Join(dir, "session.bin"))
	require.True(t, os.IsNotExist(err))
}

func TestOpenFile_WrongPassphraseDropsEntries(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := OpenFile(dir, "right", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.NoError(t, s.SaveSession(model.Session{Token: "tok", Patient: samplePatient()}))

	again, err := OpenFile(dir, "right")
	require.NoError(t, err)
	require.True(t, again.IsLoggedIn())

	wrong, err := OpenFile(dir, "wrong", WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	require.False(t, wrong.IsLoggedIn())
	_, ok := wrong.Snapshot()
	require.False(t, ok)
}
