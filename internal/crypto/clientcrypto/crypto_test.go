package clientcrypto

import (
	"bytes"
	"crypto/subtle"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRand_LengthUniq(t *testing.T) {
	t.Parallel()
	const n = 48
	a, err := Rand(n)
	if err != nil {
		t.Fatalf("Rand: %v", err)
	}
	if len(a) != n {
		t.Fatalf("len=%d, want=%d", len(a), n)
	}
	b, _ := Rand(n)
	if bytes.Equal(a, b) {
		t.Fatalf("Rand produced equal slices")
	}
}

func TestDeriveKey_DeterministicAndSaltDependent(t *testing.T) {
	t.Parallel()
	pw := []byte("secret-pass")
	k1 := DeriveKey(pw, []byte("salt-1"))
	k2 := DeriveKey(pw, []byte("salt-1"))
	if subtle.ConstantTimeCompare(k1, k2) != 1 {
		t.Fatalf("DeriveKey not deterministic")
	}
	if subtle.ConstantTimeCompare(k1, DeriveKey(pw, []byte("salt-2"))) != 0 {
		t.Fatalf("DeriveKey must change with salt")
	}
	if len(k1) != KeyLen {
		t.Fatalf("key len=%d", len(k1))
	}
}

func TestLoadOrCreateKey_PersistsAndRejectsBadLength(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "sub", "device.key")

	k1, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Len(t, k1, KeyLen)

	k2, err := LoadOrCreateKey(path)
	require.NoError(t, err)
	require.Equal(t, k1, k2)

	fi, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))
	_, err = LoadOrCreateKey(path)
	require.ErrorIs(t, err, ErrBadKey)
}

func TestLoadOrCreateSalt_Stable(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "salt")
	s1, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	require.Len(t, s1, SaltLen)
	s2, err := LoadOrCreateSalt(path)
	require.NoError(t, err)
	require.Equal(t, s1, s2)
}

func TestSealer_RoundTripAndBinding(t *testing.T) {
	t.Parallel()
	key, _ := Rand(KeyLen)
	s, err := NewSealer(key)
	require.NoError(t, err)

	blob, err := s.Seal("patient", []byte("hello"))
	require.NoError(t, err)
	require.NotContains(t, string(blob), "hello")

	pt, err := s.Open("patient", blob)
	require.NoError(t, err)
	require.Equal(t, "hello", string(pt))

	// entry name is bound
	_, err = s.Open("token", blob)
	require.Error(t, err)

	// tamper
	blob[len(blob)-1] ^= 0xff
	_, err = s.Open("patient", blob)
	require.Error(t, err)

	_, err = s.Open("patient", []byte{1, 2})
	require.Error(t, err)

	other, _ := Rand(KeyLen)
	s2, _ := NewSealer(other)
	fresh, _ := s.Seal("patient", []byte("x"))
	_, err = s2.Open("patient", fresh)
	require.Error(t, err)
}

func TestNewSealer_BadKey(t *testing.T) {
	t.Parallel()
	_, err := NewSealer([]byte("short"))
	require.ErrorIs(t, err, ErrBadKey)
}
