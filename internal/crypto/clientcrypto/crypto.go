// Package clientcrypto seals locally persisted entries with a device key.
package clientcrypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// Params
const (
	KeyLen  = 32
	SaltLen = 16

	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 1
)

// ErrBadKey means a key file exists but has the wrong size.
var ErrBadKey = errors.New("device key: bad length")

func Rand(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// DeriveKey derives a device key from a passphrase and salt using Argon2id.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, KeyLen)
}

// LoadOrCreateKey reads a raw key file, generating it with 0600 permissions on first use.
func LoadOrCreateKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	switch {
	case err == nil:
		if len(key) != KeyLen {
			return nil, ErrBadKey
		}
		return key, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, err
	}
	if key, err = Rand(KeyLen); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, key, 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

// LoadOrCreateSalt is LoadOrCreateKey for the passphrase salt.
func LoadOrCreateSalt(path string) ([]byte, error) {
	salt, err := os.ReadFile(path)
	if err == nil {
		return salt, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	if salt, err = Rand(SaltLen); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return salt, os.WriteFile(path, salt, 0o600)
}

// Sealer encrypts named entries; each entry name gets its own HKDF subkey and is bound as AAD.
type Sealer struct {
	key []byte
}

// NewSealer wraps a KeyLen-byte device key.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != KeyLen {
		return nil, ErrBadKey
	}
	return &Sealer{key: append([]byte(nil), key...)}, nil
}

// entryKey derives a per-entry key via HKDF-SHA256 using the entry name as info.
func (s *Sealer) entryKey(name string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.key, nil, []byte(name))
	key := make([]byte, KeyLen)
	_, err := r.Read(key)
	return key, err
}

// Seal encrypts plaintext as nonce||ciphertext with XChaCha20-Poly1305.
func (s *Sealer) Seal(name string, plaintext []byte) ([]byte, error) {
	key, err := s.entryKey(name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	nonce, err := Rand(chacha20poly1305.NonceSizeX)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, plaintext, []byte(name))...)
	return out, nil
}

// Open reverses Seal; it fails if the blob was sealed under another name or key.
func (s *Sealer) Open(name string, blob []byte) ([]byte, error) {
	if len(blob) < chacha20poly1305.NonceSizeX {
		return nil, errors.New("blob too short")
	}
	key, err := s.entryKey(name)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	pt, err := aead.Open(nil, blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:], []byte(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return pt, nil
}
