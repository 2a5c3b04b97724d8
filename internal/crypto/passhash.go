// Package crypto implements password hashing for the sandbox account store.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters (tuned for server-side hashing).
const (
	argonTime    uint32 = 3         // iterations
	argonMemory  uint32 = 64 * 1024 // 64 MB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	saltLen = 16
	scheme  = "argon2id"
)

// ErrMalformedHash is returned when an encoded hash cannot be parsed.
var ErrMalformedHash = errors.New("malformed password hash")

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword returns Argon2id hash of password using the provided salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// EncodePassword hashes password with a fresh salt into "argon2id$<salt>$<hash>".
func EncodePassword(password string) (string, error) {
	salt, err := RandBytes(saltLen)
	if err != nil {
		return "", err
	}
	h := HashPassword([]byte(password), salt)
	enc := base64.RawStdEncoding
	return fmt.Sprintf("%s$%s$%s", scheme, enc.EncodeToString(salt), enc.EncodeToString(h)), nil
}

// VerifyPassword checks password against an encoded hash in constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != scheme {
		return false, ErrMalformedHash
	}
	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[1])
	if err != nil {
		return false, ErrMalformedHash
	}
	want, err := enc.DecodeString(parts[2])
	if err != nil {
		return false, ErrMalformedHash
	}
	got := HashPassword([]byte(password), salt)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}
