// Package errs contains sentinel errors and the typed client error used across layers.
package errs

import "errors"

// Sentinels shared by the sandbox backend layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrVersionConflict indicates a state transition that is no longer allowed.
	ErrVersionConflict = errors.New("version conflict")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates an authenticated caller touching another account's data.
	ErrForbidden = errors.New("forbidden")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Client-side failure classes. A *Error matches exactly one of them via errors.Is.
var (
	// ErrNotAuthenticated means no cached token or patient is available.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrRemoteRejected means the backend answered non-2xx or without the expected payload.
	ErrRemoteRejected = errors.New("remote rejected")

	// ErrTransport means a network or serialization fault.
	ErrTransport = errors.New("transport failure")

	// ErrInvalidInput means the request was rejected locally before any network call.
	ErrInvalidInput = errors.New("invalid input")
)
