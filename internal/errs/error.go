package errs

import (
	"errors"
	"fmt"
)

// Kind discriminates client failures.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotAuthenticated
	KindRemoteRejected
	KindTransport
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindNotAuthenticated:
		return "not_authenticated"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindTransport:
		return "transport"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindNotAuthenticated:
		return ErrNotAuthenticated
	case KindRemoteRejected:
		return ErrRemoteRejected
	case KindTransport:
		return ErrTransport
	case KindInvalidInput:
		return ErrInvalidInput
	default:
		return nil
	}
}

// Error is the single failure type returned by the sync repository.
// Message is meant for display; Err keeps the underlying cause.
type Error struct {
	Kind    Kind
	Op      string
	Status  int // HTTP status when the backend answered, 0 otherwise
	Message string
	Err     error
}

// New builds an *Error of the given kind.
func New(kind Kind, op, msg string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: cause}
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel of the error's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the kind of err, KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
