package errs

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesOnlyItsKind(t *testing.T) {
	t.Parallel()

	err := New(KindRemoteRejected, "fetchProfile", "Failed to get profile", nil)
	require.ErrorIs(t, err, ErrRemoteRejected)
	require.NotErrorIs(t, err, ErrTransport)
	require.NotErrorIs(t, err, ErrNotAuthenticated)
	require.Equal(t, "Failed to get profile", err.Error())
}

func TestError_UnwrapAndKindOf(t *testing.T) {
	t.Parallel()

	err := New(KindTransport, "login", "", io.ErrUnexpectedEOF)
	wrapped := fmt.Errorf("view: %w", err)

	require.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	require.ErrorIs(t, wrapped, ErrTransport)
	require.Equal(t, KindTransport, KindOf(wrapped))
	require.Equal(t, io.ErrUnexpectedEOF.Error(), err.Error())
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	require.Equal(t, "not_authenticated", KindNotAuthenticated.String())
	require.Equal(t, "invalid_input", KindInvalidInput.String())
	require.Equal(t, "unknown", Kind(42).String())
}
