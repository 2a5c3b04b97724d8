package sandbox

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestAccountCtx_RoundTrip(t *testing.T) {
	_, ok := AccountFromCtx(context.Background())
	require.False(t, ok)

	a := Account{ID: uuid.Must(uuid.NewV4()), Email: "a@x.com", PatientID: "p1"}
	got, ok := AccountFromCtx(WithAccount(context.Background(), a))
	require.True(t, ok)
	require.Equal(t, a, got)
}
