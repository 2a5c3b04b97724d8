package observe

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func recv[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "channel closed")
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for value")
	}
	var zero T
	return zero
}

func TestValue_SubscribeGetsCurrentThenWrites(t *testing.T) {
	t.Parallel()

	v := NewValue(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := v.Subscribe(ctx)
	require.Equal(t, 1, recv(t, ch))

	v.Set(2)
	require.Equal(t, 2, recv(t, ch))
	require.Equal(t, 2, v.Get())
}

func TestValue_SlowSubscriberSeesLatest(t *testing.T) {
	t.Parallel()

	v := NewValue("a")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := v.Subscribe(ctx)
	v.Set("b")
	v.Set("c")
	v.Set("d")
	require.Equal(t, "d", recv(t, ch))
}

func TestValue_Update(t *testing.T) {
	t.Parallel()

	v := NewValue(10)
	got := v.Update(func(n int) int { return n + 5 })
	require.Equal(t, 15, got)
	require.Equal(t, 15, v.Get())
}

func TestValue_SubscriptionClosesOnCancel(t *testing.T) {
	t.Parallel()

	v := NewValue(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := v.Subscribe(ctx)
	<-ch
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	v.Set(1) // must not panic on a removed subscriber
}
