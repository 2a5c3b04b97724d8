// Package observe provides a value holder whose subscribers always see the latest write.
package observe

import (
	"context"
	"sync"
)

// Value holds a T. Subscribers receive the current value on subscribe and every later write;
// a slow subscriber only ever misses intermediate values, never the latest one.
type Value[T any] struct {
	mu   sync.Mutex
	cur  T
	subs map[chan T]struct{}
}

// NewValue returns a Value initialised to v.
func NewValue[T any](v T) *Value[T] {
	return &Value[T]{cur: v, subs: make(map[chan T]struct{})}
}

// Get returns the current value.
func (o *Value[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cur
}

// Set replaces the value and notifies subscribers.
func (o *Value[T]) Set(v T) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.setLocked(v)
}

// Update applies fn to the current value as one atomic replacement and returns the result.
func (o *Value[T]) Update(fn func(T) T) T {
	o.mu.Lock()
	defer o.mu.Unlock()
	v := fn(o.cur)
	o.setLocked(v)
	return v
}

func (o *Value[T]) setLocked(v T) {
	o.cur = v
	for ch := range o.subs {
		offer(ch, v)
	}
}

// offer replaces whatever is buffered in ch with v. Only setLocked sends, under the lock.
func offer[T any](ch chan T, v T) {
	select {
	case <-ch:
	default:
	}
	ch <- v
}

// Subscribe returns a channel that yields the latest value. It is closed once ctx is done.
func (o *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	o.mu.Lock()
	o.subs[ch] = struct{}{}
	ch <- o.cur
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		delete(o.subs, ch)
		close(ch)
		o.mu.Unlock()
	}()
	return ch
}
