package limiter

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Memory is an in-process limiter. Failed attempts per (username, ip) drain a token
// bucket refilled over window; the attempt that finds it empty starts a lockout.
type Memory struct {
	mu       sync.Mutex
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
	entries  map[string]*entry
}

type entry struct {
	fails        *rate.Limiter
	blockedUntil time.Time
}

var _ Limiter = (*Memory)(nil)

// NewMemory constructs a limiter that blocks for blockFor after maxFails failures within window.
func NewMemory(window time.Duration, maxFails int, blockFor time.Duration) *Memory {
	if maxFails < 1 {
		maxFails = 1
	}
	return &Memory{
		window:   window,
		maxFails: maxFails,
		blockFor: blockFor,
		now:      time.Now,
		entries:  map[string]*entry{},
	}
}

func key(username string, ipHash []byte) string {
	return username + "|" + hex.EncodeToString(ipHash)
}

func (l *Memory) bucket() *rate.Limiter {
	return rate.NewLimiter(rate.Every(l.window/time.Duration(l.maxFails)), l.maxFails-1)
}

// Allow reports whether login is currently allowed and a retry-after duration.
func (l *Memory) Allow(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key(username, ipHash)]
	if !ok {
		return true, 0, nil
	}
	now := l.now()
	if e.blockedUntil.After(now) {
		return false, e.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success resets counters for (username, ip).
func (l *Memory) Success(_ context.Context, username string, ipHash []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key(username, ipHash))
	return nil
}

// Failure records a failed attempt; may set a block until a future time.
func (l *Memory) Failure(_ context.Context, username string, ipHash []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(username, ipHash)
	e, ok := l.entries[k]
	if !ok {
		e = &entry{fails: l.bucket()}
		l.entries[k] = e
	}
	now := l.now()
	if e.fails.AllowN(now, 1) {
		return false, 0, nil
	}
	e.blockedUntil = now.Add(l.blockFor)
	e.fails = l.bucket()
	return true, l.blockFor, nil
}
