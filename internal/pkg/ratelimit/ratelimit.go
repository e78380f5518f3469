// Package ratelimit bounds the frequency of sensitive operations per user.
// Windows are fixed: the first operation opens a window, further operations
// count against it, and the window resets once its duration has elapsed.
// State is in-process only; a restart clears all windows.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Operation identifies a rate-limited operation type.
type Operation string

// Rate-limited operations.
const (
	OpPayout Operation = "payout"
	OpClaim  Operation = "claim"
)

// Error is returned when a rate limit is exceeded. It carries the time at
// which the window resets so callers can back off.
type Error struct {
	Operation Operation
	ResetTime time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, resets at %s", e.Operation, e.ResetTime.Format(time.RFC3339))
}

// Status reports the remaining quota inside the current window.
type Status struct {
	Remaining int
	ResetTime time.Time
}

type window struct {
	start time.Time
	count int
}

// Limiter counts operations per (operation, user) key inside a fixed window.
// Check-and-increment happens under a single mutex so two concurrent calls
// cannot both take the last slot.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewLimiter creates a new Limiter instance.
func NewLimiter() *Limiter {
	return &Limiter{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func key(op Operation, userID string) string {
	return string(op) + ":" + userID
}

// Check consumes one slot for the given operation and user. It returns a
// *Error when the limit is exhausted; the window itself is left untouched in
// that case so the reset time stays stable.
func (l *Limiter) Check(op Operation, userID string, maxOperations int, timeWindow time.Duration) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(op, userID)

	w, ok := l.windows[k]
	if !ok || now.Sub(w.start) > timeWindow {
		l.windows[k] = &window{start: now, count: 1}
		return nil
	}

	if w.count >= maxOperations {
		return &Error{Operation: op, ResetTime: w.start.Add(timeWindow)}
	}

	w.count++
	return nil
}

// Remaining reports the unused quota and reset time without consuming a slot.
func (l *Limiter) Remaining(op Operation, userID string, maxOperations int, timeWindow time.Duration) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key(op, userID)]
	if !ok || now.Sub(w.start) > timeWindow {
		return Status{Remaining: maxOperations, ResetTime: now}
	}

	remaining := maxOperations - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Status{Remaining: remaining, ResetTime: w.start.Add(timeWindow)}
}

// Reset clears the window for the given operation and user.
func (l *Limiter) Reset(op Operation, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key(op, userID))
}
