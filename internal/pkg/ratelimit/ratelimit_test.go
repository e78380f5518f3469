package ratelimit

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests advance time deterministically.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter() (*Limiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)}
	l := NewLimiter()
	l.now = clock.Now
	return l, clock
}

func TestCheck_WindowExhaustionAndReset(t *testing.T) {
	l, clock := newTestLimiter()
	window := time.Hour

	// First three calls succeed.
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Check(OpPayout, "user-1", 3, window))
	}

	// Fourth fails with the window's reset time.
	err := l.Check(OpPayout, "user-1", 3, window)
	require.Error(t, err)

	var rlErr *Error
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, OpPayout, rlErr.Operation)
	assert.Equal(t, clock.Now().Add(window), rlErr.ResetTime)

	// The reset time is stable across repeated rejected calls.
	err = l.Check(OpPayout, "user-1", 3, window)
	require.True(t, errors.As(err, &rlErr))
	assert.Equal(t, clock.Now().Add(window), rlErr.ResetTime)

	// After the window elapses a new call succeeds.
	clock.Advance(window + time.Second)
	assert.NoError(t, l.Check(OpPayout, "user-1", 3, window))
}

func TestCheck_KeysAreIndependent(t *testing.T) {
	l, _ := newTestLimiter()

	require.NoError(t, l.Check(OpPayout, "user-1", 1, time.Hour))
	require.Error(t, l.Check(OpPayout, "user-1", 1, time.Hour))

	// A different user and a different operation are unaffected.
	assert.NoError(t, l.Check(OpPayout, "user-2", 1, time.Hour))
	assert.NoError(t, l.Check(OpClaim, "user-1", 1, time.Hour))
}

func TestRemaining(t *testing.T) {
	l, clock := newTestLimiter()
	window := time.Hour

	status := l.Remaining(OpPayout, "user-1", 3, window)
	assert.Equal(t, 3, status.Remaining)

	require.NoError(t, l.Check(OpPayout, "user-1", 3, window))
	require.NoError(t, l.Check(OpPayout, "user-1", 3, window))

	status = l.Remaining(OpPayout, "user-1", 3, window)
	assert.Equal(t, 1, status.Remaining)
	assert.Equal(t, clock.Now().Add(window), status.ResetTime)
}

func TestReset(t *testing.T) {
	l, _ := newTestLimiter()

	require.NoError(t, l.Check(OpClaim, "user-1", 1, time.Hour))
	require.Error(t, l.Check(OpClaim, "user-1", 1, time.Hour))

	l.Reset(OpClaim, "user-1")
	assert.NoError(t, l.Check(OpClaim, "user-1", 1, time.Hour))
}

// TestCheck_ConcurrentLastSlot verifies the atomic check-and-increment: with
// one slot left, concurrent callers get exactly one success.
func TestCheck_ConcurrentLastSlot(t *testing.T) {
	l, _ := newTestLimiter()
	window := time.Hour

	require.NoError(t, l.Check(OpPayout, "user-1", 2, window))

	const goroutines = 50
	var wg sync.WaitGroup
	successes := make(chan struct{}, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.Check(OpPayout, "user-1", 2, window) == nil {
				successes <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(successes)

	count := 0
	for range successes {
		count++
	}
	assert.Equal(t, 1, count)
}
