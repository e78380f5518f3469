package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWithLock_SerializesPerUser(t *testing.T) {
	ul := NewUserLock()

	const goroutines = 100
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = ul.WithLock("user-1", func() error {
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, goroutines, counter)
}

func TestTryLock_Exclusive(t *testing.T) {
	ul := NewUserLock()

	assert.True(t, ul.TryLock("user-1"))
	assert.False(t, ul.TryLock("user-1"))

	// Other users are unaffected.
	assert.True(t, ul.TryLock("user-2"))
	ul.Unlock("user-2")

	ul.Unlock("user-1")
	assert.True(t, ul.TryLock("user-1"))
	ul.Unlock("user-1")
}

func TestLockWithTimeout(t *testing.T) {
	ul := NewUserLock()

	ul.Lock("user-1")
	acquired := ul.LockWithTimeout(context.Background(), "user-1", 50*time.Millisecond)
	assert.False(t, acquired)

	ul.Unlock("user-1")
	acquired = ul.LockWithTimeout(context.Background(), "user-1", 50*time.Millisecond)
	assert.True(t, acquired)
	ul.Unlock("user-1")
}

func TestWithLockContext_Timeout(t *testing.T) {
	ul := NewUserLock()

	ul.Lock("user-1")
	err := ul.WithLockContext(context.Background(), "user-1", 50*time.Millisecond, func() error {
		t.Fatal("function must not run without the lock")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	ul.Unlock("user-1")
}
