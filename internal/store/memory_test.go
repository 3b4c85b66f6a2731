package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Set(ctx, "k", "v", 0))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, m.Delete(ctx, "k"))
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SetIfAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.SetIfAbsent(ctx, "claim", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.SetIfAbsent(ctx, "claim", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second claimant must lose")

	val, err := m.Get(ctx, "claim")
	require.NoError(t, err)
	assert.Equal(t, "worker-a", val)
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	clock := func() time.Time { return now }
	m := NewMemoryWithClock(func() time.Time { return clock() })

	require.NoError(t, m.Set(ctx, "k", "v", time.Minute))

	// Still present just before expiry
	now = now.Add(59 * time.Second)
	_, err := m.Get(ctx, "k")
	require.NoError(t, err)

	// Gone after expiry, and the key is claimable again
	now = now.Add(2 * time.Second)
	_, err = m.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	ok, err := m.SetIfAbsent(ctx, "k", "other", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "expired key must be claimable")
}

func TestMemory_ConcurrentClaims(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const workers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.SetIfAbsent(ctx, "claim", "w", time.Minute)
			require.NoError(t, err)
			if ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent claimant may win")
}

func TestKeyHelpers(t *testing.T) {
	assert.Equal(t, "lock:config:42", ClaimKey(42))
	assert.Equal(t, "delivery:7:email", DeliveryKey(7, "email"))
}
