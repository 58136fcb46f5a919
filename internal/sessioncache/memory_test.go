package sessioncache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func newMockStore(t *testing.T, opts ...MemoryOption) (*MemoryStore, *clock.Mock) {
	t.Helper()
	mock := clock.NewMock()
	s := NewMemoryStore(append([]MemoryOption{WithClock(mock)}, opts...)...)
	t.Cleanup(func() { _ = s.Close() })
	return s, mock
}

func TestMemoryStore_TTL(t *testing.T) {
	s, mock := newMockStore(t, WithSweepInterval(time.Hour))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "csrf", "nonce", 30*time.Second))

	mock.Add(30*time.Second - time.Nanosecond)
	v, ok, err := s.Get(ctx, "csrf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "nonce", v)

	mock.Add(time.Nanosecond)
	_, ok, err = s.Get(ctx, "csrf")
	require.NoError(t, err)
	assert.False(t, ok, "entry must not be returned at its expiry instant")

	_, ok, err = s.Take(ctx, "csrf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_TakeIsSingleUse(t *testing.T) {
	s, _ := newMockStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "csrf", "nonce", time.Minute))

	v, ok, err := s.Take(ctx, "csrf")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "nonce", v)

	_, ok, err = s.Take(ctx, "csrf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Get(ctx, "csrf")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStore_OverwriteReplacesValueAndExpiry(t *testing.T) {
	s, mock := newMockStore(t, WithSweepInterval(time.Hour))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "first", 10*time.Second))
	mock.Add(5 * time.Second)
	require.NoError(t, s.Put(ctx, "k", "second", 10*time.Second))
	mock.Add(7 * time.Second)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", v)
}

func TestMemoryStore_PutRejectsNonPositiveTTL(t *testing.T) {
	s, _ := newMockStore(t)
	require.ErrorIs(t, s.Put(context.Background(), "k", "v", 0), ErrInvalidTTL)
}

func TestMemoryStore_SweepRemovesExpiredEntries(t *testing.T) {
	s, mock := newMockStore(t, WithSweepInterval(5*time.Second))
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("short-%d", i), "v", time.Second))
	}
	require.NoError(t, s.Put(ctx, "long", "v", time.Hour))
	require.Equal(t, 11, s.Len())

	mock.Add(5 * time.Second)

	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 5*time.Millisecond)
	v, ok, err := s.Get(ctx, "long")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestMemoryStore_SweepRoundIsBounded(t *testing.T) {
	s, mock := newMockStore(t, WithSweepInterval(time.Hour), WithSweepFraction(0.1))
	ctx := context.Background()

	const n = 2000
	for i := 0; i < n; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("k-%d", i), "v", time.Second))
	}
	mock.Add(time.Second)

	scanned, removed := s.sweepRound(mock.Now())
	assert.Equal(t, n/10, scanned)
	assert.Equal(t, scanned, removed)
	assert.Equal(t, n-removed, s.Len())

	// entries past their TTL are invisible even before the sweep reaches them
	for i := 0; i < n; i++ {
		_, ok, err := s.Get(ctx, fmt.Sprintf("k-%d", i))
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestMemoryStore_SweepRepeatsWhileMostlyExpired(t *testing.T) {
	s, mock := newMockStore(t, WithSweepInterval(time.Hour), WithSweepFraction(0.1))
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Put(ctx, fmt.Sprintf("k-%d", i), "v", time.Second))
	}
	mock.Add(time.Second)

	removed := s.sweep()
	assert.Greater(t, removed, 100, "a mostly expired cache should trigger extra rounds")
	assert.LessOrEqual(t, removed, maxSweepRounds*100)
}

func TestMemoryStore_CloseStopsSweep(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewMemoryStore(WithSweepInterval(time.Millisecond))
	require.NoError(t, s.Put(context.Background(), "k", "v", time.Minute))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	require.ErrorIs(t, s.Put(context.Background(), "k", "v", time.Minute), ErrClosed)
	_, _, err := s.Take(context.Background(), "k")
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, s.Health(context.Background()), ErrClosed)
}

func TestMemoryStore_ConcurrentAccess(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewMemoryStore(WithSweepInterval(time.Millisecond))
	defer s.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	taken := make(map[string]int)

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := fmt.Sprintf("k-%d", i)
				_ = s.Put(ctx, fmt.Sprintf("w%d-%d", w, i), "v", time.Millisecond)
				if w == 0 {
					assert.NoError(t, s.Put(ctx, key, "v", time.Minute))
				}
				if _, ok, _ := s.Take(ctx, key); ok {
					mu.Lock()
					taken[key]++
					mu.Unlock()
				}
			}
		}(w)
	}
	wg.Wait()

	for key, count := range taken {
		assert.Equal(t, 1, count, "key %s taken more than once", key)
	}
}
