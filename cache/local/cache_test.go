package local

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets expiry be driven without sleeping.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newCache(t *testing.T) (*LocalCache, *fakeClock) {
	t.Helper()
	c, err := NewCache(Config{GCInterval: time.Hour})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.now = clock.Now
	return c, clock
}

func TestSetNX_ZeroTTLNeverExpires(t *testing.T) {
	c, clock := newCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "short", "v", time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = c.SetNX(ctx, "forever", "v", 0)
	require.NoError(t, err)
	require.True(t, ok)
	clock.Advance(time.Hour)

	ok, _ = c.SetNX(ctx, "short", "w", time.Second)
	assert.True(t, ok, "expired")
	ok, _ = c.SetNX(ctx, "forever", "w", time.Second)
	assert.False(t, ok, "still held")
}

func TestSetNX_ExpiredLockCanBeRetaken(t *testing.T) {
	c, clock := newCache(t)
	ctx := context.Background()

	ok, err := c.SetNX(ctx, "lock:bound_retrieve:7", "first", 30*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	ok, _ = c.SetNX(ctx, "lock:bound_retrieve:7", "second", 30*time.Second)
	assert.False(t, ok, "held")

	clock.Advance(31 * time.Second)
	ok, _ = c.SetNX(ctx, "lock:bound_retrieve:7", "second", 30*time.Second)
	assert.True(t, ok, "a crashed holder's lock lapses")
}

func TestSetNX_SingleWinner(t *testing.T) {
	c, _ := newCache(t)
	ctx := context.Background()

	var winners int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.SetNX(ctx, "race", "x", time.Minute); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners)
}

func TestDelIfEqual_OnlyOwnerReleases(t *testing.T) {
	c, clock := newCache(t)
	ctx := context.Background()
	_, _ = c.SetNX(ctx, "k", "mine", time.Second)

	ok, err := c.DelIfEqual(ctx, "k", "theirs")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = c.DelIfEqual(ctx, "k", "mine")
	require.NoError(t, err)
	assert.True(t, ok)

	// An expired key is not released twice.
	_, _ = c.SetNX(ctx, "k", "mine", time.Second)
	clock.Advance(2 * time.Second)
	ok, _ = c.DelIfEqual(ctx, "k", "mine")
	assert.False(t, ok)
}

func TestSweep(t *testing.T) {
	c, clock := newCache(t)
	ctx := context.Background()
	_, _ = c.SetNX(ctx, "a", "1", time.Second)
	_, _ = c.SetNX(ctx, "b", "1", 0)
	require.Equal(t, 2, c.Len())

	clock.Advance(time.Minute)
	c.sweep()
	assert.Equal(t, 1, c.Len())
}
