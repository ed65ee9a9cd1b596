package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
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

func TestGateTryAcquireRespectsLimit(t *testing.T) {
	t.Parallel()
	g := NewGate(2, newFakeClock())

	assert.True(t, g.TryAcquire())
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())

	g.Release()
	assert.True(t, g.TryAcquire())
	assert.Equal(t, 2, g.Snapshot().InFlight)
}

func TestGateRefusesDuringCoolOff(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	g := NewGate(4, clock)

	g.ExtendCoolOff(clock.Now().Add(4 * time.Second))
	assert.False(t, g.TryAcquire())

	clock.Advance(5 * time.Second)
	assert.True(t, g.TryAcquire())
}

func TestGateExtendCoolOffNeverShortens(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	g := NewGate(1, clock)
	long := clock.Now().Add(5 * time.Minute)

	g.ExtendCoolOff(long)
	g.ExtendCoolOff(clock.Now().Add(4 * time.Second))
	assert.Equal(t, long, g.CoolOffUntil())
	assert.Equal(t, long, g.Snapshot().CoolOffUntil)
}

func TestGateSetLimitClampsAndKeepsHolders(t *testing.T) {
	t.Parallel()
	g := NewGate(3, newFakeClock())
	require.True(t, g.TryAcquire())
	require.True(t, g.TryAcquire())

	g.SetLimit(0)
	assert.Equal(t, 1, g.Snapshot().Limit)
	assert.Equal(t, 2, g.Snapshot().InFlight)
	assert.False(t, g.TryAcquire())

	g.Release()
	assert.False(t, g.TryAcquire(), "one holder still occupies the single slot")
	g.Release()
	assert.True(t, g.TryAcquire())
}

func TestGateAcquireHonorsContext(t *testing.T) {
	t.Parallel()
	g := NewGate(1, nil)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGateAcquireWaitsOutCoolOff(t *testing.T) {
	t.Parallel()
	g := NewGate(1, nil)
	start := time.Now()
	g.ExtendCoolOff(time.Now().UTC().Add(60 * time.Millisecond))

	require.NoError(t, g.Acquire(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestGateAcquireWakesOnRelease(t *testing.T) {
	t.Parallel()
	g := NewGate(1, nil)
	require.True(t, g.TryAcquire())

	done := make(chan error, 1)
	go func() { done <- g.Acquire(context.Background()) }()

	select {
	case <-done:
		t.Fatal("acquire returned while gate was full")
	case <-time.After(20 * time.Millisecond):
	}
	g.Release()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("acquire did not wake after release")
	}
}

func TestGateConcurrencyNeverExceedsLimit(t *testing.T) {
	t.Parallel()
	const limit = 3
	g := NewGate(limit, nil)

	var (
		current atomic.Int32
		peak    atomic.Int32
		wg      sync.WaitGroup
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := g.Acquire(context.Background()); err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			// Halfway through, drop to a single slot the way escalation does.
			if i == 20 {
				g.SetLimit(1)
			}
			time.Sleep(2 * time.Millisecond)
			current.Add(-1)
			g.Release()
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
	assert.Equal(t, 0, g.Snapshot().InFlight)
}
