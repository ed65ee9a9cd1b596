package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// Gate admits at most limit concurrent downloads and refuses admission while
// a cool-off window is active. Lowering the limit never revokes slots that
// are already held; holders finish and Release normally.
type Gate struct {
	mu           sync.Mutex
	clock        archive.Clock
	limit        int
	inFlight     int
	coolOffUntil time.Time
	// wake is closed and replaced whenever admission might have become possible.
	wake chan struct{}
}

// NewGate returns a gate admitting up to limit requests. A nil clock uses
// wall time.
func NewGate(limit int, clock archive.Clock) *Gate {
	if limit < 1 {
		limit = 1
	}
	if clock == nil {
		clock = realClock{}
	}
	return &Gate{
		clock: clock,
		limit: limit,
		wake:  make(chan struct{}),
	}
}

// TryAcquire takes a slot if one is free and no cool-off is active.
func (g *Gate) TryAcquire() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ok, _ := g.admitLocked()
	return ok
}

// Acquire blocks until a slot is granted or ctx is done.
func (g *Gate) Acquire(ctx context.Context) error {
	for {
		g.mu.Lock()
		ok, wait := g.admitLocked()
		wake := g.wake
		g.mu.Unlock()
		if ok {
			return nil
		}

		var timerC <-chan time.Time
		if wait > 0 {
			timer := time.NewTimer(wait)
			timerC = timer.C
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("acquire gate: %w", ctx.Err())
			case <-wake:
			case <-timerC:
			}
			timer.Stop()
			continue
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("acquire gate: %w", ctx.Err())
		case <-wake:
		}
	}
}

// admitLocked grants a slot or reports how long a cool-off still has to run.
// A zero wait with ok=false means the gate is full.
func (g *Gate) admitLocked() (bool, time.Duration) {
	if remaining := g.coolOffUntil.Sub(g.clock.Now()); remaining > 0 {
		return false, remaining
	}
	if g.inFlight >= g.limit {
		return false, 0
	}
	g.inFlight++
	return true, 0
}

// Release frees one slot.
func (g *Gate) Release() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight > 0 {
		g.inFlight--
	}
	g.broadcastLocked()
}

// SetLimit changes the admission ceiling. Values below one are clamped to one.
func (g *Gate) SetLimit(limit int) {
	if limit < 1 {
		limit = 1
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.limit = limit
	g.broadcastLocked()
}

// ExtendCoolOff suppresses admission until at least until. An earlier value
// than the current window is ignored.
func (g *Gate) ExtendCoolOff(until time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if until.After(g.coolOffUntil) {
		g.coolOffUntil = until
	}
	g.broadcastLocked()
}

// CoolOffUntil returns the end of the current cool-off window, or the zero
// time if none was ever set.
func (g *Gate) CoolOffUntil() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.coolOffUntil
}

// Snapshot reports the gate's limit, holders, and cool-off.
func (g *Gate) Snapshot() archive.RateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	state := archive.RateState{Limit: g.limit, InFlight: g.inFlight}
	if g.coolOffUntil.After(g.clock.Now()) {
		state.CoolOffUntil = g.coolOffUntil
	}
	return state
}

func (g *Gate) broadcastLocked() {
	close(g.wake)
	g.wake = make(chan struct{})
}
