package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEscalation(t *testing.T, nominal int) (*Escalation, *Gate, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	gate := NewGate(nominal, clock)
	esc := NewEscalation(DefaultEscalationConfig(nominal), gate, clock, zap.NewNop())
	return esc, gate, clock
}

func TestEscalationRaisesLevelAndPinsLimit(t *testing.T) {
	esc, gate, clock := newTestEscalation(t, 4)

	for i := 0; i < 3; i++ {
		esc.OnThrottled()
	}

	state := esc.State()
	assert.Equal(t, 3, state.DDOSLevel)
	assert.Equal(t, 1, state.Limit)
	assert.Equal(t, clock.Now().Add(4*time.Second), gate.CoolOffUntil())
}

func TestEscalationRecoversAfterDetectionTimeout(t *testing.T) {
	esc, gate, clock := newTestEscalation(t, 4)
	for i := 0; i < 3; i++ {
		esc.OnThrottled()
	}

	clock.Advance(3 * time.Minute)
	assert.False(t, esc.Recover(), "exactly the timeout is not longer than it")
	assert.Equal(t, 3, esc.Level())

	clock.Advance(time.Second)
	assert.True(t, esc.Recover())
	assert.Equal(t, 0, esc.Level())
	assert.Equal(t, 4, gate.Snapshot().Limit)
}

func TestEscalationLater429RestartsDetectionWindow(t *testing.T) {
	esc, _, clock := newTestEscalation(t, 2)
	esc.OnThrottled()
	clock.Advance(2 * time.Minute)
	esc.OnThrottled()
	clock.Advance(2 * time.Minute)

	assert.False(t, esc.Recover())
	assert.Equal(t, 2, esc.Level())
}

func TestEscalationPinsAtThresholdWithPenalty(t *testing.T) {
	esc, gate, clock := newTestEscalation(t, 4)

	for i := 0; i < 12; i++ {
		esc.OnThrottled()
	}

	assert.Equal(t, 10, esc.Level())
	assert.Equal(t, clock.Now().Add(5*time.Minute), gate.CoolOffUntil())
	assert.False(t, gate.TryAcquire())

	// A later short cool-off must not cut the penalty short.
	esc.OnError()
	assert.Equal(t, clock.Now().Add(5*time.Minute), gate.CoolOffUntil())
}

func TestEscalationErrorCoolOffLeavesLevelAlone(t *testing.T) {
	esc, gate, clock := newTestEscalation(t, 4)

	esc.OnError()

	assert.Equal(t, 0, esc.Level())
	assert.Equal(t, 4, gate.Snapshot().Limit)
	assert.Equal(t, clock.Now().Add(4*time.Second), gate.CoolOffUntil())
	assert.False(t, gate.TryAcquire())

	clock.Advance(5 * time.Second)
	assert.True(t, gate.TryAcquire())
}

func TestEscalationOnResponsePacesWhileEscalated(t *testing.T) {
	esc, gate, clock := newTestEscalation(t, 4)

	esc.OnResponse()
	assert.True(t, gate.CoolOffUntil().IsZero(), "no pacing at level zero")

	esc.OnThrottled()
	clock.Advance(10 * time.Second)
	esc.OnResponse()
	assert.Equal(t, clock.Now().Add(4*time.Second), gate.CoolOffUntil())

	clock.Advance(4 * time.Minute)
	esc.OnResponse()
	assert.Equal(t, 0, esc.Level())
	assert.Equal(t, 4, gate.Snapshot().Limit)
}

func TestNewEscalationNormalizesConfig(t *testing.T) {
	gate := NewGate(8, newFakeClock())
	esc := NewEscalation(EscalationConfig{}, gate, nil, nil)
	require.NotNil(t, esc)
	assert.Equal(t, 1, gate.Snapshot().Limit)

	esc.OnThrottled()
	esc.OnThrottled()
	assert.Equal(t, 1, esc.Level())
}
