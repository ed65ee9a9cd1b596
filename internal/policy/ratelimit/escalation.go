package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/wayback-fetcher/internal/archive"
	"github.com/JakeFAU/wayback-fetcher/internal/metrics"
)

// EscalationConfig holds the throttling thresholds and windows.
type EscalationConfig struct {
	// Nominal is the gate limit restored on recovery.
	Nominal int
	// CoolOff is armed on each 429 and, while escalated, after every response.
	CoolOff time.Duration
	// ErrorCoolOff is armed on transport failures and unexpected statuses.
	ErrorCoolOff time.Duration
	// Threshold caps the escalation level; reaching past it arms PenaltyWindow.
	Threshold        int
	PenaltyWindow    time.Duration
	DetectionTimeout time.Duration
}

// DefaultEscalationConfig mirrors the archive's observed tolerance of
// roughly fifteen requests a minute once it starts throttling.
func DefaultEscalationConfig(nominal int) EscalationConfig {
	return EscalationConfig{
		Nominal:          nominal,
		CoolOff:          4 * time.Second,
		ErrorCoolOff:     4 * time.Second,
		Threshold:        10,
		PenaltyWindow:    5 * time.Minute,
		DetectionTimeout: 3 * time.Minute,
	}
}

// Escalation owns the throttling level and drives the Gate's limit and
// cool-off from response outcomes. All methods are safe for concurrent use.
type Escalation struct {
	mu             sync.Mutex
	cfg            EscalationConfig
	gate           *Gate
	clock          archive.Clock
	logger         *zap.Logger
	level          int
	detectionStart time.Time
}

// NewEscalation binds a state machine to gate and sets the gate to nominal.
func NewEscalation(cfg EscalationConfig, gate *Gate, clock archive.Clock, logger *zap.Logger) *Escalation {
	if cfg.Nominal < 1 {
		cfg.Nominal = 1
	}
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	if clock == nil {
		clock = realClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	gate.SetLimit(cfg.Nominal)
	e := &Escalation{cfg: cfg, gate: gate, clock: clock, logger: logger}
	e.publish()
	return e
}

// OnThrottled handles a 429: raise the level, drop the gate to a single
// slot, and arm a cool-off. Past the threshold the level is pinned and the
// penalty window is armed instead.
func (e *Escalation) OnThrottled() {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.clock.Now()
	e.level++
	e.detectionStart = now
	e.gate.SetLimit(1)

	if e.level > e.cfg.Threshold {
		e.level = e.cfg.Threshold
		e.gate.ExtendCoolOff(now.Add(e.cfg.PenaltyWindow))
		metrics.ObserveCoolOff("penalty")
		e.logger.Error("throttling persisted, applying penalty window",
			zap.Int("ddos_level", e.level),
			zap.Duration("penalty", e.cfg.PenaltyWindow))
	} else {
		e.gate.ExtendCoolOff(now.Add(e.cfg.CoolOff))
		metrics.ObserveCoolOff("throttle")
		e.logger.Error("archive throttling detected, reducing concurrency",
			zap.Int("ddos_level", e.level),
			zap.Int("limit", 1))
	}
	e.publish()
}

// OnError arms the short error cool-off without touching the level.
func (e *Escalation) OnError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gate.ExtendCoolOff(e.clock.Now().Add(e.cfg.ErrorCoolOff))
	metrics.ObserveCoolOff("error")
	e.logger.Warn("cool-off initiated", zap.Duration("cool_off", e.cfg.ErrorCoolOff))
	e.publish()
}

// OnResponse is called for every non-429 response. It checks for recovery
// and, while still escalated, paces the next dispatch by one cool-off.
func (e *Escalation) OnResponse() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoverLocked()
	if e.level > 0 {
		e.gate.ExtendCoolOff(e.clock.Now().Add(e.cfg.CoolOff))
	}
	e.publish()
}

// Recover resets the level and restores the nominal limit once no 429 has
// been seen for longer than the detection timeout. It reports whether the
// machine is back at level zero.
func (e *Escalation) Recover() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.recoverLocked()
	e.publish()
	return e.level == 0
}

func (e *Escalation) recoverLocked() {
	if e.level == 0 {
		return
	}
	if e.clock.Now().Sub(e.detectionStart) <= e.cfg.DetectionTimeout {
		return
	}
	e.level = 0
	e.detectionStart = time.Time{}
	e.gate.SetLimit(e.cfg.Nominal)
	e.logger.Warn("throttling subsided, restoring concurrency", zap.Int("limit", e.cfg.Nominal))
}

// State returns the combined gate and escalation view.
func (e *Escalation) State() archive.RateState {
	e.mu.Lock()
	level := e.level
	e.mu.Unlock()
	state := e.gate.Snapshot()
	state.DDOSLevel = level
	return state
}

// Level returns the current escalation level.
func (e *Escalation) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.level
}

func (e *Escalation) publish() {
	snap := e.gate.Snapshot()
	metrics.SetRateState(snap.Limit, snap.InFlight, e.level)
}
