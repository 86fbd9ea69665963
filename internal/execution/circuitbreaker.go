package execution

import (
	"sync"
	"time"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// CircuitBreakerEvent is emitted on every state transition, destined for
// the circuit-breaker stream.
type CircuitBreakerEvent struct {
	Chain  string
	From   types.CircuitState
	To     types.CircuitState
	Reason string
	AtMs   int64
}

type chainBreaker struct {
	mu              sync.Mutex
	state           types.CircuitState
	failures        int
	openedAtMs      int64
	halfOpenAttempts int
	forcedOpen      bool
}

// CircuitBreakerManagerConfig carries the shared config.
type CircuitBreakerManagerConfig struct {
	FailureThreshold    int
	CooldownMs          int64
	HalfOpenMaxAttempts int
}

// CircuitBreakerManager maintains a lazily-created per-chain circuit
// breaker, emitting transition events and supporting manual operator
// override.
type CircuitBreakerManager struct {
	cfg CircuitBreakerManagerConfig

	mu       sync.Mutex
	breakers map[string]*chainBreaker

	onEvent func(CircuitBreakerEvent)
	clock   types.Clock
}

// NewCircuitBreakerManager applies default thresholds: failureThreshold=5,
// cooldownMs=5min, halfOpenMaxAttempts=1.
func NewCircuitBreakerManager(cfg CircuitBreakerManagerConfig, clock types.Clock, onEvent func(CircuitBreakerEvent)) *CircuitBreakerManager {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.CooldownMs <= 0 {
		cfg.CooldownMs = int64(5 * time.Minute / time.Millisecond)
	}
	if cfg.HalfOpenMaxAttempts <= 0 {
		cfg.HalfOpenMaxAttempts = 1
	}
	if onEvent == nil {
		onEvent = func(CircuitBreakerEvent) {}
	}
	return &CircuitBreakerManager{cfg: cfg, clock: clock, breakers: make(map[string]*chainBreaker), onEvent: onEvent}
}

func (m *CircuitBreakerManager) breakerFor(chain string) *chainBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.breakers[chain]
	if !ok {
		b = &chainBreaker{}
		m.breakers[chain] = b
	}
	return b
}

// AllowRequest implements step 1: returns false if OPEN
// and cooldown not expired; transitions OPEN->HALF_OPEN and allows one
// probe once cooldown has expired.
func (m *CircuitBreakerManager) AllowRequest(chain string) bool {
	b := m.breakerFor(chain)
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.forcedOpen {
		return false
	}

	switch b.state {
	case types.CircuitClosed:
		return true
	case types.CircuitHalfOpen:
		if b.halfOpenAttempts >= m.cfg.HalfOpenMaxAttempts {
			return false
		}
		b.halfOpenAttempts++
		return true
	case types.CircuitOpen:
		if m.clock.NowMs()-b.openedAtMs >= m.cfg.CooldownMs {
			m.transition(chain, b, types.CircuitHalfOpen, "cooldown-expired")
			b.halfOpenAttempts = 1
			return true
		}
		return false
	}
	return false
}

// RecordSuccess resets failures and, from HALF_OPEN, closes the breaker.
func (m *CircuitBreakerManager) RecordSuccess(chain string) {
	b := m.breakerFor(chain)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == types.CircuitHalfOpen {
		m.transition(chain, b, types.CircuitClosed, "probe-succeeded")
		b.halfOpenAttempts = 0
	}
}

// RecordFailure increments the failure count and opens the breaker from
// CLOSED once the threshold is reached, or immediately from HALF_OPEN.
func (m *CircuitBreakerManager) RecordFailure(chain string) {
	b := m.breakerFor(chain)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch b.state {
	case types.CircuitHalfOpen:
		m.transition(chain, b, types.CircuitOpen, "probe-failed")
	case types.CircuitClosed:
		if b.failures >= m.cfg.FailureThreshold {
			m.transition(chain, b, types.CircuitOpen, "failure-threshold-reached")
		}
	}
}

// transition must be called with b.mu held.
func (m *CircuitBreakerManager) transition(chain string, b *chainBreaker, to types.CircuitState, reason string) {
	from := b.state
	b.state = to
	if to == types.CircuitOpen {
		b.openedAtMs = m.clock.NowMs()
	}
	m.onEvent(CircuitBreakerEvent{Chain: chain, From: from, To: to, Reason: reason, AtMs: m.clock.NowMs()})
}

// ForceOpen lets an operator manually open a chain's breaker regardless
// of its failure count.
func (m *CircuitBreakerManager) ForceOpen(chain, reason string) {
	b := m.breakerFor(chain)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forcedOpen = true
	m.transition(chain, b, types.CircuitOpen, "forced-open: "+reason)
}

// ForceClose clears a manual override and resets the breaker to CLOSED.
func (m *CircuitBreakerManager) ForceClose(chain string) {
	b := m.breakerFor(chain)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forcedOpen = false
	b.failures = 0
	m.transition(chain, b, types.CircuitClosed, "forced-close")
}

// State returns the current state for chain.
func (m *CircuitBreakerManager) State(chain string) types.CircuitState {
	b := m.breakerFor(chain)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
