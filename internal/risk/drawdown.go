package risk

import (
	"sync"
	"time"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// DrawdownCircuitBreakerConfig carries the thresholds.
type DrawdownCircuitBreakerConfig struct {
	CautionLossFraction float64 // default 0.03
	HaltLossFraction    float64 // default 0.05
	HaltConsecutiveLosses int   // default 5
	CooldownMs            int64 // default 1h
	RecoveryWinsRequired  int   // default 3
	TotalCapital          float64
}

// DrawdownCircuitBreaker implements the NORMAL/CAUTION/HALT/RECOVERY
// state machine, including the daily-rollover and
// cooldown transitions.
type DrawdownCircuitBreaker struct {
	cfg   DrawdownCircuitBreakerConfig
	clock types.Clock

	mu                 sync.Mutex
	state              types.DrawdownState
	dailyPnl           float64
	consecutiveLosses  int
	consecutiveWins    int
	haltedAtMs         int64
	rolloverTracked    bool
	lastRolloverDay    int64 // days since epoch, UTC
}

// NewDrawdownCircuitBreaker applies default thresholds for zero-valued
// config fields.
func NewDrawdownCircuitBreaker(cfg DrawdownCircuitBreakerConfig, clock types.Clock) *DrawdownCircuitBreaker {
	if cfg.CautionLossFraction <= 0 {
		cfg.CautionLossFraction = 0.03
	}
	if cfg.HaltLossFraction <= 0 {
		cfg.HaltLossFraction = 0.05
	}
	if cfg.HaltConsecutiveLosses <= 0 {
		cfg.HaltConsecutiveLosses = 5
	}
	if cfg.CooldownMs <= 0 {
		cfg.CooldownMs = int64(time.Hour / time.Millisecond)
	}
	if cfg.RecoveryWinsRequired <= 0 {
		cfg.RecoveryWinsRequired = 3
	}
	return &DrawdownCircuitBreaker{cfg: cfg, clock: clock}
}

// RecordOutcome feeds one trade result into the breaker, updating
// dailyPnl/consecutiveLosses and advancing the state machine.
func (b *DrawdownCircuitBreaker) RecordOutcome(profitUsd float64, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rolloverIfNewDayLocked()

	b.dailyPnl += profitUsd
	if success {
		b.consecutiveLosses = 0
		b.consecutiveWins++
	} else {
		b.consecutiveLosses++
		b.consecutiveWins = 0
	}

	b.advanceLocked()
}

// State returns the current drawdown state after checking for a
// calendar-day rollover and cooldown expiry.
func (b *DrawdownCircuitBreaker) State() types.DrawdownState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rolloverIfNewDayLocked()
	b.advanceLocked()
	return b.state
}

// rolloverIfNewDayLocked must be called with b.mu held.
func (b *DrawdownCircuitBreaker) rolloverIfNewDayLocked() {
	day := time.UnixMilli(b.clock.NowMs()).UTC().Truncate(24 * time.Hour).Unix()
	if b.rolloverTracked && day != b.lastRolloverDay {
		b.state = types.DrawdownNormal
		b.dailyPnl = 0
		b.consecutiveLosses = 0
		b.consecutiveWins = 0
	}
	b.rolloverTracked = true
	b.lastRolloverDay = day
}

// advanceLocked must be called with b.mu held.
func (b *DrawdownCircuitBreaker) advanceLocked() {
	if b.cfg.TotalCapital <= 0 {
		return
	}
	lossFraction := 0.0
	if b.dailyPnl < 0 {
		lossFraction = -b.dailyPnl / b.cfg.TotalCapital
	}

	// A single update can cross more than one threshold (e.g. straight
	// from NORMAL to HALT), so step the machine until it settles rather
	// than advancing at most one state per call.
	for {
		before := b.state
		switch b.state {
		case types.DrawdownNormal:
			if lossFraction >= b.cfg.HaltLossFraction || b.consecutiveLosses >= b.cfg.HaltConsecutiveLosses {
				b.state = types.DrawdownHalt
				b.haltedAtMs = b.clock.NowMs()
			} else if lossFraction >= b.cfg.CautionLossFraction {
				b.state = types.DrawdownCaution
			}
		case types.DrawdownCaution:
			if lossFraction >= b.cfg.HaltLossFraction || b.consecutiveLosses >= b.cfg.HaltConsecutiveLosses {
				b.state = types.DrawdownHalt
				b.haltedAtMs = b.clock.NowMs()
			} else if lossFraction < b.cfg.CautionLossFraction {
				b.state = types.DrawdownNormal
			}
		case types.DrawdownHalt:
			if b.clock.NowMs()-b.haltedAtMs >= b.cfg.CooldownMs {
				b.state = types.DrawdownRecovery
				b.consecutiveWins = 0
			}
		case types.DrawdownRecovery:
			if b.consecutiveWins >= b.cfg.RecoveryWinsRequired {
				b.state = types.DrawdownNormal
			}
		}
		if b.state == before {
			return
		}
	}
}

// SizeMultiplier returns the current state's position-size multiplier.
func (b *DrawdownCircuitBreaker) SizeMultiplier() float64 {
	return b.State().SizeMultiplier()
}
