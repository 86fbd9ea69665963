package detector

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// SimulationProvider is the cheap, high-quota simulation path
// pre-validation uses, distinct from the premium providers the
// execution-time SimulationService reserves for itself.
type SimulationProvider interface {
	Simulate(ctx context.Context, opp types.Opportunity) (reverts bool, err error)
}

// PreValidationOrchestratorConfig carries the tunables.
type PreValidationOrchestratorConfig struct {
	ValueFloorUsd   float64
	SampleRate      float64
	MaxLatency      time.Duration
	MonthlyBudget   int
}

// PreValidationOrchestrator samples opportunities above a value floor
// and cheaply simulates a subset of them to catch execution-time
// failures early, failing open on any error, timeout, or budget
// exhaustion.
type PreValidationOrchestrator struct {
	cfg      PreValidationOrchestratorConfig
	provider SimulationProvider
	log      zerolog.Logger

	mu            sync.Mutex
	budgetMonth   time.Month
	budgetUsed    int
	clock         types.Clock
}

// NewPreValidationOrchestrator constructs an orchestrator with default
// tunables: valueFloor=$50, sampleRate=0.1, maxLatency=100ms.
func NewPreValidationOrchestrator(cfg PreValidationOrchestratorConfig, provider SimulationProvider, clock types.Clock, log zerolog.Logger) *PreValidationOrchestrator {
	if cfg.ValueFloorUsd <= 0 {
		cfg.ValueFloorUsd = 50
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 0.1
	}
	if cfg.MaxLatency <= 0 {
		cfg.MaxLatency = 100 * time.Millisecond
	}
	if cfg.MonthlyBudget <= 0 {
		cfg.MonthlyBudget = 100000
	}
	return &PreValidationOrchestrator{cfg: cfg, provider: provider, clock: clock, log: log}
}

// Validate returns false only when the simulation provider was actually
// invoked and reported a revert; every other path (below value floor,
// not sampled, budget exhausted, timeout, provider error) fails open and
// returns true.
func (o *PreValidationOrchestrator) Validate(ctx context.Context, opp types.Opportunity) bool {
	if opp.ExpectedProfitUsd < o.cfg.ValueFloorUsd {
		return true
	}
	if rand.Float64() >= o.cfg.SampleRate {
		return true
	}
	if !o.consumeBudget() {
		return true
	}
	if o.provider == nil {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.MaxLatency)
	defer cancel()

	type result struct {
		reverts bool
		err     error
	}
	resultCh := make(chan result, 1)
	go func() {
		reverts, err := o.provider.Simulate(ctx, opp)
		resultCh <- result{reverts, err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			o.log.Debug().Err(r.err).Msg("pre-validation simulation errored, failing open")
			return true
		}
		return !r.reverts
	case <-ctx.Done():
		return true
	}
}

// consumeBudget reports whether the monthly simulation budget still has
// room, resetting the counter on calendar-month rollover.
func (o *PreValidationOrchestrator) consumeBudget() bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.UnixMilli(o.clock.NowMs())
	if now.Month() != o.budgetMonth {
		o.budgetMonth = now.Month()
		o.budgetUsed = 0
	}
	if o.budgetUsed >= o.cfg.MonthlyBudget {
		return false
	}
	o.budgetUsed++
	return true
}
