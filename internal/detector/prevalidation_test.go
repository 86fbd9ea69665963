package detector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/blackhole-arb/arbcore/internal/types"
)

type stubSimProvider struct {
	reverts bool
	err     error
	delay   time.Duration
}

func (s stubSimProvider) Simulate(ctx context.Context, opp types.Opportunity) (bool, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return s.reverts, s.err
}

func TestPreValidation_BelowValueFloorAlwaysPasses(t *testing.T) {
	o := NewPreValidationOrchestrator(PreValidationOrchestratorConfig{ValueFloorUsd: 50, SampleRate: 1.0}, stubSimProvider{reverts: true}, fixedClock{ms: 1000}, zerolog.Nop())
	assert.True(t, o.Validate(context.Background(), types.Opportunity{ExpectedProfitUsd: 10}))
}

func TestPreValidation_RevertBlocksWhenSampledAndAboveFloor(t *testing.T) {
	o := NewPreValidationOrchestrator(PreValidationOrchestratorConfig{ValueFloorUsd: 50, SampleRate: 1.0}, stubSimProvider{reverts: true}, fixedClock{ms: 1000}, zerolog.Nop())
	assert.False(t, o.Validate(context.Background(), types.Opportunity{ExpectedProfitUsd: 100}))
}

func TestPreValidation_ProviderErrorFailsOpen(t *testing.T) {
	o := NewPreValidationOrchestrator(PreValidationOrchestratorConfig{ValueFloorUsd: 50, SampleRate: 1.0}, stubSimProvider{err: errors.New("rpc down")}, fixedClock{ms: 1000}, zerolog.Nop())
	assert.True(t, o.Validate(context.Background(), types.Opportunity{ExpectedProfitUsd: 100}))
}

func TestPreValidation_TimeoutFailsOpen(t *testing.T) {
	o := NewPreValidationOrchestrator(PreValidationOrchestratorConfig{ValueFloorUsd: 50, SampleRate: 1.0, MaxLatency: 5 * time.Millisecond}, stubSimProvider{reverts: true, delay: 50 * time.Millisecond}, fixedClock{ms: 1000}, zerolog.Nop())
	assert.True(t, o.Validate(context.Background(), types.Opportunity{ExpectedProfitUsd: 100}))
}

func TestPreValidation_BudgetExhaustionFailsOpen(t *testing.T) {
	o := NewPreValidationOrchestrator(PreValidationOrchestratorConfig{ValueFloorUsd: 50, SampleRate: 1.0, MonthlyBudget: 1}, stubSimProvider{reverts: true}, fixedClock{ms: 1000}, zerolog.Nop())

	assert.False(t, o.Validate(context.Background(), types.Opportunity{ExpectedProfitUsd: 100}))
	assert.True(t, o.Validate(context.Background(), types.Opportunity{ExpectedProfitUsd: 100}), "second call should exhaust budget and fail open")
}
