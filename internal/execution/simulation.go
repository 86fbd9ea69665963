package execution

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SimulationRequest is the payload submitted to a provider.
type SimulationRequest struct {
	Chain       string
	From        string
	To          string
	Value       string
	Data        []byte
	BlockNumber uint64
}

// SimulationResult is what a provider returns on success.
type SimulationResult struct {
	Reverts      bool
	RevertReason string
	GasUsed      uint64
}

// SimProvider is one simulation backend (full-EVM primary, eth_call
// fallback, local-fork for pending state).
type SimProvider interface {
	Name() string
	HealthScore() float64 // higher is healthier; used to pick the primary provider
	Simulate(ctx context.Context, req SimulationRequest) (SimulationResult, error)
}

// ErrSimulationBypassed signals that every provider failed and the
// caller should proceed without a simulation result rather than block
// execution.
var ErrSimulationBypassed = errors.New("execution: simulation bypassed, all providers unavailable")

// SimulationService selects the highest-health provider and falls
// through the rest on timeout/error.
type SimulationService struct {
	mu         sync.RWMutex
	providers  []SimProvider
	maxLatency time.Duration
}

// NewSimulationService constructs a service over providers with the
// default 500ms latency budget.
func NewSimulationService(providers []SimProvider, maxLatency time.Duration) *SimulationService {
	if maxLatency <= 0 {
		maxLatency = 500 * time.Millisecond
	}
	return &SimulationService{providers: providers, maxLatency: maxLatency}
}

// Simulate tries providers in health-score order, returning
// ErrSimulationBypassed (not a hard failure) if every one times out or
// errors.
func (s *SimulationService) Simulate(ctx context.Context, req SimulationRequest) (SimulationResult, error) {
	s.mu.RLock()
	ordered := healthOrdered(s.providers)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, s.maxLatency)
	defer cancel()

	for _, provider := range ordered {
		result, err := s.tryProvider(ctx, provider, req)
		if err == nil {
			return result, nil
		}
	}
	return SimulationResult{}, ErrSimulationBypassed
}

func (s *SimulationService) tryProvider(ctx context.Context, provider SimProvider, req SimulationRequest) (SimulationResult, error) {
	type outcome struct {
		result SimulationResult
		err    error
	}
	resultCh := make(chan outcome, 1)
	go func() {
		result, err := provider.Simulate(ctx, req)
		resultCh <- outcome{result, err}
	}()

	select {
	case o := <-resultCh:
		return o.result, o.err
	case <-ctx.Done():
		return SimulationResult{}, ctx.Err()
	}
}

func healthOrdered(providers []SimProvider) []SimProvider {
	out := append([]SimProvider(nil), providers...)
	for i := 1; i < len(out); i++ {
		j := i
		for j > 0 && out[j-1].HealthScore() < out[j].HealthScore() {
			out[j-1], out[j] = out[j], out[j-1]
			j--
		}
	}
	return out
}
