package execution

import (
	"errors"
	"math/big"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// Strategy executes one opportunity type end to end, returning the
// signed transaction ready for MEV submission. Each concrete strategy
// (intra-chain direct, cross-chain, flash-loan, triangular, statistical)
// is generalized from a single DEX's per-call swap construction into a
// shared interface so the engine can
// dispatch without a type switch per opportunity kind.
type Strategy interface {
	Name() string
	Supports(opp types.Opportunity) bool
	Build(opp types.Opportunity, amountIn *big.Int) (SignedTx, error)
}

// StrategyRouter selects a Strategy for an opportunity type and chain
// capability.
type StrategyRouter struct {
	strategies []Strategy
}

// NewStrategyRouter constructs a router over the given strategies,
// tried in registration order.
func NewStrategyRouter(strategies ...Strategy) *StrategyRouter {
	return &StrategyRouter{strategies: strategies}
}

// ErrNoStrategy is returned when no registered strategy supports an
// opportunity.
var ErrNoStrategy = errors.New("execution: no strategy supports this opportunity")

// Route picks the first strategy that supports opp.
func (r *StrategyRouter) Route(opp types.Opportunity) (Strategy, error) {
	for _, s := range r.strategies {
		if s.Supports(opp) {
			return s, nil
		}
	}
	return nil, ErrNoStrategy
}
