// Package risk implements the position-sizing and drawdown-protection
// layer: expected-value gating, Kelly-fraction position
// sizing, the win-probability tracker, and the drawdown circuit breaker
// state machine.
package risk

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// evSampleWindow bounds how many recent EV readings per opportunity key
// are averaged before gating, damping noise from concurrently-polled
// price sources quoting slightly different profit estimates.
const evSampleWindow = 5

// EVCalculator computes the expected value of taking a trade:
// EV = p*expectedProfit - (1-p)*(gasCost+expectedLoss).
type EVCalculator struct {
	MinEvThreshold float64 // default ~0.005 ETH-equivalent units

	mu     sync.Mutex
	recent map[string][]float64
}

// NewEVCalculator constructs a calculator with the default
// threshold.
func NewEVCalculator(minEvThreshold float64) *EVCalculator {
	if minEvThreshold <= 0 {
		minEvThreshold = 0.005
	}
	return &EVCalculator{MinEvThreshold: minEvThreshold, recent: make(map[string][]float64)}
}

// Calculate returns the expected value for a trade with win probability
// p, expected profit on win, gas cost, and expected loss on failure.
func (c *EVCalculator) Calculate(winProbability, expectedProfit, gasCost, expectedLoss float64) float64 {
	return winProbability*expectedProfit - (1-winProbability)*(gasCost+expectedLoss)
}

// CalculateSmoothed behaves like Calculate, but averages the result with
// up to evSampleWindow-1 prior readings for key via gonum's stat.Mean,
// so a single noisy quote cannot single-handedly pass or fail the gate.
func (c *EVCalculator) CalculateSmoothed(key string, winProbability, expectedProfit, gasCost, expectedLoss float64) float64 {
	ev := c.Calculate(winProbability, expectedProfit, gasCost, expectedLoss)

	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.recent[key], ev)
	if len(history) > evSampleWindow {
		history = history[len(history)-evSampleWindow:]
	}
	c.recent[key] = history

	return stat.Mean(history, nil)
}

// Passes reports whether ev clears the configured minimum threshold.
func (c *EVCalculator) Passes(ev float64) bool {
	return ev >= c.MinEvThreshold
}
