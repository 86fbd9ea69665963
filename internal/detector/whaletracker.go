package detector

import (
	"sync"
)

// WhaleTrackerConfig carries the trade-size threshold a swap must clear
// to register as a whale signal.
type WhaleTrackerConfig struct {
	ThresholdUsd float64 // default $100,000
}

// SwapWhaleTracker implements WhaleSignalSource from the chain's decoded
// swap stream: a trade whose size (in token0 units, the same
// raw-unit-as-USD approximation ChainDetector's liquidity check uses)
// clears ThresholdUsd updates the pair's latest signal.
type SwapWhaleTracker struct {
	cfg WhaleTrackerConfig

	mu     sync.RWMutex
	latest map[string]WhaleSignal
}

// NewSwapWhaleTracker constructs a tracker with the given threshold.
func NewSwapWhaleTracker(cfg WhaleTrackerConfig) *SwapWhaleTracker {
	if cfg.ThresholdUsd <= 0 {
		cfg.ThresholdUsd = 100_000
	}
	return &SwapWhaleTracker{cfg: cfg, latest: make(map[string]WhaleSignal)}
}

// Observe records a decoded swap of sizeUsd against normalizedPair;
// buyingToken0 is true when the trade bought token0 (pushing its price
// up), false when it sold token0 (pushing its price down). Swaps below
// the threshold are ignored.
func (t *SwapWhaleTracker) Observe(normalizedPair string, sizeUsd float64, buyingToken0 bool) {
	if sizeUsd < t.cfg.ThresholdUsd {
		return
	}
	direction := "down"
	if buyingToken0 {
		direction = "up"
	}
	signal := WhaleSignal{Direction: direction, Multiple: sizeUsd / t.cfg.ThresholdUsd}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[normalizedPair] = signal
}

// LatestSignal implements WhaleSignalSource.
func (t *SwapWhaleTracker) LatestSignal(normalizedPair string) (WhaleSignal, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.latest[normalizedPair]
	return s, ok
}

var _ WhaleSignalSource = (*SwapWhaleTracker)(nil)
