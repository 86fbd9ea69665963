package risk

import (
	"sync"

	"gonum.org/v1/gonum/stat"
)

// profitSampleWindow bounds how many recent realized-profit samples per
// key feed the volatility discount.
const profitSampleWindow = 20

// KellyPositionSizerConfig carries the always-enforced
// bounds: maxSingleTradeFraction default 0.02, minTradeFraction default
// 0.001, and the half-Kelly multiplier default 0.5.
type KellyPositionSizerConfig struct {
	KellyMultiplier        float64
	MaxSingleTradeFraction float64
	MinTradeFraction       float64
}

// KellyPositionSizer computes the fraction of total capital to commit to
// a trade via the Kelly criterion, scaled by a fractional-Kelly
// multiplier and a drawdown size multiplier, then clamped to the
// configured bounds.
type KellyPositionSizer struct {
	cfg KellyPositionSizerConfig

	mu      sync.Mutex
	samples map[string][]float64
}

// NewKellyPositionSizer applies default bounds for any zero-valued
// field.
func NewKellyPositionSizer(cfg KellyPositionSizerConfig) *KellyPositionSizer {
	if cfg.KellyMultiplier <= 0 {
		cfg.KellyMultiplier = 0.5
	}
	if cfg.MaxSingleTradeFraction <= 0 {
		cfg.MaxSingleTradeFraction = 0.02
	}
	if cfg.MinTradeFraction <= 0 {
		cfg.MinTradeFraction = 0.001
	}
	return &KellyPositionSizer{cfg: cfg, samples: make(map[string][]float64)}
}

// RecordRealizedProfit feeds a realized profit/loss sample (in the same
// units as expectedProfit/expectedLoss) into key's volatility history,
// used by SizeWithVolatility to discount sizing under high variance.
func (s *KellyPositionSizer) RecordRealizedProfit(key string, profit float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := append(s.samples[key], profit)
	if len(history) > profitSampleWindow {
		history = history[len(history)-profitSampleWindow:]
	}
	s.samples[key] = history
}

// volatilityDiscount returns a [0.5, 1.0] multiplier derived from key's
// recorded profit variance via gonum's stat.MeanStdDev: a coefficient of
// variation near or above 1 (returns as volatile as their own mean)
// halves the position size; a quiet history leaves it unchanged.
func (s *KellyPositionSizer) volatilityDiscount(key string) float64 {
	s.mu.Lock()
	history := append([]float64(nil), s.samples[key]...)
	s.mu.Unlock()

	if len(history) < 5 {
		return 1.0
	}

	mean, std := stat.MeanStdDev(history, nil)
	if mean <= 0 {
		return 1.0
	}
	cv := std / mean
	discount := 1.0 - 0.5*cv
	if discount < 0.5 {
		discount = 0.5
	}
	if discount > 1.0 {
		discount = 1.0
	}
	return discount
}

// SizeWithVolatility behaves like Size, additionally discounting the
// result by key's recorded profit volatility.
func (s *KellyPositionSizer) SizeWithVolatility(key string, winProbability, expectedProfit, expectedLoss, drawdownSizeMultiplier float64) float64 {
	return s.Size(winProbability, expectedProfit, expectedLoss, drawdownSizeMultiplier*s.volatilityDiscount(key))
}

// Size returns the capital fraction to commit. winProbability is p,
// expectedProfit/expectedLoss give b = expectedProfit/expectedLoss. A
// zero return means "skip the trade".
func (s *KellyPositionSizer) Size(winProbability, expectedProfit, expectedLoss, drawdownSizeMultiplier float64) float64 {
	if expectedLoss <= 0 || winProbability <= 0 || winProbability >= 1 {
		return 0
	}

	b := expectedProfit / expectedLoss
	if b <= 0 {
		return 0
	}

	p := winProbability
	q := 1 - p
	fullKelly := (p*b - q) / b
	if fullKelly <= 0 {
		return 0
	}

	fraction := fullKelly * s.cfg.KellyMultiplier * drawdownSizeMultiplier
	if fraction > s.cfg.MaxSingleTradeFraction {
		fraction = s.cfg.MaxSingleTradeFraction
	}
	if fraction < s.cfg.MinTradeFraction {
		return 0
	}
	return fraction
}
