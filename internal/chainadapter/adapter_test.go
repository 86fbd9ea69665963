package chainadapter

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/blackhole-arb/arbcore/internal/cache"
)

func TestGasEstimator_UsesConfiguredGasUnitsPerChain(t *testing.T) {
	prices := cache.NewGasPriceCache(nil, time.Hour, zerolog.Nop())
	// Seed the cache directly via the fallback path instead of a live
	// oracle call, since GasEstimator only needs GasPriceGwei's read path.
	est := NewGasEstimator(prices, map[string]uint64{"ethereum": 21000})

	costKnownChain := est.EstimateGasCostUsd("ethereum", cache.GasPresetStandard, 2000)
	costUnknownChain := est.EstimateGasCostUsd("unknown-chain", cache.GasPresetStandard, 2000)

	assert.Greater(t, costKnownChain, 0.0)
	assert.Greater(t, costUnknownChain, 0.0)
	// unknown-chain defaults to 200,000 gas units vs ethereum's configured
	// 21,000, so its USD cost should be substantially larger at the same
	// native USD price, even though its fallback gas price (20 gwei) is
	// below ethereum's (30 gwei).
	assert.Greater(t, costUnknownChain, costKnownChain)
}

func TestGasEstimator_DefaultsMissingChainTo200kUnits(t *testing.T) {
	prices := cache.NewGasPriceCache(nil, time.Hour, zerolog.Nop())
	est := NewGasEstimator(prices, nil)

	cost := est.EstimateGasCostUsd("polygon", cache.GasPresetStandard, 1.0)
	assert.Greater(t, cost, 0.0)
}
