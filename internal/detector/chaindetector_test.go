package detector

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackhole-arb/arbcore/internal/cache"
	"github.com/blackhole-arb/arbcore/internal/types"
)

type fixedGas struct{ usd float64 }

func (g fixedGas) EstimateGasCostUsd(chainID string, preset cache.GasPreset, nativeUsd float64) float64 {
	return g.usd
}

type fixedClock struct{ ms int64 }

func (c fixedClock) NowMs() int64 { return c.ms }

func newTestDetector(minProfitUsd, minProfitPct, gasUsd float64) *ChainDetector {
	cfg := ChainDetectorConfig{
		ChainID:      "ethereum",
		MinProfitUsd: minProfitUsd,
		MinProfitPct: minProfitPct,
		Confidence:   0.7,
		ExpiryMs:     5000,
		BaseSlippage: 0.001,
	}
	return NewChainDetector(cfg, fixedGas{usd: gasUsd}, fixedClock{ms: 1_000_000}, zerolog.Nop())
}

func addr(n byte) common.Address {
	var a common.Address
	a[19] = n
	return a
}

func TestChainDetector_DetectsMispricedPairAcrossDexes(t *testing.T) {
	d := newTestDetector(0, 0, 0)

	token0, token1 := addr(1), addr(2)
	cheap := types.NewTokenPair("ethereum", "dexA", addr(10), token0, token1, 18, 18)
	cheap.UpdateReserves(big.NewInt(1_000_000), big.NewInt(1_000_000), 1, 1_000_000)

	expensive := types.NewTokenPair("ethereum", "dexB", addr(11), token0, token1, 18, 18)
	expensive.UpdateReserves(big.NewInt(1_000_000), big.NewInt(2_000_000), 1, 1_000_000)

	d.RegisterPair(cheap)
	d.RegisterPair(expensive)

	opps := d.OnReserveUpdate(cheap.Address.Hex(), big.NewInt(1_000_000), big.NewInt(1_000_000), 2)
	require.Len(t, opps, 1)
	assert.Equal(t, types.OpportunityIntraDex, opps[0].Type)
	assert.Equal(t, "dexA", opps[0].BuyDex)
	assert.Equal(t, "dexB", opps[0].SellDex)
	assert.True(t, opps[0].Valid())
}

func TestChainDetector_NoOpportunityWhenPricesAligned(t *testing.T) {
	d := newTestDetector(0, 0, 0)

	token0, token1 := addr(1), addr(2)
	pairA := types.NewTokenPair("ethereum", "dexA", addr(10), token0, token1, 18, 18)
	pairA.UpdateReserves(big.NewInt(1_000_000), big.NewInt(1_000_000), 1, 1_000_000)
	pairB := types.NewTokenPair("ethereum", "dexB", addr(11), token0, token1, 18, 18)
	pairB.UpdateReserves(big.NewInt(1_000_000), big.NewInt(1_000_000), 1, 1_000_000)

	d.RegisterPair(pairA)
	d.RegisterPair(pairB)

	opps := d.OnReserveUpdate(pairA.Address.Hex(), big.NewInt(1_000_000), big.NewInt(1_000_000), 2)
	assert.Empty(t, opps, "equal-priced pools after fees should not clear profit thresholds")
}

func TestChainDetector_RejectsBelowMinProfitThreshold(t *testing.T) {
	d := newTestDetector(1_000_000_000, 0, 0) // unreachable USD floor

	token0, token1 := addr(1), addr(2)
	cheap := types.NewTokenPair("ethereum", "dexA", addr(10), token0, token1, 18, 18)
	cheap.UpdateReserves(big.NewInt(1_000_000), big.NewInt(1_000_000), 1, 1_000_000)
	expensive := types.NewTokenPair("ethereum", "dexB", addr(11), token0, token1, 18, 18)
	expensive.UpdateReserves(big.NewInt(1_000_000), big.NewInt(2_000_000), 1, 1_000_000)

	d.RegisterPair(cheap)
	d.RegisterPair(expensive)

	opps := d.OnReserveUpdate(cheap.Address.Hex(), big.NewInt(1_000_000), big.NewInt(1_000_000), 2)
	assert.Empty(t, opps)
}

func TestChainDetector_StoppedDetectorIgnoresUpdates(t *testing.T) {
	d := newTestDetector(0, 0, 0)
	token0, token1 := addr(1), addr(2)
	pair := types.NewTokenPair("ethereum", "dexA", addr(10), token0, token1, 18, 18)
	d.RegisterPair(pair)

	d.Stop()
	opps := d.OnReserveUpdate(pair.Address.Hex(), big.NewInt(1), big.NewInt(1), 1)
	assert.Nil(t, opps)
}

func TestChainDetector_UnknownPairAddressIsNoop(t *testing.T) {
	d := newTestDetector(0, 0, 0)
	opps := d.OnReserveUpdate("0xunknown", big.NewInt(1), big.NewInt(1), 1)
	assert.Nil(t, opps)
}
