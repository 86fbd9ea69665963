// Package detector implements the same-chain and cross-chain arbitrage
// scanners: the per-chain ChainDetector reacting to
// reserve updates, and the periodic CrossChainDetector scanning an
// indexed price snapshot, generalized from a single-DEX executor's
// fee/slippage math into a multi-pair scanner.
package detector

import (
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/blackhole-arb/arbcore/internal/cache"
	"github.com/blackhole-arb/arbcore/internal/types"
	"github.com/blackhole-arb/arbcore/pkg/util"
)

// LiquidityPenaltyThresholdUsd is the pool-USD-liquidity floor below
// which the dynamic slippage model applies a heavy penalty.
const LiquidityPenaltyThresholdUsd = 100000

// swapFeeBps is the common constant-product AMM fee; per-DEX overrides
// belong on TokenPair metadata once a DEX with a non-standard fee is
// onboarded.
const swapFeeBps = 30

// ChainDetectorConfig carries the per-chain thresholds and configuration
// surface for one ChainDetector instance.
type ChainDetectorConfig struct {
	ChainID      string
	MinProfitUsd float64
	MinProfitPct float64
	Confidence   float64
	ExpiryMs     int64
	BaseSlippage float64
}

// GasEstimator supplies the USD gas cost for a given preset on a chain.
type GasEstimator interface {
	EstimateGasCostUsd(chainID string, preset cache.GasPreset, nativeUsd float64) float64
}

// ChainDetector watches reserve updates for one chain and emits
// same-chain (intra-dex/cross-dex) arbitrage opportunities.
type ChainDetector struct {
	cfg   ChainDetectorConfig
	gas   GasEstimator
	clock types.Clock
	log   zerolog.Logger

	mu             sync.RWMutex
	pairsByAddress map[string]*types.TokenPair
	pairsByTokens  map[string][]*types.TokenPair

	isStopping atomic.Bool
}

// NewChainDetector constructs an empty detector for one chain.
func NewChainDetector(cfg ChainDetectorConfig, gas GasEstimator, clock types.Clock, log zerolog.Logger) *ChainDetector {
	return &ChainDetector{
		cfg:            cfg,
		gas:            gas,
		clock:          clock,
		log:            log,
		pairsByAddress: make(map[string]*types.TokenPair),
		pairsByTokens:  make(map[string][]*types.TokenPair),
	}
}

// RegisterPair adds a newly-discovered pair to both indices.
func (d *ChainDetector) RegisterPair(pair *types.TokenPair) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pairsByAddress[pair.Address.Hex()] = pair
	key := pair.NormalizedTokenKey()
	d.pairsByTokens[key] = append(d.pairsByTokens[key], pair)
}

// Stop marks the detector as stopping; OnReserveUpdate becomes a no-op
// from the next call onward.
func (d *ChainDetector) Stop() {
	d.isStopping.Store(true)
}

// OnReserveUpdate implements the detection-on-Sync algorithm:
// update the target pair, scan same-token pairs on other DEXes, and
// return any opportunities clearing the chain's profit thresholds.
func (d *ChainDetector) OnReserveUpdate(pairAddress string, reserve0, reserve1 *big.Int, block uint64) []types.Opportunity {
	if d.isStopping.Load() {
		return nil
	}

	d.mu.RLock()
	updated, ok := d.pairsByAddress[pairAddress]
	d.mu.RUnlock()
	if !ok {
		return nil
	}

	nowMs := d.clock.NowMs()
	updated.UpdateReserves(reserve0, reserve1, block, nowMs)

	d.mu.RLock()
	siblings := append([]*types.TokenPair(nil), d.pairsByTokens[updated.NormalizedTokenKey()]...)
	d.mu.RUnlock()

	var opportunities []types.Opportunity
	for _, other := range siblings {
		if other.Address == updated.Address || other.DexName == updated.DexName {
			continue
		}
		if opp, ok := d.evaluatePair(updated, other, nowMs); ok {
			opportunities = append(opportunities, opp)
		}
	}
	return opportunities
}

// evaluatePair computes the two-leg arbitrage between updated and other:
// buy token0 on updated with a reference amount of token1, sell the
// resulting token0 back to token1 on other. It is profitable only when
// token0 is cheaper (in token1 terms) on updated than on other.
func (d *ChainDetector) evaluatePair(updated, other *types.TokenPair, nowMs int64) (types.Opportunity, bool) {
	r0a, r1a, _, _ := updated.Snapshot()
	r0b, r1b, _, _ := other.Snapshot()

	if r0a.Sign() == 0 || r1a.Sign() == 0 || r0b.Sign() == 0 || r1b.Sign() == 0 {
		return types.Opportunity{}, false
	}

	// Reference trade size: 1% of the shallower pool's token1 reserve,
	// so the price-impact model below has a realistic input to react to.
	amountIn := new(big.Int).Div(minBig(r1a, r1b), big.NewInt(100))
	if amountIn.Sign() == 0 {
		return types.Opportunity{}, false
	}

	mid := util.AmountOutV2(amountIn, r1a, r0a, swapFeeBps)
	out := util.AmountOutV2(mid, r0b, r1b, swapFeeBps)
	profitWei := new(big.Int).Sub(out, amountIn)
	if profitWei.Sign() <= 0 {
		return types.Opportunity{}, false
	}

	return d.buildOpportunity(updated, other, amountIn, out, profitWei, r1a, nowMs)
}

func (d *ChainDetector) buildOpportunity(updated, other *types.TokenPair, amountIn, amountOut, profitWei, reserveIn *big.Int, nowMs int64) (types.Opportunity, bool) {
	profitUnits := util.WeiToFloat(profitWei, updated.Decimals1)

	priceImpactIn := util.PriceImpact(amountIn, reserveIn)
	slippage := d.cfg.BaseSlippage + priceImpactIn

	liquidityUnits := util.WeiToFloat(reserveIn, updated.Decimals1) * 2
	if liquidityUnits < LiquidityPenaltyThresholdUsd {
		slippage += 0.02
	}

	gasUsd := 0.0
	if d.gas != nil {
		gasUsd = d.gas.EstimateGasCostUsd(d.cfg.ChainID, cache.GasPresetStandard, 0)
	}

	expectedProfitUsd := profitUnits*(1-slippage) - gasUsd

	profitPct := 0.0
	if amountInF := util.WeiToFloat(amountIn, updated.Decimals1); amountInF > 0 {
		profitPct = (profitUnits / amountInF) * 100
	}

	if expectedProfitUsd < d.cfg.MinProfitUsd || profitPct < d.cfg.MinProfitPct {
		return types.Opportunity{}, false
	}

	opp := types.Opportunity{
		Type:              types.OpportunityIntraDex,
		BuyChain:          d.cfg.ChainID,
		SellChain:         d.cfg.ChainID,
		BuyDex:            updated.DexName,
		SellDex:           other.DexName,
		AmountIn:          amountIn,
		ExpectedAmountOut: amountOut,
		ExpectedProfitUsd: expectedProfitUsd,
		ProfitPercentage:  profitPct,
		GasEstimateUsd:    gasUsd,
		Confidence:        d.cfg.Confidence,
		DetectedAtMs:      nowMs,
		ExpiresAtMs:       nowMs + d.cfg.ExpiryMs,
	}
	if !opp.Valid() {
		return types.Opportunity{}, false
	}
	return opp, true
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return a
	}
	return b
}
