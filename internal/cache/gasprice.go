package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/blackhole-arb/arbcore/internal/scheduler"
)

// GasPreset names a priority tier used when building a transaction,
// kept as a named type so call sites read "standard" rather than a raw
// multiplier.
type GasPreset string

const (
	GasPresetSlow     GasPreset = "slow"
	GasPresetStandard GasPreset = "standard"
	GasPresetFast     GasPreset = "fast"
	GasPresetUrgent   GasPreset = "urgent"
)

// gasMultiplier scales a chain's base gas price by preset tier.
var gasMultiplier = map[GasPreset]float64{
	GasPresetSlow:     0.9,
	GasPresetStandard: 1.0,
	GasPresetFast:     1.25,
	GasPresetUrgent:   1.6,
}

// fallbackGweiByChain are the conservative defaults used when a chain's
// RPC gas oracle is unreachable.
var fallbackGweiByChain = map[string]float64{
	"ethereum": 30,
	"arbitrum": 0.1,
	"polygon":  50,
	"optimism": 0.01,
	"base":     0.05,
}

const defaultFallbackGwei = 20

// GasOracle fetches the current base gas price (in gwei) for a chain.
// Implemented by the chain RPC client adapter; kept as an interface here
// so GasPriceCache is independently testable.
type GasOracle interface {
	SuggestGasPriceGwei(ctx context.Context, chainID string) (float64, error)
}

// GasPriceCache refreshes each chain's base gas price on a fixed
// interval and serves stale-but-recent reads from memory in between,
// falling back to a conservative per-chain constant if the oracle has
// never answered.
type GasPriceCache struct {
	oracle GasOracle
	log    zerolog.Logger

	refreshInterval time.Duration

	mu         sync.RWMutex
	baseGwei   map[string]float64
	lastUpdate map[string]time.Time
}

// NewGasPriceCache constructs a cache that refreshes every 60 seconds
// unless overridden.
func NewGasPriceCache(oracle GasOracle, refreshInterval time.Duration, log zerolog.Logger) *GasPriceCache {
	if refreshInterval <= 0 {
		refreshInterval = 60 * time.Second
	}
	return &GasPriceCache{
		oracle:          oracle,
		log:             log,
		refreshInterval: refreshInterval,
		baseGwei:        make(map[string]float64),
		lastUpdate:      make(map[string]time.Time),
	}
}

// Start performs an immediate refresh, then registers a recurring
// refresh job on sched so subsequent refreshes happen on the cron
// runtime rather than a dedicated ticker goroutine per cache instance.
func (c *GasPriceCache) Start(ctx context.Context, sched *scheduler.Scheduler, chainIDs []string) error {
	c.refreshAll(ctx, chainIDs)
	return sched.AddJob(fmt.Sprintf("@every %s", c.refreshInterval), scheduler.FuncJob{
		JobName: "gasprice-refresh",
		Fn: func() error {
			c.refreshAll(ctx, chainIDs)
			return nil
		},
	})
}

func (c *GasPriceCache) refreshAll(ctx context.Context, chainIDs []string) {
	for _, chainID := range chainIDs {
		gwei, err := c.oracle.SuggestGasPriceGwei(ctx, chainID)
		if err != nil {
			c.log.Warn().Err(err).Str("chain", chainID).Msg("gas oracle refresh failed, keeping last known value")
			continue
		}
		c.mu.Lock()
		c.baseGwei[chainID] = gwei
		c.lastUpdate[chainID] = time.Now()
		c.mu.Unlock()
	}
}

// GasPriceGwei returns preset-adjusted gas price for chainID. If the
// oracle has never successfully answered for this chain, it falls back
// to fallbackGweiByChain (or defaultFallbackGwei if the chain is
// unlisted) so execution never blocks on a missing quote.
func (c *GasPriceCache) GasPriceGwei(chainID string, preset GasPreset) float64 {
	c.mu.RLock()
	base, ok := c.baseGwei[chainID]
	c.mu.RUnlock()

	if !ok {
		base, ok = fallbackGweiByChain[chainID]
		if !ok {
			base = defaultFallbackGwei
		}
	}

	mult, ok := gasMultiplier[preset]
	if !ok {
		mult = gasMultiplier[GasPresetStandard]
	}
	return base * mult
}

// IsStale reports whether chainID's cached value is older than
// 2*refreshInterval, meaning the oracle has been failing for a while.
func (c *GasPriceCache) IsStale(chainID string) bool {
	c.mu.RLock()
	last, ok := c.lastUpdate[chainID]
	c.mu.RUnlock()
	if !ok {
		return true
	}
	return time.Since(last) > 2*c.refreshInterval
}
