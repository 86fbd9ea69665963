package detector

import (
	"context"
)

// bridgeRoute names a known bridging path with its flat fee and typical
// latency; a conservative fallback covers any unlisted pair.
type bridgeRoute struct {
	feePct      float64
	flatFeeUsd  float64
	latencyMs   int64
}

var knownRoutes = map[string]bridgeRoute{
	"ethereum->arbitrum": {feePct: 0.0005, flatFeeUsd: 1.0, latencyMs: 15 * 60 * 1000},
	"arbitrum->ethereum": {feePct: 0.0005, flatFeeUsd: 1.0, latencyMs: 15 * 60 * 1000},
	"ethereum->polygon":  {feePct: 0.001, flatFeeUsd: 2.0, latencyMs: 20 * 60 * 1000},
	"polygon->ethereum":  {feePct: 0.001, flatFeeUsd: 2.0, latencyMs: 20 * 60 * 1000},
	"ethereum->optimism": {feePct: 0.0005, flatFeeUsd: 1.0, latencyMs: 15 * 60 * 1000},
	"optimism->ethereum": {feePct: 0.0005, flatFeeUsd: 1.0, latencyMs: 15 * 60 * 1000},
	"ethereum->base":     {feePct: 0.0005, flatFeeUsd: 1.0, latencyMs: 15 * 60 * 1000},
	"base->ethereum":     {feePct: 0.0005, flatFeeUsd: 1.0, latencyMs: 15 * 60 * 1000},
}

var fallbackRoute = bridgeRoute{feePct: 0.003, flatFeeUsd: 5.0, latencyMs: 30 * 60 * 1000}

// StaticBridgeCostEstimator implements BridgeCostEstimator using a fixed
// routing table, with a conservative fallback for unlisted pairs. It
// never errors; the interface's error return exists for a future
// quote-service-backed implementation that can fail.
type StaticBridgeCostEstimator struct{}

// NewStaticBridgeCostEstimator constructs the table-driven estimator.
func NewStaticBridgeCostEstimator() *StaticBridgeCostEstimator {
	return &StaticBridgeCostEstimator{}
}

// EstimateCostUsd implements BridgeCostEstimator.
func (e *StaticBridgeCostEstimator) EstimateCostUsd(ctx context.Context, fromChain, toChain string, amountUsd float64) (float64, int64, error) {
	route, ok := knownRoutes[fromChain+"->"+toChain]
	if !ok {
		route = fallbackRoute
	}
	cost := route.flatFeeUsd + amountUsd*route.feePct
	return cost, route.latencyMs, nil
}
