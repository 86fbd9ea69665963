package detector

import (
	"context"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/blackhole-arb/arbcore/internal/types"
	"github.com/blackhole-arb/arbcore/pkg/util"
)

// confidenceWindow bounds how many recent base-confidence readings are
// smoothed per normalized pair.
const confidenceWindow = 8

// PricePoint is one chain/dex observation of a normalized pair's price,
// the unit the indexed snapshot scans over. Price is token0 denominated
// in token1 (see util.MidPrice); Token0/Token1/PairAddress are that
// chain's contract addresses, carried so evaluate() can build a real
// swap path rather than just a chain/dex label pair.
type PricePoint struct {
	Chain       string
	Dex         string
	PairAddress string
	Token0      string
	Token1      string
	Decimals1   uint8
	Price       float64
	TimestampMs int64
}

// PriceObservation is one (chain, dex) price sample, keyed by
// normalizedPair for PriceDataManager.Update.
type PriceObservation struct {
	Chain          string
	Dex            string
	NormalizedPair string
	PairAddress    string
	Token0         string
	Token1         string
	Decimals1      uint8
	Price          float64
	TimestampMs    int64
}

// PriceDataManager is the three-level chain→dex→normalizedPair map of
// the latest observed price, with periodic cleanup of stale entries.
type PriceDataManager struct {
	mu   sync.RWMutex
	data map[string]map[string]map[string]PricePoint // chain -> dex -> pair -> point

	updateCount int
	cleanupEvery int
	maxAge       time.Duration
	clock        types.Clock
}

// NewPriceDataManager constructs a manager that runs cleanup every
// cleanupEvery updates, dropping entries older than maxAge.
func NewPriceDataManager(cleanupEvery int, maxAge time.Duration, clock types.Clock) *PriceDataManager {
	if cleanupEvery <= 0 {
		cleanupEvery = 500
	}
	if maxAge <= 0 {
		maxAge = 5 * time.Minute
	}
	return &PriceDataManager{
		data:         make(map[string]map[string]map[string]PricePoint),
		cleanupEvery: cleanupEvery,
		maxAge:       maxAge,
		clock:        clock,
	}
}

// Update replaces the prior value for (chain, dex, obs.NormalizedPair).
func (p *PriceDataManager) Update(obs PriceObservation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.data[obs.Chain]; !ok {
		p.data[obs.Chain] = make(map[string]map[string]PricePoint)
	}
	if _, ok := p.data[obs.Chain][obs.Dex]; !ok {
		p.data[obs.Chain][obs.Dex] = make(map[string]PricePoint)
	}
	p.data[obs.Chain][obs.Dex][obs.NormalizedPair] = PricePoint{
		Chain:       obs.Chain,
		Dex:         obs.Dex,
		PairAddress: obs.PairAddress,
		Token0:      obs.Token0,
		Token1:      obs.Token1,
		Decimals1:   obs.Decimals1,
		Price:       obs.Price,
		TimestampMs: obs.TimestampMs,
	}

	p.updateCount++
	if p.updateCount >= p.cleanupEvery {
		p.updateCount = 0
		p.cleanupLocked()
	}
}

func (p *PriceDataManager) cleanupLocked() {
	cutoff := p.clock.NowMs() - p.maxAge.Milliseconds()
	for chain, byDex := range p.data {
		for dex, byPair := range byDex {
			for pair, point := range byPair {
				if point.TimestampMs < cutoff {
					delete(byPair, pair)
				}
			}
			if len(byPair) == 0 {
				delete(byDex, dex)
			}
		}
		if len(byDex) == 0 {
			delete(p.data, chain)
		}
	}
}

// Snapshot builds the indexed snapshot: normalizedPair ->
// list of PricePoint, read-consistent at the instant it is built.
func (p *PriceDataManager) Snapshot() map[string][]PricePoint {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string][]PricePoint)
	for _, byDex := range p.data {
		for _, byPair := range byDex {
			for pair, point := range byPair {
				out[pair] = append(out[pair], point)
			}
		}
	}
	return out
}

// MLPrediction is the (possibly-null) output of the ML prediction
// manager for one pair.
type MLPrediction struct {
	Direction        string // "up" or "down" relative to the low-price side
	ConfidenceScore  float64
}

// MLPredictor supplies a cached, timeout-bounded price-direction
// prediction. Implementations must themselves respect the caller's
// context deadline; CrossChainDetector additionally races it against a
// hard 50ms timeout.
type MLPredictor interface {
	Predict(ctx context.Context, chain, normalizedPair string) (MLPrediction, error)
}

// WhaleSignal describes the most recent whale activity observed for a
// normalized pair, used by the confidence whale-factor.
type WhaleSignal struct {
	Direction   string // "up" or "down"
	Multiple    float64 // observed value / whale threshold
}

// WhaleSignalSource supplies the latest whale signal for a pair, if any.
type WhaleSignalSource interface {
	LatestSignal(normalizedPair string) (WhaleSignal, bool)
}

// BridgeCostEstimator estimates the fee and latency of moving value
// between two chains.
type BridgeCostEstimator interface {
	EstimateCostUsd(ctx context.Context, fromChain, toChain string, amountUsd float64) (costUsd float64, latencyMs int64, err error)
}

// CrossChainDetectorConfig carries the thresholds
type CrossChainDetectorConfig struct {
	MaxPriceAgeMs      int64
	ProfitCeilingPct   float64 // used by the confidence base function
	MinProfitUsd       float64
	MinConfidence      float64
	ExpiryMs           int64
	MLTimeout          time.Duration
	DedupeWindow       time.Duration
	// NotionalUsd is the reference trade size cross-chain opportunities
	// are sized against; unlike ChainDetector there is no pool reserve to
	// derive a trade size from, so this is a fixed assumed position size
	// (default $10,000).
	NotionalUsd float64
}

// CrossChainDetector periodically scans the indexed snapshot for
// cross-chain mispricing.
type CrossChainDetector struct {
	cfg      CrossChainDetectorConfig
	prices   *PriceDataManager
	ml       MLPredictor
	whales   WhaleSignalSource
	bridge   BridgeCostEstimator
	validate *PreValidationOrchestrator
	clock    types.Clock
	log      zerolog.Logger

	dedupeMu sync.Mutex
	seen     map[string]time.Time

	confidenceMu      sync.Mutex
	confidenceHistory map[string][]float64
}

// NewCrossChainDetector wires the collaborators the detection loop
// needs; ml, whales, bridge, and validate may be nil to disable their
// respective optional stages.
func NewCrossChainDetector(cfg CrossChainDetectorConfig, prices *PriceDataManager, ml MLPredictor, whales WhaleSignalSource, bridge BridgeCostEstimator, validate *PreValidationOrchestrator, clock types.Clock, log zerolog.Logger) *CrossChainDetector {
	return &CrossChainDetector{
		cfg:      cfg,
		prices:   prices,
		ml:       ml,
		whales:   whales,
		bridge:   bridge,
		validate: validate,
		clock:    clock,
		log:      log,
		seen:     make(map[string]time.Time),

		confidenceHistory: make(map[string][]float64),
	}
}

// Scan runs one pass of the detection loop.
func (d *CrossChainDetector) Scan(ctx context.Context) []types.Opportunity {
	snapshot := d.prices.Snapshot()
	var opportunities []types.Opportunity

	for normalizedPair, points := range snapshot {
		if len(points) < 2 {
			continue
		}
		low, high := lowHigh(points)
		if d.isStale(low, high) {
			continue
		}
		if opp, ok := d.evaluate(ctx, normalizedPair, low, high); ok {
			opportunities = append(opportunities, opp)
		}
	}
	return opportunities
}

func lowHigh(points []PricePoint) (low, high PricePoint) {
	sorted := append([]PricePoint(nil), points...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Price < sorted[j].Price })
	return sorted[0], sorted[len(sorted)-1]
}

func (d *CrossChainDetector) isStale(low, high PricePoint) bool {
	now := d.clock.NowMs()
	maxAge := d.cfg.MaxPriceAgeMs
	if maxAge <= 0 {
		maxAge = 30000
	}
	return now-low.TimestampMs > maxAge || now-high.TimestampMs > maxAge
}

func (d *CrossChainDetector) evaluate(ctx context.Context, normalizedPair string, low, high PricePoint) (types.Opportunity, bool) {
	if low.Price <= 0 {
		return types.Opportunity{}, false
	}
	profitPct := (high.Price - low.Price) / low.Price
	if profitPct <= 0 {
		return types.Opportunity{}, false
	}

	confidence := d.computeConfidence(ctx, normalizedPair, profitPct)

	notionalUsd := d.cfg.NotionalUsd
	if notionalUsd <= 0 {
		notionalUsd = 10_000
	}
	decimals1 := low.Decimals1
	if decimals1 == 0 {
		decimals1 = 18
	}
	amountIn := util.FloatToWei(notionalUsd, decimals1)
	profitUsd := profitPct * notionalUsd
	expectedAmountOut := new(big.Int).Add(amountIn, util.FloatToWei(profitUsd, decimals1))

	nowMs := d.clock.NowMs()
	opp := types.Opportunity{
		ID:        uuid.NewString(),
		Type:      types.OpportunityCrossChain,
		BuyChain:  low.Chain,
		SellChain: high.Chain,
		BuyDex:    low.Dex,
		SellDex:   high.Dex,
		// Bought low (token0 is cheap in token1 terms on this chain),
		// bridged, sold high; TokenIn/TokenOut are the quote asset (token1)
		// spent and received on each leg.
		TokenIn:  low.Token1,
		TokenOut: high.Token1,
		Path: []types.SwapStep{
			{Router: low.PairAddress, TokenIn: low.Token1, TokenOut: low.Token0, ChainID: low.Chain, DexName: low.Dex},
			{Router: high.PairAddress, TokenIn: high.Token0, TokenOut: high.Token1, ChainID: high.Chain, DexName: high.Dex},
		},
		AmountIn:          amountIn,
		ExpectedAmountOut: expectedAmountOut,
		ExpectedProfitUsd: profitUsd,
		ProfitPercentage:  profitPct * 100,
		Confidence:        confidence,
		DetectedAtMs:      nowMs,
		ExpiresAtMs:       nowMs + d.cfg.ExpiryMs,
	}

	if d.bridge != nil {
		costUsd, _, err := d.bridge.EstimateCostUsd(ctx, low.Chain, high.Chain, notionalUsd)
		if err == nil {
			opp.ExpectedProfitUsd -= costUsd
		}
	}

	if opp.ExpectedProfitUsd < d.cfg.MinProfitUsd {
		return types.Opportunity{}, false
	}
	if confidence < d.cfg.MinConfidence {
		return types.Opportunity{}, false
	}
	if !opp.Valid() {
		return types.Opportunity{}, false
	}
	if d.isDuplicate(normalizedPair, nowMs) {
		return types.Opportunity{}, false
	}
	if d.validate != nil && !d.validate.Validate(ctx, opp) {
		return types.Opportunity{}, false
	}
	return opp, true
}

// computeConfidence derives a base confidence from profitPct (scaled by
// ProfitCeilingPct and smoothed over recent scans), then applies the ML
// and whale factors, capping their combined multiplier at 1.5x and the
// result at 1. No price-age penalty is applied.
func (d *CrossChainDetector) computeConfidence(ctx context.Context, normalizedPair string, profitPct float64) float64 {
	ceiling := d.cfg.ProfitCeilingPct
	if ceiling <= 0 {
		ceiling = 0.05
	}
	base := profitPct / ceiling
	if base > 1 {
		base = 1
	}
	base = d.smoothBase(normalizedPair, base)

	boost := 1.0
	if d.ml != nil {
		prediction, ok := d.predictWithTimeout(ctx, normalizedPair)
		if ok && prediction.ConfidenceScore >= 0.6 {
			if prediction.Direction == "up" {
				boost *= 1.15
			} else {
				boost *= 0.9
			}
		}
	}

	if d.whales != nil {
		if signal, ok := d.whales.LatestSignal(normalizedPair); ok {
			switch {
			case signal.Multiple >= 10:
				boost *= 1.25
			case signal.Direction == "up":
				boost *= 1.15
			default:
				boost *= 0.85
			}
		}
	}

	if boost > 1.5 {
		boost = 1.5
	}

	confidence := base * boost
	if confidence > 1 {
		confidence = 1
	}
	return confidence
}

// smoothBase averages the last confidenceWindow base-confidence readings
// for normalizedPair, damping single-scan noise in the profitPct signal
// that feeds the boost chain.
func (d *CrossChainDetector) smoothBase(normalizedPair string, base float64) float64 {
	d.confidenceMu.Lock()
	defer d.confidenceMu.Unlock()

	history := append(d.confidenceHistory[normalizedPair], base)
	if len(history) > confidenceWindow {
		history = history[len(history)-confidenceWindow:]
	}
	d.confidenceHistory[normalizedPair] = history

	return stat.Mean(history, nil)
}

func (d *CrossChainDetector) predictWithTimeout(ctx context.Context, normalizedPair string) (MLPrediction, bool) {
	timeout := d.cfg.MLTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		prediction MLPrediction
		err        error
	}
	resultCh := make(chan result, 1)
	go func() {
		prediction, err := d.ml.Predict(ctx, "", normalizedPair)
		resultCh <- result{prediction, err}
	}()

	select {
	case r := <-resultCh:
		if r.err != nil {
			return MLPrediction{}, false
		}
		return r.prediction, true
	case <-ctx.Done():
		return MLPrediction{}, false
	}
}

// isDuplicate implements the OpportunityPublisher's time-bounded
// fingerprint cache.
func (d *CrossChainDetector) isDuplicate(normalizedPair string, nowMs int64) bool {
	window := d.cfg.DedupeWindow
	if window <= 0 {
		window = 5 * time.Second
	}
	now := time.UnixMilli(nowMs)

	d.dedupeMu.Lock()
	defer d.dedupeMu.Unlock()

	if seenAt, ok := d.seen[normalizedPair]; ok && now.Sub(seenAt) < window {
		return true
	}
	d.seen[normalizedPair] = now
	for key, seenAt := range d.seen {
		if now.Sub(seenAt) > window {
			delete(d.seen, key)
		}
	}
	return false
}
