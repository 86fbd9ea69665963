package ingestion

import (
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/blackhole-arb/arbcore/internal/types"
)

// PriceOracle resolves the USD value of a token amount for the value
// filter stage; implemented by the detection/cache layer.
type PriceOracle interface {
	UsdValue(chainID, tokenAddress string, amount string) float64
}

// FilterOutcome is what the caller should do with a SwapEvent after it
// has passed through the chain.
type FilterOutcome struct {
	Publish    bool
	WhaleAlert bool
	Event      types.SwapEvent
}

// aggregateWindow accumulates volume for one pair within the current
// window.
type aggregateWindow struct {
	volumeUsd float64
	count     int
	openedAt  time.Time
}

// senderActivity tracks recent swap counts per sender for the MEV
// heuristic.
type senderActivity struct {
	count      int
	firstBlock uint64
	lastBlock  uint64
}

// SwapEventFilter implements the four-level filter chain:
// edge dedupe, USD-value gating with a sampling escape hatch, local
// per-pair volume aggregation, and tiered publishing (immediate whale,
// window-close aggregate, periodic MEV report).
type SwapEventFilter struct {
	oracle        PriceOracle
	clock         types.Clock
	minAmountUsd  float64
	samplingRate  float64
	whaleThreshold float64
	windowSize    time.Duration
	mevCadence    time.Duration
	mevMinSwaps   int

	mu           sync.Mutex
	seenFingerprints map[string]time.Time
	dedupeWindow time.Duration

	windows map[string]*aggregateWindow // keyed by pairAddress
	senders map[string]*senderActivity  // keyed by chainID:pairAddress:sender
	lastMevReport map[string]time.Time   // keyed by chainID:pairAddress:sender
}

// NewSwapEventFilter constructs a filter with the following defaults:
// minAmountUsd=$10,000, samplingRate=0.01, whaleThreshold=$50,000,
// windowSize=5s, mevCadence=30s, mevMinSwaps=5.
func NewSwapEventFilter(oracle PriceOracle, clock types.Clock) *SwapEventFilter {
	return &SwapEventFilter{
		oracle:           oracle,
		clock:            clock,
		minAmountUsd:     10000,
		samplingRate:     0.01,
		whaleThreshold:   50000,
		windowSize:       5 * time.Second,
		mevCadence:       30 * time.Second,
		mevMinSwaps:      5,
		seenFingerprints: make(map[string]time.Time),
		dedupeWindow:     5 * time.Second,
		windows:          make(map[string]*aggregateWindow),
		senders:          make(map[string]*senderActivity),
		lastMevReport:    make(map[string]time.Time),
	}
}

// watchlist reports whether pairAddress is actively tracked; callers
// inject the live watchlist so the filter stays decoupled from
// detector internals.
type Watchlist interface {
	Contains(pairAddress string) bool
}

// Apply runs event through all four levels. It never returns an error:
// a rejected event simply yields Publish=false.
func (f *SwapEventFilter) Apply(event types.SwapEvent, watchlist Watchlist, tokenAddress string) FilterOutcome {
	if !f.edgePass(event, watchlist) {
		return FilterOutcome{Event: event}
	}

	valueUsd := f.oracle.UsdValue(event.ChainID, tokenAddress, inflowAmount(event).String())
	event.ValueUsd = valueUsd

	if !f.valuePass(valueUsd) {
		f.aggregate(event)
		return FilterOutcome{Event: event}
	}

	f.aggregate(event)
	f.trackSender(event)

	if valueUsd >= f.whaleThreshold {
		return FilterOutcome{Publish: true, WhaleAlert: true, Event: event}
	}
	return FilterOutcome{Publish: true, Event: event}
}

func (f *SwapEventFilter) edgePass(event types.SwapEvent, watchlist Watchlist) bool {
	if watchlist != nil && !watchlist.Contains(event.PairAddress) {
		return false
	}

	fp := event.Fingerprint()
	now := time.UnixMilli(f.clock.NowMs())

	f.mu.Lock()
	defer f.mu.Unlock()
	if seenAt, ok := f.seenFingerprints[fp]; ok && now.Sub(seenAt) < f.dedupeWindow {
		return false
	}
	f.seenFingerprints[fp] = now
	f.pruneFingerprints(now)
	return true
}

// pruneFingerprints must be called with f.mu held.
func (f *SwapEventFilter) pruneFingerprints(now time.Time) {
	for fp, seenAt := range f.seenFingerprints {
		if now.Sub(seenAt) > f.dedupeWindow {
			delete(f.seenFingerprints, fp)
		}
	}
}

func (f *SwapEventFilter) valuePass(valueUsd float64) bool {
	if valueUsd >= f.minAmountUsd {
		return true
	}
	return rand.Float64() < f.samplingRate
}

func (f *SwapEventFilter) aggregate(event types.SwapEvent) {
	now := time.UnixMilli(f.clock.NowMs())

	f.mu.Lock()
	defer f.mu.Unlock()

	w, ok := f.windows[event.PairAddress]
	if !ok || now.Sub(w.openedAt) >= f.windowSize {
		w = &aggregateWindow{openedAt: now}
		f.windows[event.PairAddress] = w
	}
	w.volumeUsd += event.ValueUsd
	w.count++
}

// DrainClosedWindows returns and clears per-pair windows whose duration
// has elapsed, for publishing to the volume-aggregates stream.
func (f *SwapEventFilter) DrainClosedWindows() map[string]aggregateWindow {
	now := time.UnixMilli(f.clock.NowMs())
	out := make(map[string]aggregateWindow)

	f.mu.Lock()
	defer f.mu.Unlock()
	for pair, w := range f.windows {
		if now.Sub(w.openedAt) >= f.windowSize {
			out[pair] = *w
			delete(f.windows, pair)
		}
	}
	return out
}

func (f *SwapEventFilter) trackSender(event types.SwapEvent) {
	key := event.ChainID + ":" + event.PairAddress + ":" + event.Sender

	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.senders[key]
	if !ok || event.BlockNumber > a.lastBlock+2 {
		a = &senderActivity{firstBlock: event.BlockNumber}
		f.senders[key] = a
	}
	a.count++
	a.lastBlock = event.BlockNumber
}

// IsMevPattern reports whether (chainID, pairAddress, sender) has hit
// the MEV heuristic and enough cadence has passed since the last report,
// marking the cadence as consumed if so.
func (f *SwapEventFilter) IsMevPattern(event types.SwapEvent) bool {
	key := event.ChainID + ":" + event.PairAddress + ":" + event.Sender

	f.mu.Lock()
	defer f.mu.Unlock()

	a, ok := f.senders[key]
	if !ok || a.count < f.mevMinSwaps {
		return false
	}
	now := time.UnixMilli(f.clock.NowMs())
	if last, ok := f.lastMevReport[key]; ok && now.Sub(last) < f.mevCadence {
		return false
	}
	f.lastMevReport[key] = now
	return true
}

func inflowAmount(event types.SwapEvent) *big.Int {
	if event.Amount0In != nil && event.Amount0In.Sign() > 0 {
		return event.Amount0In
	}
	if event.Amount1In != nil {
		return event.Amount1In
	}
	return big.NewInt(0)
}
