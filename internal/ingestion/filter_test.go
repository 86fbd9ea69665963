package ingestion

import (
	"math/big"
	"testing"

	"github.com/blackhole-arb/arbcore/internal/types"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMs() int64 { return c.ms }

type fakeOracle struct{ usd float64 }

func (o *fakeOracle) UsdValue(chainID, tokenAddress, amount string) float64 { return o.usd }

type fakeWatchlist struct{ pairs map[string]bool }

func (w fakeWatchlist) Contains(pairAddress string) bool { return w.pairs[pairAddress] }

func baseSwap() types.SwapEvent {
	return types.SwapEvent{
		ChainID:     "ethereum",
		PairAddress: "0xpair",
		Sender:      "0xsender",
		Amount0In:   big.NewInt(1000),
		TxHash:      "0xtx1",
		LogIndex:    0,
		BlockNumber: 100,
	}
}

func TestSwapEventFilter_RejectsOffWatchlist(t *testing.T) {
	f := NewSwapEventFilter(&fakeOracle{usd: 100000}, &fakeClock{ms: 1000})
	outcome := f.Apply(baseSwap(), fakeWatchlist{pairs: map[string]bool{}}, "0xtoken")
	assert.False(t, outcome.Publish)
}

func TestSwapEventFilter_DedupesRepeatedFingerprint(t *testing.T) {
	f := NewSwapEventFilter(&fakeOracle{usd: 100000}, &fakeClock{ms: 1000})
	watchlist := fakeWatchlist{pairs: map[string]bool{"0xpair": true}}

	first := f.Apply(baseSwap(), watchlist, "0xtoken")
	second := f.Apply(baseSwap(), watchlist, "0xtoken")

	assert.True(t, first.Publish)
	assert.False(t, second.Publish)
}

func TestSwapEventFilter_WhaleThresholdTriggersImmediatePublish(t *testing.T) {
	f := NewSwapEventFilter(&fakeOracle{usd: 60000}, &fakeClock{ms: 1000})
	watchlist := fakeWatchlist{pairs: map[string]bool{"0xpair": true}}

	outcome := f.Apply(baseSwap(), watchlist, "0xtoken")
	assert.True(t, outcome.Publish)
	assert.True(t, outcome.WhaleAlert)
}

func TestSwapEventFilter_BelowThresholdUsuallyNotPublished(t *testing.T) {
	f := NewSwapEventFilter(&fakeOracle{usd: 500}, &fakeClock{ms: 1000})
	f.samplingRate = 0 // make the sampling escape hatch deterministic for this test
	watchlist := fakeWatchlist{pairs: map[string]bool{"0xpair": true}}

	outcome := f.Apply(baseSwap(), watchlist, "0xtoken")
	assert.False(t, outcome.Publish)
}

func TestSwapEventFilter_MevPatternDetectedAfterFiveSwaps(t *testing.T) {
	f := NewSwapEventFilter(&fakeOracle{usd: 20000}, &fakeClock{ms: 1000})
	watchlist := fakeWatchlist{pairs: map[string]bool{"0xpair": true}}

	var last types.SwapEvent
	for i := 0; i < 5; i++ {
		event := baseSwap()
		event.TxHash = "0xtx-distinct"
		event.LogIndex = uint(i + 1)
		event.BlockNumber = uint64(100 + i)
		f.Apply(event, watchlist, "0xtoken")
		last = event
	}

	assert.True(t, f.IsMevPattern(last))
}

func TestSwapEventFilter_DrainClosedWindows(t *testing.T) {
	clock := &fakeClock{ms: 1000}
	f := NewSwapEventFilter(&fakeOracle{usd: 20000}, clock)
	watchlist := fakeWatchlist{pairs: map[string]bool{"0xpair": true}}

	f.Apply(baseSwap(), watchlist, "0xtoken")

	clock.ms += f.windowSize.Milliseconds() + 1
	closed := f.DrainClosedWindows()
	assert.Contains(t, closed, "0xpair")
	assert.Equal(t, 1, closed["0xpair"].count)
}
