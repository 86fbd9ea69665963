package types

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeTokenKey_OrderIndependent(t *testing.T) {
	weth := common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")

	k1 := NormalizeTokenKey(weth, usdc)
	k2 := NormalizeTokenKey(usdc, weth)

	assert.Equal(t, k1, k2)
}

func TestTokenPair_SnapshotIsIndependentCopy(t *testing.T) {
	pair := NewTokenPair("ethereum", "uniswap_v3", common.Address{}, common.Address{}, common.Address{}, 18, 6)
	pair.UpdateReserves(big.NewInt(100), big.NewInt(200), 10, 1000)

	r0, r1, block, ts := pair.Snapshot()
	assert.Equal(t, big.NewInt(100), r0)
	assert.Equal(t, big.NewInt(200), r1)
	assert.Equal(t, uint64(10), block)
	assert.Equal(t, int64(1000), ts)

	// Mutating the snapshot must not affect the pair's internal state.
	r0.SetInt64(999)
	r0b, _, _, _ := pair.Snapshot()
	assert.Equal(t, big.NewInt(100), r0b)
}

func TestOpportunity_Valid(t *testing.T) {
	cases := []struct {
		name string
		opp  Opportunity
		want bool
	}{
		{"valid", Opportunity{Confidence: 0.5, DetectedAtMs: 100, ExpiresAtMs: 200}, true},
		{"confidence too high", Opportunity{Confidence: 1.1, DetectedAtMs: 100, ExpiresAtMs: 200}, false},
		{"confidence negative", Opportunity{Confidence: -0.1, DetectedAtMs: 100, ExpiresAtMs: 200}, false},
		{"expires before detected", Opportunity{Confidence: 0.5, DetectedAtMs: 200, ExpiresAtMs: 100}, false},
		{"expires equal detected", Opportunity{Confidence: 0.5, DetectedAtMs: 100, ExpiresAtMs: 100}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.opp.Valid())
		})
	}
}

func TestDrawdownState_SizeMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, DrawdownNormal.SizeMultiplier())
	assert.Equal(t, 0.75, DrawdownCaution.SizeMultiplier())
	assert.Equal(t, 0.0, DrawdownHalt.SizeMultiplier())
	assert.Equal(t, 0.5, DrawdownRecovery.SizeMultiplier())
}

func TestSwapEvent_Fingerprint(t *testing.T) {
	a := SwapEvent{PairAddress: "0xabc", TxHash: "0x1", LogIndex: 2}
	b := SwapEvent{PairAddress: "0xabc", TxHash: "0x1", LogIndex: 2}
	c := SwapEvent{PairAddress: "0xabc", TxHash: "0x1", LogIndex: 3}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}
