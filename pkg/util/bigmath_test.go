package util

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountOutV2(t *testing.T) {
	// 1 WETH in against 100 WETH / 200000 USDC pool, 30bps fee.
	amountIn := big.NewInt(1_000000000000000000)
	reserveIn := big.NewInt(100_000000000000000000)
	reserveOut := big.NewInt(200_000_000000) // 200000 USDC at 6 decimals

	out := AmountOutV2(amountIn, reserveIn, reserveOut, 30)
	assert.True(t, out.Sign() > 0)
	assert.True(t, out.Cmp(reserveOut) < 0, "output must be less than total reserve")
}

func TestAmountOutV2_ZeroInput(t *testing.T) {
	out := AmountOutV2(big.NewInt(0), big.NewInt(100), big.NewInt(100), 30)
	assert.Equal(t, 0, out.Sign())
}

func TestPriceImpact(t *testing.T) {
	impact := PriceImpact(big.NewInt(10), big.NewInt(90))
	assert.InDelta(t, 0.1, impact, 0.0001)
}

func TestMidPrice(t *testing.T) {
	// 100 WETH / 200000 USDC, both with standard decimals -> price ~2000
	reserve0 := big.NewInt(0).Mul(big.NewInt(100), big.NewInt(1_000000000000000000))
	reserve1 := big.NewInt(0).Mul(big.NewInt(200000), big.NewInt(1_000000))
	price := MidPrice(reserve0, reserve1, 18, 6)
	assert.InDelta(t, 2000, price, 0.01)
}

func TestRelativeEquals(t *testing.T) {
	assert.True(t, RelativeEquals(100.0, 100.0005, 0.001))
	assert.False(t, RelativeEquals(100.0, 101.5, 0.001))
}
