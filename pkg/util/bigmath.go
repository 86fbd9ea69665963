// Package util holds small, dependency-light helpers shared across the
// core: big.Int/big.Float conversions, a fixed-size ring buffer for
// hot-path latency tracking, an O(1) LRU, and private-key decryption.
package util

import "math/big"

// WeiToFloat converts a token amount in its smallest unit to a float64,
// scaled by the token's decimals. The detectors use it to turn big.Int
// profits and reserves into the float64 figures their thresholds compare.
func WeiToFloat(amount *big.Int, decimals uint8) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Quo(f, scale)
	out, _ := f.Float64()
	return out
}

// FloatToWei converts a float64 token amount into its smallest-unit
// big.Int representation, scaled by decimals.
func FloatToWei(amount float64, decimals uint8) *big.Int {
	f := new(big.Float).SetFloat64(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	f.Mul(f, scale)
	out, _ := f.Int(nil)
	return out
}

// MidPrice computes reserve1/reserve0 adjusted for decimals, i.e. the
// price of token0 denominated in token1. Never compares floats for
// equality elsewhere in the codebase; this is the one place a float is
// produced from reserves.
func MidPrice(reserve0, reserve1 *big.Int, decimals0, decimals1 uint8) float64 {
	if reserve0 == nil || reserve1 == nil || reserve0.Sign() == 0 {
		return 0
	}
	r0 := WeiToFloat(reserve0, decimals0)
	r1 := WeiToFloat(reserve1, decimals1)
	if r0 == 0 {
		return 0
	}
	return r1 / r0
}

// AmountOutV2 computes the constant-product (x*y=k) swap output for
// amountIn of the input token against (reserveIn, reserveOut), with feeBps taken
// off the input (e.g. 30 = 0.3%, the Uniswap V2 default).
func AmountOutV2(amountIn, reserveIn, reserveOut *big.Int, feeBps int64) *big.Int {
	if amountIn == nil || amountIn.Sign() <= 0 || reserveIn == nil || reserveOut == nil || reserveIn.Sign() <= 0 {
		return big.NewInt(0)
	}
	feeMultiplier := big.NewInt(10000 - feeBps)
	amountInWithFee := new(big.Int).Mul(amountIn, feeMultiplier)
	numerator := new(big.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(big.Int).Mul(reserveIn, big.NewInt(10000))
	denominator.Add(denominator, amountInWithFee)
	if denominator.Sign() == 0 {
		return big.NewInt(0)
	}
	return numerator.Div(numerator, denominator)
}

// PriceImpact returns amountIn / (reserveIn + amountIn) as a float in
// [0,1), the fractional price-impact term used by the dynamic slippage
// model.
func PriceImpact(amountIn, reserveIn *big.Int) float64 {
	if amountIn == nil || reserveIn == nil || amountIn.Sign() <= 0 {
		return 0
	}
	denom := new(big.Int).Add(reserveIn, amountIn)
	if denom.Sign() == 0 {
		return 0
	}
	num := new(big.Float).SetInt(amountIn)
	den := new(big.Float).SetInt(denom)
	out, _ := new(big.Float).Quo(num, den).Float64()
	return out
}

// RelativeEquals compares two floats within a relative tolerance instead
// of bit-exact equality, per ("never compare floats for
// equality; always use a relative tolerance").
func RelativeEquals(a, b, tolerance float64) bool {
	if a == b {
		return true
	}
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	largest := a
	if b > largest {
		largest = b
	}
	if largest < 0 {
		largest = -largest
	}
	if largest == 0 {
		return diff < tolerance
	}
	return diff/largest < tolerance
}
