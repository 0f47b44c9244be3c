// Package univ3 implements single-range Uniswap V3 style pool math in
// Q64.96 fixed point.
//
// Prices are always raw pool prices P = token1/token0. The square root of
// the price is carried as an integer scaled by Q96 = 2^96 ("sqrtPriceX96"),
// which is the representation the demo apps display and the swap functions
// operate on. Token amounts are raw integer units (after applying token
// decimals).
package univ3

import (
	"math"
	"math/big"
)

// Q96 is the fixed-point scaling factor, 2^96.
var Q96 = new(big.Int).Lsh(big.NewInt(1), 96)

var q96Float = new(big.Float).SetPrec(sqrtPrec).SetInt(Q96)

// sqrtPrec is the mantissa precision used for the high-precision sqrt path.
// 256 bits is far more than the 160 significant bits of a sqrtPriceX96.
const sqrtPrec = 256

// tickBase is the price ratio between two adjacent ticks.
const tickBase = 1.0001

// PriceToTick returns floor(log_1.0001(price)). Non-positive prices map to
// tick 0, matching the UI convention of treating them as "no price yet".
func PriceToTick(price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Floor(math.Log(price) / math.Log(tickBase)))
}

// TickToPrice returns 1.0001^tick.
func TickToPrice(tick int) float64 {
	return math.Pow(tickBase, float64(tick))
}

// PriceToSqrtPriceX96 converts a price to sqrtPriceX96 using float64 sqrt,
// the way most tutorials (and the book this demo follows) do it. The result
// differs from the high-precision conversion in the low bits; the explorer
// app displays that difference on purpose.
func PriceToSqrtPriceX96(price float64) *big.Int {
	if price <= 0 {
		return new(big.Int)
	}
	f := new(big.Float).SetPrec(sqrtPrec).SetFloat64(math.Sqrt(price))
	f.Mul(f, q96Float)
	out, _ := f.Int(nil)
	return out
}

// PriceToSqrtPriceX96Big converts a price to sqrtPriceX96 using a
// high-precision big.Float square root: floor(sqrt(P) * 2^96).
func PriceToSqrtPriceX96Big(price float64) *big.Int {
	if price <= 0 {
		return new(big.Int)
	}
	f := new(big.Float).SetPrec(sqrtPrec).SetFloat64(price)
	f.Sqrt(f)
	f.Mul(f, q96Float)
	out, _ := f.Int(nil)
	return out
}

// TickToSqrtPriceX96 returns the sqrtPriceX96 at the given tick.
func TickToSqrtPriceX96(tick int) *big.Int {
	return PriceToSqrtPriceX96(TickToPrice(tick))
}

// SqrtPriceX96ToPrice converts a sqrtPriceX96 back to a float64 price,
// (sqrtPX96 / Q96)^2. Intended for display, not for further integer math.
func SqrtPriceX96ToPrice(sqrtPX96 *big.Int) float64 {
	if sqrtPX96 == nil || sqrtPX96.Sign() <= 0 {
		return 0
	}
	s := new(big.Float).SetPrec(sqrtPrec).SetInt(sqrtPX96)
	s.Quo(s, q96Float)
	s.Mul(s, s)
	out, _ := s.Float64()
	return out
}

// order returns (lo, hi) such that lo <= hi.
func order(a, b *big.Int) (*big.Int, *big.Int) {
	if a.Cmp(b) > 0 {
		return b, a
	}
	return a, b
}

// Amount1Delta returns the token1 amount corresponding to moving the sqrt
// price between the two given sqrtPriceX96 values at constant liquidity:
//
//	amount1 = L * (sqrtHi - sqrtLo) / Q96
//
// The argument order does not matter; the result is always non-negative for
// non-negative liquidity.
func Amount1Delta(liquidity, sqrtAX96, sqrtBX96 *big.Int) *big.Int {
	lo, hi := order(sqrtAX96, sqrtBX96)
	out := new(big.Int).Sub(hi, lo)
	out.Mul(out, liquidity)
	return out.Quo(out, Q96)
}

// Amount0Delta returns the token0 amount corresponding to moving the sqrt
// price between the two given sqrtPriceX96 values at constant liquidity:
//
//	amount0 = L * (sqrtHi - sqrtLo) * Q96 / (sqrtHi * sqrtLo)
func Amount0Delta(liquidity, sqrtAX96, sqrtBX96 *big.Int) *big.Int {
	lo, hi := order(sqrtAX96, sqrtBX96)
	num := new(big.Int).Sub(hi, lo)
	num.Mul(num, liquidity)
	num.Mul(num, Q96)
	den := new(big.Int).Mul(hi, lo)
	if den.Sign() == 0 {
		return new(big.Int)
	}
	return num.Quo(num, den)
}

// Liquidity0 computes the liquidity provided by amount0 of token0 over the
// sqrt price interval [sqrtA, sqrtB]:
//
//	L0 = amount0 * (sqrtA*sqrtB/Q96) / (sqrtB - sqrtA)
//
// The result is returned as a big.Float because deposit sizing is a display
// calculation, not consensus math.
func Liquidity0(amount0, sqrtAX96, sqrtBX96 *big.Int) *big.Float {
	lo, hi := order(sqrtAX96, sqrtBX96)
	diff := new(big.Int).Sub(hi, lo)
	if diff.Sign() == 0 {
		return new(big.Float)
	}
	prod := new(big.Float).SetPrec(sqrtPrec).SetInt(new(big.Int).Mul(lo, hi))
	prod.Quo(prod, q96Float)
	amt := new(big.Float).SetPrec(sqrtPrec).SetInt(amount0)
	out := new(big.Float).SetPrec(sqrtPrec).Mul(amt, prod)
	return out.Quo(out, new(big.Float).SetPrec(sqrtPrec).SetInt(diff))
}

// Liquidity1 computes the liquidity provided by amount1 of token1 over the
// sqrt price interval [sqrtA, sqrtB]:
//
//	L1 = amount1 * Q96 / (sqrtB - sqrtA)
func Liquidity1(amount1, sqrtAX96, sqrtBX96 *big.Int) *big.Float {
	lo, hi := order(sqrtAX96, sqrtBX96)
	diff := new(big.Int).Sub(hi, lo)
	if diff.Sign() == 0 {
		return new(big.Float)
	}
	out := new(big.Float).SetPrec(sqrtPrec).SetInt(new(big.Int).Mul(amount1, Q96))
	return out.Quo(out, new(big.Float).SetPrec(sqrtPrec).SetInt(diff))
}
