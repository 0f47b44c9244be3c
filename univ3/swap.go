package univ3

import (
	"errors"
	"math/big"
)

var (
	// ErrNonPositiveLiquidity is returned when a swap is attempted against
	// zero or negative liquidity.
	ErrNonPositiveLiquidity = errors.New("liquidity must be > 0")
	// ErrNonPositiveSqrtPrice is returned when the current sqrt price is
	// zero or negative.
	ErrNonPositiveSqrtPrice = errors.New("sqrt price must be > 0")
	// ErrNegativeAmount is returned when the input amount is negative.
	ErrNegativeAmount = errors.New("input amount must be >= 0")
)

// SwapResult describes the outcome of a single-range swap.
type SwapResult struct {
	// SqrtPriceNextX96 is the pool sqrt price after the swap.
	SqrtPriceNextX96 *big.Int
	// Amount0Out is the token0 amount paid out by the pool.
	Amount0Out *big.Int
	// Amount1Used is the token1 amount actually consumed. Equal to the
	// input unless the move was clamped at a range boundary.
	Amount1Used *big.Int
	// Clamped reports whether the price move hit a range boundary.
	Clamped bool
}

// SwapToken1In performs a constant-liquidity single-range swap of token1 in
// for token0 out. The sqrt price moves up by
//
//	ΔsqrtP = amount1In * Q96 / L
//
// and the token0 output is Amount0Delta over the move. Liquidity stays
// constant; crossing into a neighboring range is out of scope here.
func SwapToken1In(liquidity, sqrtPX96, amount1In *big.Int) (*SwapResult, error) {
	if liquidity == nil || liquidity.Sign() <= 0 {
		return nil, ErrNonPositiveLiquidity
	}
	if sqrtPX96 == nil || sqrtPX96.Sign() <= 0 {
		return nil, ErrNonPositiveSqrtPrice
	}
	if amount1In == nil || amount1In.Sign() < 0 {
		return nil, ErrNegativeAmount
	}

	delta := new(big.Int).Mul(amount1In, Q96)
	delta.Quo(delta, liquidity)
	next := new(big.Int).Add(sqrtPX96, delta)

	return &SwapResult{
		SqrtPriceNextX96: next,
		Amount0Out:       Amount0Delta(liquidity, next, sqrtPX96),
		Amount1Used:      new(big.Int).Set(amount1In),
		Clamped:          false,
	}, nil
}

// SwapToken1InClamped is SwapToken1In with the resulting sqrt price clamped
// to [sqrtLowerX96, sqrtUpperX96]. When the move is clamped, Amount0Out and
// Amount1Used are recomputed for the boundary move, so Amount1Used reports
// the token1 actually consumed to reach the boundary.
func SwapToken1InClamped(liquidity, sqrtPX96, sqrtLowerX96, sqrtUpperX96, amount1In *big.Int) (*SwapResult, error) {
	res, err := SwapToken1In(liquidity, sqrtPX96, amount1In)
	if err != nil {
		return nil, err
	}

	next := res.SqrtPriceNextX96
	if next.Cmp(sqrtLowerX96) < 0 {
		next = new(big.Int).Set(sqrtLowerX96)
		res.Clamped = true
	}
	if next.Cmp(sqrtUpperX96) > 0 {
		next = new(big.Int).Set(sqrtUpperX96)
		res.Clamped = true
	}
	if res.Clamped {
		res.SqrtPriceNextX96 = next
		res.Amount0Out = Amount0Delta(liquidity, next, sqrtPX96)
		res.Amount1Used = Amount1Delta(liquidity, next, sqrtPX96)
	}
	return res, nil
}
