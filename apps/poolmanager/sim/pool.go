package sim

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/v3labs/demohub/univ3"
)

// CallbackData travels from the manager through the pool and back into
// the callbacks, identifying which tokens to move and who pays.
type CallbackData struct {
	Token0Symbol string
	Token1Symbol string
	Payer        string
}

// PaymentHandler is implemented by the manager: the pool calls back into
// it to collect payment during mint and swap. Positive amounts mean the
// pool expects that token in; negative amounts are owed to the recipient
// and handled by the pool itself.
type PaymentHandler interface {
	MintCallback(pool *Pool, amount0, amount1 *big.Int, data CallbackData) error
	SwapCallback(pool *Pool, amount0, amount1 *big.Int, data CallbackData) error
}

var (
	ErrNoLiquidity  = errors.New("pool has no liquidity, mint first")
	ErrInvalidRange = errors.New("lower tick must be < upper tick")
	ErrOutOfRange   = errors.New("current price must be inside the range")
)

// Pool is a single pool with one active range. Liquidity is treated as
// constant during swaps; the swap path clamps at the range boundary.
type Pool struct {
	Address string
	Token0  *Token
	Token1  *Token

	SqrtPX96  *big.Int
	LowerTick int
	UpperTick int
	Liquidity *big.Int
}

func NewPool(address string, token0, token1 *Token, priceInit float64) *Pool {
	return &Pool{
		Address:   address,
		Token0:    token0,
		Token1:    token1,
		SqrtPX96:  univ3.PriceToSqrtPriceX96(priceInit),
		LowerTick: univ3.PriceToTick(priceInit * 0.91),
		UpperTick: univ3.PriceToTick(priceInit * 1.10),
		Liquidity: new(big.Int),
	}
}

// PoolInfo is a display snapshot of the pool state.
type PoolInfo struct {
	Price     float64
	Tick      int
	LowerTick int
	UpperTick int
	Liquidity *big.Int
}

func (p *Pool) Info() PoolInfo {
	price := univ3.SqrtPriceX96ToPrice(p.SqrtPX96)
	return PoolInfo{
		Price:     price,
		Tick:      univ3.PriceToTick(price),
		LowerTick: p.LowerTick,
		UpperTick: p.UpperTick,
		Liquidity: new(big.Int).Set(p.Liquidity),
	}
}

func (p *Pool) SetRange(lowerTick, upperTick int) error {
	if lowerTick >= upperTick {
		return ErrInvalidRange
	}
	p.LowerTick = lowerTick
	p.UpperTick = upperTick
	return nil
}

// requiredAmounts computes the token amounts needed to add liquidity when
// the current price sits inside the range:
//
//	amount0 over [current, upper], amount1 over [lower, current]
func (p *Pool) requiredAmounts(liquidity *big.Int) (amount0, amount1 *big.Int, err error) {
	sqrtL := univ3.TickToSqrtPriceX96(p.LowerTick)
	sqrtU := univ3.TickToSqrtPriceX96(p.UpperTick)
	sqrtC := p.SqrtPX96

	if sqrtC.Cmp(sqrtL) < 0 || sqrtC.Cmp(sqrtU) > 0 {
		return nil, nil, ErrOutOfRange
	}

	amount0 = univ3.Amount0Delta(liquidity, sqrtU, sqrtC)
	amount1 = univ3.Amount1Delta(liquidity, sqrtC, sqrtL)
	return amount0, amount1, nil
}

// Mint adds liquidity to the range, collecting the required token amounts
// from the payer via the handler's mint callback. Liquidity only becomes
// active once the callback has paid in full.
func (p *Pool) Mint(lowerTick, upperTick int, liquidity *big.Int, data CallbackData, handler PaymentHandler) (amount0, amount1 *big.Int, err error) {
	if err := p.SetRange(lowerTick, upperTick); err != nil {
		return nil, nil, err
	}
	amount0, amount1, err = p.requiredAmounts(liquidity)
	if err != nil {
		return nil, nil, err
	}

	if err := handler.MintCallback(p, amount0, amount1, data); err != nil {
		return nil, nil, fmt.Errorf("mint callback: %w", err)
	}

	p.Liquidity.Add(p.Liquidity, liquidity)
	return amount0, amount1, nil
}

// SwapToken1In swaps token1 in for token0 out, clamped to the active
// range. The handler's swap callback collects the token1 payment; the
// pool then pays token0 out of its own balance to the recipient.
func (p *Pool) SwapToken1In(recipient string, amount1In *big.Int, data CallbackData, handler PaymentHandler) (amount1Used, amount0Out *big.Int, err error) {
	if p.Liquidity.Sign() <= 0 {
		return nil, nil, ErrNoLiquidity
	}

	sqrtL := univ3.TickToSqrtPriceX96(p.LowerTick)
	sqrtU := univ3.TickToSqrtPriceX96(p.UpperTick)

	res, err := univ3.SwapToken1InClamped(p.Liquidity, p.SqrtPX96, sqrtL, sqrtU, amount1In)
	if err != nil {
		return nil, nil, err
	}

	// Uniswap sign convention: positive = pool wants this token in.
	negAmount0 := new(big.Int).Neg(res.Amount0Out)
	if err := handler.SwapCallback(p, negAmount0, res.Amount1Used, data); err != nil {
		return nil, nil, fmt.Errorf("swap callback: %w", err)
	}

	if err := p.Token0.Transfer(p.Address, recipient, res.Amount0Out); err != nil {
		return nil, nil, fmt.Errorf("pool payout: %w", err)
	}

	p.SqrtPX96 = res.SqrtPriceNextX96
	return res.Amount1Used, res.Amount0Out, nil
}
