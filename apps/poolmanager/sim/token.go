// Package sim is an in-memory simulation of the manager-contract demo:
// ERC20-style token ledgers, a single-range pool, and a periphery manager
// that pays the pool through mint/swap callbacks. All amounts are raw
// integer units; nothing here touches a real chain.
package sim

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

var (
	ErrNegativeAmount      = errors.New("amount must be >= 0")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAllowanceTooLow     = errors.New("allowance too low")
)

type allowanceKey struct {
	owner   string
	spender string
}

// Token is a minimal ERC20-like ledger: balances plus owner/spender
// allowances, keyed by free-form address strings.
type Token struct {
	Symbol   string
	Decimals int

	balances   map[string]*big.Int
	allowances map[allowanceKey]*big.Int
}

func NewToken(symbol string, decimals int) *Token {
	return &Token{
		Symbol:     symbol,
		Decimals:   decimals,
		balances:   make(map[string]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Raw converts a human amount to raw integer units.
func (t *Token) Raw(human float64) *big.Int {
	scaled := human * math.Pow10(t.Decimals)
	f := new(big.Float).SetFloat64(scaled)
	out, _ := f.Int(nil)
	return out
}

// Human converts raw units back to a display value.
func (t *Token) Human(raw *big.Int) float64 {
	if raw == nil {
		return 0
	}
	f := new(big.Float).SetInt(raw)
	f.Quo(f, new(big.Float).SetFloat64(math.Pow10(t.Decimals)))
	out, _ := f.Float64()
	return out
}

// BalanceOf returns a copy of the address's balance.
func (t *Token) BalanceOf(addr string) *big.Int {
	if bal, ok := t.balances[addr]; ok {
		return new(big.Int).Set(bal)
	}
	return new(big.Int)
}

// Mint credits raw units to an address out of thin air.
func (t *Token) Mint(addr string, raw *big.Int) {
	t.balances[addr] = new(big.Int).Add(t.BalanceOf(addr), raw)
}

// Approve sets the allowance from owner to spender.
func (t *Token) Approve(owner, spender string, raw *big.Int) {
	t.allowances[allowanceKey{owner, spender}] = new(big.Int).Set(raw)
}

// Allowance returns a copy of the owner->spender allowance.
func (t *Token) Allowance(owner, spender string) *big.Int {
	if a, ok := t.allowances[allowanceKey{owner, spender}]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// Transfer moves raw units from sender to to.
func (t *Token) Transfer(sender, to string, raw *big.Int) error {
	if raw.Sign() < 0 {
		return fmt.Errorf("%s: %w", t.Symbol, ErrNegativeAmount)
	}
	bal := t.BalanceOf(sender)
	if bal.Cmp(raw) < 0 {
		return fmt.Errorf("%s: %w (have %s, need %s)", t.Symbol, ErrInsufficientBalance, bal, raw)
	}
	t.balances[sender] = bal.Sub(bal, raw)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), raw)
	return nil
}

// TransferFrom lets spender pull raw units from owner's balance within
// the approved allowance, crediting to.
func (t *Token) TransferFrom(spender, owner, to string, raw *big.Int) error {
	if raw.Sign() < 0 {
		return fmt.Errorf("%s: %w", t.Symbol, ErrNegativeAmount)
	}
	allowed := t.Allowance(owner, spender)
	if allowed.Cmp(raw) < 0 {
		return fmt.Errorf("%s: %w (allowed %s, need %s)", t.Symbol, ErrAllowanceTooLow, allowed, raw)
	}
	bal := t.BalanceOf(owner)
	if bal.Cmp(raw) < 0 {
		return fmt.Errorf("%s: %w (owner has %s, need %s)", t.Symbol, ErrInsufficientBalance, bal, raw)
	}
	t.allowances[allowanceKey{owner, spender}] = allowed.Sub(allowed, raw)
	t.balances[owner] = bal.Sub(bal, raw)
	t.balances[to] = new(big.Int).Add(t.BalanceOf(to), raw)
	return nil
}
