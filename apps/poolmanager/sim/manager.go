package sim

import (
	"fmt"
	"math/big"
)

// EventLog collects a human-readable trace of everything the simulation
// did, newest last.
type EventLog struct {
	entries []string
}

func (l *EventLog) Append(format string, args ...any) {
	l.entries = append(l.entries, fmt.Sprintf(format, args...))
}

// Recent returns up to n of the latest entries, oldest first.
func (l *EventLog) Recent(n int) []string {
	if n <= 0 || len(l.entries) == 0 {
		return nil
	}
	start := len(l.entries) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Manager is the periphery intermediary: it forwards mint/swap to the
// pool and pays the pool from the caller's balance via callbacks, using
// transferFrom semantics. The caller must approve the manager first.
type Manager struct {
	Address string
	Tokens  map[string]*Token
	Log     *EventLog
}

func NewManager(address string, tokens map[string]*Token, log *EventLog) *Manager {
	return &Manager{Address: address, Tokens: tokens, Log: log}
}

// Mint forwards a mint to the pool on behalf of caller.
func (m *Manager) Mint(pool *Pool, caller string, lowerTick, upperTick int, liquidity *big.Int) (amount0, amount1 *big.Int, err error) {
	data := CallbackData{
		Token0Symbol: pool.Token0.Symbol,
		Token1Symbol: pool.Token1.Symbol,
		Payer:        caller,
	}
	m.Log.Append("Manager.mint(pool=%s, caller=%s, L=%s, ticks=[%d,%d])",
		pool.Address, caller, liquidity, lowerTick, upperTick)

	amount0, amount1, err = pool.Mint(lowerTick, upperTick, liquidity, data, m)
	if err != nil {
		return nil, nil, err
	}
	m.Log.Append("Pool.mint required: amount0=%s %s, amount1=%s %s",
		amount0, pool.Token0.Symbol, amount1, pool.Token1.Symbol)
	return amount0, amount1, nil
}

// Swap forwards a token1-in swap to the pool on behalf of caller.
func (m *Manager) Swap(pool *Pool, caller, recipient string, amount1In *big.Int) (amount1Used, amount0Out *big.Int, err error) {
	data := CallbackData{
		Token0Symbol: pool.Token0.Symbol,
		Token1Symbol: pool.Token1.Symbol,
		Payer:        caller,
	}
	m.Log.Append("Manager.swap(pool=%s, caller=%s, recipient=%s, token1_in=%s)",
		pool.Address, caller, recipient, amount1In)

	amount1Used, amount0Out, err = pool.SwapToken1In(recipient, amount1In, data, m)
	if err != nil {
		return nil, nil, err
	}
	m.Log.Append("Pool.swap result: token1_used=%s %s, token0_out=%s %s",
		amount1Used, pool.Token1.Symbol, amount0Out, pool.Token0.Symbol)
	return amount1Used, amount0Out, nil
}

// MintCallback pulls the required amounts from the payer into the pool.
func (m *Manager) MintCallback(pool *Pool, amount0, amount1 *big.Int, data CallbackData) error {
	if amount0.Sign() > 0 {
		t0 := m.Tokens[data.Token0Symbol]
		if err := t0.TransferFrom(m.Address, data.Payer, pool.Address, amount0); err != nil {
			return err
		}
		m.Log.Append("MintCallback: transferFrom %s->%s: %s %s", data.Payer, pool.Address, amount0, t0.Symbol)
	}
	if amount1.Sign() > 0 {
		t1 := m.Tokens[data.Token1Symbol]
		if err := t1.TransferFrom(m.Address, data.Payer, pool.Address, amount1); err != nil {
			return err
		}
		m.Log.Append("MintCallback: transferFrom %s->%s: %s %s", data.Payer, pool.Address, amount1, t1.Symbol)
	}
	return nil
}

// SwapCallback pays the positive (input) side to the pool; the negative
// side is the pool's payout and is not the payer's responsibility.
func (m *Manager) SwapCallback(pool *Pool, amount0, amount1 *big.Int, data CallbackData) error {
	if amount0.Sign() > 0 {
		t0 := m.Tokens[data.Token0Symbol]
		if err := t0.TransferFrom(m.Address, data.Payer, pool.Address, amount0); err != nil {
			return err
		}
		m.Log.Append("SwapCallback: transferFrom %s->%s: %s %s", data.Payer, pool.Address, amount0, t0.Symbol)
	}
	if amount1.Sign() > 0 {
		t1 := m.Tokens[data.Token1Symbol]
		if err := t1.TransferFrom(m.Address, data.Payer, pool.Address, amount1); err != nil {
			return err
		}
		m.Log.Append("SwapCallback: transferFrom %s->%s: %s %s", data.Payer, pool.Address, amount1, t1.Symbol)
	}
	return nil
}
