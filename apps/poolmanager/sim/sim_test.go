package sim

import (
	"errors"
	"math/big"
	"testing"

	"github.com/v3labs/demohub/univ3"
)

func TestTokenTransfer(t *testing.T) {
	eth := NewToken("ETH", 18)
	eth.Mint("Alice", eth.Raw(2.0))

	if err := eth.Transfer("Alice", "Bob", eth.Raw(0.5)); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if got := eth.Human(eth.BalanceOf("Alice")); got != 1.5 {
		t.Errorf("Alice balance = %v, want 1.5", got)
	}
	if got := eth.Human(eth.BalanceOf("Bob")); got != 0.5 {
		t.Errorf("Bob balance = %v, want 0.5", got)
	}

	err := eth.Transfer("Bob", "Alice", eth.Raw(100.0))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Errorf("overdraft error = %v, want ErrInsufficientBalance", err)
	}
}

func TestTransferFromRequiresAllowance(t *testing.T) {
	usdc := NewToken("USDC", 6)
	usdc.Mint("Alice", usdc.Raw(1000.0))

	err := usdc.TransferFrom("Manager", "Alice", "Pool1", usdc.Raw(10.0))
	if !errors.Is(err, ErrAllowanceTooLow) {
		t.Fatalf("error = %v, want ErrAllowanceTooLow", err)
	}

	usdc.Approve("Alice", "Manager", usdc.Raw(50.0))
	if err := usdc.TransferFrom("Manager", "Alice", "Pool1", usdc.Raw(10.0)); err != nil {
		t.Fatalf("TransferFrom after approve: %v", err)
	}

	// Allowance decremented by the pulled amount.
	if got := usdc.Human(usdc.Allowance("Alice", "Manager")); got != 40.0 {
		t.Errorf("remaining allowance = %v, want 40", got)
	}
	if got := usdc.Human(usdc.BalanceOf("Pool1")); got != 10.0 {
		t.Errorf("pool balance = %v, want 10", got)
	}
}

func TestSwapWithoutLiquidityFails(t *testing.T) {
	w := NewWorld()
	_, _, err := w.Manager.Swap(w.Pool, "Alice", "Alice", w.Tokens["USDC"].Raw(42.0))
	if !errors.Is(err, ErrNoLiquidity) {
		t.Errorf("error = %v, want ErrNoLiquidity", err)
	}
}

func TestMintWithoutApprovalFails(t *testing.T) {
	w := NewWorld()
	liquidity := new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil)

	_, _, err := w.Manager.Mint(w.Pool, "Alice",
		univ3.PriceToTick(4545), univ3.PriceToTick(5500), liquidity)
	if !errors.Is(err, ErrAllowanceTooLow) {
		t.Fatalf("error = %v, want ErrAllowanceTooLow", err)
	}
	if w.Pool.Liquidity.Sign() != 0 {
		t.Error("failed mint must not activate liquidity")
	}
}

func TestMintRejectsInvertedRange(t *testing.T) {
	w := NewWorld()
	_, _, err := w.Manager.Mint(w.Pool, "Alice", 100, 100, big.NewInt(1))
	if !errors.Is(err, ErrInvalidRange) {
		t.Errorf("error = %v, want ErrInvalidRange", err)
	}
}

// approveAll gives the manager unlimited spending power for the test user.
func approveAll(w *World) {
	huge := new(big.Int).Exp(big.NewInt(10), big.NewInt(40), nil)
	w.Tokens["ETH"].Approve("Alice", w.Manager.Address, huge)
	w.Tokens["USDC"].Approve("Alice", w.Manager.Address, huge)
}

func TestMintThenSwapFlow(t *testing.T) {
	w := NewWorld()
	approveAll(w)

	// At price 5000 with this range, minting L requires roughly 3.3*L raw
	// USDC; keep L small enough for Alice's seeded 200k USDC.
	liquidity := new(big.Int).Exp(big.NewInt(10), big.NewInt(10), nil)
	amount0, amount1, err := w.Manager.Mint(w.Pool, "Alice",
		univ3.PriceToTick(4545), univ3.PriceToTick(5500), liquidity)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if amount0.Sign() <= 0 || amount1.Sign() <= 0 {
		t.Fatalf("in-range mint should need both tokens, got %s and %s", amount0, amount1)
	}
	if w.Pool.Liquidity.Cmp(liquidity) != 0 {
		t.Errorf("pool liquidity = %s, want %s", w.Pool.Liquidity, liquidity)
	}

	// The mint callback must have moved exactly the required amounts into
	// the pool.
	if got := w.Tokens["ETH"].BalanceOf("Pool1"); got.Cmp(amount0) != 0 {
		t.Errorf("pool ETH = %s, want %s", got, amount0)
	}
	if got := w.Tokens["USDC"].BalanceOf("Pool1"); got.Cmp(amount1) != 0 {
		t.Errorf("pool USDC = %s, want %s", got, amount1)
	}

	priceBefore := w.Pool.Info().Price
	ethBefore := w.Tokens["ETH"].BalanceOf("Alice")

	amount1Used, amount0Out, err := w.Manager.Swap(w.Pool, "Alice", "Alice", w.Tokens["USDC"].Raw(42.0))
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if amount0Out.Sign() <= 0 {
		t.Fatal("swap should pay out token0")
	}
	if amount1Used.Cmp(w.Tokens["USDC"].Raw(42.0)) != 0 {
		t.Errorf("unclamped swap should use the full input, used %s", amount1Used)
	}

	// Token1 in pushes the price up.
	if priceAfter := w.Pool.Info().Price; priceAfter <= priceBefore {
		t.Errorf("price did not increase: %v -> %v", priceBefore, priceAfter)
	}

	ethAfter := w.Tokens["ETH"].BalanceOf("Alice")
	gained := new(big.Int).Sub(ethAfter, ethBefore)
	if gained.Cmp(amount0Out) != 0 {
		t.Errorf("recipient gained %s ETH, swap reported %s", gained, amount0Out)
	}

	if len(w.Log.Recent(100)) == 0 {
		t.Error("event log should record the flow")
	}
}

func TestSwapClampsAtUpperBoundary(t *testing.T) {
	w := NewWorld()
	approveAll(w)

	// Small liquidity and a huge input force the price to the boundary.
	liquidity := big.NewInt(1_000_000)
	if _, _, err := w.Manager.Mint(w.Pool, "Alice",
		univ3.PriceToTick(4545), univ3.PriceToTick(5500), liquidity); err != nil {
		t.Fatalf("Mint: %v", err)
	}

	in := w.Tokens["USDC"].Raw(100_000.0)
	amount1Used, _, err := w.Manager.Swap(w.Pool, "Alice", "Alice", in)
	if err != nil {
		t.Fatalf("Swap: %v", err)
	}
	if amount1Used.Cmp(in) >= 0 {
		t.Errorf("clamped swap should use less than the input: used %s of %s", amount1Used, in)
	}

	info := w.Pool.Info()
	upper := univ3.TickToPrice(univ3.PriceToTick(5500))
	if info.Price > upper*1.0001 {
		t.Errorf("price %v escaped the range (upper %v)", info.Price, upper)
	}
}

func TestWorldSeeding(t *testing.T) {
	w := NewWorld()
	if got := w.Tokens["ETH"].Human(w.Tokens["ETH"].BalanceOf("Alice")); got != 10.0 {
		t.Errorf("Alice ETH = %v, want 10", got)
	}
	if got := w.Tokens["USDC"].Human(w.Tokens["USDC"].BalanceOf("Alice")); got != 200_000.0 {
		t.Errorf("Alice USDC = %v, want 200000", got)
	}
	info := w.Pool.Info()
	if info.Price < 4999 || info.Price > 5001 {
		t.Errorf("initial pool price = %v, want ~5000", info.Price)
	}
	if info.Liquidity.Sign() != 0 {
		t.Error("pool should start with no liquidity")
	}
}
