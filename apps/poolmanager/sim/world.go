package sim

import "sync"

// World is one user's complete simulation state. Each browser session
// gets its own World, seeded with the same starting balances, so users
// can't interfere with each other.
//
// The ledger maps and the event log are not safe for concurrent use;
// callers must hold the World lock across any read or mutation.
type World struct {
	mu sync.Mutex

	Tokens  map[string]*Token
	Manager *Manager
	Pool    *Pool
	Log     *EventLog
	User    string
}

// Lock serializes access to the simulation state. Concurrent requests
// from the same browser session share one World.
func (w *World) Lock() { w.mu.Lock() }

func (w *World) Unlock() { w.mu.Unlock() }

// NewWorld builds the demo scenario: an ETH/USDC pool at price 5000 with
// no liquidity, and Alice holding 10 ETH and 200k USDC.
func NewWorld() *World {
	eth := NewToken("ETH", 18)
	usdc := NewToken("USDC", 6)
	tokens := map[string]*Token{"ETH": eth, "USDC": usdc}

	log := &EventLog{}
	manager := NewManager("Manager", tokens, log)
	pool := NewPool("Pool1", eth, usdc, 5000.0)

	eth.Mint("Alice", eth.Raw(10.0))
	usdc.Mint("Alice", usdc.Raw(200_000.0))

	return &World{
		Tokens:  tokens,
		Manager: manager,
		Pool:    pool,
		Log:     log,
		User:    "Alice",
	}
}
