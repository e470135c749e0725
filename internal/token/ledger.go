// Package token provides the fungible-token ledger the sale engine
// settles against, plus a native-value vault for withdrawn custody.
// The ledger is an external collaborator from the engine's point of
// view: it owns balances and transfer semantics and nothing else.
package token

import (
	"errors"
	"sync"
)

// ErrInsufficientBalance is returned by Transfer when the source
// account does not hold the requested amount.
var ErrInsufficientBalance = errors.New("insufficient token balance")

// Ledger is an in-memory fixed-supply token ledger. The whole supply
// is pre-allocated to a reserve account at construction; tokens only
// move via Transfer, so the total supply is invariant for the ledger's
// lifetime.
type Ledger struct {
	name        string
	symbol      string
	decimals    uint8
	totalSupply uint64

	mu       sync.RWMutex
	balances map[string]uint64
}

// NewLedger creates a ledger with the full supply credited to reserve.
func NewLedger(name, symbol string, decimals uint8, totalSupply uint64, reserve string) *Ledger {
	l := &Ledger{
		name:        name,
		symbol:      symbol,
		decimals:    decimals,
		totalSupply: totalSupply,
		balances:    make(map[string]uint64),
	}
	l.balances[reserve] = totalSupply
	return l
}

// Transfer moves amount from one account to another. A zero amount is
// a no-op. The mutation is atomic: on error no balance changes.
func (l *Ledger) Transfer(from, to string, amount uint64) error {
	if amount == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balances[from] < amount {
		return ErrInsufficientBalance
	}
	l.balances[from] -= amount
	l.balances[to] += amount
	return nil
}

// BalanceOf returns the balance of an account; unknown accounts hold 0.
func (l *Ledger) BalanceOf(id string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[id]
}

// Name returns the token name.
func (l *Ledger) Name() string { return l.name }

// Symbol returns the token symbol.
func (l *Ledger) Symbol() string { return l.symbol }

// Decimals returns the display precision.
func (l *Ledger) Decimals() uint8 { return l.decimals }

// TotalSupply returns the fixed supply.
func (l *Ledger) TotalSupply() uint64 { return l.totalSupply }
