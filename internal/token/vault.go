package token

import "sync"

// Vault books native value withdrawn from sale custody per recipient.
// It only ever grows; draining a vault account is outside the sale's
// scope.
type Vault struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

// NewVault returns an empty vault.
func NewVault() *Vault {
	return &Vault{balances: make(map[string]uint64)}
}

// Credit adds amount to the recipient's account. The error return
// satisfies the engine's FundsVault interface; an in-memory credit
// cannot fail.
func (v *Vault) Credit(to string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.balances[to] += amount
	return nil
}

// BalanceOf returns the value credited to an account so far.
func (v *Vault) BalanceOf(id string) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.balances[id]
}
