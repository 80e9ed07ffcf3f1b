package lending

import (
	"sync"

	"dlend/core/types"
)

// Vault is the token custody boundary. Deposit pulls tokens from the actor
// into module custody; Withdraw releases custody back to the actor. Both must
// be atomic per call.
type Vault interface {
	Deposit(actor types.Address, asset string, amount uint64) error
	Withdraw(actor types.Address, asset string, amount uint64) error
}

type balanceKey struct {
	actor types.Address
	asset string
}

// MemoryVault is an in-process ledger implementing Vault. It tracks actor
// wallet balances and per-asset module cash, and refuses transfers that would
// overdraw either side. Used by tests and the standalone daemon.
type MemoryVault struct {
	mu       sync.Mutex
	balances map[balanceKey]uint64
	cash     map[string]uint64
}

func NewMemoryVault() *MemoryVault {
	return &MemoryVault{
		balances: make(map[balanceKey]uint64),
		cash:     make(map[string]uint64),
	}
}

// Fund credits an actor's wallet outside the lending flow. Test and faucet
// entry point.
func (v *MemoryVault) Fund(actor types.Address, asset string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := balanceKey{actor: actor, asset: asset}
	next, err := addU64(v.balances[key], amount)
	if err != nil {
		return err
	}
	v.balances[key] = next
	return nil
}

func (v *MemoryVault) Deposit(actor types.Address, asset string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	key := balanceKey{actor: actor, asset: asset}
	if v.balances[key] < amount {
		return ErrInsufficientLiquidity
	}
	next, err := addU64(v.cash[asset], amount)
	if err != nil {
		return err
	}
	v.balances[key] -= amount
	v.cash[asset] = next
	return nil
}

func (v *MemoryVault) Withdraw(actor types.Address, asset string, amount uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.cash[asset] < amount {
		return ErrInsufficientLiquidity
	}
	key := balanceKey{actor: actor, asset: asset}
	next, err := addU64(v.balances[key], amount)
	if err != nil {
		return err
	}
	v.cash[asset] -= amount
	v.balances[key] = next
	return nil
}

// Balance reports an actor's wallet balance for an asset.
func (v *MemoryVault) Balance(actor types.Address, asset string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.balances[balanceKey{actor: actor, asset: asset}]
}

// VaultCash reports the module's custodied cash for an asset. After any
// sequence of operations it should equal the sum over the asset's pools of
// TotalLiquidity minus TotalBorrowed.
func (v *MemoryVault) VaultCash(asset string) uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cash[asset]
}
