package account

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu       sync.RWMutex
	accounts map[string]Account
}

// NewMemoryRepository builds an in-memory account store for tests and development.
func NewMemoryRepository() Repository {
	return &memoryRepository{accounts: make(map[string]Account)}
}

func (r *memoryRepository) Create(_ context.Context, acct Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.accounts[acct.Address]; exists {
		return ErrExists
	}
	r.accounts[acct.Address] = acct
	return nil
}

func (r *memoryRepository) FindByAddress(_ context.Context, address string) (Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	acct, ok := r.accounts[address]
	if !ok {
		return Account{}, ErrNotFound
	}
	return acct, nil
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, address string, version int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[address]
	if !ok {
		return ErrNotFound
	}
	acct.TokenVersion = version
	r.accounts[address] = acct
	return nil
}

func (r *memoryRepository) ResetPIN(_ context.Context, address string, pinHash []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	acct, ok := r.accounts[address]
	if !ok {
		return ErrNotFound
	}
	acct.PINHash = pinHash
	acct.TokenVersion++
	r.accounts[address] = acct
	return nil
}
