package token

import (
	"context"
	"math"
	"sync"
)

// Memory simulates a fungible token with balances and allowances. It backs the
// development server and tests.
type Memory struct {
	mu         sync.RWMutex
	address    string
	balances   map[string]uint64
	allowances map[string]map[string]uint64
}

// NewMemory creates an empty in-memory token identified by address.
func NewMemory(address string) *Memory {
	return &Memory{
		address:    address,
		balances:   make(map[string]uint64),
		allowances: make(map[string]map[string]uint64),
	}
}

// Address returns the token identifier.
func (m *Memory) Address() string { return m.address }

// Mint credits new units to account. It reports false if the balance would wrap.
func (m *Memory) Mint(account string, amount uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.balances[account] > math.MaxUint64-amount {
		return false
	}
	m.balances[account] += amount
	return true
}

// Approve sets the amount spender may move out of owner's balance.
func (m *Memory) Approve(owner, spender string, amount uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.allowances[owner] == nil {
		m.allowances[owner] = make(map[string]uint64)
	}
	m.allowances[owner][spender] = amount
}

// Allowance returns the remaining amount spender may move out of owner's balance.
func (m *Memory) Allowance(owner, spender string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allowances[owner][spender]
}

// For binds the token to holder: transfers through the returned capability
// debit holder, and transferFrom spends holder's allowances.
func (m *Memory) For(holder string) Capability {
	return &memoryHolder{token: m, holder: holder}
}

func (m *Memory) balanceOf(account string) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[account]
}

func (m *Memory) move(from, to string, amount uint64) bool {
	if m.balances[from] < amount {
		return false
	}
	if from != to && m.balances[to] > math.MaxUint64-amount {
		return false
	}
	m.balances[from] -= amount
	m.balances[to] += amount
	return true
}

type memoryHolder struct {
	token  *Memory
	holder string
}

func (h *memoryHolder) BalanceOf(_ context.Context, account string) (uint64, error) {
	return h.token.balanceOf(account), nil
}

func (h *memoryHolder) TransferFrom(_ context.Context, from, to string, amount uint64) (bool, error) {
	m := h.token
	m.mu.Lock()
	defer m.mu.Unlock()
	if amount == 0 {
		return true, nil
	}
	allowed := m.allowances[from][h.holder]
	if allowed < amount {
		return false, nil
	}
	if !m.move(from, to, amount) {
		return false, nil
	}
	m.allowances[from][h.holder] = allowed - amount
	return true, nil
}

func (h *memoryHolder) Transfer(_ context.Context, to string, amount uint64) (bool, error) {
	m := h.token
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.move(h.holder, to, amount), nil
}
