package ledger

import (
	"context"
	"math"
	"sync"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	balances map[string]uint64
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and development.
func NewInMemory() Ledger {
	return &inMemoryLedger{balances: make(map[string]uint64)}
}

func (l *inMemoryLedger) Balance(_ context.Context, account string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}

func (l *inMemoryLedger) Total(_ context.Context) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var total uint64
	for _, balance := range l.balances {
		if total > math.MaxUint64-balance {
			return 0, ErrBalanceOverflow
		}
		total += balance
	}
	return total, nil
}

// Credit stages the credit and releases the lock while settle runs so that
// reads from inside settle do not deadlock. A failed settle reverts the credit.
// kind only matters to journaled backends.
func (l *inMemoryLedger) Credit(ctx context.Context, account, _ string, amount uint64, settle SettleFunc) (uint64, error) {
	l.mu.Lock()
	before := l.balances[account]
	if before > math.MaxUint64-amount {
		l.mu.Unlock()
		return before, ErrBalanceOverflow
	}
	l.balances[account] = before + amount
	l.mu.Unlock()

	if settle != nil {
		if err := settle(ctx); err != nil {
			l.mu.Lock()
			l.balances[account] -= amount
			l.mu.Unlock()
			return before, err
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}

func (l *inMemoryLedger) Debit(ctx context.Context, account, _ string, amount uint64, settle SettleFunc) (uint64, error) {
	l.mu.Lock()
	before := l.balances[account]
	if before < amount {
		l.mu.Unlock()
		return before, ErrInsufficientBalance
	}
	l.balances[account] = before - amount
	l.mu.Unlock()

	if settle != nil {
		if err := settle(ctx); err != nil {
			l.mu.Lock()
			l.balances[account] += amount
			l.mu.Unlock()
			return before, err
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}
