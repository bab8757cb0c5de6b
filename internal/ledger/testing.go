package ledger

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
func SeedBalance(l Ledger, account string, amount uint64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[account] = amount
	}
}
