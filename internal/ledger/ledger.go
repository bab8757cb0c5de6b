package ledger

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientBalance occurs when a debit would take an account below zero.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrBalanceOverflow occurs when a credit would wrap the unsigned balance.
	ErrBalanceOverflow = errors.New("balance overflow")
)

const (
	// EntryKindDeposit marks a credit posted by a deposit.
	EntryKindDeposit = "deposit"
	// EntryKindWithdrawal marks a debit posted by a withdrawal.
	EntryKindWithdrawal = "withdrawal"
)

// SettleFunc performs the external side of a posting. It runs after the posting
// is staged and before it becomes durable; a non-nil error discards the posting.
type SettleFunc func(ctx context.Context) error

// Ledger defines the per-account balance book implemented by ledger backends
// (in-memory and Postgres). Callers serialize postings for the same account.
type Ledger interface {
	Balance(ctx context.Context, account string) (uint64, error)
	Total(ctx context.Context) (uint64, error)
	Credit(ctx context.Context, account, kind string, amount uint64, settle SettleFunc) (uint64, error)
	Debit(ctx context.Context, account, kind string, amount uint64, settle SettleFunc) (uint64, error)
}
