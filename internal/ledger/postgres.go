package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists depositor postings in PostgreSQL. Balances are the
// sum of an account's signed entries.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Balance returns the summed balance for the specified account, zero when unseen.
func (l *PostgresLedger) Balance(ctx context.Context, account string) (uint64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM entries WHERE address = $1`
	var raw string
	if err := l.db.QueryRow(ctx, query, account).Scan(&raw); err != nil {
		return 0, err
	}
	return parseAmount(raw)
}

// Total returns the sum of every recorded depositor balance.
func (l *PostgresLedger) Total(ctx context.Context) (uint64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM entries`
	var raw string
	if err := l.db.QueryRow(ctx, query).Scan(&raw); err != nil {
		return 0, err
	}
	return parseAmount(raw)
}

// Credit records a credit inside a transaction that commits only after settle succeeds.
func (l *PostgresLedger) Credit(ctx context.Context, account, kind string, amount uint64, settle SettleFunc) (uint64, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := lockDepositor(ctx, tx, account); err != nil {
		return 0, err
	}
	before, err := balanceForAccount(ctx, tx, account)
	if err != nil {
		return 0, err
	}
	if before > math.MaxUint64-amount {
		return before, ErrBalanceOverflow
	}

	if err := insertEntry(ctx, tx, account, kind, strconv.FormatUint(amount, 10)); err != nil {
		return before, err
	}
	if settle != nil {
		if err := settle(ctx); err != nil {
			return before, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return before, fmt.Errorf("commit %s for %s: %w", kind, account, err)
	}
	return before + amount, nil
}

// Debit records a debit inside a transaction that commits only after settle succeeds.
func (l *PostgresLedger) Debit(ctx context.Context, account, kind string, amount uint64, settle SettleFunc) (uint64, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if err := lockDepositor(ctx, tx, account); err != nil {
		return 0, err
	}
	before, err := balanceForAccount(ctx, tx, account)
	if err != nil {
		return 0, err
	}
	if before < amount {
		return before, ErrInsufficientBalance
	}

	if err := insertEntry(ctx, tx, account, kind, "-"+strconv.FormatUint(amount, 10)); err != nil {
		return before, err
	}
	if settle != nil {
		if err := settle(ctx); err != nil {
			return before, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return before, fmt.Errorf("commit %s for %s: %w", kind, account, err)
	}
	return before - amount, nil
}

func lockDepositor(ctx context.Context, tx pgx.Tx, account string) error {
	if _, err := tx.Exec(ctx, `INSERT INTO depositors (address) VALUES ($1) ON CONFLICT (address) DO NOTHING`, account); err != nil {
		return err
	}
	var locked string
	if err := tx.QueryRow(ctx, `SELECT address FROM depositors WHERE address = $1 FOR UPDATE`, account).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("depositor %s not found", account)
		}
		return err
	}
	return nil
}

func insertEntry(ctx context.Context, tx pgx.Tx, account, kind, signedAmount string) error {
	_, err := tx.Exec(ctx, `INSERT INTO entries (id, address, kind, amount) VALUES ($1, $2, $3, $4::numeric)`,
		uuid.New(), account, kind, signedAmount)
	return err
}

func balanceForAccount(ctx context.Context, tx pgx.Tx, account string) (uint64, error) {
	const query = `SELECT COALESCE(SUM(amount), 0)::text FROM entries WHERE address = $1`
	var raw string
	if err := tx.QueryRow(ctx, query, account).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return parseAmount(raw)
}

func parseAmount(raw string) (uint64, error) {
	amount, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse ledger amount %q: %w", raw, err)
	}
	return amount, nil
}
