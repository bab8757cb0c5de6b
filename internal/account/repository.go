package account

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNotFound is returned when no account matches the lookup.
	ErrNotFound = errors.New("account not found")
	// ErrExists is returned when registering an address twice.
	ErrExists = errors.New("account exists")
)

// Repository persists accounts.
type Repository interface {
	Create(ctx context.Context, acct Account) error
	FindByAddress(ctx context.Context, address string) (Account, error)
	UpdateTokenVersion(ctx context.Context, address string, version int) error
	// ResetPIN replaces the PIN hash and bumps the token version.
	ResetPIN(ctx context.Context, address string, pinHash []byte) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed account repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new account.
func (r *PostgresRepository) Create(ctx context.Context, acct Account) error {
	_, err := r.db.Exec(ctx, `INSERT INTO accounts (address, pin_hash, token_version, created_at)
        VALUES ($1, $2, $3, $4)`, acct.Address, acct.PINHash, acct.TokenVersion, acct.CreatedAt.UTC())
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrExists
	}
	return err
}

// FindByAddress fetches an account by address.
func (r *PostgresRepository) FindByAddress(ctx context.Context, address string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT address, pin_hash, token_version, created_at FROM accounts WHERE address = $1`, address)
	var (
		acct      Account
		createdAt time.Time
	)
	if err := row.Scan(&acct.Address, &acct.PINHash, &acct.TokenVersion, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	acct.CreatedAt = createdAt.UTC()
	return acct, nil
}

// UpdateTokenVersion stores the account's current token version.
func (r *PostgresRepository) UpdateTokenVersion(ctx context.Context, address string, version int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET token_version = $1 WHERE address = $2`, version, address)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetPIN replaces the PIN hash and invalidates every token issued so far.
func (r *PostgresRepository) ResetPIN(ctx context.Context, address string, pinHash []byte) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET pin_hash = $1, token_version = token_version + 1 WHERE address = $2`, pinHash, address)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
