package savings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/congo-pay/token_vault/internal/ledger"
	"github.com/congo-pay/token_vault/internal/logging"
	"github.com/congo-pay/token_vault/internal/metrics"
	"github.com/congo-pay/token_vault/internal/notification"
	"github.com/congo-pay/token_vault/internal/token"
)

var (
	// ErrInvalidAmount rejects zero-valued deposits, withdrawals and sweeps.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInvalidCaller rejects an empty caller or the vault acting on itself.
	ErrInvalidCaller = errors.New("invalid caller")
	// ErrInsufficientCallerFunds means the caller's own token holdings cannot cover a deposit.
	ErrInsufficientCallerFunds = errors.New("insufficient caller funds")
	// ErrInsufficientPooledFunds means the vault's token holdings cannot cover a withdrawal.
	ErrInsufficientPooledFunds = errors.New("insufficient pooled funds")
	// ErrInsufficientBalance means the caller's recorded balance cannot cover a withdrawal.
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	// ErrTransferFailed means the token rejected or failed the deposit transferFrom.
	ErrTransferFailed = errors.New("transfer failed")
	// ErrWithdrawFailed means the token rejected or failed a payout transfer.
	ErrWithdrawFailed = errors.New("withdraw failed")
	// ErrNotOwner rejects owner-only operations from any other account.
	ErrNotOwner = errors.New("not owner")
	// ErrReentrantCall rejects a state-changing call made from inside a token call.
	ErrReentrantCall = errors.New("reentrant call")
)

const (
	opDeposit    = "deposit"
	opWithdraw   = "withdraw"
	opOwnerSweep = "owner_sweep"
)

// Config fixes the identities a vault is constructed with.
type Config struct {
	Owner        string
	TokenAddress string
	VaultAddress string
}

// Deps carries the collaborators of a vault Service.
type Deps struct {
	Token     token.Capability
	Ledger    ledger.Ledger
	Publisher notification.Publisher
	Metrics   *metrics.Registry
	Logger    *slog.Logger
}

// Service is the custodial ledger for a single token. State-changing operations
// are serialized by mu; postings are staged before the token call and kept only
// if the call succeeds.
type Service struct {
	mu sync.Mutex
	// inTokenCall is set while a mutation waits on the token.
	inTokenCall atomic.Bool

	owner        string
	tokenAddress string
	vaultAddress string

	token     token.Capability
	ledger    ledger.Ledger
	publisher notification.Publisher
	metrics   *metrics.Registry
	logger    *slog.Logger
}

// Result describes a completed deposit or withdrawal.
type Result struct {
	Account     string
	Amount      uint64
	Balance     uint64
	CompletedAt time.Time
}

// Solvency compares recorded depositor balances with the tokens actually held.
type Solvency struct {
	Recorded  uint64
	Pooled    uint64
	Shortfall uint64
	AsOf      time.Time
}

// NewService constructs a vault bound to one owner and one token.
func NewService(cfg Config, deps Deps) (*Service, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("owner is required")
	}
	if cfg.TokenAddress == "" {
		return nil, fmt.Errorf("token address is required")
	}
	if cfg.VaultAddress == "" || cfg.VaultAddress == cfg.Owner {
		return nil, fmt.Errorf("vault address must be set and differ from the owner")
	}
	if deps.Token == nil {
		return nil, fmt.Errorf("token capability is required")
	}
	if deps.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	return &Service{
		owner:        cfg.Owner,
		tokenAddress: cfg.TokenAddress,
		vaultAddress: cfg.VaultAddress,
		token:        deps.Token,
		ledger:       deps.Ledger,
		publisher:    deps.Publisher,
		metrics:      deps.Metrics,
		logger:       deps.Logger,
	}, nil
}

// Owner returns the account allowed to sweep.
func (s *Service) Owner() string { return s.owner }

// TokenAddress returns the designated token.
func (s *Service) TokenAddress() string { return s.tokenAddress }

// VaultAddress returns the vault's own account at the token.
func (s *Service) VaultAddress() string { return s.vaultAddress }

// Deposit pulls amount from the caller's token holdings into custody and
// credits the caller's recorded balance.
func (s *Service) Deposit(ctx context.Context, caller string, amount uint64) (res Result, err error) {
	start := time.Now()
	defer func() { s.observe(opDeposit, caller, amount, start, err) }()

	ctx, err = s.enter(ctx)
	if err != nil {
		return Result{}, err
	}
	if amount == 0 {
		return Result{}, fmt.Errorf("%w: can't save zero value", ErrInvalidAmount)
	}
	if err := s.checkCaller(caller); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var held uint64
	err = s.outbound(func() (err error) {
		held, err = s.token.BalanceOf(ctx, caller)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("query caller balance: %w", err)
	}
	if held < amount {
		return Result{}, fmt.Errorf("%w: not enough token", ErrInsufficientCallerFunds)
	}

	balance, err := s.ledger.Credit(ctx, caller, ledger.EntryKindDeposit, amount, func(ctx context.Context) error {
		var ok bool
		err := s.outbound(func() (err error) {
			ok, err = s.token.TransferFrom(ctx, caller, s.vaultAddress, amount)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: failed to transfer: %v", ErrTransferFailed, err)
		}
		if !ok {
			return fmt.Errorf("%w: failed to transfer", ErrTransferFailed)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.publish(ctx, notification.KindSavingSuccessful, caller, amount)
	return Result{Account: caller, Amount: amount, Balance: balance, CompletedAt: time.Now().UTC()}, nil
}

// Withdraw pays amount out of custody to the caller and debits the caller's
// recorded balance. The pooled balance is checked before the caller's own.
func (s *Service) Withdraw(ctx context.Context, caller string, amount uint64) (res Result, err error) {
	start := time.Now()
	defer func() { s.observe(opWithdraw, caller, amount, start, err) }()

	ctx, err = s.enter(ctx)
	if err != nil {
		return Result{}, err
	}
	if amount == 0 {
		return Result{}, fmt.Errorf("%w: can't withdraw zero value", ErrInvalidAmount)
	}
	if err := s.checkCaller(caller); err != nil {
		return Result{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pooled uint64
	err = s.outbound(func() (err error) {
		pooled, err = s.token.BalanceOf(ctx, s.vaultAddress)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("query pooled balance: %w", err)
	}
	if pooled < amount {
		return Result{}, fmt.Errorf("%w: insufficient funds", ErrInsufficientPooledFunds)
	}

	balance, err := s.ledger.Debit(ctx, caller, ledger.EntryKindWithdrawal, amount, func(ctx context.Context) error {
		var ok bool
		err := s.outbound(func() (err error) {
			ok, err = s.token.Transfer(ctx, caller, amount)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: failed to withdraw: %v", ErrWithdrawFailed, err)
		}
		if !ok {
			return fmt.Errorf("%w: failed to withdraw", ErrWithdrawFailed)
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	s.publish(ctx, notification.KindWithdrawSuccessful, caller, amount)
	return Result{Account: caller, Amount: amount, Balance: balance, CompletedAt: time.Now().UTC()}, nil
}

// OwnerSweep moves amount of pooled funds to the owner. Recorded depositor
// balances are left untouched, so they may overstate custody afterwards.
func (s *Service) OwnerSweep(ctx context.Context, caller string, amount uint64) (err error) {
	start := time.Now()
	defer func() { s.observe(opOwnerSweep, caller, amount, start, err) }()

	ctx, err = s.enter(ctx)
	if err != nil {
		return err
	}
	if caller != s.owner {
		return fmt.Errorf("%w: not owner", ErrNotOwner)
	}
	if amount == 0 {
		return fmt.Errorf("%w: can't withdraw zero value", ErrInvalidAmount)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var ok bool
	err = s.outbound(func() (err error) {
		ok, err = s.token.Transfer(ctx, s.owner, amount)
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: failed to withdraw: %v", ErrWithdrawFailed, err)
	}
	if !ok {
		return fmt.Errorf("%w: failed to withdraw", ErrWithdrawFailed)
	}

	s.logger.Warn("owner sweep completed", "owner", s.owner, "amount", amount, "token", s.tokenAddress)
	return nil
}

// CheckContractBalance re-queries the tokens currently held by the vault.
func (s *Service) CheckContractBalance(ctx context.Context) (uint64, error) {
	return s.token.BalanceOf(ctx, s.vaultAddress)
}

// CheckUserBalance returns account's recorded balance, zero when unseen.
func (s *Service) CheckUserBalance(ctx context.Context, account string) (uint64, error) {
	return s.ledger.Balance(ctx, account)
}

// Solvency reports how far recorded balances exceed the pooled balance. Owner only.
func (s *Service) Solvency(ctx context.Context, caller string) (Solvency, error) {
	if caller != s.owner {
		return Solvency{}, fmt.Errorf("%w: not owner", ErrNotOwner)
	}
	recorded, err := s.ledger.Total(ctx)
	if err != nil {
		return Solvency{}, err
	}
	pooled, err := s.token.BalanceOf(ctx, s.vaultAddress)
	if err != nil {
		return Solvency{}, fmt.Errorf("query pooled balance: %w", err)
	}
	report := Solvency{Recorded: recorded, Pooled: pooled, AsOf: time.Now().UTC()}
	if recorded > pooled {
		report.Shortfall = recorded - pooled
	}
	return report, nil
}

func (s *Service) checkCaller(caller string) error {
	if caller == "" {
		return fmt.Errorf("%w: caller is required", ErrInvalidCaller)
	}
	if caller == s.vaultAddress {
		return fmt.Errorf("%w: vault cannot act on itself", ErrInvalidCaller)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, kind, account string, amount uint64) {
	if s.publisher == nil {
		return
	}
	event := notification.NewEvent(kind, account, s.tokenAddress, amount)
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("publish event", "kind", kind, "account", account, "error", err)
	}
}

func (s *Service) observe(operation, caller string, amount uint64, start time.Time, err error) {
	result := Outcome(err)
	s.metrics.Observe(operation, result, amount, time.Since(start))
	if err != nil {
		s.logger.Debug("operation rejected", "operation", operation, "account", caller, "amount", amount, "outcome", result, "error", err)
		return
	}
	s.logger.Info("operation completed", "operation", operation, "account", caller, "amount", amount)
}

// Outcome labels an operation error for metrics and API responses.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInvalidCaller):
		return "invalid_caller"
	case errors.Is(err, ErrInsufficientCallerFunds):
		return "insufficient_caller_funds"
	case errors.Is(err, ErrInsufficientPooledFunds):
		return "insufficient_pooled_funds"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ledger.ErrBalanceOverflow):
		return "balance_overflow"
	case errors.Is(err, ErrTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrWithdrawFailed):
		return "withdraw_failed"
	case errors.Is(err, ErrNotOwner):
		return "not_owner"
	case errors.Is(err, ErrReentrantCall):
		return "reentrant_call"
	default:
		return "error"
	}
}
