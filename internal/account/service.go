package account

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials hides whether the address or the PIN was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrReserved is returned when registering an address the vault provisions itself.
	ErrReserved = errors.New("address is reserved")
)

// Service manages depositor accounts. Reserved addresses, such as the vault
// owner and the vault itself, can only be provisioned through Bootstrap.
type Service struct {
	repo     Repository
	reserved map[string]struct{}
}

// NewService creates a new account service.
func NewService(repo Repository, reserved ...string) *Service {
	s := &Service{repo: repo, reserved: make(map[string]struct{}, len(reserved))}
	for _, address := range reserved {
		if address = normalize(address); address != "" {
			s.reserved[address] = struct{}{}
		}
	}
	return s
}

// Register creates a depositor account and stores a hashed PIN.
func (s *Service) Register(ctx context.Context, creds Credentials) (Account, error) {
	address := strings.TrimSpace(creds.Address)
	if address == "" {
		return Account{}, errors.New("address is required")
	}
	if s.IsReserved(address) {
		return Account{}, fmt.Errorf("%w: %s", ErrReserved, address)
	}
	if len(creds.PIN) < 4 {
		return Account{}, errors.New("PIN must be at least 4 digits")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(creds.PIN), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, err
	}

	acct := Account{
		Address:   address,
		PINHash:   hash,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, acct); err != nil {
		return Account{}, err
	}
	return acct, nil
}

// Bootstrap makes sure address exists and logs in with pin. An existing
// account whose PIN differs is reset, which revokes its outstanding tokens.
func (s *Service) Bootstrap(ctx context.Context, address, pin string) error {
	address = strings.TrimSpace(address)
	if address == "" || pin == "" {
		return errors.New("bootstrap address and PIN are required")
	}
	existing, err := s.repo.FindByAddress(ctx, address)
	found := err == nil
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if found && bcrypt.CompareHashAndPassword(existing.PINHash, []byte(pin)) == nil {
		return nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if found {
		return s.repo.ResetPIN(ctx, address, hash)
	}
	return s.repo.Create(ctx, Account{Address: address, PINHash: hash, CreatedAt: time.Now().UTC()})
}

// IsReserved reports whether address can only be provisioned by the vault.
func (s *Service) IsReserved(address string) bool {
	_, ok := s.reserved[normalize(address)]
	return ok
}

// Authenticate verifies credentials.
func (s *Service) Authenticate(ctx context.Context, creds Credentials) (Account, error) {
	acct, err := s.repo.FindByAddress(ctx, strings.TrimSpace(creds.Address))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	if err := bcrypt.CompareHashAndPassword(acct.PINHash, []byte(creds.PIN)); err != nil {
		return Account{}, ErrInvalidCredentials
	}
	return acct, nil
}

// Get returns the account registered under address.
func (s *Service) Get(ctx context.Context, address string) (Account, error) {
	return s.repo.FindByAddress(ctx, address)
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
