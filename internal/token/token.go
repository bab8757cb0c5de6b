package token

import (
	"context"
	"errors"
)

// ErrUnavailable wraps transport failures talking to a token backend.
var ErrUnavailable = errors.New("token backend unavailable")

// Capability is the fungible-token surface the vault depends on. Transfer moves
// funds out of the account the capability is bound to.
type Capability interface {
	BalanceOf(ctx context.Context, account string) (uint64, error)
	TransferFrom(ctx context.Context, from, to string, amount uint64) (bool, error)
	Transfer(ctx context.Context, to string, amount uint64) (bool, error)
}
