package savings

import (
	"context"
	"fmt"
)

type guardKey struct{}

// enter marks ctx as running inside this service. A context that already
// carries the mark came back through a token call and is rejected before the
// mutex is touched. A call without the mark that arrives while a mutation is
// waiting on the token is refused too: it may be a callback that dropped the
// context, and waiting on mu would never return.
func (s *Service) enter(ctx context.Context) (context.Context, error) {
	if active, _ := ctx.Value(guardKey{}).(*Service); active == s {
		return ctx, ErrReentrantCall
	}
	if s.inTokenCall.Load() {
		return ctx, fmt.Errorf("%w: token call in progress", ErrReentrantCall)
	}
	return context.WithValue(ctx, guardKey{}, s), nil
}

// outbound runs fn as a token call on behalf of the mutation holding mu.
func (s *Service) outbound(fn func() error) error {
	s.inTokenCall.Store(true)
	defer s.inTokenCall.Store(false)
	return fn()
}
