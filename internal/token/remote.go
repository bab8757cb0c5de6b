package token

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
)

// Remote talks to a token service over HTTP on behalf of holder. Every call
// goes through a circuit breaker so a failing backend rejects operations fast.
type Remote struct {
	baseURL string
	token   string
	holder  string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
}

// RemoteConfig configures a Remote token client.
type RemoteConfig struct {
	BaseURL string
	Token   string
	Holder  string
	Timeout time.Duration
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

type transferFromRequest struct {
	Spender string `json:"spender"`
	From    string `json:"from"`
	To      string `json:"to"`
	Amount  uint64 `json:"amount"`
}

type transferRequest struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type transferResponse struct {
	Success bool `json:"success"`
}

// NewRemote builds a Remote token client.
func NewRemote(cfg RemoteConfig) (*Remote, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("token base url is required")
	}
	if cfg.Token == "" || cfg.Holder == "" {
		return nil, fmt.Errorf("token address and holder are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	st := gobreaker.Settings{Name: "token:" + cfg.Token}
	st.Interval = 60 * time.Second
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}

	return &Remote{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		holder:  cfg.Holder,
		timeout: cfg.Timeout,
		breaker: gobreaker.NewCircuitBreaker(st),
	}, nil
}

// BalanceOf queries the token backend for account's balance.
func (r *Remote) BalanceOf(ctx context.Context, account string) (uint64, error) {
	endpoint := fmt.Sprintf("%s/tokens/%s/balances/%s", r.baseURL, url.PathEscape(r.token), url.PathEscape(account))
	out, err := r.breaker.Execute(func() (interface{}, error) {
		var resp balanceResponse
		if err := r.do(ctx, func() *fiber.Agent { return fiber.Get(endpoint) }, &resp); err != nil {
			return nil, err
		}
		return resp.Balance, nil
	})
	if err != nil {
		return 0, wrapUnavailable(err)
	}
	return out.(uint64), nil
}

// TransferFrom asks the backend to move amount from `from` to `to` using the
// holder's allowance.
func (r *Remote) TransferFrom(ctx context.Context, from, to string, amount uint64) (bool, error) {
	endpoint := fmt.Sprintf("%s/tokens/%s/transfer-from", r.baseURL, url.PathEscape(r.token))
	body := transferFromRequest{Spender: r.holder, From: from, To: to, Amount: amount}
	return r.transfer(ctx, endpoint, body)
}

// Transfer asks the backend to move amount out of the holder's balance.
func (r *Remote) Transfer(ctx context.Context, to string, amount uint64) (bool, error) {
	endpoint := fmt.Sprintf("%s/tokens/%s/transfer", r.baseURL, url.PathEscape(r.token))
	body := transferRequest{From: r.holder, To: to, Amount: amount}
	return r.transfer(ctx, endpoint, body)
}

func (r *Remote) transfer(ctx context.Context, endpoint string, body any) (bool, error) {
	out, err := r.breaker.Execute(func() (interface{}, error) {
		var resp transferResponse
		if err := r.do(ctx, func() *fiber.Agent { return fiber.Post(endpoint).JSON(body) }, &resp); err != nil {
			return nil, err
		}
		return resp.Success, nil
	})
	if err != nil {
		return false, wrapUnavailable(err)
	}
	return out.(bool), nil
}

func (r *Remote) do(ctx context.Context, newAgent func() *fiber.Agent, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := r.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}

	code, body, errs := newAgent().Timeout(timeout).Bytes()
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if code < fiber.StatusOK || code >= fiber.StatusMultipleChoices {
		return fmt.Errorf("token backend returned %d: %s", code, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	return nil
}

func wrapUnavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
