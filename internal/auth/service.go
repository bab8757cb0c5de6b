package auth

import (
	"context"
	"errors"
	"time"

	"github.com/congo-pay/token_vault/internal/account"
	"github.com/congo-pay/token_vault/internal/config"
)

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, mis-signed, and wrong-kind tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenRevoked is returned when the token version no longer matches the account.
	ErrTokenRevoked = errors.New("token version invalidated")
)

type Service struct {
	cfg   config.Config
	repo  account.Repository
	clock func() time.Time
}

func NewService(cfg config.Config, repo account.Repository) *Service {
	return &Service{cfg: cfg, repo: repo, clock: time.Now}
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Login issues an access/refresh pair for an already authenticated account.
func (s *Service) Login(acct account.Account) (TokenPair, error) {
	access, err := s.sign(acct.Address, acct.TokenVersion, kindAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.sign(acct.Address, acct.TokenVersion, kindRefresh, s.cfg.RefreshSecret, s.cfg.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresIn: int64(s.cfg.AccessTokenTTL.Seconds())}, nil
}

func (s *Service) sign(address string, version int, kind, secret string, ttl time.Duration) (string, error) {
	now := s.clock()
	return SignHS256(Claims{
		Subject:   address,
		Version:   version,
		Kind:      kind,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	}, []byte(secret))
}

// Verify checks an access token and returns the account address it was issued to.
func (s *Service) Verify(ctx context.Context, accessToken string) (string, error) {
	claims, err := s.verify(ctx, accessToken, kindAccess, s.cfg.JWTSecret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// Refresh verifies the refresh token and returns a new access token if valid.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, int64, error) {
	claims, err := s.verify(ctx, refreshToken, kindRefresh, s.cfg.RefreshSecret)
	if err != nil {
		return "", 0, err
	}
	signed, err := s.sign(claims.Subject, claims.Version, kindAccess, s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(s.cfg.AccessTokenTTL.Seconds()), nil
}

// Logout increments the token version so older tokens become invalid.
func (s *Service) Logout(ctx context.Context, address string) error {
	acct, err := s.repo.FindByAddress(ctx, address)
	if err != nil {
		return err
	}
	return s.repo.UpdateTokenVersion(ctx, acct.Address, acct.TokenVersion+1)
}

func (s *Service) verify(ctx context.Context, token, kind, secret string) (Claims, error) {
	claims, err := ParseAndVerifyHS256(token, []byte(secret), s.clock())
	if err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return Claims{}, err
		}
		return Claims{}, ErrInvalidToken
	}
	if claims.Kind != kind || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	acct, err := s.repo.FindByAddress(ctx, claims.Subject)
	if err != nil {
		return Claims{}, ErrTokenRevoked
	}
	if acct.TokenVersion != claims.Version {
		return Claims{}, ErrTokenRevoked
	}
	return claims, nil
}
