package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_vault/internal/account"
	"github.com/congo-pay/token_vault/internal/savings"
)

// Handler exposes auth endpoints for login/refresh/logout.
type Handler struct {
	accounts *account.Service
	svc      *Service
}

func NewHandler(accounts *account.Service, svc *Service) *Handler {
	return &Handler{accounts: accounts, svc: svc}
}

type loginRequest struct {
	Address string `json:"address"`
	PIN     string `json:"pin"`
}

type loginResponse struct {
	Address      string `json:"address"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenVersion int    `json:"token_version"`
}

// Login validates credentials and returns a token pair.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.accounts.Authenticate(c.UserContext(), account.Credentials{Address: req.Address, PIN: req.PIN})
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	pair, err := h.svc.Login(acct)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(loginResponse{
		Address:      acct.Address,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
		TokenVersion: acct.TokenVersion,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh issues a new access token using a valid refresh token.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	token, exp, err := h.svc.Refresh(c.UserContext(), req.RefreshToken)
	if err != nil {
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"access_token": token, "expires_in": exp})
}

// Logout invalidates the caller's tokens by bumping the token version.
func (h *Handler) Logout(c *fiber.Ctx) error {
	address, _ := c.Locals(savings.CallerLocal).(string)
	if address == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	if err := h.svc.Logout(c.UserContext(), address); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": "logged_out"})
}
