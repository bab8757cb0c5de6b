package account

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_vault/internal/savings"
)

// Handler exposes account endpoints.
type Handler struct {
	service  *Service
	operator string
}

// NewHandler constructs an account HTTP handler. operator is the only caller
// allowed to provision depositor accounts.
func NewHandler(service *Service, operator string) *Handler {
	return &Handler{service: service, operator: operator}
}

type registerRequest struct {
	Address string `json:"address"`
	PIN     string `json:"pin"`
}

// Register handles depositor self-registration.
func (h *Handler) Register(c *fiber.Ctx) error {
	return h.register(c)
}

// Provision lets the operator create an account for a depositor whose control
// of the address was checked out of band.
func (h *Handler) Provision(c *fiber.Ctx) error {
	caller, _ := c.Locals(savings.CallerLocal).(string)
	if caller == "" || caller != h.operator {
		return fiber.NewError(http.StatusForbidden, "not owner")
	}
	return h.register(c)
}

func (h *Handler) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	acct, err := h.service.Register(c.UserContext(), Credentials{Address: req.Address, PIN: req.PIN})
	if err != nil {
		switch {
		case errors.Is(err, ErrExists), errors.Is(err, ErrReserved):
			return fiber.NewError(http.StatusConflict, err.Error())
		default:
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"address":    acct.Address,
		"created_at": acct.CreatedAt,
	})
}

// Me returns the authenticated account.
func (h *Handler) Me(c *fiber.Ctx) error {
	address, _ := c.Locals(savings.CallerLocal).(string)
	if address == "" {
		return fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	acct, err := h.service.Get(c.UserContext(), address)
	if err != nil {
		return fiber.NewError(http.StatusNotFound, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"address":       acct.Address,
		"token_version": acct.TokenVersion,
		"created_at":    acct.CreatedAt,
	})
}
