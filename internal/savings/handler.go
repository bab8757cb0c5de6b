package savings

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// CallerLocal is the fiber.Ctx locals key holding the authenticated account.
const CallerLocal = "account"

// Handler exposes vault HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a vault handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type amountRequest struct {
	Amount uint64 `json:"amount"`
}

type operationResponse struct {
	Account     string    `json:"account"`
	Amount      uint64    `json:"amount"`
	Balance     uint64    `json:"balance"`
	CompletedAt time.Time `json:"completed_at"`
}

// Deposit credits the authenticated caller.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Deposit(c.UserContext(), caller(c), req.Amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusCreated).JSON(operationResponse(res))
}

// Withdraw pays out to the authenticated caller.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	res, err := h.service.Withdraw(c.UserContext(), caller(c), req.Amount)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(operationResponse(res))
}

// Sweep moves pooled funds to the owner.
func (h *Handler) Sweep(c *fiber.Ctx) error {
	var req amountRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.service.OwnerSweep(c.UserContext(), caller(c), req.Amount); err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"owner":  h.service.Owner(),
		"amount": req.Amount,
		"status": "swept",
	})
}

// ContractBalance returns the pooled token balance.
func (h *Handler) ContractBalance(c *fiber.Ctx) error {
	balance, err := h.service.CheckContractBalance(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"token":     h.service.TokenAddress(),
		"balance":   balance,
		"timestamp": time.Now().UTC(),
	})
}

// UserBalance returns the recorded balance of the account in the path.
func (h *Handler) UserBalance(c *fiber.Ctx) error {
	account := c.Params("account")
	balance, err := h.service.CheckUserBalance(c.UserContext(), account)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"account":   account,
		"balance":   balance,
		"timestamp": time.Now().UTC(),
	})
}

// Solvency reports recorded vs pooled balances to the owner.
func (h *Handler) Solvency(c *fiber.Ctx) error {
	report, err := h.service.Solvency(c.UserContext(), caller(c))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"recorded":  report.Recorded,
		"pooled":    report.Pooled,
		"shortfall": report.Shortfall,
		"as_of":     report.AsOf,
	})
}

// Info describes the vault's fixed identities.
func (h *Handler) Info(c *fiber.Ctx) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"owner": h.service.Owner(),
		"token": h.service.TokenAddress(),
		"vault": h.service.VaultAddress(),
	})
}

func caller(c *fiber.Ctx) string {
	account, _ := c.Locals(CallerLocal).(string)
	return account
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidCaller):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrNotOwner):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrInsufficientCallerFunds),
		errors.Is(err, ErrInsufficientPooledFunds),
		errors.Is(err, ErrInsufficientBalance):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, ErrReentrantCall):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrTransferFailed), errors.Is(err, ErrWithdrawFailed):
		return fiber.NewError(http.StatusBadGateway, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
