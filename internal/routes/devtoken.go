package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_vault/internal/savings"
	"github.com/congo-pay/token_vault/internal/token"
)

// RegisterDevTokenRoutes lets a development caller fund itself and approve the
// vault on the in-memory token.
func RegisterDevTokenRoutes(r fiber.Router, mem *token.Memory, vaultAddress string, jwtmw fiber.Handler) {
	group := r.Group("/dev/token", jwtmw)

	group.Post("/mint", func(c *fiber.Ctx) error {
		var req struct {
			Amount uint64 `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		holder, _ := c.Locals(savings.CallerLocal).(string)
		if !mem.Mint(holder, req.Amount) {
			return fiber.NewError(http.StatusUnprocessableEntity, "mint would overflow balance")
		}
		balance, _ := mem.For(holder).BalanceOf(c.UserContext(), holder)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"token":   mem.Address(),
			"account": holder,
			"balance": balance,
		})
	})

	group.Post("/approve", func(c *fiber.Ctx) error {
		var req struct {
			Amount uint64 `json:"amount"`
		}
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		holder, _ := c.Locals(savings.CallerLocal).(string)
		mem.Approve(holder, vaultAddress, req.Amount)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"token":     mem.Address(),
			"owner":     holder,
			"spender":   vaultAddress,
			"allowance": mem.Allowance(holder, vaultAddress),
		})
	})
}
