package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_vault/internal/savings"
)

// RegisterSavingsRoutes wires the vault endpoints. Mutations require a bearer
// token and, when Redis is available, an Idempotency-Key.
func RegisterSavingsRoutes(r fiber.Router, h *savings.Handler, jwtmw, idempotency fiber.Handler) {
	group := r.Group("/savings")
	group.Get("/info", h.Info)
	group.Get("/contract-balance", h.ContractBalance)
	group.Get("/balances/:account", h.UserBalance)
	group.Get("/solvency", jwtmw, h.Solvency)

	mutations := []fiber.Handler{jwtmw}
	if idempotency != nil {
		mutations = append(mutations, idempotency)
	}
	chain := func(h fiber.Handler) []fiber.Handler {
		handlers := make([]fiber.Handler, 0, len(mutations)+1)
		return append(append(handlers, mutations...), h)
	}
	group.Post("/deposit", chain(h.Deposit)...)
	group.Post("/withdraw", chain(h.Withdraw)...)
	group.Post("/sweep", chain(h.Sweep)...)
}
