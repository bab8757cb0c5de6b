package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_vault/internal/account"
)

// RegisterAccountRoutes wires depositor onboarding and profile endpoints.
// Public self-registration is only mounted when selfRegistration is set;
// otherwise the owner provisions depositors through POST /accounts.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler, jwtmw fiber.Handler, selfRegistration bool) {
	if selfRegistration {
		r.Post("/accounts/register", h.Register)
	}
	r.Post("/accounts", jwtmw, h.Provision)
	r.Get("/me", jwtmw, h.Me)
}
