package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/token_vault/internal/auth"
	"github.com/congo-pay/token_vault/internal/savings"
)

// JWTAuth validates bearer access tokens and stores the account address as the caller.
func JWTAuth(svc *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		tokenStr := strings.TrimSpace(authz[len("Bearer "):])
		address, err := svc.Verify(c.UserContext(), tokenStr)
		if err != nil {
			if errors.Is(err, auth.ErrTokenRevoked) {
				return fiber.NewError(http.StatusUnauthorized, "token invalidated")
			}
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		c.Locals(savings.CallerLocal, address)
		return c.Next()
	}
}
