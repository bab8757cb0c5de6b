package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	requestIDHeader = "X-Request-ID"
	maxRequestIDLen = 64
)

// RequestIDLocal is the fiber.Ctx locals key holding the request identifier.
const RequestIDLocal = "request_id"

// RequestID assigns every request an identifier that ends up in logs and the
// audit trail. A client-supplied X-Request-ID is kept only when it is short
// printable ASCII; anything else is replaced with a fresh UUID.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		reqID := c.Get(requestIDHeader)
		if !validRequestID(reqID) {
			reqID = uuid.NewString()
		}

		c.Set(requestIDHeader, reqID)
		c.Locals(RequestIDLocal, reqID)

		return c.Next()
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for i := 0; i < len(id); i++ {
		if ch := id[i]; ch <= ' ' || ch > '~' {
			return false
		}
	}
	return true
}
