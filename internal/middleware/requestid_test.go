package middleware

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func newRequestIDApp() *fiber.App {
	app := fiber.New()
	app.Use(RequestID())
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := c.Locals(RequestIDLocal).(string)
		return c.SendString(id)
	})
	return app
}

func TestRequestIDKeepsWellFormedHeader(t *testing.T) {
	app := newRequestIDApp()

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(requestIDHeader, "trace-42")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "trace-42" {
		t.Fatalf("expected client id in locals, got %q", body)
	}
	if got := resp.Header.Get(requestIDHeader); got != "trace-42" {
		t.Fatalf("expected client id echoed, got %q", got)
	}
}

func TestRequestIDReplacesMissingOrMalformedHeader(t *testing.T) {
	app := newRequestIDApp()

	for name, header := range map[string]string{
		"missing":   "",
		"too long":  strings.Repeat("a", maxRequestIDLen+1),
		"non-ascii": "trace-é",
		"space":     "forged id",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(fiber.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set(requestIDHeader, header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("request failed: %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if _, err := uuid.Parse(string(body)); err != nil {
				t.Fatalf("expected generated uuid, got %q", body)
			}
			if got := resp.Header.Get(requestIDHeader); got != string(body) {
				t.Fatalf("expected header %q to match locals %q", got, body)
			}
		})
	}
}
