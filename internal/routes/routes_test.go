package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token_vault/internal/config"
	"github.com/congo-pay/token_vault/internal/logging"
)

const (
	testOwner = "0xowner"
	testVault = "0xvault"
	testToken = "0xtoken"
	ownerPIN  = "owner-secret-pin"
)

type testClient struct {
	t   *testing.T
	app *fiber.App
}

func newTestApp(t *testing.T, overrides ...func(*config.Config)) (*testClient, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})

	cfg := config.Config{
		AppName:          "TokenVaultTest",
		Env:              "development",
		IdempotencyTTL:   time.Minute,
		JWTSecret:        "access",
		RefreshSecret:    "refresh",
		AccessTokenTTL:   time.Minute,
		RefreshTokenTTL:  time.Hour,
		TokenAddress:     testToken,
		OwnerAddress:     testOwner,
		OwnerPIN:         ownerPIN,
		VaultAddress:     testVault,
		EventStream:      "test:events",
		SelfRegistration: true,
	}
	for _, override := range overrides {
		override(&cfg)
	}
	app := fiber.New()
	if err := Setup(app, Deps{Cfg: cfg, Cache: cache, Logger: logging.Discard()}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return &testClient{t: t, app: app}, cache
}

func (tc *testClient) do(method, path, bearer, idemKey string, body any) (int, map[string]any) {
	tc.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			tc.t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}
	resp, err := tc.app.Test(req, -1)
	if err != nil {
		tc.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		tc.t.Fatalf("read body: %v", err)
	}
	decoded := map[string]any{}
	_ = json.Unmarshal(raw, &decoded)
	return resp.StatusCode, decoded
}

func (tc *testClient) login(address string) string {
	tc.t.Helper()
	if status, body := tc.do(fiber.MethodPost, "/api/v1/accounts/register", "", "", fiber.Map{"address": address, "pin": "1234"}); status != http.StatusCreated {
		tc.t.Fatalf("register %s: status %d body %v", address, status, body)
	}
	return tc.loginWithPIN(address, "1234")
}

func (tc *testClient) loginWithPIN(address, pin string) string {
	tc.t.Helper()
	status, body := tc.do(fiber.MethodPost, "/api/v1/auth/login", "", "", fiber.Map{"address": address, "pin": pin})
	if status != http.StatusOK {
		tc.t.Fatalf("login %s: status %d body %v", address, status, body)
	}
	token, _ := body["access_token"].(string)
	if token == "" {
		tc.t.Fatalf("login %s returned no access token", address)
	}
	return token
}

func TestSavingsFlowOverHTTP(t *testing.T) {
	tc, cache := newTestApp(t)
	alice := tc.login("0xalice")

	if status, _ := tc.do(fiber.MethodPost, "/api/v1/dev/token/mint", alice, "", fiber.Map{"amount": 1000}); status != http.StatusOK {
		t.Fatalf("mint: status %d", status)
	}
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/dev/token/approve", alice, "", fiber.Map{"amount": 600}); status != http.StatusOK {
		t.Fatalf("approve: status %d", status)
	}

	status, body := tc.do(fiber.MethodPost, "/api/v1/savings/deposit", alice, "dep-1", fiber.Map{"amount": 500})
	if status != http.StatusCreated {
		t.Fatalf("deposit: status %d body %v", status, body)
	}
	if body["balance"] != float64(500) {
		t.Fatalf("expected balance 500 after deposit, got %v", body["balance"])
	}

	// replaying the same key must not deposit twice
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/deposit", alice, "dep-1", fiber.Map{"amount": 500}); status != http.StatusCreated {
		t.Fatalf("replayed deposit: status %d", status)
	}
	_, body = tc.do(fiber.MethodGet, "/api/v1/savings/balances/0xalice", "", "", nil)
	if body["balance"] != float64(500) {
		t.Fatalf("expected recorded balance 500, got %v", body["balance"])
	}
	_, body = tc.do(fiber.MethodGet, "/api/v1/savings/contract-balance", "", "", nil)
	if body["balance"] != float64(500) {
		t.Fatalf("expected pooled balance 500, got %v", body["balance"])
	}

	status, body = tc.do(fiber.MethodPost, "/api/v1/savings/withdraw", alice, "wd-1", fiber.Map{"amount": 200})
	if status != http.StatusOK {
		t.Fatalf("withdraw: status %d body %v", status, body)
	}
	if body["balance"] != float64(300) {
		t.Fatalf("expected balance 300 after withdraw, got %v", body["balance"])
	}

	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/sweep", alice, "sweep-1", fiber.Map{"amount": 100}); status != http.StatusForbidden {
		t.Fatalf("expected non-owner sweep to be forbidden, got %d", status)
	}

	events, err := cache.XRange(context.Background(), "test:events", "-", "+").Result()
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Values["kind"] != "SavingSuccessful" || events[1].Values["kind"] != "WithdrawSuccessful" {
		t.Fatalf("unexpected event kinds %v, %v", events[0].Values["kind"], events[1].Values["kind"])
	}
}

func TestSavingsMutationsRequireAuthAndIdempotencyKey(t *testing.T) {
	tc, _ := newTestApp(t)

	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/deposit", "", "dep-1", fiber.Map{"amount": 1}); status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", status)
	}

	alice := tc.login("0xalice")
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/deposit", alice, "", fiber.Map{"amount": 1}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", status)
	}
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/deposit", alice, "dep-0", fiber.Map{"amount": 0}); status != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero deposit, got %d", status)
	}
}

func TestOwnerSolvencyAndLogout(t *testing.T) {
	tc, _ := newTestApp(t)
	owner := tc.loginWithPIN(testOwner, ownerPIN)

	status, body := tc.do(fiber.MethodGet, "/api/v1/savings/solvency", owner, "", nil)
	if status != http.StatusOK {
		t.Fatalf("solvency: status %d body %v", status, body)
	}
	if body["shortfall"] != float64(0) {
		t.Fatalf("expected no shortfall, got %v", body["shortfall"])
	}

	if status, _ := tc.do(fiber.MethodPost, "/api/v1/auth/logout", owner, "", nil); status != http.StatusOK {
		t.Fatalf("logout: status %d", status)
	}
	if status, _ := tc.do(fiber.MethodGet, "/api/v1/me", owner, "", nil); status != http.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", status)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	tc, _ := newTestApp(t)

	status, body := tc.do(fiber.MethodGet, "/healthz", "", "", nil)
	if status != http.StatusOK {
		t.Fatalf("healthz: status %d body %v", status, body)
	}

	req := httptest.NewRequest(fiber.MethodGet, "/metrics", nil)
	resp, err := tc.app.Test(req, -1)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(raw), "go_goroutines") {
		t.Fatalf("unexpected metrics response %d", resp.StatusCode)
	}
}

func TestSetupRequiresBackendsOutsideDevelopment(t *testing.T) {
	cfg := config.Config{Env: "production", TokenAddress: testToken, OwnerAddress: testOwner, VaultAddress: testVault}
	if err := Setup(fiber.New(), Deps{Cfg: cfg, Logger: logging.Discard()}); err == nil {
		t.Fatal("expected error without database and redis")
	}
}

func TestOwnerAddressCannotBeClaimedByRegistration(t *testing.T) {
	tc, _ := newTestApp(t)
	alice := tc.login("0xalice")
	tc.do(fiber.MethodPost, "/api/v1/dev/token/mint", alice, "", fiber.Map{"amount": 1000})
	tc.do(fiber.MethodPost, "/api/v1/dev/token/approve", alice, "", fiber.Map{"amount": 1000})
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/deposit", alice, "dep-1", fiber.Map{"amount": 1000}); status != http.StatusCreated {
		t.Fatalf("deposit: status %d", status)
	}

	for _, address := range []string{testOwner, "0xOWNER", testVault} {
		if status, _ := tc.do(fiber.MethodPost, "/api/v1/accounts/register", "", "", fiber.Map{"address": address, "pin": "1234"}); status != http.StatusConflict {
			t.Fatalf("register %s: expected %d, got %d", address, http.StatusConflict, status)
		}
	}
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/auth/login", "", "", fiber.Map{"address": testOwner, "pin": "1234"}); status != http.StatusUnauthorized {
		t.Fatalf("expected owner login with a guessed PIN to fail, got %d", status)
	}

	// a depositor is never treated as the owner
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/savings/sweep", alice, "sweep-1", fiber.Map{"amount": 1000}); status != http.StatusForbidden {
		t.Fatalf("expected sweep by depositor to be forbidden, got %d", status)
	}
	if status, _ := tc.do(fiber.MethodGet, "/api/v1/savings/solvency", alice, "", nil); status != http.StatusForbidden {
		t.Fatalf("expected solvency for depositor to be forbidden, got %d", status)
	}
	_, body := tc.do(fiber.MethodGet, "/api/v1/savings/contract-balance", "", "", nil)
	if body["balance"] != float64(1000) {
		t.Fatalf("expected pooled balance untouched at 1000, got %v", body["balance"])
	}
}

func TestOwnerProvisionsDepositorsWithoutSelfRegistration(t *testing.T) {
	tc, _ := newTestApp(t, func(cfg *config.Config) { cfg.SelfRegistration = false })

	if status, _ := tc.do(fiber.MethodPost, "/api/v1/accounts/register", "", "", fiber.Map{"address": "0xalice", "pin": "1234"}); status != http.StatusNotFound {
		t.Fatalf("expected public registration to be unavailable, got %d", status)
	}

	owner := tc.loginWithPIN(testOwner, ownerPIN)
	if status, body := tc.do(fiber.MethodPost, "/api/v1/accounts", owner, "", fiber.Map{"address": "0xalice", "pin": "1234"}); status != http.StatusCreated {
		t.Fatalf("provision: status %d body %v", status, body)
	}
	alice := tc.loginWithPIN("0xalice", "1234")
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/accounts", alice, "", fiber.Map{"address": "0xbob", "pin": "1234"}); status != http.StatusForbidden {
		t.Fatalf("expected depositor provisioning to be forbidden, got %d", status)
	}
	if status, _ := tc.do(fiber.MethodPost, "/api/v1/accounts", owner, "", fiber.Map{"address": testOwner, "pin": "1234"}); status != http.StatusConflict {
		t.Fatalf("expected reserved address to be refused, got %d", status)
	}
}
