package routes

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/token_vault/internal/account"
	"github.com/congo-pay/token_vault/internal/auth"
	"github.com/congo-pay/token_vault/internal/config"
	"github.com/congo-pay/token_vault/internal/ledger"
	"github.com/congo-pay/token_vault/internal/metrics"
	"github.com/congo-pay/token_vault/internal/middleware"
	"github.com/congo-pay/token_vault/internal/notification"
	"github.com/congo-pay/token_vault/internal/savings"
	"github.com/congo-pay/token_vault/internal/token"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger
	// Token overrides the token backend selected from Cfg. Tests inject one here.
	Token token.Capability
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDevelopment() {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.Env)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.Env)
		}
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.Cfg.IsDevelopment() {
		// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	} else {
		app.Use(middleware.Audit(d.Logger))
	}

	reg := metrics.NewRegistry()
	RegisterHealthRoutes(app, d)
	RegisterMetricsRoute(app, reg)

	// Services and handlers
	var ledgerBackend ledger.Ledger
	var accountRepo account.Repository
	if d.DB != nil {
		ledgerBackend = ledger.NewPostgresLedger(d.DB)
		accountRepo = account.NewPostgresRepository(d.DB)
	} else {
		ledgerBackend = ledger.NewInMemory()
		accountRepo = account.NewMemoryRepository()
	}

	tokenBackend, devToken, err := buildToken(d)
	if err != nil {
		return err
	}

	publishers := notification.Fanout{notification.NewLoggerPublisher(d.Logger)}
	if d.Cache != nil {
		publishers = append(publishers, notification.NewRedisPublisher(d.Cache, d.Cfg.EventStream))
	}

	vault, err := savings.NewService(savings.Config{
		Owner:        d.Cfg.OwnerAddress,
		TokenAddress: d.Cfg.TokenAddress,
		VaultAddress: d.Cfg.VaultAddress,
	}, savings.Deps{
		Token:     tokenBackend,
		Ledger:    ledgerBackend,
		Publisher: publishers,
		Metrics:   reg,
		Logger:    d.Logger,
	})
	if err != nil {
		return fmt.Errorf("build vault: %w", err)
	}

	accountSvc := account.NewService(accountRepo, d.Cfg.OwnerAddress, d.Cfg.VaultAddress)
	if d.Cfg.OwnerPIN != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := accountSvc.Bootstrap(ctx, d.Cfg.OwnerAddress, d.Cfg.OwnerPIN)
		cancel()
		if err != nil {
			return fmt.Errorf("bootstrap owner account: %w", err)
		}
	} else {
		d.Logger.Warn("OWNER_PIN not set, owner login disabled")
	}
	authSvc := auth.NewService(d.Cfg, accountRepo)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals(middleware.RequestIDLocal).(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	jwtmw := middleware.JWTAuth(authSvc)
	RegisterAccountRoutes(api, account.NewHandler(accountSvc, d.Cfg.OwnerAddress), jwtmw, d.Cfg.SelfRegistration)
	RegisterAuthRoutes(api, auth.NewHandler(accountSvc, authSvc), middleware.LoginRateLimit(d.Cache, 5), jwtmw)

	var idempotency fiber.Handler
	if d.Cache != nil {
		idempotency = middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)
	}
	RegisterSavingsRoutes(api, savings.NewHandler(vault), jwtmw, idempotency)

	if devToken != nil {
		RegisterDevTokenRoutes(api, devToken, d.Cfg.VaultAddress, jwtmw)
	}

	return nil
}

// buildToken selects the token backend. Without TOKEN_URL the vault runs on an
// in-memory token, which is returned as well so dev routes can mint and approve.
func buildToken(d Deps) (token.Capability, *token.Memory, error) {
	if d.Token != nil {
		return d.Token, nil, nil
	}
	if d.Cfg.TokenURL != "" {
		remote, err := token.NewRemote(token.RemoteConfig{
			BaseURL: d.Cfg.TokenURL,
			Token:   d.Cfg.TokenAddress,
			Holder:  d.Cfg.VaultAddress,
			Timeout: d.Cfg.TokenTimeout,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("build token client: %w", err)
		}
		return remote, nil, nil
	}
	if !d.Cfg.IsDevelopment() {
		return nil, nil, fmt.Errorf("TOKEN_URL is required when APP_ENV=%s", d.Cfg.Env)
	}
	mem := token.NewMemory(d.Cfg.TokenAddress)
	return mem.For(d.Cfg.VaultAddress), mem, nil
}
