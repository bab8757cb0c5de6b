package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAppName         = "TokenVault"
	defaultAppEnv          = "development"
	defaultPort            = "8080"
	defaultLogLevel        = "info"
	defaultShutdownDelay   = 10 * time.Second
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultAccessTokenTTL  = 15 * time.Minute
	defaultRefreshTokenTTL = 7 * 24 * time.Hour
	defaultTokenTimeout    = 5 * time.Second
	defaultVaultAddress    = "vault"
	defaultEventStream     = "token_vault:events"
	minOwnerPINLength      = 8
	idemTTLSecondsEnvVar   = "IDEMPOTENCY_TTL_SECONDS"
	idemTTLDurEnvVar       = "IDEMPOTENCY_TTL"
	shutdownSecondsEnvVar  = "SHUTDOWN_TIMEOUT_SECONDS"
	shutdownDurationEnvVar = "SHUTDOWN_TIMEOUT"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string
	Env            string
	Port           string
	LogLevel       string
	DatabaseURL    string
	RedisURL       string
	ShutdownPeriod time.Duration
	IdempotencyTTL time.Duration

	JWTSecret       string
	RefreshSecret   string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// TokenAddress identifies the single token contract held in custody.
	TokenAddress string
	// OwnerAddress is the only account allowed to sweep pooled funds.
	OwnerAddress string
	// VaultAddress is the vault's own account at the token.
	VaultAddress string
	// TokenURL points at a remote token service. Empty selects the in-memory token.
	TokenURL     string
	TokenTimeout time.Duration
	EventStream  string

	// OwnerPIN is the owner's login credential. The owner account is provisioned
	// from it at startup and can never be claimed through registration.
	OwnerPIN string
	// SelfRegistration exposes public depositor registration. When off, only
	// the owner provisions depositor accounts.
	SelfRegistration bool
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	cfg := Config{
		AppName:         getEnv("APP_NAME", defaultAppName),
		Env:             strings.ToLower(getEnv("APP_ENV", defaultAppEnv)),
		Port:            getEnv("PORT", defaultPort),
		LogLevel:        strings.ToLower(getEnv("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		RedisURL:        os.Getenv("REDIS_URL"),
		ShutdownPeriod:  defaultShutdownDelay,
		IdempotencyTTL:  defaultIdempotencyTTL,
		JWTSecret:       os.Getenv("JWT_SECRET"),
		RefreshSecret:   os.Getenv("REFRESH_SECRET"),
		AccessTokenTTL:  defaultAccessTokenTTL,
		RefreshTokenTTL: defaultRefreshTokenTTL,
		TokenAddress:    os.Getenv("TOKEN_ADDRESS"),
		OwnerAddress:    os.Getenv("OWNER_ADDRESS"),
		OwnerPIN:        os.Getenv("OWNER_PIN"),
		VaultAddress:    getEnv("VAULT_ADDRESS", defaultVaultAddress),
		TokenURL:        strings.TrimRight(os.Getenv("TOKEN_URL"), "/"),
		TokenTimeout:    defaultTokenTimeout,
		EventStream:     getEnv("EVENT_STREAM", defaultEventStream),
	}

	if v := os.Getenv(shutdownSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownSecondsEnvVar, err)
		}
		cfg.ShutdownPeriod = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(shutdownDurationEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", shutdownDurationEnvVar, err)
		}
		cfg.ShutdownPeriod = d
	}

	if v := os.Getenv(idemTTLSecondsEnvVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLSecondsEnvVar, err)
		}
		cfg.IdempotencyTTL = time.Duration(seconds) * time.Second
	} else if v := os.Getenv(idemTTLDurEnvVar); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", idemTTLDurEnvVar, err)
		}
		cfg.IdempotencyTTL = d
	}

	for _, d := range []struct {
		key string
		dst *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", &cfg.RefreshTokenTTL},
		{"TOKEN_TIMEOUT", &cfg.TokenTimeout},
	} {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	cfg.SelfRegistration = cfg.IsDevelopment()
	if v := os.Getenv("SELF_REGISTRATION"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SELF_REGISTRATION: %w", err)
		}
		cfg.SelfRegistration = enabled
	}

	if cfg.TokenAddress == "" {
		return Config{}, fmt.Errorf("TOKEN_ADDRESS must be set")
	}
	if cfg.OwnerAddress == "" {
		return Config{}, fmt.Errorf("OWNER_ADDRESS must be set")
	}
	if cfg.VaultAddress == cfg.OwnerAddress {
		return Config{}, fmt.Errorf("VAULT_ADDRESS must differ from OWNER_ADDRESS")
	}

	if !cfg.IsDevelopment() {
		if cfg.DatabaseURL == "" {
			return Config{}, fmt.Errorf("DATABASE_URL must be set")
		}
		if cfg.RedisURL == "" {
			return Config{}, fmt.Errorf("REDIS_URL must be set")
		}
		if cfg.JWTSecret == "" || cfg.RefreshSecret == "" {
			return Config{}, fmt.Errorf("JWT_SECRET and REFRESH_SECRET must be set")
		}
		if len(cfg.OwnerPIN) < minOwnerPINLength {
			return Config{}, fmt.Errorf("OWNER_PIN must be set to at least %d characters", minOwnerPINLength)
		}
	} else {
		if cfg.JWTSecret == "" {
			cfg.JWTSecret = "dev-access-secret"
		}
		if cfg.RefreshSecret == "" {
			cfg.RefreshSecret = "dev-refresh-secret"
		}
	}

	return cfg, nil
}

// IsDevelopment reports whether the service runs in a local/dev environment.
func (c Config) IsDevelopment() bool {
	switch c.Env {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
