package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
}

// BackendConfig points at the REST API that owns users, loans and payments.
type BackendConfig struct {
	BaseURL    string
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
}

type SessionConfig struct {
	Secret        string
	CookieName    string
	IdleTTL       time.Duration
	SettleTimeout time.Duration
	Secure        bool
}

type RolesConfig struct {
	CacheTTL   time.Duration
	Attempts   int
	Timeout    time.Duration
	RetryDelay time.Duration
}

type IdentityConfig struct {
	// Store is "postgres" or "memory".
	Store           string
	JWKSURL         string
	Issuer          string
	Audience        string
	RefreshInterval time.Duration
}

type PaymentsConfig struct {
	StripeSecretKey      string
	StripePublishableKey string
	ApplicationFee       int64
	Currency             string
}

type ObservabilityConfig struct {
	ServiceName   string
	MetricsAddr   string
	PprofAddr     string
	OTLPEndpoint  string
	LogLevel      string
	AllowedOrigin string
}

type Config struct {
	Repositories  RepositoriesConfig
	ServerPort    string
	Backend       BackendConfig
	Session       SessionConfig
	Roles         RolesConfig
	Identity      IdentityConfig
	Payments      PaymentsConfig
	Observability ObservabilityConfig
}

func Load() (*Config, error) {
	cfg := &Config{
		Repositories: RepositoriesConfig{
			Postgres: PostgresConfig{
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5454"),
				DB:       getEnvOrDefault("POSTGRES_DB", "loanhub"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
				MaxConns: int32(getIntOrDefault("POSTGRES_MAX_CONNS", 30)),
				MinConns: int32(getIntOrDefault("POSTGRES_MIN_CONNS", 5)),
			},
		},
		ServerPort: getEnvOrDefault("SERVER_PORT", "8091"),
		Backend: BackendConfig{
			BaseURL:    strings.TrimRight(getEnvOrDefault("BACKEND_URL", "http://localhost:5000"), "/"),
			Timeout:    getDurationOrDefault("BACKEND_TIMEOUT", 10*time.Second),
			Attempts:   getIntOrDefault("BACKEND_ATTEMPTS", 3),
			RetryDelay: getDurationOrDefault("BACKEND_RETRY_DELAY", 200*time.Millisecond),
		},
		Session: SessionConfig{
			Secret:        getEnvOrDefault("SESSION_SECRET", ""),
			CookieName:    getEnvOrDefault("SESSION_COOKIE", "loanhub_session"),
			IdleTTL:       getDurationOrDefault("SESSION_IDLE_TTL", 30*time.Minute),
			SettleTimeout: getDurationOrDefault("SESSION_SETTLE_TIMEOUT", 3*time.Second),
			Secure:        getBoolOrDefault("SESSION_SECURE", false),
		},
		Roles: RolesConfig{
			CacheTTL:   getDurationOrDefault("ROLES_CACHE_TTL", time.Minute),
			Attempts:   getIntOrDefault("ROLES_ATTEMPTS", 3),
			Timeout:    getDurationOrDefault("ROLES_TIMEOUT", 2*time.Second),
			RetryDelay: getDurationOrDefault("ROLES_RETRY_DELAY", 250*time.Millisecond),
		},
		Identity: IdentityConfig{
			Store:           getEnvOrDefault("IDENTITY_STORE", "postgres"),
			JWKSURL:         getEnvOrDefault("IDENTITY_JWKS_URL", ""),
			Issuer:          getEnvOrDefault("IDENTITY_ISSUER", ""),
			Audience:        getEnvOrDefault("IDENTITY_AUDIENCE", ""),
			RefreshInterval: getDurationOrDefault("IDENTITY_JWKS_REFRESH", time.Hour),
		},
		Payments: PaymentsConfig{
			StripeSecretKey:      getEnvOrDefault("STRIPE_SECRET_KEY", ""),
			StripePublishableKey: getEnvOrDefault("STRIPE_PUBLISHABLE_KEY", ""),
			ApplicationFee:       int64(getIntOrDefault("APPLICATION_FEE_CENTS", 1000)),
			Currency:             getEnvOrDefault("APPLICATION_FEE_CURRENCY", "usd"),
		},
		Observability: ObservabilityConfig{
			ServiceName:   getEnvOrDefault("OTEL_SERVICE_NAME", "loanhub"),
			MetricsAddr:   getEnvOrDefault("METRICS_ADDR", ":9092"),
			PprofAddr:     getEnvOrDefault("PPROF_ADDR", ":6060"),
			OTLPEndpoint:  getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "otel-collector:4318"),
			LogLevel:      getEnvOrDefault("LOG_LEVEL", "info"),
			AllowedOrigin: getEnvOrDefault("CORS_ALLOWED_ORIGIN", "http://localhost:8091"),
		},
	}

	if cfg.Session.Secret == "" {
		return nil, fmt.Errorf("SESSION_SECRET environment variable is required")
	}
	switch cfg.Identity.Store {
	case "postgres":
		if cfg.Repositories.Postgres.Password == "" {
			return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
		}
	case "memory":
	default:
		return nil, fmt.Errorf("IDENTITY_STORE must be postgres or memory, got %q", cfg.Identity.Store)
	}
	if cfg.Backend.Attempts < 1 || cfg.Roles.Attempts < 1 {
		return nil, fmt.Errorf("BACKEND_ATTEMPTS and ROLES_ATTEMPTS must be at least 1")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
