package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config is the auth server's environment.
type Config struct {
	Addr                   string
	DatabaseURL            string
	Store                  string
	JWTSecret              string
	DataEncryptionKey      string
	Environment            string
	SeedCompanyName        string
	SeedAdminEmail         string
	SeedAdminPassword      string
	SeedSuperAdminEmail    string
	SeedSuperAdminPassword string
	RunMigrations          bool
	RunSeed                bool
	MaxBodyBytes           int64
	RateLimitPerMinute     int
	LoginRatePerMinute     int
	SessionTTL             time.Duration
	RememberTTL            time.Duration
	ShutdownTimeout        time.Duration
	MetricsEnabled         bool
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP. Only set it behind a proxy that overwrites those headers.
	TrustProxyHeaders    bool
	SessionSweepInterval time.Duration
	SessionRetention     time.Duration
}

func Load() Config {
	return Config{
		Addr:                   getEnv("APP_ADDR", ":8080"),
		DatabaseURL:            getEnv("DATABASE_URL", ""),
		Store:                  strings.ToLower(getEnv("STORE", StorePostgres)),
		JWTSecret:              getEnv("JWT_SECRET", ""),
		DataEncryptionKey:      getEnv("DATA_ENCRYPTION_KEY", ""),
		Environment:            getEnv("APP_ENV", "development"),
		SeedCompanyName:        getEnv("SEED_COMPANY_NAME", "Default Company"),
		SeedAdminEmail:         getEnv("SEED_ADMIN_EMAIL", ""),
		SeedAdminPassword:      getEnv("SEED_ADMIN_PASSWORD", ""),
		SeedSuperAdminEmail:    getEnv("SEED_SUPER_ADMIN_EMAIL", ""),
		SeedSuperAdminPassword: getEnv("SEED_SUPER_ADMIN_PASSWORD", ""),
		RunMigrations:          getEnvBool("RUN_MIGRATIONS", true),
		RunSeed:                getEnvBool("RUN_SEED", true),
		MaxBodyBytes:           int64(getEnvInt("MAX_BODY_BYTES", 1048576)),
		RateLimitPerMinute:     getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		LoginRatePerMinute:     getEnvInt("LOGIN_RATE_PER_MINUTE", 10),
		SessionTTL:             getEnvDuration("SESSION_TTL", 8*time.Hour),
		RememberTTL:            getEnvDuration("REMEMBER_TTL", 30*24*time.Hour),
		ShutdownTimeout:        getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MetricsEnabled:         getEnvBool("METRICS_ENABLED", true),
		TrustProxyHeaders:      getEnvBool("TRUST_PROXY_HEADERS", false),
		SessionSweepInterval:   getEnvDuration("SESSION_SWEEP_INTERVAL", time.Hour),
		SessionRetention:       getEnvDuration("SESSION_RETENTION", 7*24*time.Hour),
	}
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func (c Config) Validate() error {
	switch c.Store {
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE=postgres")
		}
	case StoreMemory:
		if c.IsProduction() {
			return fmt.Errorf("STORE=memory is not allowed in production")
		}
	default:
		return fmt.Errorf("STORE must be %q or %q", StorePostgres, StoreMemory)
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
		}
		if strings.TrimSpace(c.DataEncryptionKey) == "" {
			return fmt.Errorf("DATA_ENCRYPTION_KEY must be set in production for encryption at rest")
		}
		if c.RunSeed && c.SeedAdminEmail != "" && strings.TrimSpace(c.SeedAdminPassword) == "" {
			return fmt.Errorf("SEED_ADMIN_PASSWORD must be set or RUN_SEED disabled in production")
		}
	}
	if c.MaxBodyBytes < 1024 {
		return fmt.Errorf("MAX_BODY_BYTES must be at least 1024")
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive")
	}
	if c.LoginRatePerMinute <= 0 {
		return fmt.Errorf("LOGIN_RATE_PER_MINUTE must be positive")
	}
	if c.SessionTTL <= 0 || c.RememberTTL < c.SessionTTL {
		return fmt.Errorf("SESSION_TTL must be positive and REMEMBER_TTL at least as long")
	}
	if c.SessionSweepInterval > 0 && c.SessionRetention < 0 {
		return fmt.Errorf("SESSION_RETENTION must not be negative")
	}
	return nil
}
