// Package config loads process settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv      string
	HTTPAddr    string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret    string
	JWTTTL       time.Duration
	CookieSecure bool

	CartSessionTTL     time.Duration
	IdempotencyTTL     time.Duration
	ReportCacheTTL     time.Duration
	CommissionCacheTTL time.Duration
	CatalogCacheTTL    time.Duration

	CreditLockTTL       time.Duration
	CreditRetryMax      int
	CreditRetryBase     time.Duration
	CreditSweepInterval time.Duration
	CreditBreakerMin    int
	CreditBreakerRatio  float64
	CreditBreakerOpen   time.Duration

	KafkaBrokers       []string
	KafkaSalesTopic    string
	OutboxPollInterval time.Duration

	CORSAllowedOrigins string
	LoginRateLimit     string
	BodyLimitBytes     int64
	TimeZone           string

	LogFormat string
	LogLevel  string

	OTelEnabled       bool
	OTelEndpoint      string
	OTelServiceName   string
	OTelSamplingRatio float64

	MigrateOnStart bool
}

// Load reads configuration from environment variables and an optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(k.String(key)); v != "" {
			return v
		}
		return fallback
	}

	cfg := &Config{
		AppEnv:      get("APP_ENV", "development"),
		HTTPAddr:    listenAddr(get("HTTP_ADDR", ":8080")),
		DatabaseURL: get("DATABASE_URL", ""),

		RedisAddr:     get("REDIS_ADDR", "localhost:6379"),
		RedisPassword: k.String("REDIS_PASSWORD"),
		RedisDB:       k.Int("REDIS_DB"),

		JWTSecret:    get("JWT_SECRET", ""),
		JWTTTL:       duration(k, "JWT_TTL", 12*time.Hour),
		CookieSecure: k.Bool("COOKIE_SECURE"),

		CartSessionTTL:     duration(k, "CART_SESSION_TTL", 8*time.Hour),
		IdempotencyTTL:     duration(k, "IDEMPOTENCY_TTL", 24*time.Hour),
		ReportCacheTTL:     duration(k, "REPORT_CACHE_TTL", time.Minute),
		CommissionCacheTTL: duration(k, "COMMISSION_CACHE_TTL", 5*time.Minute),
		CatalogCacheTTL:    duration(k, "CATALOG_CACHE_TTL", 30*time.Second),

		CreditLockTTL:       duration(k, "CREDIT_LOCK_TTL", 10*time.Second),
		CreditRetryMax:      intOr(k, "CREDIT_RETRY_MAX", 10),
		CreditRetryBase:     duration(k, "CREDIT_RETRY_BASE", 5*time.Second),
		CreditSweepInterval: duration(k, "CREDIT_SWEEP_INTERVAL", 5*time.Minute),
		CreditBreakerMin:    intOr(k, "CREDIT_BREAKER_MIN_REQUESTS", 20),
		CreditBreakerRatio:  floatOr(k, "CREDIT_BREAKER_FAILURE_RATIO", 0.5),
		CreditBreakerOpen:   duration(k, "CREDIT_BREAKER_OPEN_FOR", 30*time.Second),

		KafkaBrokers:       splitAndTrim(k.String("KAFKA_BROKERS")),
		KafkaSalesTopic:    get("KAFKA_SALES_TOPIC", "pdv.sales"),
		OutboxPollInterval: duration(k, "OUTBOX_POLL_INTERVAL", time.Second),

		CORSAllowedOrigins: k.String("CORS_ALLOWED_ORIGINS"),
		LoginRateLimit:     get("LOGIN_RATE_LIMIT", "10-M"),
		BodyLimitBytes:     int64(intOr(k, "BODY_LIMIT_BYTES", 1<<20)),
		TimeZone:           get("TZ_BUSINESS", "America/Sao_Paulo"),

		LogFormat: get("LOG_FORMAT", "json"),
		LogLevel:  get("LOG_LEVEL", "info"),

		OTelEnabled:       k.Bool("OTEL_ENABLED"),
		OTelEndpoint:      k.String("OTEL_EXPORTER_OTLP_ENDPOINT"),
		OTelServiceName:   get("OTEL_SERVICE_NAME", "backend-pdv"),
		OTelSamplingRatio: floatOr(k, "OTEL_TRACES_SAMPLER_RATIO", 1),

		MigrateOnStart: k.Bool("MIGRATE_ON_START"),
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	} else if len(cfg.JWTSecret) < 32 && cfg.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes in production"))
	}
	if _, err := time.LoadLocation(cfg.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("TZ_BUSINESS: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// IsProduction reports whether APP_ENV names a production deployment.
func (c *Config) IsProduction() bool {
	env := strings.ToLower(c.AppEnv)
	return env == "production" || env == "prod"
}

// Location returns the business time zone used to cut days and months.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.Local
	}
	return loc
}

func listenAddr(addr string) string {
	if strings.Contains(addr, ":") {
		return addr
	}
	return ":" + addr
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func duration(k *koanf.Koanf, key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(k.String(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func intOr(k *koanf.Koanf, key string, fallback int) int {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	if v := k.Int(key); v > 0 {
		return v
	}
	return fallback
}

func floatOr(k *koanf.Koanf, key string, fallback float64) float64 {
	if strings.TrimSpace(k.String(key)) == "" {
		return fallback
	}
	if v := k.Float64(key); v > 0 {
		return v
	}
	return fallback
}

// MustLoad behaves like Load but panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests sets env for the duration of one Load call and restores the previous values.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]*string, len(env))
	for key, value := range env {
		if prev, ok := os.LookupEnv(key); ok {
			original[key] = &prev
		} else {
			original[key] = nil
		}
		if err := setEnvVar(key, value); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	if restoreErr := restoreEnv(original); restoreErr != nil {
		return nil, errors.Join(err, restoreErr)
	}
	return cfg, err
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]*string) error {
	var errs []error
	for key, value := range values {
		var err error
		if value == nil {
			err = os.Unsetenv(key)
		} else {
			err = os.Setenv(key, *value)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", key, err))
		}
	}
	return errors.Join(errs...)
}
