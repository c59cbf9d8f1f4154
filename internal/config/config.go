package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// ErrMissingConfiguration is returned when a required setting is absent. The
// process must not start serving traffic when Load returns it.
var ErrMissingConfiguration = errors.New("missing configuration")

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	MPAccessToken   string
	MPAPIBase       string
	MPWebhookSecret string
	MPFetchTimeout  time.Duration
	MPCreateTimeout time.Duration

	PublicBaseURL string
	FrontBaseURL  string

	ProductTitle       string
	ProductDescription string
	ProductUnitPrice   float64
	ProductCurrency    string

	DatabaseURL  string
	RedisURL     string
	PaymentStore string

	CORSAllowedOrigins []string
	AdminJWTSecret     string
	AdminJWTIssuer     string

	IdempotencyTTL      time.Duration
	CatalogCacheTTL     time.Duration
	PreferenceRateLimit string
	ReconcileLockTTL    time.Duration
	BodyLimitBytes      int64

	RetryBase          time.Duration
	RetryMaxAttempts   int
	RetryJitterPercent float64
	BreakerMinRequests int
	BreakerFailureRate float64
	BreakerOpenFor     time.Duration

	AMQPURL      string
	AMQPExchange string

	QueueName        string
	QueueConcurrency int
	QueueMaxRetry    int
	QueueRetryDelay  time.Duration
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:              valueOrDefault(k.String("APP_ENV"), "development"),
		Port:                valueOrDefault(k.String("PORT"), "8000"),
		MPAccessToken:       strings.TrimSpace(k.String("MP_ACCESS_TOKEN")),
		MPAPIBase:           strings.TrimRight(valueOrDefault(k.String("MP_API_BASE"), "https://api.mercadopago.com"), "/"),
		MPWebhookSecret:     strings.TrimSpace(k.String("MP_WEBHOOK_SECRET")),
		MPFetchTimeout:      parseDuration(k.String("MP_FETCH_TIMEOUT"), "10s"),
		MPCreateTimeout:     parseDuration(k.String("MP_CREATE_TIMEOUT"), "15s"),
		PublicBaseURL:       strings.TrimRight(valueOrDefault(k.String("BASE_PUBLIC_URL"), "http://localhost:8000"), "/"),
		FrontBaseURL:        strings.TrimRight(valueOrDefault(k.String("FRONT_BASE_URL"), "http://localhost:3000"), "/"),
		ProductTitle:        valueOrDefault(k.String("PRODUCT_TITLE"), "E-book O Poder do Primeiro Passo"),
		ProductDescription:  valueOrDefault(k.String("PRODUCT_DESCRIPTION"), "E-book digital"),
		ProductUnitPrice:    parseFloat(k.String("PRODUCT_UNIT_PRICE"), 29.90),
		ProductCurrency:     strings.ToUpper(valueOrDefault(k.String("PRODUCT_CURRENCY"), "BRL")),
		DatabaseURL:         strings.TrimSpace(k.String("DATABASE_URL")),
		RedisURL:            strings.TrimSpace(k.String("REDIS_URL")),
		PaymentStore:        strings.ToLower(valueOrDefault(k.String("PAYMENT_STORE"), "postgres")),
		CORSAllowedOrigins:  splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		AdminJWTSecret:      strings.TrimSpace(k.String("ADMIN_JWT_SECRET")),
		AdminJWTIssuer:      strings.TrimSpace(k.String("ADMIN_JWT_ISSUER")),
		IdempotencyTTL:      parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		CatalogCacheTTL:     parseDuration(k.String("CATALOG_CACHE_TTL"), "5m"),
		PreferenceRateLimit: valueOrDefault(k.String("PREFERENCE_RATE_LIMIT"), "20-M"),
		ReconcileLockTTL:    parseDuration(k.String("RECONCILE_LOCK_TTL"), "30s"),
		BodyLimitBytes:      int64(parseInt(k.String("BODY_LIMIT_BYTES"), 64*1024)),
		RetryBase:           parseDuration(k.String("RETRY_BASE"), "200ms"),
		RetryMaxAttempts:    parseInt(k.String("RETRY_MAX_ATTEMPTS"), 3),
		RetryJitterPercent:  parseFloat(k.String("RETRY_JITTER_PERCENT"), 0.2),
		BreakerMinRequests:  parseInt(k.String("BREAKER_MIN_REQUESTS"), 10),
		BreakerFailureRate:  parseFloat(k.String("BREAKER_FAILURE_RATE"), 0.5),
		BreakerOpenFor:      parseDuration(k.String("BREAKER_OPEN_FOR"), "30s"),
		AMQPURL:             strings.TrimSpace(k.String("AMQP_URL")),
		AMQPExchange:        valueOrDefault(k.String("AMQP_EXCHANGE"), "payments"),
		QueueName:           valueOrDefault(k.String("QUEUE_NAME"), "reconcile"),
		QueueConcurrency:    parseInt(k.String("QUEUE_CONCURRENCY"), 4),
		QueueMaxRetry:       parseInt(k.String("QUEUE_MAX_RETRY"), 10),
		QueueRetryDelay:     parseDuration(k.String("QUEUE_RETRY_DELAY"), "30s"),
	}

	if cfg.MPAccessToken == "" {
		return nil, fmt.Errorf("%w: MP_ACCESS_TOKEN is required", ErrMissingConfiguration)
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("%w: DATABASE_URL is required", ErrMissingConfiguration)
	}
	switch cfg.PaymentStore {
	case "postgres":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("%w: REDIS_URL is required when PAYMENT_STORE=redis", ErrMissingConfiguration)
		}
	default:
		return nil, fmt.Errorf("unsupported PAYMENT_STORE %q", cfg.PaymentStore)
	}
	if cfg.ProductUnitPrice <= 0 {
		return nil, fmt.Errorf("PRODUCT_UNIT_PRICE must be positive, got %v", cfg.ProductUnitPrice)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8000"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// WebhookURL is the public notification target handed to the gateway.
func (c *Config) WebhookURL(path string) string {
	return c.PublicBaseURL + path
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
