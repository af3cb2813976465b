package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server configuration. The listen address comes from serve --http.
	Environment string

	// Backend configuration
	APIBaseURL            string
	PaymentGatewayBaseURL string
	ImageBaseURL          string
	BackendTimeout        time.Duration
	RefreshTimeout        time.Duration

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubSubscribeKey   string
	PubNubUUID           string
	PubNubPaymentChannel string
	PubNubCipherKey      string
	PubNubSecretKey      string

	// Session configuration
	SessionIdleTTL time.Duration
	SweepInterval  time.Duration
	CheckoutTTL    time.Duration
	StorageTTL     time.Duration

	// Catalog configuration
	CatalogCacheTTL    time.Duration
	CatalogRetryDelay  time.Duration
	CatalogLoadCeiling time.Duration

	// Rate limiting
	RateLimitLogin    int
	RateLimitCheckout int
	RateLimitWindow   time.Duration

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

// LoadConfig reads the process environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func LoadConfig() *Config {
	_ = godotenv.Load()

	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Backend
		APIBaseURL:            getEnvAny([]string{"API_BASE_URL", "VITE_API_BASE_URL"}, ""),
		PaymentGatewayBaseURL: getEnvAny([]string{"PAYMENT_GATEWAY_BASE_URL", "VITE_PAYMENT_GATEWAY_BASE_URL"}, ""),
		ImageBaseURL:          getEnvAny([]string{"IMAGE_BASE_URL", "VITE_IMAGE_BASE_URL"}, ""),
		BackendTimeout:        getEnvAsDuration("BACKEND_TIMEOUT", "15s"),
		RefreshTimeout:        getEnvAsDuration("REFRESH_TIMEOUT", "10s"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubSubscribeKey:   getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubUUID:           getEnv("PUBNUB_UUID", "ticket-storefront"),
		PubNubPaymentChannel: getEnv("PUBNUB_PAYMENT_CHANNEL", "order-payment-notifications"),
		PubNubCipherKey:      getEnv("PUBNUB_CIPHER_KEY", ""),
		PubNubSecretKey:      getEnv("PUBNUB_SECRET_KEY", ""),

		// Sessions
		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", "30m"),
		SweepInterval:  getEnvAsDuration("SESSION_SWEEP_INTERVAL", "1m"),
		CheckoutTTL:    getEnvAsDuration("CHECKOUT_TTL", "24h"),
		StorageTTL:     getEnvAsDuration("STORAGE_TTL", "720h"),

		// Catalog
		CatalogCacheTTL:    getEnvAsDuration("CATALOG_CACHE_TTL", "30s"),
		CatalogRetryDelay:  getEnvAsDuration("CATALOG_RETRY_DELAY", "1s"),
		CatalogLoadCeiling: getEnvAsDuration("CATALOG_LOAD_CEILING", "5s"),

		// Rate limiting
		RateLimitLogin:    getEnvAsInt("RATE_LIMIT_LOGIN", 10),
		RateLimitCheckout: getEnvAsInt("RATE_LIMIT_CHECKOUT", 5),
		RateLimitWindow:   getEnvAsDuration("RATE_LIMIT_WINDOW", "1m"),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

// Validate reports missing required settings. Callers fail fast on the
// error in development and log it elsewhere.
func (c *Config) Validate() error {
	var errs []error
	if c.APIBaseURL == "" {
		errs = append(errs, errors.New("API_BASE_URL is required"))
	}
	if c.PaymentGatewayBaseURL == "" {
		errs = append(errs, errors.New("PAYMENT_GATEWAY_BASE_URL is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// PubNubEnabled reports whether the payment notification watcher can run.
func (c *Config) PubNubEnabled() bool {
	return c.PubNubSubscribeKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAny(keys []string, defaultValue string) string {
	for _, key := range keys {
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
