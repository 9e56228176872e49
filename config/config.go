package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	RedisAddr   string

	TemporalHost string
	// TemporalNamespace is empty by default; the client falls back to the
	// project namespace.
	TemporalNamespace string
	PurchaseTaskQueue string
	SearchTaskQueue   string

	// PurchaseConcurrency bounds simultaneous browser-automation sessions
	// per worker; each session is resource-heavy, so keep this small.
	PurchaseConcurrency int
	SearchConcurrency   int

	SearchCacheTTL   time.Duration
	SearchSessionTTL time.Duration

	// Flow replay trust: a flow needs at least one recorded success and a
	// per-step reliability at or above MinStepReliability before it is
	// replayed unattended.
	MinStepReliability   float64
	RelearnAfterFailures int

	ReasonerModel   string
	ReasonerTimeout time.Duration
	AnthropicAPIKey string

	WalletBaseURL     string
	BrowserBaseURL    string
	SearchProviderURL string

	CheckoutStepBudget int
	CheckoutTimeout    time.Duration

	OTelServiceName string
	OTelEndpoint    string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),

		TemporalHost:      getEnv("TEMPORAL_HOST", "localhost:7233"),
		TemporalNamespace: getEnv("TEMPORAL_NAMESPACE", ""),
		PurchaseTaskQueue: getEnv("PURCHASE_TASK_QUEUE", "purchase-queue"),
		SearchTaskQueue:   getEnv("SEARCH_TASK_QUEUE", "search-queue"),

		PurchaseConcurrency: getEnvInt("PURCHASE_CONCURRENCY", 2),
		SearchConcurrency:   getEnvInt("SEARCH_CONCURRENCY", 5),

		MinStepReliability:   getEnvFloat("MIN_STEP_RELIABILITY", 0.5),
		RelearnAfterFailures: getEnvInt("RELEARN_AFTER_FAILURES", 2),

		ReasonerModel:   getEnv("REASONER_MODEL", "claude-sonnet-4-20250514"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		WalletBaseURL:     getEnv("WALLET_BASE_URL", "http://localhost:8090"),
		BrowserBaseURL:    getEnv("BROWSER_BASE_URL", "http://localhost:8070"),
		SearchProviderURL: getEnv("SEARCH_PROVIDER_URL", ""),

		CheckoutStepBudget: getEnvInt("CHECKOUT_STEP_BUDGET", 50),

		OTelServiceName: getEnv("OTEL_SERVICE_NAME", "clawcart-api"),
		OTelEndpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://localhost:4318"),
	}

	var err error
	if cfg.SearchCacheTTL, err = getEnvDuration("SEARCH_CACHE_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.SearchSessionTTL, err = getEnvDuration("SEARCH_SESSION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.ReasonerTimeout, err = getEnvDuration("REASONER_TIMEOUT", 45*time.Second); err != nil {
		return nil, err
	}
	if cfg.CheckoutTimeout, err = getEnvDuration("CHECKOUT_TIMEOUT", 5*time.Minute); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.PurchaseConcurrency < 1 {
		return fmt.Errorf("PURCHASE_CONCURRENCY must be at least 1")
	}
	if c.MinStepReliability < 0 || c.MinStepReliability > 1 {
		return fmt.Errorf("MIN_STEP_RELIABILITY must be within [0,1]")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
