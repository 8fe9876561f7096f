package config

import (
	"errors"
	"strings"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting the service consumes.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	DatabaseDSN string `env:"DATABASE_DSN"`

	StripeSecretKey      string `env:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `env:"STRIPE_WEBHOOK_SECRET"`
	StripePremiumProduct string `env:"STRIPE_PREMIUM_PRODUCT_ID"`
	StripePremiumPrice   string `env:"STRIPE_PREMIUM_PRICE_ID"`

	CheckoutSuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/billing/success"`
	CheckoutCancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/billing/cancelled"`
	PortalReturnURL    string `env:"PORTAL_RETURN_URL" envDefault:"http://localhost:3000/settings"`

	AdminToken string `env:"ADMIN_TOKEN"`

	TracingEnabled   bool    `env:"TRACING_ENABLED" envDefault:"false"`
	ServiceName      string  `env:"SERVICE_NAME" envDefault:"fourpaws-billing"`
	ServiceVersion   string  `env:"SERVICE_VERSION" envDefault:"dev"`
	ExporterEndpoint string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ExporterProtocol string  `env:"OTEL_EXPORTER_OTLP_PROTOCOL" envDefault:"grpc"`
	SamplingRatio    float64 `env:"OTEL_SAMPLING_RATIO" envDefault:"0.1"`

	SeedDemoUser  bool   `env:"SEED_DEMO_USER" envDefault:"false"`
	SeedUserEmail string `env:"SEED_USER_EMAIL" envDefault:"demo@4paws.dev"`
}

var (
	ErrMissingDatabaseDSN = errors.New("missing_database_dsn")
	ErrMissingStripeKey   = errors.New("missing_stripe_secret_key")
)

// Load reads configuration from the environment, honouring a local .env
// file when present.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}

	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return Config{}, ErrMissingDatabaseDSN
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.StripeSecretKey) == "" {
		return Config{}, ErrMissingStripeKey
	}
	return cfg, nil
}

func (c Config) IsProduction() bool { return c.Environment == "production" }
