// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Storage drivers.
const (
	StorageDynamoDB = "dynamodb"
	StoragePostgres = "postgres"
)

// Config is the full process configuration shared by the API and the worker.
type Config struct {
	AWSRegion           string `env:"AWS_REGION"`
	AWSEndpointOverride string `env:"AWS_ENDPOINT_OVERRIDE"`

	StorageDriver       string        `env:"STORAGE_DRIVER" envDefault:"dynamodb"`
	PurchasesTable      string        `env:"PURCHASES_TABLE"`
	PurchasesEmailIndex string        `env:"PURCHASES_EMAIL_INDEX" envDefault:"customer_email-index"`
	RefundsTable        string        `env:"REFUNDS_TABLE"`
	IdempotencyTable    string        `env:"IDEMPOTENCY_TABLE"`
	IdempotencyTTL      time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"48h"`
	DatabaseURL         string        `env:"DATABASE_URL"`
	ReconcileQueueURL   string        `env:"RECONCILE_QUEUE_URL"`

	StripeSecretKey string `env:"STRIPE_SECRET_KEY"`

	GloesimBaseURL  string        `env:"GLOESIM_BASE_URL" envDefault:"https://gloesim.com/api/"`
	GloesimEmail    string        `env:"GLOESIM_EMAIL"`
	GloesimPassword string        `env:"GLOESIM_PASSWORD"`
	GloesimTokenTTL time.Duration `env:"GLOESIM_TOKEN_TTL" envDefault:"50m"`

	ExternalCallTimeout time.Duration `env:"EXTERNAL_CALL_TIMEOUT" envDefault:"30s"`
	ProvisionLockTTL    time.Duration `env:"PROVISION_LOCK_TTL" envDefault:"2m"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	KafkaPurchaseTopic    string `env:"KAFKA_PURCHASE_TOPIC" envDefault:"esim_purchases"`

	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string `env:"SMTP_USER"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	MailFrom     string `env:"MAIL_FROM"`
	SupportEmail string `env:"SUPPORT_EMAIL"`

	MetricsNamespace string `env:"METRICS_NAMESPACE" envDefault:"ESIMCheckout"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	RunLocal bool   `env:"RUN_LOCAL" envDefault:"false"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080"`
}

// Load reads an optional .env file and parses the environment into a Config.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file loaded")
	}
	return Parse()
}

// Parse parses the current environment into a Config and validates it.
func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))
	if cfg.StorageDriver == "" {
		cfg.StorageDriver = StorageDynamoDB
	}
	cfg.KafkaBootstrapServers = strings.Trim(cfg.KafkaBootstrapServers, "\"")
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field requirements.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required when STORAGE_DRIVER=postgres"))
		}
	case StorageDynamoDB:
		if c.PurchasesTable == "" {
			errs = append(errs, errors.New("PURCHASES_TABLE is required when STORAGE_DRIVER=dynamodb"))
		}
		if c.RefundsTable == "" {
			errs = append(errs, errors.New("REFUNDS_TABLE is required when STORAGE_DRIVER=dynamodb"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver))
	}
	if c.ExternalCallTimeout <= 0 {
		errs = append(errs, errors.New("EXTERNAL_CALL_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

// SMTPConfigured reports whether operator alert mail can be sent.
func (c *Config) SMTPConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.MailFrom != "" && c.SupportEmail != ""
}
