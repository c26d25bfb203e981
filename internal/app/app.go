// Package app wires configuration into the concrete collaborators shared by
// the API and the reconciliation worker.
package app

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/alert"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/checkout"
	"github.com/imrishuroy/go-esim-checkout/internal/config"
	"github.com/imrishuroy/go-esim-checkout/internal/events"
	"github.com/imrishuroy/go-esim-checkout/internal/idempotency"
	"github.com/imrishuroy/go-esim-checkout/internal/lock"
	"github.com/imrishuroy/go-esim-checkout/internal/postgres"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
	"github.com/imrishuroy/go-esim-checkout/internal/refunds"
	"github.com/imrishuroy/go-esim-checkout/internal/reseller"
)

const lockPrefix = "esim-checkout:"

// Stores holds the record stores for the configured storage driver.
type Stores struct {
	Purchases checkout.PurchaseStore
	Refunds   checkout.RefundStore

	close func() error
}

// Close releases the underlying connection, if any.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores selects DynamoDB or PostgreSQL per cfg.StorageDriver.
func OpenStores(cfg *config.Config, clients *aws.AWSClients) (*Stores, error) {
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Info("using postgres purchase store")
		return &Stores{
			Purchases: postgres.NewPurchaseRepo(db),
			Refunds:   postgres.NewRefundRepo(db),
			close:     db.Close,
		}, nil
	case config.StorageDynamoDB:
		if clients == nil || clients.DynamoDB == nil {
			return nil, errors.New("dynamodb storage requires an aws client")
		}
		return &Stores{
			Purchases: purchases.NewStore(clients.DynamoDB, cfg.PurchasesTable, cfg.PurchasesEmailIndex),
			Refunds:   refunds.NewStore(clients.DynamoDB, cfg.RefundsTable),
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.StorageDriver)
	}
}

// App holds everything the API needs to serve requests.
type App struct {
	Service     *checkout.Service
	Idempotency *idempotency.Store // nil when IDEMPOTENCY_TABLE is unset
	Catalog     *reseller.Provisioner

	closers []func()
}

// New builds the checkout service and its collaborators from cfg. Optional
// backends (Redis, Kafka, SMTP, SQS) fall back to in-process defaults when
// they are not configured.
func New(ctx context.Context, cfg *config.Config, clients *aws.AWSClients) (*App, error) {
	if cfg.StripeSecretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY is required")
	}
	if cfg.GloesimEmail == "" || cfg.GloesimPassword == "" {
		return nil, errors.New("GLOESIM_EMAIL and GLOESIM_PASSWORD are required")
	}

	a := &App{}

	stores, err := OpenStores(cfg, clients)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := stores.Close(); err != nil {
			log.WithError(err).Warn("failed to close store")
		}
	})

	rc, err := reseller.NewClient(cfg.GloesimBaseURL, cfg.ExternalCallTimeout)
	if err != nil {
		a.Close()
		return nil, err
	}
	session := reseller.NewSession(rc, cfg.GloesimEmail, cfg.GloesimPassword, cfg.GloesimTokenTTL, cfg.ExternalCallTimeout)
	a.Catalog = reseller.NewProvisioner(session, rc)

	deps := checkout.Dependencies{
		Purchases:   stores.Purchases,
		Refunds:     stores.Refunds,
		Processor:   processor.NewStripe(cfg.StripeSecretKey),
		Provisioner: a.Catalog,
		CallTimeout: cfg.ExternalCallTimeout,
		LockTTL:     cfg.ProvisionLockTTL,
	}

	if clients != nil && clients.CloudWatch != nil {
		deps.Metrics = aws.NewMetrics(clients.CloudWatch, cfg.MetricsNamespace)
	}
	if clients != nil && clients.SQS != nil && cfg.ReconcileQueueURL != "" {
		deps.Queue = aws.NewPublisher(clients.SQS, cfg.ReconcileQueueURL)
	} else {
		log.Warn("RECONCILE_QUEUE_URL not set, unreconciled purchases rely on alerts only")
	}
	if clients != nil && clients.DynamoDB != nil && cfg.IdempotencyTable != "" {
		a.Idempotency = idempotency.NewStore(clients.DynamoDB, cfg.IdempotencyTable, cfg.IdempotencyTTL)
	}

	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.WithError(err).Warn("redis unavailable, provisioning lease is process-local")
			_ = rdb.Close()
		} else {
			deps.Locker = lock.NewRedis(rdb, lockPrefix)
			a.closers = append(a.closers, func() { _ = rdb.Close() })
		}
	}

	if cfg.KafkaBootstrapServers != "" {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBootstrapServers, cfg.KafkaPurchaseTopic)
		if err != nil {
			log.WithError(err).Warn("kafka unavailable, purchase events are dropped")
		} else {
			deps.Events = kp
			a.closers = append(a.closers, kp.Close)
		}
	}

	if cfg.SMTPConfigured() {
		deps.Alerter = alert.NewEmailAlerter(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.MailFrom, cfg.SupportEmail)
	}

	a.Service = checkout.NewService(deps)
	return a, nil
}

// Close releases connections in reverse order of creation.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
