// Package checkout runs the purchase workflow: intent creation, payment
// confirmation, eSIM provisioning, reconciliation and compensation. Every
// stage after the first locates the purchase record by payment id.
package checkout

import (
	"context"
	"time"

	validatorv10 "github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/alert"
	"github.com/imrishuroy/go-esim-checkout/internal/events"
	"github.com/imrishuroy/go-esim-checkout/internal/lock"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
	"github.com/imrishuroy/go-esim-checkout/internal/refunds"
	"github.com/imrishuroy/go-esim-checkout/internal/reseller"
)

const (
	defaultCallTimeout = 30 * time.Second
	defaultLockTTL     = 2 * time.Minute
	lockPrefix         = "provision:"
)

// PurchaseStore is the durable purchase record storage.
type PurchaseStore interface {
	Insert(ctx context.Context, p purchases.Purchase) error
	Get(ctx context.Context, paymentID string) (*purchases.Purchase, error)
	ListByCustomerEmail(ctx context.Context, email string) ([]purchases.Purchase, error)
	MarkCompleted(ctx context.Context, paymentID string, esim purchases.ESIM) error
	MarkRefunded(ctx context.Context, paymentID string) error
}

// RefundStore is the durable refund record storage.
type RefundStore interface {
	Create(ctx context.Context, r refunds.Refund) error
	Get(ctx context.Context, paymentID string) (*refunds.Refund, error)
	UpdateResult(ctx context.Context, paymentID, refundID, processorRefundID, status string, amountMinor int64, note string) error
}

// Processor is the payment processor contract.
type Processor interface {
	CreateIntent(ctx context.Context, req processor.IntentRequest) (processor.Intent, error)
	ConfirmPayment(ctx context.Context, clientSecret string, billing processor.BillingDetails, paymentMethodID string) (processor.Confirmation, error)
	RetrieveIntent(ctx context.Context, intentID string) (processor.Confirmation, error)
	Refund(ctx context.Context, req processor.RefundRequest) (processor.RefundResult, error)
}

// Provisioner allocates one eSIM unit from the reseller.
type Provisioner interface {
	Provision(ctx context.Context, packageTypeID string) (*reseller.ESIM, error)
}

// Metrics counts operator-visible events.
type Metrics interface {
	Count(ctx context.Context, name string, dimensions map[string]string) error
}

// ReconcileQueue receives purchases whose completion could not be written.
type ReconcileQueue interface {
	SendJSON(ctx context.Context, body interface{}, attributes map[string]string) error
}

// Dependencies are constructed once at process start. Locker, Events, Alerter,
// Metrics and Queue are optional.
type Dependencies struct {
	Purchases   PurchaseStore
	Refunds     RefundStore
	Processor   Processor
	Provisioner Provisioner
	Locker      lock.Locker
	Events      events.Publisher
	Alerter     alert.Alerter
	Metrics     Metrics
	Queue       ReconcileQueue

	// CallTimeout bounds every external call (30s when zero).
	CallTimeout time.Duration
	// LockTTL bounds the provisioning lease (2m when zero).
	LockTTL time.Duration
}

// Service runs the purchase workflow.
type Service struct {
	purchases   PurchaseStore
	refunds     RefundStore
	processor   Processor
	provisioner Provisioner
	locker      lock.Locker
	events      events.Publisher
	alerter     alert.Alerter
	metrics     Metrics
	queue       ReconcileQueue

	callTimeout time.Duration
	lockTTL     time.Duration
	validate    *validatorv10.Validate
	nowFunc     func() time.Time
	newID       func() string
}

// NewService wires the workflow. Missing optional collaborators get in-process
// or no-op defaults.
func NewService(d Dependencies) *Service {
	s := &Service{
		purchases:   d.Purchases,
		refunds:     d.Refunds,
		processor:   d.Processor,
		provisioner: d.Provisioner,
		locker:      d.Locker,
		events:      d.Events,
		alerter:     d.Alerter,
		metrics:     d.Metrics,
		queue:       d.Queue,
		callTimeout: d.CallTimeout,
		lockTTL:     d.LockTTL,
		validate:    validatorv10.New(),
		nowFunc:     time.Now,
		newID:       newUUID,
	}
	if s.callTimeout <= 0 {
		s.callTimeout = defaultCallTimeout
	}
	if s.lockTTL <= 0 {
		s.lockTTL = defaultLockTTL
	}
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.events == nil {
		s.events = events.Noop{}
	}
	if s.alerter == nil {
		s.alerter = alert.LogAlerter{}
	}
	return s
}

// call runs fn with the external call timeout.
func (s *Service) call(ctx context.Context, fn func(ctx context.Context) error) error {
	cctx, cancel := context.WithTimeout(ctx, s.callTimeout)
	defer cancel()
	return fn(cctx)
}

func (s *Service) count(ctx context.Context, name string) {
	if s.metrics == nil {
		return
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.metrics.Count(ctx, name, nil)
	}); err != nil {
		log.WithError(err).WithField("metric", name).Warn("failed to emit metric")
	}
}

func (s *Service) raise(ctx context.Context, a alert.Alert) {
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.alerter.Alert(ctx, a)
	}); err != nil {
		log.WithError(err).WithField("payment_id", a.PaymentID).Warn("failed to send operator alert")
	}
}

func (s *Service) publish(ctx context.Context, eventType string, p *purchases.Purchase) {
	ev := events.PurchaseEvent{
		Type:          eventType,
		PaymentID:     p.PaymentID,
		CustomerEmail: p.CustomerEmail,
		PackageID:     p.PackageID,
		AmountPaid:    p.AmountPaid.Decimal,
		Currency:      p.Currency,
		OccurredAt:    s.nowFunc().UTC(),
	}
	if err := s.call(ctx, func(ctx context.Context) error {
		return s.events.Publish(ctx, ev)
	}); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"payment_id": p.PaymentID,
			"event_type": eventType,
		}).Warn("failed to publish purchase event")
	}
}

// GetPurchase returns the record for paymentID or ErrPurchaseNotFound.
func (s *Service) GetPurchase(ctx context.Context, paymentID string) (*purchases.Purchase, error) {
	if paymentID == "" {
		return nil, newValidationError("payment_id", "required")
	}
	var p *purchases.Purchase
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.purchases.Get(ctx, paymentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}
	return p, nil
}

// ListPurchases returns a customer's purchase history, newest first.
func (s *Service) ListPurchases(ctx context.Context, email string) ([]purchases.Purchase, error) {
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, newValidationError("email", "must be a valid email address")
	}
	var out []purchases.Purchase
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.purchases.ListByCustomerEmail(ctx, email)
		return err
	})
	return out, err
}

func toPurchaseESIM(e *reseller.ESIM) purchases.ESIM {
	return purchases.ESIM{
		ICCID:        e.ICCID,
		QRCodeText:   e.QRCodeText,
		SMDPAddress:  e.SMDPAddress,
		MatchingID:   e.MatchingID,
		Expiry:       e.Expiry,
		DataQuantity: e.DataQuantity,
		Raw:          e.Raw,
	}
}
