package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/events"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
	"github.com/imrishuroy/go-esim-checkout/internal/reseller"
)

// Default compensation reason after a failed provisioning.
const reasonActivationFailed = "esim_activation_failed"

// ProvisionInput identifies a confirmed payment to provision.
type ProvisionInput struct {
	PaymentID string
	PackageID string
	Customer  Customer
}

// ProvisionResult is the user-facing outcome of a successful provisioning.
// Reconciled is false when the eSIM was issued but the record write failed.
type ProvisionResult struct {
	PaymentID          string          `json:"payment_id"`
	Status             string          `json:"status"`
	ESIM               *purchases.ESIM `json:"esim_data"`
	Customer           Customer        `json:"customer"`
	PurchasedAt        time.Time       `json:"purchased_at"`
	Reconciled         bool            `json:"-"`
	AlreadyProvisioned bool            `json:"already_provisioned,omitempty"`
}

// Provision allocates one eSIM for a confirmed payment. A record that is
// already completed is returned as is and the reseller is not called again.
// A pending record is provisioned only after the processor reports the intent
// as succeeded. A reseller failure triggers compensation.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (*ProvisionResult, error) {
	if in.PaymentID == "" {
		return nil, newValidationError("payment_id", "required")
	}

	// a client disconnect must not abort compensation
	ctx = context.WithoutCancel(ctx)

	release, err := s.acquireLease(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	var p *purchases.Purchase
	if err := s.call(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.purchases.Get(ctx, in.PaymentID)
		return err
	}); err != nil {
		return nil, fmt.Errorf("load purchase: %w", err)
	}
	if p == nil {
		return nil, ErrPurchaseNotFound
	}

	customer := in.Customer
	if customer.Email == "" {
		customer = Customer{Email: p.CustomerEmail, Name: p.CustomerName, Phone: p.CustomerPhone}
	}

	switch p.Status {
	case purchases.StatusCompleted:
		log.WithField("payment_id", p.PaymentID).Info("purchase already provisioned")
		return &ProvisionResult{
			PaymentID:          p.PaymentID,
			Status:             p.Status,
			ESIM:               p.ESIMData,
			Customer:           customer,
			PurchasedAt:        p.UpdatedAt,
			Reconciled:         true,
			AlreadyProvisioned: true,
		}, nil
	case purchases.StatusRefunded:
		return nil, ErrPurchaseRefunded
	case purchases.StatusPending:
	default:
		return nil, fmt.Errorf("purchase %s has unknown status %q", p.PaymentID, p.Status)
	}

	if in.PackageID != "" && in.PackageID != p.PackageID {
		return nil, newValidationError("package_id", "does not match the purchase")
	}

	// the reseller is only called for a payment the processor reports as succeeded
	if err := s.verifyPayment(ctx, p.PaymentID); err != nil {
		return nil, err
	}

	var issued *reseller.ESIM
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		issued, err = s.provisioner.Provision(ctx, p.PackageID)
		return err
	})
	if err != nil {
		return nil, s.provisioningFailed(ctx, p, err)
	}

	esim := toPurchaseESIM(issued)
	reconciled := s.reconcile(ctx, p, esim)
	if reconciled {
		p.Status = purchases.StatusCompleted
		s.count(ctx, aws.MetricPurchasesCompleted)
		s.publish(ctx, events.TypePurchaseCompleted, p)
	}

	log.WithFields(log.Fields{
		"payment_id": p.PaymentID,
		"package_id": p.PackageID,
		"reconciled": reconciled,
	}).Info("esim provisioned")

	return &ProvisionResult{
		PaymentID:   p.PaymentID,
		Status:      purchases.StatusCompleted,
		ESIM:        &esim,
		Customer:    customer,
		PurchasedAt: s.nowFunc().UTC(),
		Reconciled:  reconciled,
	}, nil
}

// acquireLease takes the per-payment lease shared by provisioning and manual
// refunds. The returned func releases it.
func (s *Service) acquireLease(ctx context.Context, paymentID string) (func(), error) {
	var token string
	var held bool
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		token, held, err = s.locker.Acquire(ctx, lockPrefix+paymentID, s.lockTTL)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("acquire provisioning lease: %w", err)
	}
	if !held {
		return nil, ErrProvisioningInProgress
	}
	return func() {
		if err := s.call(ctx, func(ctx context.Context) error {
			return s.locker.Release(ctx, lockPrefix+paymentID, token)
		}); err != nil {
			log.WithError(err).WithField("payment_id", paymentID).Warn("failed to release provisioning lease")
		}
	}, nil
}

// verifyPayment reads the intent status from the processor.
func (s *Service) verifyPayment(ctx context.Context, paymentID string) error {
	var conf processor.Confirmation
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		conf, err = s.processor.RetrieveIntent(ctx, paymentID)
		return err
	})
	if err != nil {
		return &ProcessorError{Op: "retrieve payment intent", Err: err}
	}
	if err := paymentStatusError(conf); err != nil {
		log.WithFields(log.Fields{
			"payment_id": paymentID,
			"status":     conf.Status,
		}).Warn("provisioning refused for unsettled payment")
		return err
	}
	return nil
}

func (s *Service) provisioningFailed(ctx context.Context, p *purchases.Purchase, cause error) error {
	if errors.Is(cause, context.DeadlineExceeded) {
		cause = fmt.Errorf("reseller call timed out: %w", cause)
	}
	log.WithError(cause).WithFields(log.Fields{
		"payment_id": p.PaymentID,
		"package_id": p.PackageID,
	}).Error("provisioning failed")
	s.count(ctx, aws.MetricProvisioningFailures)

	failed := &ProvisioningFailedError{PaymentID: p.PaymentID, Err: cause}
	res, err := s.compensate(ctx, p, reasonActivationFailed, 0)
	if err != nil {
		failed.RefundErr = err
		return failed
	}
	failed.RefundInitiated = true
	failed.Refund = res
	return failed
}
