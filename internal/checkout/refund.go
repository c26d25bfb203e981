package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/alert"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/events"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
	"github.com/imrishuroy/go-esim-checkout/internal/refunds"
)

// Default reason for refunds requested through the API.
const reasonCustomerRequested = "Customer requested refund"

func newUUID() string { return uuid.NewString() }

// RefundInput requests compensation. AmountMinor 0 refunds the amount paid.
type RefundInput struct {
	PaymentID   string
	Reason      string
	AmountMinor int64
}

// RefundResult describes an issued refund.
type RefundResult struct {
	RefundID          string          `json:"refund_id"`
	ProcessorRefundID string          `json:"processor_refund_id"`
	PaymentID         string          `json:"payment_id"`
	Status            string          `json:"status"`
	AmountMinor       int64           `json:"amount"`
	Amount            decimal.Decimal `json:"amount_major"`
	Currency          string          `json:"currency"`
	Reason            string          `json:"reason"`
}

// Refund is the manual (support) trigger for compensation. It holds the same
// per-payment lease as Provision so a refund cannot race an in-flight
// activation. Any refund ends the purchase as refunded, so a provisioned
// purchase only accepts the full amount. A pending purchase accepts a partial
// amount and is closed all the same.
func (s *Service) Refund(ctx context.Context, in RefundInput) (*RefundResult, error) {
	if in.PaymentID == "" {
		return nil, newValidationError("payment_id", "required")
	}
	if in.AmountMinor < 0 {
		return nil, newValidationError("amount", "must not be negative")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = reasonCustomerRequested
	}

	ctx = context.WithoutCancel(ctx)
	release, err := s.acquireLease(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	defer release()

	p, err := s.GetPurchase(ctx, in.PaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == purchases.StatusCompleted && in.AmountMinor > 0 &&
		in.AmountMinor < MajorToMinor(p.AmountPaid.Decimal, p.Currency) {
		return nil, newValidationError("amount", "partial refunds are not supported for provisioned purchases")
	}
	return s.compensate(ctx, p, reason, in.AmountMinor)
}

// compensate records a refund attempt, calls the processor once and marks the
// purchase refunded. A failed processor call is not retried.
func (s *Service) compensate(ctx context.Context, p *purchases.Purchase, reason string, amountMinor int64) (*RefundResult, error) {
	if p.Status == purchases.StatusRefunded {
		return nil, ErrPurchaseRefunded
	}
	paidMinor := MajorToMinor(p.AmountPaid.Decimal, p.Currency)
	if amountMinor == 0 {
		amountMinor = paidMinor
	}
	if amountMinor > paidMinor {
		return nil, newValidationError("amount", "exceeds the amount paid")
	}

	entry := log.WithFields(log.Fields{
		"payment_id":   p.PaymentID,
		"package_id":   p.PackageID,
		"amount_minor": amountMinor,
		"reason":       reason,
	})

	now := s.nowFunc().UTC()
	rec := refunds.Refund{
		PaymentID:   p.PaymentID,
		RefundID:    s.newID(),
		AmountMinor: amountMinor,
		Currency:    p.Currency,
		Reason:      reason,
		Status:      refunds.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.call(ctx, func(ctx context.Context) error {
		return s.refunds.Create(ctx, rec)
	})
	if errors.Is(err, refunds.ErrAlreadyExists) {
		return nil, ErrRefundInProgress
	}
	if err != nil {
		// without a record there is no dedupe guard, so the processor is not called
		return nil, s.refundFailed(ctx, entry, p, rec.RefundID, fmt.Errorf("create refund record: %w", err))
	}

	var res processor.RefundResult
	err = s.call(ctx, func(ctx context.Context) error {
		var err error
		res, err = s.processor.Refund(ctx, processor.RefundRequest{
			PaymentID:      p.PaymentID,
			AmountMinor:    amountMinor,
			Reason:         reason,
			IdempotencyKey: "refund-" + rec.RefundID,
		})
		return err
	})
	if err != nil {
		if uerr := s.call(ctx, func(ctx context.Context) error {
			return s.refunds.UpdateResult(ctx, p.PaymentID, rec.RefundID, "", refunds.StatusFailed, amountMinor, err.Error())
		}); uerr != nil {
			entry.WithError(uerr).Warn("failed to record refund failure")
		}
		return nil, s.refundFailed(ctx, entry, p, rec.RefundID, err)
	}

	if err := s.call(ctx, func(ctx context.Context) error {
		return s.refunds.UpdateResult(ctx, p.PaymentID, rec.RefundID, res.ID, res.Status, amountMinor, "")
	}); err != nil {
		entry.WithError(err).Error("refund issued but refund record not updated")
	}

	err = s.call(ctx, func(ctx context.Context) error {
		return s.purchases.MarkRefunded(ctx, p.PaymentID)
	})
	switch {
	case err == nil:
		p.Status = purchases.StatusRefunded
	case errors.Is(err, purchases.ErrStatusMismatch):
		entry.Warn("purchase already marked refunded")
	default:
		entry.WithError(err).Error("refund issued but purchase not marked refunded")
		s.raise(ctx, alert.Alert{
			Subject:   "refund issued but purchase not marked refunded",
			PaymentID: p.PaymentID,
			PackageID: p.PackageID,
			Err:       err,
			Fields:    map[string]string{"processor_refund_id": res.ID},
		})
	}

	s.count(ctx, aws.MetricRefundsIssued)
	s.publish(ctx, events.TypePurchaseRefunded, p)
	entry.WithField("processor_refund_id", res.ID).Info("refund issued")

	return &RefundResult{
		RefundID:          rec.RefundID,
		ProcessorRefundID: res.ID,
		PaymentID:         p.PaymentID,
		Status:            res.Status,
		AmountMinor:       amountMinor,
		Amount:            MinorToMajor(amountMinor, p.Currency),
		Currency:          p.Currency,
		Reason:            reason,
	}, nil
}

func (s *Service) refundFailed(ctx context.Context, entry *log.Entry, p *purchases.Purchase, refundID string, cause error) error {
	entry.WithError(cause).WithField("refund_id", refundID).Error("refund failed")
	s.count(ctx, aws.MetricRefundFailures)
	s.raise(ctx, alert.Alert{
		Subject:   "refund failed",
		PaymentID: p.PaymentID,
		PackageID: p.PackageID,
		Err:       cause,
		Fields:    map[string]string{"refund_id": refundID},
	})
	return &RefundError{PaymentID: p.PaymentID, RefundID: refundID, Err: cause}
}
