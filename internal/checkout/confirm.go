package checkout

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/processor"
)

// ConfirmInput drives the processor confirmation step.
type ConfirmInput struct {
	ClientSecret    string
	Billing         Customer
	PaymentMethodID string
}

// ConfirmPayment confirms the intent with the processor. It never touches the
// purchase record. A nil error means the payment succeeded.
func (s *Service) ConfirmPayment(ctx context.Context, in ConfirmInput) (*processor.Confirmation, error) {
	verr := &ValidationError{}
	if in.ClientSecret == "" {
		verr.add("client_secret", "required")
	} else if _, err := processor.IntentIDFromClientSecret(in.ClientSecret); err != nil {
		verr.add("client_secret", "malformed")
	}
	if in.PaymentMethodID == "" {
		verr.add("payment_method_id", "required")
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}

	billing := processor.BillingDetails{
		Email: in.Billing.Email,
		Name:  in.Billing.Name,
		Phone: in.Billing.Phone,
	}
	var conf processor.Confirmation
	err := s.call(ctx, func(ctx context.Context) error {
		var err error
		conf, err = s.processor.ConfirmPayment(ctx, in.ClientSecret, billing, in.PaymentMethodID)
		return err
	})
	if err != nil {
		failed := &PaymentFailedError{Message: err.Error(), Err: err}
		var pe *processor.Error
		if errors.As(err, &pe) {
			failed.Code = pe.Code
			failed.DeclineCode = pe.DeclineCode
			if pe.Message != "" {
				failed.Message = pe.Message
			}
		}
		log.WithError(err).WithField("decline_code", failed.DeclineCode).Info("payment confirmation failed")
		return nil, failed
	}

	if err := paymentStatusError(conf); err != nil {
		log.WithFields(log.Fields{
			"payment_id": conf.ID,
			"status":     conf.Status,
		}).Info("payment not settled")
		return &conf, err
	}
	log.WithField("payment_id", conf.ID).Info("payment confirmed")
	return &conf, nil
}

// paymentStatusError maps an intent status that is not succeeded to the error
// the caller sees: failed for canceled and requires_payment_method, pending
// for everything else.
func paymentStatusError(conf processor.Confirmation) error {
	switch {
	case conf.Succeeded():
		return nil
	case conf.Failed():
		return &PaymentFailedError{
			Code:    conf.Status,
			Message: "Your payment could not be completed. Please try another payment method.",
		}
	default:
		return &PaymentPendingError{PaymentID: conf.ID, Status: conf.Status}
	}
}
