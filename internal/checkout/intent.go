package checkout

import (
	"context"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/alert"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/processor"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
)

// Customer identifies the buyer.
type Customer struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// IntentInput opens a purchase attempt. AmountMinor is in minor currency units.
type IntentInput struct {
	AmountMinor    int64
	Currency       string
	Customer       Customer
	PackageID      string
	PackageName    string
	IdempotencyKey string
}

// IntentResult is returned to the client to drive confirmation.
type IntentResult struct {
	ClientSecret string `json:"client_secret"`
	PaymentID    string `json:"payment_id"`
}

func (s *Service) validateIntent(in IntentInput) error {
	verr := &ValidationError{}
	if in.AmountMinor <= 0 {
		verr.add("amount", "must be greater than 0")
	}
	if err := s.validate.Var(strings.TrimSpace(in.Customer.Email), "required,email"); err != nil {
		verr.add("customer.email", "must be a valid email address")
	}
	if strings.TrimSpace(in.Customer.Name) == "" {
		verr.add("customer.name", "required")
	}
	if strings.TrimSpace(in.PackageID) == "" {
		verr.add("package_id", "required")
	}
	if err := s.validate.Var(NormalizeCurrency(in.Currency), "len=3,alpha"); err != nil {
		verr.add("currency", "must be a 3-letter ISO code")
	}
	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

// CreateIntent opens a processor payment intent and records a pending purchase
// keyed by the processor's payment id.
func (s *Service) CreateIntent(ctx context.Context, in IntentInput) (*IntentResult, error) {
	if err := s.validateIntent(in); err != nil {
		return nil, err
	}
	currency := NormalizeCurrency(in.Currency)
	email := strings.TrimSpace(in.Customer.Email)

	req := processor.IntentRequest{
		AmountMinor: in.AmountMinor,
		Currency:    currency,
		Metadata: map[string]string{
			"customer_email": email,
			"customer_name":  in.Customer.Name,
			"customer_phone": in.Customer.Phone,
			"package_id":     in.PackageID,
			"package_name":   in.PackageName,
		},
		IdempotencyKey: in.IdempotencyKey,
	}
	var intent processor.Intent
	if err := s.call(ctx, func(ctx context.Context) error {
		var err error
		intent, err = s.processor.CreateIntent(ctx, req)
		return err
	}); err != nil {
		return nil, &ProcessorError{Op: "create payment intent", Err: err}
	}

	now := s.nowFunc().UTC()
	p := purchases.Purchase{
		PaymentID:     intent.ID,
		CustomerEmail: email,
		CustomerName:  strings.TrimSpace(in.Customer.Name),
		CustomerPhone: in.Customer.Phone,
		PackageID:     in.PackageID,
		PackageName:   in.PackageName,
		AmountPaid:    purchases.NewAmount(MinorToMajor(in.AmountMinor, currency)),
		Currency:      currency,
		Status:        purchases.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err := s.call(ctx, func(ctx context.Context) error {
		return s.purchases.Insert(ctx, p)
	})
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"payment_id":   intent.ID,
			"package_id":   in.PackageID,
			"amount_minor": in.AmountMinor,
			"currency":     currency,
		}).Error("intent created without purchase record")
		s.count(ctx, aws.MetricIntentsWithoutRecord)
		s.raise(ctx, alert.Alert{
			Subject:   "intent created without purchase record",
			PaymentID: intent.ID,
			PackageID: in.PackageID,
			Err:       err,
		})
		return nil, ErrIntentNotRecorded
	}

	log.WithFields(log.Fields{
		"payment_id": intent.ID,
		"package_id": in.PackageID,
	}).Info("payment intent created")
	return &IntentResult{ClientSecret: intent.ClientSecret, PaymentID: intent.ID}, nil
}
