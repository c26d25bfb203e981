package processor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// refundReason is the only Stripe refund reason used; the free-text reason travels in metadata.
const refundReason = "requested_by_customer"

// Stripe implements the processor contract against the Stripe API.
type Stripe struct {
	api *client.API
}

// NewStripe returns a Stripe processor authenticated with secretKey.
func NewStripe(secretKey string) *Stripe {
	sc := &client.API{}
	sc.Init(secretKey, nil)
	return &Stripe{api: sc}
}

// CreateIntent opens a payment intent with automatic payment methods enabled.
func (s *Stripe) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return Intent{}, wrapStripeError("create payment intent", err)
	}
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// ConfirmPayment confirms the intent identified by clientSecret with paymentMethodID.
func (s *Stripe) ConfirmPayment(ctx context.Context, clientSecret string, billing BillingDetails, paymentMethodID string) (Confirmation, error) {
	intentID, err := IntentIDFromClientSecret(clientSecret)
	if err != nil {
		return Confirmation{}, &Error{Code: "invalid_client_secret", Message: err.Error(), Err: err}
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
	}
	params.Context = ctx
	if billing.Email != "" {
		params.ReceiptEmail = stripe.String(billing.Email)
	}
	params.AddMetadata("billing_name", billing.Name)
	if billing.Phone != "" {
		params.AddMetadata("billing_phone", billing.Phone)
	}

	pi, err := s.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return Confirmation{}, wrapStripeError("confirm payment intent", err)
	}
	return Confirmation{ID: pi.ID, Status: string(pi.Status)}, nil
}

// RetrieveIntent reads the current status of a payment intent from Stripe.
func (s *Stripe) RetrieveIntent(ctx context.Context, intentID string) (Confirmation, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := s.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Confirmation{}, wrapStripeError("retrieve payment intent", err)
	}
	return Confirmation{ID: pi.ID, Status: string(pi.Status)}, nil
}

// Refund refunds a payment intent, fully when AmountMinor is zero.
func (s *Stripe) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentID),
		Reason:        stripe.String(refundReason),
	}
	params.Context = ctx
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	if req.Reason != "" {
		params.AddMetadata("reason", req.Reason)
	}
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	r, err := s.api.Refunds.New(params)
	if err != nil {
		return RefundResult{}, wrapStripeError("create refund", err)
	}
	return RefundResult{ID: r.ID, Status: string(r.Status), AmountMinor: r.Amount}, nil
}

func wrapStripeError(op string, err error) error {
	var se *stripe.Error
	if errors.As(err, &se) {
		return &Error{
			Code:        string(se.Code),
			DeclineCode: string(se.DeclineCode),
			Message:     se.Msg,
			HTTPStatus:  se.HTTPStatusCode,
			Err:         fmt.Errorf("%s: %w", op, err),
		}
	}
	return &Error{Message: strings.TrimSpace(err.Error()), Err: fmt.Errorf("%s: %w", op, err)}
}
