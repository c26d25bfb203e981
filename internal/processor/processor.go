// Package processor is the payment processor boundary: intent creation, payment
// confirmation and refunds. Amounts crossing this boundary are always minor units.
package processor

import (
	"errors"
	"strings"
)

// Payment intent statuses the workflow distinguishes.
const (
	StatusSucceeded             = "succeeded"
	StatusCanceled              = "canceled"
	StatusRequiresPaymentMethod = "requires_payment_method"
)

// ErrInvalidClientSecret is returned when a client secret does not carry an intent id.
var ErrInvalidClientSecret = errors.New("invalid client secret")

// IntentRequest opens a payment intent.
type IntentRequest struct {
	AmountMinor    int64
	Currency       string
	Metadata       map[string]string
	IdempotencyKey string
}

// Intent is an opened payment intent.
type Intent struct {
	ID           string
	ClientSecret string
}

// BillingDetails accompany a confirmation.
type BillingDetails struct {
	Email string
	Name  string
	Phone string
}

// Confirmation is the processor-reported outcome of a confirm call.
type Confirmation struct {
	ID     string
	Status string
}

// Succeeded reports whether the payment reached the terminal succeeded state.
// The comparison is case-insensitive.
func (c Confirmation) Succeeded() bool {
	return strings.EqualFold(strings.TrimSpace(c.Status), StatusSucceeded)
}

// Failed reports whether the payment cannot complete without a new payment
// method. requires_action, requires_capture and processing are not failures.
func (c Confirmation) Failed() bool {
	st := strings.TrimSpace(c.Status)
	return strings.EqualFold(st, StatusCanceled) || strings.EqualFold(st, StatusRequiresPaymentMethod)
}

// RefundRequest refunds a captured payment. AmountMinor 0 refunds the full amount.
type RefundRequest struct {
	PaymentID      string
	AmountMinor    int64
	Reason         string
	IdempotencyKey string
}

// RefundResult is the processor's view of a created refund.
type RefundResult struct {
	ID          string
	Status      string
	AmountMinor int64
}

// Error is a processor-level failure (declined card, invalid request, network).
type Error struct {
	Code        string
	DeclineCode string
	Message     string
	HTTPStatus  int
	Err         error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return e.Code + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// IntentIDFromClientSecret extracts the intent id from a "<id>_secret_<nonce>" client secret.
func IntentIDFromClientSecret(clientSecret string) (string, error) {
	idx := strings.Index(clientSecret, "_secret_")
	if idx <= 0 {
		return "", ErrInvalidClientSecret
	}
	return clientSecret[:idx], nil
}
