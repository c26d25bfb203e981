package checkout

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrPurchaseNotFound is returned when no record exists for a payment id.
	ErrPurchaseNotFound = errors.New("purchase not found")
	// ErrPurchaseRefunded is returned when provisioning or refunding a refunded purchase.
	ErrPurchaseRefunded = errors.New("purchase already refunded")
	// ErrProvisioningInProgress is returned when another request holds the provisioning lease.
	ErrProvisioningInProgress = errors.New("provisioning already in progress")
	// ErrRefundInProgress is returned when an active refund exists for the payment id.
	ErrRefundInProgress = errors.New("refund already in progress")
	// ErrIntentNotRecorded is returned when the processor opened an intent but the
	// purchase record could not be written.
	ErrIntentNotRecorded = errors.New("payment intent created without purchase record")
)

// ValidationError reports bad input. No side effect has happened.
type ValidationError struct {
	Fields map[string]string
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) add(field, reason string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	e.Fields[field] = reason
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// ProcessorError is a processor failure before capture. The user may retry.
type ProcessorError struct {
	Op  string
	Err error
}

func (e *ProcessorError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *ProcessorError) Unwrap() error { return e.Err }

// PaymentFailedError is a processor-level confirmation failure (decline, network).
type PaymentFailedError struct {
	Code        string
	DeclineCode string
	Message     string
	Err         error
}

func (e *PaymentFailedError) Error() string { return "payment failed: " + e.Message }
func (e *PaymentFailedError) Unwrap() error { return e.Err }

// PaymentPendingError is a confirmation that did not reach "succeeded".
type PaymentPendingError struct {
	PaymentID string
	Status    string
}

func (e *PaymentPendingError) Error() string {
	return fmt.Sprintf("payment %s pending: status %s", e.PaymentID, e.Status)
}

// ProvisioningFailedError is a reseller failure after capture. Compensation has
// been attempted; RefundErr is set when it failed too.
type ProvisioningFailedError struct {
	PaymentID       string
	RefundInitiated bool
	Refund          *RefundResult
	RefundErr       error
	Err             error
}

func (e *ProvisioningFailedError) Error() string {
	return fmt.Sprintf("provisioning failed for %s: %v", e.PaymentID, e.Err)
}
func (e *ProvisioningFailedError) Unwrap() error { return e.Err }

// ReconciliationError is a storage failure after a successful provisioning.
// It is never shown to the user.
type ReconciliationError struct {
	PaymentID string
	PackageID string
	Err       error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("reconcile purchase %s: %v", e.PaymentID, e.Err)
}
func (e *ReconciliationError) Unwrap() error { return e.Err }

// RefundError is a failed compensation. It is not retried automatically.
type RefundError struct {
	PaymentID string
	RefundID  string
	Err       error
}

func (e *RefundError) Error() string {
	return fmt.Sprintf("refund for %s failed: %v", e.PaymentID, e.Err)
}
func (e *RefundError) Unwrap() error { return e.Err }
