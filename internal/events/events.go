// Package events publishes purchase lifecycle events for downstream consumers
// such as the receipt mailer.
package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Event types.
const (
	TypePurchaseCompleted = "purchase.completed"
	TypePurchaseRefunded  = "purchase.refunded"
)

// PurchaseEvent is the message body, keyed by payment id.
type PurchaseEvent struct {
	Type          string          `json:"type"`
	PaymentID     string          `json:"payment_id"`
	CustomerEmail string          `json:"customer_email"`
	PackageID     string          `json:"package_id"`
	AmountPaid    decimal.Decimal `json:"amount_paid"`
	Currency      string          `json:"currency"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// Publisher sends purchase events.
type Publisher interface {
	Publish(ctx context.Context, ev PurchaseEvent) error
}

// Noop drops every event. Used when no broker is configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, ev PurchaseEvent) error { return nil }
