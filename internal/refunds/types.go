package refunds

import "time"

// Refund statuses. Processor-reported statuses (succeeded, pending, failed,
// requires_action, canceled) are stored verbatim once known.
const (
	StatusPending = "pending"
	StatusFailed  = "failed"
)

// Refund is the compensation record for a purchase. There is at most one active
// refund per payment id; a refund whose processor call failed may be re-attempted.
type Refund struct {
	PaymentID         string    `dynamodbav:"payment_id" json:"payment_id"` // PK
	RefundID          string    `dynamodbav:"refund_id" json:"refund_id"`   // attempt id, also the processor idempotency key
	ProcessorRefundID string    `dynamodbav:"processor_refund_id,omitempty" json:"processor_refund_id,omitempty"`
	AmountMinor       int64     `dynamodbav:"amount" json:"amount"` // minor currency units
	Currency          string    `dynamodbav:"currency,omitempty" json:"currency,omitempty"`
	Reason            string    `dynamodbav:"reason" json:"reason"`
	Status            string    `dynamodbav:"status" json:"status"`
	Note              string    `dynamodbav:"note,omitempty" json:"note,omitempty"`
	CreatedAt         time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt         time.Time `dynamodbav:"updated_at" json:"updated_at"`
}
