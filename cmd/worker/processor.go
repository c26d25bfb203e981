package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/checkout"
)

// Processor replays purchase completions that the API could not write.
type Processor struct {
	store checkout.PurchaseStore
}

// NewProcessor creates a worker processor over the purchase store.
func NewProcessor(store checkout.PurchaseStore) *Processor {
	return &Processor{store: store}
}

// Handle receives an SQS batch event and processes each message.
func (p *Processor) Handle(ctx context.Context, ev events.SQSEvent) error {
	log.WithField("count", len(ev.Records)).Debug("received reconcile messages")
	for _, rec := range ev.Records {
		if err := p.processMessage(ctx, rec); err != nil {
			// Return error: Lambda will retry. If failed too many times, message goes to DLQ.
			log.WithError(err).WithField("message_id", rec.MessageId).Error("reconcile message failed")
			return err
		}
	}
	return nil
}

func (p *Processor) processMessage(ctx context.Context, rec events.SQSMessage) error {
	var msg checkout.ReconcileMessage
	if err := json.Unmarshal([]byte(rec.Body), &msg); err != nil {
		return fmt.Errorf("invalid message body: %w", err)
	}
	if msg.CorrelationID == "" {
		if attr, ok := rec.MessageAttributes["correlation_id"]; ok && attr.StringValue != nil {
			msg.CorrelationID = *attr.StringValue
		}
	}

	log.WithFields(log.Fields{
		"payment_id":     msg.PaymentID,
		"package_id":     msg.PackageID,
		"correlation_id": msg.CorrelationID,
	}).Info("reconciling purchase")

	return checkout.ReplayReconcile(ctx, p.store, msg)
}
