package checkout

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-esim-checkout/internal/alert"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
)

// ReconcileMessage carries an issued eSIM whose completion could not be written.
type ReconcileMessage struct {
	PaymentID     string         `json:"payment_id"`
	PackageID     string         `json:"package_id"`
	ESIMData      purchases.ESIM `json:"esim_data"`
	CorrelationID string         `json:"correlation_id,omitempty"`
}

// reconcile writes the eSIM onto the pending record. A failure never triggers a
// refund: the eSIM is real and billable. It is logged, counted, alerted and
// queued for a storage-only retry instead.
func (s *Service) reconcile(ctx context.Context, p *purchases.Purchase, esim purchases.ESIM) bool {
	err := s.call(ctx, func(ctx context.Context) error {
		return s.purchases.MarkCompleted(ctx, p.PaymentID, esim)
	})
	if err == nil {
		return true
	}

	rerr := &ReconciliationError{PaymentID: p.PaymentID, PackageID: p.PackageID, Err: err}
	log.WithError(rerr).WithFields(log.Fields{
		"payment_id": p.PaymentID,
		"package_id": p.PackageID,
		"iccid":      esim.ICCID,
	}).Error("purchase unreconciled")
	s.count(ctx, aws.MetricPurchasesUnreconciled)
	s.raise(ctx, alert.Alert{
		Subject:   "purchase unreconciled",
		PaymentID: p.PaymentID,
		PackageID: p.PackageID,
		Err:       err,
		Fields:    map[string]string{"iccid": esim.ICCID},
	})

	if s.queue != nil {
		msg := ReconcileMessage{
			PaymentID:     p.PaymentID,
			PackageID:     p.PackageID,
			ESIMData:      esim,
			CorrelationID: s.newID(),
		}
		attrs := map[string]string{"payment_id": p.PaymentID, "correlation_id": msg.CorrelationID}
		if qerr := s.call(ctx, func(ctx context.Context) error {
			return s.queue.SendJSON(ctx, msg, attrs)
		}); qerr != nil {
			log.WithError(qerr).WithField("payment_id", p.PaymentID).Error("failed to enqueue reconciliation")
		}
	}
	return false
}

// ReplayReconcile re-runs only the completion write for a queued message. It
// never calls the reseller or the processor. A nil return acknowledges the message.
func ReplayReconcile(ctx context.Context, store PurchaseStore, msg ReconcileMessage) error {
	if msg.PaymentID == "" {
		return errors.New("reconcile message has no payment_id")
	}
	entry := log.WithFields(log.Fields{
		"payment_id":     msg.PaymentID,
		"package_id":     msg.PackageID,
		"correlation_id": msg.CorrelationID,
	})

	p, err := store.Get(ctx, msg.PaymentID)
	if err != nil {
		return fmt.Errorf("load purchase %s: %w", msg.PaymentID, err)
	}
	if p == nil {
		return fmt.Errorf("%w: %s", ErrPurchaseNotFound, msg.PaymentID)
	}

	switch p.Status {
	case purchases.StatusCompleted:
		entry.Info("purchase already reconciled")
		return nil
	case purchases.StatusRefunded:
		entry.Error("issued esim belongs to a refunded purchase, manual review required")
		return nil
	}

	err = store.MarkCompleted(ctx, msg.PaymentID, msg.ESIMData)
	if errors.Is(err, purchases.ErrStatusMismatch) {
		// lost a race with another writer; the next delivery sees the new status
		return fmt.Errorf("purchase %s changed while reconciling: %w", msg.PaymentID, err)
	}
	if err != nil {
		return &ReconciliationError{PaymentID: msg.PaymentID, PackageID: msg.PackageID, Err: err}
	}
	entry.Info("purchase reconciled from queue")
	return nil
}
