package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-esim-checkout/internal/refunds"
)

// RefundRepo implements the refund store on PostgreSQL. payment_id is the
// primary key, so there is at most one active refund per purchase.
type RefundRepo struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewRefundRepo(db *sql.DB) *RefundRepo {
	return &RefundRepo{db: db, nowFunc: time.Now}
}

// Create inserts a refund attempt. A failed attempt is replaced; any other
// existing refund returns refunds.ErrAlreadyExists.
func (r *RefundRepo) Create(ctx context.Context, rf refunds.Refund) error {
	now := r.nowFunc().UTC()
	if rf.CreatedAt.IsZero() {
		rf.CreatedAt = now
	}
	rf.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO refunds (payment_id, refund_id, processor_refund_id, amount, currency, reason, status, note, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (payment_id) DO UPDATE SET
			refund_id = EXCLUDED.refund_id,
			processor_refund_id = EXCLUDED.processor_refund_id,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			reason = EXCLUDED.reason,
			status = EXCLUDED.status,
			note = EXCLUDED.note,
			created_at = EXCLUDED.created_at,
			updated_at = EXCLUDED.updated_at
		WHERE refunds.status = $11`,
		rf.PaymentID, rf.RefundID, rf.ProcessorRefundID, rf.AmountMinor, rf.Currency, rf.Reason,
		rf.Status, rf.Note, rf.CreatedAt, rf.UpdatedAt, refunds.StatusFailed,
	)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return refunds.ErrAlreadyExists
	}
	return nil
}

func (r *RefundRepo) Get(ctx context.Context, paymentID string) (*refunds.Refund, error) {
	var rf refunds.Refund
	err := r.db.QueryRowContext(ctx, `
		SELECT payment_id, refund_id, processor_refund_id, amount, currency, reason, status, note, created_at, updated_at
		FROM refunds WHERE payment_id = $1`, paymentID,
	).Scan(&rf.PaymentID, &rf.RefundID, &rf.ProcessorRefundID, &rf.AmountMinor, &rf.Currency, &rf.Reason,
		&rf.Status, &rf.Note, &rf.CreatedAt, &rf.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get refund: %w", err)
	}
	rf.CreatedAt = rf.CreatedAt.UTC()
	rf.UpdatedAt = rf.UpdatedAt.UTC()
	return &rf, nil
}

// UpdateResult records the processor outcome for attempt refundID only.
func (r *RefundRepo) UpdateResult(ctx context.Context, paymentID, refundID, processorRefundID, status string, amountMinor int64, note string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE refunds SET status = $3, processor_refund_id = $4, amount = $5, note = $6, updated_at = $7
		WHERE payment_id = $1 AND refund_id = $2`,
		paymentID, refundID, status, processorRefundID, amountMinor, note, r.nowFunc().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update refund result: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return refunds.ErrStaleAttempt
	}
	return nil
}
