package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/imrishuroy/go-esim-checkout/internal/purchases"
)

const purchaseColumns = `payment_id, customer_email, customer_name, customer_phone, package_id,
	package_name, amount_paid, currency, esim_data, status, created_at, updated_at`

// PurchaseRepo implements the purchase store on PostgreSQL.
type PurchaseRepo struct {
	db      *sql.DB
	nowFunc func() time.Time
}

func NewPurchaseRepo(db *sql.DB) *PurchaseRepo {
	return &PurchaseRepo{db: db, nowFunc: time.Now}
}

func (r *PurchaseRepo) Insert(ctx context.Context, p purchases.Purchase) error {
	now := r.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO purchases (`+purchaseColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (payment_id) DO NOTHING`,
		p.PaymentID, p.CustomerEmail, p.CustomerName, nullIfEmpty(p.CustomerPhone), p.PackageID,
		p.PackageName, p.AmountPaid.Decimal, p.Currency, p.ESIMData, p.Status, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return purchases.ErrAlreadyExists
	}
	return nil
}

func (r *PurchaseRepo) Get(ctx context.Context, paymentID string) (*purchases.Purchase, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE payment_id = $1`, paymentID)
	p, err := scanPurchase(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get purchase: %w", err)
	}
	return p, nil
}

func (r *PurchaseRepo) ListByCustomerEmail(ctx context.Context, email string) ([]purchases.Purchase, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE customer_email = $1 ORDER BY created_at DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("query purchases: %w", err)
	}
	defer rows.Close()

	var out []purchases.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PurchaseRepo) MarkCompleted(ctx context.Context, paymentID string, esim purchases.ESIM) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET esim_data = $2, status = $3, updated_at = $4
		WHERE payment_id = $1 AND status = $5`,
		paymentID, esim, purchases.StatusCompleted, r.nowFunc().UTC(), purchases.StatusPending,
	)
	if err != nil {
		return fmt.Errorf("mark purchase completed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return purchases.ErrStatusMismatch
	}
	return nil
}

func (r *PurchaseRepo) MarkRefunded(ctx context.Context, paymentID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE purchases SET status = $2, updated_at = $3
		WHERE payment_id = $1 AND status <> $2`,
		paymentID, purchases.StatusRefunded, r.nowFunc().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark purchase refunded: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return purchases.ErrStatusMismatch
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPurchase(s scanner) (*purchases.Purchase, error) {
	var p purchases.Purchase
	var phone sql.NullString
	var esimRaw []byte
	err := s.Scan(
		&p.PaymentID, &p.CustomerEmail, &p.CustomerName, &phone, &p.PackageID,
		&p.PackageName, &p.AmountPaid.Decimal, &p.Currency, &esimRaw, &p.Status, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.CustomerPhone = phone.String
	if len(esimRaw) > 0 {
		var e purchases.ESIM
		if err := json.Unmarshal(esimRaw, &e); err != nil {
			return nil, fmt.Errorf("decode esim_data: %w", err)
		}
		p.ESIMData = &e
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
