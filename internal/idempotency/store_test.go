package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func TestCreateIfNotExists_Get_MarkDone(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 48*time.Hour)

	ctx := context.Background()
	key := "test-key-1"

	created, err := s.CreateIfNotExists(ctx, key, "hash-1")
	if err != nil {
		t.Fatalf("CreateIfNotExists error: %v", err)
	}
	if !created {
		t.Fatalf("expected created=true")
	}

	// second create should return created=false (exists)
	created2, err := s.CreateIfNotExists(ctx, key, "hash-1")
	if err != nil {
		t.Fatalf("second CreateIfNotExists error: %v", err)
	}
	if created2 {
		t.Fatalf("expected created=false on duplicate create")
	}

	rec, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected record, got nil")
	}
	if rec.Status != StatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", rec.Status)
	}
	if rec.RequestHash != "hash-1" {
		t.Fatalf("request hash mismatch: %s", rec.RequestHash)
	}

	err = s.MarkDone(ctx, key, "pi_123", "{\"payment_id\":\"pi_123\"}", 201)
	if err != nil {
		t.Fatalf("MarkDone error: %v", err)
	}

	rec, err = s.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after MarkDone: %v", err)
	}
	if rec.Status != StatusDone || rec.PaymentID != "pi_123" || rec.ResponseStatus != 201 {
		t.Fatalf("unexpected record after MarkDone: %+v", rec)
	}
	if rec.ResponseBody != "{\"payment_id\":\"pi_123\"}" {
		t.Fatalf("response_body not set correctly: %s", rec.ResponseBody)
	}
}

func TestMarkFailed_AllowsKeyReuse(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", time.Hour)
	ctx := context.Background()
	key := "retry-key"

	if _, err := s.CreateIfNotExists(ctx, key, "h"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.MarkFailed(ctx, key, "processor_error"); err != nil {
		t.Fatalf("MarkFailed error: %v", err)
	}
	item := mock.table[key]
	if st, ok := item["status"].(*types.AttributeValueMemberS); !ok || st.Value != StatusFailed {
		t.Fatalf("status not updated to FAILED, got %+v", item["status"])
	}
	if n, ok := item["note"].(*types.AttributeValueMemberS); !ok || n.Value != "processor_error" {
		t.Fatalf("note not set, got %+v", item["note"])
	}

	created, err := s.CreateIfNotExists(ctx, key, "h")
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if !created {
		t.Fatalf("expected a FAILED key to be reusable")
	}
}

func TestCreateIfNotExists_SetsTTL(t *testing.T) {
	mock := newSimpleMock()
	s := NewStore(mock, "idempotency-table", 2*time.Hour)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.nowFunc = func() time.Time { return fixed }

	if _, err := s.CreateIfNotExists(context.Background(), "k", ""); err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, _ := s.Get(context.Background(), "k")
	if rec.ExpiresAt != fixed.Add(2*time.Hour).Unix() {
		t.Fatalf("unexpected expires_at: %d", rec.ExpiresAt)
	}
}
