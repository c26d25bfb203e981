package purchases

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// mockDynamo is a single-table in-memory mock keyed by payment_id. It understands
// exactly the condition expressions the Store issues.
type mockDynamo struct {
	mu    sync.Mutex
	items map[string]map[string]types.AttributeValue
	err   error
}

func newMockDynamo() *mockDynamo {
	return &mockDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func keyOf(m map[string]types.AttributeValue) string {
	return m["payment_id"].(*types.AttributeValueMemberS).Value
}

func (m *mockDynamo) PutItem(ctx context.Context, params *dyn.PutItemInput, optFns ...func(*dyn.Options)) (*dyn.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	pk := keyOf(params.Item)
	if params.ConditionExpression != nil && *params.ConditionExpression == "attribute_not_exists(payment_id)" {
		if _, exists := m.items[pk]; exists {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	m.items[pk] = params.Item
	return &dyn.PutItemOutput{}, nil
}

func (m *mockDynamo) GetItem(ctx context.Context, params *dyn.GetItemInput, optFns ...func(*dyn.Options)) (*dyn.GetItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[keyOf(params.Key)]
	if !ok {
		return &dyn.GetItemOutput{}, nil
	}
	return &dyn.GetItemOutput{Item: item}, nil
}

func (m *mockDynamo) UpdateItem(ctx context.Context, params *dyn.UpdateItemInput, optFns ...func(*dyn.Options)) (*dyn.UpdateItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	item, exists := m.items[keyOf(params.Key)]
	vals := params.ExpressionAttributeValues
	cond := ""
	if params.ConditionExpression != nil {
		cond = *params.ConditionExpression
	}
	current := ""
	if exists {
		if st, ok := item["status"].(*types.AttributeValueMemberS); ok {
			current = st.Value
		}
	}
	switch cond {
	case "#s = :expected":
		if !exists || current != vals[":expected"].(*types.AttributeValueMemberS).Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	case "attribute_exists(payment_id) AND #s <> :new":
		if !exists || current == vals[":new"].(*types.AttributeValueMemberS).Value {
			return nil, &types.ConditionalCheckFailedException{}
		}
	}
	if !exists {
		return nil, errors.New("item not found")
	}
	if v, ok := vals[":new"]; ok {
		item["status"] = v
	}
	if v, ok := vals[":esim"]; ok {
		item["esim_data"] = v
	}
	if v, ok := vals[":ua"]; ok {
		item["updated_at"] = v
	}
	return &dyn.UpdateItemOutput{Attributes: item}, nil
}

func (m *mockDynamo) Query(ctx context.Context, params *dyn.QueryInput, optFns ...func(*dyn.Options)) (*dyn.QueryOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	email := params.ExpressionAttributeValues[":e"].(*types.AttributeValueMemberS).Value
	var items []map[string]types.AttributeValue
	for _, it := range m.items {
		if v, ok := it["customer_email"].(*types.AttributeValueMemberS); ok && v.Value == email {
			items = append(items, it)
		}
	}
	return &dyn.QueryOutput{Items: items}, nil
}

func samplePurchase(id, email string, created time.Time) Purchase {
	return Purchase{
		PaymentID:     id,
		CustomerEmail: email,
		CustomerName:  "A B",
		PackageID:     "42",
		PackageName:   "Japan 5GB",
		AmountPaid:    NewAmount(decimal.RequireFromString("19.99")),
		Currency:      "usd",
		Status:        StatusPending,
		CreatedAt:     created,
	}
}

func TestInsert_Get_RoundTrip(t *testing.T) {
	mock := newMockDynamo()
	store := NewStore(mock, "purchases", "customer_email-index")
	ctx := context.Background()

	if err := store.Insert(ctx, samplePurchase("pi_1", "a@b.com", time.Time{})); err != nil {
		t.Fatalf("Insert error: %v", err)
	}

	got, err := store.Get(ctx, "pi_1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected record, got nil")
	}
	if got.Status != StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}
	if got.ESIMData != nil {
		t.Fatalf("expected nil esim_data, got %+v", got.ESIMData)
	}
	if !got.AmountPaid.Equal(decimal.RequireFromString("19.99")) {
		t.Fatalf("amount mismatch: %s", got.AmountPaid)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not set")
	}
	if _, ok := mock.items["pi_1"]["amount_paid"].(*types.AttributeValueMemberN); !ok {
		t.Fatalf("amount_paid should be stored as a number")
	}
}

func TestInsert_DuplicatePaymentID(t *testing.T) {
	store := NewStore(newMockDynamo(), "purchases", "idx")
	ctx := context.Background()

	if err := store.Insert(ctx, samplePurchase("pi_dup", "a@b.com", time.Time{})); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := store.Insert(ctx, samplePurchase("pi_dup", "a@b.com", time.Time{}))
	if !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := NewStore(newMockDynamo(), "purchases", "idx")
	got, err := store.Get(context.Background(), "missing")
	if err != nil || got != nil {
		t.Fatalf("expected (nil, nil), got (%v, %v)", got, err)
	}
}

func TestMarkCompleted_ThenRefunded(t *testing.T) {
	store := NewStore(newMockDynamo(), "purchases", "idx")
	ctx := context.Background()
	if err := store.Insert(ctx, samplePurchase("pi_2", "a@b.com", time.Time{})); err != nil {
		t.Fatalf("insert: %v", err)
	}

	esim := ESIM{ICCID: "8988", QRCodeText: "LPA:1$smdp$match", Raw: map[string]interface{}{"id": "x"}}
	if err := store.MarkCompleted(ctx, "pi_2", esim); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	got, _ := store.Get(ctx, "pi_2")
	if got.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", got.Status)
	}
	if got.ESIMData == nil || got.ESIMData.ICCID != "8988" {
		t.Fatalf("esim_data not stored: %+v", got.ESIMData)
	}

	// completed records cannot be completed twice
	if err := store.MarkCompleted(ctx, "pi_2", esim); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch on second complete, got %v", err)
	}

	if err := store.MarkRefunded(ctx, "pi_2"); err != nil {
		t.Fatalf("MarkRefunded: %v", err)
	}
	if err := store.MarkRefunded(ctx, "pi_2"); !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch on second refund, got %v", err)
	}
}

func TestMarkCompleted_Missing(t *testing.T) {
	store := NewStore(newMockDynamo(), "purchases", "idx")
	err := store.MarkCompleted(context.Background(), "nope", ESIM{ICCID: "1"})
	if !errors.Is(err, ErrStatusMismatch) {
		t.Fatalf("expected ErrStatusMismatch, got %v", err)
	}
}

func TestListByCustomerEmail_NewestFirst(t *testing.T) {
	mock := newMockDynamo()
	store := NewStore(mock, "purchases", "idx")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"pi_a", "pi_b", "pi_c"} {
		p := samplePurchase(id, "a@b.com", base.Add(time.Duration(i)*time.Hour))
		item, err := attributevalue.MarshalMap(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		mock.items[id] = item
	}
	other, _ := attributevalue.MarshalMap(samplePurchase("pi_x", "x@y.com", base))
	mock.items["pi_x"] = other

	got, err := store.ListByCustomerEmail(context.Background(), "a@b.com")
	if err != nil {
		t.Fatalf("ListByCustomerEmail: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 purchases, got %d", len(got))
	}
	if got[0].PaymentID != "pi_c" || got[2].PaymentID != "pi_a" {
		t.Fatalf("unexpected order: %s, %s, %s", got[0].PaymentID, got[1].PaymentID, got[2].PaymentID)
	}
}

func TestStore_BackendError(t *testing.T) {
	mock := newMockDynamo()
	mock.err = errors.New("throttled")
	store := NewStore(mock, "purchases", "idx")

	if err := store.Insert(context.Background(), samplePurchase("pi", "a@b.com", time.Time{})); err == nil || errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected wrapped backend error, got %v", err)
	}
	if _, err := store.Get(context.Background(), "pi"); err == nil {
		t.Fatalf("expected error from Get")
	}
}
