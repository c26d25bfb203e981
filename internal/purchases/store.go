package purchases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
)

var (
	// ErrAlreadyExists is returned by Insert when a record for the payment id exists.
	ErrAlreadyExists = errors.New("purchase already exists")
	// ErrStatusMismatch is returned when a conditional status transition fails.
	ErrStatusMismatch = errors.New("status mismatch/conditional failed")
)

// Store encapsulates operations on the purchases table.
type Store struct {
	client     aws.DynamoDBAPI
	tableName  string
	emailIndex string
	nowFunc    func() time.Time
}

// NewStore creates a new purchases Store. emailIndex is the GSI on customer_email.
func NewStore(client aws.DynamoDBAPI, tableName, emailIndex string) *Store {
	return &Store{
		client:     client,
		tableName:  tableName,
		emailIndex: emailIndex,
		nowFunc:    time.Now,
	}
}

// Insert writes a new purchase record. It never overwrites: a second insert for the
// same payment id returns ErrAlreadyExists.
func (s *Store) Insert(ctx context.Context, p Purchase) error {
	now := s.nowFunc().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	item, err := attributevalue.MarshalMap(p)
	if err != nil {
		return fmt.Errorf("marshal purchase: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:           &s.tableName,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(payment_id)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get fetches a purchase by payment_id. Returns (nil, nil) if not found.
func (s *Store) Get(ctx context.Context, paymentID string) (*Purchase, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName:      &s.tableName,
		Key:            paymentKey(paymentID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var p Purchase
	if err := attributevalue.UnmarshalMap(out.Item, &p); err != nil {
		return nil, fmt.Errorf("unmarshal purchase: %w", err)
	}
	return &p, nil
}

// ListByCustomerEmail returns the customer's purchases, newest first.
func (s *Store) ListByCustomerEmail(ctx context.Context, email string) ([]Purchase, error) {
	input := &dyn.QueryInput{
		TableName:              &s.tableName,
		IndexName:              &s.emailIndex,
		KeyConditionExpression: awsString("customer_email = :e"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":e": &types.AttributeValueMemberS{Value: email},
		},
	}

	var result []Purchase
	for {
		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, fmt.Errorf("query purchases by email: %w", err)
		}
		var page []Purchase
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &page); err != nil {
			return nil, fmt.Errorf("unmarshal purchases: %w", err)
		}
		result = append(result, page...)
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// MarkCompleted stores the provisioned eSIM and moves the record pending -> completed.
// Returns ErrStatusMismatch if the record is missing or not pending.
func (s *Store) MarkCompleted(ctx context.Context, paymentID string, esim ESIM) error {
	esimAV, err := attributevalue.Marshal(esim)
	if err != nil {
		return fmt.Errorf("marshal esim: %w", err)
	}
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      paymentKey(paymentID),
		UpdateExpression:         awsString("SET #s = :new, esim_data = :esim, updated_at = :ua"),
		ConditionExpression:      awsString("#s = :expected"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new":      &types.AttributeValueMemberS{Value: StatusCompleted},
			":expected": &types.AttributeValueMemberS{Value: StatusPending},
			":esim":     esimAV,
			":ua":       &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	}
	return s.update(ctx, input)
}

// MarkRefunded moves the record to refunded from any other status.
// Returns ErrStatusMismatch if the record is missing or already refunded.
func (s *Store) MarkRefunded(ctx context.Context, paymentID string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName:                &s.tableName,
		Key:                      paymentKey(paymentID),
		UpdateExpression:         awsString("SET #s = :new, updated_at = :ua"),
		ConditionExpression:      awsString("attribute_exists(payment_id) AND #s <> :new"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":new": &types.AttributeValueMemberS{Value: StatusRefunded},
			":ua":  &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
		},
	}
	return s.update(ctx, input)
}

func (s *Store) update(ctx context.Context, input *dyn.UpdateItemInput) error {
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStatusMismatch
		}
		return fmt.Errorf("update item: %w", err)
	}
	return nil
}

func paymentKey(paymentID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"payment_id": &types.AttributeValueMemberS{Value: paymentID},
	}
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
