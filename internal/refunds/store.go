package refunds

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	dyn "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/imrishuroy/go-esim-checkout/internal/aws"
)

var (
	// ErrAlreadyExists is returned by Create when an active refund exists for the payment id.
	ErrAlreadyExists = errors.New("refund already exists")
	// ErrStaleAttempt is returned by UpdateResult when a newer attempt replaced the record.
	ErrStaleAttempt = errors.New("refund attempt superseded")
)

// Store persists refund records in DynamoDB.
type Store struct {
	client    aws.DynamoDBAPI
	tableName string
	nowFunc   func() time.Time
}

// NewStore returns a refunds Store bound to tableName.
func NewStore(client aws.DynamoDBAPI, tableName string) *Store {
	return &Store{
		client:    client,
		tableName: tableName,
		nowFunc:   time.Now,
	}
}

// Create writes a new refund attempt. It succeeds when no refund exists for the
// payment id or the previous attempt failed; otherwise it returns ErrAlreadyExists.
func (s *Store) Create(ctx context.Context, r Refund) error {
	now := s.nowFunc().UTC()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = StatusPending
	}

	item, err := attributevalue.MarshalMap(r)
	if err != nil {
		return fmt.Errorf("marshal refund: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dyn.PutItemInput{
		TableName:                &s.tableName,
		Item:                     item,
		ConditionExpression:      awsString("attribute_not_exists(payment_id) OR #s = :failed"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":failed": &types.AttributeValueMemberS{Value: StatusFailed},
		},
	})
	if err != nil {
		var sc smithy.APIError
		if errors.As(err, &sc) && sc.ErrorCode() == "ConditionalCheckFailedException" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put item: %w", err)
	}
	return nil
}

// Get retrieves the refund for a payment id. If not found, returns (nil, nil).
func (s *Store) Get(ctx context.Context, paymentID string) (*Refund, error) {
	out, err := s.client.GetItem(ctx, &dyn.GetItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"payment_id": &types.AttributeValueMemberS{Value: paymentID},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var r Refund
	if err := attributevalue.UnmarshalMap(out.Item, &r); err != nil {
		return nil, fmt.Errorf("unmarshal refund: %w", err)
	}
	return &r, nil
}

// UpdateResult records the processor outcome for attempt refundID. processorRefundID
// may be empty when the processor call failed; note carries the failure detail.
func (s *Store) UpdateResult(ctx context.Context, paymentID, refundID, processorRefundID, status string, amountMinor int64, note string) error {
	now := s.nowFunc().UTC()
	input := &dyn.UpdateItemInput{
		TableName: &s.tableName,
		Key: map[string]types.AttributeValue{
			"payment_id": &types.AttributeValueMemberS{Value: paymentID},
		},
		UpdateExpression:         awsString("SET #s = :st, processor_refund_id = :prid, amount = :amt, note = :n, updated_at = :ua"),
		ConditionExpression:      awsString("refund_id = :rid"),
		ExpressionAttributeNames: map[string]string{"#s": "status"},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":st":   &types.AttributeValueMemberS{Value: status},
			":prid": &types.AttributeValueMemberS{Value: processorRefundID},
			":amt":  &types.AttributeValueMemberN{Value: strconv.FormatInt(amountMinor, 10)},
			":n":    &types.AttributeValueMemberS{Value: note},
			":ua":   &types.AttributeValueMemberS{Value: now.Format(time.RFC3339Nano)},
			":rid":  &types.AttributeValueMemberS{Value: refundID},
		},
		ReturnValues: types.ReturnValueUpdatedNew,
	}
	_, err := s.client.UpdateItem(ctx, input)
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrStaleAttempt
		}
		return fmt.Errorf("update item (refund result): %w", err)
	}
	return nil
}

func awsString(s string) *string { return &s }

func awsBool(b bool) *bool { return &b }
