package purchases

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

// Purchase statuses. A record only ever moves pending -> completed, pending -> refunded
// or completed -> refunded.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusRefunded  = "refunded"
)

// Purchase is the durable record threading every stage of a purchase attempt.
// payment_id is assigned by the payment processor and is the only correlation key.
type Purchase struct {
	PaymentID     string    `dynamodbav:"payment_id" json:"payment_id"` // PK
	CustomerEmail string    `dynamodbav:"customer_email" json:"customer_email"`
	CustomerName  string    `dynamodbav:"customer_name" json:"customer_name"`
	CustomerPhone string    `dynamodbav:"customer_phone,omitempty" json:"customer_phone,omitempty"`
	PackageID     string    `dynamodbav:"package_id" json:"package_id"`
	PackageName   string    `dynamodbav:"package_name" json:"package_name"`
	AmountPaid    Amount    `dynamodbav:"amount_paid" json:"amount_paid"` // major currency units
	Currency      string    `dynamodbav:"currency" json:"currency"`
	ESIMData      *ESIM     `dynamodbav:"esim_data" json:"esim_data"` // nil until reconciled
	Status        string    `dynamodbav:"status" json:"status"`
	CreatedAt     time.Time `dynamodbav:"created_at" json:"created_at"`
	UpdatedAt     time.Time `dynamodbav:"updated_at" json:"updated_at"`
}

// ESIM is the reseller-issued profile stored on a completed purchase.
type ESIM struct {
	ICCID        string                 `dynamodbav:"iccid" json:"iccid"`
	QRCodeText   string                 `dynamodbav:"qr_code_text,omitempty" json:"qr_code_text,omitempty"`
	SMDPAddress  string                 `dynamodbav:"smdp_address,omitempty" json:"smdp_address,omitempty"`
	MatchingID   string                 `dynamodbav:"matching_id,omitempty" json:"matching_id,omitempty"`
	Expiry       string                 `dynamodbav:"expiry,omitempty" json:"expiry,omitempty"`
	DataQuantity string                 `dynamodbav:"data_quantity,omitempty" json:"data_quantity,omitempty"`
	Raw          map[string]interface{} `dynamodbav:"raw,omitempty" json:"raw,omitempty"`
}

// Value stores the payload as JSON (esim_data jsonb column).
func (e ESIM) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads a JSON payload.
func (e *ESIM) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, e)
	case string:
		return json.Unmarshal([]byte(v), e)
	default:
		return fmt.Errorf("esim: unsupported scan type %T", src)
	}
}

// Amount is a decimal money amount in major currency units.
type Amount struct {
	decimal.Decimal
}

// NewAmount wraps d.
func NewAmount(d decimal.Decimal) Amount { return Amount{Decimal: d} }

// MarshalDynamoDBAttributeValue stores the amount as a DynamoDB number.
func (a Amount) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: a.Decimal.String()}, nil
}

// UnmarshalDynamoDBAttributeValue reads a number (or a numeric string) attribute.
func (a *Amount) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var raw string
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		raw = v.Value
	case *types.AttributeValueMemberS:
		raw = v.Value
	case *types.AttributeValueMemberNULL:
		a.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("amount: unsupported attribute type %T", av)
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	a.Decimal = d
	return nil
}
