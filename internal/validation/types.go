package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID accepts either a JSON string or a JSON number (package ids arrive as both).
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id must be a string or a number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Customer is the buyer or billing identity.
type Customer struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name" validate:"required"`
	Phone string `json:"phone,omitempty" validate:"omitempty,max=32"`
}

// CreateIntentRequest is the payload for POST /v1/payment-intents.
type CreateIntentRequest struct {
	Amount      int64    `json:"amount" validate:"required,gt=0"` // minor units
	Currency    string   `json:"currency,omitempty" validate:"omitempty,len=3,alpha"`
	Customer    Customer `json:"customer" validate:"required"`
	PackageID   ID       `json:"package_id" validate:"required"`
	PackageName string   `json:"package_name" validate:"max=200"`
}

// ConfirmRequest is the payload for POST /v1/payments/confirm.
type ConfirmRequest struct {
	ClientSecret    string   `json:"client_secret" validate:"required"`
	Billing         Customer `json:"billing" validate:"required"`
	PaymentMethodID string   `json:"payment_method_id" validate:"required"`
}

// ProvisionRequest is the payload for POST /v1/purchases/:payment_id/provision.
type ProvisionRequest struct {
	PackageID ID        `json:"package_id"`
	Customer  *Customer `json:"customer,omitempty" validate:"omitempty"`
}

// CheckoutRequest is the payload for POST /v1/purchases/checkout.
type CheckoutRequest struct {
	ClientSecret    string    `json:"client_secret" validate:"required"`
	Billing         Customer  `json:"billing" validate:"required"`
	PaymentMethodID string    `json:"payment_method_id" validate:"required"`
	PackageID       ID        `json:"package_id" validate:"required"`
	Customer        *Customer `json:"customer,omitempty" validate:"omitempty"`
}

// RefundRequest is the payload for POST /v1/refunds.
type RefundRequest struct {
	PaymentID string `json:"payment_id" validate:"required"`
	Reason    string `json:"reason,omitempty" validate:"max=500"`
	// Amount is in minor units; zero refunds the amount paid.
	Amount int64 `json:"amount,omitempty" validate:"omitempty,gt=0"`
}
