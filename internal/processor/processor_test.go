package processor

import (
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v76"
)

func TestConfirmation_Succeeded_CaseInsensitive(t *testing.T) {
	for _, status := range []string{"succeeded", "SUCCEEDED", "Succeeded", " succeeded "} {
		if !(Confirmation{Status: status}).Succeeded() {
			t.Fatalf("expected %q to count as succeeded", status)
		}
	}
	for _, status := range []string{"requires_action", "processing", "", "succeed"} {
		if (Confirmation{Status: status}).Succeeded() {
			t.Fatalf("expected %q to not count as succeeded", status)
		}
	}
}

func TestConfirmation_Failed(t *testing.T) {
	for _, status := range []string{"canceled", "requires_payment_method", "REQUIRES_PAYMENT_METHOD"} {
		if !(Confirmation{Status: status}).Failed() {
			t.Fatalf("expected %q to count as failed", status)
		}
	}
	for _, status := range []string{"succeeded", "requires_action", "requires_confirmation", "requires_capture", "processing"} {
		if (Confirmation{Status: status}).Failed() {
			t.Fatalf("expected %q to not count as failed", status)
		}
	}
}

func TestIntentIDFromClientSecret(t *testing.T) {
	id, err := IntentIDFromClientSecret("pi_3Nabc_secret_xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != "pi_3Nabc" {
		t.Fatalf("unexpected id %q", id)
	}

	for _, bad := range []string{"", "pi_123", "_secret_abc"} {
		if _, err := IntentIDFromClientSecret(bad); !errors.Is(err, ErrInvalidClientSecret) {
			t.Fatalf("expected ErrInvalidClientSecret for %q, got %v", bad, err)
		}
	}
}

func TestWrapStripeError_KeepsCodes(t *testing.T) {
	se := &stripe.Error{
		Code:           stripe.ErrorCodeCardDeclined,
		DeclineCode:    "insufficient_funds",
		Msg:            "Your card has insufficient funds.",
		HTTPStatusCode: 402,
	}
	err := wrapStripeError("confirm payment intent", se)

	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pe.Code != "card_declined" || pe.DeclineCode != "insufficient_funds" || pe.HTTPStatus != 402 {
		t.Fatalf("codes not kept: %+v", pe)
	}
	if pe.Error() != "card_declined: Your card has insufficient funds." {
		t.Fatalf("unexpected message: %s", pe.Error())
	}
	var inner *stripe.Error
	if !errors.As(err, &inner) {
		t.Fatalf("expected the stripe error to stay in the chain")
	}
}

func TestWrapStripeError_Plain(t *testing.T) {
	err := wrapStripeError("create refund", errors.New("dial tcp: timeout"))
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if pe.Code != "" || pe.Error() != "dial tcp: timeout" {
		t.Fatalf("unexpected wrap: %+v", pe)
	}
}
