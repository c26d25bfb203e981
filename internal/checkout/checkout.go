package checkout

import "context"

// CheckoutInput confirms a payment and provisions it in one call.
type CheckoutInput struct {
	Confirm   ConfirmInput
	PackageID string
	Customer  Customer
}

// Checkout runs confirmation and, once the payment succeeded, provisioning.
// Provisioning never starts before the processor reports success.
func (s *Service) Checkout(ctx context.Context, in CheckoutInput) (*ProvisionResult, error) {
	conf, err := s.ConfirmPayment(ctx, in.Confirm)
	if err != nil {
		return nil, err
	}
	customer := in.Customer
	if customer.Email == "" {
		customer = in.Confirm.Billing
	}
	return s.Provision(ctx, ProvisionInput{
		PaymentID: conf.ID,
		PackageID: in.PackageID,
		Customer:  customer,
	})
}
