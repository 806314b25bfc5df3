package services

import (
	"context"
	"strings"
)

// PaymentGateway is the payment processor the core charges and pays out through.
// Amounts are integers in minor currency units.
type PaymentGateway interface {
	CreateCustomer(ctx context.Context, name, email string) (string, error)
	// AttachPaymentMethod attaches the method and makes it the customer's default.
	AttachPaymentMethod(ctx context.Context, customerID, methodID string) error
	// CreatePaymentIntent returns the existing intent when params.IdempotencyKey
	// was already used.
	CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error)
	RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
	Confirm(ctx context.Context, intentID string) (*PaymentIntent, error)
	RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error)
	RetrievePaymentMethod(ctx context.Context, methodID string) (*CardDetails, error)
}

// PaymentIntentParams describes a charge, optionally transferred to a connected account.
type PaymentIntentParams struct {
	AmountMinor         int64
	Currency            string
	CustomerID          string
	MethodID            string
	TransferDestination string
	IdempotencyKey      string
}

// Payment intent states the core acts on.
const (
	IntentSucceeded  = "succeeded"
	IntentProcessing = "processing"
	IntentCanceled   = "canceled"
)

// PaymentIntent is the processor's view of a charge.
type PaymentIntent struct {
	ID          string
	AmountMinor int64
	Status      string
}

// Confirmable reports whether Confirm can still move the intent forward.
func (pi *PaymentIntent) Confirmable() bool {
	switch pi.Status {
	case IntentSucceeded, IntentProcessing, IntentCanceled, "requires_capture":
		return false
	}
	return true
}

// Customer is a processor customer record.
type Customer struct {
	ID                     string
	Name                   string
	Email                  string
	DefaultPaymentMethodID string
}

// CardDetails is the displayable metadata of a card.
type CardDetails struct {
	ID    string
	Brand string
	Last4 string
}

// fakeCustomerPrefix marks customers that exist only in development data.
const fakeCustomerPrefix = "fake"

// IsFakeCustomer reports whether no real money can move for this customer.
func IsFakeCustomer(customerID string) bool {
	return strings.HasPrefix(customerID, fakeCustomerPrefix)
}
