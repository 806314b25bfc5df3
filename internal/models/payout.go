package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payout is one seller's net share of an order.
type Payout struct {
	SellerID int64           `json:"seller_id"`
	Amount   decimal.Decimal `json:"amount"`
}

// AmountMinor is the payout in pence.
func (p Payout) AmountMinor() int64 {
	return ToMinorUnits(p.Amount)
}

// PayoutInstruction is a transfer waiting to be retried.
type PayoutInstruction struct {
	OrderID         int64     `json:"order_id"`
	OrderNumber     string    `json:"order_number"`
	SellerID        int64     `json:"seller_id"`
	AmountMinor     int64     `json:"amount_minor"`
	Currency        string    `json:"currency"`
	Destination     string    `json:"destination,omitempty"`
	CustomerID      string    `json:"customer_id"`
	PaymentMethodID string    `json:"payment_method_id"`
	IntentID        string    `json:"intent_id,omitempty"`
	Attempts        int       `json:"attempts"`
	LastError       string    `json:"last_error,omitempty"`
	EnqueuedAt      time.Time `json:"enqueued_at"`
}

// IdempotencyKey identifies the seller's share of the order at the processor,
// so repeated attempts can never create a second charge.
func (p *PayoutInstruction) IdempotencyKey() string {
	return fmt.Sprintf("payout-%s-%d", p.OrderNumber, p.SellerID)
}
