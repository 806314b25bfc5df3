package models

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCountry is used when an address omits the country.
const DefaultCountry = "United Kingdom"

// CheckoutState tracks a single checkout attempt.
type CheckoutState string

const (
	CheckoutPendingCharge CheckoutState = "PENDING_CHARGE"
	CheckoutCharged       CheckoutState = "CHARGED"
	CheckoutSettled       CheckoutState = "SETTLED"
	CheckoutFailed        CheckoutState = "FAILED"
)

// RandomSource is the subset of *rand.Rand the domain needs.
type RandomSource interface {
	Intn(n int) int
}

// Address is the buyer's billing address
type Address struct {
	Line1    string `json:"line_1" db:"address_line_1"`
	Line2    string `json:"line_2" db:"address_line_2"`
	CityTown string `json:"city_town" db:"city_town"`
	Postcode string `json:"postcode" db:"postcode"`
	Country  string `json:"country" db:"country"`
}

// Normalized trims every field and fills in the default country.
func (a Address) Normalized() Address {
	out := Address{
		Line1:    strings.TrimSpace(a.Line1),
		Line2:    strings.TrimSpace(a.Line2),
		CityTown: strings.TrimSpace(a.CityTown),
		Postcode: strings.ToUpper(strings.TrimSpace(a.Postcode)),
		Country:  strings.TrimSpace(a.Country),
	}
	if out.Country == "" {
		out.Country = DefaultCountry
	}
	return out
}

// Validate validates the address data
func (a Address) Validate() error {
	n := a.Normalized()
	switch {
	case n.Line1 == "":
		return NewValidationError(CodeInvalidAddress, "line_1", "address line 1 is required")
	case n.CityTown == "":
		return NewValidationError(CodeInvalidAddress, "city_town", "city or town is required")
	case n.Postcode == "":
		return NewValidationError(CodeInvalidAddress, "postcode", "postcode is required")
	case len(n.Line1) > 255 || len(n.Line2) > 255:
		return NewValidationError(CodeInvalidAddress, "line_1", "address lines must be less than 255 characters")
	}
	return nil
}

// SettledOrder is created exactly once per successful checkout and never updated.
type SettledOrder struct {
	ID          int64     `json:"id" db:"id"`
	OrderNumber string    `json:"order_number" db:"order_number"`
	StudentID   int64     `json:"student_id" db:"student_id"`
	BuyerName   string    `json:"buyer_name" db:"buyer_name"`
	BuyerEmail  string    `json:"buyer_email" db:"buyer_email"`
	Address     Address   `json:"address"`
	CustomerID  string    `json:"-" db:"customer_id"` // empty for free orders
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// IsFree reports whether the order was settled without a charge.
func (o *SettledOrder) IsFree() bool {
	return o.CustomerID == ""
}

// Order number format: ORD-YYYYMMDD-NNNNNN
var orderNumberRegex = regexp.MustCompile(`^ORD-\d{8}-\d{6}$`)

// GenerateOrderNumber builds an order number from the settlement time and rnd.
func GenerateOrderNumber(now time.Time, rnd RandomSource) string {
	return fmt.Sprintf("ORD-%s-%06d", now.UTC().Format("20060102"), rnd.Intn(1000000))
}

// IsValidOrderNumber reports whether s has the order number format.
func IsValidOrderNumber(s string) bool {
	return orderNumberRegex.MatchString(s)
}

// PaymentStatus represents the outcome of a payment. Payment rows are only
// written for settled orders, so a failed charge is reported, not stored.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// Payment records the charge behind a paid order
type Payment struct {
	ID            int64           `json:"id" db:"id"`
	OrderID       int64           `json:"order_id" db:"order_id"`
	Amount        decimal.Decimal `json:"amount" db:"amount"`
	Status        PaymentStatus   `json:"status" db:"status"`
	CardBrand     string          `json:"card_brand" db:"card_brand"`
	CardLast4     string          `json:"card_last4" db:"card_last4"`
	TransactionID string          `json:"-" db:"transaction_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}
