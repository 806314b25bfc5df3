package services

import (
	"society-ticketing/internal/models"

	"github.com/shopspring/decimal"
)

// DiscountResolver picks the best membership discount for a cart line.
type DiscountResolver struct{}

// NewDiscountResolver creates a new discount resolver
func NewDiscountResolver() *DiscountResolver {
	return &DiscountResolver{}
}

// ResolveRate returns the highest member discount, as a fraction, among the
// event's organizers that the buyer belongs to or is buying membership of in
// this cart. It is zero when none apply, or when the buyer already bought the
// event with a discount.
func (r *DiscountResolver) ResolveRate(cart *models.Cart, buyer *models.Student, line *models.TicketLine) decimal.Decimal {
	rate := decimal.Zero
	if line.Event == nil || buyer.HasDiscountFor(line.EventID) {
		return rate
	}

	for _, society := range line.Event.Organizers() {
		applicable := buyer.IsRegularMember(society.ID) || cart.HasMembership(society.ID)
		if applicable && society.DiscountRate().GreaterThan(rate) {
			rate = society.DiscountRate()
		}
	}
	return rate
}

// DiscountAmount is the rate applied once to the line's representative unit price.
func (r *DiscountResolver) DiscountAmount(cart *models.Cart, buyer *models.Student, line *models.TicketLine) decimal.Decimal {
	rate := r.ResolveRate(cart, buyer, line)
	if rate.IsZero() {
		return decimal.Zero
	}
	return models.RoundMoney(rate.Mul(line.UnitPrice()))
}

// Eligible reports whether the line gets a discount: the buyer has not had
// one for this event before and the amount is positive.
func (r *DiscountResolver) Eligible(cart *models.Cart, buyer *models.Student, line *models.TicketLine) bool {
	return r.DiscountAmount(cart, buyer, line).IsPositive()
}

// DiscountMap returns the discount for every eligible line in the cart.
func (r *DiscountResolver) DiscountMap(cart *models.Cart, buyer *models.Student) models.DiscountMap {
	discounts := models.DiscountMap{}
	for _, line := range cart.TicketLines {
		if r.Eligible(cart, buyer, line) {
			discounts[line.ID] = r.DiscountAmount(cart, buyer, line)
		}
	}
	return discounts
}
