package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// HistoricalTicketLine is a ticket line frozen at settlement time.
type HistoricalTicketLine struct {
	LineID         int64           `json:"line_id" db:"line_id"`
	EventID        int64           `json:"event_id" db:"event_id"`
	EventName      string          `json:"event_name" db:"event_name"`
	HostSocietyID  int64           `json:"host_society_id" db:"host_society_id"`
	Quantities     Quantities      `json:"quantities"`
	EarlyBirdPrice decimal.Decimal `json:"early_bird_price" db:"early_bird_price"`
	StandardPrice  decimal.Decimal `json:"standard_price" db:"standard_price"`
}

// Total is the line price before discount.
func (l HistoricalTicketLine) Total() decimal.Decimal {
	early := l.EarlyBirdPrice.Mul(decimal.NewFromInt(int64(l.Quantities.EarlyBird)))
	standard := l.StandardPrice.Mul(decimal.NewFromInt(int64(l.Quantities.Standard)))
	return early.Add(standard)
}

// HistoricalMembership is a membership line frozen at settlement time.
type HistoricalMembership struct {
	SocietyID   int64           `json:"society_id" db:"society_id"`
	SocietyName string          `json:"society_name" db:"society_name"`
	Fee         decimal.Decimal `json:"fee" db:"fee"`
}

// HistoricalCart is the audit record of what an order bought. Once the cart
// is cleared this is the only source of truth for the order's contents.
type HistoricalCart struct {
	ID          int64                  `json:"id"`
	OrderID     int64                  `json:"order_id"`
	TicketLines []HistoricalTicketLine `json:"ticket_lines"`
	Memberships []HistoricalMembership `json:"memberships"`
	TotalPrice  decimal.Decimal        `json:"total_price"`
	TotalSaved  decimal.Decimal        `json:"total_saved"`
	Count       int                    `json:"count"`
	Discounts   DiscountMap            `json:"discount_data"`
	CreatedAt   time.Time              `json:"created_at"`
}

// NewHistoricalCart copies cart and its computed summary. Nothing in the
// result aliases the cart.
func NewHistoricalCart(cart *Cart, summary CartSummary, now time.Time) *HistoricalCart {
	h := &HistoricalCart{
		TicketLines: make([]HistoricalTicketLine, 0, len(cart.TicketLines)),
		Memberships: make([]HistoricalMembership, 0, len(cart.Memberships)),
		TotalPrice:  summary.TotalPrice,
		TotalSaved:  summary.TotalSaved,
		Count:       summary.Count,
		Discounts:   summary.Discounts.Clone(),
		CreatedAt:   now,
	}

	for _, l := range cart.TicketLines {
		line := HistoricalTicketLine{
			LineID:     l.ID,
			EventID:    l.EventID,
			Quantities: l.Quantities,
		}
		if l.Event != nil {
			line.EventName = l.Event.Name
			line.HostSocietyID = l.Event.HostID
			line.EarlyBirdPrice = l.Event.EarlyBird.Price
			line.StandardPrice = l.Event.Standard.Price
		}
		h.TicketLines = append(h.TicketLines, line)
	}

	for _, s := range cart.Memberships {
		h.Memberships = append(h.Memberships, HistoricalMembership{
			SocietyID:   s.ID,
			SocietyName: s.Name,
			Fee:         s.MemberFee,
		})
	}

	return h
}
