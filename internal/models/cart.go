package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// TicketLine holds the quantities of one event in a cart.
type TicketLine struct {
	ID         int64      `json:"id"`
	CartID     int64      `json:"cart_id"`
	EventID    int64      `json:"event_id"`
	Quantities Quantities `json:"quantities"`

	Event *Event `json:"event,omitempty"`
}

// PriceBeforeDiscount is the full price of every unit on the line.
func (l *TicketLine) PriceBeforeDiscount() decimal.Decimal {
	if l.Event == nil {
		return decimal.Zero
	}
	return l.Event.LineTotal(l.Quantities)
}

// UnitPrice is the single price a line discount is computed from: standard
// when the line holds any standard units, early-bird otherwise.
func (l *TicketLine) UnitPrice() decimal.Decimal {
	if l.Event == nil {
		return decimal.Zero
	}
	if l.Quantities.Standard > 0 {
		return l.Event.Standard.Price
	}
	return l.Event.EarlyBird.Price
}

// Cart represents a student's basket of ticket lines and memberships
type Cart struct {
	ID          int64         `json:"id"`
	StudentID   int64         `json:"student_id"`
	TicketLines []*TicketLine `json:"ticket_lines"`
	Memberships []*Society    `json:"memberships"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// LineForEvent returns the line for eventID, or nil.
func (c *Cart) LineForEvent(eventID int64) *TicketLine {
	for _, l := range c.TicketLines {
		if l.EventID == eventID {
			return l
		}
	}
	return nil
}

// Line returns the line with the given id, or nil.
func (c *Cart) Line(lineID int64) *TicketLine {
	for _, l := range c.TicketLines {
		if l.ID == lineID {
			return l
		}
	}
	return nil
}

// RemoveLine drops the line with the given id.
func (c *Cart) RemoveLine(lineID int64) {
	kept := c.TicketLines[:0]
	for _, l := range c.TicketLines {
		if l.ID != lineID {
			kept = append(kept, l)
		}
	}
	c.TicketLines = kept
}

// HasMembership reports whether the society's membership is in the cart.
func (c *Cart) HasMembership(societyID int64) bool {
	for _, s := range c.Memberships {
		if s.ID == societyID {
			return true
		}
	}
	return false
}

// RemoveMembership drops the society's membership from the cart.
func (c *Cart) RemoveMembership(societyID int64) {
	kept := c.Memberships[:0]
	for _, s := range c.Memberships {
		if s.ID != societyID {
			kept = append(kept, s)
		}
	}
	c.Memberships = kept
}

// QuantityInCart is how many units of the class this cart already holds for the event.
func (c *Cart) QuantityInCart(eventID int64, class TicketClass) int {
	if l := c.LineForEvent(eventID); l != nil {
		return l.Quantities.Get(class)
	}
	return 0
}

// TotalTicketPriceBeforeDiscount sums every ticket line at full price.
func (c *Cart) TotalTicketPriceBeforeDiscount() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.TicketLines {
		total = total.Add(l.PriceBeforeDiscount())
	}
	return total
}

// TotalMembershipPrice sums the fees of the memberships in the cart.
func (c *Cart) TotalMembershipPrice() decimal.Decimal {
	total := decimal.Zero
	for _, s := range c.Memberships {
		total = total.Add(s.MemberFee)
	}
	return total
}

// TicketCount is the number of ticket units in the cart.
func (c *Cart) TicketCount() int {
	n := 0
	for _, l := range c.TicketLines {
		n += l.Quantities.Total()
	}
	return n
}

// Count is ticket units plus membership lines.
func (c *Cart) Count() int {
	return c.TicketCount() + len(c.Memberships)
}

// IsEmpty reports whether there is nothing to check out.
func (c *Cart) IsEmpty() bool {
	return c.Count() == 0
}

// Clear empties both collections.
func (c *Cart) Clear() {
	c.TicketLines = nil
	c.Memberships = nil
}

// Summarize computes the cart totals for the given discounts.
func (c *Cart) Summarize(discounts DiscountMap) CartSummary {
	if discounts == nil {
		discounts = DiscountMap{}
	}
	before := c.TotalTicketPriceBeforeDiscount()
	memberships := c.TotalMembershipPrice()
	saved := discounts.Total()

	return CartSummary{
		TotalTicketPriceBeforeDiscount: before,
		TotalMembershipPrice:           memberships,
		TotalSaved:                     saved,
		TotalPrice:                     before.Add(memberships).Sub(saved),
		Count:                          c.Count(),
		TicketCount:                    c.TicketCount(),
		Discounts:                      discounts,
	}
}

// CartSummary holds the aggregate pricing of a cart
type CartSummary struct {
	TotalTicketPriceBeforeDiscount decimal.Decimal `json:"total_ticket_price_before_discount"`
	TotalMembershipPrice           decimal.Decimal `json:"total_membership_price"`
	TotalSaved                     decimal.Decimal `json:"total_saved"`
	TotalPrice                     decimal.Decimal `json:"total_price"`
	Count                          int             `json:"count"`
	TicketCount                    int             `json:"ticket_count"`
	Discounts                      DiscountMap     `json:"discounts"`
}

// AllItemsFree is true when the cart holds something and costs nothing.
func (s CartSummary) AllItemsFree() bool {
	return s.Count > 0 && s.TotalPrice.IsZero()
}

// DiscountMap maps ticket line ids to the discount applied to that line.
// It encodes as a JSON object of decimal strings so amounts survive storage exactly.
type DiscountMap map[int64]decimal.Decimal

// Get returns the discount for a line, zero if none.
func (m DiscountMap) Get(lineID int64) decimal.Decimal {
	if d, ok := m[lineID]; ok {
		return d
	}
	return decimal.Zero
}

// Has reports whether a discount was recorded for the line.
func (m DiscountMap) Has(lineID int64) bool {
	_, ok := m[lineID]
	return ok
}

// Total sums every discount.
func (m DiscountMap) Total() decimal.Decimal {
	total := decimal.Zero
	for _, d := range m {
		total = total.Add(d)
	}
	return total
}

// LineIDs returns the keys in ascending order.
func (m DiscountMap) LineIDs() []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Equal compares by exact decimal value.
func (m DiscountMap) Equal(other DiscountMap) bool {
	if len(m) != len(other) {
		return false
	}
	for id, d := range m {
		o, ok := other[id]
		if !ok || !d.Equal(o) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (m DiscountMap) Clone() DiscountMap {
	out := make(DiscountMap, len(m))
	for id, d := range m {
		out[id] = d
	}
	return out
}

// Value stores the map in a JSON column.
func (m DiscountMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan reads the map from a JSON column.
func (m *DiscountMap) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = DiscountMap{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into DiscountMap", src)
	}

	out := DiscountMap{}
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("failed to decode discount map: %w", err)
	}
	*m = out
	return nil
}
