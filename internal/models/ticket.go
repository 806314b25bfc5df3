package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TicketClass is one of the two fixed-price tiers of an event.
type TicketClass string

const (
	TicketClassEarlyBird TicketClass = "early_bird"
	TicketClassStandard  TicketClass = "standard"
)

// TicketClasses lists the classes in the order they are offered.
var TicketClasses = []TicketClass{TicketClassEarlyBird, TicketClassStandard}

// Valid reports whether c is a known ticket class.
func (c TicketClass) Valid() bool {
	return c == TicketClassEarlyBird || c == TicketClassStandard
}

// ParseTicketClass converts user input to a TicketClass.
func ParseTicketClass(s string) (TicketClass, error) {
	c := TicketClass(s)
	if !c.Valid() {
		return "", NewValidationError(CodeInvalidQuantity, "class", fmt.Sprintf("unknown ticket class %q", s))
	}
	return c, nil
}

// Quantities holds one count per ticket class.
type Quantities struct {
	EarlyBird int `json:"early_bird" db:"early_bird_quantity"`
	Standard  int `json:"standard" db:"standard_quantity"`
}

// Get returns the count for class c.
func (q Quantities) Get(c TicketClass) int {
	switch c {
	case TicketClassEarlyBird:
		return q.EarlyBird
	case TicketClassStandard:
		return q.Standard
	}
	return 0
}

// Set replaces the count for class c.
func (q *Quantities) Set(c TicketClass, n int) {
	switch c {
	case TicketClassEarlyBird:
		q.EarlyBird = n
	case TicketClassStandard:
		q.Standard = n
	}
}

// Add returns a copy with delta applied to class c, clamped at zero.
func (q Quantities) Add(c TicketClass, delta int) Quantities {
	n := q.Get(c) + delta
	if n < 0 {
		n = 0
	}
	q.Set(c, n)
	return q
}

// Plus adds other class by class.
func (q Quantities) Plus(other Quantities) Quantities {
	return Quantities{
		EarlyBird: q.EarlyBird + other.EarlyBird,
		Standard:  q.Standard + other.Standard,
	}
}

// Total is the number of units across both classes.
func (q Quantities) Total() int {
	return q.EarlyBird + q.Standard
}

// IsZero reports whether both classes are zero.
func (q Quantities) IsZero() bool {
	return q.EarlyBird == 0 && q.Standard == 0
}

// Validate rejects negative counts.
func (q Quantities) Validate() error {
	for _, c := range TicketClasses {
		if q.Get(c) < 0 {
			return NewValidationError(CodeInvalidQuantity, string(c), "quantity cannot be negative")
		}
	}
	return nil
}

// Remaining returns capacity minus sold per class, floored at zero.
func Remaining(capacity, sold Quantities) Quantities {
	var out Quantities
	for _, c := range TicketClasses {
		n := capacity.Get(c) - sold.Get(c)
		if n < 0 {
			n = 0
		}
		out.Set(c, n)
	}
	return out
}

// InventorySnapshot is an event's capacity and issued tickets read at one point in time.
type InventorySnapshot struct {
	EventID  int64
	Status   EventStatus
	Capacity Quantities
	Sold     Quantities
}

// Remaining is capacity minus sold, floored at zero.
func (s InventorySnapshot) Remaining() Quantities {
	return Remaining(s.Capacity, s.Sold)
}

// Ticket is a single purchased unit. Tickets are write-once.
type Ticket struct {
	ID        int64       `json:"id" db:"id"`
	Code      string      `json:"code" db:"code"`
	EventID   int64       `json:"event_id" db:"event_id"`
	OrderID   int64       `json:"order_id" db:"order_id"`
	Class     TicketClass `json:"class" db:"class"`
	CreatedAt time.Time   `json:"created_at" db:"created_at"`
}

// NewTickets issues one ticket per unit in q.
func NewTickets(orderID, eventID int64, q Quantities, now time.Time) []*Ticket {
	tickets := make([]*Ticket, 0, q.Total())
	for _, c := range TicketClasses {
		for i := 0; i < q.Get(c); i++ {
			tickets = append(tickets, &Ticket{
				Code:      uuid.NewString(),
				EventID:   eventID,
				OrderID:   orderID,
				Class:     c,
				CreatedAt: now,
			})
		}
	}
	return tickets
}
