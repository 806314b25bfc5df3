package models

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EventStatus represents the lifecycle status of an event
type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
)

// TicketClassSpec is the fixed capacity and price of one ticket class.
type TicketClassSpec struct {
	Capacity int             `json:"capacity"`
	Price    decimal.Decimal `json:"price"`
}

// Event represents a society event with two ticket classes
type Event struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Location  string          `json:"location"`
	HostID    int64           `json:"host_id"`
	EarlyBird TicketClassSpec `json:"early_bird"`
	Standard  TicketClassSpec `json:"standard"`
	Status    EventStatus     `json:"status"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Related data
	Host         *Society   `json:"host,omitempty"`
	CoOrganizers []*Society `json:"co_organizers,omitempty"`
}

// Class returns the capacity and price of ticket class c.
func (e *Event) Class(c TicketClass) TicketClassSpec {
	if c == TicketClassStandard {
		return e.Standard
	}
	return e.EarlyBird
}

// Capacity returns both class capacities.
func (e *Event) Capacity() Quantities {
	return Quantities{EarlyBird: e.EarlyBird.Capacity, Standard: e.Standard.Capacity}
}

// LineTotal prices q at this event's class prices.
func (e *Event) LineTotal(q Quantities) decimal.Decimal {
	early := e.EarlyBird.Price.Mul(decimal.NewFromInt(int64(q.EarlyBird)))
	standard := e.Standard.Price.Mul(decimal.NewFromInt(int64(q.Standard)))
	return early.Add(standard)
}

// Organizers returns the host followed by the co-organizers, without duplicates.
func (e *Event) Organizers() []*Society {
	seen := make(map[int64]bool)
	var out []*Society
	add := func(s *Society) {
		if s == nil || seen[s.ID] {
			return
		}
		seen[s.ID] = true
		out = append(out, s)
	}
	add(e.Host)
	for _, s := range e.CoOrganizers {
		add(s)
	}
	return out
}

// IsActive reports whether tickets can still be sold.
func (e *Event) IsActive() bool {
	return e.Status == EventActive
}

// Validate validates the event data
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return NewValidationError(CodeInvalidEvent, "name", "name is required")
	}

	if err := validateTicketClasses(e.EarlyBird, e.Standard); err != nil {
		return err
	}

	if !e.StartTime.IsZero() && !e.EndTime.IsZero() && e.EndTime.Before(e.StartTime) {
		return NewValidationError(CodeInvalidEvent, "end_time", "end time must not be before start time")
	}

	switch e.Status {
	case EventActive, EventCancelled:
	default:
		return NewValidationError(CodeInvalidEvent, "status", "invalid event status")
	}

	return nil
}

func validateTicketClasses(early, standard TicketClassSpec) error {
	for _, spec := range []struct {
		field string
		TicketClassSpec
	}{{"early_bird", early}, {"standard", standard}} {
		if spec.Capacity < 0 {
			return NewValidationError(CodeInvalidEvent, spec.field+".capacity", "capacity cannot be negative")
		}
		if spec.Price.IsNegative() {
			return NewValidationError(CodeInvalidEvent, spec.field+".price", "price cannot be negative")
		}
	}

	if !early.Price.IsZero() && !standard.Price.IsZero() && !standard.Price.GreaterThan(early.Price) {
		return NewValidationError(CodeInvalidEvent, "standard.price", "standard price must be higher than early-bird price")
	}

	return nil
}

// EventCancellation is returned by Event.Cancel. Whoever applies it must purge
// cart lines for the event and notify its audience.
type EventCancellation struct {
	EventID    int64     `json:"event_id"`
	EventName  string    `json:"event_name"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventModified is returned by Event.ApplyUpdate.
type EventModified struct {
	EventID    int64     `json:"event_id"`
	EventName  string    `json:"event_name"`
	Changed    []string  `json:"changed"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Cancel marks the event cancelled.
func (e *Event) Cancel(now time.Time) (*EventCancellation, error) {
	if e.Status == EventCancelled {
		return nil, NewValidationError(CodeEventCancelled, "status", "event is already cancelled")
	}
	e.Status = EventCancelled
	e.UpdatedAt = now
	return &EventCancellation{EventID: e.ID, EventName: e.Name, OccurredAt: now}, nil
}

// EventUpdate carries optional changes to an event. Nil fields are untouched.
type EventUpdate struct {
	Name              *string          `json:"name,omitempty"`
	Location          *string          `json:"location,omitempty"`
	StartTime         *time.Time       `json:"start_time,omitempty"`
	EndTime           *time.Time       `json:"end_time,omitempty"`
	EarlyBirdCapacity *int             `json:"early_bird_capacity,omitempty"`
	EarlyBirdPrice    *decimal.Decimal `json:"early_bird_price,omitempty"`
	StandardCapacity  *int             `json:"standard_capacity,omitempty"`
	StandardPrice     *decimal.Decimal `json:"standard_price,omitempty"`
}

// ApplyUpdate applies u if the result is valid and no class capacity drops
// below the units already sold. On error e is left unchanged.
func (e *Event) ApplyUpdate(u EventUpdate, sold Quantities, now time.Time) (*EventModified, error) {
	if !e.IsActive() {
		return nil, NewValidationError(CodeEventNotActive, "status", "cancelled events cannot be modified")
	}

	next := *e
	changed := make(map[string]bool)

	if u.Name != nil && *u.Name != e.Name {
		next.Name = *u.Name
		changed["name"] = true
	}
	if u.Location != nil && *u.Location != e.Location {
		next.Location = *u.Location
		changed["location"] = true
	}
	if u.StartTime != nil && !u.StartTime.Equal(e.StartTime) {
		next.StartTime = *u.StartTime
		changed["start_time"] = true
	}
	if u.EndTime != nil && !u.EndTime.Equal(e.EndTime) {
		next.EndTime = *u.EndTime
		changed["end_time"] = true
	}
	if u.EarlyBirdCapacity != nil && *u.EarlyBirdCapacity != e.EarlyBird.Capacity {
		next.EarlyBird.Capacity = *u.EarlyBirdCapacity
		changed["early_bird_capacity"] = true
	}
	if u.EarlyBirdPrice != nil && !u.EarlyBirdPrice.Equal(e.EarlyBird.Price) {
		next.EarlyBird.Price = *u.EarlyBirdPrice
		changed["early_bird_price"] = true
	}
	if u.StandardCapacity != nil && *u.StandardCapacity != e.Standard.Capacity {
		next.Standard.Capacity = *u.StandardCapacity
		changed["standard_capacity"] = true
	}
	if u.StandardPrice != nil && !u.StandardPrice.Equal(e.Standard.Price) {
		next.Standard.Price = *u.StandardPrice
		changed["standard_price"] = true
	}

	if err := next.Validate(); err != nil {
		return nil, err
	}

	for _, c := range TicketClasses {
		if next.Class(c).Capacity < sold.Get(c) {
			return nil, NewValidationError(CodeCapacityBelowSold, string(c)+".capacity",
				"capacity cannot be lower than the number of tickets already sold")
		}
	}

	fields := make([]string, 0, len(changed))
	for f := range changed {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	next.UpdatedAt = now
	*e = next

	return &EventModified{EventID: e.ID, EventName: e.Name, Changed: fields, OccurredAt: now}, nil
}
