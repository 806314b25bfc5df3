package models

import (
	"testing"
	"time"
)

func TestParseTicketClass(t *testing.T) {
	tests := []struct {
		input   string
		want    TicketClass
		wantErr bool
	}{
		{"early_bird", TicketClassEarlyBird, false},
		{"standard", TicketClassStandard, false},
		{"vip", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseTicketClass(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseTicketClass(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseTicketClass(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestQuantities_Add(t *testing.T) {
	tests := []struct {
		name  string
		q     Quantities
		class TicketClass
		delta int
		want  Quantities
	}{
		{"increase early bird", Quantities{EarlyBird: 1}, TicketClassEarlyBird, 2, Quantities{EarlyBird: 3}},
		{"decrease standard", Quantities{Standard: 3}, TicketClassStandard, -1, Quantities{Standard: 2}},
		{"clamps at zero", Quantities{EarlyBird: 1, Standard: 1}, TicketClassStandard, -5, Quantities{EarlyBird: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.q.Add(tt.class, tt.delta); got != tt.want {
				t.Errorf("Add() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestQuantities_Validate(t *testing.T) {
	if err := (Quantities{EarlyBird: 0, Standard: 3}).Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
	if err := (Quantities{Standard: -1}).Validate(); !IsValidation(err, CodeInvalidQuantity) {
		t.Errorf("Validate() error = %v, want %s", err, CodeInvalidQuantity)
	}
}

func TestRemaining(t *testing.T) {
	capacity := Quantities{EarlyBird: 10, Standard: 5}

	tests := []struct {
		name string
		sold Quantities
		want Quantities
	}{
		{"nothing sold", Quantities{}, capacity},
		{"partly sold", Quantities{EarlyBird: 4, Standard: 5}, Quantities{EarlyBird: 6}},
		{"oversold floors at zero", Quantities{EarlyBird: 12, Standard: 9}, Quantities{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Remaining(capacity, tt.sold); got != tt.want {
				t.Errorf("Remaining() = %+v, want %+v", got, tt.want)
			}
			snapshot := InventorySnapshot{Capacity: capacity, Sold: tt.sold}
			if got := snapshot.Remaining(); got != tt.want {
				t.Errorf("InventorySnapshot.Remaining() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNewTickets(t *testing.T) {
	now := time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)
	tickets := NewTickets(7, 3, Quantities{EarlyBird: 2, Standard: 1}, now)

	if len(tickets) != 3 {
		t.Fatalf("NewTickets() returned %d tickets, want 3", len(tickets))
	}

	codes := make(map[string]bool)
	classes := make(map[TicketClass]int)
	for _, ticket := range tickets {
		if ticket.OrderID != 7 || ticket.EventID != 3 {
			t.Errorf("ticket %+v has wrong order or event", ticket)
		}
		if !ticket.CreatedAt.Equal(now) {
			t.Errorf("ticket created at %v, want %v", ticket.CreatedAt, now)
		}
		if codes[ticket.Code] {
			t.Errorf("duplicate ticket code %s", ticket.Code)
		}
		codes[ticket.Code] = true
		classes[ticket.Class]++
	}

	if classes[TicketClassEarlyBird] != 2 || classes[TicketClassStandard] != 1 {
		t.Errorf("NewTickets() classes = %v, want 2 early bird and 1 standard", classes)
	}
}
