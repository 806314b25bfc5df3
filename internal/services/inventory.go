package services

import (
	"context"
	"fmt"

	"society-ticketing/internal/models"
)

// InventoryLedger derives sellable units from capacity and issued tickets.
// Nothing is held between a read and a purchase: the figures are advisory
// until settlement re-checks them under lock.
type InventoryLedger struct {
	tickets TicketCounter
}

// NewInventoryLedger creates a new inventory ledger
func NewInventoryLedger(tickets TicketCounter) *InventoryLedger {
	return &InventoryLedger{tickets: tickets}
}

// Inventory returns the remaining units of both classes.
func (l *InventoryLedger) Inventory(ctx context.Context, event *models.Event) (models.Quantities, error) {
	sold, err := l.tickets.CountSold(ctx, event.ID)
	if err != nil {
		return models.Quantities{}, fmt.Errorf("failed to read inventory: %w", err)
	}
	return models.Remaining(event.Capacity(), sold), nil
}

// Available returns capacity minus issued tickets for class c, floored at 0.
func (l *InventoryLedger) Available(ctx context.Context, event *models.Event, c models.TicketClass) (int, error) {
	remaining, err := l.Inventory(ctx, event)
	if err != nil {
		return 0, err
	}
	return remaining.Get(c), nil
}

// AvailableForCart is Available less what this cart already holds.
func (l *InventoryLedger) AvailableForCart(ctx context.Context, cart *models.Cart, event *models.Event, c models.TicketClass) (int, error) {
	available, err := l.Available(ctx, event, c)
	if err != nil {
		return 0, err
	}
	return max(available-cart.QuantityInCart(event.ID, c), 0), nil
}
