package services

import (
	"context"
	"time"

	"society-ticketing/internal/models"
	"society-ticketing/internal/repositories"
)

// EventStore reads and updates events with their organizers loaded.
type EventStore interface {
	GetEvent(ctx context.Context, id int64) (*models.Event, error)
	UpdateEvent(ctx context.Context, event *models.Event) error
}

// SocietyStore reads societies.
type SocietyStore interface {
	GetSociety(ctx context.Context, id int64) (*models.Society, error)
}

// StudentStore reads buyers and the audiences of an event.
type StudentStore interface {
	GetStudent(ctx context.Context, id int64) (*models.Student, error)
	ListEventBuyers(ctx context.Context, eventID int64) ([]*models.Student, error)
	ListEventSavers(ctx context.Context, eventID int64) ([]*models.Student, error)
}

// CartStore persists cart contents.
type CartStore interface {
	GetOrCreateCart(ctx context.Context, studentID int64) (*models.Cart, error)
	SaveTicketLine(ctx context.Context, cartID int64, line *models.TicketLine) error
	DeleteTicketLine(ctx context.Context, cartID, lineID int64) error
	AddMembership(ctx context.Context, cartID, societyID int64) error
	RemoveMembership(ctx context.Context, cartID, societyID int64) error
	PurgeEventLines(ctx context.Context, eventID int64) ([]*models.TicketLine, error)
}

// TicketCounter counts issued tickets.
type TicketCounter interface {
	CountSold(ctx context.Context, eventID int64) (models.Quantities, error)
}

// SettlementStore runs a settlement as one all-or-nothing transaction.
type SettlementStore interface {
	Settle(ctx context.Context, fn func(tx repositories.SettlementTx) error) error
}

// OrderReader reads back settled orders.
type OrderReader interface {
	GetOrderDetails(ctx context.Context, orderNumber string) (*repositories.OrderDetails, error)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
