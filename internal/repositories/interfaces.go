package repositories

import (
	"context"

	"society-ticketing/internal/models"
)

// SettlementTx is the set of writes a checkout performs. Every call made on
// one SettlementTx commits or rolls back together.
type SettlementTx interface {
	// LockInventory locks the event against concurrent settlements and
	// returns its capacity and issued tickets as seen under the lock.
	LockInventory(ctx context.Context, eventID int64) (*models.InventorySnapshot, error)
	CreateOrder(ctx context.Context, order *models.SettledOrder) error
	CreateHistoricalCart(ctx context.Context, cart *models.HistoricalCart) error
	CreatePayment(ctx context.Context, payment *models.Payment) error
	CreateTickets(ctx context.Context, tickets []*models.Ticket) error
	MarkPurchased(ctx context.Context, studentID, eventID int64, discounted bool) error
	AddRegularMember(ctx context.Context, societyID, studentID int64) error
	// ClearCart removes the settled lines and memberships of the cart
	// snapshot. A line or membership that changed since the snapshot fails
	// with a CodeCartChanged validation error; anything added meanwhile stays.
	ClearCart(ctx context.Context, settled *models.Cart) error
}
