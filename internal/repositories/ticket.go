package repositories

import (
	"context"
	"fmt"

	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
)

// TicketRepository handles issued ticket reads
type TicketRepository struct {
	db *sqlx.DB
}

// NewTicketRepository creates a new ticket repository
func NewTicketRepository(db *sqlx.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

type classCountRow struct {
	Class models.TicketClass `db:"class"`
	Count int                `db:"count"`
}

// queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type queryer interface {
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func countSold(ctx context.Context, q queryer, eventID int64) (models.Quantities, error) {
	var rows []classCountRow
	err := q.SelectContext(ctx, &rows,
		`SELECT class, COUNT(*) AS count FROM tickets WHERE event_id = $1 GROUP BY class`, eventID)
	if err != nil {
		return models.Quantities{}, fmt.Errorf("failed to count tickets: %w", err)
	}

	var sold models.Quantities
	for _, row := range rows {
		sold.Set(row.Class, row.Count)
	}
	return sold, nil
}

// CountSold returns the number of issued tickets per class for an event.
func (r *TicketRepository) CountSold(ctx context.Context, eventID int64) (models.Quantities, error) {
	return countSold(ctx, r.db, eventID)
}

// GetTicketsByOrder retrieves all tickets issued for an order
func (r *TicketRepository) GetTicketsByOrder(ctx context.Context, orderID int64) ([]*models.Ticket, error) {
	var tickets []*models.Ticket
	err := r.db.SelectContext(ctx, &tickets, `
		SELECT id, code, event_id, order_id, class, created_at
		FROM tickets WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tickets by order: %w", err)
	}
	return tickets, nil
}
