package repositories

import (
	"context"
	"fmt"
	"time"

	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
)

// CartRepository handles cart persistence
type CartRepository struct {
	db        *sqlx.DB
	events    *EventRepository
	societies *SocietyRepository
}

// NewCartRepository creates a new cart repository
func NewCartRepository(db *sqlx.DB, events *EventRepository, societies *SocietyRepository) *CartRepository {
	return &CartRepository{db: db, events: events, societies: societies}
}

type ticketLineRow struct {
	ID      int64 `db:"id"`
	CartID  int64 `db:"cart_id"`
	EventID int64 `db:"event_id"`
	models.Quantities
}

func (r ticketLineRow) toModel() *models.TicketLine {
	return &models.TicketLine{ID: r.ID, CartID: r.CartID, EventID: r.EventID, Quantities: r.Quantities}
}

// GetOrCreateCart returns the student's cart with events and societies loaded.
func (r *CartRepository) GetOrCreateCart(ctx context.Context, studentID int64) (*models.Cart, error) {
	cart := &models.Cart{StudentID: studentID}
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO carts (student_id) VALUES ($1)
		ON CONFLICT (student_id) DO UPDATE SET student_id = EXCLUDED.student_id
		RETURNING id, updated_at`, studentID).Scan(&cart.ID, &cart.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	var lines []ticketLineRow
	err = r.db.SelectContext(ctx, &lines, `
		SELECT id, cart_id, event_id, early_bird_quantity, standard_quantity
		FROM cart_ticket_lines WHERE cart_id = $1 ORDER BY id`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart lines: %w", err)
	}
	for _, row := range lines {
		line := row.toModel()
		line.Event, err = r.events.GetEvent(ctx, row.EventID)
		if err != nil {
			return nil, err
		}
		cart.TicketLines = append(cart.TicketLines, line)
	}

	var societyIDs []int64
	err = r.db.SelectContext(ctx, &societyIDs,
		`SELECT society_id FROM cart_memberships WHERE cart_id = $1 ORDER BY society_id`, cart.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart memberships: %w", err)
	}
	societies, err := r.societies.GetSocieties(ctx, societyIDs)
	if err != nil {
		return nil, err
	}
	for _, id := range societyIDs {
		if s, ok := societies[id]; ok {
			cart.Memberships = append(cart.Memberships, s)
		}
	}

	return cart, nil
}

// SaveTicketLine inserts or updates a ticket line and sets its id.
func (r *CartRepository) SaveTicketLine(ctx context.Context, cartID int64, line *models.TicketLine) error {
	err := r.db.QueryRowxContext(ctx, `
		INSERT INTO cart_ticket_lines (cart_id, event_id, early_bird_quantity, standard_quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, event_id) DO UPDATE
		SET early_bird_quantity = EXCLUDED.early_bird_quantity,
			standard_quantity = EXCLUDED.standard_quantity
		RETURNING id`,
		cartID, line.EventID, line.Quantities.EarlyBird, line.Quantities.Standard).Scan(&line.ID)
	if err != nil {
		return fmt.Errorf("failed to save cart line: %w", err)
	}
	line.CartID = cartID
	return r.touch(ctx, cartID)
}

// DeleteTicketLine removes a ticket line from the cart.
func (r *CartRepository) DeleteTicketLine(ctx context.Context, cartID, lineID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_ticket_lines WHERE id = $1 AND cart_id = $2`, lineID, cartID)
	if err != nil {
		return fmt.Errorf("failed to delete cart line: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrCartLineNotFound
	}
	return r.touch(ctx, cartID)
}

// AddMembership puts a society membership in the cart.
func (r *CartRepository) AddMembership(ctx context.Context, cartID, societyID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cart_memberships (cart_id, society_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		cartID, societyID)
	if err != nil {
		return fmt.Errorf("failed to add membership to cart: %w", err)
	}
	return r.touch(ctx, cartID)
}

// RemoveMembership takes a society membership out of the cart.
func (r *CartRepository) RemoveMembership(ctx context.Context, cartID, societyID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM cart_memberships WHERE cart_id = $1 AND society_id = $2`, cartID, societyID)
	if err != nil {
		return fmt.Errorf("failed to remove membership from cart: %w", err)
	}
	return r.touch(ctx, cartID)
}

// PurgeEventLines deletes every cart line for the event and returns them.
func (r *CartRepository) PurgeEventLines(ctx context.Context, eventID int64) ([]*models.TicketLine, error) {
	var rows []ticketLineRow
	err := r.db.SelectContext(ctx, &rows, `
		DELETE FROM cart_ticket_lines WHERE event_id = $1
		RETURNING id, cart_id, event_id, early_bird_quantity, standard_quantity`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to purge cart lines: %w", err)
	}

	lines := make([]*models.TicketLine, 0, len(rows))
	for _, row := range rows {
		lines = append(lines, row.toModel())
	}
	return lines, nil
}

func (r *CartRepository) touch(ctx context.Context, cartID int64) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE carts SET updated_at = $2 WHERE id = $1`, cartID, time.Now()); err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}
