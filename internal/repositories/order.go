package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// OrderRepository persists settlements and reads them back
type OrderRepository struct {
	db      *sqlx.DB
	tickets *TicketRepository
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db, tickets: NewTicketRepository(db)}
}

// Settle runs fn inside one database transaction. fn's writes are committed
// only if it returns nil.
func (r *OrderRepository) Settle(ctx context.Context, fn func(tx SettlementTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&settlementTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit settlement: %w", err)
	}
	return nil
}

type settlementTx struct {
	tx *sqlx.Tx
}

func (s *settlementTx) LockInventory(ctx context.Context, eventID int64) (*models.InventorySnapshot, error) {
	snapshot := &models.InventorySnapshot{EventID: eventID}

	// The row lock serialises settlements touching the same event until commit.
	err := s.tx.QueryRowxContext(ctx, `
		SELECT status, early_bird_capacity, standard_capacity
		FROM events
		WHERE id = $1
		FOR UPDATE`, eventID).Scan(&snapshot.Status, &snapshot.Capacity.EarlyBird, &snapshot.Capacity.Standard)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event inventory: %w", err)
	}

	snapshot.Sold, err = countSold(ctx, s.tx, eventID)
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *settlementTx) CreateOrder(ctx context.Context, order *models.SettledOrder) error {
	a := order.Address
	err := s.tx.QueryRowxContext(ctx, `
		INSERT INTO orders (order_number, student_id, buyer_name, buyer_email,
			address_line_1, address_line_2, city_town, postcode, country, customer_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		order.OrderNumber, order.StudentID, order.BuyerName, order.BuyerEmail,
		a.Line1, a.Line2, a.CityTown, a.Postcode, a.Country, order.CustomerID, order.CreatedAt,
	).Scan(&order.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "orders_order_number_key" {
			return models.ErrDuplicateOrderNumber
		}
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (s *settlementTx) CreateHistoricalCart(ctx context.Context, h *models.HistoricalCart) error {
	err := s.tx.QueryRowxContext(ctx, `
		INSERT INTO historical_carts (order_id, total_price, total_saved, item_count, discount_data, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`,
		h.OrderID, h.TotalPrice, h.TotalSaved, h.Count, h.Discounts, h.CreatedAt,
	).Scan(&h.ID)
	if err != nil {
		return fmt.Errorf("failed to create historical cart: %w", err)
	}

	for _, l := range h.TicketLines {
		_, err := s.tx.ExecContext(ctx, `
			INSERT INTO historical_cart_ticket_lines (historical_cart_id, line_id, event_id, event_name,
				host_society_id, early_bird_quantity, standard_quantity, early_bird_price, standard_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			h.ID, l.LineID, l.EventID, l.EventName, l.HostSocietyID,
			l.Quantities.EarlyBird, l.Quantities.Standard, l.EarlyBirdPrice, l.StandardPrice)
		if err != nil {
			return fmt.Errorf("failed to snapshot ticket line: %w", err)
		}
	}

	for _, m := range h.Memberships {
		_, err := s.tx.ExecContext(ctx, `
			INSERT INTO historical_cart_memberships (historical_cart_id, society_id, society_name, fee)
			VALUES ($1, $2, $3, $4)`,
			h.ID, m.SocietyID, m.SocietyName, m.Fee)
		if err != nil {
			return fmt.Errorf("failed to snapshot membership: %w", err)
		}
	}

	return nil
}

func (s *settlementTx) CreatePayment(ctx context.Context, p *models.Payment) error {
	err := s.tx.QueryRowxContext(ctx, `
		INSERT INTO payments (order_id, amount, status, card_brand, card_last4, transaction_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		p.OrderID, p.Amount, p.Status, p.CardBrand, p.CardLast4, p.TransactionID, p.CreatedAt,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *settlementTx) CreateTickets(ctx context.Context, tickets []*models.Ticket) error {
	for _, t := range tickets {
		err := s.tx.QueryRowxContext(ctx, `
			INSERT INTO tickets (code, event_id, order_id, class, created_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id`,
			t.Code, t.EventID, t.OrderID, t.Class, t.CreatedAt,
		).Scan(&t.ID)
		if err != nil {
			return fmt.Errorf("failed to create ticket: %w", err)
		}
	}
	return nil
}

func (s *settlementTx) MarkPurchased(ctx context.Context, studentID, eventID int64, discounted bool) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO student_events (student_id, event_id, purchased, discounted)
		VALUES ($1, $2, TRUE, $3)
		ON CONFLICT (student_id, event_id) DO UPDATE
		SET purchased = TRUE, discounted = student_events.discounted OR EXCLUDED.discounted`,
		studentID, eventID, discounted)
	if err != nil {
		return fmt.Errorf("failed to mark event purchased: %w", err)
	}
	return nil
}

func (s *settlementTx) AddRegularMember(ctx context.Context, societyID, studentID int64) error {
	_, err := s.tx.ExecContext(ctx, `
		INSERT INTO society_members (society_id, student_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING`, societyID, studentID, models.RoleRegular)
	if err != nil {
		return fmt.Errorf("failed to grant membership: %w", err)
	}
	return nil
}

func (s *settlementTx) ClearCart(ctx context.Context, settled *models.Cart) error {
	if _, err := s.tx.ExecContext(ctx, `SELECT id FROM carts WHERE id = $1 FOR UPDATE`, settled.ID); err != nil {
		return fmt.Errorf("failed to lock cart: %w", err)
	}
	for _, line := range settled.TicketLines {
		res, err := s.tx.ExecContext(ctx, `
			DELETE FROM cart_ticket_lines
			WHERE id = $1 AND cart_id = $2 AND early_bird_quantity = $3 AND standard_quantity = $4`,
			line.ID, settled.ID, line.Quantities.EarlyBird, line.Quantities.Standard)
		if err := requireOneRow(res, err); err != nil {
			return fmt.Errorf("failed to clear cart line %d: %w", line.ID, err)
		}
	}
	for _, soc := range settled.Memberships {
		res, err := s.tx.ExecContext(ctx,
			`DELETE FROM cart_memberships WHERE cart_id = $1 AND society_id = $2`, settled.ID, soc.ID)
		if err := requireOneRow(res, err); err != nil {
			return fmt.Errorf("failed to clear cart membership %d: %w", soc.ID, err)
		}
	}
	if _, err := s.tx.ExecContext(ctx, `UPDATE carts SET updated_at = NOW() WHERE id = $1`, settled.ID); err != nil {
		return fmt.Errorf("failed to update cart: %w", err)
	}
	return nil
}

// requireOneRow turns a conditional delete that matched nothing into a
// cart-changed error.
func requireOneRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.NewCartChangedError()
	}
	return nil
}

type orderRow struct {
	ID          int64  `db:"id"`
	OrderNumber string `db:"order_number"`
	StudentID   int64  `db:"student_id"`
	BuyerName   string `db:"buyer_name"`
	BuyerEmail  string `db:"buyer_email"`
	models.Address
	CustomerID string       `db:"customer_id"`
	CreatedAt  sql.NullTime `db:"created_at"`
}

// OrderDetails is a settled order with everything written alongside it.
type OrderDetails struct {
	Order          *models.SettledOrder   `json:"order"`
	HistoricalCart *models.HistoricalCart `json:"historical_cart"`
	Payment        *models.Payment        `json:"payment,omitempty"`
	Tickets        []*models.Ticket       `json:"tickets"`
}

// GetOrderDetails reads back an order by its number.
func (r *OrderRepository) GetOrderDetails(ctx context.Context, orderNumber string) (*OrderDetails, error) {
	var row orderRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, order_number, student_id, buyer_name, buyer_email, address_line_1, address_line_2,
			city_town, postcode, country, customer_id, created_at
		FROM orders WHERE order_number = $1`, orderNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}

	details := &OrderDetails{Order: &models.SettledOrder{
		ID:          row.ID,
		OrderNumber: row.OrderNumber,
		StudentID:   row.StudentID,
		BuyerName:   row.BuyerName,
		BuyerEmail:  row.BuyerEmail,
		Address:     row.Address,
		CustomerID:  row.CustomerID,
		CreatedAt:   row.CreatedAt.Time,
	}}

	if details.HistoricalCart, err = r.getHistoricalCart(ctx, row.ID); err != nil {
		return nil, err
	}

	var payment models.Payment
	err = r.db.GetContext(ctx, &payment, `
		SELECT id, order_id, amount, status, card_brand, card_last4, transaction_id, created_at
		FROM payments WHERE order_id = $1`, row.ID)
	switch {
	case err == nil:
		details.Payment = &payment
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	if details.Tickets, err = r.tickets.GetTicketsByOrder(ctx, row.ID); err != nil {
		return nil, err
	}

	return details, nil
}

type historicalCartRow struct {
	ID         int64              `db:"id"`
	OrderID    int64              `db:"order_id"`
	TotalPrice decimal.Decimal    `db:"total_price"`
	TotalSaved decimal.Decimal    `db:"total_saved"`
	Count      int                `db:"item_count"`
	Discounts  models.DiscountMap `db:"discount_data"`
	CreatedAt  sql.NullTime       `db:"created_at"`
}

type historicalLineRow struct {
	LineID         int64           `db:"line_id"`
	EventID        int64           `db:"event_id"`
	EventName      string          `db:"event_name"`
	HostSocietyID  int64           `db:"host_society_id"`
	EarlyBirdPrice decimal.Decimal `db:"early_bird_price"`
	StandardPrice  decimal.Decimal `db:"standard_price"`
	models.Quantities
}

func (r *OrderRepository) getHistoricalCart(ctx context.Context, orderID int64) (*models.HistoricalCart, error) {
	var row historicalCartRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, order_id, total_price, total_saved, item_count, discount_data, created_at
		FROM historical_carts WHERE order_id = $1`, orderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get historical cart: %w", err)
	}

	h := &models.HistoricalCart{
		ID:         row.ID,
		OrderID:    row.OrderID,
		TotalPrice: row.TotalPrice,
		TotalSaved: row.TotalSaved,
		Count:      row.Count,
		Discounts:  row.Discounts,
		CreatedAt:  row.CreatedAt.Time,
	}

	var lines []historicalLineRow
	err = r.db.SelectContext(ctx, &lines, `
		SELECT line_id, event_id, event_name, host_society_id, early_bird_quantity, standard_quantity,
			early_bird_price, standard_price
		FROM historical_cart_ticket_lines WHERE historical_cart_id = $1 ORDER BY line_id`, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical lines: %w", err)
	}
	for _, l := range lines {
		h.TicketLines = append(h.TicketLines, models.HistoricalTicketLine{
			LineID:         l.LineID,
			EventID:        l.EventID,
			EventName:      l.EventName,
			HostSocietyID:  l.HostSocietyID,
			Quantities:     l.Quantities,
			EarlyBirdPrice: l.EarlyBirdPrice,
			StandardPrice:  l.StandardPrice,
		})
	}

	err = r.db.SelectContext(ctx, &h.Memberships, `
		SELECT society_id, society_name, fee
		FROM historical_cart_memberships WHERE historical_cart_id = $1 ORDER BY society_id`, h.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get historical memberships: %w", err)
	}

	return h, nil
}
