package services

import (
	"context"
	"fmt"

	"society-ticketing/internal/logging"
	"society-ticketing/internal/models"

	"github.com/sirupsen/logrus"
)

// CartView is a cart together with its priced summary.
type CartView struct {
	Cart    *models.Cart       `json:"cart"`
	Summary models.CartSummary `json:"summary"`
}

// CartService validates and applies cart mutations
type CartService struct {
	carts     CartStore
	events    EventStore
	societies SocietyStore
	students  StudentStore
	ledger    *InventoryLedger
	discounts *DiscountResolver
}

// NewCartService creates a new cart service
func NewCartService(
	carts CartStore,
	events EventStore,
	societies SocietyStore,
	students StudentStore,
	ledger *InventoryLedger,
	discounts *DiscountResolver,
) *CartService {
	return &CartService{
		carts:     carts,
		events:    events,
		societies: societies,
		students:  students,
		ledger:    ledger,
		discounts: discounts,
	}
}

// GetCart returns the student's cart, creating it if needed.
func (s *CartService) GetCart(ctx context.Context, studentID int64) (*CartView, error) {
	cart, buyer, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return s.view(cart, buyer), nil
}

func (s *CartService) load(ctx context.Context, studentID int64) (*models.Cart, *models.Student, error) {
	buyer, err := s.students.GetStudent(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get student: %w", err)
	}
	cart, err := s.carts.GetOrCreateCart(ctx, studentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get cart: %w", err)
	}
	return cart, buyer, nil
}

func (s *CartService) view(cart *models.Cart, buyer *models.Student) *CartView {
	return &CartView{Cart: cart, Summary: cart.Summarize(s.discounts.DiscountMap(cart, buyer))}
}

func (s *CartService) reload(ctx context.Context, studentID int64) (*CartView, error) {
	return s.GetCart(ctx, studentID)
}

// AddTickets adds q to the cart's line for the event. Availability is read
// fresh for every class requested. Standard tickets are only released once
// no early-bird units remain for this cart.
func (s *CartService) AddTickets(ctx context.Context, studentID, eventID int64, q models.Quantities) (*CartView, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if q.IsZero() {
		return nil, models.NewValidationError(models.CodeInvalidQuantity, "quantities", "select at least one ticket")
	}

	cart, _, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if !event.IsActive() {
		return nil, models.NewValidationError(models.CodeEventNotActive, "event_id", "this event is no longer on sale")
	}

	if err := s.checkRequest(ctx, cart, event, q); err != nil {
		return nil, err
	}

	line := cart.LineForEvent(eventID)
	if line == nil {
		line = &models.TicketLine{EventID: eventID, Event: event}
	}
	line.Quantities = line.Quantities.Plus(q)

	if err := s.carts.SaveTicketLine(ctx, cart.ID, line); err != nil {
		return nil, fmt.Errorf("failed to save ticket line: %w", err)
	}

	logging.FromContext(ctx).WithFields(logrus.Fields{
		"student_id": studentID,
		"event_id":   eventID,
		"early_bird": q.EarlyBird,
		"standard":   q.Standard,
	}).Debug("Tickets added to cart")

	return s.reload(ctx, studentID)
}

// checkRequest rejects q when it exceeds what this cart may still add.
func (s *CartService) checkRequest(ctx context.Context, cart *models.Cart, event *models.Event, q models.Quantities) error {
	earlyLeft, err := s.ledger.AvailableForCart(ctx, cart, event, models.TicketClassEarlyBird)
	if err != nil {
		return err
	}
	if q.EarlyBird > earlyLeft {
		return outOfStock(models.TicketClassEarlyBird, earlyLeft)
	}

	if q.Standard == 0 {
		return nil
	}
	if earlyLeft-q.EarlyBird > 0 {
		return models.NewValidationError(models.CodeNotReleased, string(models.TicketClassStandard),
			"standard tickets are released once early bird tickets are sold out")
	}

	standardLeft, err := s.ledger.AvailableForCart(ctx, cart, event, models.TicketClassStandard)
	if err != nil {
		return err
	}
	if q.Standard > standardLeft {
		return outOfStock(models.TicketClassStandard, standardLeft)
	}
	return nil
}

func outOfStock(c models.TicketClass, left int) error {
	if left == 0 {
		return models.NewValidationError(models.CodeOutOfStock, string(c), "sold out")
	}
	return models.NewValidationError(models.CodeOutOfStock, string(c),
		fmt.Sprintf("only %d more can be added", left))
}

// AdjustTicketQuantity changes one class on a line by delta, clamping at
// zero. A line with nothing left is removed.
func (s *CartService) AdjustTicketQuantity(ctx context.Context, studentID, lineID int64, class models.TicketClass, delta int) (*CartView, error) {
	if !class.Valid() {
		return nil, models.NewValidationError(models.CodeInvalidQuantity, "class", "unknown ticket class")
	}

	cart, _, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	line := cart.Line(lineID)
	if line == nil {
		return nil, models.ErrCartLineNotFound
	}

	if delta > 0 {
		if line.Event == nil || !line.Event.IsActive() {
			return nil, models.NewValidationError(models.CodeEventNotActive, "event_id", "this event is no longer on sale")
		}
		var q models.Quantities
		q.Set(class, delta)
		if err := s.checkRequest(ctx, cart, line.Event, q); err != nil {
			return nil, err
		}
	}

	line.Quantities = line.Quantities.Add(class, delta)
	if line.Quantities.IsZero() {
		err = s.carts.DeleteTicketLine(ctx, cart.ID, lineID)
	} else {
		err = s.carts.SaveTicketLine(ctx, cart.ID, line)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to adjust ticket line: %w", err)
	}

	return s.reload(ctx, studentID)
}

// RemoveTicketLine drops a line from the cart.
func (s *CartService) RemoveTicketLine(ctx context.Context, studentID, lineID int64) (*CartView, error) {
	cart, _, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if cart.Line(lineID) == nil {
		return nil, models.ErrCartLineNotFound
	}
	if err := s.carts.DeleteTicketLine(ctx, cart.ID, lineID); err != nil {
		return nil, fmt.Errorf("failed to remove ticket line: %w", err)
	}
	return s.reload(ctx, studentID)
}

// AddMembership puts a society's membership in the cart.
func (s *CartService) AddMembership(ctx context.Context, studentID, societyID int64) (*CartView, error) {
	cart, buyer, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}

	society, err := s.societies.GetSociety(ctx, societyID)
	if err != nil {
		return nil, fmt.Errorf("failed to get society: %w", err)
	}

	switch {
	case buyer.IsRegularMember(societyID):
		return nil, models.NewValidationError(models.CodeAlreadyMember, "membership", "You are already a member.")
	case cart.HasMembership(societyID):
		return nil, models.NewValidationError(models.CodeMembershipInCart, "membership", "You can only add it once.")
	case !society.AcceptsNewMembers():
		return nil, models.NewValidationError(models.CodeMembershipClosed, "membership", "This society is not accepting new members.")
	}

	if err := s.carts.AddMembership(ctx, cart.ID, societyID); err != nil {
		return nil, fmt.Errorf("failed to add membership: %w", err)
	}

	logging.FromContext(ctx).WithFields(logrus.Fields{
		"student_id": studentID,
		"society_id": societyID,
	}).Debug("Membership added to cart")

	return s.reload(ctx, studentID)
}

// RemoveMembership takes a society's membership out of the cart.
func (s *CartService) RemoveMembership(ctx context.Context, studentID, societyID int64) (*CartView, error) {
	cart, _, err := s.load(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if !cart.HasMembership(societyID) {
		return nil, models.NewValidationError(models.CodeMembershipNotFound, "membership", "membership is not in the cart")
	}
	if err := s.carts.RemoveMembership(ctx, cart.ID, societyID); err != nil {
		return nil, fmt.Errorf("failed to remove membership: %w", err)
	}
	return s.reload(ctx, studentID)
}
