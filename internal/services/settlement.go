package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"society-ticketing/internal/logging"
	"society-ticketing/internal/models"
	"society-ticketing/internal/repositories"

	"github.com/sirupsen/logrus"
)

// CheckoutRequest is a buyer's request to settle their cart.
type CheckoutRequest struct {
	StudentID       int64          `json:"-"`
	FullName        string         `json:"full_name"`
	Email           string         `json:"email"`
	Address         models.Address `json:"address"`
	PaymentMethodID string         `json:"payment_method_id"`
}

// CheckoutResult is everything a successful checkout wrote.
type CheckoutResult struct {
	State          models.CheckoutState   `json:"state"`
	Order          *models.SettledOrder   `json:"order"`
	HistoricalCart *models.HistoricalCart `json:"historical_cart"`
	Payment        *models.Payment        `json:"payment,omitempty"`
	Tickets        []*models.Ticket       `json:"tickets"`
	Payouts        []models.Payout        `json:"-"`
	PayoutReport   *PayoutReport          `json:"-"`
}

// SettlementDeps are the collaborators of a SettlementEngine.
type SettlementDeps struct {
	Carts     CartStore
	Students  StudentStore
	Store     SettlementStore
	Ledger    *InventoryLedger
	Discounts *DiscountResolver
	Splitter  *PayoutSplitter
	Payouts   *PayoutDistributor
	Gateway   PaymentGateway
	Notifier  Notifier
	Clock     Clock
	Random    models.RandomSource
}

// SettlementEngine turns a cart into an order.
type SettlementEngine struct {
	deps  SettlementDeps
	rndMu sync.Mutex
}

// NewSettlementEngine creates a new settlement engine
func NewSettlementEngine(deps SettlementDeps) *SettlementEngine {
	if deps.Splitter == nil {
		deps.Splitter = NewPayoutSplitter()
	}
	return &SettlementEngine{deps: deps}
}

// charge is the outcome of setting up payment with the gateway.
type charge struct {
	customerID string
	methodID   string
	card       *CardDetails
}

// Checkout settles the student's cart.
//
// Payment is set up with the gateway before anything is written, so a
// gateway failure leaves no trace. The writes then happen in one transaction
// that re-checks inventory under lock. Payouts and the confirmation are sent
// after commit and never fail the checkout.
func (e *SettlementEngine) Checkout(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error) {
	start := e.deps.Clock.Now()
	log := logging.FromContext(ctx).WithField("student_id", req.StudentID)

	result, err := e.checkout(ctx, log, req)

	checkoutDuration.Observe(e.deps.Clock.Now().Sub(start).Seconds())
	checkoutTotal.WithLabelValues(outcomeOf(result, err)).Inc()
	return result, err
}

func outcomeOf(result *CheckoutResult, err error) string {
	switch models.KindOf(err) {
	case "":
		if result.Payment == nil {
			return outcomeFree
		}
		return outcomeSettled
	case models.KindValidation:
		return outcomeInvalid
	case models.KindGateway:
		return outcomeDeclined
	case models.KindOversell:
		return outcomeOversold
	default:
		return outcomeFailed
	}
}

func (e *SettlementEngine) checkout(ctx context.Context, log *logrus.Entry, req CheckoutRequest) (*CheckoutResult, error) {
	address := req.Address.Normalized()
	if err := address.Validate(); err != nil {
		return nil, err
	}

	buyer, err := e.deps.Students.GetStudent(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	cart, err := e.deps.Carts.GetOrCreateCart(ctx, req.StudentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, models.NewValidationError(models.CodeEmptyCart, "cart", "your cart is empty")
	}

	if err := e.precheck(ctx, cart); err != nil {
		return nil, err
	}

	summary := cart.Summarize(e.deps.Discounts.DiscountMap(cart, buyer))

	name := firstNonEmpty(req.FullName, buyer.FullName)
	email := firstNonEmpty(req.Email, buyer.Email)

	state := models.CheckoutPendingCharge
	var paid *charge
	if !summary.AllItemsFree() {
		paid, err = e.setUpPayment(ctx, name, email, req.PaymentMethodID)
		if err != nil {
			log.WithFields(logrus.Fields{
				"state":          models.CheckoutFailed,
				"payment_status": models.PaymentFailed,
			}).WithError(err).Warn("Checkout payment setup failed")
			return nil, err
		}
		state = models.CheckoutCharged
	}

	// The transaction runs to completion even if the caller goes away.
	settleCtx := context.WithoutCancel(ctx)
	now := e.deps.Clock.Now()

	result := &CheckoutResult{
		Order: &models.SettledOrder{
			OrderNumber: e.orderNumber(now),
			StudentID:   buyer.ID,
			BuyerName:   name,
			BuyerEmail:  email,
			Address:     address,
			CreatedAt:   now,
		},
		HistoricalCart: models.NewHistoricalCart(cart, summary, now),
	}
	if paid != nil {
		result.Order.CustomerID = paid.customerID
	}

	for attempt := 1; ; attempt++ {
		err = e.deps.Store.Settle(settleCtx, func(tx repositories.SettlementTx) error {
			return e.settle(settleCtx, tx, cart, buyer, summary, paid, result)
		})
		if !errors.Is(err, models.ErrDuplicateOrderNumber) || attempt == maxOrderNumberAttempts {
			break
		}
		log.WithField("order_number", result.Order.OrderNumber).Debug("Order number taken, drawing another")
		result.Order.OrderNumber = e.orderNumber(now)
	}
	log = log.WithField("order_number", result.Order.OrderNumber)
	if err != nil {
		log = log.WithFields(logrus.Fields{"state": models.CheckoutFailed, "previous_state": state})
		var oversell *models.OversellError
		if errors.As(err, &oversell) {
			oversellConflicts.Inc()
			entry := log.WithFields(logrus.Fields{
				"event_id":  oversell.EventID,
				"class":     oversell.Class,
				"requested": oversell.Requested,
				"available": oversell.Available,
			})
			if paid != nil {
				entry.WithField("customer_id", paid.customerID).WithError(err).
					Error("Oversell conflict after payment setup, reconciliation required")
			} else {
				entry.WithError(err).Warn("Oversell conflict on free order")
			}
			return nil, err
		}
		if models.KindOf(err) == models.KindValidation {
			log.WithError(err).Warn("Checkout rejected during settlement")
			return nil, err
		}
		log.WithError(err).Error("Settlement transaction failed")
		return nil, fmt.Errorf("failed to settle order: %w", err)
	}

	result.State = models.CheckoutSettled
	log.WithFields(logrus.Fields{
		"state":       state,
		"total_price": summary.TotalPrice.StringFixed(2),
		"tickets":     len(result.Tickets),
	}).Info("Order settled")

	result.Payouts = e.deps.Splitter.Split(result.HistoricalCart)
	if paid != nil && !IsFakeCustomer(paid.customerID) && e.deps.Payouts != nil {
		report, err := e.deps.Payouts.Distribute(settleCtx, result.Order, result.HistoricalCart, paid.customerID, paid.methodID)
		if err != nil {
			log.WithError(err).Error("Failed to record payout failures")
		}
		result.PayoutReport = report
	}

	if e.deps.Notifier != nil {
		if err := e.deps.Notifier.SendOrderConfirmation(settleCtx, result.Order.ID, email); err != nil {
			log.WithError(err).Error("Failed to send order confirmation")
		}
	}

	return result, nil
}

// precheck rejects carts holding cancelled events or more tickets than are
// currently left, before any money is involved.
func (e *SettlementEngine) precheck(ctx context.Context, cart *models.Cart) error {
	for _, line := range cart.TicketLines {
		if line.Event == nil || !line.Event.IsActive() {
			return models.NewValidationError(models.CodeEventNotActive, "cart",
				"an event in your cart is no longer on sale")
		}
		remaining, err := e.deps.Ledger.Inventory(ctx, line.Event)
		if err != nil {
			return err
		}
		for _, c := range models.TicketClasses {
			if line.Quantities.Get(c) > remaining.Get(c) {
				return outOfStock(c, remaining.Get(c))
			}
		}
	}
	return nil
}

func (e *SettlementEngine) setUpPayment(ctx context.Context, name, email, methodID string) (*charge, error) {
	if strings.TrimSpace(methodID) == "" {
		return nil, models.NewValidationError(models.CodeMissingPayment, "payment_method_id", "a payment method is required")
	}

	customerID, err := e.deps.Gateway.CreateCustomer(ctx, name, email)
	if err != nil {
		return nil, asGatewayError(err)
	}
	if err := e.deps.Gateway.AttachPaymentMethod(ctx, customerID, methodID); err != nil {
		return nil, asGatewayError(err)
	}

	customer, err := e.deps.Gateway.RetrieveCustomer(ctx, customerID)
	if err != nil {
		return nil, asGatewayError(err)
	}
	if customer.DefaultPaymentMethodID != "" {
		methodID = customer.DefaultPaymentMethodID
	}
	card, err := e.deps.Gateway.RetrievePaymentMethod(ctx, methodID)
	if err != nil {
		return nil, asGatewayError(err)
	}

	return &charge{customerID: customerID, methodID: methodID, card: card}, nil
}

func asGatewayError(err error) error {
	var gatewayErr *models.GatewayError
	if errors.As(err, &gatewayErr) {
		return err
	}
	return &models.GatewayError{
		Kind:        models.GatewayGeneric,
		UserMessage: "Something went wrong. You were not charged. Please try again.",
		Err:         err,
	}
}

// settle performs every write of a checkout on tx.
func (e *SettlementEngine) settle(
	ctx context.Context,
	tx repositories.SettlementTx,
	cart *models.Cart,
	buyer *models.Student,
	summary models.CartSummary,
	paid *charge,
	result *CheckoutResult,
) error {
	// Lock events in id order so concurrent settlements cannot deadlock.
	lines := append([]*models.TicketLine(nil), cart.TicketLines...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].EventID < lines[j].EventID })

	for _, line := range lines {
		snapshot, err := tx.LockInventory(ctx, line.EventID)
		if err != nil {
			return err
		}
		if snapshot.Status != models.EventActive {
			return models.NewValidationError(models.CodeEventNotActive, "cart",
				"an event in your cart is no longer on sale")
		}
		remaining := snapshot.Remaining()
		for _, c := range models.TicketClasses {
			if line.Quantities.Get(c) > remaining.Get(c) {
				return &models.OversellError{
					EventID:   line.EventID,
					Class:     c,
					Requested: line.Quantities.Get(c),
					Available: remaining.Get(c),
				}
			}
		}
	}

	if err := tx.CreateOrder(ctx, result.Order); err != nil {
		return err
	}

	result.HistoricalCart.OrderID = result.Order.ID
	if err := tx.CreateHistoricalCart(ctx, result.HistoricalCart); err != nil {
		return err
	}

	if paid != nil {
		payment := &models.Payment{
			OrderID:       result.Order.ID,
			Amount:        result.HistoricalCart.TotalPrice,
			Status:        models.PaymentCompleted,
			TransactionID: paid.methodID,
			CreatedAt:     result.Order.CreatedAt,
		}
		if paid.card != nil {
			payment.CardBrand = paid.card.Brand
			payment.CardLast4 = paid.card.Last4
		}
		if err := tx.CreatePayment(ctx, payment); err != nil {
			return err
		}
		result.Payment = payment
	}

	var tickets []*models.Ticket
	for _, line := range lines {
		tickets = append(tickets, models.NewTickets(result.Order.ID, line.EventID, line.Quantities, result.Order.CreatedAt)...)
	}
	if err := tx.CreateTickets(ctx, tickets); err != nil {
		return err
	}
	result.Tickets = tickets

	for _, line := range lines {
		if err := tx.MarkPurchased(ctx, buyer.ID, line.EventID, summary.Discounts.Has(line.ID)); err != nil {
			return err
		}
	}

	for _, society := range cart.Memberships {
		if err := tx.AddRegularMember(ctx, society.ID, buyer.ID); err != nil {
			return err
		}
	}

	return tx.ClearCart(ctx, cart)
}

// maxOrderNumberAttempts bounds settlement retries on order number collisions.
const maxOrderNumberAttempts = 5

func (e *SettlementEngine) orderNumber(now time.Time) string {
	e.rndMu.Lock()
	defer e.rndMu.Unlock()
	return models.GenerateOrderNumber(now, e.deps.Random)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
