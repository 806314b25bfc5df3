package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"society-ticketing/internal/models"
	"society-ticketing/internal/repositories/memory"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier keeps every notification it is asked to send.
type recordingNotifier struct {
	mu            sync.Mutex
	err           error
	confirmations []string
	cancelled     map[int64][]Recipient
	modified      map[int64][]Recipient
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		cancelled: make(map[int64][]Recipient),
		modified:  make(map[int64][]Recipient),
	}
}

func (n *recordingNotifier) SendOrderConfirmation(_ context.Context, orderID int64, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.confirmations = append(n.confirmations, fmt.Sprintf("%d:%s", orderID, email))
	return n.err
}

func (n *recordingNotifier) SendEventCancelledNotice(_ context.Context, eventID int64, recipients []Recipient) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.cancelled[eventID] = recipients
	return n.err
}

func (n *recordingNotifier) SendEventModifiedNotice(_ context.Context, eventID int64, recipients []Recipient) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.modified[eventID] = recipients
	return n.err
}

func (n *recordingNotifier) Confirmations() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.confirmations...)
}

// MockGateway is a testify mock of PaymentGateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) CreateCustomer(ctx context.Context, name, email string) (string, error) {
	args := m.Called(ctx, name, email)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) AttachPaymentMethod(ctx context.Context, customerID, methodID string) error {
	args := m.Called(ctx, customerID, methodID)
	return args.Error(0)
}

func (m *MockGateway) CreatePaymentIntent(ctx context.Context, params PaymentIntentParams) (*PaymentIntent, error) {
	args := m.Called(ctx, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentIntent), args.Error(1)
}

func (m *MockGateway) RetrievePaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentIntent), args.Error(1)
}

func (m *MockGateway) Confirm(ctx context.Context, intentID string) (*PaymentIntent, error) {
	args := m.Called(ctx, intentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*PaymentIntent), args.Error(1)
}

func (m *MockGateway) RetrieveCustomer(ctx context.Context, customerID string) (*Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Customer), args.Error(1)
}

func (m *MockGateway) RetrievePaymentMethod(ctx context.Context, methodID string) (*CardDetails, error) {
	args := m.Called(ctx, methodID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*CardDetails), args.Error(1)
}

// testEnv wires every service over one memory store.
type testEnv struct {
	store     *memory.Store
	gateway   *FakeGateway
	notifier  *recordingNotifier
	queue     *MemoryPayoutQueue
	clock     *fixedClock
	ledger    *InventoryLedger
	discounts *DiscountResolver
	carts     *CartService
	payouts   *PayoutDistributor
	engine    *SettlementEngine
	events    *EventService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithGateway(t, nil)
}

// newTestEnvWithGateway uses gw for checkout and payouts, or a FakeGateway when nil.
func newTestEnvWithGateway(t *testing.T, gw PaymentGateway) *testEnv {
	t.Helper()

	env := &testEnv{
		store:     memory.NewStore(),
		gateway:   NewFakeGateway(rand.New(rand.NewSource(7))),
		notifier:  newRecordingNotifier(),
		queue:     NewMemoryPayoutQueue(),
		clock:     newFixedClock(),
		discounts: NewDiscountResolver(),
	}
	if gw == nil {
		gw = env.gateway
	}

	env.ledger = NewInventoryLedger(env.store)
	env.carts = NewCartService(env.store, env.store, env.store, env.store, env.ledger, env.discounts)
	env.payouts = NewPayoutDistributor(gw, env.store, env.queue, NewPayoutSplitter(), models.Currency, env.clock)
	env.engine = NewSettlementEngine(SettlementDeps{
		Carts:     env.store,
		Students:  env.store,
		Store:     env.store,
		Ledger:    env.ledger,
		Discounts: env.discounts,
		Payouts:   env.payouts,
		Gateway:   gw,
		Notifier:  env.notifier,
		Clock:     env.clock,
		Random:    rand.New(rand.NewSource(42)),
	})
	env.events = NewEventService(env.store, env.store, env.store, env.store, env.notifier, env.clock)
	return env
}

func (env *testEnv) society(name, discount, fee string, verified bool) *models.Society {
	s := &models.Society{
		Name:           name,
		MemberDiscount: dec(discount),
		MemberFee:      dec(fee),
	}
	if verified {
		s.Payout = models.PayoutDestination{
			AccountName:        name,
			AccountNumber:      "12345678",
			SortCode:           "108800",
			ProcessorAccountID: "acct_" + name,
		}
	}
	return env.store.AddSociety(s)
}

func (env *testEnv) event(name string, host *models.Society, earlyCap int, earlyPrice string, standardCap int, standardPrice string, coOrganizers ...*models.Society) *models.Event {
	ids := make([]int64, 0, len(coOrganizers))
	for _, s := range coOrganizers {
		ids = append(ids, s.ID)
	}
	return env.store.AddEvent(&models.Event{
		Name:      name,
		Location:  "Bush House",
		HostID:    host.ID,
		EarlyBird: models.TicketClassSpec{Capacity: earlyCap, Price: dec(earlyPrice)},
		Standard:  models.TicketClassSpec{Capacity: standardCap, Price: dec(standardPrice)},
		Status:    models.EventActive,
		StartTime: env.clock.Now().Add(72 * time.Hour),
		EndTime:   env.clock.Now().Add(75 * time.Hour),
	}, ids...)
}

func (env *testEnv) student(name string, memberOf ...*models.Society) *models.Student {
	st := &models.Student{
		FullName:    name,
		Email:       fmt.Sprintf("%s@example.ac.uk", name),
		Memberships: models.NewIDSet(),
	}
	for _, s := range memberOf {
		st.Memberships.Add(s.ID)
	}
	return env.store.AddStudent(st)
}

func (env *testEnv) addTickets(t *testing.T, student *models.Student, event *models.Event, early, standard int) *CartView {
	t.Helper()
	view, err := env.carts.AddTickets(context.Background(), student.ID, event.ID, models.Quantities{EarlyBird: early, Standard: standard})
	require.NoError(t, err)
	return view
}

func testAddress() models.Address {
	return models.Address{
		Line1:    "Strand",
		CityTown: "London",
		Postcode: "wc2r 2ls",
	}
}

func (env *testEnv) checkout(student *models.Student) (*CheckoutResult, error) {
	return env.engine.Checkout(context.Background(), CheckoutRequest{
		StudentID:       student.ID,
		Address:         testAddress(),
		PaymentMethodID: "pm_card_visa",
	})
}
