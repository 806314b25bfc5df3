package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"society-ticketing/internal/database"
	"society-ticketing/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepos struct {
	db        *sqlx.DB
	societies *SocietyRepository
	students  *StudentRepository
	events    *EventRepository
	carts     *CartRepository
	tickets   *TicketRepository
	orders    *OrderRepository
}

// setupTestDB connects to TEST_DATABASE_URL, migrates and empties it.
func setupTestDB(t *testing.T) *testRepos {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := sqlx.Open("postgres", url)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = database.NewMigrator(db).Up(context.Background())
	require.NoError(t, err)
	_, err = db.Exec(`TRUNCATE tickets, payments, historical_cart_memberships, historical_cart_ticket_lines,
		historical_carts, orders, cart_memberships, cart_ticket_lines, carts, student_events,
		event_organizers, events, society_members, students, societies RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	societies := NewSocietyRepository(db)
	events := NewEventRepository(db, societies)
	return &testRepos{
		db:        db,
		societies: societies,
		students:  NewStudentRepository(db),
		events:    events,
		carts:     NewCartRepository(db, events, societies),
		tickets:   NewTicketRepository(db),
		orders:    NewOrderRepository(db),
	}
}

func (r *testRepos) seed(t *testing.T, earlyCap, standardCap int) (*models.Society, *models.Event, *models.Student) {
	t.Helper()
	ctx := context.Background()

	society := &models.Society{
		Name:           "Chess Society",
		MemberDiscount: decimal.RequireFromString("10"),
		MemberFee:      decimal.RequireFromString("8.00"),
		Payout: models.PayoutDestination{
			AccountName: "Chess Society", AccountNumber: "12345678", SortCode: "108800", ProcessorAccountID: "acct_chess",
		},
	}
	require.NoError(t, r.societies.CreateSociety(ctx, society))

	start := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	event := &models.Event{
		Name:      "Blitz Night",
		Location:  "Bush House",
		HostID:    society.ID,
		EarlyBird: models.TicketClassSpec{Capacity: earlyCap, Price: decimal.RequireFromString("3.00")},
		Standard:  models.TicketClassSpec{Capacity: standardCap, Price: decimal.RequireFromString("5.00")},
		Status:    models.EventActive,
		StartTime: start,
		EndTime:   start.Add(3 * time.Hour),
	}
	require.NoError(t, r.events.CreateEvent(ctx, event, nil))

	student := &models.Student{FullName: "Ada Lovelace", Email: fmt.Sprintf("ada-%d@example.ac.uk", time.Now().UnixNano())}
	require.NoError(t, r.students.CreateStudent(ctx, student))

	return society, event, student
}

func TestCartRepository_Lines(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	society, event, student := repos.seed(t, 2, 5)

	cart, err := repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	again, err := repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	assert.Equal(t, cart.ID, again.ID, "one cart per student")

	line := &models.TicketLine{EventID: event.ID, Quantities: models.Quantities{EarlyBird: 2}}
	require.NoError(t, repos.carts.SaveTicketLine(ctx, cart.ID, line))
	require.NotZero(t, line.ID)

	line.Quantities.Standard = 1
	require.NoError(t, repos.carts.SaveTicketLine(ctx, cart.ID, line))
	require.NoError(t, repos.carts.AddMembership(ctx, cart.ID, society.ID))

	cart, err = repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, cart.TicketLines, 1)
	assert.Equal(t, models.Quantities{EarlyBird: 2, Standard: 1}, cart.TicketLines[0].Quantities)
	require.NotNil(t, cart.TicketLines[0].Event)
	assert.Equal(t, society.ID, cart.TicketLines[0].Event.Host.ID)
	require.Len(t, cart.Memberships, 1)

	purged, err := repos.carts.PurgeEventLines(ctx, event.ID)
	require.NoError(t, err)
	assert.Len(t, purged, 1)

	require.NoError(t, repos.carts.RemoveMembership(ctx, cart.ID, society.ID))
	cart, err = repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func settleOne(ctx context.Context, repos *testRepos, cart *models.Cart, student *models.Student, event *models.Event, q models.Quantities) (*models.SettledOrder, error) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	order := &models.SettledOrder{
		OrderNumber: fmt.Sprintf("ORD-%s-%06d", now.Format("20060102"), now.Nanosecond()%1000000),
		StudentID:   student.ID,
		BuyerName:   student.FullName,
		BuyerEmail:  student.Email,
		Address:     models.Address{Line1: "Strand", CityTown: "London", Postcode: "WC2R 2LS", Country: models.DefaultCountry},
		CustomerID:  "cus_123",
		CreatedAt:   now,
	}

	err := repos.orders.Settle(ctx, func(tx SettlementTx) error {
		snapshot, err := tx.LockInventory(ctx, event.ID)
		if err != nil {
			return err
		}
		remaining := snapshot.Remaining()
		for _, c := range models.TicketClasses {
			if q.Get(c) > remaining.Get(c) {
				return &models.OversellError{EventID: event.ID, Class: c, Requested: q.Get(c), Available: remaining.Get(c)}
			}
		}

		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		h := &models.HistoricalCart{
			OrderID: order.ID,
			TicketLines: []models.HistoricalTicketLine{{
				LineID: 1, EventID: event.ID, EventName: event.Name, HostSocietyID: event.HostID,
				Quantities: q, EarlyBirdPrice: event.EarlyBird.Price, StandardPrice: event.Standard.Price,
			}},
			TotalPrice: event.LineTotal(q).Sub(decimal.RequireFromString("0.30")),
			TotalSaved: decimal.RequireFromString("0.30"),
			Count:      q.Total(),
			Discounts:  models.DiscountMap{1: decimal.RequireFromString("0.30")},
			CreatedAt:  now,
		}
		if err := tx.CreateHistoricalCart(ctx, h); err != nil {
			return err
		}
		if err := tx.CreatePayment(ctx, &models.Payment{
			OrderID: order.ID, Amount: h.TotalPrice, Status: models.PaymentCompleted,
			CardBrand: "visa", CardLast4: "4242", TransactionID: "pm_card_visa", CreatedAt: now,
		}); err != nil {
			return err
		}
		if err := tx.CreateTickets(ctx, models.NewTickets(order.ID, event.ID, q, now)); err != nil {
			return err
		}
		if err := tx.MarkPurchased(ctx, student.ID, event.ID, true); err != nil {
			return err
		}
		if err := tx.AddRegularMember(ctx, event.HostID, student.ID); err != nil {
			return err
		}
		return tx.ClearCart(ctx, cart)
	})
	return order, err
}

func TestOrderRepository_Settle(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	society, event, student := repos.seed(t, 2, 5)

	cart, err := repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	require.NoError(t, repos.carts.SaveTicketLine(ctx, cart.ID, &models.TicketLine{EventID: event.ID, Quantities: models.Quantities{EarlyBird: 2}}))
	cart, err = repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)

	order, err := settleOne(ctx, repos, cart, student, event, models.Quantities{EarlyBird: 2})
	require.NoError(t, err)

	sold, err := repos.tickets.CountSold(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Quantities{EarlyBird: 2}, sold)

	details, err := repos.orders.GetOrderDetails(ctx, order.OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, "WC2R 2LS", details.Order.Address.Postcode)
	require.NotNil(t, details.Payment)
	assert.Equal(t, "4242", details.Payment.CardLast4)
	assert.Len(t, details.Tickets, 2)
	require.NotNil(t, details.HistoricalCart)
	assert.True(t, details.HistoricalCart.Discounts.Get(1).Equal(decimal.RequireFromString("0.30")))
	require.Len(t, details.HistoricalCart.TicketLines, 1)
	assert.Equal(t, society.ID, details.HistoricalCart.TicketLines[0].HostSocietyID)

	stored, err := repos.students.GetStudent(ctx, student.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasPurchased(event.ID))
	assert.True(t, stored.HasDiscountFor(event.ID))
	assert.True(t, stored.IsRegularMember(society.ID))

	cart, err = repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	_, err = repos.orders.GetOrderDetails(ctx, "ORD-19990101-000000")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestOrderRepository_SettleRejectsCartChangedMidway(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	_, event, student := repos.seed(t, 2, 5)

	cart, err := repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	require.NoError(t, repos.carts.SaveTicketLine(ctx, cart.ID, &models.TicketLine{EventID: event.ID, Quantities: models.Quantities{EarlyBird: 1}}))
	cart, err = repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)

	require.NoError(t, repos.carts.SaveTicketLine(ctx, cart.ID, &models.TicketLine{EventID: event.ID, Quantities: models.Quantities{EarlyBird: 2}}))

	_, err = settleOne(ctx, repos, cart, student, event, models.Quantities{EarlyBird: 1})
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, models.CodeCartChanged, verr.Code)

	sold, err := repos.tickets.CountSold(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Quantities{}, sold)

	cart, err = repos.carts.GetOrCreateCart(ctx, student.ID)
	require.NoError(t, err)
	require.Len(t, cart.TicketLines, 1)
	assert.Equal(t, models.Quantities{EarlyBird: 2}, cart.TicketLines[0].Quantities)
}

func TestOrderRepository_DuplicateOrderNumber(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	_, _, student := repos.seed(t, 2, 5)

	create := func() error {
		return repos.orders.Settle(ctx, func(tx SettlementTx) error {
			return tx.CreateOrder(ctx, &models.SettledOrder{
				OrderNumber: "ORD-20240314-000001",
				StudentID:   student.ID,
				BuyerName:   student.FullName,
				BuyerEmail:  student.Email,
				Address:     models.Address{Line1: "Strand", CityTown: "London", Postcode: "WC2R 2LS", Country: models.DefaultCountry},
				CreatedAt:   time.Now(),
			})
		})
	}
	require.NoError(t, create())
	assert.ErrorIs(t, create(), models.ErrDuplicateOrderNumber)
}

func TestOrderRepository_SettleRollsBack(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	_, event, student := repos.seed(t, 2, 5)

	boom := errors.New("boom")
	err := repos.orders.Settle(ctx, func(tx SettlementTx) error {
		order := &models.SettledOrder{
			OrderNumber: "ORD-20240314-000001",
			StudentID:   student.ID,
			BuyerName:   student.FullName,
			BuyerEmail:  student.Email,
			Address:     models.Address{Line1: "Strand", CityTown: "London", Postcode: "WC2R 2LS"},
			CreatedAt:   time.Now(),
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := tx.CreateTickets(ctx, models.NewTickets(order.ID, event.ID, models.Quantities{EarlyBird: 1}, time.Now())); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	sold, err := repos.tickets.CountSold(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.Quantities{}, sold)

	_, err = repos.orders.GetOrderDetails(ctx, "ORD-20240314-000001")
	assert.ErrorIs(t, err, models.ErrOrderNotFound)
}

func TestOrderRepository_ConcurrentSettleNeverOversells(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	_, event, _ := repos.seed(t, 1, 0)

	const buyers = 5
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		student := &models.Student{FullName: "Buyer", Email: fmt.Sprintf("buyer-%d-%d@example.ac.uk", i, time.Now().UnixNano())}
		require.NoError(t, repos.students.CreateStudent(ctx, student))
		cart, err := repos.carts.GetOrCreateCart(ctx, student.ID)
		require.NoError(t, err)

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = settleOne(ctx, repos, cart, student, event, models.Quantities{EarlyBird: 1})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var oversell *models.OversellError
		if !errors.As(err, &oversell) {
			// Order numbers are derived from the clock and may collide under load.
			assert.Contains(t, err.Error(), "order")
		}
	}
	assert.Equal(t, 1, succeeded)

	sold, err := repos.tickets.CountSold(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, sold.EarlyBird)
}

func TestEventRepository_Update(t *testing.T) {
	repos := setupTestDB(t)
	ctx := context.Background()
	_, event, _ := repos.seed(t, 2, 5)

	_, err := event.Cancel(time.Now())
	require.NoError(t, err)
	require.NoError(t, repos.events.UpdateEvent(ctx, event))

	stored, err := repos.events.GetEvent(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, models.EventCancelled, stored.Status)

	_, err = repos.events.GetEvent(ctx, event.ID+1000)
	assert.ErrorIs(t, err, models.ErrEventNotFound)
}
