package services

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"society-ticketing/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPayoutSplitter_Split(t *testing.T) {
	splitter := NewPayoutSplitter()

	tests := []struct {
		name string
		cart *models.HistoricalCart
		want map[int64]string
	}{
		{
			name: "host tickets and another society's membership",
			cart: &models.HistoricalCart{
				TicketLines: []models.HistoricalTicketLine{{
					LineID: 1, EventID: 10, HostSocietyID: 1,
					Quantities:     models.Quantities{EarlyBird: 1, Standard: 2},
					EarlyBirdPrice: dec("3.00"), StandardPrice: dec("5.00"),
				}},
				Memberships: []models.HistoricalMembership{{SocietyID: 2, Fee: dec("8.00")}},
			},
			want: map[int64]string{1: "13.00", 2: "8.00"},
		},
		{
			name: "discount is taken from the host share",
			cart: &models.HistoricalCart{
				TicketLines: []models.HistoricalTicketLine{{
					LineID: 1, EventID: 10, HostSocietyID: 1,
					Quantities:     models.Quantities{EarlyBird: 2},
					EarlyBirdPrice: dec("3.00"),
				}},
				Memberships: []models.HistoricalMembership{{SocietyID: 1, Fee: dec("8.00")}},
				Discounts:   models.DiscountMap{1: dec("0.30")},
			},
			want: map[int64]string{1: "13.70"},
		},
		{
			name: "net never below zero",
			cart: &models.HistoricalCart{
				TicketLines: []models.HistoricalTicketLine{{
					LineID: 1, EventID: 10, HostSocietyID: 1,
					Quantities:     models.Quantities{EarlyBird: 1},
					EarlyBirdPrice: dec("0.10"),
				}},
				Discounts: models.DiscountMap{1: dec("0.50")},
			},
			want: map[int64]string{1: "0"},
		},
		{
			name: "lines without a host are skipped",
			cart: &models.HistoricalCart{
				TicketLines: []models.HistoricalTicketLine{{
					LineID: 1, EventID: 10,
					Quantities:     models.Quantities{EarlyBird: 1},
					EarlyBirdPrice: dec("3.00"),
				}},
			},
			want: map[int64]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payouts := splitter.Split(tt.cart)

			got := make(map[int64]string, len(payouts))
			for _, p := range payouts {
				got[p.SellerID] = p.Amount.StringFixed(2)
			}
			want := make(map[int64]string, len(tt.want))
			for id, amount := range tt.want {
				want[id] = dec(amount).StringFixed(2)
			}
			assert.Equal(t, want, got)

			for i := 1; i < len(payouts); i++ {
				assert.Less(t, payouts[i-1].SellerID, payouts[i].SellerID)
			}
		})
	}
}

func TestPayoutSplitter_CoOrganizersGetNothing(t *testing.T) {
	env := newTestEnv(t)
	host := env.society("chess", "10", "0", true)
	co := env.society("maths", "20", "0", true)
	event := env.event("Puzzle Hunt", host, 1, "3.00", 5, "5.00", co)
	buyer := env.student("ada", co)

	env.addTickets(t, buyer, event, 1, 0)
	result, err := env.checkout(buyer)
	require.NoError(t, err)

	require.Len(t, result.Payouts, 1)
	assert.Equal(t, host.ID, result.Payouts[0].SellerID)
	assert.Equal(t, "2.40", result.Payouts[0].Amount.StringFixed(2), "the co-organizer discount comes out of the host share")
}

func TestPayoutDistributor_Distribute(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	verified := env.society("chess", "0", "0", true)
	unverified := env.society("film", "0", "0", false)

	order := &models.SettledOrder{ID: 1, OrderNumber: "ORD-20240314-000001"}
	h := &models.HistoricalCart{
		TicketLines: []models.HistoricalTicketLine{
			{LineID: 1, HostSocietyID: verified.ID, Quantities: models.Quantities{EarlyBird: 1}, EarlyBirdPrice: dec("3.00")},
			{LineID: 2, HostSocietyID: unverified.ID, Quantities: models.Quantities{EarlyBird: 2}, EarlyBirdPrice: dec("4.50")},
		},
	}

	report, err := env.payouts.Distribute(ctx, order, h, "cus_1", "pm_1")
	require.NoError(t, err)

	assert.Equal(t, []int64{verified.ID}, report.Confirmed)
	assert.Equal(t, []int64{unverified.ID}, report.Queued)

	intents := env.gateway.Intents()
	require.Len(t, intents, 1)
	assert.Equal(t, int64(300), intents[0].AmountMinor)
	assert.Equal(t, "acct_chess", intents[0].TransferDestination)
	assert.Equal(t, models.Currency, intents[0].Currency)

	queued, err := env.queue.Peek(ctx, 10)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, int64(900), queued[0].AmountMinor)
	assert.Equal(t, 1, queued[0].Attempts)
	assert.Contains(t, queued[0].LastError, ErrNoPayoutDestination.Error())
	assert.Equal(t, env.clock.Now(), queued[0].EnqueuedAt)
}

func TestPayoutDistributor_SkipsZeroShares(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	host := env.society("film", "0", "0", true)

	h := &models.HistoricalCart{
		TicketLines: []models.HistoricalTicketLine{
			{LineID: 1, HostSocietyID: host.ID, Quantities: models.Quantities{EarlyBird: 1}, EarlyBirdPrice: dec("0")},
		},
	}

	report, err := env.payouts.Distribute(ctx, &models.SettledOrder{ID: 1}, h, "cus_1", "pm_1")
	require.NoError(t, err)
	assert.Empty(t, report.Confirmed)
	assert.Empty(t, report.Queued)
	assert.Empty(t, env.gateway.Intents())
}

func TestPayoutDistributor_Transfer(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seller := env.society("chess", "0", "0", true)

	newInstr := func(orderNumber string) *models.PayoutInstruction {
		return &models.PayoutInstruction{OrderNumber: orderNumber, SellerID: seller.ID, AmountMinor: 500, Currency: "gbp", CustomerID: "cus_1", PaymentMethodID: "pm_1"}
	}

	t.Run("confirmed", func(t *testing.T) {
		instr := newInstr("ORD-20240314-000001")
		require.NoError(t, env.payouts.Transfer(ctx, instr))
		assert.Equal(t, "acct_chess", instr.Destination)
		assert.NotEmpty(t, instr.IntentID)
		assert.Len(t, env.gateway.Confirmed(), 1)

		intents := env.gateway.Intents()
		assert.Equal(t, "payout-ORD-20240314-000001-"+strconv.FormatInt(seller.ID, 10), intents[len(intents)-1].IdempotencyKey)
	})

	t.Run("gateway failure is a payout error", func(t *testing.T) {
		boom := errors.New("processor unavailable")
		env.gateway.FailOn("Confirm", boom)
		defer env.gateway.FailOn("Confirm", nil)

		err := env.payouts.Transfer(ctx, newInstr("ORD-20240314-000002"))
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, models.KindPayout, models.KindOf(err))
	})

	t.Run("unknown seller", func(t *testing.T) {
		err := env.payouts.Transfer(ctx, &models.PayoutInstruction{SellerID: 999, AmountMinor: 100})
		assert.ErrorIs(t, err, models.ErrSocietyNotFound)
	})
}

func TestPayoutDistributor_RetryReusesIntent(t *testing.T) {
	timeout := errors.New("read tcp: i/o timeout")

	tests := []struct {
		name string
		fail func(gw *FakeGateway)
	}{
		{
			name: "confirm failed before reaching the processor",
			fail: func(gw *FakeGateway) { gw.FailOn("Confirm", timeout) },
		},
		{
			name: "confirm went through but the reply was lost",
			fail: func(gw *FakeGateway) { gw.FailAfterApplying("Confirm", timeout) },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			env := newTestEnv(t)
			seller := env.society("chess", "0", "0", true)
			h := &models.HistoricalCart{
				TicketLines: []models.HistoricalTicketLine{
					{LineID: 1, HostSocietyID: seller.ID, Quantities: models.Quantities{EarlyBird: 1}, EarlyBirdPrice: dec("3.00")},
				},
			}

			tt.fail(env.gateway)
			report, err := env.payouts.Distribute(ctx, &models.SettledOrder{ID: 1, OrderNumber: "ORD-20240314-000001"}, h, "cus_1", "pm_1")
			require.NoError(t, err)
			require.Equal(t, []int64{seller.ID}, report.Queued)
			env.gateway.FailOn("Confirm", nil)

			worker := NewPayoutRetryWorker(env.queue, env.payouts, env.clock, 5, time.Minute, 10)
			result, err := worker.RunOnce(ctx, 10)
			require.NoError(t, err)
			assert.Equal(t, 1, result.Confirmed)

			assert.Len(t, env.gateway.Intents(), 1, "one intent per seller share")
			assert.Len(t, env.gateway.Confirmed(), 1, "confirmed exactly once")
		})
	}
}

func TestPayoutDistributor_DuplicateCreateIsDeduplicated(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	seller := env.society("chess", "0", "0", true)

	// The intent id was never stored, e.g. the worker stopped after creating it.
	first := &models.PayoutInstruction{OrderNumber: "ORD-20240314-000001", SellerID: seller.ID, AmountMinor: 300, Currency: "gbp"}
	env.gateway.FailOn("Confirm", errors.New("i/o timeout"))
	require.Error(t, env.payouts.Transfer(ctx, first))
	env.gateway.FailOn("Confirm", nil)

	again := &models.PayoutInstruction{OrderNumber: "ORD-20240314-000001", SellerID: seller.ID, AmountMinor: 300, Currency: "gbp"}
	require.NoError(t, env.payouts.Transfer(ctx, again))
	assert.Equal(t, first.IntentID, again.IntentID)
	assert.Len(t, env.gateway.Intents(), 1)
}
