package services

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"society-ticketing/internal/logging"
	"society-ticketing/internal/models"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrNoPayoutDestination is recorded when a seller cannot receive transfers yet.
var ErrNoPayoutDestination = errors.New("seller has no payout destination")

// PayoutSplitter computes each seller's share of an order.
type PayoutSplitter struct{}

// NewPayoutSplitter creates a new payout splitter
func NewPayoutSplitter() *PayoutSplitter {
	return &PayoutSplitter{}
}

// Split groups the snapshot's lines by seller. Ticket revenue goes to the
// event's host only and each membership fee to its society. A line's net is
// its price less its recorded discount, never below zero. The result is
// ordered by seller id.
func (p *PayoutSplitter) Split(h *models.HistoricalCart) []models.Payout {
	totals := make(map[int64]decimal.Decimal)

	for _, m := range h.Memberships {
		totals[m.SocietyID] = totals[m.SocietyID].Add(m.Fee)
	}

	for _, l := range h.TicketLines {
		if l.HostSocietyID == 0 {
			continue
		}
		net := l.Total().Sub(h.Discounts.Get(l.LineID))
		if net.IsNegative() {
			net = decimal.Zero
		}
		totals[l.HostSocietyID] = totals[l.HostSocietyID].Add(net)
	}

	payouts := make([]models.Payout, 0, len(totals))
	for seller, amount := range totals {
		payouts = append(payouts, models.Payout{SellerID: seller, Amount: amount})
	}
	sort.Slice(payouts, func(i, j int) bool { return payouts[i].SellerID < payouts[j].SellerID })
	return payouts
}

// PayoutReport lists what happened to each seller's share.
type PayoutReport struct {
	Confirmed []int64
	Queued    []int64
}

// PayoutDistributor sends each seller its share through the gateway.
type PayoutDistributor struct {
	gateway   PaymentGateway
	societies SocietyStore
	queue     PayoutQueue
	splitter  *PayoutSplitter
	currency  string
	clock     Clock
}

// NewPayoutDistributor creates a new payout distributor
func NewPayoutDistributor(gateway PaymentGateway, societies SocietyStore, queue PayoutQueue, splitter *PayoutSplitter, currency string, clock Clock) *PayoutDistributor {
	if currency == "" {
		currency = models.Currency
	}
	return &PayoutDistributor{
		gateway:   gateway,
		societies: societies,
		queue:     queue,
		splitter:  splitter,
		currency:  currency,
		clock:     clock,
	}
}

// Distribute transfers every positive share of the order. Sellers are
// independent: a failed transfer is queued for retry and the rest carry on.
// The returned error is set only when a failed transfer could not be queued.
func (d *PayoutDistributor) Distribute(ctx context.Context, order *models.SettledOrder, h *models.HistoricalCart, customerID, methodID string) (*PayoutReport, error) {
	log := logging.FromContext(ctx).WithField("order_number", order.OrderNumber)
	report := &PayoutReport{}
	var queueErrs []error

	for _, payout := range d.splitter.Split(h) {
		amount := payout.AmountMinor()
		if amount <= 0 {
			continue
		}

		instr := &models.PayoutInstruction{
			OrderID:         order.ID,
			OrderNumber:     order.OrderNumber,
			SellerID:        payout.SellerID,
			AmountMinor:     amount,
			Currency:        d.currency,
			CustomerID:      customerID,
			PaymentMethodID: methodID,
		}

		err := d.Transfer(ctx, instr)
		if err == nil {
			report.Confirmed = append(report.Confirmed, payout.SellerID)
			continue
		}

		log.WithFields(logrus.Fields{
			"seller_id":    payout.SellerID,
			"amount_minor": amount,
		}).WithError(err).Error("Payout transfer failed, queued for retry")

		instr.Attempts = 1
		instr.LastError = err.Error()
		instr.EnqueuedAt = d.clock.Now()
		if qerr := d.queue.Enqueue(ctx, instr); qerr != nil {
			queueErrs = append(queueErrs, fmt.Errorf("failed to queue payout for society %d: %w", payout.SellerID, qerr))
			continue
		}
		payoutTransfers.WithLabelValues(payoutQueued).Inc()
		report.Queued = append(report.Queued, payout.SellerID)
	}

	return report, errors.Join(queueErrs...)
}

// Transfer moves one instruction's amount to the seller's payout destination.
// The intent is created once per seller share: its id is kept on instr, and a
// later attempt re-reads and, if needed, re-confirms that same intent.
// Failures are returned as *models.PayoutError.
func (d *PayoutDistributor) Transfer(ctx context.Context, instr *models.PayoutInstruction) error {
	fail := func(err error) error {
		return &models.PayoutError{SellerID: instr.SellerID, AmountMinor: instr.AmountMinor, Err: err}
	}

	intent, err := d.intentFor(ctx, instr)
	if err != nil {
		return fail(err)
	}

	switch {
	case intent.Status == IntentSucceeded:
	case intent.Confirmable():
		if _, err := d.gateway.Confirm(ctx, intent.ID); err != nil {
			return fail(err)
		}
	default:
		return fail(fmt.Errorf("payment intent %s is %s", intent.ID, intent.Status))
	}

	payoutTransfers.WithLabelValues(payoutConfirmed).Inc()
	logging.FromContext(ctx).WithFields(logrus.Fields{
		"order_number": instr.OrderNumber,
		"seller_id":    instr.SellerID,
		"amount_minor": instr.AmountMinor,
		"intent_id":    intent.ID,
	}).Info("Payout transfer confirmed")
	return nil
}

func (d *PayoutDistributor) intentFor(ctx context.Context, instr *models.PayoutInstruction) (*PaymentIntent, error) {
	if instr.IntentID != "" {
		return d.gateway.RetrievePaymentIntent(ctx, instr.IntentID)
	}

	seller, err := d.societies.GetSociety(ctx, instr.SellerID)
	if err != nil {
		return nil, err
	}
	if seller.Payout.ProcessorAccountID == "" {
		return nil, ErrNoPayoutDestination
	}
	instr.Destination = seller.Payout.ProcessorAccountID

	intent, err := d.gateway.CreatePaymentIntent(ctx, PaymentIntentParams{
		AmountMinor:         instr.AmountMinor,
		Currency:            instr.Currency,
		CustomerID:          instr.CustomerID,
		MethodID:            instr.PaymentMethodID,
		TransferDestination: instr.Destination,
		IdempotencyKey:      instr.IdempotencyKey(),
	})
	if err != nil {
		return nil, err
	}
	instr.IntentID = intent.ID
	return intent, nil
}
