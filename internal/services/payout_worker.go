package services

import (
	"context"
	"fmt"
	"time"

	"society-ticketing/internal/models"

	"github.com/sirupsen/logrus"
)

// PayoutTransferer sends a single payout instruction.
type PayoutTransferer interface {
	Transfer(ctx context.Context, instr *models.PayoutInstruction) error
}

// PayoutRetryWorker re-attempts queued payout transfers.
type PayoutRetryWorker struct {
	queue       PayoutQueue
	transferer  PayoutTransferer
	clock       Clock
	maxAttempts int
	interval    time.Duration
	batch       int
}

// RetryResult counts what one pass over the queue did.
type RetryResult struct {
	Confirmed  int `json:"confirmed"`
	Requeued   int `json:"requeued"`
	DeadLetter int `json:"dead_lettered"`
}

// NewPayoutRetryWorker creates a new retry worker
func NewPayoutRetryWorker(queue PayoutQueue, transferer PayoutTransferer, clock Clock, maxAttempts int, interval time.Duration, batch int) *PayoutRetryWorker {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if batch <= 0 {
		batch = 50
	}
	return &PayoutRetryWorker{
		queue:       queue,
		transferer:  transferer,
		clock:       clock,
		maxAttempts: maxAttempts,
		interval:    interval,
		batch:       batch,
	}
}

// Run returns any instructions left in flight by an earlier run to the
// queue, then retries a batch on every tick until ctx is cancelled.
func (w *PayoutRetryWorker) Run(ctx context.Context) error {
	if n, err := w.queue.Recover(ctx); err != nil {
		logrus.WithError(err).Error("Failed to recover in-flight payouts")
	} else if n > 0 {
		logrus.WithField("recovered", n).Warn("Recovered in-flight payouts from an earlier run")
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.WithField("interval", w.interval).Info("Payout retry worker started")
	for {
		select {
		case <-ctx.Done():
			logrus.Info("Payout retry worker stopped")
			return nil
		case <-ticker.C:
			if _, err := w.RunOnce(ctx, w.batch); err != nil {
				logrus.WithError(err).Error("Payout retry pass failed")
			}
		}
	}
}

// RunOnce claims up to limit instructions and retries each. Failures go back
// on the queue with the attempt count raised, until maxAttempts is reached
// and they are dead-lettered. Only entries present when the pass starts are
// visited. An instruction whose outcome cannot be stored stays in flight
// until Recover.
func (w *PayoutRetryWorker) RunOnce(ctx context.Context, limit int) (*RetryResult, error) {
	result := &RetryResult{}

	pending, err := w.queue.Len(ctx)
	if err != nil {
		return result, err
	}
	if int64(limit) > pending {
		limit = int(pending)
	}

	for i := 0; i < limit; i++ {
		claim, err := w.queue.Claim(ctx)
		if err != nil {
			return result, err
		}
		if claim == nil {
			break
		}
		instr := claim.Instruction

		log := logrus.WithFields(logrus.Fields{
			"order_number": instr.OrderNumber,
			"seller_id":    instr.SellerID,
			"amount_minor": instr.AmountMinor,
			"attempts":     instr.Attempts,
		})

		err = w.transferer.Transfer(ctx, instr)
		if err == nil {
			if aerr := w.queue.Ack(ctx, claim); aerr != nil {
				log.WithError(aerr).Error("Payout confirmed but still marked in flight")
			}
			payoutTransfers.WithLabelValues(payoutRetried).Inc()
			result.Confirmed++
			continue
		}

		instr.Attempts++
		instr.LastError = err.Error()

		if instr.Attempts >= w.maxAttempts {
			if derr := w.queue.DeadLetter(ctx, claim); derr != nil {
				return result, fmt.Errorf("failed to dead-letter payout: %w", derr)
			}
			payoutTransfers.WithLabelValues(payoutDeadLetter).Inc()
			result.DeadLetter++
			log.WithError(err).Error("Payout abandoned after repeated failures, manual reconciliation required")
			continue
		}

		instr.EnqueuedAt = w.clock.Now()
		if qerr := w.queue.Requeue(ctx, claim); qerr != nil {
			return result, fmt.Errorf("failed to requeue payout: %w", qerr)
		}
		result.Requeued++
		log.WithError(err).Warn("Payout retry failed, requeued")
	}

	payoutRetryQueueLength.Set(float64(pending) - float64(result.Confirmed+result.DeadLetter))
	return result, nil
}
