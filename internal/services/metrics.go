package services

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

var (
	checkoutTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "checkout_total",
			Help: "Checkout attempts by outcome",
		},
		[]string{"outcome"},
	)

	checkoutDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "checkout_duration_seconds",
			Help:    "Duration of checkouts from charge to commit",
			Buckets: prometheus.DefBuckets,
		},
	)

	oversellConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "oversell_conflicts_total",
			Help: "Settlements aborted because inventory ran out under lock",
		},
	)

	payoutTransfers = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payout_transfers_total",
			Help: "Seller payout transfers by result",
		},
		[]string{"result"},
	)

	payoutRetryQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "payout_retry_queue_length",
			Help: "Payout instructions waiting for retry",
		},
	)
)

// Checkout outcomes.
const (
	outcomeSettled   = "settled"
	outcomeFree      = "free"
	outcomeInvalid   = "invalid"
	outcomeDeclined  = "gateway_error"
	outcomeOversold  = "oversell"
	outcomeFailed    = "failed"
	payoutConfirmed  = "confirmed"
	payoutQueued     = "queued"
	payoutRetried    = "retried"
	payoutDeadLetter = "dead_letter"
)

// QueueLengther reports the size of the payout retry queue.
type QueueLengther interface {
	Len(ctx context.Context) (int64, error)
}

// Monitor samples gauges that are not updated inline.
type Monitor struct {
	queue    QueueLengther
	interval time.Duration
}

// NewMonitor creates a monitor sampling every interval
func NewMonitor(queue QueueLengther, interval time.Duration) *Monitor {
	return &Monitor{queue: queue, interval: interval}
}

// Run samples until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		m.Collect(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Collect samples the gauges once.
func (m *Monitor) Collect(ctx context.Context) {
	n, err := m.queue.Len(ctx)
	if err != nil {
		logrus.WithError(err).Warn("Failed to read payout retry queue length")
		return
	}
	payoutRetryQueueLength.Set(float64(n))
}
