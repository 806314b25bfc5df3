package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"society-ticketing/internal/models"
	"society-ticketing/internal/services"
)

// RetryRunner runs one pass of the payout retry worker.
type RetryRunner interface {
	RunOnce(ctx context.Context, limit int) (*services.RetryResult, error)
}

// PayoutHandler exposes the payout retry queue to operators
type PayoutHandler struct {
	queue  services.PayoutQueue
	runner RetryRunner
	batch  int
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(queue services.PayoutQueue, runner RetryRunner, batch int) *PayoutHandler {
	if batch <= 0 {
		batch = 50
	}
	return &PayoutHandler{queue: queue, runner: runner, batch: batch}
}

// PendingPayout is a queued transfer without the buyer's payment details.
type PendingPayout struct {
	OrderNumber string    `json:"order_number"`
	SellerID    int64     `json:"seller_id"`
	AmountMinor int64     `json:"amount_minor"`
	Currency    string    `json:"currency"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// QueueResponse is the state of the retry queue.
type QueueResponse struct {
	Length  int64           `json:"length"`
	Pending []PendingPayout `json:"pending"`
}

func pendingPayout(instr *models.PayoutInstruction) PendingPayout {
	return PendingPayout{
		OrderNumber: instr.OrderNumber,
		SellerID:    instr.SellerID,
		AmountMinor: instr.AmountMinor,
		Currency:    instr.Currency,
		Attempts:    instr.Attempts,
		LastError:   instr.LastError,
		EnqueuedAt:  instr.EnqueuedAt,
	}
}

// Queue lists the oldest queued payouts. ?limit= defaults to 20.
func (h *PayoutHandler) Queue(w http.ResponseWriter, r *http.Request) {
	limit := int64(20)
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n <= 0 || n > 500 {
			badRequest(w, r, "limit", "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	length, err := h.queue.Len(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	items, err := h.queue.Peek(r.Context(), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := QueueResponse{Length: length, Pending: make([]PendingPayout, 0, len(items))}
	for _, instr := range items {
		resp.Pending = append(resp.Pending, pendingPayout(instr))
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Retry runs one retry pass now instead of waiting for the worker. The pass
// outlives the request so outcomes are stored even if the caller goes away.
func (h *PayoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	result, err := h.runner.RunOnce(context.WithoutCancel(r.Context()), h.batch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
