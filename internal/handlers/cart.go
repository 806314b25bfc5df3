package handlers

import (
	"net/http"

	"society-ticketing/internal/models"
	"society-ticketing/internal/services"
)

// CartHandler handles cart requests
type CartHandler struct {
	cartService *services.CartService
}

// NewCartHandler creates a new cart handler
func NewCartHandler(cartService *services.CartService) *CartHandler {
	return &CartHandler{cartService: cartService}
}

// AddTicketsRequest adds tickets of both classes for one event.
type AddTicketsRequest struct {
	EventID   int64 `json:"event_id"`
	EarlyBird int   `json:"early_bird"`
	Standard  int   `json:"standard"`
}

// AdjustLineRequest changes one class on a line by Delta.
type AdjustLineRequest struct {
	Class string `json:"class"`
	Delta int    `json:"delta"`
}

// MembershipRequest names a society.
type MembershipRequest struct {
	SocietyID int64 `json:"society_id"`
}

// ViewCart returns the student's cart and its totals
func (h *CartHandler) ViewCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.cartService.GetCart(r.Context(), studentID(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// AddTickets adds tickets to the cart
func (h *CartHandler) AddTickets(w http.ResponseWriter, r *http.Request) {
	var req AddTicketsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.EventID <= 0 {
		badRequest(w, r, "event_id", "event_id is required")
		return
	}

	q := models.Quantities{EarlyBird: req.EarlyBird, Standard: req.Standard}
	view, err := h.cartService.AddTickets(r.Context(), studentID(r), req.EventID, q)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// AdjustLine increments or decrements one class on a cart line
func (h *CartHandler) AdjustLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	var req AdjustLineRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	class, err := models.ParseTicketClass(req.Class)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	view, err := h.cartService.AdjustTicketQuantity(r.Context(), studentID(r), lineID, class, req.Delta)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// RemoveLine drops a ticket line from the cart
func (h *CartHandler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	lineID, ok := pathID(w, r, "lineID")
	if !ok {
		return
	}
	view, err := h.cartService.RemoveTicketLine(r.Context(), studentID(r), lineID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// AddMembership puts a society membership in the cart
func (h *CartHandler) AddMembership(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.SocietyID <= 0 {
		badRequest(w, r, "society_id", "society_id is required")
		return
	}

	view, err := h.cartService.AddMembership(r.Context(), studentID(r), req.SocietyID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}

// RemoveMembership takes a society membership out of the cart
func (h *CartHandler) RemoveMembership(w http.ResponseWriter, r *http.Request) {
	societyID, ok := pathID(w, r, "societyID")
	if !ok {
		return
	}
	view, err := h.cartService.RemoveMembership(r.Context(), studentID(r), societyID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, view)
}
