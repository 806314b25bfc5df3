package handlers

import (
	"net/http"

	"society-ticketing/internal/models"
	"society-ticketing/internal/services"

	"github.com/go-chi/chi/v5"
)

// CheckoutHandler settles carts and reads back orders
type CheckoutHandler struct {
	engine *services.SettlementEngine
	orders services.OrderReader
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(engine *services.SettlementEngine, orders services.OrderReader) *CheckoutHandler {
	return &CheckoutHandler{engine: engine, orders: orders}
}

// Checkout settles the student's cart. A paid cart needs a payment method.
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req services.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	req.StudentID = studentID(r)

	result, err := h.engine.Checkout(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, result)
}

// GetOrder returns one of the student's settled orders
func (h *CheckoutHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderNumber := chi.URLParam(r, "orderNumber")
	if !models.IsValidOrderNumber(orderNumber) {
		badRequest(w, r, "order_number", "invalid order number")
		return
	}

	details, err := h.orders.GetOrderDetails(r.Context(), orderNumber)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	// Other students' orders look the same as missing ones.
	if details.Order.StudentID != studentID(r) {
		writeServiceError(w, r, models.ErrOrderNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, details)
}
