package handlers

import (
	"net/http"

	"society-ticketing/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Cart          *CartHandler
	Checkout      *CheckoutHandler
	Events        *EventHandler
	Payouts       *PayoutHandler
	RateLimiter   *middleware.CheckoutRateLimiter
	CORS          middleware.CORSConfig
	OperatorToken string
}

// NewRouter builds the chi router for the JSON API
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestIDMiddleware)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.LoggingMiddleware)
	r.Use(middleware.ErrorHandlingMiddleware)
	r.Use(middleware.CORSMiddleware(cfg.CORS))
	r.Use(middleware.SecurityHeadersMiddleware)
	r.Use(middleware.LoadStudent)

	r.NotFound(middleware.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler().ServeHTTP)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","service":"society-ticketing"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/events/{eventID}/inventory", cfg.Events.Inventory)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStudent)

			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cfg.Cart.ViewCart)
				r.Post("/tickets", cfg.Cart.AddTickets)
				r.Patch("/tickets/{lineID}", cfg.Cart.AdjustLine)
				r.Delete("/tickets/{lineID}", cfg.Cart.RemoveLine)
				r.Post("/memberships", cfg.Cart.AddMembership)
				r.Delete("/memberships/{societyID}", cfg.Cart.RemoveMembership)
			})

			r.With(cfg.RateLimiter.Middleware).Post("/checkout", cfg.Checkout.Checkout)
			r.Get("/orders/{orderNumber}", cfg.Checkout.GetOrder)

			r.Post("/events/{eventID}/cancel", cfg.Events.CancelEvent)
			r.Patch("/events/{eventID}", cfg.Events.ModifyEvent)
		})

		r.Route("/payouts", func(r chi.Router) {
			r.Use(middleware.RequireOperator(cfg.OperatorToken))
			r.Get("/queue", cfg.Payouts.Queue)
			r.Post("/retry", cfg.Payouts.Retry)
		})
	})

	return r
}
