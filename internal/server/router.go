// Package server assembles the HTTP routes of the checkout API
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/MuhammadKhaledD/Bookify-sub002/internal/handlers"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/idempotency"
	"github.com/MuhammadKhaledD/Bookify-sub002/internal/middleware"
)

// Dependencies holds what the router needs to serve requests
type Dependencies struct {
	Logger      *zap.Logger
	Auth        *middleware.AuthMiddleware
	Idempotency idempotency.Store
	CORS        middleware.CORSConfig

	Carts   *handlers.CartHandler
	Orders  *handlers.OrderHandler
	Loyalty *handlers.LoyaltyHandler
	Health  *handlers.HealthHandler
}

// NewRouter wires middleware and routes
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(deps.Auth.LoadUser)
	r.Use(middleware.Logging(deps.Logger))
	r.Use(middleware.Recover(deps.Logger))
	r.Use(middleware.CORS(deps.CORS))

	r.NotFound(middleware.NotFoundHandler().ServeHTTP)
	r.MethodNotAllowed(middleware.MethodNotAllowedHandler().ServeHTTP)

	r.Get("/healthz", deps.Health.Healthz)

	idempotent := middleware.Idempotency(deps.Idempotency, deps.Logger)

	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireUser)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", deps.Carts.GetCart)
			r.Delete("/", deps.Carts.ClearCart)
			r.Post("/items", deps.Carts.AddItem)
			r.Patch("/items/{id}", deps.Carts.UpdateQuantity)
			r.Delete("/items/{id}", deps.Carts.RemoveItem)
			r.With(idempotent).Post("/checkout", deps.Carts.Checkout)
		})

		r.Get("/orders/{id}", deps.Orders.GetOrder)

		r.With(idempotent).Post("/payments/{id}/confirm", deps.Orders.ConfirmPayment)

		r.Route("/loyalty", func(r chi.Router) {
			r.Get("/", deps.Loyalty.Balance)
			r.Get("/history", deps.Loyalty.History)
		})

		r.With(idempotent).Post("/rewards/{id}/redeem", deps.Loyalty.Redeem)

		r.Get("/redemptions", deps.Loyalty.ListRedemptions)
		r.Post("/redemptions/{id}/cancel", deps.Loyalty.CancelRedemption)
	})

	// Fulfillment and refunds are performed by operators, not buyers
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.RequireRole(middleware.RoleOperator))

		r.Post("/orders/{id}/fulfill", deps.Orders.FulfillOrder)
		r.With(idempotent).Post("/payments/{id}/refund", deps.Orders.RefundPayment)
		r.Post("/redemptions/{id}/fulfill", deps.Loyalty.FulfillRedemption)
	})

	return r
}
