package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/MENECHAN/storefront-system/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса витрины.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api/user", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/cart", h.GetCart)
			r.Post("/cart/items", h.AddCartItem)
			r.Delete("/cart/items/{itemID}", h.RemoveCartItem)
			r.Post("/cart/submit", h.SubmitCart)

			r.Get("/orders", h.GetOrders)
			r.Post("/orders/{orderID}/proof", h.AttachProof)

			r.Get("/accounts", h.GetAccounts)

			r.Post("/friends", h.CreateFriendRequest)
			r.Get("/friends", h.GetFriendRequests)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)
		r.Use(h.authMiddleware.RequireAdmin)

		r.Get("/orders", h.GetAdminOrders)
		r.Post("/orders/{orderID}/approve", h.ApproveOrder)
		r.Post("/orders/{orderID}/reject", h.RejectOrder)
		r.Get("/orders/{orderID}/accounts", h.GetEligibleAccounts)
		r.Post("/orders/{orderID}/complete", h.CompleteOrder)
		r.Post("/orders/{orderID}/override-reject", h.OverrideReject)

		r.Post("/accounts", h.CreateAccount)

		r.Get("/friends", h.GetFriendRequestQueue)
		r.Post("/friends/{requestID}/approve", h.ApproveFriendRequest)
		r.Post("/friends/{requestID}/reject", h.RejectFriendRequest)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
