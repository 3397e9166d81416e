/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for frontend
  5. RequireUser on user routes (X-Username)

ROUTE GROUPS:
  /api/health           Liveness
  /api/transactions/*   One-off transfers
  /api/recurring/*      Recurring transfers
  /api/accounts/*       Caller's account
  /api/admin/*          Admin operations

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultOrigins are allowed when none are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Caller routes
		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Route("/transactions", func(r chi.Router) {
				r.Get("/", h.ListHistory)
				r.Post("/", h.CreateTransaction)
				r.Put("/{id}", h.UpdateTransaction)
				r.Delete("/{id}", h.DeleteTransaction)
				r.Post("/{id}/confirm", h.ConfirmTransaction)
				r.Post("/{id}/accept", h.AcceptTransaction)
				r.Post("/{id}/decline", h.DeclineTransaction)
			})

			r.Route("/recurring", func(r chi.Router) {
				r.Get("/", h.ListRecurring)
				r.Post("/", h.CreateRecurring)
				r.Delete("/{id}", h.CancelRecurring)
			})

			r.Get("/accounts/me", h.GetMyAccount)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/transactions", h.AdminListTransactions)
			r.Post("/transactions/{id}/deny", h.AdminDenyTransaction)
			r.Post("/accounts", h.AdminCreateAccount)
			r.Put("/accounts/{username}/block", h.AdminBlockAccount)
		})
	})

	return r
}
