/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/allocations/*    Allocation creation, posting, inspection
  /api/customers/*      Customer reports (summary, statement, ratio, balance)
  /api/policies/*       Policy reports (accumulative premium)
  /api/funds/*          Fund-wide balances
  /api/book             Accounting book over a date window
  /api/entries          Manual ledger entries (fees, investment income)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public. The
  posting actor comes from the request body, not from credentials.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/", h.CreateAllocation)
			r.Get("/{id}", h.GetAllocation)
			r.Post("/{id}/post", h.PostAllocation)
		})

		// Customer report routes
		r.Route("/customers/{id}", func(r chi.Router) {
			r.Get("/summary", h.GetCustomerSummary)
			r.Get("/statement", h.GetCustomerStatement)
			r.Get("/ratio", h.GetRiskInvestmentRatio)
			r.Get("/balance", h.GetCustomerBalance)
		})

		// Policy report routes
		r.Route("/policies/{id}", func(r chi.Router) {
			r.Get("/accumulative", h.GetAccumulativeReport)
		})

		// Fund routes
		r.Route("/funds", func(r chi.Router) {
			r.Get("/{account}/balance", h.GetFundBalance)
		})

		// Accounting book
		r.Get("/book", h.GetAccountingBook)

		// Manual ledger entries
		r.Post("/entries", h.CreateEntry)
	})

	return r
}
