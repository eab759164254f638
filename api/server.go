/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

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
  /api/accounts          Account registration
  /api/wallet/*          Balance, funding, reseller upgrade
  /api/vtu/*             Value purchases
  /api/transactions/*    Journal history
  /api/plans/*           Public catalog
  /api/admin/*           Catalog administration
  /metrics               Prometheus scrape endpoint
  /health                Liveness probe

SECURITY NOTE:
  The caller is identified by the X-Account-ID header; authentication
  and admin authorization sit in front of this service.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/accounts", h.CreateAccount)

		// Wallet routes
		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Post("/fund", h.FundWallet)
			r.Post("/verify", h.VerifyFunding)
			r.Post("/upgrade", h.UpgradeToReseller)
		})

		// Purchase routes
		r.Route("/vtu", func(r chi.Router) {
			r.Post("/buy-data", h.BuyData)
			r.Post("/buy-airtime", h.BuyAirtime)
			r.Post("/recharge-meter", h.RechargeMeter)
			r.Post("/cable", h.Cable)
			r.Get("/validate-meter", h.ValidateMeter)
		})

		// Journal routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/{id}", h.GetTransaction)
		})

		// Catalog routes
		r.Route("/plans", func(r chi.Router) {
			r.Get("/", h.ListPlans)
			r.Get("/{id}", h.GetPlan)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/plans/sync", h.SyncPlans)
			r.Put("/plans/{id}/price", h.SetPlanPrice)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	return r
}
