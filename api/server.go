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
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for admin UI

ROUTE GROUPS:
  /api/commissions/*    Ad-hoc calculation
  /api/policies/*       Policy snapshots and their records
  /api/rules/*          Payout rule management
  /api/partners/*       Channel partner management
  /api/admin/*          Bulk resync
  /api/health           Liveness

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Commission routes
		r.Route("/commissions", func(r chi.Router) {
			r.Post("/calculate", h.CalculateCommission)
		})

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/", h.ListPolicies)
			r.Post("/", h.CreatePolicy)
			r.Get("/{id}/commission", h.GetPolicyCommission)
			r.Post("/{id}/recalculate", h.RecalculatePolicy)
		})

		// Rule routes
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.ListRules)
			r.Post("/", h.CreateRule)
		})

		// Partner routes
		r.Route("/partners", func(r chi.Router) {
			r.Get("/", h.ListPartners)
			r.Post("/", h.CreatePartner)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/resync", h.Resync)
		})

		r.Get("/health", h.Health)
	})

	// Minimal index for anyone hitting the root in a browser.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(`<!DOCTYPE html>
<html>
<head><title>Commission Engine</title></head>
<body style="font-family: system-ui; max-width: 800px; margin: 50px auto; padding: 20px;">
<h1>Commission Engine API</h1>
<h2>API Endpoints</h2>
<ul>
<li><code>POST /api/commissions/calculate</code> - Calculate commission for a policy payload</li>
<li><a href="/api/policies">/api/policies</a> - List policy snapshots</li>
<li><code>GET /api/policies/{id}/commission</code> - Current commission record</li>
<li><code>POST /api/policies/{id}/recalculate</code> - Recalculate one policy</li>
<li><code>GET /api/rules?org_id=...</code> - List payout rules</li>
<li><a href="/api/partners">/api/partners</a> - List channel partners</li>
<li><code>POST /api/admin/resync</code> - Recompute all records</li>
</ul>
</body>
</html>`))
	})

	return r
}
