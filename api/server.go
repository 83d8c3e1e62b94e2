/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. zap logger: Structured request logging
  5. CORS:       Cross-origin requests for the dashboard
  6. Identity:   Shop/actor/device extraction (API routes only)

ROUTE GROUPS:
  /api/products/*    Product registration
  /api/inventory/*   Stock position, restock, decant
  /api/sales/*       Online sales and offline sale sync
  /api/audit/*       Count verification and history
  /api/alerts/*      Variance alerts
  /healthz           Liveness probe (no identity required)

SEE ALSO:
  - handlers.go: Handler implementations
  - context.go: Identity middleware
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Shop-ID", "X-Actor-ID", "X-Actor-Role", "X-Device-ID"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Identity)

		r.Route("/products", func(r chi.Router) {
			r.Post("/", h.CreateProduct)
		})

		r.Route("/inventory", func(r chi.Router) {
			r.Post("/restock", h.Restock)
			r.Post("/decant", h.Decant)
			r.Get("/{productID}", h.GetInventory)
			r.Get("/{productID}/events", h.ListEvents)
		})

		r.Route("/sales", func(r chi.Router) {
			r.Post("/", h.RecordSale)
			r.Post("/sync", h.SyncSales)
		})

		r.Route("/audit", func(r chi.Router) {
			r.Post("/verify", h.VerifyCount)
			r.Get("/history", h.AuditHistory)
		})

		r.Route("/alerts", func(r chi.Router) {
			r.Get("/", h.ListAlerts)
			r.Get("/summary", h.AlertSummary)
			r.Get("/{id}", h.GetAlert)
			r.Patch("/{id}/resolve", h.ResolveAlert)
		})
	})

	return r
}

// requestLogger logs one structured line per request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
