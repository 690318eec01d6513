/**
 * @description
 * This file sets up the HTTP router for the billing-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, rate limiting, and authentication, and maps the routes to
 * their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pawsuite/billing-service/internal/app"
)

// RouterConfig carries the wiring the router needs beyond the handlers.
type RouterConfig struct {
	AdminJWTSecret         string
	RateLimiter            *app.RedisRateLimiter
	CheckoutLimitPerMinute int
}

// NewRouter creates a new Chi router and registers the billing-service routes.
func NewRouter(h *Handler, wh *WebhookHandler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Billing service is healthy"))
	})

	// Public endpoints: pricing catalog, checkout initiation, provider webhook.
	r.Get("/plans", h.handleListPlans)
	r.Group(func(r chi.Router) {
		r.Use(RateLimitMiddleware(cfg.RateLimiter, "checkout", cfg.CheckoutLimitPerMinute, time.Minute))
		r.Post("/checkout", h.handleCreateCheckout)
	})
	r.Post("/webhooks/stripe", wh.ServeHTTP)

	// Protected routes that require a tenant admin token.
	r.Group(func(r chi.Router) {
		r.Use(TenantAuthMiddleware(cfg.AdminJWTSecret))

		r.Get("/billing/status", h.handleBillingStatus)
		r.Get("/billing/portal", h.handleBillingPortal)
	})

	return r
}
