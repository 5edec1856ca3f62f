/**
 * @description
 * This file sets up the HTTP router for the marketplace service using the go-chi/chi
 * router. It defines the API routes, applies middleware for logging, CORS, and
 * authentication, and maps the routes to their corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the marketplace routes.
func NewRouter(h *Handlers, jwksURL, cronSecret string) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Stripe-Signature"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Marketplace service is healthy"))
	})

	// Provider webhook; authenticated by signature verification, not JWT.
	r.Post("/webhooks/stripe", h.StripeWebhookHandler)

	// Scheduler-triggered internal endpoints, guarded by the cron secret.
	r.Group(func(r chi.Router) {
		r.Use(CronAuthMiddleware(cronSecret))
		r.Post("/internal/sync-accounts", h.InternalSyncAccountsHandler)
	})

	// Public browse surface.
	r.Get("/listings", h.SearchListingsHandler)
	r.Get("/listings/{listingID}", h.GetListingHandler)

	// Checkout serves both guests and signed-in users.
	r.Group(func(r chi.Router) {
		r.Use(OptionalAuthMiddleware(jwksURL))
		r.Post("/bookings/checkout", h.StartCheckoutHandler)
	})

	// Protected routes that require authentication
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwksURL))

		r.Post("/accounts/sync", h.SyncAccountHandler)

		r.Post("/listings", h.CreateListingHandler)
		r.Put("/listings/{listingID}", h.UpdateListingHandler)
		r.Delete("/listings/{listingID}", h.DeleteListingHandler)

		r.Get("/bookings", h.ListBookingsHandler)
		r.Post("/bookings/{bookingID}/finalize", h.FinalizeBookingHandler)
		r.Post("/bookings/{bookingID}/hide", h.HideBookingHandler)

		r.Post("/bookings/{bookingID}/messages", h.SendMessageHandler)
		r.Get("/bookings/{bookingID}/messages", h.ListMessagesHandler)

		r.Post("/sessions/verify", h.VerifySessionHandler)
	})

	return r
}
