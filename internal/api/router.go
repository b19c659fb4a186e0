/**
 * @description
 * This file sets up the HTTP router for the billing-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// BillingRoutes creates and returns the router for the billing service.
// jwksURL is optional; when set, the mutating API endpoints require a valid
// portal session token. The portal page itself stays open because the
// processor's authentication redirect returns there without our headers.
func BillingRoutes(h *BillingHandlers, jwksURL string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Portal page load and redirect-return reconciliation.
	r.Get("/portal/{customerID}", h.PortalHandler)

	r.Route("/api", func(r chi.Router) {
		if jwksURL != "" {
			r.Use(PortalAuthMiddleware(jwksURL))
		}

		r.Get("/customers/{customerID}", h.GetCustomerHandler)
		r.Post("/payment-intents", h.CreatePaymentIntentHandler)
		r.Post("/credits", h.ApplyCreditHandler)
	})

	return r
}
