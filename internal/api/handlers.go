/**
 * @description
 * This file contains the HTTP handlers for the billing-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as
 * the bridge between the web layer and the business logic layer.
 *
 * Money is an integer count of minor currency units on every endpoint here;
 * decimal major-unit strings exist only in the portal's amount input and are
 * parsed before they reach this layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain: For service logic and models.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lumenpay/billing-service/internal/app"
	"github.com/lumenpay/billing-service/internal/domain"
)

// BillingHandlers holds the application service that handlers will use.
type BillingHandlers struct {
	service *app.Service
}

// NewBillingHandlers creates a new instance of BillingHandlers.
func NewBillingHandlers(service *app.Service) *BillingHandlers {
	return &BillingHandlers{service: service}
}

// adjustmentRequest is the request body shared by intent creation and credit
// application. Amount arrives as a raw JSON number so a fractional value can
// be rejected as a validation error instead of a generic decode failure.
type adjustmentRequest struct {
	CustomerID string      `json:"customerId"`
	Amount     json.Number `json:"amount"`
	Currency   string      `json:"currency"`
}

func (req *adjustmentRequest) minorAmount() (int64, error) {
	return req.Amount.Int64()
}

// GetCustomerHandler handles customer profile lookups.
func (h *BillingHandlers) GetCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")

	profile, err := h.service.LookupCustomer(r.Context(), customerID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrInvalidCustomerRef):
			h.writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, app.ErrCustomerNotFound):
			h.writeError(w, http.StatusNotFound, "Customer not found")
		default:
			log.Printf("level=error component=api endpoint=get_customer outcome=failed customer_id=%s err=%v", customerID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, profile)
}

// CreatePaymentIntentHandler opens a pending top-up charge and returns its
// confirmation secret.
func (h *BillingHandlers) CreatePaymentIntentHandler(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=create_payment_intent outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := req.minorAmount()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Amount must be an integer number of minor currency units")
		return
	}

	if !h.allowRequest(w, r, func() error { return h.service.AllowTopUpRequest(r.Context(), req.CustomerID) }) {
		return
	}

	secret, err := h.service.CreateTopUpIntent(r.Context(), req.CustomerID, amount, req.Currency)
	if err != nil {
		h.writeServiceError(w, "create_payment_intent", req.CustomerID, err)
		return
	}

	log.Printf("level=info component=api endpoint=create_payment_intent outcome=accepted customer_id=%s amount=%d", req.CustomerID, amount)
	h.writeJSON(w, http.StatusCreated, map[string]string{"clientSecret": secret})
}

// ApplyCreditHandler posts account credit for an already-captured payment.
// The endpoint itself offers no deduplication; callers own the at-most-once
// guarantee per confirmed payment.
func (h *BillingHandlers) ApplyCreditHandler(w http.ResponseWriter, r *http.Request) {
	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=apply_credit outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	amount, err := req.minorAmount()
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Amount must be an integer number of minor currency units")
		return
	}

	if !h.allowRequest(w, r, func() error { return h.service.AllowCreditRequest(r.Context(), req.CustomerID) }) {
		return
	}

	adj := domain.CreditAdjustment{CustomerID: req.CustomerID, Amount: amount, Currency: req.Currency}
	if err := h.service.ApplyCredit(r.Context(), adj, ""); err != nil {
		h.writeServiceError(w, "apply_credit", req.CustomerID, err)
		return
	}

	log.Printf("level=info component=api endpoint=apply_credit outcome=accepted customer_id=%s amount=%d", req.CustomerID, amount)
	h.writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// allowRequest runs the given rate-limit check and writes the 429 response
// when the budget is exhausted.
func (h *BillingHandlers) allowRequest(w http.ResponseWriter, r *http.Request, consume func() error) bool {
	err := consume()
	if err == nil {
		return true
	}
	var rateErr *app.RateLimitError
	if errors.As(err, &rateErr) {
		if rateErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(rateErr.RetryAfterSeconds))
		}
		h.writeError(w, http.StatusTooManyRequests, "Too many requests. Please wait and try again.")
		return false
	}
	log.Printf("level=error component=api msg=\"rate limit check failed\" err=%v", err)
	h.writeError(w, http.StatusInternalServerError, "Internal server error")
	return false
}

// writeServiceError maps service-layer errors onto HTTP statuses: validation
// failures surface their message with a 400, everything processor-side stays
// generic behind a 500.
func (h *BillingHandlers) writeServiceError(w http.ResponseWriter, endpoint, customerID string, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidCustomerRef),
		errors.Is(err, app.ErrInvalidCurrency),
		errors.Is(err, app.ErrTopUpAmountTooSmall),
		errors.Is(err, app.ErrAmountTooLarge),
		errors.Is(err, app.ErrInvalidCreditAmount):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed customer_id=%s err=%v", endpoint, customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Payment processor request failed")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *BillingHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *BillingHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
