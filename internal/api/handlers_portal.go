/**
 * @description
 * This file contains the portal page handler, which is the re-entry point for
 * redirect-based authentication challenges. When the processor sends the
 * browser back, the return URL carries the intent's confirmation secret as a
 * query parameter; this handler reconciles the interrupted payment and then
 * moves the browser to the parameter-free URL so the secret never survives in
 * the address bar, browser history, or a shared link.
 *
 * The reconciliation path and the orchestrator's synchronous path are mutually
 * exclusive per page load — exactly one of them applies credit for a given
 * confirmed intent.
 *
 * @dependencies
 * - net/http, strings: Standard Go libraries.
 * - internal/app, internal/domain: Reconciliation logic and models.
 */

package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/lumenpay/billing-service/internal/app"
	"github.com/lumenpay/billing-service/internal/domain"
)

// ClientSecretParam is the query parameter the processor's redirect appends to
// the return URL. Its presence selects the reconciliation path for a page load.
const ClientSecretParam = "payment_intent_client_secret"

// portalPageResponse is what a JSON portal page load resolves to.
type portalPageResponse struct {
	Profile       *domain.CustomerProfile `json:"profile,omitempty"`
	CreditApplied bool                    `json:"creditApplied"`
	Amount        int64                   `json:"amount,omitempty"`
	Currency      string                  `json:"currency,omitempty"`
	Error         string                  `json:"error,omitempty"`
}

// PortalHandler serves the portal page load for a customer. Without the
// confirmation-secret parameter it is a plain profile read; with it, the
// redirect reconciliation protocol runs before the browser is sent to the
// clean URL.
func (h *BillingHandlers) PortalHandler(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if !domain.ValidCustomerRef(customerID) {
		h.writeError(w, http.StatusBadRequest, "Malformed customer reference")
		return
	}

	secret := r.URL.Query().Get(ClientSecretParam)
	if secret == "" {
		h.portalPageLoad(w, r, customerID)
		return
	}

	// The clean URL is fixed before any gateway work so nothing below can
	// change where the secret-free redirect lands.
	cleanURL := r.URL.Path

	result, err := h.service.ReconcileRedirectReturn(r.Context(), customerID, secret)
	if err != nil && !errors.Is(err, app.ErrCreditNotApplied) {
		log.Printf("level=error component=api endpoint=portal_return outcome=failed customer_id=%s err=%v", customerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	if wantsJSON(r) {
		resp := portalPageResponse{
			Profile:       result.Profile,
			CreditApplied: result.CreditApplied,
			Amount:        result.Amount,
			Currency:      result.Currency,
		}
		if errors.Is(err, app.ErrCreditNotApplied) {
			resp.Error = "Your payment succeeded but we could not add your credit. Please contact support."
		}
		h.writeJSON(w, http.StatusOK, resp)
		return
	}

	// The redirect drops the secret from the visible URL. The partial-failure
	// case is the only outcome flagged back to the page, since it requires an
	// explicit contact-support notice.
	if errors.Is(err, app.ErrCreditNotApplied) {
		cleanURL += "?credit=failed"
	}
	http.Redirect(w, r, cleanURL, http.StatusSeeOther)
}

func (h *BillingHandlers) portalPageLoad(w http.ResponseWriter, r *http.Request, customerID string) {
	profile, err := h.service.LookupCustomer(r.Context(), customerID)
	if err != nil {
		switch {
		case errors.Is(err, app.ErrCustomerNotFound):
			h.writeError(w, http.StatusNotFound, "Customer not found")
		default:
			log.Printf("level=error component=api endpoint=portal_page outcome=failed customer_id=%s err=%v", customerID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	h.writeJSON(w, http.StatusOK, portalPageResponse{Profile: profile})
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
