/**
 * @description
 * This file implements redirect reconciliation: the re-entry path taken when
 * the browser returns from an external authentication challenge with a
 * confirmation secret in the query string. It re-derives the outcome of the
 * interrupted payment from the processor and applies credit exactly once for
 * a succeeded intent. Together with the orchestrator's synchronous path this
 * is the second — and last — producer feeding ApplyCredit; the two are
 * mutually exclusive per page load.
 *
 * @dependencies
 * - context, log: Standard Go libraries.
 * - internal/domain: Intent snapshots and credit adjustments.
 */

package app

import (
	"context"
	"log"

	"github.com/lumenpay/billing-service/internal/domain"
)

// ReconcileResult reports what the redirect return resolved to. Profile is
// the customer's refreshed profile and is populated regardless of outcome so
// the portal always shows the latest balance.
type ReconcileResult struct {
	CreditApplied bool
	Amount        int64
	Currency      string
	Profile       *domain.CustomerProfile
}

// ReconcileRedirectReturn inspects the intent behind the returned secret and
// posts credit for it if — and only if — the processor reports it succeeded
// with a creditable amount. Abandoned and declined redirects resolve silently:
// no credit, no error. The only error this returns is ErrCreditNotApplied,
// the partial-failure state where the payment was captured but the credit
// posting failed.
//
// Stripping the secret from the visible URL is the HTTP layer's job and must
// happen before this is called.
func (s *Service) ReconcileRedirectReturn(ctx context.Context, customerID, clientSecret string) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	intent, err := s.gateway.RetrievePaymentIntentBySecret(ctx, clientSecret)
	if err != nil {
		// Covers garbage secrets and processor outages alike: without a
		// succeeded intent there is nothing to credit, so resolve silently.
		log.Printf("level=warn component=reconcile customer_id=%s msg=\"intent retrieval failed; no credit applied\" err=%v", customerID, err)
		s.refreshProfile(ctx, customerID, result)
		return result, nil
	}

	if intent.Status != domain.IntentStatusSucceeded {
		log.Printf("level=info component=reconcile customer_id=%s intent_id=%s intent_status=%s outcome=skipped", customerID, intent.ID, intent.Status)
		s.refreshProfile(ctx, customerID, result)
		return result, nil
	}

	amount := intent.CreditedAmount()
	if amount < domain.MinCreditMinor {
		log.Printf("level=warn component=reconcile customer_id=%s intent_id=%s amount=%d outcome=skipped msg=\"succeeded intent with no creditable amount\"", customerID, intent.ID, amount)
		s.refreshProfile(ctx, customerID, result)
		return result, nil
	}

	currency := intent.Currency
	adj := domain.CreditAdjustment{CustomerID: customerID, Amount: amount, Currency: currency}
	result.Amount = amount
	result.Currency = currency

	// Single ApplyCredit call site on the reconciliation side.
	if err := s.ApplyCredit(ctx, adj, intent.ID); err != nil {
		s.publishCreditAlert(ctx, adj, intent.ID, "redirect reconciliation credited amount could not be posted")
		log.Printf("level=error component=reconcile customer_id=%s intent_id=%s outcome=credit_failed err=%v", customerID, intent.ID, err)
		s.refreshProfile(ctx, customerID, result)
		return result, ErrCreditNotApplied
	}

	result.CreditApplied = true
	log.Printf("level=info component=reconcile customer_id=%s intent_id=%s amount=%d outcome=credited", customerID, intent.ID, amount)
	s.refreshProfile(ctx, customerID, result)
	return result, nil
}

func (s *Service) refreshProfile(ctx context.Context, customerID string, result *ReconcileResult) {
	profile, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		log.Printf("level=warn component=reconcile customer_id=%s msg=\"profile refresh failed\" err=%v", customerID, err)
		return
	}
	result.Profile = profile
}
