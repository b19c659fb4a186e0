package app

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenpay/billing-service/internal/domain"
)

func TestReconcileCreditsSucceededIntentOnce(t *testing.T) {
	gw := &fakeGateway{
		retrieveResp: &domain.PaymentIntent{
			ID:             "pi_redirect1",
			Status:         domain.IntentStatusSucceeded,
			Amount:         200,
			AmountReceived: 200,
			Currency:       "usd",
		},
		customer: &domain.CustomerProfile{ID: "cus_abc", Balance: -200, Currency: "usd"},
	}
	service, pub := newTestService(gw)

	result, err := service.ReconcileRedirectReturn(context.Background(), "cus_abc", "pi_redirect1_secret_xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.CreditApplied {
		t.Fatal("expected credit to be applied")
	}
	if result.Amount != 200 || result.Currency != "usd" {
		t.Fatalf("unexpected result %+v", result)
	}
	if gw.balanceCalls != 1 {
		t.Fatalf("expected exactly one balance transaction, got %d", gw.balanceCalls)
	}
	if gw.lastBalanceAmount != -200 {
		t.Fatalf("expected posted amount -200, got %d", gw.lastBalanceAmount)
	}
	if gw.lastRetrieveSecret != "pi_redirect1_secret_xyz" {
		t.Fatalf("unexpected retrieve secret %q", gw.lastRetrieveSecret)
	}
	if result.Profile == nil || result.Profile.Balance != -200 {
		t.Fatalf("expected refreshed profile, got %+v", result.Profile)
	}
	if len(pub.applied) != 1 {
		t.Fatalf("expected one credit.applied event, got %d", len(pub.applied))
	}
}

func TestReconcilePrefersAmountReceived(t *testing.T) {
	gw := &fakeGateway{
		retrieveResp: &domain.PaymentIntent{
			ID:             "pi_redirect1",
			Status:         domain.IntentStatusSucceeded,
			Amount:         500,
			AmountReceived: 300,
			Currency:       "usd",
		},
	}
	service, _ := newTestService(gw)

	result, err := service.ReconcileRedirectReturn(context.Background(), "cus_abc", "pi_redirect1_secret_xyz")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Amount != 300 {
		t.Fatalf("expected captured amount 300 to win, got %d", result.Amount)
	}
	if gw.lastBalanceAmount != -300 {
		t.Fatalf("expected posted amount -300, got %d", gw.lastBalanceAmount)
	}
}

func TestReconcileSkipsNonSucceededIntent(t *testing.T) {
	statuses := []domain.PaymentIntentStatus{
		domain.IntentStatusRequiresPaymentMethod,
		domain.IntentStatusRequiresAction,
		domain.IntentStatusProcessing,
		domain.IntentStatusCanceled,
	}
	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			gw := &fakeGateway{
				retrieveResp: &domain.PaymentIntent{ID: "pi_redirect1", Status: status, Amount: 200, Currency: "usd"},
				customer:     &domain.CustomerProfile{ID: "cus_abc", Balance: 0, Currency: "usd"},
			}
			service, _ := newTestService(gw)

			result, err := service.ReconcileRedirectReturn(context.Background(), "cus_abc", "pi_redirect1_secret_xyz")
			if err != nil {
				t.Fatalf("expected silent resolution, got %v", err)
			}
			if result.CreditApplied {
				t.Fatal("expected no credit")
			}
			if gw.balanceCalls != 0 {
				t.Fatalf("expected no balance transaction, got %d", gw.balanceCalls)
			}
			if result.Profile == nil {
				t.Fatal("expected profile refresh even when skipping")
			}
		})
	}
}

func TestReconcileSkipsZeroCreditableAmount(t *testing.T) {
	gw := &fakeGateway{
		retrieveResp: &domain.PaymentIntent{
			ID:       "pi_redirect1",
			Status:   domain.IntentStatusSucceeded,
			Currency: "usd",
		},
	}
	service, _ := newTestService(gw)

	result, err := service.ReconcileRedirectReturn(context.Background(), "cus_abc", "pi_redirect1_secret_xyz")
	if err != nil {
		t.Fatalf("expected silent resolution, got %v", err)
	}
	if result.CreditApplied || gw.balanceCalls != 0 {
		t.Fatal("expected no credit for a zero-amount intent")
	}
}

func TestReconcileRetrievalFailureResolvesSilently(t *testing.T) {
	gw := &fakeGateway{
		retrieveErr: errors.New("no such payment_intent"),
		customer:    &domain.CustomerProfile{ID: "cus_abc", Balance: 0, Currency: "usd"},
	}
	service, _ := newTestService(gw)

	result, err := service.ReconcileRedirectReturn(context.Background(), "cus_abc", "pi_bogus_secret_bogus")
	if err != nil {
		t.Fatalf("expected silent resolution, got %v", err)
	}
	if result.CreditApplied || gw.balanceCalls != 0 {
		t.Fatal("expected no credit on retrieval failure")
	}
	if result.Profile == nil {
		t.Fatal("expected profile refresh despite retrieval failure")
	}
}

func TestReconcileCreditFailureIsPartialFailure(t *testing.T) {
	gw := &fakeGateway{
		retrieveResp: &domain.PaymentIntent{
			ID:             "pi_redirect1",
			Status:         domain.IntentStatusSucceeded,
			Amount:         200,
			AmountReceived: 200,
			Currency:       "usd",
		},
		balanceErr: errors.New("processor down"),
		customer:   &domain.CustomerProfile{ID: "cus_abc", Balance: 0, Currency: "usd"},
	}
	service, pub := newTestService(gw)

	result, err := service.ReconcileRedirectReturn(context.Background(), "cus_abc", "pi_redirect1_secret_xyz")
	if !errors.Is(err, ErrCreditNotApplied) {
		t.Fatalf("expected ErrCreditNotApplied, got %v", err)
	}
	if result.CreditApplied {
		t.Fatal("result must not report the credit as applied")
	}
	if gw.balanceCalls != 1 {
		t.Fatalf("expected exactly one credit attempt with no retry, got %d", gw.balanceCalls)
	}
	if len(pub.alerts) != 1 {
		t.Fatalf("expected one manual-recovery alert, got %d", len(pub.alerts))
	}
	if len(pub.applied) != 0 {
		t.Fatalf("expected no credit.applied event, got %d", len(pub.applied))
	}
	if result.Profile == nil {
		t.Fatal("expected profile refresh despite credit failure")
	}
}
