package app

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenpay/billing-service/internal/domain"
	"github.com/lumenpay/billing-service/pkg/stripeclient"
)

func TestCreateTopUpIntentValidation(t *testing.T) {
	tests := []struct {
		name       string
		customerID string
		amount     int64
		currency   string
		wantErr    error
	}{
		{
			name:       "rejects malformed customer reference",
			customerID: "user_123",
			amount:     500,
			currency:   "usd",
			wantErr:    ErrInvalidCustomerRef,
		},
		{
			name:       "rejects amount below the processor minimum",
			customerID: "cus_abc",
			amount:     30,
			currency:   "usd",
			wantErr:    ErrTopUpAmountTooSmall,
		},
		{
			name:       "rejects amount above the processor maximum",
			customerID: "cus_abc",
			amount:     100000000,
			currency:   "usd",
			wantErr:    ErrAmountTooLarge,
		},
		{
			name:       "rejects uppercase currency",
			customerID: "cus_abc",
			amount:     500,
			currency:   "USD",
			wantErr:    ErrInvalidCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			service, _ := newTestService(gw)

			_, err := service.CreateTopUpIntent(context.Background(), tt.customerID, tt.amount, tt.currency)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if gw.createCalls != 0 {
				t.Fatalf("expected no gateway call for invalid input, got %d", gw.createCalls)
			}
		})
	}
}

func TestCreateTopUpIntentReturnsSecret(t *testing.T) {
	gw := &fakeGateway{}
	service, _ := newTestService(gw)

	secret, err := service.CreateTopUpIntent(context.Background(), "cus_abc", 500, "usd")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secret != "pi_test1_secret_abc" {
		t.Fatalf("unexpected secret %q", secret)
	}
	if gw.lastCreateCustomer != "cus_abc" || gw.lastCreateAmount != 500 || gw.lastCreateCurrency != "usd" {
		t.Fatalf("gateway received %s/%d/%s", gw.lastCreateCustomer, gw.lastCreateAmount, gw.lastCreateCurrency)
	}
}

func TestCreateTopUpIntentGatewayFailure(t *testing.T) {
	gw := &fakeGateway{createErr: errors.New("processor down")}
	service, _ := newTestService(gw)

	_, err := service.CreateTopUpIntent(context.Background(), "cus_abc", 500, "usd")
	if !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("expected ErrGatewayFailure, got %v", err)
	}
}

func TestCreateTopUpIntentMissingSecret(t *testing.T) {
	gw := &fakeGateway{createResp: &domain.PaymentIntent{ID: "pi_test1"}}
	service, _ := newTestService(gw)

	_, err := service.CreateTopUpIntent(context.Background(), "cus_abc", 500, "usd")
	if !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("expected ErrGatewayFailure for missing secret, got %v", err)
	}
}

func TestApplyCreditPostsNegativeBalanceTransaction(t *testing.T) {
	gw := &fakeGateway{}
	service, pub := newTestService(gw)

	adj := domain.CreditAdjustment{CustomerID: "cus_abc", Amount: 50, Currency: "usd"}
	if err := service.ApplyCredit(context.Background(), adj, "pi_test1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gw.balanceCalls != 1 {
		t.Fatalf("expected one balance transaction, got %d", gw.balanceCalls)
	}
	if gw.lastBalanceAmount != -50 {
		t.Fatalf("expected posted amount -50, got %d", gw.lastBalanceAmount)
	}
	if gw.lastBalanceCustomer != "cus_abc" || gw.lastBalanceCurrency != "usd" {
		t.Fatalf("balance transaction targeted %s/%s", gw.lastBalanceCustomer, gw.lastBalanceCurrency)
	}
	if len(pub.applied) != 1 {
		t.Fatalf("expected one credit.applied event, got %d", len(pub.applied))
	}
	if pub.applied[0].Amount != 50 || pub.applied[0].IntentID != "pi_test1" {
		t.Fatalf("unexpected event payload: %+v", pub.applied[0])
	}
}

func TestApplyCreditValidation(t *testing.T) {
	tests := []struct {
		name    string
		adj     domain.CreditAdjustment
		wantErr error
	}{
		{
			name:    "rejects zero amount",
			adj:     domain.CreditAdjustment{CustomerID: "cus_abc", Amount: 0, Currency: "usd"},
			wantErr: ErrInvalidCreditAmount,
		},
		{
			name:    "rejects amount above maximum",
			adj:     domain.CreditAdjustment{CustomerID: "cus_abc", Amount: 100000000, Currency: "usd"},
			wantErr: ErrAmountTooLarge,
		},
		{
			name:    "rejects malformed customer reference",
			adj:     domain.CreditAdjustment{CustomerID: "nope", Amount: 50, Currency: "usd"},
			wantErr: ErrInvalidCustomerRef,
		},
		{
			name:    "rejects bad currency code",
			adj:     domain.CreditAdjustment{CustomerID: "cus_abc", Amount: 50, Currency: "dollars"},
			wantErr: ErrInvalidCurrency,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &fakeGateway{}
			service, _ := newTestService(gw)

			err := service.ApplyCredit(context.Background(), tt.adj, "")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if gw.balanceCalls != 0 {
				t.Fatalf("expected no balance transaction for invalid input, got %d", gw.balanceCalls)
			}
		})
	}
}

func TestApplyCreditGatewayFailure(t *testing.T) {
	gw := &fakeGateway{balanceErr: errors.New("processor down")}
	service, pub := newTestService(gw)

	adj := domain.CreditAdjustment{CustomerID: "cus_abc", Amount: 50, Currency: "usd"}
	err := service.ApplyCredit(context.Background(), adj, "")
	if !errors.Is(err, ErrGatewayFailure) {
		t.Fatalf("expected ErrGatewayFailure, got %v", err)
	}
	if len(pub.applied) != 0 {
		t.Fatalf("expected no credit.applied event on failure, got %d", len(pub.applied))
	}
}

func TestLookupCustomer(t *testing.T) {
	profile := &domain.CustomerProfile{ID: "cus_abc", Balance: -1500, Currency: "usd"}
	gw := &fakeGateway{customer: profile}
	service, _ := newTestService(gw)

	got, err := service.LookupCustomer(context.Background(), "cus_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Balance != -1500 {
		t.Fatalf("expected balance -1500, got %d", got.Balance)
	}
}

func TestLookupCustomerIdempotentDisplay(t *testing.T) {
	profile := &domain.CustomerProfile{ID: "cus_abc", Balance: -1500, Currency: "usd"}
	gw := &fakeGateway{customer: profile}
	service, _ := newTestService(gw)

	first, err := service.LookupCustomer(context.Background(), "cus_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := service.LookupCustomer(context.Background(), "cus_abc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Balance != second.Balance {
		t.Fatalf("balance changed without a mutation: %d vs %d", first.Balance, second.Balance)
	}
	if gw.customerCalls != 2 {
		t.Fatalf("expected a fresh read per lookup, got %d calls", gw.customerCalls)
	}
}

func TestLookupCustomerErrors(t *testing.T) {
	gw := &fakeGateway{customerErr: stripeclient.ErrCustomerNotFound}
	service, _ := newTestService(gw)

	if _, err := service.LookupCustomer(context.Background(), "cus_missing"); !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
	if _, err := service.LookupCustomer(context.Background(), "garbage"); !errors.Is(err, ErrInvalidCustomerRef) {
		t.Fatalf("expected ErrInvalidCustomerRef, got %v", err)
	}
}

func TestRateLimitBoundaryChecks(t *testing.T) {
	gw := &fakeGateway{}
	service, _ := newTestService(gw)
	service.ConfigureRateLimits(2, 2)
	service.SetRateLimiter(&fixedLimiter{count: 3, retryAfter: 17})

	err := service.AllowTopUpRequest(context.Background(), "cus_abc")
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfterSeconds != 17 {
		t.Fatalf("expected retry-after 17, got %d", rateErr.RetryAfterSeconds)
	}

	// A broken limiter must not block payments.
	service.SetRateLimiter(&fixedLimiter{err: errors.New("redis down")})
	if err := service.AllowCreditRequest(context.Background(), "cus_abc"); err != nil {
		t.Fatalf("expected limiter failure to be ignored, got %v", err)
	}
}
