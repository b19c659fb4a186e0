package app

import (
	"context"
	"time"

	"github.com/lumenpay/billing-service/internal/domain"
	"github.com/lumenpay/billing-service/pkg/rabbitmq"
)

// fakeGateway is a scriptable LedgerGateway standing in for the processor.
type fakeGateway struct {
	customer    *domain.CustomerProfile
	customerErr error

	createResp *domain.PaymentIntent
	createErr  error

	confirmResp *domain.PaymentIntent
	confirmErr  error

	retrieveResp *domain.PaymentIntent
	retrieveErr  error

	balanceErr error

	customerCalls int
	createCalls   int
	confirmCalls  int
	retrieveCalls int
	balanceCalls  int

	lastCreateCustomer  string
	lastCreateAmount    int64
	lastCreateCurrency  string
	lastConfirmIntent   string
	lastConfirmMethod   string
	lastReturnURL       string
	lastRetrieveSecret  string
	lastBalanceCustomer string
	lastBalanceAmount   int64
	lastBalanceCurrency string
}

func (g *fakeGateway) GetCustomer(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	g.customerCalls++
	if g.customerErr != nil {
		return nil, g.customerErr
	}
	return g.customer, nil
}

func (g *fakeGateway) CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string) (*domain.PaymentIntent, error) {
	g.createCalls++
	g.lastCreateCustomer = customerID
	g.lastCreateAmount = amount
	g.lastCreateCurrency = currency
	if g.createErr != nil {
		return nil, g.createErr
	}
	if g.createResp != nil {
		return g.createResp, nil
	}
	return &domain.PaymentIntent{
		ID:           "pi_test1",
		ClientSecret: "pi_test1_secret_abc",
		Status:       domain.IntentStatusRequiresPaymentMethod,
		Amount:       amount,
		Currency:     currency,
		CustomerID:   customerID,
	}, nil
}

func (g *fakeGateway) ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethodID, returnURL string) (*domain.PaymentIntent, error) {
	g.confirmCalls++
	g.lastConfirmIntent = intentID
	g.lastConfirmMethod = paymentMethodID
	g.lastReturnURL = returnURL
	if g.confirmErr != nil {
		return nil, g.confirmErr
	}
	return g.confirmResp, nil
}

func (g *fakeGateway) RetrievePaymentIntentBySecret(ctx context.Context, clientSecret string) (*domain.PaymentIntent, error) {
	g.retrieveCalls++
	g.lastRetrieveSecret = clientSecret
	if g.retrieveErr != nil {
		return nil, g.retrieveErr
	}
	return g.retrieveResp, nil
}

func (g *fakeGateway) CreateCustomerBalanceTransaction(ctx context.Context, customerID string, amount int64, currency string) error {
	g.balanceCalls++
	g.lastBalanceCustomer = customerID
	g.lastBalanceAmount = amount
	g.lastBalanceCurrency = currency
	return g.balanceErr
}

// fakePublisher records published billing events.
type fakePublisher struct {
	applied []rabbitmq.CreditEvent
	alerts  []rabbitmq.CreditEvent
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *fakePublisher) PublishCreditApplied(ctx context.Context, event rabbitmq.CreditEvent) error {
	p.applied = append(p.applied, event)
	return nil
}

func (p *fakePublisher) PublishCreditAlert(ctx context.Context, event rabbitmq.CreditEvent) error {
	p.alerts = append(p.alerts, event)
	return nil
}

func (p *fakePublisher) Close() {}

// fakeElement stands in for the processor's hosted payment UI element.
type fakeElement struct {
	submitErr error
	method    string
	submits   int
	unmounted bool
}

func (e *fakeElement) Submit(ctx context.Context) error {
	e.submits++
	return e.submitErr
}

func (e *fakeElement) PaymentMethodID() string {
	if e.method == "" {
		return "pm_card_test"
	}
	return e.method
}

func (e *fakeElement) Unmount() {
	e.unmounted = true
}

// fixedLimiter always reports the given count for any scope.
type fixedLimiter struct {
	count      int
	retryAfter int
	err        error
}

func (l *fixedLimiter) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

func newTestService(gw *fakeGateway) (*Service, *fakePublisher) {
	pub := &fakePublisher{}
	return NewService(gw, pub, "https://billing.example.com"), pub
}
