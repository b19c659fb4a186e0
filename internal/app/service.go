/**
 * @description
 * This file contains the core business logic for the billing-service. The
 * `Service` struct coordinates the add-funds flow between the payment
 * processor (the ledger of record), the event producer, and the HTTP layer.
 *
 * Key features:
 * - Customer lookup passthrough against the processor.
 * - Payment intent creation with amount and customer-reference validation.
 * - Credit application: posts a negative balance transaction for a captured
 *   payment. This operation is NOT idempotent; the orchestrator and the
 *   redirect reconciler are the only callers and each must invoke it at most
 *   once per confirmed intent.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For event identifiers.
 * - internal/domain: Domain models and money helpers.
 * - pkg/rabbitmq, pkg/stripeclient: External service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lumenpay/billing-service/internal/domain"
	"github.com/lumenpay/billing-service/pkg/rabbitmq"
	"github.com/lumenpay/billing-service/pkg/stripeclient"
)

var (
	ErrInvalidCustomerRef  = errors.New("customer reference is malformed")
	ErrInvalidCurrency     = errors.New("currency must be a 3-letter lowercase code")
	ErrTopUpAmountTooSmall = errors.New("Enter at least $0.50")
	ErrAmountTooLarge      = errors.New("amount exceeds the maximum the processor accepts")
	ErrInvalidCreditAmount = errors.New("credit amount must be at least 1 minor unit")
	ErrCustomerNotFound    = errors.New("customer not found")
	ErrGatewayFailure      = errors.New("payment processor request failed")

	// ErrCreditNotApplied marks the partial-failure state: the processor
	// captured the payment but posting the credit failed. The money has moved,
	// so this is never retried automatically; the user is told to contact
	// support and an alert event is published for manual recovery.
	ErrCreditNotApplied = errors.New("payment succeeded but credit was not applied")
)

// LedgerGateway is the slice of the payment processor API the service needs.
// *stripeclient.Client is the production implementation.
type LedgerGateway interface {
	GetCustomer(ctx context.Context, customerID string) (*domain.CustomerProfile, error)
	CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string) (*domain.PaymentIntent, error)
	ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethodID, returnURL string) (*domain.PaymentIntent, error)
	RetrievePaymentIntentBySecret(ctx context.Context, clientSecret string) (*domain.PaymentIntent, error)
	CreateCustomerBalanceTransaction(ctx context.Context, customerID string, amount int64, currency string) error
}

// RateLimiter consumes one unit of the given scope/subject budget and reports
// the running count plus how long the caller should wait once over the limit.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitError is returned when a customer exceeds a per-minute budget.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return "too many requests"
}

// Service provides the core business logic for the billing portal.
type Service struct {
	gateway       LedgerGateway
	eventProducer rabbitmq.Publisher
	returnURLBase string

	rateLimiter      RateLimiter
	topUpPerMinute   int
	creditsPerMinute int
}

// NewService creates a new billing service instance. returnURLBase is the
// externally visible origin the processor redirects back to after an
// authentication challenge.
func NewService(gateway LedgerGateway, producer rabbitmq.Publisher, returnURLBase string) *Service {
	return &Service{
		gateway:       gateway,
		eventProducer: producer,
		returnURLBase: returnURLBase,
	}
}

// SetRateLimiter installs an optional distributed rate limiter for the
// mutating operations. A nil limiter disables limiting.
func (s *Service) SetRateLimiter(limiter RateLimiter) {
	s.rateLimiter = limiter
}

// ConfigureRateLimits sets the per-customer budgets for intent creation and
// credit application. Non-positive values disable the respective limit.
func (s *Service) ConfigureRateLimits(topUpPerMinute, creditsPerMinute int) {
	s.topUpPerMinute = topUpPerMinute
	s.creditsPerMinute = creditsPerMinute
}

// LookupCustomer fetches the customer's current profile from the processor.
// The balance in the returned profile is authoritative only at read time and
// must never be cached past this call.
func (s *Service) LookupCustomer(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	if !domain.ValidCustomerRef(customerID) {
		return nil, ErrInvalidCustomerRef
	}

	profile, err := s.gateway.GetCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, stripeclient.ErrCustomerNotFound) {
			return nil, ErrCustomerNotFound
		}
		log.Printf("level=error component=service op=lookup_customer customer_id=%s err=%v", customerID, err)
		return nil, ErrGatewayFailure
	}
	return profile, nil
}

// CreateTopUpIntent opens a pending charge with the processor and returns its
// confirmation secret. The secret is the only piece of intent state this
// service hands out; the intent itself lives with the processor.
func (s *Service) CreateTopUpIntent(ctx context.Context, customerID string, amount int64, currency string) (string, error) {
	if !domain.ValidCustomerRef(customerID) {
		return "", ErrInvalidCustomerRef
	}
	if amount < domain.MinTopUpMinor {
		return "", ErrTopUpAmountTooSmall
	}
	if amount > domain.MaxAmountMinor {
		return "", ErrAmountTooLarge
	}
	if !domain.ValidCurrency(currency) {
		return "", ErrInvalidCurrency
	}

	intent, err := s.gateway.CreatePaymentIntent(ctx, customerID, amount, currency)
	if err != nil {
		log.Printf("level=error component=service op=create_topup_intent customer_id=%s amount=%d err=%v", customerID, amount, err)
		return "", ErrGatewayFailure
	}
	if intent.ClientSecret == "" {
		log.Printf("level=error component=service op=create_topup_intent customer_id=%s msg=\"processor returned no client secret\" intent_id=%s", customerID, intent.ID)
		return "", ErrGatewayFailure
	}

	log.Printf("level=info component=service op=create_topup_intent customer_id=%s amount=%d currency=%s intent_id=%s", customerID, amount, currency, intent.ID)
	return intent.ClientSecret, nil
}

// ApplyCredit posts a balance transaction of -amount against the customer,
// recording the captured payment as account credit.
//
// NOT idempotent. The processor offers no deduplication for balance
// transactions, so calling this twice for the same payment double-credits the
// customer. The two producers of this call — the confirmation orchestrator's
// synchronous path and the redirect reconciler — are mutually exclusive per
// page load and each invokes it exactly once per succeeded intent.
func (s *Service) ApplyCredit(ctx context.Context, adj domain.CreditAdjustment, intentID string) error {
	if !domain.ValidCustomerRef(adj.CustomerID) {
		return ErrInvalidCustomerRef
	}
	if adj.Amount < domain.MinCreditMinor {
		return ErrInvalidCreditAmount
	}
	if adj.Amount > domain.MaxAmountMinor {
		return ErrAmountTooLarge
	}
	if !domain.ValidCurrency(adj.Currency) {
		return ErrInvalidCurrency
	}

	if err := s.gateway.CreateCustomerBalanceTransaction(ctx, adj.CustomerID, -adj.Amount, adj.Currency); err != nil {
		log.Printf("level=error component=service op=apply_credit customer_id=%s amount=%d intent_id=%s err=%v", adj.CustomerID, adj.Amount, intentID, err)
		return ErrGatewayFailure
	}

	log.Printf("level=info component=service op=apply_credit customer_id=%s amount=%d currency=%s intent_id=%s", adj.CustomerID, adj.Amount, adj.Currency, intentID)
	s.publishCreditApplied(ctx, adj, intentID)
	return nil
}

// AllowTopUpRequest consumes one unit of the customer's intent-creation
// budget. The HTTP layer calls it before CreateTopUpIntent; internal call
// sites are never limited.
func (s *Service) AllowTopUpRequest(ctx context.Context, customerID string) error {
	return s.consumeLimit(ctx, "topup", customerID, s.topUpPerMinute)
}

// AllowCreditRequest consumes one unit of the customer's credit-application
// budget. Applied only at the HTTP boundary: the orchestrator and reconciler
// post credit for money the processor already captured, which must never be
// blocked by a limiter.
func (s *Service) AllowCreditRequest(ctx context.Context, customerID string) error {
	return s.consumeLimit(ctx, "credit", customerID, s.creditsPerMinute)
}

func (s *Service) consumeLimit(ctx context.Context, scope, customerID string, limit int) error {
	if s.rateLimiter == nil || limit <= 0 {
		return nil
	}
	count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, scope, customerID, limit, time.Minute)
	if err != nil {
		// A broken limiter must not block payments.
		log.Printf("level=warn component=service op=rate_limit scope=%s customer_id=%s msg=\"limiter unavailable; allowing request\" err=%v", scope, customerID, err)
		return nil
	}
	if count > limit {
		log.Printf("level=warn component=service op=rate_limit scope=%s customer_id=%s count=%d limit=%d outcome=reject", scope, customerID, count, limit)
		return &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	return nil
}

func (s *Service) publishCreditApplied(ctx context.Context, adj domain.CreditAdjustment, intentID string) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.CreditEvent{
		EventID:    uuid.New(),
		CustomerID: adj.CustomerID,
		IntentID:   intentID,
		Amount:     adj.Amount,
		Currency:   adj.Currency,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.eventProducer.PublishCreditApplied(ctx, event); err != nil {
		log.Printf("level=warn component=service op=publish_credit_applied customer_id=%s err=%v", adj.CustomerID, err)
	}
}

// publishCreditAlert emits the manual-recovery event for a captured payment
// whose credit posting failed.
func (s *Service) publishCreditAlert(ctx context.Context, adj domain.CreditAdjustment, intentID, reason string) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.CreditEvent{
		EventID:    uuid.New(),
		CustomerID: adj.CustomerID,
		IntentID:   intentID,
		Amount:     adj.Amount,
		Currency:   adj.Currency,
		Reason:     reason,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.eventProducer.PublishCreditAlert(ctx, event); err != nil {
		log.Printf("level=error component=service op=publish_credit_alert customer_id=%s intent_id=%s err=%v", adj.CustomerID, intentID, err)
	}
}

// returnURL builds the URL the processor should send the browser back to after
// an external authentication step. The customer reference rides in the path
// and the confirmation secret in the query string; the receiving page strips
// the secret immediately after reading it.
func (s *Service) returnURL(customerID, clientSecret string) string {
	return fmt.Sprintf("%s/portal/%s?payment_intent_client_secret=%s", s.returnURLBase, customerID, clientSecret)
}
