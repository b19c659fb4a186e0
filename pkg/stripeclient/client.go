/**
 * @description
 * This package provides a client for the payment processor (Stripe), which is
 * the system of record for customer profiles, balances, and payment intents.
 * It wraps the official stripe-go SDK behind domain types so that SDK structs
 * never leak into the business logic layer.
 *
 * @dependencies
 * - context, errors, fmt, log, strings: Standard Go libraries.
 * - github.com/stripe/stripe-go/v79: The official Stripe SDK.
 */
package stripeclient

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"

	"github.com/lumenpay/billing-service/internal/domain"
)

var (
	// ErrCustomerNotFound is returned when the processor has no customer for
	// the given reference.
	ErrCustomerNotFound = errors.New("customer not found")
	// ErrMalformedClientSecret is returned when a confirmation secret does not
	// carry a recoverable intent identifier.
	ErrMalformedClientSecret = errors.New("malformed payment intent client secret")
)

// GatewayError wraps a processor-side rejection. The processor's message is
// kept for server-side logging; API handlers must not forward it verbatim.
type GatewayError struct {
	Op     string
	Code   string
	Status int
	Msg    string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("stripe %s failed: %s (code=%s status=%d)", e.Op, e.Msg, e.Code, e.Status)
}

// Client is a client for the Stripe API.
type Client struct {
	api *client.API
}

// NewClient creates a new Stripe client. baseURL overrides the API host when
// non-empty, which lets tests and local twins stand in for the real processor.
func NewClient(apiKey, baseURL string) *Client {
	sc := &client.API{}
	if strings.TrimSpace(baseURL) == "" {
		sc.Init(apiKey, nil)
	} else {
		backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
			URL: stripe.String(strings.TrimRight(baseURL, "/")),
		})
		sc.Init(apiKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	}
	return &Client{api: sc}
}

// GetCustomer fetches a customer profile snapshot from the processor.
func (c *Client) GetCustomer(ctx context.Context, customerID string) (*domain.CustomerProfile, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx

	cus, err := c.api.Customers.Get(customerID, params)
	if err != nil {
		return nil, c.wrapError("get_customer", err)
	}
	if cus.Deleted {
		return nil, ErrCustomerNotFound
	}

	profile := &domain.CustomerProfile{
		ID:       cus.ID,
		Name:     cus.Name,
		Email:    cus.Email,
		Balance:  cus.Balance,
		Currency: string(cus.Currency),
	}
	if cus.Address != nil {
		profile.Address = &domain.Address{
			Line1:      cus.Address.Line1,
			Line2:      cus.Address.Line2,
			City:       cus.Address.City,
			State:      cus.Address.State,
			PostalCode: cus.Address.PostalCode,
			Country:    cus.Address.Country,
		}
	}
	return profile, nil
}

// CreatePaymentIntent asks the processor to open a pending charge for the
// customer with automatic payment-method selection enabled.
func (c *Client) CreatePaymentIntent(ctx context.Context, customerID string, amount int64, currency string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
		Customer: stripe.String(customerID),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.New(params)
	if err != nil {
		return nil, c.wrapError("create_payment_intent", err)
	}
	return intentSnapshot(pi), nil
}

// ConfirmPaymentIntent confirms a pending intent with the payment method the
// hosted element collected. returnURL is where the processor sends the browser
// back after an external authentication step.
func (c *Client) ConfirmPaymentIntent(ctx context.Context, intentID, paymentMethodID, returnURL string) (*domain.PaymentIntent, error) {
	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(paymentMethodID),
		ReturnURL:     stripe.String(returnURL),
	}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Confirm(intentID, params)
	if err != nil {
		return nil, c.wrapError("confirm_payment_intent", err)
	}
	return intentSnapshot(pi), nil
}

// RetrievePaymentIntentBySecret resolves a confirmation secret back to the
// current intent snapshot. The intent identifier is recovered from the secret's
// "<intent id>_secret_<nonce>" shape.
func (c *Client) RetrievePaymentIntentBySecret(ctx context.Context, clientSecret string) (*domain.PaymentIntent, error) {
	intentID, err := IntentIDFromSecret(clientSecret)
	if err != nil {
		return nil, err
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return nil, c.wrapError("retrieve_payment_intent", err)
	}
	return intentSnapshot(pi), nil
}

// CreateCustomerBalanceTransaction records a signed balance adjustment against
// the customer. A negative amount is credit owed to the customer.
func (c *Client) CreateCustomerBalanceTransaction(ctx context.Context, customerID string, amount int64, currency string) error {
	params := &stripe.CustomerBalanceTransactionParams{
		Customer: stripe.String(customerID),
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(currency),
	}
	params.Context = ctx

	if _, err := c.api.CustomerBalanceTransactions.New(params); err != nil {
		return c.wrapError("create_balance_transaction", err)
	}
	return nil
}

// IntentIDFromSecret extracts the payment intent identifier from a
// confirmation secret.
func IntentIDFromSecret(clientSecret string) (string, error) {
	idx := strings.Index(clientSecret, "_secret_")
	if idx <= 0 {
		return "", ErrMalformedClientSecret
	}
	return clientSecret[:idx], nil
}

func intentSnapshot(pi *stripe.PaymentIntent) *domain.PaymentIntent {
	snap := &domain.PaymentIntent{
		ID:             pi.ID,
		ClientSecret:   pi.ClientSecret,
		Status:         domain.PaymentIntentStatus(pi.Status),
		Amount:         pi.Amount,
		AmountReceived: pi.AmountReceived,
		Currency:       string(pi.Currency),
	}
	if pi.Customer != nil {
		snap.CustomerID = pi.Customer.ID
	}
	if pi.NextAction != nil && pi.NextAction.RedirectToURL != nil {
		snap.RedirectURL = pi.NextAction.RedirectToURL.URL
	}
	return snap
}

func (c *Client) wrapError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Printf("level=warn component=stripe_client op=%s status=%d code=%s msg=%q", op, stripeErr.HTTPStatusCode, stripeErr.Code, stripeErr.Msg)
		if stripeErr.HTTPStatusCode == 404 || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			if op == "get_customer" {
				return ErrCustomerNotFound
			}
		}
		return &GatewayError{
			Op:     op,
			Code:   string(stripeErr.Code),
			Status: stripeErr.HTTPStatusCode,
			Msg:    stripeErr.Msg,
		}
	}
	log.Printf("level=warn component=stripe_client op=%s msg=\"request failed\" err=%v", op, err)
	return fmt.Errorf("stripe %s failed: %w", op, err)
}
