/**
 * @description
 * This file implements the payment confirmation orchestrator: a per-browser-
 * session state machine that drives the add-funds flow end to end. One
 * FlowSession covers one customer's attempt, from amount entry through intent
 * creation, payment-element submission, processor confirmation, and finally
 * credit application (or a redirect hand-off for external authentication).
 *
 * At-most-once invariant: ApplyCredit has no deduplication, so a session
 * invokes it at most once, only on the synchronous success path. The redirect
 * path never reaches that call; it hands control to the redirect reconciler,
 * which is the only other producer. The `credited` guard makes a second
 * invocation within a session impossible.
 *
 * @dependencies
 * - context, errors, log: Standard Go libraries.
 * - github.com/google/uuid: For session identifiers.
 * - internal/domain: Flow amounts and intent snapshots.
 * - pkg/stripeclient: For deriving the intent id from the confirmation secret.
 */

package app

import (
	"context"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/lumenpay/billing-service/internal/domain"
	"github.com/lumenpay/billing-service/pkg/stripeclient"
)

// FlowState is the orchestrator's position in the add-funds flow.
type FlowState string

const (
	FlowIdle            FlowState = "idle"
	FlowIntentCreated   FlowState = "intent-created"
	FlowConfirming      FlowState = "confirming"
	FlowSucceeded       FlowState = "succeeded"
	FlowFailed          FlowState = "failed"
	FlowRedirectPending FlowState = "redirect-pending"
)

var (
	ErrFlowTransition = errors.New("operation not valid in the current flow state")
	ErrElementSubmit  = errors.New("payment details were rejected")
)

// PaymentElement is the handle to the processor's hosted payment UI element.
// It is a scoped resource: mounted when the intent is created and released on
// transition to idle, succeeded, or failed. Submit validates the collected
// details with the processor and must be followed immediately by the
// confirmation call, with no other work in between.
type PaymentElement interface {
	Submit(ctx context.Context) error
	PaymentMethodID() string
	Unmount()
}

// ElementMounter mounts a payment element for the given confirmation secret.
type ElementMounter func(clientSecret string) PaymentElement

// ConfirmOutcome describes where a confirmation attempt left the flow.
// Message carries the user-facing text for declines and validation
// rejections. RedirectURL is set only for the redirect-pending outcome.
type ConfirmOutcome struct {
	State       FlowState
	Message     string
	RedirectURL string
	Amount      int64
	Currency    string
}

// FlowSession is the orchestrator for a single browser session's add-funds
// attempt. It is driven by exactly one logical flow at a time and is not safe
// for concurrent use; a browser session never issues overlapping operations.
type FlowSession struct {
	id       uuid.UUID
	service  *Service
	mount    ElementMounter
	state    FlowState
	credited bool

	customerID   string
	currency     string
	amount       int64
	clientSecret string
	intentID     string
	element      PaymentElement
}

// NewFlowSession creates an idle session for the given customer. The currency
// comes from the customer's profile and is immutable for the life of the flow.
func NewFlowSession(service *Service, customerID, currency string, mount ElementMounter) *FlowSession {
	return &FlowSession{
		id:         uuid.New(),
		service:    service,
		mount:      mount,
		state:      FlowIdle,
		customerID: customerID,
		currency:   currency,
	}
}

// State returns the session's current flow state.
func (f *FlowSession) State() FlowState {
	return f.state
}

// Amount returns the pending top-up amount in minor units.
func (f *FlowSession) Amount() int64 {
	return f.amount
}

// ClientSecret returns the confirmation secret of the pending intent.
func (f *FlowSession) ClientSecret() string {
	return f.clientSecret
}

// Begin parses the user-entered major-unit amount, creates a payment intent
// for it, and mounts the payment element. idle → intent-created.
func (f *FlowSession) Begin(ctx context.Context, amountInput string) error {
	if f.state != FlowIdle {
		return ErrFlowTransition
	}

	minor, err := domain.ParseMajorAmount(amountInput)
	if err != nil {
		return err
	}
	// Checked here as well as in the service so the user sees the message
	// before any processor round trip.
	if minor < domain.MinTopUpMinor {
		return ErrTopUpAmountTooSmall
	}

	secret, err := f.service.CreateTopUpIntent(ctx, f.customerID, minor, f.currency)
	if err != nil {
		return err
	}
	intentID, err := stripeclient.IntentIDFromSecret(secret)
	if err != nil {
		log.Printf("level=error component=flow session_id=%s msg=\"unusable client secret from intent creation\" err=%v", f.id, err)
		return ErrGatewayFailure
	}

	f.amount = minor
	f.clientSecret = secret
	f.intentID = intentID
	if f.mount != nil {
		f.element = f.mount(secret)
	}
	f.state = FlowIntentCreated

	log.Printf("level=info component=flow session_id=%s customer_id=%s state=%s amount=%d intent_id=%s", f.id, f.customerID, f.state, f.amount, f.intentID)
	return nil
}

// Cancel abandons the pending intent before confirmation. intent-created →
// idle. The orphaned intent needs no processor-side cleanup: an intent that
// never reaches succeeded never triggers a credit.
func (f *FlowSession) Cancel() error {
	if f.state != FlowIntentCreated {
		return ErrFlowTransition
	}
	f.releaseElement()
	f.amount = 0
	f.clientSecret = ""
	f.intentID = ""
	f.state = FlowIdle
	log.Printf("level=info component=flow session_id=%s customer_id=%s state=%s msg=\"flow canceled\"", f.id, f.customerID, f.state)
	return nil
}

// ConfirmPayment submits the collected payment details and confirms the
// intent. intent-created → confirming → {succeeded, failed, redirect-pending,
// or back to intent-created on a recoverable rejection}.
//
// The element submit and the processor confirmation are strictly adjacent:
// the element SDK ties its validation state to the immediately following
// confirmation call, so nothing may run between them.
func (f *FlowSession) ConfirmPayment(ctx context.Context) (*ConfirmOutcome, error) {
	if f.state != FlowIntentCreated {
		return nil, ErrFlowTransition
	}
	if f.element == nil {
		return nil, ErrFlowTransition
	}
	f.state = FlowConfirming

	if err := f.element.Submit(ctx); err != nil {
		// Details rejected by the element; the user corrects and resubmits.
		f.state = FlowIntentCreated
		log.Printf("level=warn component=flow session_id=%s customer_id=%s outcome=submit_rejected err=%v", f.id, f.customerID, err)
		return &ConfirmOutcome{State: f.state, Message: err.Error()}, nil
	}
	intent, err := f.service.gateway.ConfirmPaymentIntent(ctx, f.intentID, f.element.PaymentMethodID(), f.service.returnURL(f.customerID, f.clientSecret))
	if err != nil {
		// Transport-level failure; leave the flow at its last stable state so
		// the user can retry the confirmation step.
		f.state = FlowIntentCreated
		log.Printf("level=error component=flow session_id=%s customer_id=%s outcome=confirm_error err=%v", f.id, f.customerID, err)
		return nil, ErrGatewayFailure
	}

	switch intent.Status {
	case domain.IntentStatusSucceeded:
		return f.settleConfirmed(ctx, intent)

	case domain.IntentStatusRequiresAction:
		f.state = FlowRedirectPending
		log.Printf("level=info component=flow session_id=%s customer_id=%s state=%s intent_id=%s msg=\"external authentication required\"", f.id, f.customerID, f.state, f.intentID)
		return &ConfirmOutcome{
			State:       f.state,
			RedirectURL: intent.RedirectURL,
			Amount:      f.amount,
			Currency:    f.currency,
		}, nil

	default:
		// Hard decline or processor-side failure. Back to intent-created so
		// the user may retry, ideally with a fresh intent.
		f.state = FlowIntentCreated
		log.Printf("level=warn component=flow session_id=%s customer_id=%s outcome=declined intent_status=%s", f.id, f.customerID, intent.Status)
		return &ConfirmOutcome{State: f.state, Message: "Your payment was declined."}, nil
	}
}

// settleConfirmed applies credit for a synchronously confirmed intent. This is
// the single ApplyCredit call site on the orchestrator side.
func (f *FlowSession) settleConfirmed(ctx context.Context, intent *domain.PaymentIntent) (*ConfirmOutcome, error) {
	amount := intent.CreditedAmount()
	currency := intent.Currency
	if currency == "" {
		currency = f.currency
	}

	f.state = FlowSucceeded
	f.releaseElement()

	if f.credited {
		// Unreachable by construction; the guard exists so a future caller
		// cannot widen the at-most-once contract by accident.
		log.Printf("level=error component=flow session_id=%s customer_id=%s msg=\"duplicate credit application suppressed\" intent_id=%s", f.id, f.customerID, f.intentID)
		return &ConfirmOutcome{State: f.state, Amount: amount, Currency: currency}, nil
	}
	f.credited = true

	adj := domain.CreditAdjustment{CustomerID: f.customerID, Amount: amount, Currency: currency}
	if err := f.service.ApplyCredit(ctx, adj, f.intentID); err != nil {
		// Money has moved; never retried. Surface the support path and alert.
		f.service.publishCreditAlert(ctx, adj, f.intentID, "synchronous confirmation credited amount could not be posted")
		log.Printf("level=error component=flow session_id=%s customer_id=%s outcome=credit_failed intent_id=%s err=%v", f.id, f.customerID, f.intentID, err)
		return &ConfirmOutcome{State: f.state, Amount: amount, Currency: currency}, ErrCreditNotApplied
	}

	log.Printf("level=info component=flow session_id=%s customer_id=%s state=%s amount=%d intent_id=%s", f.id, f.customerID, f.state, amount, f.intentID)
	return &ConfirmOutcome{State: f.state, Amount: amount, Currency: currency}, nil
}

func (f *FlowSession) releaseElement() {
	if f.element != nil {
		f.element.Unmount()
		f.element = nil
	}
}
