/**
 * @description
 * This file defines the payment intent snapshot and credit adjustment models used
 * by the add-funds flow. A payment intent is owned entirely by the payment
 * processor; the service only ever holds the snapshot needed to drive
 * confirmation (identifier, confirmation secret, status, amounts).
 *
 * @dependencies
 * - none beyond the standard library.
 */

package domain

// PaymentIntentStatus is the processor-side lifecycle status of an intent.
type PaymentIntentStatus string

const (
	IntentStatusRequiresPaymentMethod PaymentIntentStatus = "requires_payment_method"
	IntentStatusRequiresConfirmation  PaymentIntentStatus = "requires_confirmation"
	IntentStatusRequiresAction        PaymentIntentStatus = "requires_action"
	IntentStatusProcessing            PaymentIntentStatus = "processing"
	IntentStatusSucceeded             PaymentIntentStatus = "succeeded"
	IntentStatusCanceled              PaymentIntentStatus = "canceled"
)

// PaymentIntent is a snapshot of a processor payment intent. Amounts are in
// minor currency units. AmountReceived is the amount the processor actually
// captured, which is authoritative over Amount once the intent has succeeded.
// RedirectURL is populated only when Status is requires_action and the
// processor needs the browser sent to an external authentication page.
type PaymentIntent struct {
	ID             string
	ClientSecret   string
	Status         PaymentIntentStatus
	Amount         int64
	AmountReceived int64
	Currency       string
	CustomerID     string
	RedirectURL    string
}

// CreditedAmount resolves the amount to post as credit for a succeeded intent,
// preferring the captured amount over the requested one since adjustments can
// occur mid-flow.
func (pi *PaymentIntent) CreditedAmount() int64 {
	if pi.AmountReceived > 0 {
		return pi.AmountReceived
	}
	return pi.Amount
}

// CreditAdjustment is a one-shot request to post account credit. It is never
// persisted on this side; applying it records a balance transaction of
// -Amount against the customer with the processor.
type CreditAdjustment struct {
	CustomerID string `json:"customerId"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
}
