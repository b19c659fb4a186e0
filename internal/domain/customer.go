/**
 * @description
 * This file defines the customer profile model for the billing portal. The profile
 * mirrors the payment processor's customer object: the processor is the system of
 * record, so a profile is only ever a read snapshot and is never cached past a
 * single lookup.
 *
 * @dependencies
 * - strings: Standard Go library.
 */

package domain

import "strings"

// CustomerRefPrefix namespaces processor-issued customer references. Every
// identifier that enters the service must carry this prefix.
const CustomerRefPrefix = "cus_"

// Address is the optional postal address attached to a customer profile.
// All fields are optional on the processor side.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// CustomerProfile is a point-in-time snapshot of a processor customer.
// Balance is in minor currency units and signed: a negative balance is credit
// owed to the customer, a positive balance is an amount the customer owes.
type CustomerProfile struct {
	ID       string   `json:"id"`
	Name     string   `json:"name,omitempty"`
	Email    string   `json:"email,omitempty"`
	Address  *Address `json:"address,omitempty"`
	Balance  int64    `json:"balance"`
	Currency string   `json:"currency"`
}

// ValidCustomerRef reports whether id looks like a processor customer reference:
// the fixed namespace prefix followed by a non-empty alphanumeric suffix.
func ValidCustomerRef(id string) bool {
	if !strings.HasPrefix(id, CustomerRefPrefix) {
		return false
	}
	suffix := id[len(CustomerRefPrefix):]
	if suffix == "" {
		return false
	}
	for _, r := range suffix {
		isDigit := r >= '0' && r <= '9'
		isLower := r >= 'a' && r <= 'z'
		isUpper := r >= 'A' && r <= 'Z'
		if !isDigit && !isLower && !isUpper {
			return false
		}
	}
	return true
}
