/**
 * @description
 * Money helpers for the billing portal. Money crosses every service boundary as
 * an integer count of minor currency units; the only decimal representation
 * allowed anywhere is the user-facing amount input, which this file parses.
 *
 * @dependencies
 * - errors, strings: Standard Go libraries.
 */

package domain

import (
	"errors"
	"strings"
)

const (
	// MinTopUpMinor is the smallest chargeable top-up the processor accepts.
	MinTopUpMinor int64 = 50
	// MinCreditMinor is the smallest credit adjustment worth posting.
	MinCreditMinor int64 = 1
	// MaxAmountMinor is the processor's per-request amount ceiling.
	MaxAmountMinor int64 = 99999999
)

var ErrMalformedAmount = errors.New("amount must be a positive decimal number")

// ValidCurrency reports whether code is a 3-letter lowercase currency code.
func ValidCurrency(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'a' || r > 'z' {
			return false
		}
	}
	return true
}

// ParseMajorAmount converts a user-entered major-unit decimal string (e.g.
// "12.50") into minor units. Anything past the second decimal place is rounded
// half-up. Negative amounts, signs, and non-numeric input are rejected.
func ParseMajorAmount(input string) (int64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, ErrMalformedAmount
	}

	whole := s
	frac := ""
	if idx := strings.IndexByte(s, '.'); idx >= 0 {
		whole = s[:idx]
		frac = s[idx+1:]
		if strings.IndexByte(frac, '.') >= 0 {
			return 0, ErrMalformedAmount
		}
	}
	if whole == "" && frac == "" {
		return 0, ErrMalformedAmount
	}

	var minor int64
	for _, r := range whole {
		if r < '0' || r > '9' {
			return 0, ErrMalformedAmount
		}
		minor = minor*10 + int64(r-'0')
		if minor > MaxAmountMinor {
			// Cap the accumulator; range enforcement happens at validation.
			minor = MaxAmountMinor + 1
		}
	}
	minor *= 100

	cents := int64(0)
	for i, r := range frac {
		if r < '0' || r > '9' {
			return 0, ErrMalformedAmount
		}
		switch {
		case i == 0:
			cents += int64(r-'0') * 10
		case i == 1:
			cents += int64(r - '0')
		case i == 2 && r >= '5':
			cents++
		}
	}

	return minor + cents, nil
}
