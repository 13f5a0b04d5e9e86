package model

import "errors"

// Engine error kinds. All are recoverable at the call boundary: the caller
// matches with errors.Is and maps to a user-facing message. A failed
// aggregation returns one of these and no partial view.
var (
	// ErrInvalidRecurrenceRule wraps recurrence.ErrInvalidRule at the engine
	// surface: a malformed or logically empty rule reached an operation.
	ErrInvalidRecurrenceRule = errors.New("invalid recurrence rule")

	// ErrRateUnavailable means no rate snapshot exists on or before the
	// requested valuation date.
	ErrRateUnavailable = errors.New("exchange rate unavailable")

	// ErrNotCreditMethod means billing-cycle resolution was requested on a
	// non-credit payment method.
	ErrNotCreditMethod = errors.New("payment method is not a credit method")

	// ErrUnknownCurrency means a currency code is absent from the directory
	// or not visible.
	ErrUnknownCurrency = errors.New("unknown currency")
)
