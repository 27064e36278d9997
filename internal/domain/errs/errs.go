// Package errs defines the error kinds shared by every service. Domain packages
// wrap these sentinels so callers classify failures with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. Nothing is persisted.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an absent entity on a read path.
	ErrNotFound = errors.New("not found")
	// ErrEmptyCart marks an order attempt against an absent or empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrPaymentDeclined marks a payment authorization that did not succeed.
	ErrPaymentDeclined = errors.New("payment declined")
	// ErrExternalService marks an unreachable collaborator or broker.
	ErrExternalService = errors.New("external service unavailable")
	// ErrConsistency marks cross-service drift that is logged but not fatal.
	ErrConsistency = errors.New("consistency warning")
	// ErrConflict marks a concurrent modification detected by a store.
	ErrConflict = errors.New("conflict")
)

// Validation returns an error wrapping ErrValidation with msg.
func Validation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// External wraps cause as an ErrExternalService failure of peer.
func External(peer string, cause error) error {
	return fmt.Errorf("%w: %s: %w", ErrExternalService, peer, cause)
}

// Consistency wraps a drift condition as ErrConsistency.
func Consistency(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConsistency, fmt.Sprintf(format, args...))
}

// Code returns the stable, machine-readable name of err's kind.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "VALIDATION_ERROR"
	case errors.Is(err, ErrNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrEmptyCart):
		return "EMPTY_CART"
	case errors.Is(err, ErrPaymentDeclined):
		return "PAYMENT_DECLINED"
	case errors.Is(err, ErrExternalService):
		return "EXTERNAL_SERVICE_ERROR"
	case errors.Is(err, ErrConsistency):
		return "CONSISTENCY_WARNING"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	default:
		return "INTERNAL"
	}
}
