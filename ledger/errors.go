/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Errors fall into the taxonomy used across the system:

    InvalidInput  - malformed request data; not retryable as-is
    NotFound      - referenced shop/product/alert does not exist
    Forbidden     - actor lacks the required role
    Conflict      - already-resolved alert, insufficient stock, duplicate key
    Transient     - network/timeout; safe to retry with the same key
    Invariant     - internal inconsistency; surfaced, never silently fixed

  The classifier helpers at the bottom are what the HTTP layer and the
  sync protocol use to decide status codes and retry behavior.

USAGE:
  if ledger.IsConflict(err) { ... }

  var insufficient *ledger.InsufficientStockError
  if errors.As(err, &insufficient) {
      fmt.Println(insufficient.Available, insufficient.Requested)
  }
*/
package ledger

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateIdempotencyKey is returned when an event with the same
	// idempotency key already exists for the shop. This is expected
	// behavior for retried offline sales, not a fault.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrInvalidInput is the base error for malformed or out-of-range
	// request data.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProductNotFound is returned when a referenced product doesn't
	// exist or is no longer active.
	ErrProductNotFound = errors.New("product not found")

	// ErrInventoryNotFound is returned when a product has no inventory
	// record for the shop.
	ErrInventoryNotFound = errors.New("inventory record not found")

	// ErrAlertNotFound is returned when a referenced alert doesn't exist.
	ErrAlertNotFound = errors.New("alert not found")

	// ErrAlertAlreadyResolved is returned when resolving an alert twice.
	// Resolution is a one-way transition.
	ErrAlertAlreadyResolved = errors.New("alert already resolved")

	// ErrForbidden is returned when the actor lacks the required role.
	ErrForbidden = errors.New("forbidden")

	// ErrInsufficientStock is returned when a sale would exceed the
	// expected on-hand quantity at sync time.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrSyncUnavailable indicates a transport-level sync failure: the
	// whole batch stays pending and is retried with the same keys.
	ErrSyncUnavailable = errors.New("sync endpoint unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidInputError reports which field failed validation.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid input: %s %s", e.Field, e.Reason)
}

func (e *InvalidInputError) Unwrap() error { return ErrInvalidInput }

// InsufficientStockError provides details about a stock shortage so the
// caller can report current vs. requested.
type InsufficientStockError struct {
	Shop      ShopID
	Product   ProductID
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.Product, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InvariantViolation records an internal inconsistency discovered during
// normal operation, such as a negative expected stock. It is logged and
// surfaced to operators; it never blocks the operation that found it.
type InvariantViolation struct {
	Shop     ShopID
	Product  ProductID
	Detail   string
	Observed time.Time
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation for %s/%s: %s", e.Shop, e.Product, e.Detail)
}

// =============================================================================
// CLASSIFIERS - Map errors onto the taxonomy
// =============================================================================

func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrInventoryNotFound) ||
		errors.Is(err, ErrAlertNotFound)
}

func IsForbidden(err error) bool { return errors.Is(err, ErrForbidden) }

func IsConflict(err error) bool {
	return errors.Is(err, ErrAlertAlreadyResolved) ||
		errors.Is(err, ErrInsufficientStock) ||
		errors.Is(err, ErrDuplicateIdempotencyKey)
}

// IsTransient reports whether the error might succeed on retry with the
// same idempotency key.
func IsTransient(err error) bool { return errors.Is(err, ErrSyncUnavailable) }
