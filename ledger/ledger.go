/*
ledger.go - Append contract for stock events

PURPOSE:
  The event log is the immutable source of truth for all stock changes.
  Every sale, restock, and decant is recorded here. Expected stock is
  always computed by folding events on top of a baseline - the on-hand
  field on the inventory record is a cache, never independently trusted.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. IMMUTABLE: Once written, events cannot be modified
  3. SIGN COHERENCE: SALE and DECANT_OUT deltas are negative, RESTOCK
     and DECANT_IN deltas are positive
  4. IDEMPOTENT: Same (shop, idempotency key) = same event, exactly once

WHY APPEND-ONLY?
  - Audit trail: any expected-stock figure can be explained event by event
  - Offline sync: retried submissions are harmless duplicates, not
    double-counted sales
  - Reconciliation: a physical count resets the baseline instead of
    rewriting history

DUPLICATE DETECTION:
  The store's unique index on (shop, idempotency key) is the sole
  defense against double-counted offline sales. Append does NOT
  query-then-insert; it relies on the constraint violation surfacing as
  ErrDuplicateIdempotencyKey, which callers treat as "already applied".
*/
package ledger

import (
	"context"
)

// =============================================================================
// EVENT LEDGER
// =============================================================================

// EventLedger validates and appends stock events. It is a thin layer
// over Store that enforces the sign-coherence invariant before anything
// reaches the log.
type EventLedger struct {
	Store Store
}

func NewEventLedger(store Store) *EventLedger {
	return &EventLedger{Store: store}
}

// Append validates and persists a stock event.
func (l *EventLedger) Append(ctx context.Context, ev StockEvent) error {
	if err := ValidateEvent(ev); err != nil {
		return err
	}
	return l.Store.AppendEvent(ctx, ev)
}

// ValidateEvent checks the structural invariants of an event before it
// is appended. The store-level unique constraint handles idempotency;
// everything else is checked here.
func ValidateEvent(ev StockEvent) error {
	if ev.Shop == "" {
		return &InvalidInputError{Field: "shop", Reason: "is required"}
	}
	if ev.Product == "" {
		return &InvalidInputError{Field: "product", Reason: "is required"}
	}
	if ev.Quantity == 0 {
		return &InvalidInputError{Field: "quantity", Reason: "must be non-zero"}
	}

	switch ev.Kind {
	case KindSale, KindDecantOut:
		if ev.Quantity > 0 {
			return &InvalidInputError{Field: "quantity", Reason: "must be negative for " + string(ev.Kind)}
		}
	case KindRestock, KindDecantIn:
		if ev.Quantity < 0 {
			return &InvalidInputError{Field: "quantity", Reason: "must be positive for " + string(ev.Kind)}
		}
	default:
		return &InvalidInputError{Field: "kind", Reason: "unknown event kind " + string(ev.Kind)}
	}

	return nil
}
