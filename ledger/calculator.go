/*
calculator.go - Expected-stock derivation

PURPOSE:
  Computes the quantity the system believes should be on the shelf:

    expected = baseline
             + sum(restock deltas)
             - sum(|sale deltas|)
             - sum(|decant-out deltas|)
             + sum(decant-in deltas)

  folded over every event recorded since the baseline watermark. The
  baseline is the physical count trusted at the last reconciliation, so
  the fold window is bounded - no unbounded history replay.

ORDERING:
  The sum is commutative; no event ordering beyond grouping by kind
  matters. Occurrence timestamps are stored for audit only.

EDGE CASES:
  - No events since the baseline: expected equals the baseline unchanged.
  - Negative expected values are possible when events are inconsistent
    (e.g. a race between two concurrent sales). They are surfaced, not
    clamped, so operators can see the inconsistency.
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// BREAKDOWN - How expected stock was derived
// =============================================================================

// Breakdown itemizes the expected-stock fold. Returned with every audit
// record so staff can see where the figure came from.
type Breakdown struct {
	BaselineQty int64     `json:"baseline_qty"`
	BaselineAt  time.Time `json:"baseline_at"`
	Restocked   int64     `json:"total_restocked"`
	Sold        int64     `json:"total_sold"`
	DecantedOut int64     `json:"total_decanted_out"`
	DecantedIn  int64     `json:"total_decanted_in"`
	Expected    int64     `json:"expected_stock"`
}

// =============================================================================
// CALCULATOR
// =============================================================================

// ExpectedStock loads the inventory baseline and folds every event
// recorded after it. Returns ErrInventoryNotFound if the product has no
// inventory record for the shop.
func ExpectedStock(ctx context.Context, st Store, shop ShopID, product ProductID) (Breakdown, error) {
	inv, err := st.GetInventory(ctx, shop, product)
	if err != nil {
		return Breakdown{}, err
	}
	if inv == nil {
		return Breakdown{}, ErrInventoryNotFound
	}

	events, err := st.EventsSince(ctx, shop, product, inv.BaselineAt)
	if err != nil {
		return Breakdown{}, err
	}

	return Fold(inv.BaselineQty, inv.BaselineAt, events), nil
}

// Fold is the pure expected-stock computation. Exported separately so
// it can be tested without a store.
func Fold(baseline int64, baselineAt time.Time, events []StockEvent) Breakdown {
	bd := Breakdown{BaselineQty: baseline, BaselineAt: baselineAt}

	for _, ev := range events {
		switch ev.Kind {
		case KindRestock:
			bd.Restocked += ev.Quantity
		case KindSale:
			bd.Sold += abs64(ev.Quantity)
		case KindDecantOut:
			bd.DecantedOut += abs64(ev.Quantity)
		case KindDecantIn:
			bd.DecantedIn += ev.Quantity
		}
	}

	bd.Expected = baseline + bd.Restocked - bd.Sold - bd.DecantedOut + bd.DecantedIn
	return bd
}

func abs64(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
