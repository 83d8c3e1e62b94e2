/*
Package reconcile implements physical-count verification.

PURPOSE:
  A staff member counts what is actually on the shelf; the engine
  compares that count against the expected stock derived from the event
  ledger, classifies the discrepancy, records an immutable audit record,
  opens an alert when the discrepancy matters, and resets the inventory
  baseline so the physical count becomes the new ground truth.

ATOMICITY:
  Audit record, alert, and baseline reset commit as one transaction.
  Any failure aborts the whole verification with no partial state.

NON-IDEMPOTENCE:
  Verification is deliberately not idempotent: two submissions of the
  same physical count against a changed baseline are two distinct
  verifications and produce two audit records. Callers that time out
  must re-query instead of blindly retrying.

INVARIANT ANOMALIES:
  A negative expected stock means the event history is inconsistent
  (e.g. a race between two concurrent sales before server-side checks
  existed). The verification still completes - the anomaly is logged
  for offline investigation, never silently corrected.
*/
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tally/shopledger/alerts"
	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// ENGINE
// =============================================================================

type Engine struct {
	Store ledger.TxStore
	Log   *zap.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func NewEngine(store ledger.TxStore) *Engine {
	return &Engine{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func (e *Engine) logger() *zap.Logger {
	if e.Log != nil {
		return e.Log
	}
	return zap.NewNop()
}

// Verification is the result returned to the caller: the audit record
// plus the alert, when one was opened.
type Verification struct {
	Audit ledger.AuditRecord
	Alert *ledger.Alert
}

// VerifyCount compares a physical shelf count against expected stock.
//
// countedAt is when the count was performed; the zero value means "now".
// Returns ErrInvalidInput for a negative count, ErrProductNotFound /
// ErrInventoryNotFound when the product is unknown to the shop.
func (e *Engine) VerifyCount(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, actor ledger.ActorID, physicalCount int64, countedAt time.Time) (*Verification, error) {
	if physicalCount < 0 {
		return nil, &ledger.InvalidInputError{Field: "physical_count", Reason: "cannot be negative"}
	}
	if shop == "" || product == "" {
		return nil, &ledger.InvalidInputError{Field: "shop/product", Reason: "is required"}
	}

	now := e.Now()
	if countedAt.IsZero() {
		countedAt = now
	}

	var result Verification
	err := e.Store.WithTx(ctx, func(tx ledger.Store) error {
		prod, err := tx.GetProduct(ctx, shop, product)
		if err != nil {
			return err
		}
		if prod == nil {
			return ledger.ErrProductNotFound
		}

		inv, err := tx.GetInventory(ctx, shop, product)
		if err != nil {
			return err
		}
		if inv == nil {
			return ledger.ErrInventoryNotFound
		}

		bd, err := ledger.ExpectedStock(ctx, tx, shop, product)
		if err != nil {
			return err
		}

		if bd.Expected < 0 {
			// Inconsistent history. Surface and continue; the count
			// about to be trusted will repair the baseline anyway.
			v := &ledger.InvariantViolation{
				Shop:     shop,
				Product:  product,
				Detail:   "negative expected stock",
				Observed: now,
			}
			e.logger().Warn("reconciliation anomaly",
				zap.String("shop", string(shop)),
				zap.String("product", string(product)),
				zap.Int64("expected", bd.Expected),
				zap.Error(v),
			)
		}

		variance := physicalCount - bd.Expected
		percent, severity := Grade(bd.Expected, variance)
		loss := decimal.NewFromInt(absVariance(variance)).Mul(inv.CostPrice)

		audit := ledger.AuditRecord{
			ID:              uuid.NewString(),
			Shop:            shop,
			Product:         product,
			Actor:           actor,
			Expected:        bd.Expected,
			Physical:        physicalCount,
			Variance:        variance,
			VariancePercent: percent,
			Severity:        severity,
			EstimatedLoss:   loss,
			Breakdown:       bd,
			CountedAt:       countedAt,
			CreatedAt:       now,
		}

		if err := tx.SaveAudit(ctx, audit); err != nil {
			return err
		}

		if severity.TriggersAlert() {
			alert := alerts.NewVarianceAlert(audit, *prod)
			if err := tx.SaveAlert(ctx, alert); err != nil {
				return err
			}
			result.Alert = &alert
		}

		// The physical count is trusted as ground truth going forward:
		// reset the baseline so future folds start here.
		if err := tx.ResetBaseline(ctx, shop, product, physicalCount, now); err != nil {
			return err
		}

		result.Audit = audit
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Alert != nil {
		e.logger().Info("variance alert opened",
			zap.String("shop", string(shop)),
			zap.String("product", string(product)),
			zap.String("severity", string(result.Audit.Severity)),
			zap.Int64("variance", result.Audit.Variance),
		)
	}

	return &result, nil
}

// History returns past verifications for the shop, newest first.
func (e *Engine) History(ctx context.Context, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	return e.Store.ListAudits(ctx, shop, f)
}

func absVariance(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
