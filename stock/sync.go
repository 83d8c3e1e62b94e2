/*
sync.go - Offline sale batch ingestion

POS devices queue sales locally while disconnected and push them here in
batches. Each item carries a client-generated idempotency key, so a
batch that was received but whose response was lost can be resubmitted
wholesale: already-applied items are recognized and skipped, never
double-counted.

Items are independent. Each one commits or fails in its own
transaction, so one malformed sale never blocks the rest of a batch.
The outcome reports per-item errors keyed by idempotency key; the
client marks everything else as synced.
*/
package stock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// BATCH TYPES
// =============================================================================

// SaleItem is one queued offline sale as submitted by a POS device.
type SaleItem struct {
	IdempotencyKey string
	Product        ledger.ProductID
	Quantity       int64
	UnitPrice      decimal.Decimal
	SoldAt         time.Time
}

// ItemError reports why a single item was rejected.
type ItemError struct {
	IdempotencyKey string `json:"idempotency_key"`
	Reason         string `json:"reason"`
	Err            error  `json:"-"`
}

type SyncStatus string

const (
	SyncAllAccepted SyncStatus = "all_accepted"
	SyncPartial     SyncStatus = "partial"
	SyncAllFailed   SyncStatus = "all_failed"
)

// SyncOutcome summarizes one batch. Duplicates are successes from the
// client's point of view: the sale is in the ledger, which is all the
// client needs to know to stop retrying it.
type SyncOutcome struct {
	Submitted         int         `json:"submitted"`
	Accepted          int         `json:"accepted"`
	DuplicatesIgnored int         `json:"duplicates_ignored"`
	Errors            []ItemError `json:"errors,omitempty"`
	Status            SyncStatus  `json:"status"`
}

func (o *SyncOutcome) classify() {
	switch {
	case len(o.Errors) == 0:
		o.Status = SyncAllAccepted
	case o.Accepted+o.DuplicatesIgnored > 0:
		o.Status = SyncPartial
	default:
		o.Status = SyncAllFailed
	}
}

// =============================================================================
// BATCH PROCESSING
// =============================================================================

// SyncBatch applies a batch of offline sales for one shop/device pair.
// Item order within the batch is preserved so RecordedAt ordering on the
// server reflects submission order.
func (s *Service) SyncBatch(ctx context.Context, shop ledger.ShopID, device ledger.DeviceID, actor ledger.ActorID, items []SaleItem) (*SyncOutcome, error) {
	if shop == "" {
		return nil, &ledger.InvalidInputError{Field: "shop", Reason: "is required"}
	}

	out := &SyncOutcome{Submitted: len(items)}
	if len(items) == 0 {
		out.classify()
		return out, nil
	}

	for _, item := range items {
		if err := s.syncOne(ctx, shop, device, actor, item); err != nil {
			if errors.Is(err, ledger.ErrDuplicateIdempotencyKey) {
				out.DuplicatesIgnored++
				continue
			}
			out.Errors = append(out.Errors, ItemError{
				IdempotencyKey: item.IdempotencyKey,
				Reason:         err.Error(),
				Err:            err,
			})
			continue
		}
		out.Accepted++
	}

	out.classify()
	s.logger().Info("sale batch synced",
		zap.String("shop", string(shop)),
		zap.String("device", string(device)),
		zap.Int("submitted", out.Submitted),
		zap.Int("accepted", out.Accepted),
		zap.Int("duplicates", out.DuplicatesIgnored),
		zap.Int("rejected", len(out.Errors)),
	)
	return out, nil
}

// syncOne applies a single queued sale in its own transaction.
//
// The duplicate check and the event append happen inside the same
// transaction as the unique constraint on (shop, idempotency_key), so a
// concurrent resubmission of the same key loses cleanly with
// ErrDuplicateIdempotencyKey instead of double-applying.
func (s *Service) syncOne(ctx context.Context, shop ledger.ShopID, device ledger.DeviceID, actor ledger.ActorID, item SaleItem) error {
	if item.IdempotencyKey == "" {
		return &ledger.InvalidInputError{Field: "idempotency_key", Reason: "is required"}
	}
	if item.Quantity <= 0 {
		return &ledger.InvalidInputError{Field: "quantity", Reason: "must be positive"}
	}
	if item.SoldAt.IsZero() {
		return &ledger.InvalidInputError{Field: "sold_at", Reason: "is required"}
	}

	ev := ledger.StockEvent{
		ID:             uuid.NewString(),
		Shop:           shop,
		Product:        item.Product,
		Kind:           ledger.KindSale,
		Quantity:       -item.Quantity,
		Actor:          actor,
		Device:         device,
		UnitPrice:      item.UnitPrice,
		IdempotencyKey: item.IdempotencyKey,
		OccurredAt:     item.SoldAt,
		RecordedAt:     s.Now(),
	}

	return s.Store.WithTx(ctx, func(tx ledger.Store) error {
		dup, err := tx.HasIdempotencyKey(ctx, shop, item.IdempotencyKey)
		if err != nil {
			return err
		}
		if dup {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return s.applySale(ctx, tx, ev)
	})
}
