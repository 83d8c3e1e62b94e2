/*
Package offline is the POS-device side of sale capture.

PURPOSE:
  A till must never refuse a sale because the network is down. Sales are
  written to a local durable queue first; a background syncer drains the
  queue to the server whenever connectivity allows.

IDEMPOTENCY KEYS:
  The key is generated exactly once, when the sale is first queued, and
  is never regenerated - not on retry, not on restart. The key is what
  lets the server drop resubmissions of a batch whose response was lost.

SEE ALSO:
  syncer.go - the background drain loop
  client.go - HTTP transport to the sync endpoint
*/
package offline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// TYPES
// =============================================================================

// PendingSale is one locally captured sale awaiting sync.
type PendingSale struct {
	IdempotencyKey string            `db:"idempotency_key" json:"idempotency_key"`
	Product        ledger.ProductID  `db:"product_id" json:"product_id"`
	Quantity       int64             `db:"quantity" json:"quantity"`
	UnitPrice      decimal.Decimal   `db:"unit_price" json:"unit_price"`
	SoldAt         time.Time         `db:"sold_at" json:"sold_at"`
	Synced         bool              `db:"synced" json:"synced"`
	RetryCount     int               `db:"retry_count" json:"retry_count"`
	CreatedAt      time.Time         `db:"created_at" json:"created_at"`
}

// PendingStore is the device-local durable queue.
type PendingStore interface {
	Save(ctx context.Context, sale PendingSale) error
	// Unsynced returns queued sales not yet acknowledged by the server,
	// oldest first.
	Unsynced(ctx context.Context) ([]PendingSale, error)
	MarkSynced(ctx context.Context, keys []string) error
	BumpRetry(ctx context.Context, keys []string) error
	PendingCount(ctx context.Context) (int, error)
	// PurgeSynced deletes synced sales older than the cutoff.
	PurgeSynced(ctx context.Context, olderThan time.Time) error
}

// =============================================================================
// QUEUE
// =============================================================================

// Queue records sales locally. It is safe for concurrent use as long as
// the underlying PendingStore is.
type Queue struct {
	Store  PendingStore
	Device ledger.DeviceID

	// Now is overridable for tests.
	Now func() time.Time
}

func NewQueue(store PendingStore, device ledger.DeviceID) *Queue {
	return &Queue{
		Store:  store,
		Device: device,
		Now:    func() time.Time { return time.Now().UTC() },
	}
}

type SaleRequest struct {
	Product   ledger.ProductID
	Quantity  int64
	UnitPrice decimal.Decimal
	SoldAt    time.Time
}

// RecordSale queues a sale and returns it with its idempotency key
// assigned. This always succeeds locally regardless of connectivity.
func (q *Queue) RecordSale(ctx context.Context, req SaleRequest) (*PendingSale, error) {
	if req.Product == "" {
		return nil, &ledger.InvalidInputError{Field: "product_id", Reason: "is required"}
	}
	if req.Quantity <= 0 {
		return nil, &ledger.InvalidInputError{Field: "quantity", Reason: "must be positive"}
	}

	now := q.Now()
	if req.SoldAt.IsZero() {
		req.SoldAt = now
	}

	sale := PendingSale{
		IdempotencyKey: newIdempotencyKey(q.Device, req.SoldAt),
		Product:        req.Product,
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		SoldAt:         req.SoldAt,
		CreatedAt:      now,
	}
	if err := q.Store.Save(ctx, sale); err != nil {
		return nil, err
	}
	return &sale, nil
}

// PendingCount reports how many sales still await sync, for till UIs
// that surface a "N unsynced" badge.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	return q.Store.PendingCount(ctx)
}

// newIdempotencyKey builds a key unique across devices and time. The
// uuid suffix guards against two sales in the same nanosecond.
func newIdempotencyKey(device ledger.DeviceID, soldAt time.Time) string {
	return fmt.Sprintf("sale-%s-%d-%s", device, soldAt.UnixNano(), uuid.NewString()[:8])
}
