/*
store.go - Persistence interfaces for the inventory ledger

PURPOSE:
  Defines the interface between the domain logic and the database. The
  Store keeps the event log append-only while also maintaining the
  materialized inventory cache, audit log, and alerts. Different
  implementations use SQLite, PostgreSQL, or in-memory storage.

APPEND-ONLY CONTRACT:
  Stock events have exactly one write operation: AppendEvent. There is
  no update or delete. Corrections happen by appending compensating
  events or by ResetBaseline at reconciliation time.

IDEMPOTENCY:
  AppendEvent must enforce a unique constraint on (shop, idempotency
  key) and return ErrDuplicateIdempotencyKey on violation. The
  constraint violation IS the duplicate-detection signal; callers do not
  query-then-insert.

TRANSACTIONS:
  Every read-then-write sequence on a (shop, product) pair - sale
  decrement, restock increment, baseline reset - runs inside
  TxStore.WithTx so it cannot interleave with another writer on the
  same row. A failed transaction leaves no partial effect.

IMPLEMENTATIONS:
  - store/sqlite:   SQLite, used for development and single-node deploys
  - store/postgres: PostgreSQL with per-row locking, for production
  - ledger/store:   In-memory, for tests
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Combined persistence interface
// =============================================================================

type Store interface {
	// AppendEvent persists a stock event. Returns
	// ErrDuplicateIdempotencyKey if the event carries a key that already
	// exists for the shop. This is the ONLY write operation on events.
	AppendEvent(ctx context.Context, ev StockEvent) error

	// EventsSince returns events for (shop, product) with RecordedAt
	// strictly after the watermark, ordered by RecordedAt.
	EventsSince(ctx context.Context, shop ShopID, product ProductID, watermark time.Time) ([]StockEvent, error)

	// HasIdempotencyKey checks whether a key has been appended for the
	// shop. Used for cheap duplicate reporting; the unique constraint in
	// AppendEvent remains the authoritative guard.
	HasIdempotencyKey(ctx context.Context, shop ShopID, key string) (bool, error)

	// Products. Products are never deleted, only deactivated.
	SaveProduct(ctx context.Context, p Product) error
	GetProduct(ctx context.Context, shop ShopID, product ProductID) (*Product, error)

	// Inventory records.
	SaveInventory(ctx context.Context, rec InventoryRecord) error
	GetInventory(ctx context.Context, shop ShopID, product ProductID) (*InventoryRecord, error)

	// AdjustOnHand shifts the materialized on-hand cache by delta.
	AdjustOnHand(ctx context.Context, shop ShopID, product ProductID, delta int64) error

	// ResetBaseline sets OnHand and BaselineQty to qty and advances the
	// BaselineAt watermark. Called exactly once per verified count.
	ResetBaseline(ctx context.Context, shop ShopID, product ProductID, qty int64, at time.Time) error

	// Audit log. Append-only.
	SaveAudit(ctx context.Context, rec AuditRecord) error
	ListAudits(ctx context.Context, shop ShopID, f AuditFilter) ([]AuditRecord, error)

	// Alerts.
	SaveAlert(ctx context.Context, a Alert) error
	GetAlert(ctx context.Context, shop ShopID, id string) (*Alert, error)
	ListAlerts(ctx context.Context, shop ShopID, f AlertFilter) ([]Alert, error)

	// ResolveAlert performs the one-way resolve transition. Returns
	// ErrAlertNotFound if the alert doesn't exist for the shop and
	// ErrAlertAlreadyResolved if it was resolved before. The guard is
	// enforced at the datastore so two racing resolvers cannot both win.
	ResolveAlert(ctx context.Context, shop ShopID, id string, by ActorID, notes string, at time.Time) error
}

// TxStore wraps Store with transaction support. If fn returns an error
// the transaction is rolled back; otherwise it is committed.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// QUERY FILTERS
// =============================================================================

type AuditFilter struct {
	Product *ProductID
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}

// AlertStatus filters alerts by resolution state.
type AlertStatus string

const (
	AlertStatusAny      AlertStatus = ""
	AlertStatusActive   AlertStatus = "active"
	AlertStatusResolved AlertStatus = "resolved"
)

type AlertFilter struct {
	Status   AlertStatus
	Severity *Severity
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}
