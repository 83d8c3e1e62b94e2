/*
Package ledger provides the core inventory ledger engine.

PURPOSE:
  This package contains the domain types and algorithms for deriving a
  shop's expected stock from an append-only event history. Sales,
  restocks, and decants are recorded as immutable StockEvents; the
  expected on-hand quantity for a (shop, product) pair is always computed
  by folding events on top of a baseline, never read from a mutable
  counter that can drift.

KEY CONCEPTS IN THIS FILE (types.go):
  - StockEvent: An immutable ledger entry recording a stock change
  - InventoryRecord: Per (shop, product) baseline + materialized cache
  - AuditRecord: Result of verifying a physical shelf count
  - Alert: Raised when a count variance crosses a severity threshold

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified or deleted; corrections are
     compensating events or a baseline reset at reconciliation time
  2. Precision: Money uses decimal.Decimal, quantities are whole units
  3. Type Safety: Strong typing for shop/product/actor identifiers
  4. Idempotency: Offline sales carry a client-generated key enforced as
     a unique constraint per shop

SEE ALSO:
  - calculator.go: Expected-stock fold
  - ledger.go: Append contract and event validation
  - store.go: Persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShopID string
type ProductID string
type ActorID string
type DeviceID string

// =============================================================================
// STOCK EVENT - Atomic change to on-hand stock
// =============================================================================

type EventKind string

const (
	KindSale      EventKind = "SALE"       // Units sold (delta negative)
	KindRestock   EventKind = "RESTOCK"    // Units received (delta positive)
	KindDecantOut EventKind = "DECANT_OUT" // Bulk units opened for decanting (delta negative)
	KindDecantIn  EventKind = "DECANT_IN"  // Smaller units produced by decanting (delta positive)
)

// StockEvent is an immutable record of a stock-affecting occurrence.
//
// Quantity is a signed delta: negative for SALE and DECANT_OUT, positive
// for RESTOCK and DECANT_IN. OccurredAt is when the event happened on the
// device and is kept for audit and reporting only; RecordedAt is when the
// server appended the event and is what the baseline watermark compares
// against, so offline sales that arrive late still land inside the fold
// window.
type StockEvent struct {
	ID       string
	Shop     ShopID
	Product  ProductID
	Kind     EventKind
	Quantity int64
	Actor    ActorID
	Device   DeviceID

	// UnitPrice is the selling price at the time of a sale. Zero for
	// non-sale events.
	UnitPrice decimal.Decimal

	// IdempotencyKey is generated once, client-side, at point of sale for
	// offline sales. The same key for the same shop is never appended
	// twice. Optional for events recorded online.
	IdempotencyKey string

	OccurredAt time.Time
	RecordedAt time.Time
}

// =============================================================================
// PRODUCT & INVENTORY
// =============================================================================

// Product identifies a sellable SKU within a shop. Products are never
// physically deleted so that event history stays attributable; they are
// deactivated instead.
type Product struct {
	ID        ProductID
	Shop      ShopID
	Brand     string
	Size      string
	Unit      string
	Active    bool
	CreatedAt time.Time
}

// Label returns the human-readable name used in alert messages.
func (p Product) Label() string {
	if p.Size == "" {
		return p.Brand
	}
	return p.Brand + " " + p.Size
}

// InventoryRecord holds the per (shop, product) stock state.
//
// OnHand is a materialized running total maintained alongside every
// event append. It is a cache: availability decisions and the expected
// stock fold start from the baseline pair instead. BaselineQty is the
// quantity trusted as ground truth at the last reconciliation, and
// BaselineAt is the watermark: only events recorded after it are folded.
type InventoryRecord struct {
	Shop    ShopID
	Product ProductID

	OnHand      int64
	BaselineQty int64
	BaselineAt  time.Time

	CostPrice    decimal.Decimal
	SellingPrice decimal.Decimal
	ReorderLevel int64

	UpdatedAt time.Time
}

// =============================================================================
// SEVERITY - Variance classification tiers
// =============================================================================

type Severity string

const (
	SeverityNormal   Severity = "NORMAL"   // |variance%| < 1
	SeverityMinor    Severity = "MINOR"    // 1 <= |variance%| < 5
	SeverityWarning  Severity = "WARNING"  // 5 <= |variance%| < 10
	SeverityCritical Severity = "CRITICAL" // |variance%| >= 10
)

// TriggersAlert reports whether a verification at this severity opens an
// alert. NORMAL verifications are recorded in the audit log only.
func (s Severity) TriggersAlert() bool {
	return s == SeverityMinor || s == SeverityWarning || s == SeverityCritical
}

// =============================================================================
// AUDIT RECORD - Outcome of a physical-count verification
// =============================================================================

// AuditRecord captures one physical-count verification. Immutable after
// creation: verifying the same product again produces a new record.
type AuditRecord struct {
	ID      string
	Shop    ShopID
	Product ProductID
	Actor   ActorID

	Expected        int64
	Physical        int64
	Variance        int64 // physical - expected
	VariancePercent float64
	Severity        Severity
	EstimatedLoss   decimal.Decimal

	// Breakdown shows how Expected was derived, for operator transparency.
	Breakdown Breakdown

	CountedAt time.Time
	CreatedAt time.Time
}

// =============================================================================
// ALERT - Raised when variance crosses a threshold
// =============================================================================

// Alert is created by the reconciliation engine for MINOR and worse
// variances. Mutable only through the resolve transition, which is
// one-way: there is no reopen.
type Alert struct {
	ID      string
	Shop    ShopID
	Product ProductID
	AuditID string

	Severity      Severity
	Message       string
	EstimatedLoss decimal.Decimal

	Resolved        bool
	ResolvedAt      *time.Time
	ResolvedBy      ActorID
	ResolutionNotes string

	CreatedAt time.Time
}
