/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and domain code, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tally/shopledger/ledger"
	"github.com/tally/shopledger/stock"
)

// =============================================================================
// PRODUCTS & INVENTORY
// =============================================================================

type CreateProductRequest struct {
	ID           string          `json:"id"`
	Brand        string          `json:"brand"`
	Size         string          `json:"size"`
	Unit         string          `json:"unit"`
	CostPrice    decimal.Decimal `json:"cost_price"`
	SellingPrice decimal.Decimal `json:"selling_price"`
	ReorderLevel int64           `json:"reorder_level"`
	InitialStock int64           `json:"initial_stock"`
}

type ProductDTO struct {
	ID        string `json:"id"`
	Brand     string `json:"brand"`
	Size      string `json:"size"`
	Unit      string `json:"unit"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

type InventoryDTO struct {
	ProductID     string           `json:"product_id"`
	OnHand        int64            `json:"on_hand"`
	ExpectedStock int64            `json:"expected_stock"`
	Breakdown     ledger.Breakdown `json:"breakdown"`
	CostPrice     decimal.Decimal  `json:"cost_price"`
	SellingPrice  decimal.Decimal  `json:"selling_price"`
	ReorderLevel  int64            `json:"reorder_level"`
	BelowReorder  bool             `json:"below_reorder"`
	UpdatedAt     string           `json:"updated_at"`
}

// =============================================================================
// STOCK OPERATIONS
// =============================================================================

type RestockRequest struct {
	ProductID  string    `json:"product_id"`
	Quantity   int64     `json:"quantity"`
	OccurredAt time.Time `json:"occurred_at,omitempty"`
}

type DecantRequest struct {
	FromProductID string    `json:"from_product_id"`
	ToProductID   string    `json:"to_product_id"`
	QtyOut        int64     `json:"qty_out"`
	QtyIn         int64     `json:"qty_in"`
	OccurredAt    time.Time `json:"occurred_at,omitempty"`
}

type SaleRequest struct {
	ProductID      string          `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	OccurredAt     time.Time       `json:"occurred_at,omitempty"`
	IdempotencyKey string          `json:"idempotency_key,omitempty"`
}

type EventDTO struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Kind       string `json:"kind"`
	Quantity   int64  `json:"quantity"`
	OccurredAt string `json:"occurred_at"`
	RecordedAt string `json:"recorded_at"`
}

// =============================================================================
// SALE SYNC
// =============================================================================

type SyncSaleItem struct {
	IdempotencyKey string          `json:"idempotency_key"`
	ProductID      string          `json:"product_id"`
	Quantity       int64           `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	SoldAt         time.Time       `json:"sold_at"`
}

type SyncRequest struct {
	Sales []SyncSaleItem `json:"sales"`
}

// SyncResponse mirrors stock.SyncOutcome on the wire.
type SyncResponse struct {
	Submitted         int               `json:"submitted"`
	Accepted          int               `json:"accepted"`
	DuplicatesIgnored int               `json:"duplicates_ignored"`
	Errors            []stock.ItemError `json:"errors,omitempty"`
	Status            stock.SyncStatus  `json:"status"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

type VerifyCountRequest struct {
	ProductID     string    `json:"product_id"`
	PhysicalCount int64     `json:"physical_count"`
	CountedAt     time.Time `json:"counted_at,omitempty"`
}

type AuditDTO struct {
	ID              string           `json:"id"`
	ProductID       string           `json:"product_id"`
	ActorID         string           `json:"actor_id"`
	Expected        int64            `json:"expected"`
	Physical        int64            `json:"physical"`
	Variance        int64            `json:"variance"`
	VariancePercent float64          `json:"variance_percent"`
	Severity        ledger.Severity  `json:"severity"`
	EstimatedLoss   decimal.Decimal  `json:"estimated_loss"`
	Breakdown       ledger.Breakdown `json:"breakdown"`
	CountedAt       string           `json:"counted_at"`
	CreatedAt       string           `json:"created_at"`
}

type VerifyCountResponse struct {
	Audit AuditDTO  `json:"audit"`
	Alert *AlertDTO `json:"alert,omitempty"`
}

// =============================================================================
// ALERTS
// =============================================================================

type AlertDTO struct {
	ID              string          `json:"id"`
	ProductID       string          `json:"product_id"`
	AuditID         string          `json:"audit_id"`
	Severity        ledger.Severity `json:"severity"`
	Message         string          `json:"message"`
	EstimatedLoss   decimal.Decimal `json:"estimated_loss"`
	Resolved        bool            `json:"resolved"`
	ResolvedAt      *string         `json:"resolved_at,omitempty"`
	ResolvedBy      string          `json:"resolved_by,omitempty"`
	ResolutionNotes string          `json:"resolution_notes,omitempty"`
	CreatedAt       string          `json:"created_at"`
}

type ResolveAlertRequest struct {
	Notes string `json:"notes"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toProductDTO(p ledger.Product) ProductDTO {
	return ProductDTO{
		ID:        string(p.ID),
		Brand:     p.Brand,
		Size:      p.Size,
		Unit:      p.Unit,
		Active:    p.Active,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toEventDTO(ev ledger.StockEvent) EventDTO {
	return EventDTO{
		ID:         ev.ID,
		ProductID:  string(ev.Product),
		Kind:       string(ev.Kind),
		Quantity:   ev.Quantity,
		OccurredAt: ev.OccurredAt.Format(time.RFC3339),
		RecordedAt: ev.RecordedAt.Format(time.RFC3339),
	}
}

func toAuditDTO(a ledger.AuditRecord) AuditDTO {
	return AuditDTO{
		ID:              a.ID,
		ProductID:       string(a.Product),
		ActorID:         string(a.Actor),
		Expected:        a.Expected,
		Physical:        a.Physical,
		Variance:        a.Variance,
		VariancePercent: a.VariancePercent,
		Severity:        a.Severity,
		EstimatedLoss:   a.EstimatedLoss,
		Breakdown:       a.Breakdown,
		CountedAt:       a.CountedAt.Format(time.RFC3339),
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}
}

func toAlertDTO(a ledger.Alert) AlertDTO {
	dto := AlertDTO{
		ID:              a.ID,
		ProductID:       string(a.Product),
		AuditID:         a.AuditID,
		Severity:        a.Severity,
		Message:         a.Message,
		EstimatedLoss:   a.EstimatedLoss,
		Resolved:        a.Resolved,
		ResolvedBy:      string(a.ResolvedBy),
		ResolutionNotes: a.ResolutionNotes,
		CreatedAt:       a.CreatedAt.Format(time.RFC3339),
	}
	if a.ResolvedAt != nil {
		t := a.ResolvedAt.Format(time.RFC3339)
		dto.ResolvedAt = &t
	}
	return dto
}
