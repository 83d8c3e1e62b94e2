/*
Package stock implements the server-side stock-mutating operations:
restock, decant, direct sale, and the idempotent offline-sale sync.

Every operation that reads current stock and writes a derived value runs
inside a single store transaction scoped to the (shop, product) pair, so
a "read expected, then write" sequence can never interleave with another
writer on the same row. Each operation appends the ledger event AND
maintains the materialized on-hand cache together; one without the other
is an invariant violation.

Availability checks use derived expected stock, not the raw on-hand
cache - the cache is reset only at reconciliation points and is never
independently trusted.
*/
package stock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	Store ledger.TxStore
	Log   *zap.Logger

	// Now is overridable for tests.
	Now func() time.Time
}

func NewService(store ledger.TxStore) *Service {
	return &Service{
		Store: store,
		Now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) logger() *zap.Logger {
	if s.Log != nil {
		return s.Log
	}
	return zap.NewNop()
}

// =============================================================================
// RESTOCK
// =============================================================================

type RestockInput struct {
	Shop       ledger.ShopID
	Product    ledger.ProductID
	Quantity   int64
	Actor      ledger.ActorID
	Device     ledger.DeviceID
	OccurredAt time.Time
}

// Restock appends a RESTOCK event and increments the on-hand cache.
func (s *Service) Restock(ctx context.Context, in RestockInput) (*ledger.StockEvent, error) {
	if in.Quantity <= 0 {
		return nil, &ledger.InvalidInputError{Field: "quantity", Reason: "must be positive"}
	}

	now := s.Now()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}

	ev := ledger.StockEvent{
		ID:         uuid.NewString(),
		Shop:       in.Shop,
		Product:    in.Product,
		Kind:       ledger.KindRestock,
		Quantity:   in.Quantity,
		Actor:      in.Actor,
		Device:     in.Device,
		OccurredAt: in.OccurredAt,
		RecordedAt: now,
	}

	err := s.Store.WithTx(ctx, func(tx ledger.Store) error {
		if err := requireActiveProduct(ctx, tx, in.Shop, in.Product); err != nil {
			return err
		}
		if err := ledger.NewEventLedger(tx).Append(ctx, ev); err != nil {
			return err
		}
		return tx.AdjustOnHand(ctx, in.Shop, in.Product, in.Quantity)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// =============================================================================
// DECANT
// =============================================================================

// DecantInput describes breaking bulk stock of one SKU into units of
// another, e.g. opening a 5L container to fill 500ml bottles.
type DecantInput struct {
	Shop        ledger.ShopID
	FromProduct ledger.ProductID
	ToProduct   ledger.ProductID
	QtyOut      int64 // bulk units consumed
	QtyIn       int64 // smaller units produced
	Actor       ledger.ActorID
	Device      ledger.DeviceID
	OccurredAt  time.Time
}

// Decant appends a DECANT_OUT on the source product and a DECANT_IN on
// the target product atomically, adjusting both on-hand caches. Fails
// with an InsufficientStockError when the source's expected stock
// cannot cover QtyOut.
func (s *Service) Decant(ctx context.Context, in DecantInput) error {
	if in.QtyOut <= 0 || in.QtyIn <= 0 {
		return &ledger.InvalidInputError{Field: "quantity", Reason: "must be positive"}
	}
	if in.FromProduct == in.ToProduct {
		return &ledger.InvalidInputError{Field: "to_product", Reason: "must differ from from_product"}
	}

	now := s.Now()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}

	return s.Store.WithTx(ctx, func(tx ledger.Store) error {
		if err := requireActiveProduct(ctx, tx, in.Shop, in.FromProduct); err != nil {
			return err
		}
		if err := requireActiveProduct(ctx, tx, in.Shop, in.ToProduct); err != nil {
			return err
		}

		bd, err := ledger.ExpectedStock(ctx, tx, in.Shop, in.FromProduct)
		if err != nil {
			return err
		}
		if bd.Expected < in.QtyOut {
			return &ledger.InsufficientStockError{
				Shop:      in.Shop,
				Product:   in.FromProduct,
				Available: bd.Expected,
				Requested: in.QtyOut,
			}
		}

		el := ledger.NewEventLedger(tx)
		out := ledger.StockEvent{
			ID:         uuid.NewString(),
			Shop:       in.Shop,
			Product:    in.FromProduct,
			Kind:       ledger.KindDecantOut,
			Quantity:   -in.QtyOut,
			Actor:      in.Actor,
			Device:     in.Device,
			OccurredAt: in.OccurredAt,
			RecordedAt: now,
		}
		if err := el.Append(ctx, out); err != nil {
			return err
		}
		if err := tx.AdjustOnHand(ctx, in.Shop, in.FromProduct, -in.QtyOut); err != nil {
			return err
		}

		inEv := ledger.StockEvent{
			ID:         uuid.NewString(),
			Shop:       in.Shop,
			Product:    in.ToProduct,
			Kind:       ledger.KindDecantIn,
			Quantity:   in.QtyIn,
			Actor:      in.Actor,
			Device:     in.Device,
			OccurredAt: in.OccurredAt,
			RecordedAt: now,
		}
		if err := el.Append(ctx, inEv); err != nil {
			return err
		}
		return tx.AdjustOnHand(ctx, in.Shop, in.ToProduct, in.QtyIn)
	})
}

// =============================================================================
// DIRECT SALE
// =============================================================================

type SaleInput struct {
	Shop           ledger.ShopID
	Product        ledger.ProductID
	Quantity       int64
	UnitPrice      decimal.Decimal
	Actor          ledger.ActorID
	Device         ledger.DeviceID
	OccurredAt     time.Time
	IdempotencyKey string
}

// RecordSale records an online sale through the same path a synced
// offline sale takes: idempotency check, availability check against
// expected stock, event append, on-hand decrement - all in one
// transaction.
func (s *Service) RecordSale(ctx context.Context, in SaleInput) (*ledger.StockEvent, error) {
	if in.Quantity <= 0 {
		return nil, &ledger.InvalidInputError{Field: "quantity", Reason: "must be positive"}
	}

	now := s.Now()
	if in.OccurredAt.IsZero() {
		in.OccurredAt = now
	}

	ev := ledger.StockEvent{
		ID:             uuid.NewString(),
		Shop:           in.Shop,
		Product:        in.Product,
		Kind:           ledger.KindSale,
		Quantity:       -in.Quantity,
		Actor:          in.Actor,
		Device:         in.Device,
		UnitPrice:      in.UnitPrice,
		IdempotencyKey: in.IdempotencyKey,
		OccurredAt:     in.OccurredAt,
		RecordedAt:     now,
	}

	err := s.Store.WithTx(ctx, func(tx ledger.Store) error {
		return s.applySale(ctx, tx, ev)
	})
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// applySale is the shared accept path for direct and synced sales. It
// must run inside a transaction.
func (s *Service) applySale(ctx context.Context, tx ledger.Store, ev ledger.StockEvent) error {
	if err := requireActiveProduct(ctx, tx, ev.Shop, ev.Product); err != nil {
		return err
	}

	qty := -ev.Quantity // positive units sold

	bd, err := ledger.ExpectedStock(ctx, tx, ev.Shop, ev.Product)
	if err != nil {
		return err
	}
	if bd.Expected < qty {
		return &ledger.InsufficientStockError{
			Shop:      ev.Shop,
			Product:   ev.Product,
			Available: bd.Expected,
			Requested: qty,
		}
	}

	if err := ledger.NewEventLedger(tx).Append(ctx, ev); err != nil {
		return err
	}
	return tx.AdjustOnHand(ctx, ev.Shop, ev.Product, ev.Quantity)
}

func requireActiveProduct(ctx context.Context, tx ledger.Store, shop ledger.ShopID, product ledger.ProductID) error {
	p, err := tx.GetProduct(ctx, shop, product)
	if err != nil {
		return err
	}
	if p == nil || !p.Active {
		return ledger.ErrProductNotFound
	}
	return nil
}
