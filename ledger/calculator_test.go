package ledger

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ev(kind EventKind, qty int64, recordedAt time.Time) StockEvent {
	return StockEvent{
		ID:         "ev-" + string(kind),
		Shop:       "shop-1",
		Product:    "prod-1",
		Kind:       kind,
		Quantity:   qty,
		OccurredAt: recordedAt,
		RecordedAt: recordedAt,
	}
}

func TestFold_BasicScenario(t *testing.T) {
	// GIVEN a baseline of 100 with a restock of 20, sales of 15, and a
	// decant consuming 2 bulk units
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []StockEvent{
		ev(KindRestock, 20, base.Add(1*time.Hour)),
		ev(KindSale, -10, base.Add(2*time.Hour)),
		ev(KindSale, -5, base.Add(3*time.Hour)),
		ev(KindDecantOut, -2, base.Add(4*time.Hour)),
	}

	// WHEN folding
	bd := Fold(100, base, events)

	// THEN expected = 100 + 20 - 15 - 2 = 103
	assert.Equal(t, int64(103), bd.Expected)
	assert.Equal(t, int64(20), bd.Restocked)
	assert.Equal(t, int64(15), bd.Sold)
	assert.Equal(t, int64(2), bd.DecantedOut)
	assert.Equal(t, int64(0), bd.DecantedIn)
}

func TestFold_NoEvents(t *testing.T) {
	// GIVEN no events since the baseline
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	// WHEN folding
	bd := Fold(42, base, nil)

	// THEN expected equals the baseline unchanged
	assert.Equal(t, int64(42), bd.Expected)
	assert.Equal(t, int64(42), bd.BaselineQty)
}

func TestFold_DecantBothSides(t *testing.T) {
	// GIVEN a decant recorded on both products; fold only sees this
	// product's in-side
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bd := Fold(0, base, []StockEvent{
		ev(KindDecantIn, 10, base.Add(time.Hour)),
	})

	assert.Equal(t, int64(10), bd.Expected)
	assert.Equal(t, int64(10), bd.DecantedIn)
}

func TestFold_NegativeExpectedIsNotClamped(t *testing.T) {
	// GIVEN more sold than the baseline covers
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	bd := Fold(5, base, []StockEvent{
		ev(KindSale, -8, base.Add(time.Hour)),
	})

	// THEN the inconsistency is surfaced, not hidden
	assert.Equal(t, int64(-3), bd.Expected)
}

func TestFold_OrderIndependent(t *testing.T) {
	// GIVEN the same events in shuffled order
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	events := []StockEvent{
		ev(KindRestock, 30, base.Add(1*time.Minute)),
		ev(KindSale, -7, base.Add(2*time.Minute)),
		ev(KindDecantOut, -3, base.Add(3*time.Minute)),
		ev(KindDecantIn, 12, base.Add(4*time.Minute)),
		ev(KindSale, -4, base.Add(5*time.Minute)),
	}

	want := Fold(50, base, events)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		shuffled := append([]StockEvent{}, events...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})

		// THEN the result never depends on order
		assert.Equal(t, want.Expected, Fold(50, base, shuffled).Expected)
	}
}

// storeStub serves ExpectedStock without a real database.
type storeStub struct {
	Store
	inv    *InventoryRecord
	events []StockEvent
}

func (s *storeStub) GetInventory(context.Context, ShopID, ProductID) (*InventoryRecord, error) {
	return s.inv, nil
}

func (s *storeStub) EventsSince(_ context.Context, _ ShopID, _ ProductID, watermark time.Time) ([]StockEvent, error) {
	var out []StockEvent
	for _, e := range s.events {
		if e.RecordedAt.After(watermark) {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestExpectedStock_UsesRecordedAtWatermark(t *testing.T) {
	// GIVEN a sale that OCCURRED before the baseline but was RECORDED
	// after it (an offline sale arriving late)
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	late := StockEvent{
		Shop: "shop-1", Product: "prod-1", Kind: KindSale, Quantity: -5,
		OccurredAt: base.Add(-2 * time.Hour), // before the count
		RecordedAt: base.Add(1 * time.Hour),  // synced after
	}
	st := &storeStub{
		inv:    &InventoryRecord{Shop: "shop-1", Product: "prod-1", BaselineQty: 100, BaselineAt: base},
		events: []StockEvent{late},
	}

	// WHEN deriving expected stock
	bd, err := ExpectedStock(context.Background(), st, "shop-1", "prod-1")
	require.NoError(t, err)

	// THEN the late sale falls inside the fold window
	assert.Equal(t, int64(95), bd.Expected)
}

func TestExpectedStock_InventoryMissing(t *testing.T) {
	st := &storeStub{}

	_, err := ExpectedStock(context.Background(), st, "shop-1", "ghost")

	assert.ErrorIs(t, err, ErrInventoryNotFound)
}
