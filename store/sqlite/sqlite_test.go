package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/shopledger/ledger"
)

const (
	testShop    = ledger.ShopID("shop-1")
	testProduct = ledger.ProductID("gin-750ml")
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func seedInventory(t *testing.T, st *Store, onHand int64, baselineAt time.Time) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SaveProduct(ctx, ledger.Product{
		ID: testProduct, Shop: testShop, Brand: "Hendrick's", Size: "750ml",
		Unit: "bottle", Active: true, CreatedAt: baselineAt,
	}))
	require.NoError(t, st.SaveInventory(ctx, ledger.InventoryRecord{
		Shop: testShop, Product: testProduct,
		OnHand: onHand, BaselineQty: onHand, BaselineAt: baselineAt,
		CostPrice: decimal.NewFromInt(12), UpdatedAt: baselineAt,
	}))
}

func saleEvent(id, key string, qty int64, at time.Time) ledger.StockEvent {
	return ledger.StockEvent{
		ID: id, Shop: testShop, Product: testProduct,
		Kind: ledger.KindSale, Quantity: -qty,
		Actor: "staff-1", Device: "till-1",
		UnitPrice: decimal.NewFromInt(25), IdempotencyKey: key,
		OccurredAt: at, RecordedAt: at,
	}
}

func TestAppendEvent_DuplicateIdempotencyKey(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, st.AppendEvent(ctx, saleEvent("e1", "key-1", 2, at)))

	// Same shop, same key: the unique index fires.
	err := st.AppendEvent(ctx, saleEvent("e2", "key-1", 2, at))
	assert.ErrorIs(t, err, ledger.ErrDuplicateIdempotencyKey)

	// A different shop may reuse the key.
	other := saleEvent("e3", "key-1", 2, at)
	other.Shop = "shop-2"
	require.NoError(t, st.AppendEvent(ctx, other))

	has, err := st.HasIdempotencyKey(ctx, testShop, "key-1")
	require.NoError(t, err)
	assert.True(t, has)

	has, err = st.HasIdempotencyKey(ctx, testShop, "key-2")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestAppendEvent_EmptyKeysDoNotCollide(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// Keyless events (restocks, decants) store NULL, which the partial
	// index ignores.
	require.NoError(t, st.AppendEvent(ctx, saleEvent("e1", "", 1, at)))
	require.NoError(t, st.AppendEvent(ctx, saleEvent("e2", "", 1, at)))
}

func TestEventsSince_StrictlyAfterWatermark(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, st.AppendEvent(ctx, saleEvent(fmt.Sprintf("e%d", i), "", 1, at)))
	}

	// The event recorded exactly at the watermark is excluded.
	events, err := st.EventsSince(ctx, testShop, testProduct, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e2", events[0].ID)

	all, err := st.EventsSince(ctx, testShop, testProduct, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestEventsSince_FractionalSecondOrdering(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// A watermark whose fraction is a prefix of the event's: half a
	// second vs half a second plus one nanosecond. The stored strings
	// must order these correctly, so the fraction is fixed-width.
	watermark := time.Date(2026, 3, 1, 12, 0, 0, 500000000, time.UTC)
	require.NoError(t, st.AppendEvent(ctx, saleEvent("e1", "", 1, watermark.Add(time.Nanosecond))))

	events, err := st.EventsSince(ctx, testShop, testProduct, watermark)
	require.NoError(t, err)
	require.Len(t, events, 1, "an event 1ns after the watermark must fold")
	assert.Equal(t, "e1", events[0].ID)

	// The event at the watermark itself stays excluded.
	require.NoError(t, st.AppendEvent(ctx, saleEvent("e0", "", 1, watermark)))
	events, err = st.EventsSince(ctx, testShop, testProduct, watermark)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "e1", events[0].ID)
}

func TestEventRoundTrip(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)

	ev := saleEvent("e1", "key-1", 3, at)
	require.NoError(t, st.AppendEvent(ctx, ev))

	events, err := st.EventsSince(ctx, testShop, testProduct, time.Time{})
	require.NoError(t, err)
	require.Len(t, events, 1)

	got := events[0]
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, ev.Kind, got.Kind)
	assert.Equal(t, int64(-3), got.Quantity)
	assert.Equal(t, ev.Actor, got.Actor)
	assert.Equal(t, ev.Device, got.Device)
	assert.True(t, ev.UnitPrice.Equal(got.UnitPrice))
	assert.Equal(t, "key-1", got.IdempotencyKey)
	assert.True(t, at.Equal(got.RecordedAt), "nanosecond precision must survive")
}

func TestWithTx_RollbackOnError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedInventory(t, st, 10, base)

	boom := fmt.Errorf("boom")
	err := st.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.AppendEvent(ctx, saleEvent("e1", "key-1", 2, base.Add(time.Hour))); err != nil {
			return err
		}
		if err := tx.AdjustOnHand(ctx, testShop, testProduct, -2); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Nothing from the failed transaction is visible.
	events, err := st.EventsSince(ctx, testShop, testProduct, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)

	inv, err := st.GetInventory(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(10), inv.OnHand)

	has, err := st.HasIdempotencyKey(ctx, testShop, "key-1")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestWithTx_CommitKeepsChanges(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedInventory(t, st, 10, base)

	err := st.WithTx(ctx, func(tx ledger.Store) error {
		if err := tx.AppendEvent(ctx, saleEvent("e1", "key-1", 2, base.Add(time.Hour))); err != nil {
			return err
		}
		return tx.AdjustOnHand(ctx, testShop, testProduct, -2)
	})
	require.NoError(t, err)

	inv, err := st.GetInventory(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(8), inv.OnHand)
}

func TestAdjustOnHand_UsesInjectedClock(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedInventory(t, st, 10, base)

	at := base.Add(3 * time.Hour)
	st.Now = func() time.Time { return at }

	require.NoError(t, st.AdjustOnHand(ctx, testShop, testProduct, -2))

	inv, err := st.GetInventory(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(8), inv.OnHand)
	assert.True(t, at.Equal(inv.UpdatedAt))
}

func TestAdjustOnHand_UnknownInventory(t *testing.T) {
	st := newTestStore(t)

	err := st.AdjustOnHand(context.Background(), testShop, "ghost", 5)
	assert.ErrorIs(t, err, ledger.ErrInventoryNotFound)
}

func TestResetBaseline(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedInventory(t, st, 10, base)

	at := base.Add(24 * time.Hour)
	require.NoError(t, st.ResetBaseline(ctx, testShop, testProduct, 7, at))

	inv, err := st.GetInventory(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(7), inv.OnHand)
	assert.Equal(t, int64(7), inv.BaselineQty)
	assert.True(t, at.Equal(inv.BaselineAt))

	err = st.ResetBaseline(ctx, testShop, "ghost", 7, at)
	assert.ErrorIs(t, err, ledger.ErrInventoryNotFound)
}

func TestGetProduct_UnknownIsNil(t *testing.T) {
	st := newTestStore(t)

	p, err := st.GetProduct(context.Background(), testShop, "ghost")
	require.NoError(t, err)
	assert.Nil(t, p)

	inv, err := st.GetInventory(context.Background(), testShop, "ghost")
	require.NoError(t, err)
	assert.Nil(t, inv)
}

func TestSaveProduct_UpsertDeactivates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedInventory(t, st, 10, base)

	p, err := st.GetProduct(ctx, testShop, testProduct)
	require.NoError(t, err)
	p.Active = false
	require.NoError(t, st.SaveProduct(ctx, *p))

	got, err := st.GetProduct(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.False(t, got.Active)
	assert.Equal(t, "Hendrick's", got.Brand)
}

func TestResolveAlert_OneWayTransition(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveAlert(ctx, ledger.Alert{
		ID: "a1", Shop: testShop, Product: testProduct, AuditID: "au1",
		Severity: ledger.SeverityCritical, Message: "Missing 13 units",
		EstimatedLoss: decimal.NewFromInt(156), CreatedAt: created,
	}))

	first := created.Add(time.Hour)
	require.NoError(t, st.ResolveAlert(ctx, testShop, "a1", "owner-1", "counted again", first))

	// A second resolve attempt cannot overwrite the first.
	err := st.ResolveAlert(ctx, testShop, "a1", "owner-2", "mine", first.Add(time.Hour))
	assert.ErrorIs(t, err, ledger.ErrAlertAlreadyResolved)

	a, err := st.GetAlert(ctx, testShop, "a1")
	require.NoError(t, err)
	assert.True(t, a.Resolved)
	assert.Equal(t, ledger.ActorID("owner-1"), a.ResolvedBy)
	assert.Equal(t, "counted again", a.ResolutionNotes)
	require.NotNil(t, a.ResolvedAt)
	assert.True(t, first.Equal(*a.ResolvedAt))

	err = st.ResolveAlert(ctx, testShop, "ghost", "owner-1", "", first)
	assert.ErrorIs(t, err, ledger.ErrAlertNotFound)
}

func TestListAlerts_Filters(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	severities := []ledger.Severity{
		ledger.SeverityCritical, ledger.SeverityWarning, ledger.SeverityMinor,
	}
	for i, sev := range severities {
		require.NoError(t, st.SaveAlert(ctx, ledger.Alert{
			ID: fmt.Sprintf("a%d", i), Shop: testShop, Product: testProduct,
			AuditID: fmt.Sprintf("au%d", i), Severity: sev, Message: "variance",
			EstimatedLoss: decimal.NewFromInt(int64(10 * (i + 1))),
			CreatedAt:     base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, st.ResolveAlert(ctx, testShop, "a1", "owner-1", "", base.Add(4*time.Hour)))

	active, err := st.ListAlerts(ctx, testShop, ledger.AlertFilter{Status: ledger.AlertStatusActive})
	require.NoError(t, err)
	assert.Len(t, active, 2)

	resolved, err := st.ListAlerts(ctx, testShop, ledger.AlertFilter{Status: ledger.AlertStatusResolved})
	require.NoError(t, err)
	require.Len(t, resolved, 1)
	assert.Equal(t, "a1", resolved[0].ID)

	crit := ledger.SeverityCritical
	bySeverity, err := st.ListAlerts(ctx, testShop, ledger.AlertFilter{Severity: &crit})
	require.NoError(t, err)
	require.Len(t, bySeverity, 1)
	assert.Equal(t, "a0", bySeverity[0].ID)

	// Newest first, limit/offset paging.
	page, err := st.ListAlerts(ctx, testShop, ledger.AlertFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "a2", page[0].ID)

	rest, err := st.ListAlerts(ctx, testShop, ledger.AlertFilter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a0", rest[0].ID)
}

func TestListAudits_FiltersAndBreakdown(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	products := []ledger.ProductID{testProduct, "vodka-1l", testProduct}
	for i, product := range products {
		require.NoError(t, st.SaveAudit(ctx, ledger.AuditRecord{
			ID: fmt.Sprintf("au%d", i), Shop: testShop, Product: product,
			Actor: "staff-1", Expected: 103, Physical: 90, Variance: -13,
			VariancePercent: -12.62, Severity: ledger.SeverityCritical,
			EstimatedLoss: decimal.NewFromInt(156),
			Breakdown: ledger.Breakdown{
				BaselineQty: 100, BaselineAt: base, Restocked: 20,
				Sold: 15, DecantedOut: 2, Expected: 103,
			},
			CountedAt: base.Add(time.Duration(i) * time.Hour),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	product := testProduct
	audits, err := st.ListAudits(ctx, testShop, ledger.AuditFilter{Product: &product})
	require.NoError(t, err)
	require.Len(t, audits, 2)
	assert.Equal(t, "au2", audits[0].ID, "newest first")

	// The fold breakdown survives the JSON round trip.
	assert.Equal(t, int64(100), audits[0].Breakdown.BaselineQty)
	assert.Equal(t, int64(20), audits[0].Breakdown.Restocked)
	assert.Equal(t, int64(103), audits[0].Breakdown.Expected)

	from := base.Add(90 * time.Minute)
	windowed, err := st.ListAudits(ctx, testShop, ledger.AuditFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "au2", windowed[0].ID)
}

func TestReset_ClearsAllTables(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	seedInventory(t, st, 10, base)
	require.NoError(t, st.AppendEvent(ctx, saleEvent("e1", "key-1", 1, base)))

	require.NoError(t, st.Reset(ctx))

	events, err := st.EventsSince(ctx, testShop, testProduct, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, events)

	p, err := st.GetProduct(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.Nil(t, p)
}
