package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/shopledger/ledger"
	"github.com/tally/shopledger/ledger/store"
)

const (
	testShop    = ledger.ShopID("shop-1")
	testProduct = ledger.ProductID("gin-750ml")
)

// newTestEngine seeds a shop with baseline 100, a restock of 20, sales
// of 15, and a decant of 2, so expected stock is 103.
func newTestEngine(t *testing.T) (*Engine, *store.TxMemory, time.Time) {
	t.Helper()
	ctx := context.Background()
	st := store.NewTxMemory()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveProduct(ctx, ledger.Product{
		ID: testProduct, Shop: testShop, Brand: "Hendrick's", Size: "750ml",
		Unit: "bottle", Active: true, CreatedAt: base,
	}))
	require.NoError(t, st.SaveInventory(ctx, ledger.InventoryRecord{
		Shop: testShop, Product: testProduct,
		OnHand: 100, BaselineQty: 100, BaselineAt: base,
		CostPrice:    decimal.NewFromInt(12),
		SellingPrice: decimal.NewFromInt(20),
		UpdatedAt:    base,
	}))

	deltas := []struct {
		kind ledger.EventKind
		qty  int64
	}{
		{ledger.KindRestock, 20},
		{ledger.KindSale, -10},
		{ledger.KindSale, -5},
		{ledger.KindDecantOut, -2},
	}
	for i, d := range deltas {
		require.NoError(t, st.AppendEvent(ctx, ledger.StockEvent{
			ID: string(rune('a' + i)), Shop: testShop, Product: testProduct,
			Kind: d.kind, Quantity: d.qty,
			OccurredAt: base.Add(time.Duration(i+1) * time.Hour),
			RecordedAt: base.Add(time.Duration(i+1) * time.Hour),
		}))
	}

	now := base.Add(24 * time.Hour)
	engine := NewEngine(st)
	engine.Now = func() time.Time { return now }
	return engine, st, now
}

func TestVerifyCount_MatchingCountIsNormal(t *testing.T) {
	engine, st, now := newTestEngine(t)
	ctx := context.Background()

	// WHEN the shelf count matches the derived 103
	res, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", 103, time.Time{})
	require.NoError(t, err)

	// THEN the audit records a zero variance and no alert opens
	assert.Equal(t, int64(103), res.Audit.Expected)
	assert.Equal(t, int64(0), res.Audit.Variance)
	assert.Equal(t, ledger.SeverityNormal, res.Audit.Severity)
	assert.Nil(t, res.Alert)
	assert.True(t, res.Audit.EstimatedLoss.IsZero())

	alerts, err := st.ListAlerts(ctx, testShop, ledger.AlertFilter{})
	require.NoError(t, err)
	assert.Empty(t, alerts)

	// AND the baseline is reset to the trusted count
	inv, err := st.GetInventory(ctx, testShop, testProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(103), inv.BaselineQty)
	assert.Equal(t, now, inv.BaselineAt)
}

func TestVerifyCount_CriticalShortageOpensAlert(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	// WHEN only 90 of the expected 103 are on the shelf
	res, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", 90, time.Time{})
	require.NoError(t, err)

	// THEN the -12.6% variance is critical
	assert.Equal(t, int64(-13), res.Audit.Variance)
	assert.InDelta(t, -12.62, res.Audit.VariancePercent, 0.01)
	assert.Equal(t, ledger.SeverityCritical, res.Audit.Severity)

	// AND the estimated loss is 13 units at cost price
	assert.True(t, res.Audit.EstimatedLoss.Equal(decimal.NewFromInt(13*12)),
		"got %s", res.Audit.EstimatedLoss)

	// AND an alert referencing the audit exists
	require.NotNil(t, res.Alert)
	assert.Equal(t, res.Audit.ID, res.Alert.AuditID)
	assert.Contains(t, res.Alert.Message, "Missing 13 units")

	stored, err := st.GetAlert(ctx, testShop, res.Alert.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.False(t, stored.Resolved)
}

func TestVerifyCount_BaselineResetBoundsNextFold(t *testing.T) {
	engine, st, now := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", 103, time.Time{})
	require.NoError(t, err)

	// GIVEN a sale after the reset
	require.NoError(t, st.AppendEvent(ctx, ledger.StockEvent{
		ID: "post", Shop: testShop, Product: testProduct,
		Kind: ledger.KindSale, Quantity: -3,
		OccurredAt: now.Add(time.Hour), RecordedAt: now.Add(time.Hour),
	}))

	// THEN the next fold starts at the verified count, ignoring
	// pre-reset history
	bd, err := ledger.ExpectedStock(ctx, st, testShop, testProduct)
	require.NoError(t, err)
	assert.Equal(t, int64(103), bd.BaselineQty)
	assert.Equal(t, int64(100), bd.Expected)
	assert.Equal(t, int64(3), bd.Sold)
}

func TestVerifyCount_NotIdempotent(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()

	// WHEN the same count is submitted twice
	first, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", 90, time.Time{})
	require.NoError(t, err)
	second, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", 90, time.Time{})
	require.NoError(t, err)

	// THEN two distinct audit records exist: the second runs against
	// the baseline the first reset, so its variance is zero
	assert.NotEqual(t, first.Audit.ID, second.Audit.ID)
	assert.Equal(t, int64(0), second.Audit.Variance)

	audits, err := st.ListAudits(ctx, testShop, ledger.AuditFilter{})
	require.NoError(t, err)
	assert.Len(t, audits, 2)
}

func TestVerifyCount_ZeroExpectedNonzeroCountIsCritical(t *testing.T) {
	ctx := context.Background()
	st := store.NewTxMemory()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, st.SaveProduct(ctx, ledger.Product{
		ID: testProduct, Shop: testShop, Brand: "Gin", Active: true, CreatedAt: base,
	}))
	require.NoError(t, st.SaveInventory(ctx, ledger.InventoryRecord{
		Shop: testShop, Product: testProduct,
		OnHand: 0, BaselineQty: 0, BaselineAt: base,
		CostPrice: decimal.NewFromInt(12), UpdatedAt: base,
	}))

	engine := NewEngine(st)
	res, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", 4, time.Time{})
	require.NoError(t, err)

	assert.Equal(t, ledger.SeverityCritical, res.Audit.Severity)
	assert.Equal(t, 0.0, res.Audit.VariancePercent)
	require.NotNil(t, res.Alert)
}

func TestVerifyCount_InputValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.VerifyCount(ctx, testShop, testProduct, "staff-1", -1, time.Time{})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	_, err = engine.VerifyCount(ctx, testShop, "ghost", "staff-1", 5, time.Time{})
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)
}
