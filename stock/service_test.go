package stock

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
	testShop = ledger.ShopID("shop-1")
	bulkGin  = ledger.ProductID("gin-5l")
	unitGin  = ledger.ProductID("gin-500ml")
)

func newTestService(t *testing.T) (*Service, *store.TxMemory, time.Time) {
	t.Helper()
	ctx := context.Background()
	st := store.NewTxMemory()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	for _, p := range []struct {
		id     ledger.ProductID
		onHand int64
	}{
		{bulkGin, 10},
		{unitGin, 0},
	} {
		require.NoError(t, st.SaveProduct(ctx, ledger.Product{
			ID: p.id, Shop: testShop, Brand: "Gin", Active: true, CreatedAt: base,
		}))
		require.NoError(t, st.SaveInventory(ctx, ledger.InventoryRecord{
			Shop: testShop, Product: p.id,
			OnHand: p.onHand, BaselineQty: p.onHand, BaselineAt: base,
			CostPrice: decimal.NewFromInt(10), UpdatedAt: base,
		}))
	}

	now := base.Add(time.Hour)
	svc := NewService(st)
	svc.Now = func() time.Time { return now }
	return svc, st, now
}

func expected(t *testing.T, st ledger.Store, product ledger.ProductID) int64 {
	t.Helper()
	bd, err := ledger.ExpectedStock(context.Background(), st, testShop, product)
	require.NoError(t, err)
	return bd.Expected
}

func TestRestock_AppendsEventAndAdjustsCache(t *testing.T) {
	svc, st, now := newTestService(t)
	ctx := context.Background()

	ev, err := svc.Restock(ctx, RestockInput{
		Shop: testShop, Product: bulkGin, Quantity: 5, Actor: "staff-1",
	})
	require.NoError(t, err)

	assert.Equal(t, ledger.KindRestock, ev.Kind)
	assert.Equal(t, int64(5), ev.Quantity)
	assert.Equal(t, now, ev.RecordedAt)

	inv, err := st.GetInventory(ctx, testShop, bulkGin)
	require.NoError(t, err)
	assert.Equal(t, int64(15), inv.OnHand)
	assert.Equal(t, int64(15), expected(t, st, bulkGin))
}

func TestRestock_Validation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Restock(ctx, RestockInput{Shop: testShop, Product: bulkGin, Quantity: 0})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)

	_, err = svc.Restock(ctx, RestockInput{Shop: testShop, Product: "ghost", Quantity: 5})
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)
}

func TestDecant_MovesStockBetweenProducts(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	// WHEN opening 2 bulk containers to fill 20 small bottles
	err := svc.Decant(ctx, DecantInput{
		Shop: testShop, FromProduct: bulkGin, ToProduct: unitGin,
		QtyOut: 2, QtyIn: 20, Actor: "staff-1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(8), expected(t, st, bulkGin))
	assert.Equal(t, int64(20), expected(t, st, unitGin))

	// AND both sides of the decant are in the ledger
	outEvents, err := st.EventsSince(ctx, testShop, bulkGin, time.Time{})
	require.NoError(t, err)
	require.Len(t, outEvents, 1)
	assert.Equal(t, ledger.KindDecantOut, outEvents[0].Kind)
	assert.Equal(t, int64(-2), outEvents[0].Quantity)

	inEvents, err := st.EventsSince(ctx, testShop, unitGin, time.Time{})
	require.NoError(t, err)
	require.Len(t, inEvents, 1)
	assert.Equal(t, ledger.KindDecantIn, inEvents[0].Kind)
}

func TestDecant_InsufficientSourceRollsBackBothSides(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	err := svc.Decant(ctx, DecantInput{
		Shop: testShop, FromProduct: bulkGin, ToProduct: unitGin,
		QtyOut: 11, QtyIn: 110,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientStock)

	var insufficient *ledger.InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(10), insufficient.Available)
	assert.Equal(t, int64(11), insufficient.Requested)

	// Neither product moved.
	assert.Equal(t, int64(10), expected(t, st, bulkGin))
	assert.Equal(t, int64(0), expected(t, st, unitGin))
}

func TestDecant_SameProductRejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	err := svc.Decant(context.Background(), DecantInput{
		Shop: testShop, FromProduct: bulkGin, ToProduct: bulkGin,
		QtyOut: 1, QtyIn: 1,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestRecordSale_DecrementsStock(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	ev, err := svc.RecordSale(ctx, SaleInput{
		Shop: testShop, Product: bulkGin, Quantity: 3,
		UnitPrice: decimal.NewFromInt(25), Actor: "staff-1",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(-3), ev.Quantity)
	assert.Equal(t, int64(7), expected(t, st, bulkGin))
}

func TestRecordSale_ChecksDerivedStockNotCache(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	// GIVEN a drifted cache claiming more than the ledger supports
	inv, err := st.GetInventory(ctx, testShop, bulkGin)
	require.NoError(t, err)
	inv.OnHand = 50
	require.NoError(t, st.SaveInventory(ctx, *inv))

	// WHEN selling more than the derived 10
	_, err = svc.RecordSale(ctx, SaleInput{
		Shop: testShop, Product: bulkGin, Quantity: 11,
	})

	// THEN the derived figure wins
	assert.ErrorIs(t, err, ledger.ErrInsufficientStock)
}

func TestRecordSale_InactiveProduct(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	p, err := st.GetProduct(ctx, testShop, bulkGin)
	require.NoError(t, err)
	p.Active = false
	require.NoError(t, st.SaveProduct(ctx, *p))

	_, err = svc.RecordSale(ctx, SaleInput{Shop: testShop, Product: bulkGin, Quantity: 1})
	assert.ErrorIs(t, err, ledger.ErrProductNotFound)
}
