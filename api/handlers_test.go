package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tally/shopledger/ledger/store"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

type testAPI struct {
	t      *testing.T
	server *httptest.Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	h := NewHandler(store.NewTxMemory(), nil)
	srv := httptest.NewServer(NewRouter(h, []string{"*"}))
	t.Cleanup(srv.Close)
	return &testAPI{t: t, server: srv}
}

type identity struct {
	shop   string
	actor  string
	role   string
	device string
}

func staff() identity {
	return identity{shop: "shop-1", actor: "staff-1", device: "till-1"}
}

func owner() identity {
	return identity{shop: "shop-1", actor: "owner-1", role: "owner"}
}

func (a *testAPI) do(method, path string, id identity, body any) *http.Response {
	a.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(a.t, err)
	req.Header.Set("Content-Type", "application/json")
	if id.shop != "" {
		req.Header.Set("X-Shop-ID", id.shop)
	}
	if id.actor != "" {
		req.Header.Set("X-Actor-ID", id.actor)
	}
	if id.role != "" {
		req.Header.Set("X-Actor-Role", id.role)
	}
	if id.device != "" {
		req.Header.Set("X-Device-ID", id.device)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(a.t, err)
	return resp
}

func mustTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (a *testAPI) createProduct(id string, initialStock int64) {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/products", staff(), CreateProductRequest{
		ID: id, Brand: "Hendrick's", Size: "750ml", Unit: "bottle",
		InitialStock: initialStock, ReorderLevel: 2,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// IDENTITY
// =============================================================================

func TestAPI_MissingShopHeaderIsRejected(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/api/alerts", identity{}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HealthzNeedsNoIdentity(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/healthz", identity{}, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// =============================================================================
// PRODUCTS & INVENTORY
// =============================================================================

func TestAPI_CreateProductAndGetInventory(t *testing.T) {
	a := newTestAPI(t)
	a.createProduct("gin-750ml", 10)

	resp := a.do(http.MethodGet, "/api/inventory/gin-750ml", staff(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	inv := decode[InventoryDTO](t, resp)

	assert.Equal(t, int64(10), inv.OnHand)
	assert.Equal(t, int64(10), inv.ExpectedStock)
	assert.Equal(t, int64(10), inv.Breakdown.BaselineQty)
	assert.False(t, inv.BelowReorder)
}

func TestAPI_CreateProductValidation(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodPost, "/api/products", staff(), CreateProductRequest{Brand: ""})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = a.do(http.MethodPost, "/api/products", staff(), CreateProductRequest{
		Brand: "Gin", InitialStock: -1,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_InventoryUnknownProduct(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/api/inventory/ghost", staff(), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_ShopsAreIsolated(t *testing.T) {
	a := newTestAPI(t)
	a.createProduct("gin-750ml", 10)

	other := identity{shop: "shop-2", actor: "staff-9"}
	resp := a.do(http.MethodGet, "/api/inventory/gin-750ml", other, nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// STOCK OPERATIONS
// =============================================================================

func TestAPI_RestockSaleAndEvents(t *testing.T) {
	a := newTestAPI(t)
	a.createProduct("gin-750ml", 10)

	resp := a.do(http.MethodPost, "/api/inventory/restock", staff(), RestockRequest{
		ProductID: "gin-750ml", Quantity: 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	ev := decode[EventDTO](t, resp)
	assert.Equal(t, "RESTOCK", ev.Kind)
	assert.Equal(t, int64(5), ev.Quantity)

	resp = a.do(http.MethodPost, "/api/sales", staff(), SaleRequest{
		ProductID: "gin-750ml", Quantity: 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(http.MethodGet, "/api/inventory/gin-750ml/events", staff(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	events := decode[[]EventDTO](t, resp)
	require.Len(t, events, 2)
	assert.Equal(t, "RESTOCK", events[0].Kind)
	assert.Equal(t, "SALE", events[1].Kind)
	assert.Equal(t, int64(-3), events[1].Quantity)
}

func TestAPI_SaleExceedingStockConflicts(t *testing.T) {
	a := newTestAPI(t)
	a.createProduct("gin-750ml", 10)

	resp := a.do(http.MethodPost, "/api/sales", staff(), SaleRequest{
		ProductID: "gin-750ml", Quantity: 11,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_Decant(t *testing.T) {
	a := newTestAPI(t)
	a.createProduct("gin-5l", 4)
	a.createProduct("gin-500ml", 0)

	resp := a.do(http.MethodPost, "/api/inventory/decant", staff(), DecantRequest{
		FromProductID: "gin-5l", ToProductID: "gin-500ml", QtyOut: 1, QtyIn: 10,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = a.do(http.MethodGet, "/api/inventory/gin-500ml", staff(), nil)
	inv := decode[InventoryDTO](t, resp)
	assert.Equal(t, int64(10), inv.ExpectedStock)
}

// =============================================================================
// SALE SYNC
// =============================================================================

func TestAPI_SyncSales_StatusCodes(t *testing.T) {
	a := newTestAPI(t)
	a.createProduct("gin-750ml", 10)

	sale := func(key string, product string, qty int64) SyncSaleItem {
		return SyncSaleItem{
			IdempotencyKey: key, ProductID: product, Quantity: qty,
			SoldAt: mustTime("2026-03-01T18:00:00Z"),
		}
	}

	// All accepted: 200
	resp := a.do(http.MethodPost, "/api/sales/sync", staff(), SyncRequest{
		Sales: []SyncSaleItem{sale("k1", "gin-750ml", 2), sale("k2", "gin-750ml", 1)},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decode[SyncResponse](t, resp)
	assert.Equal(t, 2, out.Accepted)

	// Resubmission: still 200, all duplicates
	resp = a.do(http.MethodPost, "/api/sales/sync", staff(), SyncRequest{
		Sales: []SyncSaleItem{sale("k1", "gin-750ml", 2), sale("k2", "gin-750ml", 1)},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	out = decode[SyncResponse](t, resp)
	assert.Equal(t, 0, out.Accepted)
	assert.Equal(t, 2, out.DuplicatesIgnored)

	// Partial: 207
	resp = a.do(http.MethodPost, "/api/sales/sync", staff(), SyncRequest{
		Sales: []SyncSaleItem{sale("k3", "gin-750ml", 1), sale("k4", "ghost", 1)},
	})
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	out = decode[SyncResponse](t, resp)
	assert.Equal(t, 1, out.Accepted)
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "k4", out.Errors[0].IdempotencyKey)
	assert.NotEmpty(t, out.Errors[0].Reason)

	// All failed: 422
	resp = a.do(http.MethodPost, "/api/sales/sync", staff(), SyncRequest{
		Sales: []SyncSaleItem{sale("k5", "ghost", 1)},
	})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	// Empty batch: 200, nothing to do
	resp = a.do(http.MethodPost, "/api/sales/sync", staff(), SyncRequest{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

// =============================================================================
// RECONCILIATION & ALERTS
// =============================================================================

// verifyShortage drives the full loop: seed stock, sell some, count short.
func (a *testAPI) verifyShortage(product string) VerifyCountResponse {
	a.t.Helper()
	a.createProduct(product, 100)

	resp := a.do(http.MethodPost, "/api/sales", staff(), SaleRequest{
		ProductID: product, Quantity: 10,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Expected 90, counted 80: -11.1%, critical.
	resp = a.do(http.MethodPost, "/api/audit/verify", staff(), VerifyCountRequest{
		ProductID: product, PhysicalCount: 80,
	})
	require.Equal(a.t, http.StatusCreated, resp.StatusCode)
	return decode[VerifyCountResponse](a.t, resp)
}

func TestAPI_VerifyCountOpensAlert(t *testing.T) {
	a := newTestAPI(t)
	out := a.verifyShortage("gin-750ml")

	assert.Equal(t, int64(90), out.Audit.Expected)
	assert.Equal(t, int64(-10), out.Audit.Variance)
	assert.Equal(t, "CRITICAL", string(out.Audit.Severity))
	require.NotNil(t, out.Alert)
	assert.Contains(t, out.Alert.Message, "Missing 10 units")

	// The audit shows up in history.
	resp := a.do(http.MethodGet, "/api/audit/history?product_id=gin-750ml", staff(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	audits := decode[[]AuditDTO](t, resp)
	require.Len(t, audits, 1)
	assert.Equal(t, out.Audit.ID, audits[0].ID)

	// And the alert in the active list.
	resp = a.do(http.MethodGet, "/api/alerts?status=active", staff(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]AlertDTO](t, resp)
	require.Len(t, list, 1)
	assert.Equal(t, out.Alert.ID, list[0].ID)
}

func TestAPI_ResolveAlert_RoleGate(t *testing.T) {
	a := newTestAPI(t)
	out := a.verifyShortage("gin-750ml")
	path := fmt.Sprintf("/api/alerts/%s/resolve", out.Alert.ID)

	// Staff cannot resolve.
	resp := a.do(http.MethodPatch, path, staff(), ResolveAlertRequest{Notes: "nope"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp.Body.Close()

	// The owner can.
	resp = a.do(http.MethodPatch, path, owner(), ResolveAlertRequest{Notes: "breakage, wrote off"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resolved := decode[AlertDTO](t, resp)
	assert.True(t, resolved.Resolved)
	assert.Equal(t, "breakage, wrote off", resolved.ResolutionNotes)
	require.NotNil(t, resolved.ResolvedAt)

	// A second resolve conflicts.
	resp = a.do(http.MethodPatch, path, owner(), ResolveAlertRequest{Notes: "again"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

func TestAPI_GetAlert_Unknown(t *testing.T) {
	a := newTestAPI(t)

	resp := a.do(http.MethodGet, "/api/alerts/ghost", staff(), nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_AlertSummary(t *testing.T) {
	a := newTestAPI(t)
	a.verifyShortage("gin-750ml")

	resp := a.do(http.MethodGet, "/api/alerts/summary?window_days=7", staff(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var summary struct {
		TotalActive int `json:"total_active"`
		WindowDays  int `json:"window_days"`
	}
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&summary))
	assert.Equal(t, 1, summary.TotalActive)
	assert.Equal(t, 7, summary.WindowDays)
}
