/*
handlers.go - HTTP API handlers for the inventory ledger

PURPOSE:
  Exposes the ledger, reconciliation, alert, and sale-sync subsystems
  via REST API. Handles HTTP request/response, JSON serialization, and
  delegates to domain logic.

ENDPOINTS:
  Products & inventory:
    POST   /api/products                  Register a product with opening stock
    GET    /api/inventory/{productID}     On-hand, expected stock, breakdown
    GET    /api/inventory/{productID}/events  Recent ledger events

  Stock operations:
    POST   /api/inventory/restock         Record received stock
    POST   /api/inventory/decant          Break bulk stock into units
    POST   /api/sales                     Record an online sale

  Sale sync:
    POST   /api/sales/sync                Push a batch of offline sales

  Reconciliation:
    POST   /api/audit/verify              Verify a physical count
    GET    /api/audit/history             Past verifications

  Alerts:
    GET    /api/alerts                    List alerts (filterable)
    GET    /api/alerts/summary            Trailing-window rollup
    GET    /api/alerts/{id}               Single alert
    PATCH  /api/alerts/{id}/resolve       Resolve (owner only)

REQUEST FLOW:
  1. Parse HTTP request
  2. Call domain logic
  3. Serialize response
  4. Map domain errors to status codes

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 403: Actor lacks the required role
  - 404: Resource not found
  - 409: Conflict (duplicate key, double resolve, insufficient stock)
  - 503: Transient upstream failure
  - 500: Internal errors

  Sale sync is the exception: item-level failures are reported in the
  body with 200 (all accepted), 207 (partial), or 422 (all failed).

SEE ALSO:
  - dto.go: Request/response data structures
  - context.go: Identity extraction
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tally/shopledger/alerts"
	"github.com/tally/shopledger/ledger"
	"github.com/tally/shopledger/reconcile"
	"github.com/tally/shopledger/stock"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     ledger.TxStore
	Stock     *stock.Service
	Reconcile *reconcile.Engine
	Alerts    *alerts.Manager
	Log       *zap.Logger
}

// NewHandler wires the domain services around one store.
func NewHandler(store ledger.TxStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}

	stockSvc := stock.NewService(store)
	stockSvc.Log = log

	engine := reconcile.NewEngine(store)
	engine.Log = log

	mgr := alerts.NewManager(store, HeaderRoles{})
	mgr.Log = log

	return &Handler{
		Store:     store,
		Stock:     stockSvc,
		Reconcile: engine,
		Alerts:    mgr,
		Log:       log,
	}
}

// =============================================================================
// PRODUCT HANDLERS
// =============================================================================

// CreateProduct registers a product and its opening inventory record.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}
	if req.Brand == "" {
		writeError(w, http.StatusBadRequest, "brand is required", nil)
		return
	}
	if req.InitialStock < 0 {
		writeError(w, http.StatusBadRequest, "initial_stock cannot be negative", nil)
		return
	}

	shop := shopFrom(r.Context())
	now := time.Now().UTC()

	id := ledger.ProductID(req.ID)
	if id == "" {
		id = ledger.ProductID(uuid.NewString())
	}

	product := ledger.Product{
		ID:        id,
		Shop:      shop,
		Brand:     req.Brand,
		Size:      req.Size,
		Unit:      req.Unit,
		Active:    true,
		CreatedAt: now,
	}
	inventory := ledger.InventoryRecord{
		Shop:         shop,
		Product:      id,
		OnHand:       req.InitialStock,
		BaselineQty:  req.InitialStock,
		BaselineAt:   now,
		CostPrice:    req.CostPrice,
		SellingPrice: req.SellingPrice,
		ReorderLevel: req.ReorderLevel,
		UpdatedAt:    now,
	}

	err := h.Store.WithTx(r.Context(), func(tx ledger.Store) error {
		if err := tx.SaveProduct(r.Context(), product); err != nil {
			return err
		}
		return tx.SaveInventory(r.Context(), inventory)
	})
	if err != nil {
		h.writeDomainError(w, "Failed to create product", err)
		return
	}

	writeJSON(w, http.StatusCreated, toProductDTO(product))
}

// GetInventory returns the stock position for one product, including
// the derived expected stock and its breakdown.
func (h *Handler) GetInventory(w http.ResponseWriter, r *http.Request) {
	shop := shopFrom(r.Context())
	productID := ledger.ProductID(chi.URLParam(r, "productID"))

	inv, err := h.Store.GetInventory(r.Context(), shop, productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get inventory", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Inventory not found", nil)
		return
	}

	bd, err := ledger.ExpectedStock(r.Context(), h.Store, shop, productID)
	if err != nil {
		h.writeDomainError(w, "Failed to compute expected stock", err)
		return
	}

	writeJSON(w, http.StatusOK, InventoryDTO{
		ProductID:     string(productID),
		OnHand:        inv.OnHand,
		ExpectedStock: bd.Expected,
		Breakdown:     bd,
		CostPrice:     inv.CostPrice,
		SellingPrice:  inv.SellingPrice,
		ReorderLevel:  inv.ReorderLevel,
		BelowReorder:  bd.Expected <= inv.ReorderLevel,
		UpdatedAt:     inv.UpdatedAt.Format(time.RFC3339),
	})
}

// ListEvents returns ledger events for a product since the current
// baseline watermark, oldest first.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	shop := shopFrom(r.Context())
	productID := ledger.ProductID(chi.URLParam(r, "productID"))

	inv, err := h.Store.GetInventory(r.Context(), shop, productID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get inventory", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Inventory not found", nil)
		return
	}

	events, err := h.Store.EventsSince(r.Context(), shop, productID, inv.BaselineAt)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// STOCK OPERATION HANDLERS
// =============================================================================

// Restock records received stock.
func (h *Handler) Restock(w http.ResponseWriter, r *http.Request) {
	var req RestockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	ev, err := h.Stock.Restock(r.Context(), stock.RestockInput{
		Shop:       shopFrom(r.Context()),
		Product:    ledger.ProductID(req.ProductID),
		Quantity:   req.Quantity,
		Actor:      actorFrom(r.Context()),
		Device:     deviceFrom(r.Context()),
		OccurredAt: req.OccurredAt,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to restock", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventDTO(*ev))
}

// Decant breaks bulk stock of one SKU into units of another.
func (h *Handler) Decant(w http.ResponseWriter, r *http.Request) {
	var req DecantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	err := h.Stock.Decant(r.Context(), stock.DecantInput{
		Shop:        shopFrom(r.Context()),
		FromProduct: ledger.ProductID(req.FromProductID),
		ToProduct:   ledger.ProductID(req.ToProductID),
		QtyOut:      req.QtyOut,
		QtyIn:       req.QtyIn,
		Actor:       actorFrom(r.Context()),
		Device:      deviceFrom(r.Context()),
		OccurredAt:  req.OccurredAt,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to decant", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// RecordSale records an online sale.
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	ev, err := h.Stock.RecordSale(r.Context(), stock.SaleInput{
		Shop:           shopFrom(r.Context()),
		Product:        ledger.ProductID(req.ProductID),
		Quantity:       req.Quantity,
		UnitPrice:      req.UnitPrice,
		Actor:          actorFrom(r.Context()),
		Device:         deviceFrom(r.Context()),
		OccurredAt:     req.OccurredAt,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		h.writeDomainError(w, "Failed to record sale", err)
		return
	}

	writeJSON(w, http.StatusCreated, toEventDTO(*ev))
}

// =============================================================================
// SALE SYNC HANDLER
// =============================================================================

// SyncSales ingests a batch of offline sales. The response status code
// reflects the batch outcome: 200 all accepted, 207 partial, 422 all
// failed. The body always carries the full per-item report.
func (h *Handler) SyncSales(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	items := make([]stock.SaleItem, len(req.Sales))
	for i, s := range req.Sales {
		items[i] = stock.SaleItem{
			IdempotencyKey: s.IdempotencyKey,
			Product:        ledger.ProductID(s.ProductID),
			Quantity:       s.Quantity,
			UnitPrice:      s.UnitPrice,
			SoldAt:         s.SoldAt,
		}
	}

	outcome, err := h.Stock.SyncBatch(r.Context(),
		shopFrom(r.Context()), deviceFrom(r.Context()), actorFrom(r.Context()), items)
	if err != nil {
		h.writeDomainError(w, "Failed to sync sales", err)
		return
	}

	status := http.StatusOK
	switch outcome.Status {
	case stock.SyncPartial:
		status = http.StatusMultiStatus
	case stock.SyncAllFailed:
		if outcome.Submitted > 0 {
			status = http.StatusUnprocessableEntity
		}
	}

	writeJSON(w, status, SyncResponse{
		Submitted:         outcome.Submitted,
		Accepted:          outcome.Accepted,
		DuplicatesIgnored: outcome.DuplicatesIgnored,
		Errors:            outcome.Errors,
		Status:            outcome.Status,
	})
}

// =============================================================================
// RECONCILIATION HANDLERS
// =============================================================================

// VerifyCount compares a physical shelf count against expected stock.
func (h *Handler) VerifyCount(w http.ResponseWriter, r *http.Request) {
	var req VerifyCountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	result, err := h.Reconcile.VerifyCount(r.Context(),
		shopFrom(r.Context()),
		ledger.ProductID(req.ProductID),
		actorFrom(r.Context()),
		req.PhysicalCount,
		req.CountedAt,
	)
	if err != nil {
		h.writeDomainError(w, "Failed to verify count", err)
		return
	}

	resp := VerifyCountResponse{Audit: toAuditDTO(result.Audit)}
	if result.Alert != nil {
		dto := toAlertDTO(*result.Alert)
		resp.Alert = &dto
	}
	writeJSON(w, http.StatusCreated, resp)
}

// AuditHistory returns past verifications, newest first.
func (h *Handler) AuditHistory(w http.ResponseWriter, r *http.Request) {
	f := ledger.AuditFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if p := r.URL.Query().Get("product_id"); p != "" {
		id := ledger.ProductID(p)
		f.Product = &id
	}
	if from, ok := queryTime(r, "from"); ok {
		f.From = &from
	}
	if to, ok := queryTime(r, "to"); ok {
		f.To = &to
	}

	audits, err := h.Reconcile.History(r.Context(), shopFrom(r.Context()), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list audits", err)
		return
	}

	dtos := make([]AuditDTO, len(audits))
	for i, a := range audits {
		dtos[i] = toAuditDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ALERT HANDLERS
// =============================================================================

// ListAlerts returns alerts, filterable by status and severity.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	f := ledger.AlertFilter{
		Status: ledger.AlertStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		s := ledger.Severity(sev)
		f.Severity = &s
	}
	if from, ok := queryTime(r, "from"); ok {
		f.From = &from
	}
	if to, ok := queryTime(r, "to"); ok {
		f.To = &to
	}

	list, err := h.Alerts.List(r.Context(), shopFrom(r.Context()), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list alerts", err)
		return
	}

	dtos := make([]AlertDTO, len(list))
	for i, a := range list {
		dtos[i] = toAlertDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetAlert returns a single alert.
func (h *Handler) GetAlert(w http.ResponseWriter, r *http.Request) {
	a, err := h.Alerts.Get(r.Context(), shopFrom(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, "Failed to get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTO(*a))
}

// ResolveAlert marks an alert resolved. Owner role only; resolving an
// already-resolved alert is a conflict.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req ResolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body", err)
		return
	}

	shop := shopFrom(r.Context())
	id := chi.URLParam(r, "id")

	if err := h.Alerts.Resolve(r.Context(), shop, id, actorFrom(r.Context()), req.Notes); err != nil {
		h.writeDomainError(w, "Failed to resolve alert", err)
		return
	}

	a, err := h.Alerts.Get(r.Context(), shop, id)
	if err != nil {
		h.writeDomainError(w, "Failed to get alert", err)
		return
	}
	writeJSON(w, http.StatusOK, toAlertDTO(*a))
}

// AlertSummary returns the trailing-window rollup for dashboards.
func (h *Handler) AlertSummary(w http.ResponseWriter, r *http.Request) {
	windowDays := queryInt(r, "window_days", 7)

	summary, err := h.Alerts.Summarize(r.Context(), shopFrom(r.Context()), windowDays)
	if err != nil {
		h.writeDomainError(w, "Failed to summarize alerts", err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// =============================================================================
// HELPERS
// =============================================================================

// statusFor maps a domain error onto an HTTP status code.
func statusFor(err error) int {
	switch {
	case ledger.IsInvalidInput(err):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsForbidden(err):
		return http.StatusForbidden
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsTransient(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeDomainError(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.Log.Error(msg, zap.Error(err))
	}
	writeError(w, status, msg, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := map[string]any{"error": message}
	if err != nil {
		resp["detail"] = err.Error()
	}
	writeJSON(w, status, resp)
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func queryTime(r *http.Request, key string) (time.Time, bool) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
