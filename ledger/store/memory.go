// Package store provides in-memory ledger.Store implementations for
// testing and development. The SQL-backed implementations live under
// store/sqlite and store/postgres.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory implements ledger.Store entirely in memory. All data access
// goes through an unexported state struct so the transactional wrapper
// can reuse the same logic while already holding the lock.
type Memory struct {
	mu sync.RWMutex
	st state
}

type invKey struct {
	Shop    ledger.ShopID
	Product ledger.ProductID
}

type idemKey struct {
	Shop ledger.ShopID
	Key  string
}

type state struct {
	events      map[invKey][]ledger.StockEvent
	idempotency map[idemKey]bool
	products    map[invKey]ledger.Product
	inventory   map[invKey]ledger.InventoryRecord
	audits      map[ledger.ShopID][]ledger.AuditRecord
	alerts      map[ledger.ShopID][]ledger.Alert
}

func newState() state {
	return state{
		events:      make(map[invKey][]ledger.StockEvent),
		idempotency: make(map[idemKey]bool),
		products:    make(map[invKey]ledger.Product),
		inventory:   make(map[invKey]ledger.InventoryRecord),
		audits:      make(map[ledger.ShopID][]ledger.AuditRecord),
		alerts:      make(map[ledger.ShopID][]ledger.Alert),
	}
}

func NewMemory() *Memory {
	return &Memory{st: newState()}
}

// -----------------------------------------------------------------------------
// Events
// -----------------------------------------------------------------------------

func (m *Memory) AppendEvent(_ context.Context, ev ledger.StockEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.appendEvent(ev)
}

func (s *state) appendEvent(ev ledger.StockEvent) error {
	if ev.IdempotencyKey != "" {
		ik := idemKey{Shop: ev.Shop, Key: ev.IdempotencyKey}
		if s.idempotency[ik] {
			return ledger.ErrDuplicateIdempotencyKey
		}
		s.idempotency[ik] = true
	}

	k := invKey{Shop: ev.Shop, Product: ev.Product}
	s.events[k] = append(s.events[k], ev)
	return nil
}

func (m *Memory) EventsSince(_ context.Context, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.eventsSince(shop, product, watermark), nil
}

func (s *state) eventsSince(shop ledger.ShopID, product ledger.ProductID, watermark time.Time) []ledger.StockEvent {
	k := invKey{Shop: shop, Product: product}
	var result []ledger.StockEvent
	for _, ev := range s.events[k] {
		if ev.RecordedAt.After(watermark) {
			result = append(result, ev)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].RecordedAt.Before(result[j].RecordedAt)
	})
	return result
}

func (m *Memory) HasIdempotencyKey(_ context.Context, shop ledger.ShopID, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.idempotency[idemKey{Shop: shop, Key: key}], nil
}

// -----------------------------------------------------------------------------
// Products & inventory
// -----------------------------------------------------------------------------

func (m *Memory) SaveProduct(_ context.Context, p ledger.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.products[invKey{Shop: p.Shop, Product: p.ID}] = p
	return nil
}

func (m *Memory) GetProduct(_ context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getProduct(shop, product), nil
}

func (s *state) getProduct(shop ledger.ShopID, product ledger.ProductID) *ledger.Product {
	if p, ok := s.products[invKey{Shop: shop, Product: product}]; ok {
		cp := p
		return &cp
	}
	return nil
}

func (m *Memory) SaveInventory(_ context.Context, rec ledger.InventoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.inventory[invKey{Shop: rec.Shop, Product: rec.Product}] = rec
	return nil
}

func (m *Memory) GetInventory(_ context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.InventoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getInventory(shop, product), nil
}

func (s *state) getInventory(shop ledger.ShopID, product ledger.ProductID) *ledger.InventoryRecord {
	if rec, ok := s.inventory[invKey{Shop: shop, Product: product}]; ok {
		cp := rec
		return &cp
	}
	return nil
}

func (m *Memory) AdjustOnHand(_ context.Context, shop ledger.ShopID, product ledger.ProductID, delta int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.adjustOnHand(shop, product, delta)
}

func (s *state) adjustOnHand(shop ledger.ShopID, product ledger.ProductID, delta int64) error {
	k := invKey{Shop: shop, Product: product}
	rec, ok := s.inventory[k]
	if !ok {
		return ledger.ErrInventoryNotFound
	}
	rec.OnHand += delta
	rec.UpdatedAt = time.Now().UTC()
	s.inventory[k] = rec
	return nil
}

func (m *Memory) ResetBaseline(_ context.Context, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.resetBaseline(shop, product, qty, at)
}

func (s *state) resetBaseline(shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	k := invKey{Shop: shop, Product: product}
	rec, ok := s.inventory[k]
	if !ok {
		return ledger.ErrInventoryNotFound
	}
	rec.OnHand = qty
	rec.BaselineQty = qty
	rec.BaselineAt = at
	rec.UpdatedAt = at
	s.inventory[k] = rec
	return nil
}

// -----------------------------------------------------------------------------
// Audit log
// -----------------------------------------------------------------------------

func (m *Memory) SaveAudit(_ context.Context, rec ledger.AuditRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.audits[rec.Shop] = append(m.st.audits[rec.Shop], rec)
	return nil
}

func (m *Memory) ListAudits(_ context.Context, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAudits(shop, f), nil
}

func (s *state) listAudits(shop ledger.ShopID, f ledger.AuditFilter) []ledger.AuditRecord {
	var result []ledger.AuditRecord
	for _, rec := range s.audits[shop] {
		if f.Product != nil && rec.Product != *f.Product {
			continue
		}
		if f.From != nil && rec.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && rec.CreatedAt.After(*f.To) {
			continue
		}
		result = append(result, rec)
	}
	// Newest first, matching the SQL stores.
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Limit, f.Offset)
}

// -----------------------------------------------------------------------------
// Alerts
// -----------------------------------------------------------------------------

func (m *Memory) SaveAlert(_ context.Context, a ledger.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.st.alerts[a.Shop] = append(m.st.alerts[a.Shop], a)
	return nil
}

func (m *Memory) GetAlert(_ context.Context, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.getAlert(shop, id), nil
}

func (s *state) getAlert(shop ledger.ShopID, id string) *ledger.Alert {
	for _, a := range s.alerts[shop] {
		if a.ID == id {
			cp := a
			return &cp
		}
	}
	return nil
}

func (m *Memory) ListAlerts(_ context.Context, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.st.listAlerts(shop, f), nil
}

func (s *state) listAlerts(shop ledger.ShopID, f ledger.AlertFilter) []ledger.Alert {
	var result []ledger.Alert
	for _, a := range s.alerts[shop] {
		if f.Status == ledger.AlertStatusActive && a.Resolved {
			continue
		}
		if f.Status == ledger.AlertStatusResolved && !a.Resolved {
			continue
		}
		if f.Severity != nil && a.Severity != *f.Severity {
			continue
		}
		if f.From != nil && a.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && a.CreatedAt.After(*f.To) {
			continue
		}
		result = append(result, a)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return paginate(result, f.Limit, f.Offset)
}

func (m *Memory) ResolveAlert(_ context.Context, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.st.resolveAlert(shop, id, by, notes, at)
}

func (s *state) resolveAlert(shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	for i, a := range s.alerts[shop] {
		if a.ID != id {
			continue
		}
		if a.Resolved {
			return ledger.ErrAlertAlreadyResolved
		}
		a.Resolved = true
		a.ResolvedAt = &at
		a.ResolvedBy = by
		a.ResolutionNotes = notes
		s.alerts[shop][i] = a
		return nil
	}
	return ledger.ErrAlertNotFound
}

func paginate[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support. WithTx holds the
// write lock for the whole function, which serializes transactions the
// way row locks do in the SQL stores, and rolls back to a snapshot on
// error.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.st.clone()

	if err := fn(&txMemoryView{st: &tm.st}); err != nil {
		tm.st = snapshot
		return err
	}
	return nil
}

func (s *state) clone() state {
	cp := newState()
	for k, v := range s.events {
		cp.events[k] = append([]ledger.StockEvent{}, v...)
	}
	for k, v := range s.idempotency {
		cp.idempotency[k] = v
	}
	for k, v := range s.products {
		cp.products[k] = v
	}
	for k, v := range s.inventory {
		cp.inventory[k] = v
	}
	for k, v := range s.audits {
		cp.audits[k] = append([]ledger.AuditRecord{}, v...)
	}
	for k, v := range s.alerts {
		cp.alerts[k] = append([]ledger.Alert{}, v...)
	}
	return cp
}

// txMemoryView runs against the parent state while the parent's lock is
// already held.
type txMemoryView struct {
	st *state
}

func (tv *txMemoryView) AppendEvent(_ context.Context, ev ledger.StockEvent) error {
	return tv.st.appendEvent(ev)
}

func (tv *txMemoryView) EventsSince(_ context.Context, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	return tv.st.eventsSince(shop, product, watermark), nil
}

func (tv *txMemoryView) HasIdempotencyKey(_ context.Context, shop ledger.ShopID, key string) (bool, error) {
	return tv.st.idempotency[idemKey{Shop: shop, Key: key}], nil
}

func (tv *txMemoryView) SaveProduct(_ context.Context, p ledger.Product) error {
	tv.st.products[invKey{Shop: p.Shop, Product: p.ID}] = p
	return nil
}

func (tv *txMemoryView) GetProduct(_ context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	return tv.st.getProduct(shop, product), nil
}

func (tv *txMemoryView) SaveInventory(_ context.Context, rec ledger.InventoryRecord) error {
	tv.st.inventory[invKey{Shop: rec.Shop, Product: rec.Product}] = rec
	return nil
}

func (tv *txMemoryView) GetInventory(_ context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.InventoryRecord, error) {
	return tv.st.getInventory(shop, product), nil
}

func (tv *txMemoryView) AdjustOnHand(_ context.Context, shop ledger.ShopID, product ledger.ProductID, delta int64) error {
	return tv.st.adjustOnHand(shop, product, delta)
}

func (tv *txMemoryView) ResetBaseline(_ context.Context, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	return tv.st.resetBaseline(shop, product, qty, at)
}

func (tv *txMemoryView) SaveAudit(_ context.Context, rec ledger.AuditRecord) error {
	tv.st.audits[rec.Shop] = append(tv.st.audits[rec.Shop], rec)
	return nil
}

func (tv *txMemoryView) ListAudits(_ context.Context, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	return tv.st.listAudits(shop, f), nil
}

func (tv *txMemoryView) SaveAlert(_ context.Context, a ledger.Alert) error {
	tv.st.alerts[a.Shop] = append(tv.st.alerts[a.Shop], a)
	return nil
}

func (tv *txMemoryView) GetAlert(_ context.Context, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	return tv.st.getAlert(shop, id), nil
}

func (tv *txMemoryView) ListAlerts(_ context.Context, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	return tv.st.listAlerts(shop, f), nil
}

func (tv *txMemoryView) ResolveAlert(_ context.Context, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	return tv.st.resolveAlert(shop, id, by, notes, at)
}
