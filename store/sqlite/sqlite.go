/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements ledger.TxStore using SQLite. Used for development and
  single-node shop deployments; the same patterns apply to PostgreSQL
  with only dialect differences (see store/postgres).

APPEND-ONLY ENFORCEMENT:
  The stock_events table has exactly one write path:
  - No UPDATE statements on stock_events
  - No DELETE statements on stock_events
  - Corrections happen via compensating events or a baseline reset

IDEMPOTENCY:
  A unique index on (shop_id, idempotency_key) makes the database the
  authoritative duplicate detector. A constraint violation on append is
  translated to ledger.ErrDuplicateIdempotencyKey; callers never
  query-then-insert.

KEY TABLES:
  stock_events: Immutable ledger of all stock changes
  products:     Sellable SKUs (deactivated, never deleted)
  inventory:    Per (shop, product) baseline + materialized on-hand
  audit_logs:   Physical-count verification outcomes
  alerts:       Variance alerts with one-way resolve transition

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of WAL mode. WithTx holds
  the write lock for the whole transaction, which serializes the
  read-then-write sequences the domain layer depends on.

USAGE:
  store, err := sqlite.New("./data/shopledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
  - store/postgres: Production PostgreSQL implementation
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/tally/shopledger/ledger"
)

// timeLayout keeps nanosecond precision so the strictly-after watermark
// comparison in EventsSince works at event granularity. The fraction is
// fixed-width: RFC3339Nano trims trailing zeros, which breaks the
// lexicographic ordering the recorded_at comparison relies on.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// Now is overridable for tests.
	Now func() time.Time
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{
		db:  db,
		Now: func() time.Time { return time.Now().UTC() },
	}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Stock events (append-only ledger)
	CREATE TABLE IF NOT EXISTS stock_events (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity INTEGER NOT NULL,
		actor_id TEXT,
		device_id TEXT,
		unit_price TEXT NOT NULL DEFAULT '0',
		idempotency_key TEXT,
		occurred_at TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	-- CRITICAL: the database is the duplicate detector for offline sales.
	-- The same key for the same shop is never appended twice.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_shop_idempotency
		ON stock_events(shop_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL;

	-- Composite index for the expected-stock fold (hot path)
	CREATE INDEX IF NOT EXISTS idx_events_shop_product_recorded
		ON stock_events(shop_id, product_id, recorded_at);

	CREATE INDEX IF NOT EXISTS idx_events_kind
		ON stock_events(kind);

	-- Products
	CREATE TABLE IF NOT EXISTS products (
		id TEXT NOT NULL,
		shop_id TEXT NOT NULL,
		brand TEXT NOT NULL,
		size TEXT,
		unit TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (shop_id, id)
	);

	-- Inventory (baseline + materialized cache)
	CREATE TABLE IF NOT EXISTS inventory (
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		on_hand INTEGER NOT NULL DEFAULT 0,
		baseline_qty INTEGER NOT NULL DEFAULT 0,
		baseline_at TEXT NOT NULL,
		cost_price TEXT NOT NULL DEFAULT '0',
		selling_price TEXT NOT NULL DEFAULT '0',
		reorder_level INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (shop_id, product_id)
	);

	-- Audit logs (append-only)
	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		actor_id TEXT,
		expected INTEGER NOT NULL,
		physical INTEGER NOT NULL,
		variance INTEGER NOT NULL,
		variance_percent REAL NOT NULL,
		severity TEXT NOT NULL,
		estimated_loss TEXT NOT NULL DEFAULT '0',
		breakdown_json TEXT,
		counted_at TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audits_shop_created
		ON audit_logs(shop_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_audits_shop_product
		ON audit_logs(shop_id, product_id);

	-- Alerts
	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		audit_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		estimated_loss TEXT NOT NULL DEFAULT '0',
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TEXT,
		resolved_by TEXT,
		resolution_notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_shop_resolved
		ON alerts(shop_id, resolved, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_alerts_severity
		ON alerts(severity);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the query helpers
// work inside and outside transactions.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EVENT STORE
// =============================================================================

// AppendEvent adds a stock event to the ledger.
func (s *Store) AppendEvent(ctx context.Context, ev ledger.StockEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db dbtx, ev ledger.StockEvent) error {
	query := `
		INSERT INTO stock_events
		(id, shop_id, product_id, kind, quantity, actor_id, device_id,
		 unit_price, idempotency_key, occurred_at, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		ev.ID,
		ev.Shop,
		ev.Product,
		ev.Kind,
		ev.Quantity,
		ev.Actor,
		ev.Device,
		ev.UnitPrice.String(),
		nullString(ev.IdempotencyKey),
		ev.OccurredAt.UTC().Format(timeLayout),
		ev.RecordedAt.UTC().Format(timeLayout),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// EventsSince returns events recorded strictly after the watermark.
func (s *Store) EventsSince(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return eventsSince(ctx, s.db, shop, product, watermark)
}

func eventsSince(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	query := `
		SELECT id, shop_id, product_id, kind, quantity, actor_id, device_id,
		       unit_price, idempotency_key, occurred_at, recorded_at
		FROM stock_events
		WHERE shop_id = ? AND product_id = ? AND recorded_at > ?
		ORDER BY recorded_at ASC, id ASC
	`

	rows, err := db.QueryContext(ctx, query, shop, product, watermark.UTC().Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.StockEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}

	return events, rows.Err()
}

func scanEvent(rows *sql.Rows) (ledger.StockEvent, error) {
	var (
		ev             ledger.StockEvent
		actor, device  sql.NullString
		unitPrice      string
		idempotencyKey sql.NullString
		occurredAt     string
		recordedAt     string
	)

	err := rows.Scan(
		&ev.ID, &ev.Shop, &ev.Product, &ev.Kind, &ev.Quantity,
		&actor, &device, &unitPrice, &idempotencyKey, &occurredAt, &recordedAt,
	)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.Actor = ledger.ActorID(actor.String)
	ev.Device = ledger.DeviceID(device.String)
	ev.UnitPrice = parseDecimal(unitPrice)
	ev.IdempotencyKey = idempotencyKey.String
	ev.OccurredAt = parseTime(occurredAt)
	ev.RecordedAt = parseTime(recordedAt)

	return ev, nil
}

// HasIdempotencyKey checks if a key was already appended for the shop.
func (s *Store) HasIdempotencyKey(ctx context.Context, shop ledger.ShopID, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return hasIdempotencyKey(ctx, s.db, shop, key)
}

func hasIdempotencyKey(ctx context.Context, db dbtx, shop ledger.ShopID, key string) (bool, error) {
	var count int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM stock_events WHERE shop_id = ? AND idempotency_key = ?",
		shop, key,
	).Scan(&count)

	return count > 0, err
}

// =============================================================================
// PRODUCT STORE
// =============================================================================

// SaveProduct inserts or updates a product.
func (s *Store) SaveProduct(ctx context.Context, p ledger.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveProduct(ctx, s.db, p)
}

func saveProduct(ctx context.Context, db dbtx, p ledger.Product) error {
	query := `
		INSERT INTO products (id, shop_id, brand, size, unit, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(shop_id, id) DO UPDATE SET
			brand = excluded.brand,
			size = excluded.size,
			unit = excluded.unit,
			active = excluded.active
	`

	_, err := db.ExecContext(ctx, query,
		p.ID, p.Shop, p.Brand, p.Size, p.Unit, p.Active,
		p.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// GetProduct retrieves a product, or nil when unknown.
func (s *Store) GetProduct(ctx context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getProduct(ctx, s.db, shop, product)
}

func getProduct(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	var p ledger.Product
	var size, unit sql.NullString
	var createdAt string

	err := db.QueryRowContext(ctx,
		"SELECT id, shop_id, brand, size, unit, active, created_at FROM products WHERE shop_id = ? AND id = ?",
		shop, product,
	).Scan(&p.ID, &p.Shop, &p.Brand, &size, &unit, &p.Active, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Size = size.String
	p.Unit = unit.String
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

// =============================================================================
// INVENTORY STORE
// =============================================================================

// SaveInventory inserts or updates an inventory record.
func (s *Store) SaveInventory(ctx context.Context, rec ledger.InventoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveInventory(ctx, s.db, rec)
}

func saveInventory(ctx context.Context, db dbtx, rec ledger.InventoryRecord) error {
	query := `
		INSERT INTO inventory
		(shop_id, product_id, on_hand, baseline_qty, baseline_at,
		 cost_price, selling_price, reorder_level, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(shop_id, product_id) DO UPDATE SET
			on_hand = excluded.on_hand,
			baseline_qty = excluded.baseline_qty,
			baseline_at = excluded.baseline_at,
			cost_price = excluded.cost_price,
			selling_price = excluded.selling_price,
			reorder_level = excluded.reorder_level,
			updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		rec.Shop, rec.Product, rec.OnHand, rec.BaselineQty,
		rec.BaselineAt.UTC().Format(timeLayout),
		rec.CostPrice.String(), rec.SellingPrice.String(), rec.ReorderLevel,
		rec.UpdatedAt.UTC().Format(timeLayout),
	)
	return err
}

// GetInventory retrieves an inventory record, or nil when unknown.
func (s *Store) GetInventory(ctx context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.InventoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getInventory(ctx, s.db, shop, product)
}

func getInventory(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID) (*ledger.InventoryRecord, error) {
	var rec ledger.InventoryRecord
	var baselineAt, costPrice, sellingPrice, updatedAt string

	err := db.QueryRowContext(ctx,
		`SELECT shop_id, product_id, on_hand, baseline_qty, baseline_at,
		        cost_price, selling_price, reorder_level, updated_at
		 FROM inventory WHERE shop_id = ? AND product_id = ?`,
		shop, product,
	).Scan(&rec.Shop, &rec.Product, &rec.OnHand, &rec.BaselineQty, &baselineAt,
		&costPrice, &sellingPrice, &rec.ReorderLevel, &updatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rec.BaselineAt = parseTime(baselineAt)
	rec.CostPrice = parseDecimal(costPrice)
	rec.SellingPrice = parseDecimal(sellingPrice)
	rec.UpdatedAt = parseTime(updatedAt)
	return &rec, nil
}

// AdjustOnHand shifts the materialized cache by delta.
func (s *Store) AdjustOnHand(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, delta int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return adjustOnHand(ctx, s.db, shop, product, delta, s.Now())
}

func adjustOnHand(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, delta int64, at time.Time) error {
	res, err := db.ExecContext(ctx,
		"UPDATE inventory SET on_hand = on_hand + ?, updated_at = ? WHERE shop_id = ? AND product_id = ?",
		delta, at.UTC().Format(timeLayout), shop, product,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrInventoryNotFound
	}
	return nil
}

// ResetBaseline sets on-hand and baseline to qty and advances the watermark.
func (s *Store) ResetBaseline(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return resetBaseline(ctx, s.db, shop, product, qty, at)
}

func resetBaseline(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE inventory
		 SET on_hand = ?, baseline_qty = ?, baseline_at = ?, updated_at = ?
		 WHERE shop_id = ? AND product_id = ?`,
		qty, qty, at.UTC().Format(timeLayout), at.UTC().Format(timeLayout), shop, product,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ledger.ErrInventoryNotFound
	}
	return nil
}

// =============================================================================
// AUDIT STORE
// =============================================================================

// SaveAudit appends a verification record. Audit logs are append-only.
func (s *Store) SaveAudit(ctx context.Context, rec ledger.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveAudit(ctx, s.db, rec)
}

func saveAudit(ctx context.Context, db dbtx, rec ledger.AuditRecord) error {
	breakdownJSON, _ := json.Marshal(rec.Breakdown)

	query := `
		INSERT INTO audit_logs
		(id, shop_id, product_id, actor_id, expected, physical, variance,
		 variance_percent, severity, estimated_loss, breakdown_json, counted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		rec.ID, rec.Shop, rec.Product, rec.Actor,
		rec.Expected, rec.Physical, rec.Variance,
		rec.VariancePercent, rec.Severity, rec.EstimatedLoss.String(),
		string(breakdownJSON),
		rec.CountedAt.UTC().Format(timeLayout),
		rec.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// ListAudits returns verification records, newest first.
func (s *Store) ListAudits(ctx context.Context, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listAudits(ctx, s.db, shop, f)
}

func listAudits(ctx context.Context, db dbtx, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	query := `
		SELECT id, shop_id, product_id, actor_id, expected, physical, variance,
		       variance_percent, severity, estimated_loss, breakdown_json, counted_at, created_at
		FROM audit_logs
		WHERE shop_id = ?
	`
	args := []any{shop}

	if f.Product != nil {
		query += " AND product_id = ?"
		args = append(args, *f.Product)
	}
	if f.From != nil {
		query += " AND created_at >= ?"
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if f.To != nil {
		query += " AND created_at <= ?"
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	query += " ORDER BY created_at DESC"
	query, args = applyPaging(query, args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audits: %w", err)
	}
	defer rows.Close()

	var audits []ledger.AuditRecord
	for rows.Next() {
		var (
			rec           ledger.AuditRecord
			actor         sql.NullString
			estimatedLoss string
			breakdownJSON sql.NullString
			countedAt     string
			createdAt     string
		)
		if err := rows.Scan(
			&rec.ID, &rec.Shop, &rec.Product, &actor,
			&rec.Expected, &rec.Physical, &rec.Variance,
			&rec.VariancePercent, &rec.Severity, &estimatedLoss,
			&breakdownJSON, &countedAt, &createdAt,
		); err != nil {
			return nil, err
		}

		rec.Actor = ledger.ActorID(actor.String)
		rec.EstimatedLoss = parseDecimal(estimatedLoss)
		rec.CountedAt = parseTime(countedAt)
		rec.CreatedAt = parseTime(createdAt)
		if breakdownJSON.Valid && breakdownJSON.String != "" {
			json.Unmarshal([]byte(breakdownJSON.String), &rec.Breakdown)
		}

		audits = append(audits, rec)
	}

	return audits, rows.Err()
}

// =============================================================================
// ALERT STORE
// =============================================================================

// SaveAlert inserts an alert.
func (s *Store) SaveAlert(ctx context.Context, a ledger.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return saveAlert(ctx, s.db, a)
}

func saveAlert(ctx context.Context, db dbtx, a ledger.Alert) error {
	var resolvedAt *string
	if a.ResolvedAt != nil {
		t := a.ResolvedAt.UTC().Format(timeLayout)
		resolvedAt = &t
	}

	query := `
		INSERT INTO alerts
		(id, shop_id, product_id, audit_id, severity, message, estimated_loss,
		 resolved, resolved_at, resolved_by, resolution_notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.ExecContext(ctx, query,
		a.ID, a.Shop, a.Product, a.AuditID, a.Severity, a.Message,
		a.EstimatedLoss.String(), a.Resolved, resolvedAt, a.ResolvedBy,
		a.ResolutionNotes, a.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// GetAlert retrieves an alert, or nil when unknown.
func (s *Store) GetAlert(ctx context.Context, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return getAlert(ctx, s.db, shop, id)
}

func getAlert(ctx context.Context, db dbtx, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	var (
		a             ledger.Alert
		estimatedLoss string
		resolvedAt    sql.NullString
		resolvedBy    sql.NullString
		notes         sql.NullString
		createdAt     string
	)

	err := db.QueryRowContext(ctx,
		`SELECT id, shop_id, product_id, audit_id, severity, message, estimated_loss,
		        resolved, resolved_at, resolved_by, resolution_notes, created_at
		 FROM alerts WHERE shop_id = ? AND id = ?`,
		shop, id,
	).Scan(&a.ID, &a.Shop, &a.Product, &a.AuditID, &a.Severity, &a.Message,
		&estimatedLoss, &a.Resolved, &resolvedAt, &resolvedBy, &notes, &createdAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.EstimatedLoss = parseDecimal(estimatedLoss)
	a.ResolvedBy = ledger.ActorID(resolvedBy.String)
	a.ResolutionNotes = notes.String
	a.CreatedAt = parseTime(createdAt)
	if resolvedAt.Valid {
		t := parseTime(resolvedAt.String)
		a.ResolvedAt = &t
	}

	return &a, nil
}

// ListAlerts returns alerts, newest first.
func (s *Store) ListAlerts(ctx context.Context, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return listAlerts(ctx, s.db, shop, f)
}

func listAlerts(ctx context.Context, db dbtx, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	query := `
		SELECT id, shop_id, product_id, audit_id, severity, message, estimated_loss,
		       resolved, resolved_at, resolved_by, resolution_notes, created_at
		FROM alerts
		WHERE shop_id = ?
	`
	args := []any{shop}

	switch f.Status {
	case ledger.AlertStatusActive:
		query += " AND resolved = FALSE"
	case ledger.AlertStatusResolved:
		query += " AND resolved = TRUE"
	}
	if f.Severity != nil {
		query += " AND severity = ?"
		args = append(args, *f.Severity)
	}
	if f.From != nil {
		query += " AND created_at >= ?"
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if f.To != nil {
		query += " AND created_at <= ?"
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	query += " ORDER BY created_at DESC"
	query, args = applyPaging(query, args, f.Limit, f.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []ledger.Alert
	for rows.Next() {
		var (
			a             ledger.Alert
			estimatedLoss string
			resolvedAt    sql.NullString
			resolvedBy    sql.NullString
			notes         sql.NullString
			createdAt     string
		)
		if err := rows.Scan(&a.ID, &a.Shop, &a.Product, &a.AuditID, &a.Severity,
			&a.Message, &estimatedLoss, &a.Resolved, &resolvedAt, &resolvedBy,
			&notes, &createdAt); err != nil {
			return nil, err
		}

		a.EstimatedLoss = parseDecimal(estimatedLoss)
		a.ResolvedBy = ledger.ActorID(resolvedBy.String)
		a.ResolutionNotes = notes.String
		a.CreatedAt = parseTime(createdAt)
		if resolvedAt.Valid {
			t := parseTime(resolvedAt.String)
			a.ResolvedAt = &t
		}

		alerts = append(alerts, a)
	}

	return alerts, rows.Err()
}

// ResolveAlert performs the one-way resolve transition at the database,
// so two racing resolvers cannot both win.
func (s *Store) ResolveAlert(ctx context.Context, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return resolveAlert(ctx, s.db, shop, id, by, notes, at)
}

func resolveAlert(ctx context.Context, db dbtx, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE alerts
		 SET resolved = TRUE, resolved_at = ?, resolved_by = ?, resolution_notes = ?
		 WHERE shop_id = ? AND id = ? AND resolved = FALSE`,
		at.UTC().Format(timeLayout), by, notes, shop, id,
	)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	// No row transitioned: either the alert doesn't exist or it was
	// already resolved.
	var count int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM alerts WHERE shop_id = ? AND id = ?",
		shop, id,
	).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		return ledger.ErrAlertNotFound
	}
	return ledger.ErrAlertAlreadyResolved
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx, now: s.Now}); err != nil {
		return err
	}

	return sqlTx.Commit()
}

// txStore routes Store calls through an open transaction. It must not
// take the parent mutex; WithTx already holds it.
type txStore struct {
	tx  *sql.Tx
	now func() time.Time
}

func (ts *txStore) AppendEvent(ctx context.Context, ev ledger.StockEvent) error {
	return appendEvent(ctx, ts.tx, ev)
}

func (ts *txStore) EventsSince(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	return eventsSince(ctx, ts.tx, shop, product, watermark)
}

func (ts *txStore) HasIdempotencyKey(ctx context.Context, shop ledger.ShopID, key string) (bool, error) {
	return hasIdempotencyKey(ctx, ts.tx, shop, key)
}

func (ts *txStore) SaveProduct(ctx context.Context, p ledger.Product) error {
	return saveProduct(ctx, ts.tx, p)
}

func (ts *txStore) GetProduct(ctx context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	return getProduct(ctx, ts.tx, shop, product)
}

func (ts *txStore) SaveInventory(ctx context.Context, rec ledger.InventoryRecord) error {
	return saveInventory(ctx, ts.tx, rec)
}

func (ts *txStore) GetInventory(ctx context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.InventoryRecord, error) {
	return getInventory(ctx, ts.tx, shop, product)
}

func (ts *txStore) AdjustOnHand(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, delta int64) error {
	return adjustOnHand(ctx, ts.tx, shop, product, delta, ts.now())
}

func (ts *txStore) ResetBaseline(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	return resetBaseline(ctx, ts.tx, shop, product, qty, at)
}

func (ts *txStore) SaveAudit(ctx context.Context, rec ledger.AuditRecord) error {
	return saveAudit(ctx, ts.tx, rec)
}

func (ts *txStore) ListAudits(ctx context.Context, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	return listAudits(ctx, ts.tx, shop, f)
}

func (ts *txStore) SaveAlert(ctx context.Context, a ledger.Alert) error {
	return saveAlert(ctx, ts.tx, a)
}

func (ts *txStore) GetAlert(ctx context.Context, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	return getAlert(ctx, ts.tx, shop, id)
}

func (ts *txStore) ListAlerts(ctx context.Context, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	return listAlerts(ctx, ts.tx, shop, f)
}

func (ts *txStore) ResolveAlert(ctx context.Context, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	return resolveAlert(ctx, ts.tx, shop, id, by, notes, at)
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"stock_events", "audit_logs", "alerts", "inventory", "products"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func applyPaging(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}
	return query, args
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func parseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
