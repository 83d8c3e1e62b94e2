/*
Package postgres provides the production PostgreSQL implementation of
the storage interfaces.

Same contract as store/sqlite with two differences that matter in a
multi-replica deployment:

  - Concurrency control is pushed down to the database. WithTx opens a
    real transaction and the inventory row is locked with SELECT ... FOR
    UPDATE, so two API replicas mutating the same (shop, product) pair
    serialize at the row instead of behind a process-local mutex.
  - Unique-violation detection uses the SQLSTATE code (23505) from pgx
    instead of string matching.

Uses the pgx driver through database/sql.
*/
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/tally/shopledger/ledger"
)

// Store implements ledger.TxStore using PostgreSQL.
type Store struct {
	db *sql.DB

	// Now is overridable for tests.
	Now func() time.Time
}

// New connects to PostgreSQL and migrates the schema.
func New(databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
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

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS stock_events (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		quantity BIGINT NOT NULL,
		actor_id TEXT,
		device_id TEXT,
		unit_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		idempotency_key TEXT,
		occurred_at TIMESTAMPTZ NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_shop_idempotency
		ON stock_events(shop_id, idempotency_key)
		WHERE idempotency_key IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_events_shop_product_recorded
		ON stock_events(shop_id, product_id, recorded_at);

	CREATE TABLE IF NOT EXISTS products (
		id TEXT NOT NULL,
		shop_id TEXT NOT NULL,
		brand TEXT NOT NULL,
		size TEXT,
		unit TEXT,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (shop_id, id)
	);

	CREATE TABLE IF NOT EXISTS inventory (
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		on_hand BIGINT NOT NULL DEFAULT 0,
		baseline_qty BIGINT NOT NULL DEFAULT 0,
		baseline_at TIMESTAMPTZ NOT NULL,
		cost_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		selling_price NUMERIC(12,2) NOT NULL DEFAULT 0,
		reorder_level BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (shop_id, product_id)
	);

	CREATE TABLE IF NOT EXISTS audit_logs (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		actor_id TEXT,
		expected BIGINT NOT NULL,
		physical BIGINT NOT NULL,
		variance BIGINT NOT NULL,
		variance_percent DOUBLE PRECISION NOT NULL,
		severity TEXT NOT NULL,
		estimated_loss NUMERIC(12,2) NOT NULL DEFAULT 0,
		breakdown_json JSONB,
		counted_at TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audits_shop_created
		ON audit_logs(shop_id, created_at DESC);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		shop_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		audit_id TEXT NOT NULL,
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		estimated_loss NUMERIC(12,2) NOT NULL DEFAULT 0,
		resolved BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_at TIMESTAMPTZ,
		resolved_by TEXT,
		resolution_notes TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_shop_resolved
		ON alerts(shop_id, resolved, created_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// EVENT STORE
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, ev ledger.StockEvent) error {
	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db dbtx, ev ledger.StockEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO stock_events
		(id, shop_id, product_id, kind, quantity, actor_id, device_id,
		 unit_price, idempotency_key, occurred_at, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		ev.ID, ev.Shop, ev.Product, ev.Kind, ev.Quantity,
		ev.Actor, ev.Device, ev.UnitPrice,
		nullString(ev.IdempotencyKey), ev.OccurredAt.UTC(), ev.RecordedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ledger.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *Store) EventsSince(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	return eventsSince(ctx, s.db, shop, product, watermark)
}

func eventsSince(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, watermark time.Time) ([]ledger.StockEvent, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, shop_id, product_id, kind, quantity, actor_id, device_id,
		       unit_price, idempotency_key, occurred_at, recorded_at
		FROM stock_events
		WHERE shop_id = $1 AND product_id = $2 AND recorded_at > $3
		ORDER BY recorded_at ASC, id ASC`,
		shop, product, watermark.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []ledger.StockEvent
	for rows.Next() {
		var (
			ev            ledger.StockEvent
			actor, device sql.NullString
			key           sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.Shop, &ev.Product, &ev.Kind, &ev.Quantity,
			&actor, &device, &ev.UnitPrice, &key, &ev.OccurredAt, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Actor = ledger.ActorID(actor.String)
		ev.Device = ledger.DeviceID(device.String)
		ev.IdempotencyKey = key.String
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (s *Store) HasIdempotencyKey(ctx context.Context, shop ledger.ShopID, key string) (bool, error) {
	return hasIdempotencyKey(ctx, s.db, shop, key)
}

func hasIdempotencyKey(ctx context.Context, db dbtx, shop ledger.ShopID, key string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM stock_events WHERE shop_id = $1 AND idempotency_key = $2)",
		shop, key,
	).Scan(&exists)
	return exists, err
}

// =============================================================================
// PRODUCT STORE
// =============================================================================

func (s *Store) SaveProduct(ctx context.Context, p ledger.Product) error {
	return saveProduct(ctx, s.db, p)
}

func saveProduct(ctx context.Context, db dbtx, p ledger.Product) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO products (id, shop_id, brand, size, unit, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (shop_id, id) DO UPDATE SET
			brand = EXCLUDED.brand,
			size = EXCLUDED.size,
			unit = EXCLUDED.unit,
			active = EXCLUDED.active`,
		p.ID, p.Shop, p.Brand, p.Size, p.Unit, p.Active, p.CreatedAt.UTC(),
	)
	return err
}

func (s *Store) GetProduct(ctx context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	return getProduct(ctx, s.db, shop, product)
}

func getProduct(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID) (*ledger.Product, error) {
	var p ledger.Product
	var size, unit sql.NullString

	err := db.QueryRowContext(ctx,
		"SELECT id, shop_id, brand, size, unit, active, created_at FROM products WHERE shop_id = $1 AND id = $2",
		shop, product,
	).Scan(&p.ID, &p.Shop, &p.Brand, &size, &unit, &p.Active, &p.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Size = size.String
	p.Unit = unit.String
	return &p, nil
}

// =============================================================================
// INVENTORY STORE
// =============================================================================

func (s *Store) SaveInventory(ctx context.Context, rec ledger.InventoryRecord) error {
	return saveInventory(ctx, s.db, rec)
}

func saveInventory(ctx context.Context, db dbtx, rec ledger.InventoryRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO inventory
		(shop_id, product_id, on_hand, baseline_qty, baseline_at,
		 cost_price, selling_price, reorder_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (shop_id, product_id) DO UPDATE SET
			on_hand = EXCLUDED.on_hand,
			baseline_qty = EXCLUDED.baseline_qty,
			baseline_at = EXCLUDED.baseline_at,
			cost_price = EXCLUDED.cost_price,
			selling_price = EXCLUDED.selling_price,
			reorder_level = EXCLUDED.reorder_level,
			updated_at = EXCLUDED.updated_at`,
		rec.Shop, rec.Product, rec.OnHand, rec.BaselineQty, rec.BaselineAt.UTC(),
		rec.CostPrice, rec.SellingPrice, rec.ReorderLevel, rec.UpdatedAt.UTC(),
	)
	return err
}

func (s *Store) GetInventory(ctx context.Context, shop ledger.ShopID, product ledger.ProductID) (*ledger.InventoryRecord, error) {
	return getInventory(ctx, s.db, shop, product, false)
}

// getInventory locks the row when forUpdate is set, serializing
// concurrent writers on the same (shop, product) pair at the database.
func getInventory(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, forUpdate bool) (*ledger.InventoryRecord, error) {
	query := `
		SELECT shop_id, product_id, on_hand, baseline_qty, baseline_at,
		       cost_price, selling_price, reorder_level, updated_at
		FROM inventory WHERE shop_id = $1 AND product_id = $2`
	if forUpdate {
		query += " FOR UPDATE"
	}

	var rec ledger.InventoryRecord
	err := db.QueryRowContext(ctx, query, shop, product).Scan(
		&rec.Shop, &rec.Product, &rec.OnHand, &rec.BaselineQty, &rec.BaselineAt,
		&rec.CostPrice, &rec.SellingPrice, &rec.ReorderLevel, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) AdjustOnHand(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, delta int64) error {
	return adjustOnHand(ctx, s.db, shop, product, delta, s.Now())
}

func adjustOnHand(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, delta int64, at time.Time) error {
	res, err := db.ExecContext(ctx,
		"UPDATE inventory SET on_hand = on_hand + $1, updated_at = $2 WHERE shop_id = $3 AND product_id = $4",
		delta, at.UTC(), shop, product,
	)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrInventoryNotFound)
}

// requireRow returns notFound when the statement affected no rows.
func requireRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func (s *Store) ResetBaseline(ctx context.Context, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	return resetBaseline(ctx, s.db, shop, product, qty, at)
}

func resetBaseline(ctx context.Context, db dbtx, shop ledger.ShopID, product ledger.ProductID, qty int64, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE inventory
		SET on_hand = $1, baseline_qty = $1, baseline_at = $2, updated_at = $2
		WHERE shop_id = $3 AND product_id = $4`,
		qty, at.UTC(), shop, product,
	)
	if err != nil {
		return err
	}
	return requireRow(res, ledger.ErrInventoryNotFound)
}

// =============================================================================
// AUDIT STORE
// =============================================================================

func (s *Store) SaveAudit(ctx context.Context, rec ledger.AuditRecord) error {
	return saveAudit(ctx, s.db, rec)
}

func saveAudit(ctx context.Context, db dbtx, rec ledger.AuditRecord) error {
	breakdownJSON, _ := json.Marshal(rec.Breakdown)

	_, err := db.ExecContext(ctx, `
		INSERT INTO audit_logs
		(id, shop_id, product_id, actor_id, expected, physical, variance,
		 variance_percent, severity, estimated_loss, breakdown_json, counted_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.Shop, rec.Product, rec.Actor,
		rec.Expected, rec.Physical, rec.Variance,
		rec.VariancePercent, rec.Severity, rec.EstimatedLoss,
		breakdownJSON, rec.CountedAt.UTC(), rec.CreatedAt.UTC(),
	)
	return err
}

func (s *Store) ListAudits(ctx context.Context, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	return listAudits(ctx, s.db, shop, f)
}

func listAudits(ctx context.Context, db dbtx, shop ledger.ShopID, f ledger.AuditFilter) ([]ledger.AuditRecord, error) {
	query := `
		SELECT id, shop_id, product_id, actor_id, expected, physical, variance,
		       variance_percent, severity, estimated_loss, breakdown_json, counted_at, created_at
		FROM audit_logs
		WHERE shop_id = $1`
	args := []any{shop}

	if f.Product != nil {
		args = append(args, *f.Product)
		query += fmt.Sprintf(" AND product_id = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, f.From.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, f.To.UTC())
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
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
			breakdownJSON []byte
		)
		if err := rows.Scan(
			&rec.ID, &rec.Shop, &rec.Product, &actor,
			&rec.Expected, &rec.Physical, &rec.Variance,
			&rec.VariancePercent, &rec.Severity, &rec.EstimatedLoss,
			&breakdownJSON, &rec.CountedAt, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Actor = ledger.ActorID(actor.String)
		if len(breakdownJSON) > 0 {
			json.Unmarshal(breakdownJSON, &rec.Breakdown)
		}
		audits = append(audits, rec)
	}
	return audits, rows.Err()
}

// =============================================================================
// ALERT STORE
// =============================================================================

func (s *Store) SaveAlert(ctx context.Context, a ledger.Alert) error {
	return saveAlert(ctx, s.db, a)
}

func saveAlert(ctx context.Context, db dbtx, a ledger.Alert) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO alerts
		(id, shop_id, product_id, audit_id, severity, message, estimated_loss,
		 resolved, resolved_at, resolved_by, resolution_notes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.Shop, a.Product, a.AuditID, a.Severity, a.Message,
		a.EstimatedLoss, a.Resolved, a.ResolvedAt, a.ResolvedBy,
		a.ResolutionNotes, a.CreatedAt.UTC(),
	)
	return err
}

func (s *Store) GetAlert(ctx context.Context, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	return getAlert(ctx, s.db, shop, id)
}

func getAlert(ctx context.Context, db dbtx, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	var (
		a                 ledger.Alert
		resolvedBy, notes sql.NullString
	)

	err := db.QueryRowContext(ctx, `
		SELECT id, shop_id, product_id, audit_id, severity, message, estimated_loss,
		       resolved, resolved_at, resolved_by, resolution_notes, created_at
		FROM alerts WHERE shop_id = $1 AND id = $2`,
		shop, id,
	).Scan(&a.ID, &a.Shop, &a.Product, &a.AuditID, &a.Severity, &a.Message,
		&a.EstimatedLoss, &a.Resolved, &a.ResolvedAt, &resolvedBy, &notes, &a.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	a.ResolvedBy = ledger.ActorID(resolvedBy.String)
	a.ResolutionNotes = notes.String
	return &a, nil
}

func (s *Store) ListAlerts(ctx context.Context, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	return listAlerts(ctx, s.db, shop, f)
}

func listAlerts(ctx context.Context, db dbtx, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	query := `
		SELECT id, shop_id, product_id, audit_id, severity, message, estimated_loss,
		       resolved, resolved_at, resolved_by, resolution_notes, created_at
		FROM alerts
		WHERE shop_id = $1`
	args := []any{shop}

	switch f.Status {
	case ledger.AlertStatusActive:
		query += " AND resolved = FALSE"
	case ledger.AlertStatusResolved:
		query += " AND resolved = TRUE"
	}
	if f.Severity != nil {
		args = append(args, *f.Severity)
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if f.From != nil {
		args = append(args, f.From.UTC())
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.To != nil {
		args = append(args, f.To.UTC())
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
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
			a                 ledger.Alert
			resolvedBy, notes sql.NullString
		)
		if err := rows.Scan(&a.ID, &a.Shop, &a.Product, &a.AuditID, &a.Severity,
			&a.Message, &a.EstimatedLoss, &a.Resolved, &a.ResolvedAt, &resolvedBy,
			&notes, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ResolvedBy = ledger.ActorID(resolvedBy.String)
		a.ResolutionNotes = notes.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *Store) ResolveAlert(ctx context.Context, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	return resolveAlert(ctx, s.db, shop, id, by, notes, at)
}

func resolveAlert(ctx context.Context, db dbtx, shop ledger.ShopID, id string, by ledger.ActorID, notes string, at time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE alerts
		SET resolved = TRUE, resolved_at = $1, resolved_by = $2, resolution_notes = $3
		WHERE shop_id = $4 AND id = $5 AND resolved = FALSE`,
		at.UTC(), by, notes, shop, id,
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

	var exists bool
	if err := db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM alerts WHERE shop_id = $1 AND id = $2)",
		shop, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ledger.ErrAlertNotFound
	}
	return ledger.ErrAlertAlreadyResolved
}

// =============================================================================
// TRANSACTIONAL STORE (ledger.TxStore interface)
// =============================================================================

// WithTx executes fn inside a database transaction. GetInventory calls
// made through the transactional view lock the row for update.
func (s *Store) WithTx(ctx context.Context, fn func(store ledger.Store) error) error {
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
	return getInventory(ctx, ts.tx, shop, product, true)
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

func applyPaging(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		if offset > 0 {
			args = append(args, offset)
			query += fmt.Sprintf(" OFFSET $%d", len(args))
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

// isUniqueViolation reports whether err is a PostgreSQL unique
// constraint violation (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
