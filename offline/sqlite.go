/*
sqlite.go - Durable device-local queue

One SQLite file per till. The queue must survive app restarts and power
loss between sale capture and sync acknowledgement; rows are deleted
only after the server has acknowledged them AND the retention window has
passed, so a recent batch can still be audited locally.
*/
package offline

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const pendingSchema = `
CREATE TABLE IF NOT EXISTS pending_sales (
	idempotency_key TEXT PRIMARY KEY,
	product_id      TEXT NOT NULL,
	quantity        INTEGER NOT NULL,
	unit_price      TEXT NOT NULL,
	sold_at         TIMESTAMP NOT NULL,
	synced          BOOLEAN NOT NULL DEFAULT 0,
	retry_count     INTEGER NOT NULL DEFAULT 0,
	created_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_unsynced ON pending_sales (synced, created_at);
`

// SQLitePendingStore is the production PendingStore.
type SQLitePendingStore struct {
	db *sqlx.DB
}

func NewSQLitePendingStore(path string) (*SQLitePendingStore, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(pendingSchema); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLitePendingStore{db: db}, nil
}

func (s *SQLitePendingStore) Close() error {
	return s.db.Close()
}

func (s *SQLitePendingStore) Save(ctx context.Context, sale PendingSale) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO pending_sales
			(idempotency_key, product_id, quantity, unit_price, sold_at, synced, retry_count, created_at)
		VALUES
			(:idempotency_key, :product_id, :quantity, :unit_price, :sold_at, :synced, :retry_count, :created_at)
		ON CONFLICT(idempotency_key) DO NOTHING`,
		sale)
	return err
}

func (s *SQLitePendingStore) Unsynced(ctx context.Context) ([]PendingSale, error) {
	var sales []PendingSale
	err := s.db.SelectContext(ctx, &sales, `
		SELECT * FROM pending_sales WHERE synced = 0 ORDER BY created_at ASC`)
	return sales, err
}

func (s *SQLitePendingStore) MarkSynced(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE pending_sales SET synced = 1 WHERE idempotency_key IN (?)`, keys)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

func (s *SQLitePendingStore) BumpRetry(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	query, args, err := sqlx.In(`UPDATE pending_sales SET retry_count = retry_count + 1 WHERE idempotency_key IN (?)`, keys)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	return err
}

func (s *SQLitePendingStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM pending_sales WHERE synced = 0`)
	return n, err
}

func (s *SQLitePendingStore) PurgeSynced(ctx context.Context, olderThan time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM pending_sales WHERE synced = 1 AND created_at < ?`, olderThan)
	return err
}
