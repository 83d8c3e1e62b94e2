/*
Package alerts manages the variance-alert lifecycle.

PURPOSE:
  Alerts are opened by the reconciliation engine when a physical count
  deviates from expected stock by a MINOR or worse margin. This package
  owns the one-way open -> resolved transition and the trailing-window
  summary used by dashboards.

RULES:
  - Only the shop's owner-role actor may resolve an alert.
  - Resolution is one-way; resolving twice is a conflict and the first
    resolution timestamp stands.
  - Summaries are computed over alert creation time, never event
    occurrence time, so an alert is counted in exactly one window.
*/
package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// ROLE CHECK - External collaborator
// =============================================================================

// RoleChecker answers whether an actor holds the owner role for a shop.
// Staff management itself lives outside this subsystem; callers inject
// an implementation backed by their auth layer.
type RoleChecker interface {
	IsOwner(ctx context.Context, shop ledger.ShopID, actor ledger.ActorID) (bool, error)
}

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	Store ledger.TxStore
	Roles RoleChecker
	Cache SummaryCache
	Log   *zap.Logger

	// Now is overridable for tests.
	Now func() time.Time

	// SummaryTTL bounds how stale a cached summary may be.
	SummaryTTL time.Duration
}

func NewManager(store ledger.TxStore, roles RoleChecker) *Manager {
	return &Manager{
		Store:      store,
		Roles:      roles,
		Cache:      NoopSummaryCache{},
		Now:        func() time.Time { return time.Now().UTC() },
		SummaryTTL: 30 * time.Second,
	}
}

func (m *Manager) logger() *zap.Logger {
	if m.Log != nil {
		return m.Log
	}
	return zap.NewNop()
}

// NewVarianceAlert builds the alert for a count variance. The message
// follows the "missing/excess N units of X" convention staff expect.
func NewVarianceAlert(audit ledger.AuditRecord, product ledger.Product) ledger.Alert {
	var message string
	if audit.Variance < 0 {
		message = fmt.Sprintf("Missing %d units of %s", -audit.Variance, product.Label())
	} else {
		message = fmt.Sprintf("Excess %d units of %s", audit.Variance, product.Label())
	}

	return ledger.Alert{
		ID:            uuid.NewString(),
		Shop:          audit.Shop,
		Product:       audit.Product,
		AuditID:       audit.ID,
		Severity:      audit.Severity,
		Message:       message,
		EstimatedLoss: audit.EstimatedLoss,
		CreatedAt:     audit.CreatedAt,
	}
}

// Create persists an alert outside a reconciliation transaction. The
// reconciliation engine writes alerts through its own transaction
// instead, so audit record and alert commit or roll back together.
func (m *Manager) Create(ctx context.Context, a ledger.Alert) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = m.Now()
	}
	return m.Store.SaveAlert(ctx, a)
}

// Get returns a single alert.
func (m *Manager) Get(ctx context.Context, shop ledger.ShopID, id string) (*ledger.Alert, error) {
	a, err := m.Store.GetAlert(ctx, shop, id)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, ledger.ErrAlertNotFound
	}
	return a, nil
}

// List returns alerts matching the filter, newest first.
func (m *Manager) List(ctx context.Context, shop ledger.ShopID, f ledger.AlertFilter) ([]ledger.Alert, error) {
	return m.Store.ListAlerts(ctx, shop, f)
}

// Resolve marks an alert resolved. Fails with ErrForbidden unless the
// actor holds the owner role, ErrAlertNotFound if the alert doesn't
// exist for the shop, and ErrAlertAlreadyResolved on a second call.
func (m *Manager) Resolve(ctx context.Context, shop ledger.ShopID, alertID string, actor ledger.ActorID, notes string) error {
	owner, err := m.Roles.IsOwner(ctx, shop, actor)
	if err != nil {
		return err
	}
	if !owner {
		return ledger.ErrForbidden
	}

	return m.Store.WithTx(ctx, func(tx ledger.Store) error {
		return tx.ResolveAlert(ctx, shop, alertID, actor, notes, m.Now())
	})
}

// =============================================================================
// SUMMARY
// =============================================================================

// TierStats aggregates alerts of one severity inside the window.
type TierStats struct {
	Count         int             `json:"count"`
	Active        int             `json:"active"`
	EstimatedLoss decimal.Decimal `json:"estimated_loss"`
}

// Summary is the trailing-window rollup for a shop's dashboard.
type Summary struct {
	Shop               ledger.ShopID                  `json:"shop_id"`
	WindowDays         int                            `json:"window_days"`
	ByTier             map[ledger.Severity]TierStats  `json:"by_severity"`
	TotalActive        int                            `json:"total_active"`
	TotalEstimatedLoss decimal.Decimal                `json:"total_estimated_loss"`
	GeneratedAt        time.Time                      `json:"generated_at"`
}

// Summarize aggregates alerts created within the trailing windowDays.
// Results are cached briefly; the summary is a dashboard figure, not a
// ledger read.
func (m *Manager) Summarize(ctx context.Context, shop ledger.ShopID, windowDays int) (*Summary, error) {
	if windowDays <= 0 {
		return nil, &ledger.InvalidInputError{Field: "window_days", Reason: "must be positive"}
	}

	cacheKey := fmt.Sprintf("alerts:summary:%s:%d", shop, windowDays)
	if cached, ok, err := m.Cache.Get(ctx, cacheKey); err == nil && ok {
		return cached, nil
	} else if err != nil {
		m.logger().Warn("summary cache read failed", zap.Error(err))
	}

	now := m.Now()
	from := now.AddDate(0, 0, -windowDays)
	list, err := m.Store.ListAlerts(ctx, shop, ledger.AlertFilter{From: &from})
	if err != nil {
		return nil, err
	}

	summary := &Summary{
		Shop:               shop,
		WindowDays:         windowDays,
		ByTier:             make(map[ledger.Severity]TierStats),
		TotalEstimatedLoss: decimal.Zero,
		GeneratedAt:        now,
	}

	for _, a := range list {
		stats := summary.ByTier[a.Severity]
		stats.Count++
		if !a.Resolved {
			stats.Active++
			summary.TotalActive++
		}
		stats.EstimatedLoss = stats.EstimatedLoss.Add(a.EstimatedLoss)
		summary.ByTier[a.Severity] = stats

		summary.TotalEstimatedLoss = summary.TotalEstimatedLoss.Add(a.EstimatedLoss)
	}

	if err := m.Cache.Set(ctx, cacheKey, summary, m.SummaryTTL); err != nil {
		m.logger().Warn("summary cache write failed", zap.Error(err))
	}

	return summary, nil
}
