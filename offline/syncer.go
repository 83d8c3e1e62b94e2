/*
syncer.go - Background queue drain

One goroutine drains the pending queue on a fixed interval and on
demand. Triggers coalesce: the trigger channel has capacity one, and a
run mutex guarantees at most one push is in flight, so a burst of
"connectivity restored" notifications results in a single drain.
*/
package offline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tally/shopledger/ledger"
)

// =============================================================================
// SYNCER
// =============================================================================

type Syncer struct {
	Store  PendingStore
	Client SyncClient
	Log    *zap.Logger

	// Interval between automatic drain attempts.
	Interval time.Duration
	// Retention keeps synced sales around for local audit before purge.
	Retention time.Duration
	// Now is overridable for tests.
	Now func() time.Time

	trigger chan struct{}
	stop    chan struct{}
	done    chan struct{}
	runMu   sync.Mutex
	started bool
	mu      sync.Mutex
}

func NewSyncer(store PendingStore, client SyncClient, log *zap.Logger) *Syncer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Syncer{
		Store:     store,
		Client:    client,
		Log:       log,
		Interval:  30 * time.Second,
		Retention: 7 * 24 * time.Hour,
		Now:       func() time.Time { return time.Now().UTC() },
		trigger:   make(chan struct{}, 1),
	}
}

// Start launches the drain loop. Calling Start twice is a no-op, and a
// stopped syncer may be started again. The stop/done pair is created
// fresh per run so a restart never touches the previous run's closed
// channels.
func (s *Syncer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(ctx, s.stop, s.done)
}

// Stop shuts the loop down and waits for an in-flight drain to finish.
func (s *Syncer) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stop)
	<-s.done
}

// Notify requests a drain soon, e.g. when connectivity returns or a new
// sale is queued. Never blocks; redundant notifications collapse into
// the one already pending.
func (s *Syncer) Notify() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Syncer) loop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-s.trigger:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single drain attempt. Exported so tills can force
// a sync from a "sync now" button; concurrent calls serialize.
func (s *Syncer) RunOnce(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	pending, err := s.Store.Unsynced(ctx)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}

	report, err := s.Client.Push(ctx, pending)
	if err != nil {
		// Transport failure: nothing was acknowledged, retry the whole
		// batch next round.
		keys := saleKeys(pending)
		if berr := s.Store.BumpRetry(ctx, keys); berr != nil {
			return berr
		}
		if errors.Is(err, ledger.ErrSyncUnavailable) {
			s.Log.Warn("sync unavailable, batch kept",
				zap.Int("pending", len(pending)),
				zap.Error(err),
			)
			return err
		}
		return err
	}

	var ok, failed []string
	for _, sale := range pending {
		if _, rejected := report.Errored[sale.IdempotencyKey]; rejected {
			failed = append(failed, sale.IdempotencyKey)
			continue
		}
		ok = append(ok, sale.IdempotencyKey)
	}

	if err := s.Store.MarkSynced(ctx, ok); err != nil {
		return err
	}
	if err := s.Store.BumpRetry(ctx, failed); err != nil {
		return err
	}

	if len(failed) > 0 {
		s.Log.Warn("some sales rejected by server",
			zap.Int("rejected", len(failed)),
			zap.Int("synced", len(ok)),
		)
	} else {
		s.Log.Info("queue drained",
			zap.Int("synced", len(ok)),
			zap.Int("duplicates", report.Duplicates),
		)
	}

	return s.Store.PurgeSynced(ctx, s.Now().Add(-s.Retention))
}

func saleKeys(sales []PendingSale) []string {
	keys := make([]string, 0, len(sales))
	for _, s := range sales {
		keys = append(keys, s.IdempotencyKey)
	}
	return keys
}
