package offline

import (
	"context"
	"sync"
	"time"
)

// MemoryPendingStore is an in-memory PendingStore for tests and
// ephemeral tills. Order of insertion is preserved.
type MemoryPendingStore struct {
	mu    sync.Mutex
	sales []PendingSale
	index map[string]int
}

func NewMemoryPendingStore() *MemoryPendingStore {
	return &MemoryPendingStore{index: make(map[string]int)}
}

func (m *MemoryPendingStore) Save(_ context.Context, sale PendingSale) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Keep-first, matching the durable store's ON CONFLICT DO NOTHING:
	// the key was assigned at capture and the first write wins.
	if _, ok := m.index[sale.IdempotencyKey]; ok {
		return nil
	}
	m.index[sale.IdempotencyKey] = len(m.sales)
	m.sales = append(m.sales, sale)
	return nil
}

func (m *MemoryPendingStore) Unsynced(_ context.Context) ([]PendingSale, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []PendingSale
	for _, s := range m.sales {
		if !s.Synced {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *MemoryPendingStore) MarkSynced(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		if i, ok := m.index[k]; ok {
			m.sales[i].Synced = true
		}
	}
	return nil
}

func (m *MemoryPendingStore) BumpRetry(_ context.Context, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		if i, ok := m.index[k]; ok {
			m.sales[i].RetryCount++
		}
	}
	return nil
}

func (m *MemoryPendingStore) PendingCount(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sales {
		if !s.Synced {
			n++
		}
	}
	return n, nil
}

func (m *MemoryPendingStore) PurgeSynced(_ context.Context, olderThan time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.sales[:0]
	for _, s := range m.sales {
		if s.Synced && s.CreatedAt.Before(olderThan) {
			continue
		}
		kept = append(kept, s)
	}
	m.sales = kept

	m.index = make(map[string]int, len(m.sales))
	for i, s := range m.sales {
		m.index[s.IdempotencyKey] = i
	}
	return nil
}
