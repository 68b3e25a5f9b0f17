package history

import (
	"context"
	"sync"
	"time"
)

// DefaultMemoryLimit caps a MemoryStore created with a non-positive limit.
const DefaultMemoryLimit = 500

// MemoryStore keeps the most recent entries in process memory. The oldest
// entry is dropped once the limit is reached.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry // oldest first
	limit   int
	closed  bool
}

// NewMemoryStore creates a store holding at most limit entries.
func NewMemoryStore(limit int) *MemoryStore {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &MemoryStore{limit: limit}
}

func (m *MemoryStore) Record(ctx context.Context, e Entry) error {
	stamp(&e)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	m.entries = append(m.entries, e)
	if over := len(m.entries) - m.limit; over > 0 {
		m.entries = append(m.entries[:0:0], m.entries[over:]...)
	}
	return nil
}

func (m *MemoryStore) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	n := min(limit, len(m.entries))
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

func (m *MemoryStore) Purge(ctx context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	kept := m.entries[:0]
	var purged int64
	for _, e := range m.entries {
		if e.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return purged, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.closed = true
	m.entries = nil
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
