package history

import (
	"context"
	"sort"
	"sync"
)

var _ Archive = (*MemoryArchive)(nil)

// MemoryArchive is an in-process [Archive] for tests and single-node
// deployments without a database.
type MemoryArchive struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryArchive creates an empty MemoryArchive.
func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{records: make(map[string]Record)}
}

// Save implements [Archive].
func (a *MemoryArchive) Save(_ context.Context, rec Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[rec.ID] = rec
	return nil
}

// Get implements [Archive].
func (a *MemoryArchive) Get(_ context.Context, id string) (*Record, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	rec, ok := a.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// ListByUser implements [Archive].
func (a *MemoryArchive) ListByUser(_ context.Context, userID string, limit int) ([]Record, error) {
	a.mu.RLock()
	var out []Record
	for _, rec := range a.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	a.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
