package trial

import (
	"context"
	"sync"
	"time"
)

// MemoryGate is an in-process [Gate] for single-instance deployments and
// tests. State does not survive a restart; use [postgres.Gate] in production.
type MemoryGate struct {
	mu   sync.Mutex
	used map[string]time.Time
}

var _ Gate = (*MemoryGate)(nil)

// NewMemoryGate returns an empty in-memory gate.
func NewMemoryGate() *MemoryGate {
	return &MemoryGate{used: make(map[string]time.Time)}
}

// HasUsedTrial implements [Gate].
func (g *MemoryGate) HasUsedTrial(_ context.Context, userID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.used[userID]
	return ok, nil
}

// RecordUsage implements [Gate].
func (g *MemoryGate) RecordUsage(_ context.Context, userID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.used[userID]; ok {
		return ErrUsed
	}
	g.used[userID] = time.Now()
	return nil
}
