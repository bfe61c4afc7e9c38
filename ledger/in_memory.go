// Package ledger provides cost ledger storage. The in-memory store backs
// tests and ephemeral runs; the SQLite store persists the ledger across
// process restarts.
package ledger

import (
	"sync"

	"github.com/mindmapper/conductor/core"
)

// Compile-time check that InMemory implements core.CostStore.
var _ core.CostStore = (*InMemory)(nil)

// InMemory is a thread-safe, append-only in-memory cost store.
type InMemory struct {
	mu      sync.RWMutex
	records []core.CostRecord
}

// NewInMemory creates an empty in-memory cost store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

// Append adds a record to the ledger.
func (s *InMemory) Append(record core.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// ReadAll returns all records in append order.
func (s *InMemory) ReadAll() ([]core.CostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]core.CostRecord, len(s.records))
	copy(out, s.records)
	return out, nil
}

// Totals aggregates the ledger into a cumulative summary.
func (s *InMemory) Totals() core.CostSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return core.Summarize(s.records)
}
