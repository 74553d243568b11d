package catalog

import (
	"context"
	"sync"
)

// MemStore is an in-memory Store for tests, development, and callers that
// only need the current process's history. Thread-safe.
type MemStore struct {
	mu      sync.RWMutex
	records []Record
	byID    map[string]int
}

// NewMemStore creates an empty in-memory catalog.
func NewMemStore() *MemStore {
	return &MemStore{byID: make(map[string]int)}
}

// Append adds one record. A record with a duplicate ID replaces the
// original, which keeps retried appends idempotent.
func (m *MemStore) Append(_ context.Context, r Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.byID[r.ID]; ok {
		m.records[i] = r
		return nil
	}
	m.byID[r.ID] = len(m.records)
	m.records = append(m.records, r)
	return nil
}

// Get returns the record with the given ID.
func (m *MemStore) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.records[i], nil
}

// List returns matching records newest first.
func (m *MemStore) List(_ context.Context, f Filter) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Record
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if !matches(r, f) {
			continue
		}
		out = append(out, r)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func matches(r Record, f Filter) bool {
	if f.Algorithm != "" && r.Algorithm != f.Algorithm {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.Since.IsZero() && r.CreatedAt.Before(f.Since) {
		return false
	}
	return true
}
