package docstore

import (
	"context"
	"fmt"
	"sync"
)

// MemStore is an in-memory Store for tests and development. It holds
// collections as key->document maps and named graphs as collection lists.
// Safe for concurrent use.
type MemStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]map[string]any
	graphs      map[string]memGraph
}

type memGraph struct {
	vertices []string
	edges    []string
}

// NewMemStore creates an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		collections: make(map[string]map[string]map[string]any),
		graphs:      make(map[string]memGraph),
	}
}

// AddDocument inserts a document, creating the collection as needed.
func (m *MemStore) AddDocument(collection, key string, doc map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.collections[collection] == nil {
		m.collections[collection] = make(map[string]map[string]any)
	}
	if doc == nil {
		doc = make(map[string]any)
	}
	m.collections[collection][key] = doc
}

// AddNamedGraph registers a named graph with its collection lists.
func (m *MemStore) AddNamedGraph(name string, vertices, edges []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[name] = memGraph{vertices: vertices, edges: edges}
}

// Document returns a copy of one document, for assertions in tests.
func (m *MemStore) Document(collection, key string) (map[string]any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.collections[collection][key]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, true
}

// Count returns the document count of a collection.
func (m *MemStore) Count(_ context.Context, collection string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, ok := m.collections[collection]
	if !ok {
		return 0, fmt.Errorf("collection %s: %w", collection, ErrNotFound)
	}
	return int64(len(docs)), nil
}

// WriteAttributes patches documents in place. The whole batch fails if any
// document is missing, matching the HTTP store's semantics.
func (m *MemStore) WriteAttributes(_ context.Context, collection string, updates []AttributeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	docs, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s: %w", collection, ErrNotFound)
	}
	for _, u := range updates {
		if _, ok := docs[u.Key]; !ok {
			return fmt.Errorf("document %s/%s: %w", collection, u.Key, ErrNotFound)
		}
	}
	for _, u := range updates {
		for name, value := range u.Attributes {
			docs[u.Key][name] = value
		}
	}
	return nil
}

// NamedGraph returns the registered collection lists for a named graph.
func (m *MemStore) NamedGraph(_ context.Context, name string) ([]string, []string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.graphs[name]
	if !ok {
		return nil, nil, fmt.Errorf("graph %s: %w", name, ErrNotFound)
	}
	return append([]string(nil), g.vertices...), append([]string(nil), g.edges...), nil
}
