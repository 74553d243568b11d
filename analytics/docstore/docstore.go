// Package docstore is the boundary to the document database that holds the
// source graph data and receives algorithm results. The orchestrator needs
// very little from it: document counts, batched attribute writes, and the
// vertex/edge collection membership of a named graph. Everything else about
// the database is out of scope and deliberately absent from this interface.
package docstore

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a collection or named graph does not exist.
var ErrNotFound = errors.New("not found")

// AttributeUpdate assigns attribute values to one existing document,
// identified by key.
type AttributeUpdate struct {
	// Key is the document key within the collection.
	Key string

	// Attributes maps attribute names to the values to write.
	Attributes map[string]any
}

// Store is the collection abstraction the orchestrator consumes.
type Store interface {
	// Count returns the number of documents in a collection.
	Count(ctx context.Context, collection string) (int64, error)

	// WriteAttributes patches a batch of documents in one call. Missing
	// documents fail the batch.
	WriteAttributes(ctx context.Context, collection string, updates []AttributeUpdate) error

	// NamedGraph returns the vertex and edge collection lists registered
	// for a named graph. ErrNotFound when no such graph exists.
	NamedGraph(ctx context.Context, name string) (vertices, edges []string, err error)
}

// UnavailableError wraps a store failure that is worth retrying: the
// database was unreachable or answered with a server error. All other
// failures are permanent for the request that caused them.
type UnavailableError struct {
	Op    string
	Cause error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("document store: %s: %v", e.Op, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }
