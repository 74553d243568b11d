// Package catalog records completed executions for later querying. The
// orchestrator appends one record per terminal execution result; the
// catalog never influences orchestration. Appends are fire-and-forget at
// the call site: a failed catalog write is logged as a warning and must not
// fail or roll back the execution it describes.
package catalog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Record is one completed execution, as handed to the catalog.
type Record struct {
	// ID uniquely identifies the record; the orchestrator uses the
	// execution's run ID.
	ID string `json:"id"`

	// Name is the caller-supplied analysis name.
	Name string `json:"name"`

	// Algorithm and AlgorithmVersion identify what ran.
	Algorithm        string `json:"algorithm"`
	AlgorithmVersion string `json:"algorithm_version"`

	// Parameters are the algorithm options as submitted.
	Parameters map[string]any `json:"parameters"`

	// Graph describes the source graph: the named graph, or the
	// explicit collection lists joined for display.
	Graph string `json:"graph"`

	// TargetCollection is where results were written.
	TargetCollection string `json:"target_collection"`

	// ResultCount is the number of documents written.
	ResultCount int64 `json:"result_count"`

	// Elapsed is the execution's wall time.
	Elapsed time.Duration `json:"elapsed"`

	// CostUSD is the estimated engine cost.
	CostUSD float64 `json:"cost_usd"`

	// Status is the terminal execution status.
	Status string `json:"status"`

	// Error is the classified error text for failed executions.
	Error string `json:"error,omitempty"`

	// CreatedAt is when the record was appended.
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects records for List. Zero fields match everything; set
// fields combine with AND.
type Filter struct {
	// Algorithm matches records by algorithm id.
	Algorithm string

	// Status matches records by terminal status.
	Status string

	// Since excludes records created before this instant.
	Since time.Time

	// Limit caps the number of returned records; zero means no cap.
	Limit int
}

// Store persists and queries execution records.
type Store interface {
	// Append adds one record.
	Append(ctx context.Context, r Record) error

	// Get returns the record with the given ID, or ErrNotFound.
	Get(ctx context.Context, id string) (Record, error)

	// List returns records matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]Record, error)
}
