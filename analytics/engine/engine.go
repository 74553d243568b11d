// Package engine provides the connection layer to a remote graph-analytics
// engine. Two deployment regimes are supported behind one interface:
//
//   - ManagedConnection: engines provisioned on demand through a managed
//     platform API, authenticated with a pre-issued platform token, with a
//     configurable engine size and metered billing.
//   - SelfHostedConnection: a single long-running engine service reachable at
//     a fixed host/port, authenticated with a JWT derived from a database
//     login, with a fixed size and no metered billing.
//
// The backend is selected by configuration at construction time. Downstream
// code depends only on the Connection interface and the canonical Handle and
// Job shapes produced by each backend's response adapter.
package engine

import (
	"context"
	"time"
)

// Size identifies an engine size class. Sizes determine memory capacity and
// the metered billing rate on managed deployments.
type Size string

// Engine size classes offered by the managed platform.
const (
	SizeE4  Size = "e4"
	SizeE8  Size = "e8"
	SizeE16 Size = "e16"
	SizeE32 Size = "e32"
)

// Status describes the lifecycle state of a provisioned engine.
type Status string

const (
	StatusProvisioning Status = "provisioning"
	StatusReady        Status = "ready"
	StatusStopped      Status = "stopped"
	StatusError        Status = "error"
)

// JobStatus is the canonical status vocabulary for engine jobs. Backend
// responses are normalized into this closed set regardless of how the
// backend spells or nests its status field.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state. Polling stops
// once a job reaches a terminal status.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Handle represents one provisioned engine instance.
//
// A Handle is owned by exactly one execution for its lifetime. Its Status
// transitions to StatusStopped when Teardown succeeds, regardless of the
// execution outcome.
type Handle struct {
	// ID is the backend-assigned engine or service identifier.
	ID string

	// Size is the engine size class the handle was provisioned with.
	Size Size

	// Status is the last observed engine status.
	Status Status

	// BaseURL is the resolved engine API endpoint.
	BaseURL string

	// CreatedAt marks when the engine was provisioned or discovered,
	// used for uptime-based cost computation.
	CreatedAt time.Time

	// Reused is true when DiscoverOrProvision returned an engine that
	// already existed rather than provisioning a new one. Callers should
	// surface this as a warning: reuse prevents orphaned engines but may
	// carry graphs loaded by a prior request.
	Reused bool

	// Metered is true when engine uptime is billed. Self-hosted engines
	// are not metered.
	Metered bool
}

// Job represents one asynchronous unit of work on an engine: a graph load,
// an algorithm run, or a result store. Jobs are tracked by polling; each
// GetJob call replaces the whole snapshot.
type Job struct {
	// ID is the backend-assigned job identifier.
	ID string

	// Status is the normalized job status.
	Status JobStatus

	// GraphID is set on completed load jobs and identifies the in-memory
	// graph the engine built.
	GraphID string

	// ResultCount is the number of rows or documents the job produced,
	// when the backend reports one.
	ResultCount int64

	// Error carries the backend's failure text for failed jobs.
	Error string
}

// GraphSpec references the source graph for a load operation. Exactly one
// of NamedGraph or the explicit collection lists must be set; Validate on
// the analysis request enforces this before any remote call is made.
type GraphSpec struct {
	// Database is the database holding the graph data.
	Database string

	// NamedGraph names a database-level graph whose vertex and edge
	// collection membership is resolved server-side (or, for backends
	// without named-graph support, through the document store).
	NamedGraph string

	// VertexCollections and EdgeCollections list the source collections
	// explicitly, as an alternative to NamedGraph.
	VertexCollections []string
	EdgeCollections   []string
}

// Explicit reports whether the graph source is explicit collection lists.
func (g GraphSpec) Explicit() bool {
	return len(g.VertexCollections) > 0 || len(g.EdgeCollections) > 0
}

// StoreSpec describes where algorithm results are written back.
type StoreSpec struct {
	// TargetCollection is the document collection receiving results.
	TargetCollection string

	// AttributeNames are the document attributes to write, one per
	// source job, in job order.
	AttributeNames []string
}

// Connection is the capability interface over one engine backend.
//
// All methods classify remote failures into the package error taxonomy:
// *TransientError for timeouts, connection resets and 5xx responses (safe
// to retry), *RequestError for 4xx responses (never retried), and
// *JobFailedError when the engine reports a failed job.
type Connection interface {
	// DiscoverOrProvision returns a ready engine of the requested size.
	// If a usable engine already exists and exclusive is false, it is
	// reused (Handle.Reused is set) rather than double-provisioned.
	DiscoverOrProvision(ctx context.Context, size Size, exclusive bool) (Handle, error)

	// LoadGraph submits a graph load job for the given source spec.
	LoadGraph(ctx context.Context, h Handle, graph GraphSpec) (Job, error)

	// RunAlgorithm submits one algorithm job against a loaded graph.
	// Algorithm-specific options are passed through as given.
	RunAlgorithm(ctx context.Context, h Handle, algorithm string, graphID string, params map[string]any) (Job, error)

	// GetJob returns an idempotent status snapshot for a job.
	GetJob(ctx context.Context, h Handle, jobID string) (Job, error)

	// StoreResults writes the results of the given jobs into the target
	// collection and returns the store job.
	StoreResults(ctx context.Context, h Handle, spec StoreSpec, jobIDs []string) (Job, error)

	// Teardown stops and releases the engine. It is best-effort: an
	// engine that is already gone is treated as success.
	Teardown(ctx context.Context, h Handle) error

	// ListEngines enumerates engines visible to this connection, for
	// discovery and cleanup audits.
	ListEngines(ctx context.Context) ([]Handle, error)

	// ListGraphs enumerates graphs currently loaded on the engine.
	ListGraphs(ctx context.Context, h Handle) ([]string, error)

	// ListJobs enumerates jobs known to the engine.
	ListJobs(ctx context.Context, h Handle) ([]Job, error)
}

// AuditOrphans returns engines older than maxAge that are not stopped.
// Operators run this as a cleanup audit: a non-empty result usually means a
// caller crashed hard enough to defeat the teardown guarantee, or another
// tool provisioned engines outside this orchestrator.
func AuditOrphans(ctx context.Context, conn Connection, maxAge time.Duration, now time.Time) ([]Handle, error) {
	engines, err := conn.ListEngines(ctx)
	if err != nil {
		return nil, err
	}
	var orphans []Handle
	for _, h := range engines {
		if h.Status == StatusStopped {
			continue
		}
		if now.Sub(h.CreatedAt) > maxAge {
			orphans = append(orphans, h)
		}
	}
	return orphans, nil
}
