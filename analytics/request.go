// Package analytics orchestrates graph-algorithm jobs against a remote
// analytics engine. The algorithms themselves run remotely; this package
// owns the lifecycle around them: credential acquisition, engine
// provisioning, graph loading, job submission and polling, result
// write-back, cost estimation, and the guarantee that the engine is torn
// down on every exit path.
package analytics

import (
	"strings"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

// Algorithm identifiers accepted by both backends.
const (
	AlgorithmPageRank         = "pagerank"
	AlgorithmWCC              = "wcc"
	AlgorithmSCC              = "scc"
	AlgorithmLabelPropagation = "labelpropagation"
)

func knownAlgorithm(name string) bool {
	switch name {
	case AlgorithmPageRank, AlgorithmWCC, AlgorithmSCC, AlgorithmLabelPropagation:
		return true
	}
	return false
}

// Request is an immutable description of one analysis: which algorithm to
// run, against which graph, and where to write the results. A Request is
// created by the caller, validated before any remote call, and consumed
// once by an execution.
type Request struct {
	// Name labels the analysis in events and catalog records.
	Name string

	// Algorithm is one of the Algorithm* identifiers.
	Algorithm string

	// AlgorithmVersion is recorded in the execution catalog. Default "1".
	AlgorithmVersion string

	// Parameters are algorithm options passed through to the engine,
	// e.g. {"damping_factor": 0.85, "max_iterations": 50} for pagerank.
	Parameters map[string]any

	// Graph is the source graph: exactly one of a named graph or
	// explicit vertex/edge collection lists.
	Graph engine.GraphSpec

	// Target is the collection and attribute name(s) results are
	// written back to.
	Target engine.StoreSpec

	// EngineSize is the requested engine size. Empty uses the
	// connection's default; self-hosted engines ignore it.
	EngineSize engine.Size

	// WaitTimeout bounds how long each job is polled before it is
	// treated as failed with a timeout. Zero uses the executor default.
	WaitTimeout time.Duration
}

// Validate checks the request before any remote call is made. A failed
// validation is a *ConfigError and is never retried.
func (r Request) Validate() error {
	if r.Algorithm == "" {
		return &ConfigError{Message: "algorithm is required"}
	}
	if !knownAlgorithm(r.Algorithm) {
		return &ConfigError{Message: "unknown algorithm: " + r.Algorithm}
	}
	named := r.Graph.NamedGraph != ""
	explicit := r.Graph.Explicit()
	switch {
	case named && explicit:
		return &ConfigError{Message: "graph source is ambiguous: set either a named graph or explicit collections, not both"}
	case !named && !explicit:
		return &ConfigError{Message: "graph source is missing: set a named graph or explicit collections"}
	}
	if explicit && (len(r.Graph.VertexCollections) == 0 || len(r.Graph.EdgeCollections) == 0) {
		return &ConfigError{Message: "explicit graph source needs both vertex and edge collections"}
	}
	if r.Target.TargetCollection == "" {
		return &ConfigError{Message: "target collection is required"}
	}
	if len(r.Target.AttributeNames) == 0 {
		return &ConfigError{Message: "at least one result attribute name is required"}
	}
	if r.WaitTimeout < 0 {
		return &ConfigError{Message: "wait timeout cannot be negative"}
	}
	return nil
}

// graphLabel renders the graph source for events and catalog records.
func (r Request) graphLabel() string {
	if r.Graph.NamedGraph != "" {
		return r.Graph.NamedGraph
	}
	return strings.Join(r.Graph.VertexCollections, ",") + "|" + strings.Join(r.Graph.EdgeCollections, ",")
}
