package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics/docstore"
)

// selfHostedID is the fixed handle ID for the single self-hosted engine
// service. Discovery always resolves to the same id, so repeated
// DiscoverOrProvision calls are trivially idempotent.
const selfHostedID = "selfhosted"

// SelfHostedConfig configures a connection to a self-hosted engine service.
type SelfHostedConfig struct {
	// EngineURL is the engine service endpoint, e.g. "http://localhost:9999".
	EngineURL string

	// Token supplies the bearer JWT, normally a credential.Manager bound
	// to the database login endpoint.
	Token TokenFunc

	// Database is the database the engine reads graph data from.
	Database string

	// Docs resolves named graphs into collection lists and receives
	// result write-backs. The self-hosted engine has no named-graph
	// lookup and no server-side result store, so both go through the
	// document store.
	Docs docstore.Store

	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client

	// StoreBatchSize bounds the number of documents per write-back
	// batch. Default 1000.
	StoreBatchSize int
}

// SelfHostedConnection talks to a single long-running engine service at a
// fixed address. The engine cannot be provisioned or resized from here;
// DiscoverOrProvision only verifies the service is reachable. Uptime is not
// metered, so executions against this backend cost zero.
type SelfHostedConnection struct {
	cfg SelfHostedConfig
	api *apiClient
	now func() time.Time
}

// NewSelfHosted creates a self-hosted connection.
func NewSelfHosted(cfg SelfHostedConfig) (*SelfHostedConnection, error) {
	if cfg.EngineURL == "" {
		return nil, fmt.Errorf("self-hosted connection: EngineURL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("self-hosted connection: Token is required")
	}
	if cfg.Docs == nil {
		return nil, fmt.Errorf("self-hosted connection: Docs is required")
	}
	if cfg.StoreBatchSize <= 0 {
		cfg.StoreBatchSize = 1000
	}
	cfg.EngineURL = strings.TrimRight(cfg.EngineURL, "/")
	return &SelfHostedConnection{
		cfg: cfg,
		api: newAPIClient(cfg.HTTPClient, cfg.Token),
		now: time.Now,
	}, nil
}

// DiscoverOrProvision verifies the engine service is reachable and returns
// its handle. The requested size is ignored: a self-hosted engine has
// whatever memory its host has. The exclusive flag is likewise meaningless
// here since there is exactly one engine.
func (c *SelfHostedConnection) DiscoverOrProvision(ctx context.Context, _ Size, _ bool) (Handle, error) {
	var health struct {
		Status    string    `json:"status"`
		StartedAt time.Time `json:"started_at"`
	}
	if err := c.api.do(ctx, http.MethodGet, c.cfg.EngineURL+"/v1/health", nil, &health); err != nil {
		return Handle{}, err
	}
	if health.Status != "ok" {
		return Handle{}, fmt.Errorf("self-hosted engine unhealthy (%q): %w", health.Status, ErrNoEngine)
	}
	created := health.StartedAt
	if created.IsZero() {
		created = c.now()
	}
	return Handle{
		ID:        selfHostedID,
		Size:      "host",
		Status:    StatusReady,
		BaseURL:   c.cfg.EngineURL,
		CreatedAt: created,
		Metered:   false,
	}, nil
}

// selfHostedJob is the self-hosted engine's job envelope. Unlike the
// managed platform it reports status as a flat string.
type selfHostedJob struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	GraphID     string `json:"graph_id"`
	ResultCount int64  `json:"result_count"`
	ErrorMsg    string `json:"error_message"`
}

func normalizeSelfHostedJob(raw selfHostedJob) Job {
	j := Job{
		ID:          raw.ID,
		GraphID:     raw.GraphID,
		ResultCount: raw.ResultCount,
		Error:       raw.ErrorMsg,
	}
	switch raw.Status {
	case "queued", "pending":
		j.Status = JobPending
	case "running":
		j.Status = JobRunning
	case "done", "completed":
		j.Status = JobCompleted
	case "cancelled":
		j.Status = JobCancelled
	default:
		j.Status = JobFailed
	}
	return j
}

func (c *SelfHostedConnection) submit(ctx context.Context, h Handle, path string, payload any) (Job, error) {
	var raw selfHostedJob
	if err := c.api.do(ctx, http.MethodPost, h.BaseURL+path, payload, &raw); err != nil {
		return Job{}, err
	}
	return normalizeSelfHostedJob(raw), nil
}

// LoadGraph submits a graph load job. Named graphs are resolved into
// explicit collection lists through the document store first, because the
// self-hosted engine only accepts explicit lists.
func (c *SelfHostedConnection) LoadGraph(ctx context.Context, h Handle, graph GraphSpec) (Job, error) {
	vertices, edges := graph.VertexCollections, graph.EdgeCollections
	if graph.NamedGraph != "" {
		var err error
		vertices, edges, err = c.cfg.Docs.NamedGraph(ctx, graph.NamedGraph)
		if err != nil {
			return Job{}, classifyDocstoreErr("resolve named graph", err)
		}
	}
	database := graph.Database
	if database == "" {
		database = c.cfg.Database
	}
	payload := map[string]any{
		"database":           database,
		"vertex_collections": vertices,
		"edge_collections":   edges,
	}
	return c.submit(ctx, h, "/v1/loaddata", payload)
}

// RunAlgorithm submits one algorithm job against a loaded graph.
func (c *SelfHostedConnection) RunAlgorithm(ctx context.Context, h Handle, algorithm, graphID string, params map[string]any) (Job, error) {
	payload := map[string]any{
		"algorithm": algorithm,
		"graph_id":  graphID,
		"params":    params,
	}
	return c.submit(ctx, h, "/v1/algorithm", payload)
}

// StoreResults fetches each job's results from the engine and writes them
// into the target collection through the document store. The self-hosted
// engine has no server-side store, so this runs client-side and returns a
// synthetic, already-completed store job.
func (c *SelfHostedConnection) StoreResults(ctx context.Context, h Handle, spec StoreSpec, jobIDs []string) (Job, error) {
	var written int64
	for i, jobID := range jobIDs {
		attr := attributeFor(spec.AttributeNames, i)
		if attr == "" {
			return Job{}, &RequestError{
				Op:         "store results",
				StatusCode: 400,
				Message:    fmt.Sprintf("no attribute name for job %s", jobID),
			}
		}

		var raw struct {
			Results []struct {
				Key   string `json:"key"`
				Value any    `json:"value"`
			} `json:"results"`
		}
		if err := c.api.do(ctx, http.MethodGet, h.BaseURL+"/v1/jobs/"+jobID+"/results", nil, &raw); err != nil {
			return Job{}, err
		}

		batch := make([]docstore.AttributeUpdate, 0, c.cfg.StoreBatchSize)
		flush := func() error {
			if len(batch) == 0 {
				return nil
			}
			if err := c.cfg.Docs.WriteAttributes(ctx, spec.TargetCollection, batch); err != nil {
				return classifyDocstoreErr("write results", err)
			}
			written += int64(len(batch))
			batch = batch[:0]
			return nil
		}
		for _, r := range raw.Results {
			batch = append(batch, docstore.AttributeUpdate{
				Key:        r.Key,
				Attributes: map[string]any{attr: r.Value},
			})
			if len(batch) >= c.cfg.StoreBatchSize {
				if err := flush(); err != nil {
					return Job{}, err
				}
			}
		}
		if err := flush(); err != nil {
			return Job{}, err
		}
	}

	return Job{
		ID:          "store:" + strings.Join(jobIDs, ","),
		Status:      JobCompleted,
		ResultCount: written,
	}, nil
}

// attributeFor picks the attribute name for the i-th job. A single name
// applies to every job; otherwise names map positionally.
func attributeFor(names []string, i int) string {
	switch {
	case len(names) == 0:
		return ""
	case i < len(names):
		return names[i]
	default:
		return names[len(names)-1]
	}
}

// GetJob returns an idempotent status snapshot. Synthetic store jobs are
// already terminal and are answered locally without a remote call.
func (c *SelfHostedConnection) GetJob(ctx context.Context, h Handle, jobID string) (Job, error) {
	if strings.HasPrefix(jobID, "store:") {
		return Job{ID: jobID, Status: JobCompleted}, nil
	}
	var raw selfHostedJob
	if err := c.api.do(ctx, http.MethodGet, h.BaseURL+"/v1/jobs/"+jobID, nil, &raw); err != nil {
		return Job{}, err
	}
	return normalizeSelfHostedJob(raw), nil
}

// Teardown releases engine memory by deleting every loaded graph. The
// service itself keeps running; there is nothing to deprovision. Graphs
// that disappeared in the meantime are fine.
func (c *SelfHostedConnection) Teardown(ctx context.Context, h Handle) error {
	graphs, err := c.ListGraphs(ctx, h)
	if err != nil {
		if notFound(err) {
			return nil
		}
		return err
	}
	for _, id := range graphs {
		if err := c.api.do(ctx, http.MethodDelete, h.BaseURL+"/v1/graphs/"+id, nil, nil); err != nil && !notFound(err) {
			return err
		}
	}
	return nil
}

// ListEngines returns the single self-hosted engine, or an empty list when
// the service is unreachable.
func (c *SelfHostedConnection) ListEngines(ctx context.Context) ([]Handle, error) {
	h, err := c.DiscoverOrProvision(ctx, "", false)
	if err != nil {
		if errors.Is(err, ErrNoEngine) {
			return nil, nil
		}
		return nil, err
	}
	return []Handle{h}, nil
}

// ListGraphs enumerates graphs loaded on the engine.
func (c *SelfHostedConnection) ListGraphs(ctx context.Context, h Handle) ([]string, error) {
	var raw struct {
		Graphs []struct {
			GraphID string `json:"graph_id"`
		} `json:"graphs"`
	}
	if err := c.api.do(ctx, http.MethodGet, h.BaseURL+"/v1/graphs", nil, &raw); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(raw.Graphs))
	for _, g := range raw.Graphs {
		ids = append(ids, g.GraphID)
	}
	return ids, nil
}

// ListJobs enumerates jobs known to the engine.
func (c *SelfHostedConnection) ListJobs(ctx context.Context, h Handle) ([]Job, error) {
	var raw struct {
		Jobs []selfHostedJob `json:"jobs"`
	}
	if err := c.api.do(ctx, http.MethodGet, h.BaseURL+"/v1/jobs", nil, &raw); err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raw.Jobs))
	for _, j := range raw.Jobs {
		jobs = append(jobs, normalizeSelfHostedJob(j))
	}
	return jobs, nil
}

// classifyDocstoreErr maps document store failures into the engine error
// taxonomy: unavailability is retryable, anything else is permanent.
func classifyDocstoreErr(op string, err error) error {
	var ue *docstore.UnavailableError
	if errors.As(err, &ue) {
		return &TransientError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}
