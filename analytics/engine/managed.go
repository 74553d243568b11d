package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ManagedConfig configures a connection to the managed platform.
type ManagedConfig struct {
	// PlatformURL is the base URL of the managed platform API,
	// e.g. "https://platform.example.com".
	PlatformURL string

	// Token supplies the pre-issued platform bearer token, normally a
	// credential.Manager bound to the platform's token CLI or endpoint.
	Token TokenFunc

	// HTTPClient overrides the HTTP client. Nil uses a default client;
	// per-call deadlines come from the caller's context.
	HTTPClient *http.Client

	// DefaultSize is used when a caller requests an empty size.
	DefaultSize Size

	// ProvisionTimeout bounds how long DiscoverOrProvision waits for a
	// freshly provisioned engine to become ready. Default 10 minutes.
	ProvisionTimeout time.Duration

	// ProvisionPollInterval is the wait between readiness polls during
	// provisioning. Default 5 seconds.
	ProvisionPollInterval time.Duration
}

// ManagedConnection talks to the managed platform: engines are provisioned
// and deleted through the platform API and each engine exposes its job API
// under a platform-routed URL. Engine uptime is metered.
type ManagedConnection struct {
	cfg ManagedConfig
	api *apiClient
	now func() time.Time
}

// NewManaged creates a managed-platform connection.
func NewManaged(cfg ManagedConfig) (*ManagedConnection, error) {
	if cfg.PlatformURL == "" {
		return nil, fmt.Errorf("managed connection: PlatformURL is required")
	}
	if cfg.Token == nil {
		return nil, fmt.Errorf("managed connection: Token is required")
	}
	if cfg.DefaultSize == "" {
		cfg.DefaultSize = SizeE4
	}
	if cfg.ProvisionTimeout <= 0 {
		cfg.ProvisionTimeout = 10 * time.Minute
	}
	if cfg.ProvisionPollInterval <= 0 {
		cfg.ProvisionPollInterval = 5 * time.Second
	}
	cfg.PlatformURL = strings.TrimRight(cfg.PlatformURL, "/")
	return &ManagedConnection{
		cfg: cfg,
		api: newAPIClient(cfg.HTTPClient, cfg.Token),
		now: time.Now,
	}, nil
}

func (c *ManagedConnection) enginesURL() string {
	return c.cfg.PlatformURL + "/api/graphanalytics/v1/engines"
}

func (c *ManagedConnection) engineBaseURL(id string) string {
	return c.cfg.PlatformURL + "/graph-analytics/engines/" + id
}

// managedEngine is the platform's engine resource shape.
type managedEngine struct {
	ID     string `json:"id"`
	SizeID string `json:"size_id"`
	Status struct {
		Phase     string    `json:"phase"`
		CreatedAt time.Time `json:"created_at"`
	} `json:"status"`
}

// normalizeEngine maps the platform's engine phase vocabulary onto the
// canonical Status set.
func (c *ManagedConnection) normalizeEngine(raw managedEngine) Handle {
	h := Handle{
		ID:        raw.ID,
		Size:      Size(raw.SizeID),
		BaseURL:   c.engineBaseURL(raw.ID),
		CreatedAt: raw.Status.CreatedAt,
		Metered:   true,
	}
	switch raw.Status.Phase {
	case "bootstrapping", "pending":
		h.Status = StatusProvisioning
	case "running", "ready":
		h.Status = StatusReady
	case "deleting", "deleted", "stopped":
		h.Status = StatusStopped
	default:
		h.Status = StatusError
	}
	return h
}

// DiscoverOrProvision returns a ready engine of the requested size.
//
// When a ready engine already exists and exclusive is false it is reused
// with Handle.Reused set, even if its size differs from the request: the
// platform bills per engine, and double-provisioning is how engines get
// orphaned. Otherwise a new engine is provisioned and polled until ready,
// bounded by ProvisionTimeout.
func (c *ManagedConnection) DiscoverOrProvision(ctx context.Context, size Size, exclusive bool) (Handle, error) {
	if size == "" {
		size = c.cfg.DefaultSize
	}

	if !exclusive {
		existing, err := c.ListEngines(ctx)
		if err != nil {
			return Handle{}, err
		}
		for _, h := range existing {
			if h.Status == StatusReady {
				h.Reused = true
				return h, nil
			}
		}
	}

	var created managedEngine
	payload := map[string]any{"size_id": string(size)}
	if err := c.api.do(ctx, http.MethodPost, c.enginesURL(), payload, &created); err != nil {
		return Handle{}, err
	}
	h := c.normalizeEngine(created)
	if h.CreatedAt.IsZero() {
		h.CreatedAt = c.now()
	}

	deadline := c.now().Add(c.cfg.ProvisionTimeout)
	for h.Status != StatusReady {
		if h.Status == StatusError {
			return Handle{}, &TransientError{Op: "provision engine", Cause: fmt.Errorf("engine %s entered error state", h.ID)}
		}
		if c.now().After(deadline) {
			return Handle{}, &TransientError{Op: "provision engine", Cause: fmt.Errorf("engine %s not ready after %v", h.ID, c.cfg.ProvisionTimeout)}
		}
		if err := sleepCtx(ctx, c.cfg.ProvisionPollInterval); err != nil {
			return Handle{}, err
		}
		var raw managedEngine
		if err := c.api.do(ctx, http.MethodGet, c.enginesURL()+"/"+h.ID, nil, &raw); err != nil {
			return Handle{}, err
		}
		created := h.CreatedAt
		h = c.normalizeEngine(raw)
		if h.CreatedAt.IsZero() {
			h.CreatedAt = created
		}
	}
	return h, nil
}

// managedJob is the platform's job envelope. The status is nested under
// status.state; normalizeJob flattens it into the canonical shape.
type managedJob struct {
	JobID  string `json:"job_id"`
	Status struct {
		State    string `json:"state"`
		Progress int    `json:"progress"`
	} `json:"status"`
	Result struct {
		GraphID     string `json:"graph_id"`
		RecordCount int64  `json:"record_count"`
	} `json:"result"`
	Error string `json:"error"`
}

func normalizeManagedJob(raw managedJob) Job {
	j := Job{
		ID:          raw.JobID,
		GraphID:     raw.Result.GraphID,
		ResultCount: raw.Result.RecordCount,
		Error:       raw.Error,
	}
	switch raw.Status.State {
	case "queued", "pending":
		j.Status = JobPending
	case "running", "loading", "storing":
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

// submit is the single job-submission primitive: every load, algorithm and
// store call is a payload variant of this POST.
func (c *ManagedConnection) submit(ctx context.Context, h Handle, path string, payload any) (Job, error) {
	var raw managedJob
	if err := c.api.do(ctx, http.MethodPost, h.BaseURL+path, payload, &raw); err != nil {
		return Job{}, err
	}
	return normalizeManagedJob(raw), nil
}

// LoadGraph submits a graph load job.
func (c *ManagedConnection) LoadGraph(ctx context.Context, h Handle, graph GraphSpec) (Job, error) {
	payload := map[string]any{"database": graph.Database}
	if graph.NamedGraph != "" {
		payload["graph_name"] = graph.NamedGraph
	} else {
		payload["vertex_collections"] = graph.VertexCollections
		payload["edge_collections"] = graph.EdgeCollections
	}
	return c.submit(ctx, h, "/v1/loaddata", payload)
}

// RunAlgorithm submits one algorithm job against a loaded graph.
func (c *ManagedConnection) RunAlgorithm(ctx context.Context, h Handle, algorithm, graphID string, params map[string]any) (Job, error) {
	payload := map[string]any{
		"algorithm": algorithm,
		"graph_id":  graphID,
		"params":    params,
	}
	return c.submit(ctx, h, "/v1/algorithm", payload)
}

// StoreResults writes job results back into the target collection.
func (c *ManagedConnection) StoreResults(ctx context.Context, h Handle, spec StoreSpec, jobIDs []string) (Job, error) {
	payload := map[string]any{
		"target_collection": spec.TargetCollection,
		"attribute_names":   spec.AttributeNames,
		"job_ids":           jobIDs,
	}
	return c.submit(ctx, h, "/v1/storeresults", payload)
}

// GetJob returns an idempotent status snapshot.
func (c *ManagedConnection) GetJob(ctx context.Context, h Handle, jobID string) (Job, error) {
	var raw managedJob
	if err := c.api.do(ctx, http.MethodGet, h.BaseURL+"/v1/jobs/"+jobID, nil, &raw); err != nil {
		return Job{}, err
	}
	return normalizeManagedJob(raw), nil
}

// Teardown deletes the engine on the platform. A 404 means the engine is
// already gone and counts as success.
func (c *ManagedConnection) Teardown(ctx context.Context, h Handle) error {
	err := c.api.do(ctx, http.MethodDelete, c.enginesURL()+"/"+h.ID, nil, nil)
	if notFound(err) {
		return nil
	}
	return err
}

// ListEngines enumerates engines visible to this platform credential.
func (c *ManagedConnection) ListEngines(ctx context.Context) ([]Handle, error) {
	var raw struct {
		Engines []managedEngine `json:"engines"`
	}
	if err := c.api.do(ctx, http.MethodGet, c.enginesURL(), nil, &raw); err != nil {
		return nil, err
	}
	handles := make([]Handle, 0, len(raw.Engines))
	for _, e := range raw.Engines {
		handles = append(handles, c.normalizeEngine(e))
	}
	return handles, nil
}

// ListGraphs enumerates graphs loaded on the engine.
func (c *ManagedConnection) ListGraphs(ctx context.Context, h Handle) ([]string, error) {
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
func (c *ManagedConnection) ListJobs(ctx context.Context, h Handle) ([]Job, error) {
	var raw struct {
		Jobs []managedJob `json:"jobs"`
	}
	if err := c.api.do(ctx, http.MethodGet, h.BaseURL+"/v1/jobs", nil, &raw); err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raw.Jobs))
	for _, j := range raw.Jobs {
		jobs = append(jobs, normalizeManagedJob(j))
	}
	return jobs, nil
}

// notFound reports whether err is a 404 RequestError.
func notFound(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.NotFound()
}

// sleepCtx sleeps for d or returns early with the context error.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
