package analytics

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ArthurKeen/graph-analytics-go/analytics/catalog"
	"github.com/ArthurKeen/graph-analytics-go/analytics/credential"
	"github.com/ArthurKeen/graph-analytics-go/analytics/emit"
	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

// Phase names the stages an execution moves through, in order. The Result
// records the furthest phase reached, which on failure identifies where
// the execution stopped.
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseCredentialReady  Phase = "credential_ready"
	PhaseEngineReady      Phase = "engine_ready"
	PhaseGraphLoaded      Phase = "graph_loaded"
	PhaseAlgorithmRunning Phase = "algorithm_running"
	PhaseResultsStored    Phase = "results_stored"
	PhaseCleaned          Phase = "cleaned"
)

// Status is the terminal outcome of one execution.
type Status string

const (
	// StatusCompleted: all phases succeeded including teardown.
	StatusCompleted Status = "completed"

	// StatusFailed: a phase failed; teardown was still attempted.
	StatusFailed Status = "failed"

	// StatusPartial: the analysis succeeded but teardown failed. The
	// engine may still be running and accruing cost.
	StatusPartial Status = "partial"

	// StatusCancelled: the caller's context was cancelled; teardown ran
	// on a detached context.
	StatusCancelled Status = "cancelled"

	// StatusSkipped: the request was never started because an earlier
	// request in its batch failed.
	StatusSkipped Status = "skipped"
)

// Result is the full account of one execution. It is always populated,
// whether the execution succeeded or failed.
type Result struct {
	// RunID uniquely identifies the execution across events, metrics
	// and the catalog.
	RunID string

	// Request echoes the request that ran.
	Request Request

	// Status is the terminal outcome.
	Status Status

	// Phase is the furthest phase reached.
	Phase Phase

	// Engine is the handle used, zero if acquisition never happened.
	Engine engine.Handle

	// Jobs are the terminal snapshots of every engine job the
	// execution ran, in order: load, algorithm, store.
	Jobs []engine.Job

	// DocumentsWritten is the number of result documents written back.
	DocumentsWritten int64

	// Elapsed is the execution's wall time including teardown.
	Elapsed time.Duration

	// CostUSD is the estimated metered engine cost. Zero for unmetered
	// engines and for executions that never acquired one.
	CostUSD float64

	// Err is the primary failure, nil on success.
	Err error

	// CleanupErr is set when teardown failed. It never masks Err.
	CleanupErr error
}

// Option configures an Executor.
type Option func(*Executor)

// WithCredentials installs a credential manager. The executor resolves a
// token before touching the engine so credential problems surface before
// anything is provisioned.
func WithCredentials(m *credential.Manager) Option {
	return func(x *Executor) { x.creds = m }
}

// WithEmitter routes execution events to the given emitter.
func WithEmitter(e emit.Emitter) Option {
	return func(x *Executor) {
		if e != nil {
			x.emitter = e
		}
	}
}

// WithMetrics installs Prometheus instrumentation.
func WithMetrics(m *Metrics) Option {
	return func(x *Executor) { x.metrics = m }
}

// WithCatalog records every finished execution in the given store. The
// append is fire-and-forget: a catalog failure is emitted as an event and
// never affects the execution result.
func WithCatalog(s catalog.Store) Option {
	return func(x *Executor) { x.catalog = s }
}

// WithRetryPolicy replaces the default retry policy for remote calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(x *Executor) { x.policy = p }
}

// WithPollInterval sets how often job status is polled. Default 5s.
func WithPollInterval(d time.Duration) Option {
	return func(x *Executor) {
		if d > 0 {
			x.pollInterval = d
		}
	}
}

// WithDefaultWaitTimeout sets the per-job wait budget used when a request
// does not carry its own. Default 10m.
func WithDefaultWaitTimeout(d time.Duration) Option {
	return func(x *Executor) {
		if d > 0 {
			x.defaultWait = d
		}
	}
}

// WithExclusiveEngine makes every execution provision a fresh engine
// instead of reusing a discovered one.
func WithExclusiveEngine() Option {
	return func(x *Executor) { x.exclusive = true }
}

// WithClock replaces the executor's time source and sleeper. Intended for
// tests and simulations; either argument may be nil to keep the default.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) Option {
	return func(x *Executor) {
		if now != nil {
			x.now = now
		}
		if sleep != nil {
			x.sleep = sleep
		}
	}
}

// WithCostEstimator replaces the default cost estimator.
func WithCostEstimator(c *CostEstimator) Option {
	return func(x *Executor) {
		if c != nil {
			x.cost = c
		}
	}
}

// Executor runs analysis requests against one engine connection. It is
// safe for concurrent use; each Execute call owns its engine handle for
// the duration of the call.
type Executor struct {
	conn    engine.Connection
	creds   *credential.Manager
	emitter emit.Emitter
	metrics *Metrics
	catalog catalog.Store
	policy  RetryPolicy
	cost    *CostEstimator

	pollInterval    time.Duration
	defaultWait     time.Duration
	teardownTimeout time.Duration
	exclusive       bool

	// injectable for tests
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	newRunID func() string
	rng      *rand.Rand
}

// NewExecutor builds an executor over a connection. The connection is
// required; everything else has working defaults.
func NewExecutor(conn engine.Connection, opts ...Option) (*Executor, error) {
	if conn == nil {
		return nil, &ConfigError{Message: "engine connection is required"}
	}
	x := &Executor{
		conn:            conn,
		emitter:         emit.NewNullEmitter(),
		policy:          DefaultRetryPolicy(),
		cost:            NewCostEstimator(),
		pollInterval:    5 * time.Second,
		defaultWait:     10 * time.Minute,
		teardownTimeout: 2 * time.Minute,
		now:             time.Now,
		sleep:           sleepCtx,
		newRunID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(x)
	}
	if err := x.policy.Validate(); err != nil {
		return nil, err
	}
	return x, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs one request through the full lifecycle: credential, engine
// acquisition, graph load, algorithm, result store, teardown.
//
// Teardown is guaranteed on every exit path once an engine is acquired:
// failure, job timeout, context cancellation (on a detached context), and
// panic (which is re-raised after cleanup). The returned error equals
// Result.Err; inspect the Result for the phase reached, jobs, cost and
// any cleanup error.
func (x *Executor) Execute(ctx context.Context, req Request) (res Result, err error) {
	res = Result{
		RunID:   x.newRunID(),
		Request: req,
		Status:  StatusFailed,
		Phase:   PhaseInit,
	}
	start := x.now()

	defer func() {
		res.Elapsed = x.now().Sub(start)
		x.finish(&res)
		err = res.Err
	}()

	x.phase(&res)

	if verr := req.Validate(); verr != nil {
		res.Err = verr
		return res, verr
	}

	if x.creds != nil {
		_, cerr := retryCall(ctx, x.policy, x.rng, x.sleep, x.onRetry(&res, "credential"),
			func(ctx context.Context) (string, error) { return x.creds.Token(ctx) })
		if cerr != nil {
			res.Err = cerr
			res.Status = x.classify(ctx, cerr)
			return res, cerr
		}
	}
	res.Phase = PhaseCredentialReady
	x.phase(&res)

	handle, aerr := retryCall(ctx, x.policy, x.rng, x.sleep, x.onRetry(&res, "provision"),
		func(ctx context.Context) (engine.Handle, error) {
			return x.conn.DiscoverOrProvision(ctx, req.EngineSize, x.exclusive)
		})
	if aerr != nil {
		res.Err = aerr
		res.Status = x.classify(ctx, aerr)
		return res, aerr
	}
	res.Engine = handle
	acquiredAt := x.now()
	x.metrics.EngineAcquired()
	if handle.Reused {
		x.event(&res, "engine_reused", map[string]any{
			"warning": "reusing an existing engine; it may carry graphs from a prior request",
		})
	}
	res.Phase = PhaseEngineReady
	x.phase(&res)

	defer func() {
		p := recover()
		if p != nil {
			res.Status = StatusFailed
			res.Err = fmt.Errorf("execution panicked: %v", p)
		}
		x.teardown(ctx, &res, acquiredAt)
		if p != nil {
			panic(p)
		}
	}()

	if rerr := x.run(ctx, req, handle, &res); rerr != nil {
		res.Err = rerr
		res.Status = x.classify(ctx, rerr)
		return res, rerr
	}
	res.Status = StatusCompleted
	return res, nil
}

// run drives the load / algorithm / store phases. The engine is already
// acquired; teardown is the caller's responsibility.
func (x *Executor) run(ctx context.Context, req Request, h engine.Handle, res *Result) error {
	budget := req.WaitTimeout
	if budget <= 0 {
		budget = x.defaultWait
	}

	loadJob, err := retryCall(ctx, x.policy, x.rng, x.sleep, x.onRetry(res, "load"),
		func(ctx context.Context) (engine.Job, error) {
			return x.conn.LoadGraph(ctx, h, req.Graph)
		})
	if err != nil {
		return err
	}
	loadJob, err = x.awaitJob(ctx, h, loadJob, "load", budget, res)
	res.Jobs = append(res.Jobs, loadJob)
	if err != nil {
		return err
	}
	graphID := loadJob.GraphID
	if graphID == "" {
		graphID = loadJob.ID
	}
	res.Phase = PhaseGraphLoaded
	x.phase(res)

	res.Phase = PhaseAlgorithmRunning
	x.phase(res)
	algoJob, err := retryCall(ctx, x.policy, x.rng, x.sleep, x.onRetry(res, "run"),
		func(ctx context.Context) (engine.Job, error) {
			return x.conn.RunAlgorithm(ctx, h, req.Algorithm, graphID, req.Parameters)
		})
	if err != nil {
		return err
	}
	algoJob, err = x.awaitJob(ctx, h, algoJob, "run", budget, res)
	res.Jobs = append(res.Jobs, algoJob)
	if err != nil {
		return err
	}

	storeJob, err := retryCall(ctx, x.policy, x.rng, x.sleep, x.onRetry(res, "store"),
		func(ctx context.Context) (engine.Job, error) {
			return x.conn.StoreResults(ctx, h, req.Target, []string{algoJob.ID})
		})
	if err != nil {
		return err
	}
	storeJob, err = x.awaitJob(ctx, h, storeJob, "store", budget, res)
	res.Jobs = append(res.Jobs, storeJob)
	if err != nil {
		return err
	}
	res.DocumentsWritten = storeJob.ResultCount
	x.metrics.AddDocumentsWritten(int(storeJob.ResultCount))
	res.Phase = PhaseResultsStored
	x.phase(res)
	return nil
}

// awaitJob polls a job until it reaches a terminal status or the wait
// budget is spent. A failed job becomes *engine.JobFailedError, a
// cancelled job likewise, and a spent budget becomes *TimeoutError. The
// input job is checked first, so a job submitted already terminal is
// never polled.
func (x *Executor) awaitJob(ctx context.Context, h engine.Handle, job engine.Job, op string, budget time.Duration, res *Result) (engine.Job, error) {
	start := x.now()
	for {
		if job.Status.Terminal() {
			x.metrics.RecordJobWait(op, x.now().Sub(start))
			switch job.Status {
			case engine.JobCompleted:
				return job, nil
			case engine.JobCancelled:
				return job, &engine.JobFailedError{JobID: job.ID, Reason: "job was cancelled by the engine"}
			default:
				reason := job.Error
				if reason == "" {
					reason = "job failed without a reported reason"
				}
				return job, &engine.JobFailedError{JobID: job.ID, Reason: reason}
			}
		}
		if x.now().Sub(start) >= budget {
			return job, &TimeoutError{JobID: job.ID, Budget: budget}
		}
		if err := x.sleep(ctx, x.pollInterval); err != nil {
			return job, err
		}
		next, err := retryCall(ctx, x.policy, x.rng, x.sleep, x.onRetry(res, op),
			func(ctx context.Context) (engine.Job, error) {
				return x.conn.GetJob(ctx, h, job.ID)
			})
		if err != nil {
			return job, err
		}
		job = next
	}
}

// teardown releases the engine on a context detached from the caller's
// cancellation, so a cancelled execution still cleans up. A teardown
// failure becomes Result.CleanupErr; it downgrades a completed result to
// partial but never overrides a primary failure.
func (x *Executor) teardown(ctx context.Context, res *Result, acquiredAt time.Time) {
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), x.teardownTimeout)
	defer cancel()

	_, terr := retryCall(tctx, x.policy, x.rng, x.sleep, x.onRetry(res, "teardown"),
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, x.conn.Teardown(ctx, res.Engine)
		})
	x.metrics.EngineReleased()

	if terr != nil {
		res.CleanupErr = &CleanupError{EngineID: res.Engine.ID, Cause: terr}
		if res.Status == StatusCompleted {
			res.Status = StatusPartial
		}
		x.event(res, "cleanup_failed", map[string]any{"error": terr.Error()})
	} else {
		res.Engine.Status = engine.StatusStopped
		if res.Err == nil {
			res.Phase = PhaseCleaned
			x.phase(res)
		}
	}

	// Cost covers the engine's whole metered life for engines this
	// execution provisioned, and only the held interval for reused ones.
	costStart := res.Engine.CreatedAt
	if res.Engine.Reused || costStart.IsZero() {
		costStart = acquiredAt
	}
	res.CostUSD = x.cost.Estimate(res.Engine.Size, x.now().Sub(costStart), res.Engine.Metered)
	x.metrics.AddCost(res.Engine.Size, res.CostUSD)
}

// finish records the terminal result: metrics, a result event, and a
// fire-and-forget catalog append.
func (x *Executor) finish(res *Result) {
	x.metrics.RecordExecution(res.Request.Algorithm, res.Status, res.Elapsed)

	meta := map[string]any{
		"status":     string(res.Status),
		"elapsed_ms": res.Elapsed.Milliseconds(),
		"documents":  res.DocumentsWritten,
		"cost_usd":   res.CostUSD,
	}
	if res.Err != nil {
		meta["error"] = res.Err.Error()
	}
	x.event(res, "result", meta)

	if x.catalog == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec := catalog.Record{
		ID:               res.RunID,
		Name:             res.Request.Name,
		Algorithm:        res.Request.Algorithm,
		AlgorithmVersion: algorithmVersion(res.Request),
		Parameters:       res.Request.Parameters,
		Graph:            res.Request.graphLabel(),
		TargetCollection: res.Request.Target.TargetCollection,
		ResultCount:      res.DocumentsWritten,
		Elapsed:          res.Elapsed,
		CostUSD:          res.CostUSD,
		Status:           string(res.Status),
		CreatedAt:        x.now(),
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	if cerr := x.catalog.Append(cctx, rec); cerr != nil {
		x.event(res, "catalog_error", map[string]any{"error": cerr.Error()})
	}
}

func algorithmVersion(req Request) string {
	if req.AlgorithmVersion != "" {
		return req.AlgorithmVersion
	}
	return "1"
}

// classify maps a failure to its terminal status. Failures caused by the
// caller's cancellation report cancelled rather than failed.
func (x *Executor) classify(ctx context.Context, err error) Status {
	if ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return StatusCancelled
	}
	return StatusFailed
}

// onRetry builds the retry callback for one named operation: it counts
// the retry and emits an event carrying the attempt, backoff and cause.
func (x *Executor) onRetry(res *Result, op string) func(int, time.Duration, error) {
	return func(attempt int, wait time.Duration, err error) {
		x.metrics.IncrementRetries(op)
		x.event(res, "retry", map[string]any{
			"operation":  op,
			"attempt":    attempt,
			"backoff_ms": wait.Milliseconds(),
			"error":      err.Error(),
		})
	}
}

func (x *Executor) phase(res *Result) {
	x.emitter.Emit(emit.Event{
		RunID:    res.RunID,
		Phase:    string(res.Phase),
		EngineID: res.Engine.ID,
		Msg:      "phase",
	})
}

func (x *Executor) event(res *Result, msg string, meta map[string]any) {
	x.emitter.Emit(emit.Event{
		RunID:    res.RunID,
		Phase:    string(res.Phase),
		EngineID: res.Engine.ID,
		Msg:      msg,
		Meta:     meta,
	})
}
