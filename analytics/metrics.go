package analytics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

// Metrics provides Prometheus-compatible instrumentation for execution
// monitoring. All metrics are namespaced with "graphanalytics_".
//
// Metrics exposed:
//
// 1. executions_total (counter): Completed executions.
// Labels: algorithm, status (completed/failed/partial/cancelled).
//
// 2. execution_duration_seconds (histogram): End-to-end execution time
// including provisioning, job waits and teardown.
// Labels: algorithm.
//
// 3. job_wait_seconds (histogram): Time spent polling a single job from
// submission to terminal status.
// Labels: operation (load/run/store).
//
// 4. retries_total (counter): Transient-failure retries across all
// remote calls.
// Labels: operation.
//
// 5. engines_active (gauge): Engines currently held by in-flight
// executions.
//
// 6. cost_usd_total (counter): Estimated metered spend.
// Labels: size.
//
// 7. documents_written_total (counter): Result documents written back
// to the document store.
//
// A nil *Metrics is valid and records nothing, so instrumentation sites
// never need nil checks.
//
// Usage:
//
//	registry := prometheus.NewRegistry()
//	metrics := NewMetrics(registry)
//	exec := NewExecutor(conn, creds, WithMetrics(metrics))
//	http.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
type Metrics struct {
	executions        *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	jobWait           *prometheus.HistogramVec
	retries           *prometheus.CounterVec
	enginesActive     prometheus.Gauge
	cost              *prometheus.CounterVec
	documentsWritten  prometheus.Counter
}

// NewMetrics creates and registers all execution metrics with the given
// registry. A nil registry uses prometheus.DefaultRegisterer.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	m := &Metrics{}

	m.executions = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphanalytics",
		Name:      "executions_total",
		Help:      "Completed analytics executions by algorithm and final status",
	}, []string{"algorithm", "status"})

	m.executionDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "graphanalytics",
		Name:      "execution_duration_seconds",
		Help:      "End-to-end execution time including provisioning and teardown",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
	}, []string{"algorithm"})

	m.jobWait = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "graphanalytics",
		Name:      "job_wait_seconds",
		Help:      "Time from job submission to terminal status",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"operation"}) // operation: load, run, store

	m.retries = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphanalytics",
		Name:      "retries_total",
		Help:      "Transient-failure retries across all remote calls",
	}, []string{"operation"})

	m.enginesActive = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: "graphanalytics",
		Name:      "engines_active",
		Help:      "Engines currently held by in-flight executions",
	})

	m.cost = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: "graphanalytics",
		Name:      "cost_usd_total",
		Help:      "Estimated metered engine spend in US dollars",
	}, []string{"size"})

	m.documentsWritten = factory.NewCounter(prometheus.CounterOpts{
		Namespace: "graphanalytics",
		Name:      "documents_written_total",
		Help:      "Result documents written back to the document store",
	})

	return m
}

// RecordExecution records a finished execution's status and duration.
func (m *Metrics) RecordExecution(algorithm string, status Status, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.executions.WithLabelValues(algorithm, string(status)).Inc()
	m.executionDuration.WithLabelValues(algorithm).Observe(elapsed.Seconds())
}

// RecordJobWait records how long a job took to reach a terminal status.
func (m *Metrics) RecordJobWait(operation string, wait time.Duration) {
	if m == nil {
		return
	}
	m.jobWait.WithLabelValues(operation).Observe(wait.Seconds())
}

// IncrementRetries counts one retry of a remote operation.
func (m *Metrics) IncrementRetries(operation string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(operation).Inc()
}

// EngineAcquired marks an engine as held by an execution.
func (m *Metrics) EngineAcquired() {
	if m == nil {
		return
	}
	m.enginesActive.Inc()
}

// EngineReleased marks an engine as released after teardown.
func (m *Metrics) EngineReleased() {
	if m == nil {
		return
	}
	m.enginesActive.Dec()
}

// AddCost accumulates estimated spend for a metered engine size.
func (m *Metrics) AddCost(size engine.Size, usd float64) {
	if m == nil || usd <= 0 {
		return
	}
	m.cost.WithLabelValues(string(size)).Add(usd)
}

// AddDocumentsWritten counts result documents written to the store.
func (m *Metrics) AddDocumentsWritten(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.documentsWritten.Add(float64(n))
}
