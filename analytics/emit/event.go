package emit

// Event is one observability event from an execution.
type Event struct {
	// RunID identifies the execution that emitted the event.
	RunID string

	// Phase is the execution phase the event belongs to, e.g.
	// "engine_ready" or "cleaned". Empty for events not tied to a phase.
	Phase string

	// EngineID identifies the engine involved, once one exists.
	EngineID string

	// JobID identifies the job involved, for job-scoped events.
	JobID string

	// Msg is a short machine-greppable event name, e.g. "phase",
	// "retry", "engine_reused", "cleanup_failed".
	Msg string

	// Meta carries event-specific structured data. Common keys:
	// "attempt", "backoff_ms", "error", "status", "cost_usd",
	// "elapsed_ms", "documents".
	Meta map[string]any
}
