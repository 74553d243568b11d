// Package emit carries observability events out of the orchestrator.
// Executions emit an event at every phase transition, retry, warning, and
// terminal result; emitters route them to logs, memory buffers, or
// OpenTelemetry spans.
package emit

// Emitter receives execution events.
//
// Implementations must be safe for concurrent use (several executions may
// share one emitter), must not block the execution, and must not panic:
// observability failures are logged internally and swallowed.
type Emitter interface {
	// Emit delivers one event. Errors are handled inside the emitter.
	Emit(event Event)
}
