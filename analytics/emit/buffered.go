package emit

import "sync"

// BufferedEmitter stores events in memory, organized by run ID. Intended
// for tests and post-execution analysis; it grows without bound, so it is
// the wrong emitter for a long-lived production process.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
}

// NewBufferedEmitter creates an empty buffered emitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.RunID] = append(b.events[event.RunID], event)
}

// History returns a copy of all events for a run, in emission order.
func (b *BufferedEmitter) History(runID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[runID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// HistoryByMsg returns a run's events with the given message name.
func (b *BufferedEmitter) HistoryByMsg(runID, msg string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []Event
	for _, e := range b.events[runID] {
		if e.Msg == msg {
			out = append(out, e)
		}
	}
	return out
}

// Clear drops all events for a run. An empty runID drops everything.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
