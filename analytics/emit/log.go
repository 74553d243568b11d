package emit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogEmitter writes events to a writer, either as human-readable text or
// as one JSON object per line (JSONL).
//
// Text output:
//
//	[phase] run=run-001 phase=engine_ready engine=eng-42
//
// JSON output:
//
//	{"run_id":"run-001","phase":"engine_ready","engine_id":"eng-42","msg":"phase"}
type LogEmitter struct {
	mu       sync.Mutex
	writer   io.Writer
	jsonMode bool
}

// NewLogEmitter creates a LogEmitter. A nil writer defaults to stdout.
func NewLogEmitter(writer io.Writer, jsonMode bool) *LogEmitter {
	if writer == nil {
		writer = os.Stdout
	}
	return &LogEmitter{writer: writer, jsonMode: jsonMode}
}

// Emit writes one event in the configured format.
func (l *LogEmitter) Emit(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.jsonMode {
		l.emitJSON(event)
	} else {
		l.emitText(event)
	}
}

func (l *LogEmitter) emitJSON(event Event) {
	data, err := json.Marshal(struct {
		RunID    string         `json:"run_id"`
		Phase    string         `json:"phase,omitempty"`
		EngineID string         `json:"engine_id,omitempty"`
		JobID    string         `json:"job_id,omitempty"`
		Msg      string         `json:"msg"`
		Meta     map[string]any `json:"meta,omitempty"`
	}{event.RunID, event.Phase, event.EngineID, event.JobID, event.Msg, event.Meta})
	if err != nil {
		fmt.Fprintf(l.writer, "{\"error\":\"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Fprintf(l.writer, "%s\n", data)
}

func (l *LogEmitter) emitText(event Event) {
	fmt.Fprintf(l.writer, "[%s] run=%s", event.Msg, event.RunID)
	if event.Phase != "" {
		fmt.Fprintf(l.writer, " phase=%s", event.Phase)
	}
	if event.EngineID != "" {
		fmt.Fprintf(l.writer, " engine=%s", event.EngineID)
	}
	if event.JobID != "" {
		fmt.Fprintf(l.writer, " job=%s", event.JobID)
	}
	if len(event.Meta) > 0 {
		if metaJSON, err := json.Marshal(event.Meta); err == nil {
			fmt.Fprintf(l.writer, " meta=%s", metaJSON)
		} else {
			fmt.Fprintf(l.writer, " meta=%v", event.Meta)
		}
	}
	fmt.Fprint(l.writer, "\n")
}
