package emit_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/ArthurKeen/graph-analytics-go/analytics/emit"
)

func TestBufferedEmitter(t *testing.T) {
	b := emit.NewBufferedEmitter()
	b.Emit(emit.Event{RunID: "r1", Phase: "init", Msg: "phase"})
	b.Emit(emit.Event{RunID: "r1", Phase: "engine_ready", Msg: "phase"})
	b.Emit(emit.Event{RunID: "r1", Msg: "retry", Meta: map[string]any{"attempt": 1}})
	b.Emit(emit.Event{RunID: "r2", Msg: "phase"})

	if got := b.History("r1"); len(got) != 3 {
		t.Errorf("History(r1) = %d events, want 3", len(got))
	}
	phases := b.HistoryByMsg("r1", "phase")
	if len(phases) != 2 || phases[0].Phase != "init" || phases[1].Phase != "engine_ready" {
		t.Errorf("HistoryByMsg order wrong: %+v", phases)
	}

	b.Clear("r1")
	if got := b.History("r1"); len(got) != 0 {
		t.Errorf("History after Clear = %d events, want 0", len(got))
	}
	if got := b.History("r2"); len(got) != 1 {
		t.Errorf("Clear(r1) must not touch r2, got %d events", len(got))
	}
}

func TestLogEmitterJSON(t *testing.T) {
	var buf bytes.Buffer
	l := emit.NewLogEmitter(&buf, true)
	l.Emit(emit.Event{
		RunID:    "r1",
		Phase:    "engine_ready",
		EngineID: "eng-1",
		Msg:      "phase",
		Meta:     map[string]any{"cost_usd": 0.5},
	})
	l.Emit(emit.Event{RunID: "r1", Msg: "result"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want one JSON object per event", len(lines))
	}
	var decoded struct {
		RunID    string         `json:"run_id"`
		Phase    string         `json:"phase"`
		EngineID string         `json:"engine_id"`
		Msg      string         `json:"msg"`
		Meta     map[string]any `json:"meta"`
	}
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if decoded.RunID != "r1" || decoded.Phase != "engine_ready" || decoded.EngineID != "eng-1" {
		t.Errorf("decoded = %+v", decoded)
	}
	if decoded.Meta["cost_usd"] != 0.5 {
		t.Errorf("meta not preserved: %v", decoded.Meta)
	}
}

func TestLogEmitterText(t *testing.T) {
	var buf bytes.Buffer
	l := emit.NewLogEmitter(&buf, false)
	l.Emit(emit.Event{RunID: "r1", Phase: "cleaned", EngineID: "eng-1", Msg: "phase"})

	out := buf.String()
	for _, want := range []string{"phase", "run=r1", "phase=cleaned", "engine=eng-1"} {
		if !strings.Contains(out, want) {
			t.Errorf("text output %q missing %q", out, want)
		}
	}
}
