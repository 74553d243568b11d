package engine_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics/docstore"
	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

// hostFixture is a minimal self-hosted engine service for tests.
type hostFixture struct {
	healthy      bool
	graphs       []string
	jobs         map[string]map[string]any
	results      map[string][]map[string]any
	loads        atomic.Int32
	lastLoad     map[string]any
	deletedGraph []string
}

func newHostFixture() *hostFixture {
	return &hostFixture{
		healthy: true,
		jobs:    map[string]map[string]any{},
		results: map[string][]map[string]any{},
	}
}

func (f *hostFixture) serve(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, r *http.Request) {
		status := "ok"
		if !f.healthy {
			status = "starting"
		}
		writeJSON(w, map[string]any{
			"status":     status,
			"started_at": time.Now().Add(-time.Hour).UTC().Format(time.RFC3339),
		})
	})
	mux.HandleFunc("POST /v1/loaddata", func(w http.ResponseWriter, r *http.Request) {
		f.loads.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&f.lastLoad)
		writeJSON(w, map[string]any{"id": "load-1", "status": "queued"})
	})
	mux.HandleFunc("POST /v1/algorithm", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"id": "algo-1", "status": "queued"})
	})
	mux.HandleFunc("GET /v1/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		job, ok := f.jobs[r.PathValue("id")]
		if !ok {
			http.Error(w, `{"error":true,"errorMessage":"no such job"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, job)
	})
	mux.HandleFunc("GET /v1/jobs/{id}/results", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"results": f.results[r.PathValue("id")]})
	})
	mux.HandleFunc("GET /v1/graphs", func(w http.ResponseWriter, r *http.Request) {
		gs := make([]map[string]any, 0, len(f.graphs))
		for _, id := range f.graphs {
			gs = append(gs, map[string]any{"graph_id": id})
		}
		writeJSON(w, map[string]any{"graphs": gs})
	})
	mux.HandleFunc("DELETE /v1/graphs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.deletedGraph = append(f.deletedGraph, r.PathValue("id"))
		w.WriteHeader(http.StatusNoContent)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newSelfHosted(t *testing.T, url string, docs docstore.Store) *engine.SelfHostedConnection {
	t.Helper()
	conn, err := engine.NewSelfHosted(engine.SelfHostedConfig{
		EngineURL: url,
		Token:     staticToken("test-token"),
		Database:  "graphdb",
		Docs:      docs,
	})
	if err != nil {
		t.Fatalf("NewSelfHosted: %v", err)
	}
	return conn
}

func TestSelfHostedDiscover(t *testing.T) {
	t.Run("healthy service", func(t *testing.T) {
		f := newHostFixture()
		srv := f.serve(t)
		conn := newSelfHosted(t, srv.URL, docstore.NewMemStore())

		h, err := conn.DiscoverOrProvision(context.Background(), engine.SizeE32, true)
		if err != nil {
			t.Fatalf("DiscoverOrProvision: %v", err)
		}
		if h.Metered {
			t.Error("self-hosted engines must not be metered")
		}
		if h.Status != engine.StatusReady {
			t.Errorf("status = %q, want ready", h.Status)
		}
		if h.CreatedAt.IsZero() {
			t.Error("expected CreatedAt from started_at")
		}

		// Discovery is idempotent: repeated calls resolve the same engine.
		h2, err := conn.DiscoverOrProvision(context.Background(), "", false)
		if err != nil {
			t.Fatalf("second DiscoverOrProvision: %v", err)
		}
		if h2.ID != h.ID {
			t.Errorf("discovery not idempotent: %q then %q", h.ID, h2.ID)
		}
	})

	t.Run("unhealthy service", func(t *testing.T) {
		f := newHostFixture()
		f.healthy = false
		srv := f.serve(t)
		conn := newSelfHosted(t, srv.URL, docstore.NewMemStore())

		if _, err := conn.DiscoverOrProvision(context.Background(), "", false); err == nil {
			t.Fatal("expected an error for an unhealthy service")
		}
	})
}

func TestSelfHostedLoadGraph(t *testing.T) {
	t.Run("named graph resolves through the document store", func(t *testing.T) {
		f := newHostFixture()
		srv := f.serve(t)
		docs := docstore.NewMemStore()
		docs.AddNamedGraph("social", []string{"people"}, []string{"knows"})
		conn := newSelfHosted(t, srv.URL, docs)
		h := engine.Handle{ID: "selfhosted", BaseURL: srv.URL}

		job, err := conn.LoadGraph(context.Background(), h, engine.GraphSpec{NamedGraph: "social"})
		if err != nil {
			t.Fatalf("LoadGraph: %v", err)
		}
		if job.Status != engine.JobPending {
			t.Errorf("job status = %q, want pending", job.Status)
		}
		wantV := []any{"people"}
		wantE := []any{"knows"}
		if !reflect.DeepEqual(f.lastLoad["vertex_collections"], wantV) ||
			!reflect.DeepEqual(f.lastLoad["edge_collections"], wantE) {
			t.Errorf("engine received %v, want resolved collections %v / %v", f.lastLoad, wantV, wantE)
		}
		if f.lastLoad["database"] != "graphdb" {
			t.Errorf("database = %v, want the configured default", f.lastLoad["database"])
		}
	})

	t.Run("unknown named graph fails without a load", func(t *testing.T) {
		f := newHostFixture()
		srv := f.serve(t)
		conn := newSelfHosted(t, srv.URL, docstore.NewMemStore())
		h := engine.Handle{ID: "selfhosted", BaseURL: srv.URL}

		if _, err := conn.LoadGraph(context.Background(), h, engine.GraphSpec{NamedGraph: "missing"}); err == nil {
			t.Fatal("expected an error for an unknown named graph")
		}
		if f.loads.Load() != 0 {
			t.Errorf("no load should be submitted, got %d", f.loads.Load())
		}
	})
}

func TestSelfHostedJobNormalization(t *testing.T) {
	f := newHostFixture()
	srv := f.serve(t)
	conn := newSelfHosted(t, srv.URL, docstore.NewMemStore())
	h := engine.Handle{ID: "selfhosted", BaseURL: srv.URL}

	tests := []struct {
		status string
		want   engine.JobStatus
	}{
		{"queued", engine.JobPending},
		{"running", engine.JobRunning},
		{"done", engine.JobCompleted},
		{"cancelled", engine.JobCancelled},
		{"broken", engine.JobFailed},
	}
	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			f.jobs["j1"] = map[string]any{"id": "j1", "status": tt.status, "error_message": "boom"}
			job, err := conn.GetJob(context.Background(), h, "j1")
			if err != nil {
				t.Fatalf("GetJob: %v", err)
			}
			if job.Status != tt.want {
				t.Errorf("status %q normalized to %q, want %q", tt.status, job.Status, tt.want)
			}
		})
	}
}

func TestSelfHostedStoreResults(t *testing.T) {
	f := newHostFixture()
	f.results["algo-1"] = []map[string]any{
		{"key": "alice", "value": 0.42},
		{"key": "bob", "value": 0.17},
	}
	srv := f.serve(t)
	docs := docstore.NewMemStore()
	docs.AddDocument("scores", "alice", map[string]any{"name": "Alice"})
	docs.AddDocument("scores", "bob", map[string]any{"name": "Bob"})
	conn := newSelfHosted(t, srv.URL, docs)
	h := engine.Handle{ID: "selfhosted", BaseURL: srv.URL}

	spec := engine.StoreSpec{TargetCollection: "scores", AttributeNames: []string{"rank"}}
	job, err := conn.StoreResults(context.Background(), h, spec, []string{"algo-1"})
	if err != nil {
		t.Fatalf("StoreResults: %v", err)
	}
	if job.Status != engine.JobCompleted {
		t.Errorf("synthetic store job status = %q, want completed", job.Status)
	}
	if job.ResultCount != 2 {
		t.Errorf("ResultCount = %d, want 2", job.ResultCount)
	}

	doc, ok := docs.Document("scores", "alice")
	if !ok || doc["rank"] != 0.42 {
		t.Errorf("alice = %v, want rank 0.42 merged in", doc)
	}
	if doc["name"] != "Alice" {
		t.Error("existing attributes must survive the merge")
	}

	// The synthetic job is answered locally and already terminal.
	got, err := conn.GetJob(context.Background(), h, job.ID)
	if err != nil {
		t.Fatalf("GetJob on synthetic id: %v", err)
	}
	if !got.Status.Terminal() {
		t.Errorf("synthetic job must be terminal, got %q", got.Status)
	}
}

func TestSelfHostedTeardown(t *testing.T) {
	f := newHostFixture()
	f.graphs = []string{"g1", "g2"}
	srv := f.serve(t)
	conn := newSelfHosted(t, srv.URL, docstore.NewMemStore())
	h := engine.Handle{ID: "selfhosted", BaseURL: srv.URL}

	if err := conn.Teardown(context.Background(), h); err != nil {
		t.Fatalf("Teardown: %v", err)
	}
	if !reflect.DeepEqual(f.deletedGraph, []string{"g1", "g2"}) {
		t.Errorf("deleted graphs = %v, want all loaded graphs", f.deletedGraph)
	}
}
