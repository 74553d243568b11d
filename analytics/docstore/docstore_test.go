package docstore_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/ArthurKeen/graph-analytics-go/analytics/docstore"
)

func TestMemStore(t *testing.T) {
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		m := docstore.NewMemStore()
		m.AddDocument("people", "alice", map[string]any{"name": "Alice"})
		m.AddDocument("people", "bob", map[string]any{"name": "Bob"})

		n, err := m.Count(ctx, "people")
		if err != nil || n != 2 {
			t.Fatalf("Count = (%d, %v), want (2, nil)", n, err)
		}
	})

	t.Run("write attributes merges", func(t *testing.T) {
		m := docstore.NewMemStore()
		m.AddDocument("people", "alice", map[string]any{"name": "Alice"})

		err := m.WriteAttributes(ctx, "people", []docstore.AttributeUpdate{
			{Key: "alice", Attributes: map[string]any{"rank": 0.9}},
		})
		if err != nil {
			t.Fatalf("WriteAttributes: %v", err)
		}
		doc, ok := m.Document("people", "alice")
		if !ok || doc["rank"] != 0.9 || doc["name"] != "Alice" {
			t.Errorf("doc = %v, want name and rank", doc)
		}
	})

	t.Run("write to a missing key mutates nothing", func(t *testing.T) {
		m := docstore.NewMemStore()
		m.AddDocument("people", "alice", map[string]any{"name": "Alice"})

		err := m.WriteAttributes(ctx, "people", []docstore.AttributeUpdate{
			{Key: "alice", Attributes: map[string]any{"rank": 0.9}},
			{Key: "ghost", Attributes: map[string]any{"rank": 0.1}},
		})
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Fatalf("WriteAttributes = %v, want ErrNotFound", err)
		}
		doc, _ := m.Document("people", "alice")
		if _, ok := doc["rank"]; ok {
			t.Error("a failed batch must not apply partially")
		}
	})

	t.Run("named graph", func(t *testing.T) {
		m := docstore.NewMemStore()
		m.AddNamedGraph("social", []string{"people"}, []string{"knows"})

		v, e, err := m.NamedGraph(ctx, "social")
		if err != nil {
			t.Fatalf("NamedGraph: %v", err)
		}
		if !reflect.DeepEqual(v, []string{"people"}) || !reflect.DeepEqual(e, []string{"knows"}) {
			t.Errorf("NamedGraph = (%v, %v)", v, e)
		}
		if _, _, err := m.NamedGraph(ctx, "missing"); !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("NamedGraph(missing) = %v, want ErrNotFound", err)
		}
	})
}

func TestHTTPStore(t *testing.T) {
	var patched []map[string]any
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_db/graphdb/_api/collection/{c}/count", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer db-token" {
			t.Errorf("missing bearer credential, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"count": 7}`))
	})
	mux.HandleFunc("PATCH /_db/graphdb/_api/document/{c}", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&patched)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc("GET /_db/graphdb/_api/gharial/{g}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("g") != "social" {
			http.Error(w, `{"error":true}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"graph":{
			"edgeDefinitions":[
				{"collection":"knows","from":["people"],"to":["people"]},
				{"collection":"works_at","from":["people"],"to":["companies"]}
			],
			"orphanCollections":["tags"]
		}}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	token := func(ctx context.Context) (string, error) { return "db-token", nil }
	store, err := docstore.NewHTTPStore(srv.URL, "graphdb", token, nil)
	if err != nil {
		t.Fatalf("NewHTTPStore: %v", err)
	}
	ctx := context.Background()

	t.Run("count", func(t *testing.T) {
		n, err := store.Count(ctx, "people")
		if err != nil || n != 7 {
			t.Fatalf("Count = (%d, %v), want (7, nil)", n, err)
		}
	})

	t.Run("write attributes patches key documents", func(t *testing.T) {
		err := store.WriteAttributes(ctx, "people", []docstore.AttributeUpdate{
			{Key: "alice", Attributes: map[string]any{"rank": 0.9}},
		})
		if err != nil {
			t.Fatalf("WriteAttributes: %v", err)
		}
		if len(patched) != 1 || patched[0]["_key"] != "alice" || patched[0]["rank"] != 0.9 {
			t.Errorf("patched = %v", patched)
		}
	})

	t.Run("named graph resolves collections", func(t *testing.T) {
		v, e, err := store.NamedGraph(ctx, "social")
		if err != nil {
			t.Fatalf("NamedGraph: %v", err)
		}
		if !reflect.DeepEqual(v, []string{"people", "companies", "tags"}) {
			t.Errorf("vertices = %v", v)
		}
		if !reflect.DeepEqual(e, []string{"knows", "works_at"}) {
			t.Errorf("edges = %v", e)
		}
	})

	t.Run("missing graph is ErrNotFound", func(t *testing.T) {
		_, _, err := store.NamedGraph(ctx, "missing")
		if !errors.Is(err, docstore.ErrNotFound) {
			t.Errorf("NamedGraph(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("unreachable host is unavailable", func(t *testing.T) {
		down, err := docstore.NewHTTPStore("http://127.0.0.1:1", "graphdb", token, nil)
		if err != nil {
			t.Fatalf("NewHTTPStore: %v", err)
		}
		_, err = down.Count(ctx, "people")
		var ue *docstore.UnavailableError
		if !errors.As(err, &ue) {
			t.Errorf("expected *UnavailableError, got %T: %v", err, err)
		}
	})
}
