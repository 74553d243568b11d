package catalog_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics/catalog"
)

func record(id, algorithm, status string, createdAt time.Time) catalog.Record {
	return catalog.Record{
		ID:               id,
		Name:             "test run " + id,
		Algorithm:        algorithm,
		AlgorithmVersion: "1",
		Parameters:       map[string]any{"max_iterations": float64(50)},
		Graph:            "social",
		TargetCollection: "scores",
		ResultCount:      100,
		Elapsed:          90 * time.Second,
		CostUSD:          0.0115,
		Status:           status,
		CreatedAt:        createdAt,
	}
}

// storeUnderTest runs the same contract checks against every Store
// implementation.
func storeUnderTest(t *testing.T, store catalog.Store) {
	ctx := context.Background()
	base := time.Now().Truncate(time.Second).Add(-time.Hour)

	t.Run("get missing", func(t *testing.T) {
		_, err := store.Get(ctx, "nope")
		if !errors.Is(err, catalog.ErrNotFound) {
			t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
		}
	})

	t.Run("append and get", func(t *testing.T) {
		want := record("r1", "pagerank", "completed", base)
		if err := store.Append(ctx, want); err != nil {
			t.Fatalf("Append: %v", err)
		}
		got, err := store.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Algorithm != "pagerank" || got.ResultCount != 100 || got.CostUSD != 0.0115 {
			t.Errorf("Get = %+v", got)
		}
		if got.Parameters["max_iterations"] != float64(50) {
			t.Errorf("parameters not preserved: %v", got.Parameters)
		}
		if got.Elapsed != 90*time.Second {
			t.Errorf("elapsed = %v, want 90s", got.Elapsed)
		}
	})

	t.Run("duplicate append replaces", func(t *testing.T) {
		r := record("r1", "pagerank", "failed", base)
		r.Error = "engine exploded"
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
		got, err := store.Get(ctx, "r1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != "failed" || got.Error != "engine exploded" {
			t.Errorf("replacement not applied: %+v", got)
		}
	})

	t.Run("list filters", func(t *testing.T) {
		_ = store.Append(ctx, record("r2", "wcc", "completed", base.Add(10*time.Minute)))
		_ = store.Append(ctx, record("r3", "pagerank", "completed", base.Add(20*time.Minute)))
		_ = store.Append(ctx, record("r4", "wcc", "failed", base.Add(30*time.Minute)))

		all, err := store.List(ctx, catalog.Filter{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 4 {
			t.Fatalf("List() = %d records, want 4", len(all))
		}
		// Newest first.
		if all[0].ID != "r4" {
			t.Errorf("List()[0] = %q, want the newest record", all[0].ID)
		}

		wcc, err := store.List(ctx, catalog.Filter{Algorithm: "wcc"})
		if err != nil {
			t.Fatalf("List(wcc): %v", err)
		}
		if len(wcc) != 2 {
			t.Errorf("List(wcc) = %d, want 2", len(wcc))
		}

		failed, err := store.List(ctx, catalog.Filter{Algorithm: "wcc", Status: "failed"})
		if err != nil {
			t.Fatalf("List(wcc,failed): %v", err)
		}
		if len(failed) != 1 || failed[0].ID != "r4" {
			t.Errorf("List(wcc,failed) = %+v", failed)
		}

		recent, err := store.List(ctx, catalog.Filter{Since: base.Add(15 * time.Minute)})
		if err != nil {
			t.Fatalf("List(since): %v", err)
		}
		if len(recent) != 2 {
			t.Errorf("List(since) = %d, want 2", len(recent))
		}

		limited, err := store.List(ctx, catalog.Filter{Limit: 1})
		if err != nil {
			t.Fatalf("List(limit): %v", err)
		}
		if len(limited) != 1 || limited[0].ID != "r4" {
			t.Errorf("List(limit=1) = %+v, want just the newest", limited)
		}
	})
}

func TestMemStore(t *testing.T) {
	storeUnderTest(t, catalog.NewMemStore())
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := catalog.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	storeUnderTest(t, store)
}

func TestSQLiteStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	store, err := catalog.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	if err := store.Append(ctx, record("r1", "scc", "completed", time.Now())); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// Records survive process restarts.
	reopened, err := catalog.NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Algorithm != "scc" {
		t.Errorf("Get after reopen = %+v", got)
	}
}
