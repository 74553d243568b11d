package analytics_test

import (
	"context"
	"errors"
	"testing"

	"github.com/ArthurKeen/graph-analytics-go/analytics"
	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

func TestExecuteBatchEmpty(t *testing.T) {
	x := newTestExecutor(t, newFakeConn())
	_, err := x.ExecuteBatch(context.Background(), nil, analytics.BatchOptions{})
	if !errors.Is(err, analytics.ErrEmptyBatch) {
		t.Fatalf("expected ErrEmptyBatch, got %v", err)
	}
}

func TestExecuteBatchRejectsParallelWithoutContinue(t *testing.T) {
	x := newTestExecutor(t, newFakeConn())
	_, err := x.ExecuteBatch(context.Background(), []analytics.Request{validRequest()}, analytics.BatchOptions{
		Parallelism: 4,
	})
	var ce *analytics.ConfigError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

func TestExecuteBatchStopsAfterFailure(t *testing.T) {
	conn := newFakeConn()
	x := newTestExecutor(t, conn)

	bad := validRequest()
	bad.Algorithm = "not-an-algorithm"
	requests := []analytics.Request{validRequest(), bad, validRequest()}

	results, err := x.ExecuteBatch(context.Background(), requests, analytics.BatchOptions{})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want one per request", len(results))
	}
	want := []analytics.Status{analytics.StatusCompleted, analytics.StatusFailed, analytics.StatusSkipped}
	for i, w := range want {
		if results[i].Status != w {
			t.Errorf("results[%d].Status = %q, want %q", i, results[i].Status, w)
		}
	}
	// The skipped request never touched the engine: one full lifecycle only.
	if got := conn.callCount("discover"); got != 1 {
		t.Errorf("discover calls = %d, want 1", got)
	}
}

func TestExecuteBatchContinueOnError(t *testing.T) {
	conn := newFakeConn()
	conn.loadErr = &engine.RequestError{Op: "load", StatusCode: 400, Message: "bad graph"}
	x := newTestExecutor(t, conn)

	requests := []analytics.Request{validRequest(), validRequest()}
	results, err := x.ExecuteBatch(context.Background(), requests, analytics.BatchOptions{
		ContinueOnError: true,
	})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	for i, res := range results {
		if res.Status != analytics.StatusFailed {
			t.Errorf("results[%d].Status = %q, want failed", i, res.Status)
		}
	}
	// Both requests ran, and both tore their engine down.
	if conn.teardowns != 2 {
		t.Errorf("teardowns = %d, want 2", conn.teardowns)
	}
}

func TestExecuteBatchParallel(t *testing.T) {
	conn := newFakeConn()
	x := newTestExecutor(t, conn)

	requests := []analytics.Request{validRequest(), validRequest(), validRequest(), validRequest()}
	results, err := x.ExecuteBatch(context.Background(), requests, analytics.BatchOptions{
		ContinueOnError: true,
		Parallelism:     2,
	})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	for i, res := range results {
		if res.Status != analytics.StatusCompleted {
			t.Errorf("results[%d].Status = %q, want completed", i, res.Status)
		}
		if res.Request.Name != requests[i].Name {
			t.Errorf("results[%d] is not aligned with its request", i)
		}
	}
	if conn.teardowns != 4 {
		t.Errorf("teardowns = %d, want one per request", conn.teardowns)
	}
}
