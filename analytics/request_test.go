package analytics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/ArthurKeen/graph-analytics-go/analytics"
	"github.com/ArthurKeen/graph-analytics-go/analytics/engine"
)

func TestRequestValidate(t *testing.T) {
	valid := func() analytics.Request {
		return analytics.Request{
			Algorithm: analytics.AlgorithmWCC,
			Graph:     engine.GraphSpec{NamedGraph: "social"},
			Target:    engine.StoreSpec{TargetCollection: "scores", AttributeNames: []string{"component"}},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*analytics.Request)
		wantErr bool
	}{
		{"valid named graph", func(r *analytics.Request) {}, false},
		{"valid explicit collections", func(r *analytics.Request) {
			r.Graph = engine.GraphSpec{
				VertexCollections: []string{"people"},
				EdgeCollections:   []string{"knows"},
			}
		}, false},
		{"missing algorithm", func(r *analytics.Request) { r.Algorithm = "" }, true},
		{"unknown algorithm", func(r *analytics.Request) { r.Algorithm = "shortestpath" }, true},
		{"no graph source", func(r *analytics.Request) { r.Graph = engine.GraphSpec{} }, true},
		{"both graph sources", func(r *analytics.Request) {
			r.Graph.VertexCollections = []string{"people"}
			r.Graph.EdgeCollections = []string{"knows"}
		}, true},
		{"explicit without edges", func(r *analytics.Request) {
			r.Graph = engine.GraphSpec{VertexCollections: []string{"people"}}
		}, true},
		{"missing target collection", func(r *analytics.Request) { r.Target.TargetCollection = "" }, true},
		{"missing attribute names", func(r *analytics.Request) { r.Target.AttributeNames = nil }, true},
		{"negative wait timeout", func(r *analytics.Request) { r.WaitTimeout = -time.Second }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid()
			tt.mutate(&req)
			err := req.Validate()
			if tt.wantErr {
				var ce *analytics.ConfigError
				if !errors.As(err, &ce) {
					t.Errorf("Validate() = %v, want *ConfigError", err)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}
