package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TokenFunc supplies the bearer token for document store requests.
type TokenFunc func(ctx context.Context) (string, error)

// HTTPStore implements Store against the database's HTTP document API.
type HTTPStore struct {
	base     string
	database string
	token    TokenFunc
	httpc    *http.Client
}

// NewHTTPStore creates a store client for one database.
//
// baseURL is the database endpoint, e.g. "http://localhost:8529". The token
// function is typically a credential.Manager bound to the database login.
func NewHTTPStore(baseURL, database string, token TokenFunc, httpc *http.Client) (*HTTPStore, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("document store: baseURL is required")
	}
	if database == "" {
		return nil, fmt.Errorf("document store: database is required")
	}
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &HTTPStore{
		base:     strings.TrimRight(baseURL, "/"),
		database: database,
		token:    token,
		httpc:    httpc,
	}, nil
}

func (s *HTTPStore) url(path string) string {
	return s.base + "/_db/" + s.database + path
}

func (s *HTTPStore) do(ctx context.Context, method, path string, in, out any) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("document store: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.url(path), body)
	if err != nil {
		return fmt.Errorf("document store: %s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != nil {
		tok, err := s.token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UnavailableError{Op: op, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &UnavailableError{Op: op, Cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("document store: %s: %w", op, ErrNotFound)
	case resp.StatusCode >= 500:
		return &UnavailableError{Op: op, Cause: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode >= 400:
		return fmt.Errorf("document store: %s: status %d: %s", op, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("document store: %s: decode: %w", op, err)
		}
	}
	return nil
}

// Count returns the document count of a collection.
func (s *HTTPStore) Count(ctx context.Context, collection string) (int64, error) {
	var resp struct {
		Count int64 `json:"count"`
	}
	if err := s.do(ctx, http.MethodGet, "/_api/collection/"+collection+"/count", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// WriteAttributes patches a batch of documents in one request.
func (s *HTTPStore) WriteAttributes(ctx context.Context, collection string, updates []AttributeUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	docs := make([]map[string]any, 0, len(updates))
	for _, u := range updates {
		doc := make(map[string]any, len(u.Attributes)+1)
		doc["_key"] = u.Key
		for name, value := range u.Attributes {
			doc[name] = value
		}
		docs = append(docs, doc)
	}
	return s.do(ctx, http.MethodPatch, "/_api/document/"+collection, docs, nil)
}

// NamedGraph returns the vertex and edge collections of a named graph.
// Vertex collections are the union of the edge definitions' from/to sets
// and the graph's orphan collections.
func (s *HTTPStore) NamedGraph(ctx context.Context, name string) ([]string, []string, error) {
	var resp struct {
		Graph struct {
			EdgeDefinitions []struct {
				Collection string   `json:"collection"`
				From       []string `json:"from"`
				To         []string `json:"to"`
			} `json:"edgeDefinitions"`
			OrphanCollections []string `json:"orphanCollections"`
		} `json:"graph"`
	}
	if err := s.do(ctx, http.MethodGet, "/_api/gharial/"+name, nil, &resp); err != nil {
		return nil, nil, err
	}

	edgeSet := make(map[string]struct{})
	vertexSet := make(map[string]struct{})
	var edges, vertices []string
	addVertex := func(c string) {
		if _, ok := vertexSet[c]; !ok {
			vertexSet[c] = struct{}{}
			vertices = append(vertices, c)
		}
	}
	for _, def := range resp.Graph.EdgeDefinitions {
		if _, ok := edgeSet[def.Collection]; !ok {
			edgeSet[def.Collection] = struct{}{}
			edges = append(edges, def.Collection)
		}
		for _, c := range def.From {
			addVertex(c)
		}
		for _, c := range def.To {
			addVertex(c)
		}
	}
	for _, c := range resp.Graph.OrphanCollections {
		addVertex(c)
	}
	return vertices, edges, nil
}
