package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// TokenFunc supplies the current bearer token for a request. Both backends
// obtain it from a credential manager; the manager refreshes proactively so
// in-flight operations never hold an expiring token.
type TokenFunc func(ctx context.Context) (string, error)

// apiClient is the shared HTTP layer for both backends. It attaches the
// bearer credential, encodes/decodes JSON bodies, and classifies failures
// into the package error taxonomy so retry policies can act on the error
// type alone.
type apiClient struct {
	httpc *http.Client
	token TokenFunc
}

func newAPIClient(httpc *http.Client, token TokenFunc) *apiClient {
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &apiClient{httpc: httpc, token: token}
}

// do executes one JSON request. A non-nil out is decoded from the response
// body. Errors are classified: transport failures and 5xx responses become
// *TransientError, 4xx responses become *RequestError.
func (c *apiClient) do(ctx context.Context, method, url string, in, out any) error {
	op := fmt.Sprintf("%s %s", method, redactURL(url))

	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if c.token != nil {
		tok, err := c.token(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		// Context cancellation is the caller's decision, not a
		// backend hiccup; let it through unclassified.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Op: op, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &TransientError{Op: op, Cause: err}
	}

	switch {
	case resp.StatusCode >= 500:
		return &TransientError{Op: op, StatusCode: resp.StatusCode}
	case resp.StatusCode >= 400:
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Message: errorText(raw)}
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%s: decode response: %w", op, err)
		}
	}
	return nil
}

// errorText extracts a human-readable message from an error response body.
// Both backends use an {"error": true, "errorMessage": "..."} envelope, but
// plain-text bodies occur on proxies in front of them.
func errorText(raw []byte) string {
	var envelope struct {
		ErrorMessage string `json:"errorMessage"`
		Message      string `json:"message"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.ErrorMessage != "" {
			return envelope.ErrorMessage
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(raw))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// redactURL strips query parameters from a URL before it is embedded in an
// error message, since discovery endpoints may carry keys in the query.
func redactURL(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		return url[:i]
	}
	return url
}
