package credential

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"
)

// CLISource obtains a token by running an external command that prints the
// token to stdout, e.g. the managed platform's CLI. The validity window is
// assumed, not reported by the CLI.
type CLISource struct {
	// Command is the executable to run.
	Command string

	// Args are the command arguments.
	Args []string

	// TTL is the assumed token validity. Default 24 hours.
	TTL time.Duration
}

// Fetch runs the command and returns the trimmed stdout as the token.
func (s *CLISource) Fetch(ctx context.Context) (Credential, error) {
	if s.Command == "" {
		return Credential{}, fmt.Errorf("token command not configured")
	}
	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return Credential{}, fmt.Errorf("%s: %s: %w", s.Command, msg, err)
		}
		return Credential{}, fmt.Errorf("%s: %w", s.Command, err)
	}
	token := strings.TrimSpace(stdout.String())
	if token == "" {
		return Credential{}, fmt.Errorf("%s printed no token", s.Command)
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return Credential{Token: token, TTL: ttl}, nil
}

// LoginSource obtains a JWT from the database's HTTP login endpoint. This
// is the credential path for self-hosted deployments, where there is no
// pre-issued platform token.
type LoginSource struct {
	// URL is the login endpoint, e.g. "http://localhost:8529/_open/auth".
	URL string

	// Username and Password are the database login.
	Username string
	Password string

	// TTL is the assumed validity of the returned JWT. Default 24 hours.
	TTL time.Duration

	// HTTPClient overrides the HTTP client.
	HTTPClient *http.Client
}

// Fetch posts the login and returns the JWT from the response.
func (s *LoginSource) Fetch(ctx context.Context) (Credential, error) {
	if s.URL == "" {
		return Credential{}, fmt.Errorf("login URL not configured")
	}
	payload, err := json.Marshal(map[string]string{
		"username": s.Username,
		"password": s.Password,
	})
	if err != nil {
		return Credential{}, fmt.Errorf("encode login: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(payload))
	if err != nil {
		return Credential{}, fmt.Errorf("build login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	httpc := s.HTTPClient
	if httpc == nil {
		httpc = &http.Client{Timeout: 30 * time.Second}
	}
	resp, err := httpc.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("login request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Credential{}, fmt.Errorf("login rejected (status %d)", resp.StatusCode)
	}

	var body struct {
		JWT string `json:"jwt"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return Credential{}, fmt.Errorf("decode login response: %w", err)
	}
	if body.JWT == "" {
		return Credential{}, fmt.Errorf("login response carried no jwt")
	}
	ttl := s.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return Credential{Token: body.JWT, TTL: ttl}, nil
}
