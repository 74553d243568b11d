// Package credential manages the short-lived bearer credentials both engine
// backends authenticate with. A Manager caches one credential and refreshes
// it proactively inside a configurable margin before expiry, so an
// execution that starts with a fresh token never watches it expire
// mid-flight. The Manager is the only piece of shared mutable state between
// concurrently running executions; reads are lock-free and concurrent
// refreshes collapse into a single call to the configured Source.
package credential

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Credential is an opaque bearer token with its validity window. It is
// replaced wholesale on refresh, never mutated.
type Credential struct {
	// Token is the bearer token string.
	Token string `json:"token"`

	// IssuedAt is when the token was obtained.
	IssuedAt time.Time `json:"issued_at"`

	// TTL is the assumed validity duration from IssuedAt.
	TTL time.Duration `json:"ttl"`
}

// ExpiresAt returns the end of the validity window.
func (c Credential) ExpiresAt() time.Time { return c.IssuedAt.Add(c.TTL) }

// Fresh reports whether the credential is still usable at the given
// instant, applying the refresh margin: a credential counts as expired once
// now >= issued_at + ttl - margin.
func (c Credential) Fresh(now time.Time, margin time.Duration) bool {
	if c.Token == "" {
		return false
	}
	return now.Before(c.IssuedAt.Add(c.TTL - margin))
}

// Source obtains a new credential from an external authority: a token CLI,
// a login endpoint, or a test fake.
type Source interface {
	Fetch(ctx context.Context) (Credential, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (Credential, error)

// Fetch implements Source.
func (f SourceFunc) Fetch(ctx context.Context) (Credential, error) { return f(ctx) }

// AuthError wraps a credential acquisition or refresh failure. It is always
// fatal: without a credential no remote call can be made, so callers must
// not retry around it.
type AuthError struct {
	Op    string
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("credential %s failed: %v", e.Op, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

// Cache persists credentials across Manager instances or processes, as a
// TTL store. Implementations may lose entries at any time; the Manager
// falls back to the Source.
type Cache interface {
	// Load returns the cached credential, if any.
	Load(ctx context.Context) (Credential, bool, error)

	// Store replaces the cached credential.
	Store(ctx context.Context, c Credential) error
}

// Options configures a Manager.
type Options struct {
	// RefreshMargin is how long before expiry a credential is treated as
	// expired. Default 1 hour against the typical 24-hour token.
	RefreshMargin time.Duration

	// Cache persists credentials beyond this Manager's memory. Optional.
	Cache Cache

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Manager caches and refreshes one credential.
//
// Construct one Manager per credential source and share it deliberately
// between executors; it is not a package-level singleton.
type Manager struct {
	source Source
	cache  Cache
	margin time.Duration
	now    func() time.Time

	// current holds the cached credential for lock-free reads.
	current atomic.Pointer[Credential]

	// refreshMu serializes refreshes so concurrent expirers collapse
	// into one Source call.
	refreshMu sync.Mutex
}

// NewManager creates a Manager around a credential source.
func NewManager(source Source, opts Options) (*Manager, error) {
	if source == nil {
		return nil, &AuthError{Op: "configuration", Cause: fmt.Errorf("no credential source configured")}
	}
	if opts.RefreshMargin <= 0 {
		opts.RefreshMargin = time.Hour
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		source: source,
		cache:  opts.Cache,
		margin: opts.RefreshMargin,
		now:    opts.Now,
	}, nil
}

// Token returns the current bearer token, refreshing first if the cached
// credential is missing or inside the refresh margin. Its signature matches
// the TokenFunc the engine and docstore clients expect.
func (m *Manager) Token(ctx context.Context) (string, error) {
	c, err := m.Credential(ctx)
	if err != nil {
		return "", err
	}
	return c.Token, nil
}

// Credential returns the current credential, refreshing as needed.
func (m *Manager) Credential(ctx context.Context) (Credential, error) {
	if c := m.current.Load(); c != nil && c.Fresh(m.now(), m.margin) {
		return *c, nil
	}
	return m.refresh(ctx, false)
}

// ForceRefresh discards the cached credential and obtains a new one.
func (m *Manager) ForceRefresh(ctx context.Context) (Credential, error) {
	return m.refresh(ctx, true)
}

func (m *Manager) refresh(ctx context.Context, force bool) (Credential, error) {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	if !force {
		if c := m.current.Load(); c != nil && c.Fresh(m.now(), m.margin) {
			return *c, nil
		}
		if m.cache != nil {
			if c, ok, err := m.cache.Load(ctx); err == nil && ok && c.Fresh(m.now(), m.margin) {
				m.current.Store(&c)
				return c, nil
			}
		}
	}

	c, err := m.source.Fetch(ctx)
	if err != nil {
		return Credential{}, &AuthError{Op: "refresh", Cause: err}
	}
	if c.Token == "" {
		return Credential{}, &AuthError{Op: "refresh", Cause: fmt.Errorf("source returned empty token")}
	}
	if c.IssuedAt.IsZero() {
		c.IssuedAt = m.now()
	}
	if c.TTL <= m.margin {
		return Credential{}, &AuthError{
			Op:    "refresh",
			Cause: fmt.Errorf("token validity %v does not exceed refresh margin %v", c.TTL, m.margin),
		}
	}

	m.current.Store(&c)
	if m.cache != nil {
		// Cache write failures are not fatal: the in-memory copy is
		// authoritative for this process.
		_ = m.cache.Store(ctx, c)
	}
	return c, nil
}
