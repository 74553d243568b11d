package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/redis/go-redis/v9"
)

// FileCache persists the credential as a mode-0600 JSON file, so
// short-lived processes (CLIs, cron jobs) reuse a token instead of hitting
// the credential source on every invocation. The validity window lives
// inside the credential itself; a stale file simply fails the freshness
// check and triggers a normal refresh.
type FileCache struct {
	// Path is the cache file location.
	Path string
}

// Load reads the cached credential. A missing or unreadable file is not an
// error, just a cache miss.
func (f *FileCache) Load(_ context.Context) (Credential, bool, error) {
	raw, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("read credential cache: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		// A corrupt cache file is a miss, not a failure.
		return Credential{}, false, nil
	}
	return c, c.Token != "", nil
}

// Store writes the credential atomically via a temp file rename.
func (f *FileCache) Store(_ context.Context, c Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential cache: %w", err)
	}
	dir := filepath.Dir(f.Path)
	tmp, err := os.CreateTemp(dir, ".credential-*")
	if err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credential cache: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write credential cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	return nil
}

// RedisCache shares one credential across processes or hosts through a
// Redis key with a TTL matching the credential's remaining validity. Useful
// when several orchestrator instances run against the same platform account
// and should not each burn a token request.
type RedisCache struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisCache creates a cache on the given client and key.
func NewRedisCache(client *redis.Client, key string) *RedisCache {
	return &RedisCache{client: client, key: key, now: time.Now}
}

// Load reads the cached credential. A missing key is a cache miss.
func (r *RedisCache) Load(ctx context.Context) (Credential, bool, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Credential{}, false, nil
		}
		return Credential{}, false, fmt.Errorf("read credential cache: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(raw, &c); err != nil {
		return Credential{}, false, nil
	}
	return c, c.Token != "", nil
}

// Store writes the credential with an expiry at the end of its validity
// window, so Redis drops it on its own once it can no longer be fresh.
func (r *RedisCache) Store(ctx context.Context, c Credential) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credential cache: %w", err)
	}
	ttl := c.ExpiresAt().Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, r.key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("write credential cache: %w", err)
	}
	return nil
}
