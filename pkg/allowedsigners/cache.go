// Package allowedsigners implements the allowed-signers distribution
// path: a read-mostly cache of a compressed, authoritative signer list,
// with a per-identity rate limiter guarding refreshes and a client-side
// fetch helper mirroring the consumer in
// original_source/rustica-agent/src/rustica/allowed_signer.rs.
package allowedsigners

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/cuemby/jitca/pkg/authz"
)

// Cache holds a zstd-compressed allowed-signers payload and its expiry
// timestamp behind a read-write lock, refreshed by double-checked
// locking so steady-state reads never block each other.
type Cache struct {
	mu         sync.RWMutex
	compressed []byte
	expiry     time.Time

	validity time.Duration
	backend  authz.Backend
	encoder  *zstd.Encoder
}

// NewCache builds an empty cache with no payload and a zero expiry, so
// the first call to Get triggers an unconditional refresh. validity is
// allowed_signers.cache_validity_length.
func NewCache(backend authz.Backend, validity time.Duration) (*Cache, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("constructing zstd encoder: %w", err)
	}
	return &Cache{backend: backend, validity: validity, encoder: encoder}, nil
}

// Get serves the cached payload: a read-locked fast path when the cache
// is fresh, and a write-locked, double-checked refresh when it is not.
// Rate limiting is the caller's responsibility via RateLimiter, run
// before Get.
func (c *Cache) Get(ctx context.Context, now time.Time) ([]byte, error) {
	c.mu.RLock()
	if now.Before(c.expiry) || now.Equal(c.expiry) {
		bytes := c.compressed
		c.mu.RUnlock()
		return bytes, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check: another writer may have refreshed while we waited for
	// the write lock.
	if now.Before(c.expiry) || now.Equal(c.expiry) {
		return c.compressed, nil
	}

	signers, err := c.backend.GetAllowedSigners(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching allowed signers: %w", err)
	}

	lines := make([]string, 0, len(signers))
	for _, s := range signers {
		lines = append(lines, fmt.Sprintf("%s %s", s.Identity, s.Pubkey))
	}
	plaintext := strings.Join(lines, "\n")

	compressed := c.encoder.EncodeAll([]byte(plaintext), nil)

	c.expiry = now.Add(c.validity)
	c.compressed = compressed

	return c.compressed, nil
}
