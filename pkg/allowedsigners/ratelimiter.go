package allowedsigners

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RateLimiter is a bounded-LRU, per-identity rate limiter. It mirrors
// original_source/rustica's is_rate_limited exactly: every call
// unconditionally refreshes the identity's deadline, even when the call
// is itself denied. This is intentional: it holds a sustained attacker
// at the cooldown floor rather than letting them drift.
type RateLimiter struct {
	mu       sync.Mutex
	cache    *lru.Cache[string, time.Time]
	cooldown time.Duration
}

// NewRateLimiter builds a RateLimiter with the given LRU capacity, which
// must be non-zero.
func NewRateLimiter(size int, cooldown time.Duration) (*RateLimiter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("lru_rate_limiter_size must be non-zero, got %d", size)
	}
	cache, err := lru.New[string, time.Time](size)
	if err != nil {
		return nil, fmt.Errorf("constructing rate limiter LRU: %w", err)
	}
	return &RateLimiter{cache: cache, cooldown: cooldown}, nil
}

// IsRateLimited pushes identity's deadline forward by cooldown and
// reports whether the caller should be denied.
//
// The push semantics, mirrored from LruCache::push in the Rust source:
// pushing returns the entry the push displaced, which is either the
// identity's own prior value (key already present — a "replace") or an
// unrelated entry evicted purely for capacity. Peek (which does not
// disturb LRU order) tells us which case applies before we mutate the
// cache, so the logic below reconstructs both outcomes in one lock
// acquisition: if identity was already present, the "evicted" entry is
// by definition (identity, oldDeadline), exactly as the Rust push would
// report; if it was absent, any capacity eviction is necessarily of some
// other key, which is treated as "not rate limited" regardless of that
// other key's value.
func (rl *RateLimiter) IsRateLimited(identity string, now time.Time) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	priorDeadline, existed := rl.cache.Peek(identity)
	rl.cache.Add(identity, now.Add(rl.cooldown))

	if !existed {
		return false
	}
	return now.Before(priorDeadline)
}
