package allowedsigners

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRateLimiter_RejectsZeroSize(t *testing.T) {
	_, err := NewRateLimiter(0, time.Second)
	require.Error(t, err)
}

func TestRateLimiter_FirstCallNeverLimited(t *testing.T) {
	rl, err := NewRateLimiter(8, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	assert.False(t, rl.IsRateLimited("alice", now))
}

func TestRateLimiter_SecondCallWithinCooldownIsLimited(t *testing.T) {
	rl, err := NewRateLimiter(8, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	require.False(t, rl.IsRateLimited("alice", now))
	assert.True(t, rl.IsRateLimited("alice", now.Add(time.Second)))
}

func TestRateLimiter_CallAfterCooldownIsAllowed(t *testing.T) {
	rl, err := NewRateLimiter(8, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	require.False(t, rl.IsRateLimited("alice", now))
	assert.False(t, rl.IsRateLimited("alice", now.Add(2*time.Minute)))
}

func TestRateLimiter_DeniedCallStillRefreshesDeadline(t *testing.T) {
	// A denied call must still push the deadline forward, so a sustained
	// attacker is held at the cooldown floor instead of drifting earlier
	// with each retry.
	rl, err := NewRateLimiter(8, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	require.False(t, rl.IsRateLimited("alice", now))
	require.True(t, rl.IsRateLimited("alice", now.Add(time.Second)))
	// Had the deadline not refreshed on the denied call above, the first
	// call's deadline (+60s) would have been reached and this call allowed;
	// the refreshed deadline is +61s, so it is still denied.
	assert.True(t, rl.IsRateLimited("alice", now.Add(60*time.Second)))
}

func TestRateLimiter_IndependentIdentities(t *testing.T) {
	rl, err := NewRateLimiter(8, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	require.False(t, rl.IsRateLimited("alice", now))
	assert.False(t, rl.IsRateLimited("bob", now))
}

func TestRateLimiter_CapacityEvictionDoesNotLimitNewIdentity(t *testing.T) {
	rl, err := NewRateLimiter(1, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	require.False(t, rl.IsRateLimited("alice", now))
	// "bob" evicts "alice" from the size-1 LRU; bob was never present,
	// so he is not rate limited regardless of alice's deadline.
	assert.False(t, rl.IsRateLimited("bob", now))
}
