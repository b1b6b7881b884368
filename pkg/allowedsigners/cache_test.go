package allowedsigners

import (
	"context"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/authz/local"
)

func decompress(t *testing.T, compressed []byte) string {
	t.Helper()
	decoder, err := zstd.NewReader(nil)
	require.NoError(t, err)
	defer decoder.Close()
	plaintext, err := decoder.DecodeAll(compressed, nil)
	require.NoError(t, err)
	return string(plaintext)
}

func TestCache_PopulatesFromBackendOnFirstCall(t *testing.T) {
	backend := local.New(nil, []authz.AllowedSigner{
		{Identity: "alice@example.com", Pubkey: "ssh-ed25519 AAAAC3 alice"},
		{Identity: "bob@example.com", Pubkey: "ssh-ed25519 AAAAC3 bob"},
	})
	cache, err := NewCache(backend, time.Minute)
	require.NoError(t, err)

	compressed, err := cache.Get(context.Background(), time.Unix(1_000_000, 0))
	require.NoError(t, err)

	plaintext := decompress(t, compressed)
	assert.Equal(t, "alice@example.com ssh-ed25519 AAAAC3 alice\nbob@example.com ssh-ed25519 AAAAC3 bob", plaintext)
}

func TestCache_ServesCachedBytesWithinValidity(t *testing.T) {
	backend := local.New(nil, []authz.AllowedSigner{
		{Identity: "alice@example.com", Pubkey: "ssh-ed25519 AAAAC3 alice"},
	})
	cache, err := NewCache(backend, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	first, err := cache.Get(context.Background(), now)
	require.NoError(t, err)

	// Mutate the backend after the first fetch; a still-valid cache
	// entry must not reflect it.
	backend.Replace([]authz.AllowedSigner{
		{Identity: "carol@example.com", Pubkey: "ssh-ed25519 AAAAC3 carol"},
	})

	second, err := cache.Get(context.Background(), now.Add(30*time.Second))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCache_RefreshesAfterExpiry(t *testing.T) {
	backend := local.New(nil, []authz.AllowedSigner{
		{Identity: "alice@example.com", Pubkey: "ssh-ed25519 AAAAC3 alice"},
	})
	cache, err := NewCache(backend, time.Minute)
	require.NoError(t, err)

	now := time.Unix(1_000_000, 0)
	_, err = cache.Get(context.Background(), now)
	require.NoError(t, err)

	backend.Replace([]authz.AllowedSigner{
		{Identity: "carol@example.com", Pubkey: "ssh-ed25519 AAAAC3 carol"},
	})

	refreshed, err := cache.Get(context.Background(), now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com ssh-ed25519 AAAAC3 carol", decompress(t, refreshed))
}
