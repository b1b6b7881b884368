package signing

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// stubBackend is a minimal signing.Backend built directly from SSH
// signers, for registry-level invariant tests that don't need a real
// file-backed or token-backed implementation.
type stubBackend struct {
	user, host ssh.Signer
}

func (b stubBackend) Sign(_ context.Context, certType CertType, cert *ssh.Certificate) (*ssh.Certificate, error) {
	signer := b.signerFor(certType)
	if err := cert.SignCert(rand.Reader, signer); err != nil {
		return nil, err
	}
	return cert, nil
}

func (b stubBackend) SignerPublicKey(certType CertType) (ssh.PublicKey, bool) {
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, false
	}
	return signer.PublicKey(), true
}

func (b stubBackend) signerFor(certType CertType) ssh.Signer {
	switch certType {
	case CertTypeUser:
		return b.user
	case CertTypeHost:
		return b.host
	default:
		return nil
	}
}

func (stubBackend) AttestedX509CA() (*CertificateAuthority, bool) { return nil, false }
func (stubBackend) ClientCA() (*CertificateAuthority, bool)       { return nil, false }

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromSigner(priv)
	require.NoError(t, err)
	return signer
}

func TestNew_RejectsIdenticalUserAndHostKey(t *testing.T) {
	key := newSigner(t)
	_, err := New("default", map[string]Backend{
		"default": stubBackend{user: key, host: key},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identical key")
}

func TestNew_RejectsDuplicatedKeyAcrossAuthorities(t *testing.T) {
	shared := newSigner(t)
	_, err := New("a", map[string]Backend{
		"a": stubBackend{user: shared, host: newSigner(t)},
		"b": stubBackend{user: shared, host: newSigner(t)},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "share at least one key")
}

func TestNew_RejectsDefaultAuthorityWithoutUserKey(t *testing.T) {
	_, err := New("default", map[string]Backend{
		"default": stubBackend{host: newSigner(t)},
	})
	require.Error(t, err)
}

func TestNew_AcceptsDistinctValidAuthorities(t *testing.T) {
	registry, err := New("default", map[string]Backend{
		"default": stubBackend{user: newSigner(t), host: newSigner(t)},
		"other":   stubBackend{user: newSigner(t)},
	})
	require.NoError(t, err)
	assert.Equal(t, "default", registry.DefaultAuthority())
	assert.Len(t, registry.Authorities(), 2)
}

func TestRegistry_SignDispatchesToNamedAuthority(t *testing.T) {
	userKey := newSigner(t)
	registry, err := New("default", map[string]Backend{
		"default": stubBackend{user: userKey},
	})
	require.NoError(t, err)

	cert := &ssh.Certificate{Key: userKey.PublicKey(), CertType: ssh.UserCert}
	signed, err := registry.Sign(context.Background(), "default", CertTypeUser, cert)
	require.NoError(t, err)
	assert.NotEmpty(t, signed.Signature)
}

func TestRegistry_SignUnknownAuthority(t *testing.T) {
	registry, err := New("default", map[string]Backend{
		"default": stubBackend{user: newSigner(t)},
	})
	require.NoError(t, err)

	_, err = registry.Sign(context.Background(), "nope", CertTypeUser, &ssh.Certificate{})
	require.Error(t, err)
	assert.True(t, IsUnknownAuthority(err))
}
