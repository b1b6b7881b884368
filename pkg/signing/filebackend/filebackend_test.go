package filebackend

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/signing"
)

func writeSSHKey(t *testing.T, dir, name string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := ssh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestLoad_EmptyConfigProducesNoCapabilities(t *testing.T) {
	backend, err := Load(Config{})
	require.NoError(t, err)

	_, hasUser := backend.SignerPublicKey(signing.CertTypeUser)
	require.False(t, hasUser)
	_, hasHost := backend.SignerPublicKey(signing.CertTypeHost)
	require.False(t, hasHost)
	_, hasAttested := backend.AttestedX509CA()
	require.False(t, hasAttested)
	_, hasClient := backend.ClientCA()
	require.False(t, hasClient)
}

func TestLoad_LoadsUserAndHostKeys(t *testing.T) {
	dir := t.TempDir()
	userPath := writeSSHKey(t, dir, "user_ca")
	hostPath := writeSSHKey(t, dir, "host_ca")

	backend, err := Load(Config{UserKeyPath: userPath, HostKeyPath: hostPath})
	require.NoError(t, err)

	userKey, ok := backend.SignerPublicKey(signing.CertTypeUser)
	require.True(t, ok)
	require.NotEmpty(t, ssh.FingerprintSHA256(userKey))

	hostKey, ok := backend.SignerPublicKey(signing.CertTypeHost)
	require.True(t, ok)
	require.NotEqual(t, ssh.FingerprintSHA256(userKey), ssh.FingerprintSHA256(hostKey))
}

func TestLoad_MissingKeyFileFails(t *testing.T) {
	_, err := Load(Config{UserKeyPath: filepath.Join(t.TempDir(), "missing")})
	require.Error(t, err)
}

func TestBackend_SignsWithLoadedKey(t *testing.T) {
	dir := t.TempDir()
	userPath := writeSSHKey(t, dir, "user_ca")

	backend, err := Load(Config{UserKeyPath: userPath})
	require.NoError(t, err)

	userKey, _ := backend.SignerPublicKey(signing.CertTypeUser)
	cert := &ssh.Certificate{Key: userKey, CertType: ssh.UserCert}

	signed, err := backend.Sign(context.Background(), signing.CertTypeUser, cert)
	require.NoError(t, err)
	require.NotEmpty(t, signed.Signature)
}

func TestBackend_SignFailsWithoutConfiguredKey(t *testing.T) {
	backend, err := Load(Config{})
	require.NoError(t, err)

	_, err = backend.Sign(context.Background(), signing.CertTypeHost, &ssh.Certificate{})
	require.Error(t, err)
}
