// Package kmsbackend is a signing.Backend whose key material is held by a
// cloud KMS. The KMS client is an external collaborator; this package
// adapts a caller-supplied remote-signing client into the signing.Backend
// contract, performing the SSH certificate signature as a remote call.
// Public-key lookups call the supplied signer's PublicKey on every
// request; this package neither fetches nor caches the key itself.
package kmsbackend

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/signing"
)

// RemoteSigner is the narrow shape a KMS client adapter must provide: an
// ssh.Signer, whose Sign and PublicKey methods this package calls
// directly.
type RemoteSigner interface {
	ssh.Signer
}

// Config supplies the already-constructed remote signers per role.
type Config struct {
	UserSigner RemoteSigner
	HostSigner RemoteSigner

	AttestedX509CA *signing.CertificateAuthority
	ClientCA       *signing.CertificateAuthority
}

// Backend adapts KMS-backed signers to signing.Backend.
type Backend struct {
	cfg Config
}

// New wraps cfg as a signing.Backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Sign implements signing.Backend by issuing a remote KMS signing call.
func (b *Backend) Sign(ctx context.Context, certType signing.CertType, cert *ssh.Certificate) (*ssh.Certificate, error) {
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, fmt.Errorf("KMS authority does not have the requested SSH key configured")
	}
	done := make(chan error, 1)
	go func() {
		done <- cert.SignCert(rand.Reader, signer)
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("signing certificate via KMS: %w", err)
		}
		return cert, nil
	}
}

// SignerPublicKey implements signing.Backend.
func (b *Backend) SignerPublicKey(certType signing.CertType) (ssh.PublicKey, bool) {
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, false
	}
	return signer.PublicKey(), true
}

func (b *Backend) signerFor(certType signing.CertType) RemoteSigner {
	switch certType {
	case signing.CertTypeUser:
		return b.cfg.UserSigner
	case signing.CertTypeHost:
		return b.cfg.HostSigner
	default:
		return nil
	}
}

// AttestedX509CA implements signing.Backend.
func (b *Backend) AttestedX509CA() (*signing.CertificateAuthority, bool) {
	if b.cfg.AttestedX509CA == nil {
		return nil, false
	}
	return b.cfg.AttestedX509CA, true
}

// ClientCA implements signing.Backend.
func (b *Backend) ClientCA() (*signing.CertificateAuthority, bool) {
	if b.cfg.ClientCA == nil {
		return nil, false
	}
	return b.cfg.ClientCA, true
}
