// Package tokenbackend is a signing.Backend whose key material lives on a
// hardware security token (PIV/PKCS#11) rather than on local disk. The
// actual token driver is an external collaborator: this package only
// adapts a caller-supplied ssh.Signer pair into the signing.Backend
// contract. SignerPublicKey calls the supplied signer's PublicKey on every
// lookup; this package does not cache the key itself.
package tokenbackend

import (
	"context"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/signing"
)

// Config supplies the already-connected token signers for each role. A
// nil Signer means that role is not available from this token slot.
type Config struct {
	UserSigner ssh.Signer
	HostSigner ssh.Signer

	AttestedX509CA *signing.CertificateAuthority
	ClientCA       *signing.CertificateAuthority
}

// Backend adapts token-backed signers to signing.Backend. Construction
// does not itself talk to hardware; Config.UserSigner/HostSigner are
// expected to already wrap a live token session supplied by the caller.
type Backend struct {
	cfg Config
}

// New wraps cfg as a signing.Backend.
func New(cfg Config) *Backend {
	return &Backend{cfg: cfg}
}

// Sign implements signing.Backend. Token signing operations can be slow
// (a user tap, a USB round trip); cancellation isn't honored mid-op since
// the underlying PKCS#11 call has no cancel hook, but ctx.Err() is
// checked before issuing the call so an already-cancelled caller fails
// fast.
func (b *Backend) Sign(ctx context.Context, certType signing.CertType, cert *ssh.Certificate) (*ssh.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, fmt.Errorf("token does not have the requested SSH key configured")
	}
	if err := cert.SignCert(rand.Reader, signer); err != nil {
		return nil, fmt.Errorf("signing certificate on token: %w", err)
	}
	return cert, nil
}

// SignerPublicKey implements signing.Backend.
func (b *Backend) SignerPublicKey(certType signing.CertType) (ssh.PublicKey, bool) {
	signer := b.signerFor(certType)
	if signer == nil {
		return nil, false
	}
	return signer.PublicKey(), true
}

func (b *Backend) signerFor(certType signing.CertType) ssh.Signer {
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
