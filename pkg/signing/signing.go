// Package signing implements the multi-authority signing registry: a
// named map of signing backends behind a uniform sign / get-public-key
// contract, with the startup-time key-uniqueness invariants required
// before the process is allowed to serve traffic.
package signing

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// CertType mirrors the wire cert_type values: 1=user, 2=host.
type CertType int

const (
	CertTypeUser CertType = 1
	CertTypeHost CertType = 2
)

// CertificateAuthority pairs an X.509 CA certificate with the private key
// able to sign under it, used for both the attested-X.509 CA role and the
// client-mTLS CA role a backend may expose.
type CertificateAuthority struct {
	Certificate *x509.Certificate
	Signer      crypto.Signer
}

// Backend is the contract every signing backend (file, hardware token,
// cloud KMS) must satisfy. Construction is backend-specific; once built, a
// Backend exposes up to four optional capabilities. Public key access must
// be synchronous and memoized at construction time; Sign may do network
// I/O and therefore takes a context.
type Backend interface {
	// Sign dispatches an SSH certificate to this backend's key for the
	// requested role and returns the signed certificate.
	Sign(ctx context.Context, certType CertType, cert *ssh.Certificate) (*ssh.Certificate, error)
	// SignerPublicKey returns this backend's SSH public key for the given
	// role, if configured.
	SignerPublicKey(certType CertType) (ssh.PublicKey, bool)
	// AttestedX509CA returns the CA used to sign attested X.509 client
	// certificates, if this backend is configured with one.
	AttestedX509CA() (*CertificateAuthority, bool)
	// ClientCA returns the CA used to mint rolling mTLS client
	// certificates, if this backend is configured with one.
	ClientCA() (*CertificateAuthority, bool)
}

// Registry is the runtime handle produced by validating a set of named
// backends at startup. It is immutable after construction and requires
// no locking once built.
type Registry struct {
	defaultAuthority string
	authorities      map[string]Backend
}

// New validates authorities against the startup key-uniqueness invariants
// and, if they all hold, returns a ready Registry. It never mutates its
// input map; callers own it afterward only for logging.
//
// Invariants enforced, in order, mirroring
// original_source/rustica/src/signing/mod.rs convert_to_signing_mechanism:
//  1. no backend may use the same key for user and host roles
//     (IdenticalUserAndHostKey).
//  2. no SSH public-key fingerprint may repeat across backends
//     (DuplicatedKey), checked against an accumulating map in iteration
//     order.
//  3. defaultAuthority must resolve and expose a user SSH key, checked
//     here by New itself and reported as a SignerDoesNotHaveSSHKeys
//     error naming the default authority.
func New(defaultAuthority string, authorities map[string]Backend) (*Registry, error) {
	seen := make(map[string]string, len(authorities))

	for name, backend := range authorities {
		userKey, hasUser := backend.SignerPublicKey(CertTypeUser)
		hostKey, hasHost := backend.SignerPublicKey(CertTypeHost)

		var userFP, hostFP string
		if hasUser {
			userFP = ssh.FingerprintSHA256(userKey)
		}
		if hasHost {
			hostFP = ssh.FingerprintSHA256(hostKey)
		}

		if hasUser && hasHost && userFP == hostFP {
			return nil, errIdenticalUserAndHostKey(name)
		}

		if hasUser {
			if existing, dup := seen[userFP]; dup {
				return nil, errDuplicatedKey(name, existing)
			}
			seen[userFP] = name
		}
		if hasHost {
			if existing, dup := seen[hostFP]; dup {
				return nil, errDuplicatedKey(name, existing)
			}
			seen[hostFP] = name
		}
	}

	reg := &Registry{defaultAuthority: defaultAuthority, authorities: authorities}

	if _, err := reg.SignerPublicKey(defaultAuthority, CertTypeUser); err != nil {
		return nil, &Error{kind: kindSignerDoesNotHaveSSHKeys, message: fmt.Sprintf(
			"default authority %q must provide an SSH user key", defaultAuthority)}
	}

	return reg, nil
}

// Sign dispatches to the named authority. UnknownAuthority if missing.
func (r *Registry) Sign(ctx context.Context, authority string, certType CertType, cert *ssh.Certificate) (*ssh.Certificate, error) {
	backend, ok := r.authorities[authority]
	if !ok {
		return nil, errUnknownAuthority(authority)
	}
	return backend.Sign(ctx, certType, cert)
}

// SignerPublicKey returns the authority's SSH public key for the role.
func (r *Registry) SignerPublicKey(authority string, certType CertType) (ssh.PublicKey, error) {
	backend, ok := r.authorities[authority]
	if !ok {
		return nil, errUnknownAuthority(authority)
	}
	key, ok := backend.SignerPublicKey(certType)
	if !ok {
		return nil, errSignerDoesNotHaveSSHKeys()
	}
	return key, nil
}

// AttestedX509CertificateAuthority returns the authority's attested-X.509 CA.
func (r *Registry) AttestedX509CertificateAuthority(authority string) (*CertificateAuthority, error) {
	backend, ok := r.authorities[authority]
	if !ok {
		return nil, errUnknownAuthority(authority)
	}
	ca, ok := backend.AttestedX509CA()
	if !ok {
		return nil, nil
	}
	return ca, nil
}

// ClientCertificateAuthority returns the authority's client-mTLS CA.
func (r *Registry) ClientCertificateAuthority(authority string) (*CertificateAuthority, error) {
	backend, ok := r.authorities[authority]
	if !ok {
		return nil, errUnknownAuthority(authority)
	}
	ca, ok := backend.ClientCA()
	if !ok {
		return nil, nil
	}
	return ca, nil
}

// Authorities enumerates configured authority names, for error messages
// that list valid options.
func (r *Registry) Authorities() []string {
	names := make([]string, 0, len(r.authorities))
	for name := range r.authorities {
		names = append(names, name)
	}
	return names
}

// DefaultAuthority returns the name selected as default_authority.
func (r *Registry) DefaultAuthority() string { return r.defaultAuthority }

// AuthoritiesWithClientCA enumerates the configured authorities that
// expose a client-mTLS CA, for validating client_authority.authority
// against what was actually loaded.
func (r *Registry) AuthoritiesWithClientCA() []string {
	var names []string
	for name, backend := range r.authorities {
		if _, ok := backend.ClientCA(); ok {
			names = append(names, name)
		}
	}
	return names
}

// Report renders a human-readable summary of configured authorities and
// their key fingerprints, used by `-vv` config validation to show what
// would be signed with, without starting the server.
func (r *Registry) Report() string {
	var b strings.Builder
	for name, backend := range r.authorities {
		fmt.Fprintf(&b, "Authority: %s\n", name)
		if key, ok := backend.SignerPublicKey(CertTypeUser); ok {
			fmt.Fprintf(&b, "\tUser CA fingerprint (SHA256): %s\n", ssh.FingerprintSHA256(key))
		}
		if key, ok := backend.SignerPublicKey(CertTypeHost); ok {
			fmt.Fprintf(&b, "\tHost CA fingerprint (SHA256): %s\n", ssh.FingerprintSHA256(key))
		}
		if ca, ok := backend.AttestedX509CA(); ok {
			fmt.Fprintf(&b, "\tAttested X509 CA subject: %s\n", ca.Certificate.Subject)
		}
		if ca, ok := backend.ClientCA(); ok {
			fmt.Fprintf(&b, "\tClient CA subject: %s\n", ca.Certificate.Subject)
		}
	}
	return b.String()
}
