// Package local is a reference authz.Backend grounded on the Rust
// auth::database::LocalDatabase variant: an in-memory, mutex-protected
// authorization backend suitable for local testing and single-node
// deployments. Remote/production authorization backends remain external
// collaborators.
package local

import (
	"context"
	"sync"

	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/config"
)

// Principal is one statically configured caller: the set of mTLS
// identities it authenticates as, the SSH principals it may request, and
// the authority that should sign for it.
type Principal struct {
	MTLSIdentities []string
	SSHPrincipals  []string
	Authority      string
	ForceSourceIP  bool
}

// Backend is an in-memory authorization backend keyed by mTLS identity.
// It is safe for concurrent use; the entire decision surface is a map
// lookup plus an in-memory serial counter, so no lock is ever held across
// I/O.
type Backend struct {
	mu          sync.Mutex
	principals  map[string]Principal
	allowed     []authz.AllowedSigner
	nextSerial  uint64
	registered  map[string]authz.KeyAttestation
}

// New builds a Backend from a static principal list and allowed-signers
// set, as a local deployment's operator would configure both in one
// TOML-adjacent file.
func New(principals map[string]Principal, allowed []authz.AllowedSigner) *Backend {
	return &Backend{
		principals: principals,
		allowed:    allowed,
		nextSerial: 1,
		registered: make(map[string]authz.KeyAttestation),
	}
}

// FromConfig builds a Backend from the authorization.local_principals and
// authorization.local_allowed_signers sections of a loaded Config,
// indexing principals by every mTLS identity they authenticate as so
// lookup needs no iteration over the configured list.
func FromConfig(cfg config.Authorization) *Backend {
	principals := make(map[string]Principal, len(cfg.LocalPrincipals))
	for _, p := range cfg.LocalPrincipals {
		principal := Principal{
			MTLSIdentities: p.MTLSIdentities,
			SSHPrincipals:  p.SSHPrincipals,
			Authority:      p.Authority,
			ForceSourceIP:  p.ForceSourceIP,
		}
		for _, id := range p.MTLSIdentities {
			principals[id] = principal
		}
	}

	allowed := make([]authz.AllowedSigner, 0, len(cfg.LocalAllowedSigners))
	for _, s := range cfg.LocalAllowedSigners {
		allowed = append(allowed, authz.AllowedSigner{Identity: s.Identity, Pubkey: s.Pubkey})
	}

	return New(principals, allowed)
}

func (b *Backend) lookup(identities []string) (Principal, bool) {
	for _, id := range identities {
		if p, ok := b.principals[id]; ok {
			return p, true
		}
	}
	return Principal{}, false
}

// AuthorizeSSHCert implements authz.Backend.
func (b *Backend) AuthorizeSSHCert(_ context.Context, req authz.SSHRequest) (*authz.SSHResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	principal, ok := b.lookup(req.MTLSIdentities)
	if !ok {
		return nil, authz.ErrNotAuthorized("no principal configured for presented mTLS identities")
	}

	for _, want := range req.Principals {
		if !contains(principal.SSHPrincipals, want) {
			return nil, authz.ErrNotAuthorized("requested principal not permitted: " + want)
		}
	}

	serial := b.nextSerial
	b.nextSerial++

	return &authz.SSHResult{
		Authority:     principal.Authority,
		Serial:        serial,
		ValidBefore:   req.ValidBefore,
		ValidAfter:    req.ValidAfter,
		Principals:    req.Principals,
		Extensions:    map[string]string{"permit-pty": ""},
		ForceSourceIP: principal.ForceSourceIP,
	}, nil
}

// AuthorizeAttestedX509Cert implements authz.Backend.
func (b *Backend) AuthorizeAttestedX509Cert(_ context.Context, req authz.X509Request) (*authz.X509Result, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	principal, ok := b.lookup(req.MTLSIdentities)
	if !ok {
		return nil, authz.ErrNotAuthorized("no principal configured for presented mTLS identities")
	}

	serial := b.nextSerial
	b.nextSerial++

	commonName := req.MTLSIdentities[0]
	return &authz.X509Result{
		Authority:  principal.Authority,
		CommonName: commonName,
		Serial:     serial,
	}, nil
}

// RegisterKey implements authz.Backend by recording the attestation
// against the caller's identity; it never rejects a well-formed request
// since this reference backend has no registration policy beyond "the
// caller authenticated".
func (b *Backend) RegisterKey(_ context.Context, req authz.RegisterKeyRequest) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(req.MTLSIdentities) == 0 {
		return authz.ErrNotAuthorized("no mTLS identity presented")
	}
	if req.Attestation != nil {
		b.registered[req.MTLSIdentities[0]] = *req.Attestation
	}
	return nil
}

// GetAllowedSigners implements authz.Backend.
func (b *Backend) GetAllowedSigners(_ context.Context) ([]authz.AllowedSigner, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]authz.AllowedSigner, len(b.allowed))
	copy(out, b.allowed)
	return out, nil
}

// Replace swaps the allowed-signers list wholesale, for operators who
// reload this backend's static configuration without restarting.
func (b *Backend) Replace(allowed []authz.AllowedSigner) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.allowed = allowed
}

func contains(haystack []string, needle string) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
