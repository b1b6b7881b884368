// Package authz defines the contract jitca's issuance pipeline uses to
// consult an external authorization backend. The backend implementation
// (local database or remote RPC) is itself an external collaborator;
// this package only fixes the request/result shapes and error taxonomy
// the core depends on.
package authz

import (
	"context"

	"golang.org/x/crypto/ssh"
)

// SSHRequest is the authorization request for an SSH certificate,
// produced by the issuance pipeline from a validated challenge plus
// the caller's Certificate RPC parameters.
type SSHRequest struct {
	Fingerprint    string
	MTLSIdentities []string
	RequesterIP    string
	Principals     []string
	Servers        []string
	ValidBefore    uint64
	ValidAfter     uint64
	CertType       ssh.CertType
}

// SSHResult is the authorization backend's decision for an SSH
// certificate request. Authority may differ from the authority the
// caller requested: the backend is allowed to redirect which CA signs,
// and that redirection must be honored, not "corrected".
type SSHResult struct {
	Authority     string
	Serial        uint64
	ValidBefore   uint64
	ValidAfter    uint64
	Principals    []string
	Extensions    map[string]string
	ForceCommand  string
	ForceSourceIP bool
}

// X509Request is the authorization request for an attested X.509 client
// certificate.
type X509Request struct {
	Fingerprint    string
	MTLSIdentities []string
	RequesterIP    string
	KeyID          string
}

// X509Result is the authorization backend's decision for an attested
// X.509 request.
type X509Result struct {
	Authority   string
	CommonName  string
	Serial      uint64
	ValidBefore uint64
	ValidAfter  uint64
	Extensions  map[string]string
}

// KeyAttestation carries the attested hardware key fingerprint recovered
// from a PIV or U2F attestation chain, if any was presented and
// verified.
type KeyAttestation struct {
	Fingerprint string
	Kind        string // "piv" or "u2f"
}

// RegisterKeyRequest is the authorization request for the key
// registration endpoints.
type RegisterKeyRequest struct {
	Fingerprint    string
	MTLSIdentities []string
	RequesterIP    string
	Attestation    *KeyAttestation // nil if none was verified
}

// AllowedSigner is one entry of the allowed-signers list: an identity and
// its OpenSSH-formatted public key.
type AllowedSigner struct {
	Identity string
	Pubkey   string
}

// Error is authz's closed error taxonomy, mirrored after the Rust
// AuthorizationError enum.
type Error struct {
	kind    errorKind
	message string
}

type errorKind int

const (
	kindCertType errorKind = iota
	kindNotAuthorized
	kindAuthorizerError
)

func (e *Error) Error() string { return e.message }

// ErrCertType signals the backend rejected the requested cert type.
func ErrCertType(message string) error { return &Error{kind: kindCertType, message: message} }

// ErrNotAuthorized signals a policy denial.
func ErrNotAuthorized(message string) error { return &Error{kind: kindNotAuthorized, message: message} }

// ErrAuthorizerError signals the backend itself failed (unreachable,
// internal error) as distinct from a policy denial.
func ErrAuthorizerError(message string) error { return &Error{kind: kindAuthorizerError, message: message} }

// IsNotAuthorized reports whether err is a policy denial.
func IsNotAuthorized(err error) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kindNotAuthorized
}

// Backend is the contract an authorization implementation satisfies.
type Backend interface {
	AuthorizeSSHCert(ctx context.Context, req SSHRequest) (*SSHResult, error)
	AuthorizeAttestedX509Cert(ctx context.Context, req X509Request) (*X509Result, error)
	RegisterKey(ctx context.Context, req RegisterKeyRequest) error
	GetAllowedSigners(ctx context.Context) ([]AllowedSigner, error)
}
