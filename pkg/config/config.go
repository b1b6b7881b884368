// Package config loads and validates jitca's TOML-shaped configuration,
// mirroring the two-stage -v/-vv validation levels from
// original_source/rustica/src/config/mod.rs: one -v validates that the
// file parses; two validates that every configured key can actually be
// accessed (signing keys load, authorities resolve, TLS material exists).
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// ClientAuthority configures which authority's client CA mints rolling
// mTLS certificates, and the reissuance thresholds that govern them.
type ClientAuthority struct {
	Authority                string `toml:"authority"`
	ValidityLength           uint64 `toml:"validity_length"`
	ExpirationRenewalPeriod  uint64 `toml:"expiration_renewal_period"`
}

// AllowedSigners configures the allowed-signers cache and rate limiter.
type AllowedSigners struct {
	CacheValidityLength time.Duration `toml:"cache_validity_length"`
	LRURateLimiterSize  int           `toml:"lru_rate_limiter_size"`
	RateLimitCooldown   time.Duration `toml:"rate_limit_cooldown"`
}

// SignerKind selects which backend family a configured authority uses.
type SignerKind string

const (
	SignerKindFile  SignerKind = "file"
	SignerKindToken SignerKind = "token"
	SignerKindKMS   SignerKind = "kms"
)

// AuthorityConfig is one entry of signing.authority_configurations. Only
// the fields relevant to Kind are populated by an operator; the rest are
// ignored.
type AuthorityConfig struct {
	Kind SignerKind `toml:"kind"`

	UserKeyPath                 string `toml:"user_key_path"`
	UserKeyPassphrase           string `toml:"user_key_passphrase"`
	UserKeyEncryptionPassphrase string `toml:"user_key_encryption_passphrase"`

	HostKeyPath                 string `toml:"host_key_path"`
	HostKeyPassphrase           string `toml:"host_key_passphrase"`
	HostKeyEncryptionPassphrase string `toml:"host_key_encryption_passphrase"`

	AttestedX509CACertPath string `toml:"attested_x509_ca_cert_path"`
	AttestedX509CAKeyPath  string `toml:"attested_x509_ca_key_path"`

	ClientCACertPath string `toml:"client_ca_cert_path"`
	ClientCAKeyPath  string `toml:"client_ca_key_path"`

	// TokenModule/KMSKeyID are placeholders consumed by operator-supplied
	// token/KMS client wiring, which is an external collaborator (see
	// signing/tokenbackend and signing/kmsbackend).
	TokenModule string `toml:"token_module"`
	KMSKeyID    string `toml:"kms_key_id"`
}

// Signing configures the multi-authority signing registry.
type Signing struct {
	DefaultAuthority        string                     `toml:"default_authority"`
	AuthorityConfigurations map[string]AuthorityConfig `toml:"authority_configurations"`
}

// Authorization configures the external authorization backend. The
// backend implementation itself is an external collaborator; jitca only
// needs enough here to select and construct one (see pkg/authz). Kind
// "local" is the one backend this repository provides a concrete
// implementation for (pkg/authz/local); "remote" is accepted by the
// taxonomy but left to an operator-supplied pkg/authz.Backend, since a
// production authorization RPC client is outside this repository's
// scope.
type Authorization struct {
	Kind     string `toml:"kind"`
	Database string `toml:"database"`

	RemoteServer string `toml:"server"`
	RemotePort   string `toml:"port"`
	RemoteCA     string `toml:"ca"`
	MTLSCert     string `toml:"mtls_cert"`
	MTLSKey      string `toml:"mtls_key"`

	LocalPrincipals     []LocalPrincipal     `toml:"local_principals"`
	LocalAllowedSigners []LocalAllowedSigner `toml:"local_allowed_signers"`
}

// LocalPrincipal is one statically configured caller for the "local"
// authorization backend.
type LocalPrincipal struct {
	MTLSIdentities []string `toml:"mtls_identities"`
	SSHPrincipals  []string `toml:"ssh_principals"`
	Authority      string   `toml:"authority"`
	ForceSourceIP  bool     `toml:"force_source_ip"`
}

// LocalAllowedSigner is one statically configured allowed-signers entry
// for the "local" authorization backend.
type LocalAllowedSigner struct {
	Identity string `toml:"identity"`
	Pubkey   string `toml:"pubkey"`
}

// Logging selects the logging sink and level. jitca always logs
// structurally via zerolog (pkg/log); this only selects destination.
type Logging struct {
	Sink  string `toml:"sink"`
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// Config is the root TOML document for a jitca process.
type Config struct {
	ServerCert      string          `toml:"server_cert"`
	ServerKey       string          `toml:"server_key"`
	ClientAuthority ClientAuthority `toml:"client_authority"`
	ListenAddress   string          `toml:"listen_address"`
	Signing         Signing         `toml:"signing"`
	Authorization   Authorization   `toml:"authorization"`

	RequireRusticaProof    bool `toml:"require_rustica_proof"`
	RequireAttestationChain bool `toml:"require_attestation_chain"`

	AllowedSigners AllowedSigners `toml:"allowed_signers"`
	Logging        Logging        `toml:"logging"`
}

// Error is config's closed error taxonomy, mirrored after
// ConfigurationError in original_source/rustica/src/config/mod.rs so
// startup failures keep the same stable, identifiable categories.
type Error struct {
	kind    errorKind
	message string
}

type errorKind int

const (
	kindFile errorKind = iota
	kindParsing
	kindInvalidListenAddress
	kindAuthorizer
	kindSigningMechanism
	kindValidateOnly
	kindDefaultAuthorityDoesNotHaveSSHKeys
	kindNoSuchSigningMechanismForClientCA
)

func (e *Error) Error() string { return e.message }

// IsValidateOnly reports whether err is the "validation requested, config
// is fine, don't actually start" sentinel from -v/-vv.
func IsValidateOnly(err error) bool {
	e, ok := err.(*Error)
	return ok && e.kind == kindValidateOnly
}

func errFile(path string, cause error) *Error {
	return &Error{kind: kindFile, message: fmt.Sprintf("could not read configuration file %s: %v", path, cause)}
}

func errParsing(cause error) *Error {
	return &Error{kind: kindParsing, message: fmt.Sprintf("could not parse the configuration file: %v", cause)}
}

func errInvalidListenAddress(addr string) *Error {
	return &Error{kind: kindInvalidListenAddress, message: fmt.Sprintf("invalid address and/or port to listen on: %q", addr)}
}

func errAuthorizer(cause error) *Error {
	return &Error{kind: kindAuthorizer, message: fmt.Sprintf("configuration for authorization was invalid: %v", cause)}
}

func errSigningMechanism(cause error) *Error {
	return &Error{kind: kindSigningMechanism, message: cause.Error()}
}

func errValidateOnly() *Error {
	return &Error{kind: kindValidateOnly, message: "configuration was validated"}
}

func errDefaultAuthorityDoesNotHaveSSHKeys() *Error {
	return &Error{kind: kindDefaultAuthorityDoesNotHaveSSHKeys, message: "the default authority must provide SSH keys"}
}

func errNoSuchSigningMechanismForClientCA(chosen string, options []string) *Error {
	return &Error{kind: kindNoSuchSigningMechanismForClientCA, message: fmt.Sprintf(
		"the requested signing mechanism to issue client certificates (%s) is not configured; options are: %v", chosen, options)}
}

// ValidationLevel mirrors the Rust CLI's repeated -v flag: Parse only
// checks the TOML decodes; Full additionally requires every referenced
// key/authority to load successfully.
type ValidationLevel int

const (
	ValidationNone ValidationLevel = iota
	ValidationParseOnly
	ValidationFull
)

// Load reads and parses the TOML file at path. It does not resolve
// signing authorities or authorization backends — callers needing the
// ValidationFull checks or the running server must do that themselves
// using the returned Config, since those steps require the wiring in
// pkg/signing and pkg/authz that config intentionally does not import
// (it would create an import cycle with the backend packages that are
// themselves configured by this struct).
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errFile(path, err)
	}

	var cfg Config
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return nil, errParsing(err)
	}

	return &cfg, nil
}

// ValidateListenAddress parses ListenAddress, returning the config error
// taxonomy's InvalidListenAddress on failure.
func (c *Config) ValidateListenAddress() (*net.TCPAddr, error) {
	addr, err := net.ResolveTCPAddr("tcp", c.ListenAddress)
	if err != nil {
		return nil, errInvalidListenAddress(c.ListenAddress)
	}
	return addr, nil
}

// ValidateClientAuthority checks that ClientAuthority.Authority names one
// of the authorities the signing registry actually resolved a client CA
// for. The registry itself can't be constructed here (see the Load doc
// comment on the import cycle this package avoids), so the caller passes
// the set of authority names it found a client CA under after building
// its registry.
func (c *Config) ValidateClientAuthority(authoritiesWithClientCA []string) error {
	for _, name := range authoritiesWithClientCA {
		if name == c.ClientAuthority.Authority {
			return nil
		}
	}
	return errNoSuchSigningMechanismForClientCA(c.ClientAuthority.Authority, authoritiesWithClientCA)
}
