// Package issuance implements the certificate issuance pipeline: the
// SSH certificate endpoint and the two key-registration endpoints,
// grounded on original_source/rustica/src/server.rs's certificate,
// register_key and register_u2f_key handlers. The attested X.509 flow
// lives in x509.go.
package issuance

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/attestation"
	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/challenge"
	"github.com/cuemby/jitca/pkg/errtax"
	"github.com/cuemby/jitca/pkg/identity"
	"github.com/cuemby/jitca/pkg/log"
	"github.com/cuemby/jitca/pkg/signing"
)

// Issuer wires the challenge engine, signing registry, authorization
// backend and attestation verifiers into the issuance endpoints. One
// Issuer serves the whole process; all fields are read-only after
// construction.
type Issuer struct {
	Challenges       *challenge.Engine
	Signers          *signing.Registry
	Authorizer       authz.Backend
	PIV              attestation.PIVVerifier
	U2F              attestation.U2FVerifier
	RequireAttestation bool

	// ReissuancePolicy controls when Certificate opportunistically mints
	// a fresh mTLS client certificate alongside the requested SSH cert.
	ReissuancePolicy challenge.ReissuancePolicy
	// ClientAuthority names the signing authority whose ClientCA mints
	// the reissued mTLS certificate.
	ClientAuthority string
}

// SSHCertificateRequest is the wire-level input to Certificate, already
// decoded from transport but otherwise unvalidated.
type SSHCertificateRequest struct {
	ChallengeTime        string
	ChallengePubkey      string
	ChallengeCertificate string
	Principals           []string
	Servers              []string
	ValidAfter           uint64
	ValidBefore          uint64
	CertType             ssh.CertType
	Authority            string // empty selects the default authority
}

// SSHCertificateResult is Certificate's success payload. The client
// certificate fields are empty unless a reissuance was due.
type SSHCertificateResult struct {
	Certificate              string
	NewClientCertificatePEM  string
	NewClientKeyPEM          string
}

// Certificate validates a challenge/response proof of possession,
// authorizes the requested SSH certificate, and signs it under the
// authority the authorization backend returns, which may differ from the
// requested (or default) one. Every rejection reason is an
// *errtax.Error: callers surface it inline in the RPC response rather
// than as a transport-level failure.
func (iss *Issuer) Certificate(ctx context.Context, peerIdentity identity.Set, remoteIP string, req SSHCertificateRequest) (*SSHCertificateResult, error) {
	validated, err := iss.Challenges.Validate(peerIdentity, req.ChallengeTime, req.ChallengePubkey, req.ChallengeCertificate, iss.ReissuancePolicy)
	if err != nil {
		return nil, err
	}

	now := uint64(time.Now().Unix())
	if req.ValidBefore < req.ValidAfter || now > req.ValidBefore {
		return nil, errtax.New(errtax.BadCertOptions, "requested validity window is invalid or already expired")
	}

	var certType signing.CertType
	switch req.CertType {
	case ssh.UserCert:
		certType = signing.CertTypeUser
	case ssh.HostCert:
		certType = signing.CertTypeHost
	default:
		return nil, errtax.New(errtax.BadCertOptions, "unsupported certificate type")
	}

	authorityName := req.Authority
	if authorityName == "" {
		authorityName = iss.Signers.DefaultAuthority()
	}

	fingerprint := ssh.FingerprintSHA256(validated.Pubkey)

	// Reject before calling the authorization backend when the requested
	// authority is unknown or has no SSH key for the requested cert type;
	// every public key is held in memory, so this check does no I/O.
	if _, err := iss.Signers.SignerPublicKey(authorityName, certType); err != nil {
		return nil, errtax.New(errtax.NotAuthorized, "requested authority is not configured")
	}

	logger := log.WithIdentities(peerIdentity.CommonNames)
	logger.Debug().Str("fingerprint", fingerprint).Str("authority", authorityName).
		Msg("requesting SSH certificate")

	authResult, err := iss.Authorizer.AuthorizeSSHCert(ctx, authz.SSHRequest{
		Fingerprint:    fingerprint,
		MTLSIdentities: peerIdentity.CommonNames,
		RequesterIP:    remoteIP,
		Principals:     req.Principals,
		Servers:        req.Servers,
		ValidAfter:     req.ValidAfter,
		ValidBefore:    req.ValidBefore,
		CertType:       req.CertType,
	})
	if err != nil {
		return nil, errtax.New(errtax.NotAuthorized, err.Error())
	}

	criticalOptions := map[string]string{}
	if authResult.ForceCommand != "" {
		criticalOptions["force-command"] = authResult.ForceCommand
	}
	if authResult.ForceSourceIP {
		host := remoteIP
		if h, _, splitErr := net.SplitHostPort(remoteIP); splitErr == nil {
			host = h
		}
		criticalOptions["source-address"] = host
	}

	cert := &ssh.Certificate{
		Key:             validated.Pubkey,
		CertType:        req.CertType,
		Serial:          authResult.Serial,
		KeyId:           fmt.Sprintf("jitca-cert-for-%s", fingerprint),
		ValidPrincipals: authResult.Principals,
		ValidAfter:      authResult.ValidAfter,
		ValidBefore:     authResult.ValidBefore,
		Permissions: ssh.Permissions{
			CriticalOptions: criticalOptions,
			Extensions:      authResult.Extensions,
		},
	}

	// The authorization backend, not the caller, has final say over
	// which authority signs: it may redirect to a different authority
	// than the one requested, and that redirection is honored as-is.
	signed, err := iss.Signers.Sign(ctx, authResult.Authority, certType, cert)
	if err != nil {
		return nil, errtax.New(errtax.BadChallenge, "signing certificate failed")
	}

	serialized := string(ssh.MarshalAuthorizedKey(signed))
	if _, _, _, _, parseErr := ssh.ParseAuthorizedKey([]byte(serialized)); parseErr != nil {
		logger.Error().Str("certificate", serialized).Msg("freshly issued certificate failed to round-trip")
		return nil, errtax.New(errtax.BadCertOptions, "generated certificate failed validation")
	}

	result := &SSHCertificateResult{Certificate: serialized}

	if validated.Reissuance != nil {
		certPEM, keyPEM, reissueErr := iss.reissueClientCertificate(peerIdentity.CommonNames, validated.Reissuance)
		if reissueErr != nil {
			logger.Warn().Err(reissueErr).Msg("client certificate reissuance was due but failed")
		} else {
			result.NewClientCertificatePEM = certPEM
			result.NewClientKeyPEM = keyPEM
		}
	}

	logger.Debug().Str("fingerprint", fingerprint).Uint64("serial", authResult.Serial).
		Str("authority", authResult.Authority).Msg("issued SSH certificate")

	return result, nil
}

// RegisterKeyRequest is the shared shape between the PIV and U2F
// registration endpoints once their attestation chains have been
// verified.
type RegisterKeyRequest struct {
	ChallengeTime        string
	ChallengePubkey      string
	ChallengeCertificate string
}

// RegisterKey validates the challenge, resolves an attestation via
// verify (PIV or U2F, selected by the caller), and forwards the result
// to the authorization backend. Unlike Certificate, registration
// failures are surfaced as transport errors rather than inline response
// fields: jitca has no RegisterKeyResponse error field to carry a code
// in, mirroring original_source/rustica's handlers' use of tonic
// Status. The returned error is still tagged with an *errtax.Error so
// the caller can distinguish a malformed request (an attestation whose
// fingerprint doesn't match the challenge) from a generic backend
// failure when choosing a gRPC status code.
func (iss *Issuer) RegisterKey(ctx context.Context, peerIdentity identity.Set, remoteIP string, req RegisterKeyRequest, verify func(pubkeyFingerprint string) (*attestation.KeyAttestation, error)) error {
	validated, err := iss.Challenges.Validate(peerIdentity, req.ChallengeTime, req.ChallengePubkey, req.ChallengeCertificate, iss.ReissuancePolicy)
	if err != nil {
		return err
	}

	challengeFingerprint := ssh.FingerprintSHA256(validated.Pubkey)

	fingerprint := challengeFingerprint
	var keyAttestation *authz.KeyAttestation
	if attested, attestErr := verify(challengeFingerprint); attestErr == nil {
		if attested.Fingerprint != challengeFingerprint {
			return errtax.New(errtax.BadRequest, fmt.Sprintf(
				"attestation fingerprint %q did not match challenge fingerprint %q", attested.Fingerprint, challengeFingerprint))
		}
		fingerprint = attested.Fingerprint
		keyAttestation = &authz.KeyAttestation{Fingerprint: attested.Fingerprint}
	} else if iss.RequireAttestation {
		return fmt.Errorf("could not register a key without a valid attestation chain: %w", attestErr)
	}

	pubkeyLine := string(ssh.MarshalAuthorizedKey(validated.Pubkey))

	if err := iss.Authorizer.RegisterKey(ctx, authz.RegisterKeyRequest{
		Fingerprint:    fingerprint,
		MTLSIdentities: peerIdentity.CommonNames,
		RequesterIP:    remoteIP,
		Attestation:    keyAttestation,
	}); err != nil {
		log.WithIdentities(peerIdentity.CommonNames).Warn().Err(err).Str("pubkey", pubkeyLine).
			Msg("key registration was rejected by the authorization backend")
		return fmt.Errorf("could not register new key: %w", err)
	}

	log.WithIdentities(peerIdentity.CommonNames).Info().Str("fingerprint", fingerprint).Msg("registered new key")
	return nil
}
