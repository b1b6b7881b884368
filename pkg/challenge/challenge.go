// Package challenge implements the challenge/response proof-of-possession
// protocol: minting a zero-validity SSH host certificate whose
// key_id carries an HMAC binding of (time, pubkey, mTLS identity), and
// validating a caller's response against that binding with no
// server-side per-challenge state.
package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/errtax"
	"github.com/cuemby/jitca/pkg/identity"
)

const (
	// maxPubkeyBytes and maxChallengeCertBytes bound adversary-controlled
	// parsing work; both inputs arrive before any integrity check is
	// possible.
	maxPubkeyBytes        = 1024
	maxChallengeCertBytes = 1024

	// freshnessWindow is the maximum age, in seconds, of a challenge at
	// validation time. Deliberately short: it exists to prevent an
	// attacker from buffering pre-signed responses, not to accommodate
	// clock skew.
	freshnessWindow = 5

	// challengeSerial is the fixed sentinel serial on every challenge
	// certificate; it carries no meaning beyond "this is a challenge, not
	// a usable certificate" and is never checked at validation time.
	challengeSerial = 0xFEFEFEFEFEFEFEFE
)

// Engine mints and validates challenges using a process-wide HMAC key and
// a dedicated Ed25519 signing key for challenge certificates. Both are
// immutable after construction and safe for concurrent use without
// locking.
type Engine struct {
	hmacKey     []byte
	challengeKey ssh.Signer

	// requireProofOfPossession gates step 11 of Validate: when true, the
	// caller must have resigned the challenge certificate with the key
	// it names; when false, the server's own signature on the
	// certificate it issued is accepted instead.
	requireProofOfPossession bool
}

// New builds an Engine. hmacKey should be 32 bytes of process-startup
// randomness; challengeKey should be a freshly generated Ed25519 key
// used for nothing else.
func New(hmacKey []byte, challengeKey ssh.Signer, requireProofOfPossession bool) *Engine {
	return &Engine{hmacKey: hmacKey, challengeKey: challengeKey, requireProofOfPossession: requireProofOfPossession}
}

// ChallengeKeyFingerprint returns the SHA256 fingerprint of the engine's
// challenge signing key, used by Validate's non-proof-of-possession path.
func (e *Engine) ChallengeKeyFingerprint() string {
	return ssh.FingerprintSHA256(e.challengeKey.PublicKey())
}

// Minted is the result of Mint: a timestamp string, the serialized
// challenge certificate, and whether the caller may skip resigning it.
type Minted struct {
	Timestamp            string
	SerializedCertificate string
	NoSignatureRequired  bool
}

// Mint builds a challenge certificate binding pubkeyString and identities
// at the current time. pubkeyString longer than 1024 bytes or unparsable
// as an SSH public key fails with BadRequest and no further detail, so a
// probing caller learns nothing about why a request was rejected.
func (e *Engine) Mint(pubkeyString string, identities []string) (*Minted, error) {
	if len(pubkeyString) > maxPubkeyBytes {
		return nil, errtax.New(errtax.BadRequest, "requested public key exceeds maximum size")
	}

	pubkey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkeyString))
	if err != nil {
		return nil, errtax.New(errtax.BadRequest, "could not parse requested public key")
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	verificationString := buildVerificationString(timestamp, pubkeyString, identities)
	tag := computeHMAC(e.hmacKey, verificationString)

	cert := &ssh.Certificate{
		Key:             pubkey,
		CertType:        ssh.HostCert,
		Serial:          challengeSerial,
		KeyId:           hex.EncodeToString(tag),
		ValidAfter:      0,
		ValidBefore:     0,
		ValidPrincipals: nil,
	}
	if err := cert.SignCert(rand.Reader, e.challengeKey); err != nil {
		return nil, errtax.New(errtax.Unknown, "could not sign challenge certificate")
	}

	return &Minted{
		Timestamp:             timestamp,
		SerializedCertificate: string(ssh.MarshalAuthorizedKey(cert)),
		NoSignatureRequired:   !e.requireProofOfPossession,
	}, nil
}

// Reissuance carries the rolling mTLS reissuance window, when the
// caller's current mTLS certificate is near expiry.
type Reissuance struct {
	NotBefore uint64
	NotAfter  uint64
}

// Validated is the result of a successful Validate call.
type Validated struct {
	Pubkey     ssh.PublicKey
	Identities []string
	Reissuance *Reissuance // nil if no reissuance is due
}

// ReissuancePolicy carries the config needed to compute the rolling mTLS
// reissuance hint in step 9 of Validate.
type ReissuancePolicy struct {
	ValidityLength          uint64
	ExpirationRenewalPeriod uint64
}

// Validate runs the challenge verification pipeline in a fixed order. Any
// failure returns an *errtax.Error that carries no identities; callers
// that want the identities for a warning log line derive them with
// identity.FromPeerCertificates before calling, as the RPC layer does.
func (e *Engine) Validate(peerIdentity identity.Set, challengeTime, pubkeyString, challengeCertString string, policy ReissuancePolicy) (*Validated, error) {
	requestTime, err := strconv.ParseUint(challengeTime, 10, 64)
	if err != nil {
		return nil, errtax.New(errtax.Unknown, "could not parse challenge time")
	}
	now := uint64(time.Now().Unix())

	// Unsigned subtraction: if requestTime > now this wraps to a huge
	// value, which also exceeds freshnessWindow and fails closed. Do not
	// "fix" this into a signed comparison — it's the intended behavior.
	if now-requestTime > freshnessWindow {
		return nil, errtax.New(errtax.TimeExpired, "challenge is stale")
	}

	if len(challengeCertString) > maxChallengeCertBytes {
		return nil, errtax.New(errtax.Unknown, "challenge certificate exceeds maximum size")
	}

	parsedKey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(challengeCertString))
	if err != nil {
		return nil, errtax.New(errtax.BadChallenge, "could not parse challenge certificate")
	}
	cert, ok := parsedKey.(*ssh.Certificate)
	if !ok {
		return nil, errtax.New(errtax.BadChallenge, "challenge is not a certificate")
	}

	verificationString := buildVerificationString(challengeTime, pubkeyString, peerIdentity.CommonNames)
	decodedTag, err := hex.DecodeString(cert.KeyId)
	if err != nil {
		return nil, errtax.New(errtax.BadChallenge, "challenge tag is not valid hex")
	}
	if !hmac.Equal(decodedTag, computeHMAC(e.hmacKey, verificationString)) {
		return nil, errtax.New(errtax.BadChallenge, "challenge HMAC mismatch")
	}

	hmacPubkey, _, _, _, err := ssh.ParseAuthorizedKey([]byte(pubkeyString))
	if err != nil {
		// Should be unreachable: the HMAC already attests pubkeyString's
		// integrity. Kept for completeness, matching the source.
		return nil, errtax.New(errtax.BadChallenge, "HMAC-attested public key failed to parse")
	}

	var reissuance *Reissuance
	expiry := uint64(peerIdentity.NotAfter)
	if peerIdentity.NotAfter < 0 {
		expiry = 0
	}
	if now > expiry || expiry-now < policy.ExpirationRenewalPeriod {
		reissuance = &Reissuance{NotBefore: now, NotAfter: now + policy.ValidityLength}
	}

	if !e.requireProofOfPossession {
		if ssh.FingerprintSHA256(cert.SignatureKey) != e.ChallengeKeyFingerprint() {
			return nil, errtax.New(errtax.BadChallenge, "challenge certificate was not signed by the server challenge key")
		}
		return &Validated{Pubkey: hmacPubkey, Identities: peerIdentity.CommonNames, Reissuance: reissuance}, nil
	}

	if ssh.FingerprintSHA256(cert.Key) != ssh.FingerprintSHA256(cert.SignatureKey) {
		return nil, errtax.New(errtax.BadChallenge, "certificate was not self-signed by the caller")
	}
	if ssh.FingerprintSHA256(cert.Key) != ssh.FingerprintSHA256(hmacPubkey) {
		return nil, errtax.New(errtax.BadChallenge, "caller key did not match the HMAC-attested public key")
	}

	return &Validated{Pubkey: hmacPubkey, Identities: peerIdentity.CommonNames, Reissuance: reissuance}, nil
}

func buildVerificationString(timestamp, pubkeyString string, identities []string) string {
	return fmt.Sprintf("%s-%s-%s", timestamp, pubkeyString, strings.Join(identities, ","))
}

func computeHMAC(key []byte, message string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return mac.Sum(nil)
}
