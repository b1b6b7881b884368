package challenge

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/errtax"
	"github.com/cuemby/jitca/pkg/identity"
)

func newTestEngine(t *testing.T, requireProofOfPossession bool) *Engine {
	t.Helper()
	hmacKey := make([]byte, 32)
	if _, err := rand.Read(hmacKey); err != nil {
		t.Fatalf("generating hmac key: %v", err)
	}
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating challenge key: %v", err)
	}
	signer, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		t.Fatalf("wrapping challenge key: %v", err)
	}
	return New(hmacKey, signer, requireProofOfPossession)
}

func newCallerKey(t *testing.T) (ssh.Signer, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generating caller key: %v", err)
	}
	signer, err := ssh.NewSignerFromSigner(priv)
	if err != nil {
		t.Fatalf("wrapping caller key: %v", err)
	}
	return signer, string(ssh.MarshalAuthorizedKey(signer.PublicKey()))
}

func TestMintAndValidate_NoProofOfPossessionRequired(t *testing.T) {
	engine := newTestEngine(t, false)
	_, pubkeyLine := newCallerKey(t)
	identities := []string{"client.example.com"}

	minted, err := engine.Mint(pubkeyLine, identities)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if !minted.NoSignatureRequired {
		t.Error("NoSignatureRequired should be true when proof of possession is not required")
	}

	peer := identity.Set{CommonNames: identities, NotAfter: time.Now().Add(time.Hour).Unix()}
	validated, err := engine.Validate(peer, minted.Timestamp, pubkeyLine, minted.SerializedCertificate, ReissuancePolicy{})
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if ssh.FingerprintSHA256(validated.Pubkey) == "" {
		t.Error("expected a recovered public key")
	}
}

func TestMintAndValidate_ProofOfPossessionRequired(t *testing.T) {
	engine := newTestEngine(t, true)
	callerSigner, pubkeyLine := newCallerKey(t)
	identities := []string{"client.example.com"}

	minted, err := engine.Mint(pubkeyLine, identities)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(minted.SerializedCertificate))
	if err != nil {
		t.Fatalf("parsing minted certificate: %v", err)
	}
	cert := parsed.(*ssh.Certificate)
	cert.SignatureKey = nil
	cert.Signature = nil
	if err := cert.SignCert(rand.Reader, callerSigner); err != nil {
		t.Fatalf("re-signing challenge certificate: %v", err)
	}
	resigned := string(ssh.MarshalAuthorizedKey(cert))

	peer := identity.Set{CommonNames: identities, NotAfter: time.Now().Add(time.Hour).Unix()}
	if _, err := engine.Validate(peer, minted.Timestamp, pubkeyLine, resigned, ReissuancePolicy{}); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidate_RejectsStaleTimestamp(t *testing.T) {
	engine := newTestEngine(t, false)
	_, pubkeyLine := newCallerKey(t)
	identities := []string{"client.example.com"}

	minted, err := engine.Mint(pubkeyLine, identities)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	staleTime := "1" // far in the past
	peer := identity.Set{CommonNames: identities}
	_, err = engine.Validate(peer, staleTime, pubkeyLine, minted.SerializedCertificate, ReissuancePolicy{})
	if err == nil {
		t.Fatal("expected an error for a stale challenge")
	}
	taxErr, ok := err.(*errtax.Error)
	if !ok || taxErr.Code != errtax.TimeExpired {
		t.Errorf("error = %v, want errtax.TimeExpired", err)
	}
}

func TestValidate_RejectsMismatchedIdentities(t *testing.T) {
	engine := newTestEngine(t, false)
	_, pubkeyLine := newCallerKey(t)

	minted, err := engine.Mint(pubkeyLine, []string{"client.example.com"})
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	peer := identity.Set{CommonNames: []string{"someone-else.example.com"}}
	_, err = engine.Validate(peer, minted.Timestamp, pubkeyLine, minted.SerializedCertificate, ReissuancePolicy{})
	if err == nil {
		t.Fatal("expected an error when identities differ from minting time")
	}
}

func TestValidate_ReissuanceDueWhenCertificateNearExpiry(t *testing.T) {
	engine := newTestEngine(t, false)
	_, pubkeyLine := newCallerKey(t)
	identities := []string{"client.example.com"}

	minted, err := engine.Mint(pubkeyLine, identities)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	peer := identity.Set{CommonNames: identities, NotAfter: time.Now().Add(time.Minute).Unix()}
	policy := ReissuancePolicy{ValidityLength: 3600, ExpirationRenewalPeriod: 600}

	validated, err := engine.Validate(peer, minted.Timestamp, pubkeyLine, minted.SerializedCertificate, policy)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if validated.Reissuance == nil {
		t.Error("expected reissuance to be due when expiry is within the renewal window")
	}
}
