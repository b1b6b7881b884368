package issuance

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/cuemby/jitca/pkg/attestation"
	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/challenge"
	"github.com/cuemby/jitca/pkg/signing"
)

func newTestCA(t *testing.T) *signing.CertificateAuthority {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &signing.CertificateAuthority{Certificate: cert, Signer: key}
}

// x509Backend is a signing.Backend exposing an SSH user key (so it
// satisfies Registry's default-authority invariant) plus whichever X.509
// CA roles a test needs.
type x509Backend struct {
	user       ssh.Signer
	attestedCA *signing.CertificateAuthority
	clientCA   *signing.CertificateAuthority
}

func (b x509Backend) Sign(_ context.Context, _ signing.CertType, cert *ssh.Certificate) (*ssh.Certificate, error) {
	if err := cert.SignCert(rand.Reader, b.user); err != nil {
		return nil, err
	}
	return cert, nil
}

func (b x509Backend) SignerPublicKey(certType signing.CertType) (ssh.PublicKey, bool) {
	if certType != signing.CertTypeUser {
		return nil, false
	}
	return b.user.PublicKey(), true
}

func (b x509Backend) AttestedX509CA() (*signing.CertificateAuthority, bool) {
	if b.attestedCA == nil {
		return nil, false
	}
	return b.attestedCA, true
}

func (b x509Backend) ClientCA() (*signing.CertificateAuthority, bool) {
	if b.clientCA == nil {
		return nil, false
	}
	return b.clientCA, true
}

func newX509TestRegistry(t *testing.T, attestedCA, clientCA *signing.CertificateAuthority) *signing.Registry {
	t.Helper()
	registry, err := signing.New("default", map[string]signing.Backend{
		"default": x509Backend{user: newEd25519Signer(t), attestedCA: attestedCA, clientCA: clientCA},
	})
	require.NoError(t, err)
	return registry
}

type stubPIV struct {
	fingerprint string
}

func (s stubPIV) VerifyPIVCertificateChain(_ context.Context, _, _ []byte) (*attestation.KeyAttestation, error) {
	return &attestation.KeyAttestation{Fingerprint: s.fingerprint}, nil
}

// stubX509Authorizer returns a fixed authz.X509Result, letting tests
// control the extensions and authority returned to AttestedX509Certificate.
type stubX509Authorizer struct {
	result *authz.X509Result
	err    error
}

func (s stubX509Authorizer) AuthorizeSSHCert(context.Context, authz.SSHRequest) (*authz.SSHResult, error) {
	panic("unused")
}
func (s stubX509Authorizer) AuthorizeAttestedX509Cert(context.Context, authz.X509Request) (*authz.X509Result, error) {
	return s.result, s.err
}
func (s stubX509Authorizer) RegisterKey(context.Context, authz.RegisterKeyRequest) error {
	panic("unused")
}
func (s stubX509Authorizer) GetAllowedSigners(context.Context) ([]authz.AllowedSigner, error) {
	panic("unused")
}

// deviceKeyMaterial builds a self-signed "attestation leaf" certificate
// and a CSR that share the same key, mirroring a PIV device attesting
// the key it also used to sign its own certificate request.
func deviceKeyMaterial(t *testing.T) (leafDER []byte, csrDER []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	leafTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "device"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	leafDER, err = x509.CreateCertificate(rand.Reader, leafTemplate, leafTemplate, &key.PublicKey, key)
	require.NoError(t, err)

	csrTemplate := &x509.CertificateRequest{Subject: pkix.Name{CommonName: "device"}}
	csrDER, err = x509.CreateCertificateRequest(rand.Reader, csrTemplate, key)
	require.NoError(t, err)

	return leafDER, csrDER
}

func TestAttestedX509Certificate_AppliesCustomExtensions(t *testing.T) {
	attestedCA := newTestCA(t)
	leafDER, csrDER := deviceKeyMaterial(t)

	iss := &Issuer{
		Signers: newX509TestRegistry(t, attestedCA, nil),
		PIV:     stubPIV{fingerprint: "device-fingerprint"},
		Authorizer: stubX509Authorizer{result: &authz.X509Result{
			Authority:   "default",
			CommonName:  "device.example.com",
			Serial:      42,
			ValidAfter:  uint64(time.Now().Add(-time.Minute).Unix()),
			ValidBefore: uint64(time.Now().Add(time.Hour).Unix()),
			Extensions:  map[string]string{"role": "build-agent"},
		}},
	}

	result, err := iss.AttestedX509Certificate(context.Background(), []string{"device.example.com"}, "203.0.113.1:1234", AttestedX509Request{
		CSR:         csrDER,
		Attestation: leafDER,
	})
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(result.Certificate)
	require.NoError(t, err)
	require.Equal(t, "device.example.com", cert.Subject.CommonName)

	wantOID := append(asn1.ObjectIdentifier{}, customExtensionOID...)
	wantOID = append(wantOID, 1)

	var found bool
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(wantOID) {
			found = true
			var decoded struct {
				Key   string
				Value string
			}
			_, err := asn1.Unmarshal(ext.Value, &decoded)
			require.NoError(t, err)
			require.Equal(t, "role", decoded.Key)
			require.Equal(t, "build-agent", decoded.Value)
		}
	}
	require.True(t, found, "expected custom extension not present on issued certificate")
}

func TestAttestedX509Certificate_RejectsMismatchedCSRKey(t *testing.T) {
	attestedCA := newTestCA(t)
	leafDER, _ := deviceKeyMaterial(t)
	_, otherCSR := deviceKeyMaterial(t) // different keypair than the attestation leaf

	iss := &Issuer{
		Signers: newX509TestRegistry(t, attestedCA, nil),
		PIV:     stubPIV{fingerprint: "device-fingerprint"},
		Authorizer: stubX509Authorizer{result: &authz.X509Result{
			Authority:   "default",
			CommonName:  "device.example.com",
			Serial:      1,
			ValidAfter:  uint64(time.Now().Add(-time.Minute).Unix()),
			ValidBefore: uint64(time.Now().Add(time.Hour).Unix()),
		}},
	}

	_, err := iss.AttestedX509Certificate(context.Background(), []string{"device.example.com"}, "203.0.113.1:1234", AttestedX509Request{
		CSR:         otherCSR,
		Attestation: leafDER,
	})
	require.Error(t, err)
}

func TestReissueClientCertificate_IsSANLess(t *testing.T) {
	clientCA := newTestCA(t)
	iss := &Issuer{
		Signers:         newX509TestRegistry(t, nil, clientCA),
		ClientAuthority: "default",
	}

	certPEM, keyPEM, err := iss.reissueClientCertificate([]string{"alice", "alice.alt"}, &challenge.Reissuance{
		NotBefore: uint64(time.Now().Add(-time.Minute).Unix()),
		NotAfter:  uint64(time.Now().Add(time.Hour).Unix()),
	})
	require.NoError(t, err)
	require.NotEmpty(t, certPEM)
	require.NotEmpty(t, keyPEM)

	block, _ := pem.Decode([]byte(certPEM))
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)

	require.Equal(t, "alice", cert.Subject.CommonName)
	require.Empty(t, cert.DNSNames, "reissued client certificate must carry no Subject Alternative Names")
}
