package issuance

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/cuemby/jitca/pkg/authz"
	"github.com/cuemby/jitca/pkg/challenge"
	"github.com/cuemby/jitca/pkg/errtax"
	"github.com/cuemby/jitca/pkg/log"
)

// customExtensionOID is the base OID under which authorization-supplied
// custom extensions are encoded, one arc per key in sorted key order
// (custom extension N lands at customExtensionOID.N). Unlike
// ssh.Permissions.Extensions, X.509 extensions are keyed by OID rather
// than by an arbitrary string, so authz.X509Result.Extensions' string
// keys are carried as the UTF8String value of each extension, not as
// part of the OID itself.
var customExtensionOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 57264, 1}

// AttestedX509Request is the wire-level input to AttestedX509Certificate.
type AttestedX509Request struct {
	CSR                     []byte // DER-encoded PKCS#10
	Attestation             []byte // DER leaf certificate
	AttestationIntermediate []byte // DER intermediate certificate
	Authority               string // empty selects the default authority
}

// AttestedX509Result is AttestedX509Certificate's success payload.
type AttestedX509Result struct {
	Certificate []byte // DER
}

// AttestedX509Certificate implements the host-attested X.509 issuance
// flow, grounded on
// original_source/rustica/src/server.rs's attested_x509_certificate: the
// caller's hardware-held key is attested by a PIV chain, the
// authorization backend picks a common name and validity window, and a
// fresh leaf is minted from the caller's CSR under the authority's
// attested-X.509 CA. The CSR's public key must match the attested leaf's
// public key, or the request is rejected.
func (iss *Issuer) AttestedX509Certificate(ctx context.Context, mtlsIdentities []string, remoteIP string, req AttestedX509Request) (*AttestedX509Result, error) {
	if iss.PIV == nil {
		return nil, errtax.New(errtax.NotAuthorized, "PIV attestation is not configured")
	}

	attested, err := iss.PIV.VerifyPIVCertificateChain(ctx, req.Attestation, req.AttestationIntermediate)
	if err != nil {
		return nil, errtax.New(errtax.NotAuthorized, fmt.Sprintf("invalid attestation chain: %v", err))
	}

	authorityName := req.Authority
	if authorityName == "" {
		authorityName = iss.Signers.DefaultAuthority()
	}

	authResult, err := iss.Authorizer.AuthorizeAttestedX509Cert(ctx, authz.X509Request{
		Fingerprint:    attested.Fingerprint,
		MTLSIdentities: mtlsIdentities,
		RequesterIP:    remoteIP,
		KeyID:          authorityName,
	})
	if err != nil {
		log.WithIdentities(mtlsIdentities).Warn().Err(err).Msg("authorizer rejected attested X.509 request")
		return nil, errtax.New(errtax.NotAuthorized, "not authorized")
	}

	csr, err := x509.ParseCertificateRequest(req.CSR)
	if err != nil {
		return nil, errtax.New(errtax.BadRequest, fmt.Sprintf("invalid CSR: %v", err))
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, errtax.New(errtax.BadRequest, fmt.Sprintf("CSR signature did not verify: %v", err))
	}

	ca, err := iss.Signers.AttestedX509CertificateAuthority(authResult.Authority)
	if err != nil || ca == nil {
		return nil, errtax.New(errtax.NotAuthorized, fmt.Sprintf(
			"requested authority %q does not have an attested X.509 CA configured", authResult.Authority))
	}

	extraExtensions, err := customExtensions(authResult.Extensions)
	if err != nil {
		return nil, errtax.New(errtax.BadCertOptions, fmt.Sprintf("could not encode authorized extensions: %v", err))
	}

	serial := new(big.Int).SetUint64(authResult.Serial)
	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   authResult.CommonName,
			Organization: []string{fmt.Sprintf("jitca-%s", authResult.Authority)},
		},
		EmailAddresses:        []string{authResult.CommonName},
		NotBefore:             time.Unix(int64(authResult.ValidAfter), 0),
		NotAfter:              time.Unix(int64(authResult.ValidBefore), 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  false,
		ExtraExtensions:       extraExtensions,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, csr.PublicKey, ca.Signer)
	if err != nil {
		return nil, errtax.New(errtax.BadChallenge, fmt.Sprintf("could not serialize attested X.509 certificate: %v", err))
	}

	newCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errtax.New(errtax.Unknown, fmt.Sprintf("could not parse newly issued certificate: %v", err))
	}
	leaf, err := x509.ParseCertificate(req.Attestation)
	if err != nil {
		return nil, errtax.New(errtax.BadRequest, fmt.Sprintf("could not parse provided attestation: %v", err))
	}
	if !bytes.Equal(newCert.RawSubjectPublicKeyInfo, leaf.RawSubjectPublicKeyInfo) {
		return nil, errtax.New(errtax.BadCertOptions, "CSR public key did not match the attestation chain")
	}

	log.WithIdentities(mtlsIdentities).Info().Str("authority", authResult.Authority).
		Uint64("serial", authResult.Serial).Msg("issued attested X.509 certificate")

	return &AttestedX509Result{Certificate: der}, nil
}

// customExtensions translates authorization-supplied custom extensions
// into X.509 ExtraExtensions, one per map entry in sorted key order so
// the encoding is deterministic across calls. Each extension's value is
// the DER encoding of a SEQUENCE{key UTF8String, value UTF8String}.
func customExtensions(extensions map[string]string) ([]pkix.Extension, error) {
	if len(extensions) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(extensions))
	for k := range extensions {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]pkix.Extension, 0, len(keys))
	for i, key := range keys {
		der, err := asn1.Marshal(struct {
			Key   string `asn1:"utf8"`
			Value string `asn1:"utf8"`
		}{Key: key, Value: extensions[key]})
		if err != nil {
			return nil, fmt.Errorf("encoding extension %q: %w", key, err)
		}
		oid := append(asn1.ObjectIdentifier{}, customExtensionOID...)
		oid = append(oid, i+1)
		out = append(out, pkix.Extension{Id: oid, Value: der})
	}
	return out, nil
}

// reissueClientCertificate mints a fresh mTLS client certificate and key
// for the caller's identities when the challenge engine flags the
// current one as due for renewal. The certificate carries the caller's
// identity only in its Subject CommonName: it has no Subject
// Alternative Names, matching how the caller's original mTLS
// certificate is expected to be shaped.
func (iss *Issuer) reissueClientCertificate(mtlsIdentities []string, reissuance *challenge.Reissuance) (certPEM, keyPEM string, err error) {
	ca, err := iss.Signers.ClientCertificateAuthority(iss.ClientAuthority)
	if err != nil || ca == nil {
		return "", "", fmt.Errorf("client authority %q does not have a client CA configured", iss.ClientAuthority)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generating client key: %w", err)
	}

	commonName := ""
	if len(mtlsIdentities) > 0 {
		commonName = mtlsIdentities[0]
	}

	template := &x509.Certificate{
		SerialNumber:          new(big.Int).SetUint64(uint64(time.Now().UnixNano())),
		Subject:               pkix.Name{CommonName: commonName},
		NotBefore:             time.Unix(int64(reissuance.NotBefore), 0),
		NotAfter:              time.Unix(int64(reissuance.NotAfter), 0),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}

	der, err := x509.CreateCertificate(rand.Reader, template, ca.Certificate, &key.PublicKey, ca.Signer)
	if err != nil {
		return "", "", fmt.Errorf("signing reissued client certificate: %w", err)
	}

	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", "", fmt.Errorf("marshaling reissued client key: %w", err)
	}

	certPEM = string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
	keyPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}))
	return certPEM, keyPEM, nil
}
