// Package identity extracts the mTLS caller identity jitca uses for every
// authorization decision: the ordered list of Subject CommonName (OID
// 2.5.4.3) values on the peer's leaf certificate.
package identity

import (
	"crypto/x509"
	"encoding/asn1"
	"strings"
	"unicode/utf8"

	"github.com/cuemby/jitca/pkg/errtax"
)

// Set is the caller identity derived from a single peer leaf certificate:
// the CommonName values in insertion order, plus the certificate's
// notAfter, which the challenge engine uses to compute rolling mTLS
// reissuance eligibility.
type Set struct {
	CommonNames []string
	NotAfter    int64 // unix seconds
}

// Joined renders the identity list the same way it is folded into the
// challenge HMAC string: comma-separated, in order, no trailing comma.
func (s Set) Joined() string {
	return strings.Join(s.CommonNames, ",")
}

// FromPeerCertificates extracts identity from exactly one peer certificate,
// as required everywhere in the RPC surface: Challenge, Certificate,
// RegisterKey, RegisterU2fKey, and AttestedX509Certificate all reject
// anything other than a single peer leaf.
//
// An empty CommonName list is not itself a failure: a caller with no CNs
// simply folds into an empty joined string, and any security decision
// downstream of that is then a no-op rather than a structural error
// here. Non-UTF-8 CommonName bytes are a hard failure
// (NotAuthorized) since x509.Certificate already decodes them as Go
// strings; libraries that hand back invalid UTF-8 for a PrintableString
// or UTF8String RDN would violate that decoding, so this guards against a
// malformed certificate slipping through TLS verification.
func FromPeerCertificates(certs []*x509.Certificate) (Set, error) {
	if len(certs) != 1 {
		return Set{}, errtax.New(errtax.NotAuthorized, "expected exactly one peer certificate")
	}
	leaf := certs[0]
	cn := leaf.Subject.CommonName
	if cn != "" && !utf8.ValidString(cn) {
		return Set{}, errtax.New(errtax.NotAuthorized, "peer CommonName is not valid UTF-8")
	}

	var names []string
	if cn != "" {
		names = append(names, cn)
	}
	// RDNSequence may carry repeated CommonName attributes beyond the
	// single Subject.CommonName convenience field; walk it to preserve
	// insertion order for callers with more than one CN RDN.
	for _, rdnSet := range leaf.Subject.Names {
		if !rdnSet.Type.Equal(commonNameOID) {
			continue
		}
		val, ok := rdnSet.Value.(string)
		if !ok {
			continue
		}
		if val == cn {
			continue // already captured above
		}
		if !utf8.ValidString(val) {
			return Set{}, errtax.New(errtax.NotAuthorized, "peer CommonName is not valid UTF-8")
		}
		names = append(names, val)
	}

	return Set{CommonNames: names, NotAfter: leaf.NotAfter.Unix()}, nil
}

// commonNameOID is 2.5.4.3, the CommonName attribute type.
var commonNameOID = asn1.ObjectIdentifier{2, 5, 4, 3}
