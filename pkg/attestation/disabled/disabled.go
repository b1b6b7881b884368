// Package disabled is the fail-safe attestation verifier used when no
// real PIV/FIDO2 verifier is configured: it always reports attestation
// as unavailable, so key registration proceeds unattested only when the
// issuer is not configured to require an attestation chain.
package disabled

import (
	"context"
	"fmt"

	"github.com/cuemby/jitca/pkg/attestation"
)

// Verifier implements both attestation.PIVVerifier and
// attestation.U2FVerifier by always failing. It exists so
// require_attestation_chain=false deployments have a concrete verifier to
// wire instead of a nil check scattered through the issuance pipeline.
type Verifier struct{}

// VerifyPIVCertificateChain always fails: no attestation is available.
func (Verifier) VerifyPIVCertificateChain(_ context.Context, _, _ []byte) (*attestation.KeyAttestation, error) {
	return nil, fmt.Errorf("PIV attestation verification is not configured")
}

// VerifyU2FCertificateChain always fails: no attestation is available.
func (Verifier) VerifyU2FCertificateChain(_ context.Context, _, _, _ []byte, _ int32, _, _, _ []byte) (*attestation.KeyAttestation, error) {
	return nil, fmt.Errorf("U2F attestation verification is not configured")
}
