package api

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/jitca/pkg/attestation"
	"github.com/cuemby/jitca/pkg/errtax"
	"github.com/cuemby/jitca/pkg/issuance"
	"github.com/cuemby/jitca/pkg/log"
	"github.com/cuemby/jitca/pkg/transport/jitcapb"
	"golang.org/x/crypto/ssh"
)

var (
	errNoPIVVerifier = errors.New("PIV attestation verification is not configured")
	errNoU2FVerifier = errors.New("U2F attestation verification is not configured")
)

// Challenge mints a proof-of-possession challenge for the caller's
// claimed public key. It performs no authorization: anyone may request
// a challenge, since the challenge alone proves nothing.
func (s *Server) Challenge(ctx context.Context, req *jitcapb.ChallengeRequest) (*jitcapb.ChallengeResponse, error) {
	peer, err := peerIdentity(ctx)
	if err != nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}

	minted, err := s.challenges.Mint(req.Pubkey, peer.CommonNames)
	if err != nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}
	return &jitcapb.ChallengeResponse{
		Time:                minted.Timestamp,
		Challenge:           minted.SerializedCertificate,
		NoSignatureRequired: minted.NoSignatureRequired,
	}, nil
}

// Certificate issues an SSH certificate. Every rejection reason is
// returned inline as error/error_code rather than a transport failure:
// a malformed or unauthorized request is an ordinary, expected outcome
// of this RPC, not a server fault.
func (s *Server) Certificate(ctx context.Context, req *jitcapb.CertificateRequest) (*jitcapb.CertificateResponse, error) {
	if req.Challenge == nil {
		return errorResponse(errtax.New(errtax.BadRequest, "missing challenge"))
	}

	peer, err := peerIdentity(ctx)
	if err != nil {
		return errorResponse(errtax.New(errtax.NotAuthorized, err.Error()))
	}

	result, err := s.issuer.Certificate(ctx, peer, remoteAddr(ctx), issuance.SSHCertificateRequest{
		ChallengeTime:        req.Challenge.ChallengeTime,
		ChallengePubkey:      req.Challenge.Pubkey,
		ChallengeCertificate: req.Challenge.ChallengeCertificate,
		Principals:           req.Principals,
		Servers:              req.Servers,
		ValidAfter:           req.ValidAfter,
		ValidBefore:          req.ValidBefore,
		CertType:             ssh.CertType(req.CertType),
		Authority:            req.KeyID,
	})
	if err != nil {
		return errorResponse(err)
	}

	return &jitcapb.CertificateResponse{
		Certificate:          result.Certificate,
		ErrorCode:            int64(errtax.Success),
		NewClientCertificate: result.NewClientCertificatePEM,
		NewClientKey:         result.NewClientKeyPEM,
	}, nil
}

func errorResponse(err error) (*jitcapb.CertificateResponse, error) {
	code := errtax.CodeOf(err)
	log.WithComponent("api").Debug().Err(err).Str("code", code.String()).Msg("rejecting certificate request")
	return &jitcapb.CertificateResponse{
		Error:     err.Error(),
		ErrorCode: int64(code),
	}, nil
}

// RegisterKey registers a PIV-attested (or unattested, if permitted)
// key. Unlike Certificate, failures here are transport errors: there is
// no error_code field on RegisterKeyResponse to carry a taxonomy value
// in, mirroring the Rust handler's use of tonic Status.
func (s *Server) RegisterKey(ctx context.Context, req *jitcapb.RegisterKeyRequest) (*jitcapb.RegisterKeyResponse, error) {
	if req.Challenge == nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}
	peer, err := peerIdentity(ctx)
	if err != nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}

	verify := func(challengeFingerprint string) (*attestation.KeyAttestation, error) {
		if s.piv == nil {
			return nil, errNoPIVVerifier
		}
		return s.piv.VerifyPIVCertificateChain(ctx, req.Certificate, req.Intermediate)
	}

	if err := s.issuer.RegisterKey(ctx, peer, remoteAddr(ctx), issuance.RegisterKeyRequest{
		ChallengeTime:        req.Challenge.ChallengeTime,
		ChallengePubkey:      req.Challenge.Pubkey,
		ChallengeCertificate: req.Challenge.ChallengeCertificate,
	}, verify); err != nil {
		return nil, status.Error(registerKeyStatusCode(err), "could not register new key")
	}
	return &jitcapb.RegisterKeyResponse{}, nil
}

// registerKeyStatusCode distinguishes a malformed registration request
// (an attested fingerprint that doesn't match the challenge) from a
// generic backend failure, so callers get InvalidArgument instead of
// Unavailable for a mistake of their own making.
func registerKeyStatusCode(err error) codes.Code {
	if errtax.CodeOf(err) == errtax.BadRequest {
		return codes.InvalidArgument
	}
	return codes.Unavailable
}

// RegisterU2fKey registers a U2F/FIDO2-attested (or unattested, if
// permitted) key, sharing RegisterKey's validation path with a
// different attestation verifier.
func (s *Server) RegisterU2fKey(ctx context.Context, req *jitcapb.RegisterU2fKeyRequest) (*jitcapb.RegisterU2fKeyResponse, error) {
	if req.Challenge == nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}
	peer, err := peerIdentity(ctx)
	if err != nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}

	verify := func(challengeFingerprint string) (*attestation.KeyAttestation, error) {
		if s.u2f == nil {
			return nil, errNoU2FVerifier
		}
		return s.u2f.VerifyU2FCertificateChain(ctx, req.AuthData, req.AuthDataSignature, req.Intermediate,
			req.Alg, req.U2fChallenge, req.SkApplication, nil)
	}

	if err := s.issuer.RegisterKey(ctx, peer, remoteAddr(ctx), issuance.RegisterKeyRequest{
		ChallengeTime:        req.Challenge.ChallengeTime,
		ChallengePubkey:      req.Challenge.Pubkey,
		ChallengeCertificate: req.Challenge.ChallengeCertificate,
	}, verify); err != nil {
		log.WithComponent("api").Warn().Err(err).Msg("key register error")
		return nil, status.Error(registerKeyStatusCode(err), "could not register new key")
	}
	return &jitcapb.RegisterU2fKeyResponse{}, nil
}

// AttestedX509Certificate issues a host-attested X.509 client
// certificate. Like Certificate, every rejection reason is returned
// inline as error/error_code rather than a transport failure: a
// malformed CSR, a failed attestation chain or a policy denial are all
// ordinary outcomes of this RPC, not server faults.
func (s *Server) AttestedX509Certificate(ctx context.Context, req *jitcapb.AttestedX509CertificateRequest) (*jitcapb.AttestedX509CertificateResponse, error) {
	peer, err := peerIdentity(ctx)
	if err != nil {
		return attestedX509ErrorResponse(errtax.New(errtax.NotAuthorized, err.Error()))
	}

	result, err := s.issuer.AttestedX509Certificate(ctx, peer.CommonNames, remoteAddr(ctx), issuance.AttestedX509Request{
		CSR:                     req.Csr,
		Attestation:             req.Attestation,
		AttestationIntermediate: req.AttestationIntermediate,
		Authority:               req.KeyID,
	})
	if err != nil {
		return attestedX509ErrorResponse(err)
	}

	return &jitcapb.AttestedX509CertificateResponse{
		Certificate: result.Certificate,
		ErrorCode:   int64(errtax.Success),
	}, nil
}

func attestedX509ErrorResponse(err error) (*jitcapb.AttestedX509CertificateResponse, error) {
	code := errtax.CodeOf(err)
	log.WithComponent("api").Debug().Err(err).Str("code", code.String()).Msg("rejecting attested X.509 request")
	return &jitcapb.AttestedX509CertificateResponse{
		Error:     err.Error(),
		ErrorCode: int64(code),
	}, nil
}

// AllowedSigners serves the cached, compressed allowed-signers payload,
// rate limited per caller identity.
func (s *Server) AllowedSigners(ctx context.Context, _ *jitcapb.AllowedSignersRequest) (*jitcapb.AllowedSignersResponse, error) {
	peer, err := peerIdentity(ctx)
	if err != nil {
		return nil, status.Error(codes.PermissionDenied, "")
	}

	now := time.Now()
	if s.rateLimit.IsRateLimited(peer.Joined(), now) {
		return nil, status.Error(codes.ResourceExhausted, "")
	}

	compressed, err := s.signers.Get(ctx, now)
	if err != nil {
		log.WithComponent("api").Error().Err(err).Msg("failed to refresh allowed signers cache")
		return nil, status.Error(codes.PermissionDenied, "")
	}

	return &jitcapb.AllowedSignersResponse{CompressedAllowedSigners: compressed}, nil
}
