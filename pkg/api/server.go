// Package api implements jitca's RPC surface: the gRPC-shaped
// service defined in pkg/transport/jitcapb, served over mutually
// authenticated TLS, grounded on
// original_source/rustica/src/server.rs's RusticaServer and
// cuemby-warren's pkg/api server construction for the TLS listener
// pattern.
package api

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/jitca/pkg/allowedsigners"
	"github.com/cuemby/jitca/pkg/attestation"
	"github.com/cuemby/jitca/pkg/challenge"
	"github.com/cuemby/jitca/pkg/issuance"
	"github.com/cuemby/jitca/pkg/log"
	"github.com/cuemby/jitca/pkg/transport/jitcapb"
)

// Server implements jitcapb.JitcaServerServer.
type Server struct {
	jitcapb.UnimplementedJitcaServerServer

	challenges *challenge.Engine
	issuer     *issuance.Issuer
	signers    *allowedsigners.Cache
	rateLimit  *allowedsigners.RateLimiter
	piv        attestation.PIVVerifier
	u2f        attestation.U2FVerifier

	grpc *grpc.Server

	requestsTotal *prometheus.CounterVec
}

// Dependencies bundles everything Server needs beyond its own gRPC
// plumbing.
type Dependencies struct {
	Challenges  *challenge.Engine
	Issuer      *issuance.Issuer
	AllowedSigners *allowedsigners.Cache
	RateLimiter *allowedsigners.RateLimiter
	PIV         attestation.PIVVerifier
	U2F         attestation.U2FVerifier
}

// NewServer builds a Server and its mTLS-enabled *grpc.Server. cert is
// the server's own TLS certificate; clientCAs is the pool a caller's
// mTLS certificate must chain to when one is presented. ClientAuth is
// VerifyClientCertIfGiven rather than RequireAndVerifyClientCert: the
// listener accepts a connection without a client certificate, and each
// handler rejects a call that does not present exactly one (see
// peerIdentity) — but any certificate that is presented must verify
// against clientCAs or the handshake fails outright.
func NewServer(deps Dependencies, cert tls.Certificate, clientCAs *x509.CertPool) (*Server, error) {
	s := &Server{
		challenges: deps.Challenges,
		issuer:     deps.Issuer,
		signers:    deps.AllowedSigners,
		rateLimit:  deps.RateLimiter,
		piv:        deps.PIV,
		u2f:        deps.U2F,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jitca",
			Name:      "rpc_requests_total",
			Help:      "Count of jitca RPCs by method and outcome.",
		}, []string{"method", "outcome"}),
	}

	tlsConfig := &tls.Config{
		ClientAuth:   tls.VerifyClientCertIfGiven,
		Certificates: []tls.Certificate{cert},
		ClientCAs:    clientCAs,
		MinVersion:   tls.VersionTLS13,
	}

	countRequests := func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.requestsTotal.WithLabelValues(info.FullMethod, outcome).Inc()
		return resp, err
	}

	grpcServer := grpc.NewServer(
		grpc.Creds(credentials.NewTLS(tlsConfig)),
		grpc.ChainUnaryInterceptor(RecoveryInterceptor(), LoggingInterceptor(), countRequests),
	)
	jitcapb.RegisterJitcaServerServer(grpcServer, s)
	s.grpc = grpcServer

	return s, nil
}

// Registry exposes the server's Prometheus collectors for a caller to
// register against its own registry, rather than reaching for the
// global default one.
func (s *Server) Registry() prometheus.Collector { return s.requestsTotal }

// Serve accepts connections on addr until ctx is canceled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	log.Info(fmt.Sprintf("jitca listening on %s", addr))

	errCh := make(chan error, 1)
	go func() { errCh <- s.grpc.Serve(lis) }()

	select {
	case <-ctx.Done():
		s.grpc.GracefulStop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
