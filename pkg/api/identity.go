package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"

	"github.com/cuemby/jitca/pkg/identity"
)

// peerIdentity extracts the calling mTLS identity from ctx, mirroring
// tonic's request.peer_certs(): jitca's TLS listener verifies a client
// certificate against the configured client CA whenever one is
// presented, but does not require every RPC to present one, so
// individual handlers reject a missing or malformed certificate
// themselves rather than the transport doing it uniformly.
func peerIdentity(ctx context.Context) (identity.Set, error) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.AuthInfo == nil {
		return identity.Set{}, fmt.Errorf("no peer information available")
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok {
		return identity.Set{}, fmt.Errorf("peer did not connect over TLS")
	}
	return identity.FromPeerCertificates(tlsInfo.State.PeerCertificates)
}

// remoteAddr extracts the dialing address from ctx for the authorization
// request's requester_ip field.
func remoteAddr(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	return p.Addr.String()
}
