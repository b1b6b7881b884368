package api

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/cuemby/jitca/pkg/transport/jitcapb"
)

// Client wraps a jitcapb.JitcaServerClient dialed over mTLS, for use by
// CLI tooling and tests that exercise the RPC surface end-to-end rather
// than calling Server's methods directly in-process.
type Client struct {
	conn   *grpc.ClientConn
	client jitcapb.JitcaServerClient
}

// DialOptions configures the mTLS connection a Client dials with. Cert
// is optional at the TLS layer, since the server's listener uses
// VerifyClientCertIfGiven; every RPC handler on the server still rejects
// a call that presents no client certificate.
type DialOptions struct {
	ServerAddr string
	ServerCAs  *x509.CertPool
	Cert       *tls.Certificate
}

// NewClient dials opts.ServerAddr with mTLS and the JSON call-content
// subtype jitcapb registers its codec under.
func NewClient(opts DialOptions) (*Client, error) {
	tlsConfig := &tls.Config{
		RootCAs:    opts.ServerCAs,
		MinVersion: tls.VersionTLS13,
	}
	if opts.Cert != nil {
		tlsConfig.Certificates = []tls.Certificate{*opts.Cert}
	}

	conn, err := grpc.NewClient(opts.ServerAddr,
		grpc.WithTransportCredentials(credentials.NewTLS(tlsConfig)),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", opts.ServerAddr, err)
	}

	return &Client{conn: conn, client: jitcapb.NewJitcaServerClient(conn)}, nil
}

// RPC returns the underlying typed client for making calls.
func (c *Client) RPC() jitcapb.JitcaServerClient { return c.client }

// Close tears down the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
