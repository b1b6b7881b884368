package jitcapb

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the gRPC service path segment jitca's issuance RPCs are
// registered under, in the same "/package.Service/Method" shape
// protoc-gen-go-grpc emits.
const ServiceName = "jitca.JitcaServer"

// JitcaServerServer is the service interface a jitca API server
// implements, equivalent to a generated *ServiceServer interface.
type JitcaServerServer interface {
	Challenge(context.Context, *ChallengeRequest) (*ChallengeResponse, error)
	Certificate(context.Context, *CertificateRequest) (*CertificateResponse, error)
	RegisterKey(context.Context, *RegisterKeyRequest) (*RegisterKeyResponse, error)
	RegisterU2fKey(context.Context, *RegisterU2fKeyRequest) (*RegisterU2fKeyResponse, error)
	AttestedX509Certificate(context.Context, *AttestedX509CertificateRequest) (*AttestedX509CertificateResponse, error)
	AllowedSigners(context.Context, *AllowedSignersRequest) (*AllowedSignersResponse, error)
}

// UnimplementedJitcaServerServer can be embedded by a Server
// implementation to satisfy JitcaServerServer without defining every
// method, the same forward-compatibility trick generated code uses.
type UnimplementedJitcaServerServer struct{}

func (UnimplementedJitcaServerServer) Challenge(context.Context, *ChallengeRequest) (*ChallengeResponse, error) {
	return nil, errUnimplemented("Challenge")
}
func (UnimplementedJitcaServerServer) Certificate(context.Context, *CertificateRequest) (*CertificateResponse, error) {
	return nil, errUnimplemented("Certificate")
}
func (UnimplementedJitcaServerServer) RegisterKey(context.Context, *RegisterKeyRequest) (*RegisterKeyResponse, error) {
	return nil, errUnimplemented("RegisterKey")
}
func (UnimplementedJitcaServerServer) RegisterU2fKey(context.Context, *RegisterU2fKeyRequest) (*RegisterU2fKeyResponse, error) {
	return nil, errUnimplemented("RegisterU2fKey")
}
func (UnimplementedJitcaServerServer) AttestedX509Certificate(context.Context, *AttestedX509CertificateRequest) (*AttestedX509CertificateResponse, error) {
	return nil, errUnimplemented("AttestedX509Certificate")
}
func (UnimplementedJitcaServerServer) AllowedSigners(context.Context, *AllowedSignersRequest) (*AllowedSignersResponse, error) {
	return nil, errUnimplemented("AllowedSigners")
}

func errUnimplemented(method string) error {
	return status.Error(codes.Unimplemented, fmt.Sprintf("method %s not implemented", method))
}

func _Jitca_Challenge_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ChallengeRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JitcaServerServer).Challenge(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Challenge"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JitcaServerServer).Challenge(ctx, req.(*ChallengeRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Jitca_Certificate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CertificateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JitcaServerServer).Certificate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/Certificate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JitcaServerServer).Certificate(ctx, req.(*CertificateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Jitca_RegisterKey_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterKeyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JitcaServerServer).RegisterKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterKey"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JitcaServerServer).RegisterKey(ctx, req.(*RegisterKeyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Jitca_RegisterU2fKey_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(RegisterU2fKeyRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JitcaServerServer).RegisterU2fKey(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/RegisterU2fKey"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JitcaServerServer).RegisterU2fKey(ctx, req.(*RegisterU2fKeyRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Jitca_AttestedX509Certificate_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AttestedX509CertificateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JitcaServerServer).AttestedX509Certificate(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/AttestedX509Certificate"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JitcaServerServer).AttestedX509Certificate(ctx, req.(*AttestedX509CertificateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Jitca_AllowedSigners_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AllowedSignersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(JitcaServerServer).AllowedSigners(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/AllowedSigners"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(JitcaServerServer).AllowedSigners(ctx, req.(*AllowedSignersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// ServiceDesc is the grpc.ServiceDesc a generated *_grpc.pb.go file
// would produce; RegisterJitcaServerServer plugs it into a *grpc.Server
// exactly like generated registration code does.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*JitcaServerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Challenge", Handler: _Jitca_Challenge_Handler},
		{MethodName: "Certificate", Handler: _Jitca_Certificate_Handler},
		{MethodName: "RegisterKey", Handler: _Jitca_RegisterKey_Handler},
		{MethodName: "RegisterU2fKey", Handler: _Jitca_RegisterU2fKey_Handler},
		{MethodName: "AttestedX509Certificate", Handler: _Jitca_AttestedX509Certificate_Handler},
		{MethodName: "AllowedSigners", Handler: _Jitca_AllowedSigners_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "jitca.proto",
}

// RegisterJitcaServerServer registers srv with s under ServiceDesc.
func RegisterJitcaServerServer(s grpc.ServiceRegistrar, srv JitcaServerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// JitcaServerClient is the client-side stub, equivalent to a generated
// *ServiceClient interface.
type JitcaServerClient interface {
	Challenge(ctx context.Context, in *ChallengeRequest, opts ...grpc.CallOption) (*ChallengeResponse, error)
	Certificate(ctx context.Context, in *CertificateRequest, opts ...grpc.CallOption) (*CertificateResponse, error)
	RegisterKey(ctx context.Context, in *RegisterKeyRequest, opts ...grpc.CallOption) (*RegisterKeyResponse, error)
	RegisterU2fKey(ctx context.Context, in *RegisterU2fKeyRequest, opts ...grpc.CallOption) (*RegisterU2fKeyResponse, error)
	AttestedX509Certificate(ctx context.Context, in *AttestedX509CertificateRequest, opts ...grpc.CallOption) (*AttestedX509CertificateResponse, error)
	AllowedSigners(ctx context.Context, in *AllowedSignersRequest, opts ...grpc.CallOption) (*AllowedSignersResponse, error)
}

type jitcaServerClient struct {
	cc grpc.ClientConnInterface
}

// NewJitcaServerClient wraps cc for calling jitca's RPCs.
func NewJitcaServerClient(cc grpc.ClientConnInterface) JitcaServerClient {
	return &jitcaServerClient{cc: cc}
}

func (c *jitcaServerClient) Challenge(ctx context.Context, in *ChallengeRequest, opts ...grpc.CallOption) (*ChallengeResponse, error) {
	out := new(ChallengeResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Challenge", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jitcaServerClient) Certificate(ctx context.Context, in *CertificateRequest, opts ...grpc.CallOption) (*CertificateResponse, error) {
	out := new(CertificateResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/Certificate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jitcaServerClient) RegisterKey(ctx context.Context, in *RegisterKeyRequest, opts ...grpc.CallOption) (*RegisterKeyResponse, error) {
	out := new(RegisterKeyResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RegisterKey", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jitcaServerClient) RegisterU2fKey(ctx context.Context, in *RegisterU2fKeyRequest, opts ...grpc.CallOption) (*RegisterU2fKeyResponse, error) {
	out := new(RegisterU2fKeyResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/RegisterU2fKey", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jitcaServerClient) AttestedX509Certificate(ctx context.Context, in *AttestedX509CertificateRequest, opts ...grpc.CallOption) (*AttestedX509CertificateResponse, error) {
	out := new(AttestedX509CertificateResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/AttestedX509Certificate", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *jitcaServerClient) AllowedSigners(ctx context.Context, in *AllowedSignersRequest, opts ...grpc.CallOption) (*AllowedSignersResponse, error) {
	out := new(AllowedSignersResponse)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/AllowedSigners", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
