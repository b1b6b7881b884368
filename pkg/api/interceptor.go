package api

import (
	"context"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cuemby/jitca/pkg/log"
)

type requestIDKey struct{}

// requestID generates a fresh identifier used only for log correlation;
// it is never part of the wire protocol.
func requestID() string { return uuid.NewString() }

// requestIDFromContext returns the request ID LoggingInterceptor attached
// to ctx, or "" if ctx did not pass through it.
func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RecoveryInterceptor converts a panic inside a handler into an Internal
// status instead of crashing the process, the same role
// cuemby-warren's ReadOnlyInterceptor plays for its own unary interceptor
// chain: a single chokepoint every RPC passes through before reaching
// its handler.
func RecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.WithComponent("api").Error().Interface("panic", r).Str("method", info.FullMethod).
					Msg("recovered from panic in RPC handler")
				err = status.Errorf(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

// LoggingInterceptor logs every RPC at debug level with its outcome,
// without logging request payloads: challenge material and key bytes
// pass through this boundary and must not be written to logs.
func LoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := requestID()
		ctx = context.WithValue(ctx, requestIDKey{}, id)

		resp, err := handler(ctx, req)
		logger := log.WithComponent("api")
		event := logger.Debug()
		if err != nil {
			event = logger.Warn().Err(err)
		}
		event.Str("method", info.FullMethod).Str("request_id", id).Msg("handled RPC")
		return resp, err
	}
}
