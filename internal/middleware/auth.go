package middleware

import (
	"context"

	"github.com/PaulBabatuyi/urbanease/internal/session"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenVerifier turns a bearer token into a user.
type TokenVerifier interface {
	Verify(token string) (session.User, error)
}

// userFromMetadata reads the "authorization" metadata key.
func userFromMetadata(ctx context.Context, v TokenVerifier) (session.User, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return session.User{}, status.Error(codes.Unauthenticated, "missing metadata")
	}

	tokens := md.Get("authorization")
	if len(tokens) == 0 {
		return session.User{}, status.Error(codes.Unauthenticated, "missing authorization")
	}

	user, err := v.Verify(tokens[0])
	if err != nil {
		return session.User{}, status.Error(codes.Unauthenticated, "invalid token")
	}
	return user, nil
}

// AuthInterceptor verifies the bearer token and attaches the user to the
// handler's context.
func AuthInterceptor(v TokenVerifier) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		user, err := userFromMetadata(ctx, v)
		if err != nil {
			return nil, err
		}
		return handler(session.NewContext(ctx, user), req)
	}
}

// StreamAuthInterceptor for streaming RPCs
func StreamAuthInterceptor(v TokenVerifier) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if isPublic(info.FullMethod) {
			return handler(srv, ss)
		}
		user, err := userFromMetadata(ss.Context(), v)
		if err != nil {
			return err
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: session.NewContext(ss.Context(), user)})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

// Health checks stay reachable without credentials.
func isPublic(method string) bool {
	return method == "/grpc.health.v1.Health/Check" || method == "/grpc.health.v1.Health/Watch"
}

// ExtractUser gets the user attached by the auth interceptor
func ExtractUser(ctx context.Context) (session.User, error) {
	user, ok := session.FromContext(ctx)
	if !ok || user.ID == "" {
		return session.User{}, status.Error(codes.Unauthenticated, "missing user")
	}
	return user, nil
}
