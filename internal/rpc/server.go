package rpc

import (
	"context"
	"errors"

	"github.com/PaulBabatuyi/urbanease/internal/middleware"
	"github.com/PaulBabatuyi/urbanease/internal/observability"
	"github.com/PaulBabatuyi/urbanease/internal/service"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type notificationServer struct {
	messages *service.MessageService
}

func (s *notificationServer) UnreadCount(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error) {
	user, err := middleware.ExtractUser(ctx)
	if err != nil {
		return nil, err
	}
	n, err := s.messages.UnreadCount(ctx, user, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Int64(int64(n)), nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, "unauthenticated")
	case errors.Is(err, service.ErrNotOwner):
		return status.Error(codes.PermissionDenied, "not owner")
	case errors.Is(err, service.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "canceled")
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "deadline exceeded")
	default:
		return status.Error(codes.Internal, "database error")
	}
}

type Options struct {
	Messages *service.MessageService
	Verifier middleware.TokenVerifier
	Logger   *zap.Logger
	// Metrics and Tracer are optional.
	Metrics *observability.Metrics
	Tracer  *trace.TracerProvider
}

// NewServer builds the gRPC server with recovery, logging, auth and
// metrics interceptors, the notification service and grpc health.
func NewServer(opts Options) (*grpc.Server, *health.Server) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		unaryMetrics  grpc.UnaryServerInterceptor
		streamMetrics grpc.StreamServerInterceptor
	)
	if opts.Metrics != nil {
		unaryMetrics = opts.Metrics.GetServerMetrics().UnaryServerInterceptor()
		streamMetrics = opts.Metrics.GetServerMetrics().StreamServerInterceptor()
	}

	serverOpts := []grpc.ServerOption{
		grpc.UnaryInterceptor(middleware.ChainUnaryInterceptors(
			middleware.UnaryRecoveryInterceptor(logger),
			unaryMetrics,
			middleware.UnaryLoggingInterceptor(logger),
			middleware.AuthInterceptor(opts.Verifier),
		)),
		grpc.StreamInterceptor(middleware.ChainStreamInterceptors(
			streamMetrics,
			middleware.StreamLoggingInterceptor(logger),
			middleware.StreamAuthInterceptor(opts.Verifier),
		)),
	}
	if opts.Tracer != nil {
		serverOpts = append(serverOpts, observability.GRPCStatsHandler(opts.Tracer))
	}

	srv := grpc.NewServer(serverOpts...)
	RegisterNotificationServer(srv, &notificationServer{messages: opts.Messages})

	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	if opts.Metrics != nil {
		opts.Metrics.GetServerMetrics().InitializeMetrics(srv)
	}
	return srv, hs
}
