// Package rpc exposes the notification use cases over gRPC. Messages are
// protobuf well-known wrapper types, so the service descriptor is declared
// here rather than generated.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	ServiceName = "urbanease.notifications.v1.NotificationService"

	UnreadCountMethod = "/" + ServiceName + "/UnreadCount"
)

// NotificationServer is implemented by the gRPC notification handler.
type NotificationServer interface {
	// UnreadCount takes a user ID and returns that user's unread total.
	UnreadCount(ctx context.Context, req *wrapperspb.StringValue) (*wrapperspb.Int64Value, error)
}

var NotificationServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*NotificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "UnreadCount", Handler: unreadCountHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "urbanease/notifications/v1/notifications.proto",
}

func RegisterNotificationServer(s grpc.ServiceRegistrar, srv NotificationServer) {
	s.RegisterService(&NotificationServiceDesc, srv)
}

func unreadCountHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(NotificationServer).UnreadCount(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: UnreadCountMethod}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(NotificationServer).UnreadCount(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// NotificationClient calls the notification service. When token is set it
// is sent as the "authorization" metadata on every call.
type NotificationClient struct {
	cc    grpc.ClientConnInterface
	token string
}

func NewNotificationClient(cc grpc.ClientConnInterface, token string) *NotificationClient {
	return &NotificationClient{cc: cc, token: token}
}

func (c *NotificationClient) UnreadCount(ctx context.Context, userID string) (int, error) {
	if c.token != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+c.token)
	}
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, UnreadCountMethod, wrapperspb.String(userID), out); err != nil {
		return 0, err
	}
	return int(out.GetValue()), nil
}
