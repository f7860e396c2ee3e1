// Package client calls the portal service over gRPC with the json codec.
package client

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"

	"client-portal/infrastructure/grpc/server"
)

type PortalClient struct {
	cc grpc.ClientConnInterface
}

func NewPortalClient(cc grpc.ClientConnInterface) *PortalClient {
	return &PortalClient{cc: cc}
}

// WithSession attaches the session id returned by Login to ctx.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+sessionID)
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(server.CodecName)}, opts...)
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any,
	opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	if err := cc.Invoke(ctx, server.FullMethod(method), in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PortalClient) Login(ctx context.Context, in *server.LoginRequest, opts ...grpc.CallOption) (*server.LoginResponse, error) {
	return invoke[server.LoginResponse](ctx, c.cc, "Login", in, opts)
}

func (c *PortalClient) Logout(ctx context.Context, opts ...grpc.CallOption) error {
	_, err := invoke[server.Empty](ctx, c.cc, "Logout", &server.Empty{}, opts)
	return err
}

func (c *PortalClient) Me(ctx context.Context, opts ...grpc.CallOption) (*server.UserResponse, error) {
	return invoke[server.UserResponse](ctx, c.cc, "Me", &server.Empty{}, opts)
}

func (c *PortalClient) RegisterClient(ctx context.Context, in *server.RegisterClientRequest,
	opts ...grpc.CallOption) (*server.UserResponse, error) {
	return invoke[server.UserResponse](ctx, c.cc, "RegisterClient", in, opts)
}

func (c *PortalClient) SendMessage(ctx context.Context, in *server.SendMessageRequest,
	opts ...grpc.CallOption) (*server.MessageResponse, error) {
	return invoke[server.MessageResponse](ctx, c.cc, "SendMessage", in, opts)
}

func (c *PortalClient) GetConversation(ctx context.Context, in *server.ConversationRequest,
	opts ...grpc.CallOption) (*server.ConversationResponse, error) {
	return invoke[server.ConversationResponse](ctx, c.cc, "GetConversation", in, opts)
}

func (c *PortalClient) ListConversations(ctx context.Context, opts ...grpc.CallOption) (*server.ConversationsResponse, error) {
	return invoke[server.ConversationsResponse](ctx, c.cc, "ListConversations", &server.Empty{}, opts)
}

func (c *PortalClient) CreateNotification(ctx context.Context, in *server.CreateNotificationRequest,
	opts ...grpc.CallOption) (*server.NotificationResponse, error) {
	return invoke[server.NotificationResponse](ctx, c.cc, "CreateNotification", in, opts)
}

func (c *PortalClient) ListNotifications(ctx context.Context, opts ...grpc.CallOption) (*server.NotificationsResponse, error) {
	return invoke[server.NotificationsResponse](ctx, c.cc, "ListNotifications", &server.Empty{}, opts)
}

func (c *PortalClient) MarkNotificationRead(ctx context.Context, id string, opts ...grpc.CallOption) error {
	_, err := invoke[server.Empty](ctx, c.cc, "MarkNotificationRead", &server.MarkNotificationReadRequest{ID: id}, opts)
	return err
}

func (c *PortalClient) MarkAllNotificationsRead(ctx context.Context, opts ...grpc.CallOption) (*server.CountResponse, error) {
	return invoke[server.CountResponse](ctx, c.cc, "MarkAllNotificationsRead", &server.Empty{}, opts)
}

func (c *PortalClient) Broadcast(ctx context.Context, in *server.BroadcastRequest,
	opts ...grpc.CallOption) (*server.CountResponse, error) {
	return invoke[server.CountResponse](ctx, c.cc, "Broadcast", in, opts)
}

func (c *PortalClient) ListProjects(ctx context.Context, in *server.ProjectsRequest,
	opts ...grpc.CallOption) (*server.ProjectsResponse, error) {
	return invoke[server.ProjectsResponse](ctx, c.cc, "ListProjects", in, opts)
}

func (c *PortalClient) ListDeliverables(ctx context.Context, in *server.DeliverablesRequest,
	opts ...grpc.CallOption) (*server.DeliverablesResponse, error) {
	return invoke[server.DeliverablesResponse](ctx, c.cc, "ListDeliverables", in, opts)
}

func (c *PortalClient) DownloadURL(ctx context.Context, in *server.DownloadRequest,
	opts ...grpc.CallOption) (*server.DownloadResponse, error) {
	return invoke[server.DownloadResponse](ctx, c.cc, "DownloadURL", in, opts)
}

// SubscribeStream receives the events of one channel.
type SubscribeStream struct {
	grpc.ClientStream
}

func (s *SubscribeStream) Recv() (*server.Event, error) {
	evt := new(server.Event)
	if err := s.ClientStream.RecvMsg(evt); err != nil {
		return nil, err
	}
	return evt, nil
}

// Subscribe opens a server stream on channel, cancel ctx to leave it.
func (c *PortalClient) Subscribe(ctx context.Context, channel string, opts ...grpc.CallOption) (*SubscribeStream, error) {
	stream, err := c.cc.NewStream(ctx, &server.ServiceDesc.Streams[0], server.FullMethod("Subscribe"), callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	if err = stream.SendMsg(&server.SubscribeRequest{Channel: channel}); err != nil {
		return nil, err
	}
	if err = stream.CloseSend(); err != nil {
		return nil, err
	}
	return &SubscribeStream{ClientStream: stream}, nil
}
