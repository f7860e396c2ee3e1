package server

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "portal.v1.PortalService"

// FullMethod returns the gRPC path of a portal method, e.g. "/portal.v1.PortalService/Login".
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type PortalServiceServer interface {
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	Logout(context.Context, *Empty) (*Empty, error)
	Me(context.Context, *Empty) (*UserResponse, error)
	RegisterClient(context.Context, *RegisterClientRequest) (*UserResponse, error)
	SendMessage(context.Context, *SendMessageRequest) (*MessageResponse, error)
	GetConversation(context.Context, *ConversationRequest) (*ConversationResponse, error)
	ListConversations(context.Context, *Empty) (*ConversationsResponse, error)
	CreateNotification(context.Context, *CreateNotificationRequest) (*NotificationResponse, error)
	ListNotifications(context.Context, *Empty) (*NotificationsResponse, error)
	MarkNotificationRead(context.Context, *MarkNotificationReadRequest) (*Empty, error)
	MarkAllNotificationsRead(context.Context, *Empty) (*CountResponse, error)
	Broadcast(context.Context, *BroadcastRequest) (*CountResponse, error)
	ListProjects(context.Context, *ProjectsRequest) (*ProjectsResponse, error)
	ListDeliverables(context.Context, *DeliverablesRequest) (*DeliverablesResponse, error)
	DownloadURL(context.Context, *DownloadRequest) (*DownloadResponse, error)
	Subscribe(*SubscribeRequest, PortalService_SubscribeServer) error
}

// PortalService_SubscribeServer is the server side of a Subscribe stream.
type PortalService_SubscribeServer interface {
	Send(*Event) error
	grpc.ServerStream
}

type portalSubscribeServer struct {
	grpc.ServerStream
}

func (s *portalSubscribeServer) Send(evt *Event) error {
	return s.ServerStream.SendMsg(evt)
}

// unary builds the method descriptor of a request/response call.
func unary[Req, Resp any](name string, call func(PortalServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(PortalServiceServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(SubscribeRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(PortalServiceServer).Subscribe(in, &portalSubscribeServer{ServerStream: stream})
}

// ServiceDesc is declared by hand, messages travel with the json codec.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PortalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Login", PortalServiceServer.Login),
		unary("Logout", PortalServiceServer.Logout),
		unary("Me", PortalServiceServer.Me),
		unary("RegisterClient", PortalServiceServer.RegisterClient),
		unary("SendMessage", PortalServiceServer.SendMessage),
		unary("GetConversation", PortalServiceServer.GetConversation),
		unary("ListConversations", PortalServiceServer.ListConversations),
		unary("CreateNotification", PortalServiceServer.CreateNotification),
		unary("ListNotifications", PortalServiceServer.ListNotifications),
		unary("MarkNotificationRead", PortalServiceServer.MarkNotificationRead),
		unary("MarkAllNotificationsRead", PortalServiceServer.MarkAllNotificationsRead),
		unary("Broadcast", PortalServiceServer.Broadcast),
		unary("ListProjects", PortalServiceServer.ListProjects),
		unary("ListDeliverables", PortalServiceServer.ListDeliverables),
		unary("DownloadURL", PortalServiceServer.DownloadURL),
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Subscribe", Handler: subscribeHandler, ServerStreams: true},
	},
	Metadata: "portal.v1",
}

func RegisterPortalServiceServer(s grpc.ServiceRegistrar, srv PortalServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}
