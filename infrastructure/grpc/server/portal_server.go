package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"client-portal/auth"
	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/services"
	"client-portal/sink"
)

// SessionCheckInterval is how often an idle stream checks that its session
// is still alive. Every pushed event is checked as well.
var SessionCheckInterval = 30 * time.Second

// Services groups the façades the portal server delegates to.
type Services struct {
	Auth          services.IAuthService
	Sessions      *services.SessionStore
	Messages      services.IMessageService
	Notifications services.INotificationService
	Projects      *services.ProjectService
	Deliverables  *services.DeliverableService
	Broker        contract.Broker
}

type PortalServer struct {
	log             *slog.Logger
	services        Services
	bufferSize      int
	deliveryTimeout time.Duration
}

func NewPortalServer(log *slog.Logger, deps Services, bufferSize int, deliveryTimeout time.Duration) *PortalServer {
	return &PortalServer{log: log, services: deps, bufferSize: bufferSize, deliveryTimeout: deliveryTimeout}
}

func currentUser(ctx context.Context) (domain.User, error) {
	user, ok := UserFromContext(ctx)
	if !ok {
		return domain.User{}, status.Error(codes.Unauthenticated, "not authenticated")
	}
	return user, nil
}

func (s *PortalServer) Login(ctx context.Context, in *LoginRequest) (*LoginResponse, error) {
	user, err := s.services.Auth.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	sessionID, err := s.services.Sessions.Issue(user.ID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	s.log.Info("User signed in", "user_id", user.ID, "role", user.Role)
	return &LoginResponse{SessionID: sessionID, User: user}, nil
}

// Logout revokes the session of the call, the client drops its copy.
func (s *PortalServer) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	s.services.Sessions.Revoke(ctx, sessionFromContext(ctx))
	return &Empty{}, nil
}

func (s *PortalServer) Me(ctx context.Context, _ *Empty) (*UserResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	return &UserResponse{User: user}, nil
}

// RegisterClient creates a client account, the users policy keeps it to admins.
func (s *PortalServer) RegisterClient(ctx context.Context, in *RegisterClientRequest) (*UserResponse, error) {
	user, err := s.services.Auth.Register(ctx,
		auth.RegisterRequest{Email: in.Email, Password: in.Password, Name: in.Name},
		domain.RoleClient, in.CompanyName)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &UserResponse{User: user}, nil
}

func (s *PortalServer) SendMessage(ctx context.Context, in *SendMessageRequest) (*MessageResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	message, err := s.services.Messages.SendMessageTo(ctx, user, in.RecipientID, in.Content)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &MessageResponse{Message: message}, nil
}

func (s *PortalServer) GetConversation(ctx context.Context, in *ConversationRequest) (*ConversationResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if in.OtherID == "" {
		return nil, errors.MapToGRPCError(errors.NewValidationError("other_id", "is required"))
	}
	messages, err := s.services.Messages.GetConversation(ctx, user.ID, in.OtherID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &ConversationResponse{Messages: messages}, nil
}

func (s *PortalServer) ListConversations(ctx context.Context, _ *Empty) (*ConversationsResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	conversations, err := s.services.Messages.ListConversations(ctx, user.ID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &ConversationsResponse{Conversations: conversations}, nil
}

func (s *PortalServer) CreateNotification(ctx context.Context, in *CreateNotificationRequest) (*NotificationResponse, error) {
	notification, err := s.services.Notifications.CreateNotification(ctx, in.UserID, in.Type, in.Title, in.Message)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &NotificationResponse{Notification: notification}, nil
}

func (s *PortalServer) ListNotifications(ctx context.Context, _ *Empty) (*NotificationsResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	notifications, err := s.services.Notifications.ListNotifications(ctx, user.ID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	unread, err := s.services.Notifications.UnreadCount(ctx, user.ID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &NotificationsResponse{Notifications: notifications, Unread: unread}, nil
}

func (s *PortalServer) MarkNotificationRead(ctx context.Context, in *MarkNotificationReadRequest) (*Empty, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	if err = s.services.Notifications.MarkNotificationRead(ctx, user.ID, in.ID); err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &Empty{}, nil
}

func (s *PortalServer) MarkAllNotificationsRead(ctx context.Context, _ *Empty) (*CountResponse, error) {
	user, err := currentUser(ctx)
	if err != nil {
		return nil, err
	}
	count, err := s.services.Notifications.MarkAllNotificationsRead(ctx, user.ID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &CountResponse{Count: count}, nil
}

func (s *PortalServer) Broadcast(ctx context.Context, in *BroadcastRequest) (*CountResponse, error) {
	count, err := s.services.Notifications.Broadcast(ctx, domain.NotificationBroadcast, in.Title, in.Message)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &CountResponse{Count: count}, nil
}

func (s *PortalServer) ListProjects(ctx context.Context, in *ProjectsRequest) (*ProjectsResponse, error) {
	projects, err := s.services.Projects.ListProjects(ctx, in.ClientID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &ProjectsResponse{Projects: projects}, nil
}

func (s *PortalServer) ListDeliverables(ctx context.Context, in *DeliverablesRequest) (*DeliverablesResponse, error) {
	deliverables, err := s.services.Deliverables.ListDeliverables(ctx, in.ProjectID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &DeliverablesResponse{Deliverables: deliverables}, nil
}

func (s *PortalServer) DownloadURL(ctx context.Context, in *DownloadRequest) (*DownloadResponse, error) {
	url, err := s.services.Deliverables.DownloadURL(ctx, in.DeliverableID)
	if err != nil {
		return nil, errors.MapToGRPCError(err)
	}
	return &DownloadResponse{URL: url, ExpiresIn: services.DownloadURLTTL}, nil
}

// Subscribe relays every message published on the requested channel until
// the client leaves. Slow clients lose messages rather than slowing the
// publisher down.
func (s *PortalServer) Subscribe(in *SubscribeRequest, stream PortalService_SubscribeServer) error {
	ctx := stream.Context()
	user, err := currentUser(ctx)
	if err != nil {
		return err
	}
	if in.Channel == "" {
		return status.Error(codes.InvalidArgument, "channel is required")
	}
	if !domain.CanSubscribe(user, in.Channel) {
		return status.Error(codes.PermissionDenied, "channel not allowed")
	}

	events := sink.NewStreamSink(s.log, s.bufferSize, s.deliveryTimeout)
	subscription := s.services.Broker.Subscribe(in.Channel, events.Consume(in.Channel))
	defer func() {
		subscription.Unsubscribe()
		events.Close()
	}()
	s.log.Debug("Stream subscribed", "user_id", user.ID, "channel", in.Channel)

	sessionID := sessionFromContext(ctx)
	expired := func() error {
		if s.services.Sessions.Active(sessionID) {
			return nil
		}
		s.log.Info("Stream closed, session ended", "user_id", user.ID, "channel", in.Channel)
		return status.Error(codes.Unauthenticated, "session expired")
	}
	check := time.NewTicker(SessionCheckInterval)
	defer check.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Debug("Stream left", "user_id", user.ID, "channel", in.Channel)
			return nil
		case <-check.C:
			if err := expired(); err != nil {
				return err
			}
		case evt := <-events.Events():
			if err := expired(); err != nil {
				return err
			}
			if err := stream.Send(&Event{Channel: evt.Channel, Payload: evt.Payload}); err != nil {
				s.log.Error("Failed to push event to stream", "user_id", user.ID, "channel", in.Channel, "error", err)
				return err
			}
		}
	}
}
