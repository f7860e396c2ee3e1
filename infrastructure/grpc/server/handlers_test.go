package server

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"client-portal/auth"
	"client-portal/cache"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/mocks"
	"client-portal/services"
)

var (
	client = domain.User{ID: "c1", Email: "client@acme.io", Role: domain.RoleClient}
	admin  = domain.User{ID: "a1", Email: "admin@portal.io", Role: domain.RoleAdmin}
)

type handlers struct {
	server   *PortalServer
	auth     *mocks.MockIAuthService
	messages *mocks.MockIMessageService
	sessions *services.SessionStore
}

func newHandlers(t *testing.T) handlers {
	ctrl := gomock.NewController(t)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	authService := mocks.NewMockIAuthService(ctrl)
	messages := mocks.NewMockIMessageService(ctrl)
	sessions := services.NewSessionStore(log, cache.NewMemory(log), mocks.NewMockIUserRepository(ctrl), time.Hour)
	return handlers{
		server: NewPortalServer(log, Services{
			Auth:     authService,
			Sessions: sessions,
			Messages: messages,
		}, 8, 10*time.Millisecond),
		auth:     authService,
		messages: messages,
		sessions: sessions,
	}
}

// signedIn is the context the authenticator hands to a handler.
func signedIn(user domain.User) context.Context {
	ctx := domain.WithActor(context.Background(), domain.ActorOf(user))
	return context.WithValue(ctx, userKey{}, user)
}

func TestPortalServer_Login_Issues_Session_For_Authenticated_User(t *testing.T) {
	req := require.New(t)
	h := newHandlers(t)
	h.auth.EXPECT().Authenticate(gomock.Any(), "client@acme.io", "right").Return(client, nil)

	resp, err := h.server.Login(context.Background(), &LoginRequest{Email: "client@acme.io", Password: "right"})

	req.NoError(err)
	req.Equal(client.ID, resp.User.ID)
	req.True(h.sessions.Active(resp.SessionID))
}

func TestPortalServer_Login_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{"wrong password", errors.ErrInvalidCredentials, codes.Unauthenticated},
		{"locked account", errors.ErrAccountLocked, codes.ResourceExhausted},
		{"store down", errors.ErrUnavailable, codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			h := newHandlers(t)
			h.auth.EXPECT().Authenticate(gomock.Any(), gomock.Any(), gomock.Any()).Return(domain.User{}, tt.err)

			_, err := h.server.Login(context.Background(), &LoginRequest{Email: "client@acme.io", Password: "x"})

			req.Equal(tt.code, status.Code(err))
		})
	}
}

func TestPortalServer_RegisterClient_Registers_Client_Role(t *testing.T) {
	req := require.New(t)
	h := newHandlers(t)
	request := auth.RegisterRequest{Email: "new@acme.io", Password: "secret", Name: "New"}
	h.auth.EXPECT().Register(gomock.Any(), request, domain.RoleClient, "Acme").
		Return(domain.User{ID: "c2", Email: "new@acme.io", Role: domain.RoleClient}, nil)

	resp, err := h.server.RegisterClient(signedIn(admin), &RegisterClientRequest{
		Email: "new@acme.io", Password: "secret", Name: "New", CompanyName: "Acme"})

	req.NoError(err)
	req.Equal("c2", resp.User.ID)
}

func TestPortalServer_SendMessage_Delegates_For_Caller(t *testing.T) {
	req := require.New(t)
	h := newHandlers(t)

	// The recipient is left to the message service when omitted
	h.messages.EXPECT().SendMessageTo(gomock.Any(), client, "", "hello").
		Return(domain.Message{ID: "m1", SenderID: client.ID, RecipientID: admin.ID, Content: "hello"}, nil)
	resp, err := h.server.SendMessage(signedIn(client), &SendMessageRequest{Content: "hello"})
	req.NoError(err)
	req.Equal(admin.ID, resp.Message.RecipientID)

	h.messages.EXPECT().SendMessageTo(gomock.Any(), client, "", "").Return(domain.Message{}, errors.ErrValidation)
	_, err = h.server.SendMessage(signedIn(client), &SendMessageRequest{})
	req.Equal(codes.InvalidArgument, status.Code(err))

	// Without a resolved user nothing is delegated
	_, err = h.server.SendMessage(context.Background(), &SendMessageRequest{Content: "hello"})
	req.Equal(codes.Unauthenticated, status.Code(err))
}

func TestPortalServer_GetConversation_Requires_Other_Party(t *testing.T) {
	req := require.New(t)
	h := newHandlers(t)

	_, err := h.server.GetConversation(signedIn(client), &ConversationRequest{})
	req.Equal(codes.InvalidArgument, status.Code(err))

	h.messages.EXPECT().GetConversation(gomock.Any(), client.ID, admin.ID).
		Return([]domain.Message{{ID: "m1"}, {ID: "m2"}}, nil)
	resp, err := h.server.GetConversation(signedIn(client), &ConversationRequest{OtherID: admin.ID})
	req.NoError(err)
	req.Len(resp.Messages, 2)

	h.messages.EXPECT().ListConversations(gomock.Any(), admin.ID).Return(nil, errors.ErrPermissionDenied)
	_, err = h.server.ListConversations(signedIn(admin), &Empty{})
	req.Equal(codes.PermissionDenied, status.Code(err))
}
