package client

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/infrastructure/grpc/server"
	"client-portal/services"
)

// RemoteSessions checks and revokes sessions through the portal service.
type RemoteSessions struct {
	log    *slog.Logger
	client *PortalClient
}

func NewRemoteSessions(log *slog.Logger, client *PortalClient) *RemoteSessions {
	return &RemoteSessions{log: log, client: client}
}

// Resolve asks the service who owns session id. A rejected session is
// reported as ErrSessionInvalid, transport failures are returned as is.
func (r *RemoteSessions) Resolve(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, errors.ErrSessionInvalid
	}
	resp, err := r.client.Me(WithSession(ctx, id))
	if err != nil {
		if status.Code(err) == codes.Unauthenticated {
			return domain.User{}, fmt.Errorf("%w: %v", errors.ErrSessionInvalid, err)
		}
		return domain.User{}, err
	}
	return resp.User, nil
}

func (r *RemoteSessions) Revoke(ctx context.Context, id string) {
	if id == "" {
		return
	}
	if err := r.client.Logout(WithSession(ctx, id)); err != nil {
		r.log.Warn("Remote session not revoked", "error", err)
	}
}

// Session is a portal client whose session token is kept in local storage
// and survives a restart.
type Session struct {
	*services.SessionService
	client *PortalClient
}

func NewSession(log *slog.Logger, client *PortalClient, local contract.LocalStorage) *Session {
	return &Session{
		SessionService: services.NewSessionService(log, NewRemoteSessions(log, client), local),
		client:         client,
	}
}

// SignIn authenticates against the service and keeps the returned session.
func (s *Session) SignIn(ctx context.Context, email, password string) (domain.User, error) {
	resp, err := s.client.Login(ctx, &server.LoginRequest{Email: email, Password: password})
	if err != nil {
		return domain.User{}, err
	}
	s.Adopt(ctx, resp.User, resp.SessionID)
	return resp.User, nil
}

// Context attaches the current session to ctx for the next calls.
func (s *Session) Context(ctx context.Context) context.Context {
	return WithSession(ctx, s.SessionID())
}
