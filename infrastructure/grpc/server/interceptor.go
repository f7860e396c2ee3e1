package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/observability"
)

// SessionResolver maps a session id to its user.
type SessionResolver interface {
	Resolve(ctx context.Context, id string) (domain.User, error)
}

type userKey struct{}
type sessionKey struct{}

// publicMethods are reachable without a session.
var publicMethods = map[string]struct{}{
	FullMethod("Login"): {},
}

// UserFromContext returns the user resolved by the interceptor.
func UserFromContext(ctx context.Context) (domain.User, bool) {
	u, ok := ctx.Value(userKey{}).(domain.User)
	return u, ok
}

func sessionFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

// Authenticator resolves the "authorization: Bearer <session id>" metadata
// and stores the user and its row-level actor in the handler context.
type Authenticator struct {
	log      *slog.Logger
	sessions SessionResolver
}

func NewAuthenticator(log *slog.Logger, sessions SessionResolver) *Authenticator {
	return &Authenticator{log: log, sessions: sessions}
}

func (a *Authenticator) authenticate(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "authorization token is missing")
	}
	sessionID := auth.BearerToken(values[0])
	user, err := a.sessions.Resolve(ctx, sessionID)
	if err != nil {
		a.log.Debug("Rejected session", "error", err)
		return nil, status.Error(codes.Unauthenticated, "invalid or expired session")
	}
	ctx = domain.WithActor(ctx, domain.ActorOf(user))
	ctx = context.WithValue(ctx, userKey{}, user)
	return context.WithValue(ctx, sessionKey{}, sessionID), nil
}

func (a *Authenticator) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, public := publicMethods[info.FullMethod]; public {
			return handler(ctx, req)
		}
		authenticated, err := a.authenticate(ctx)
		if err != nil {
			return nil, err
		}
		return handler(authenticated, req)
	}
}

func (a *Authenticator) Stream() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		authenticated, err := a.authenticate(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: authenticated})
	}
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

// MetricsInterceptor counts every unary call by method and status code.
func MetricsInterceptor(metrics *observability.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		resp, err := handler(ctx, req)
		metrics.ObserveRequest(info.FullMethod, status.Code(err).String())
		return resp, err
	}
}
