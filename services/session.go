package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"client-portal/cache"
	"client-portal/contract"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/repositories"
	"client-portal/storage"
)

const DefaultSessionTTL = 24 * time.Hour

// SessionStore maps session ids to user ids in the cache.
// A session is valid only while its entry lives and its user still exists.
type SessionStore struct {
	log   *slog.Logger
	cache contract.Cache
	users repositories.IUserRepository
	audit SecurityRecorder
	ttl   time.Duration
}

func NewSessionStore(log *slog.Logger, cache contract.Cache, users repositories.IUserRepository,
	ttl time.Duration) *SessionStore {
	return &SessionStore{log: log, cache: cache, users: users, ttl: ttl}
}

// WithAudit records a security alert whenever a session is dropped because
// its user disappeared.
func (s *SessionStore) WithAudit(audit SecurityRecorder) *SessionStore {
	s.audit = audit
	return s
}

// Issue creates a session for userID. Nothing exists when the cache write fails.
func (s *SessionStore) Issue(userID string) (string, error) {
	id := uuid.NewString()
	if !s.cache.Set(cache.SessionPrefix+id, userID, s.ttl) {
		s.log.Error("Session not written to cache", "user_id", userID)
		return "", errors.ErrSessionCreation
	}
	return id, nil
}

// Resolve returns the user owning session id. A session whose user can no
// longer be read is removed from the cache.
func (s *SessionStore) Resolve(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, errors.ErrSessionInvalid
	}
	userID, ok := s.cache.Get(cache.SessionPrefix + id)
	if !ok {
		return domain.User{}, errors.ErrSessionInvalid
	}
	user, err := s.users.GetUser(domain.WithActor(ctx, domain.SystemActor), userID)
	if err != nil {
		s.log.Warn("Session user lookup failed, dropping session", "user_id", userID, "error", err)
		s.Revoke(ctx, id)
		s.recordInvalid(ctx, userID, err)
		return domain.User{}, fmt.Errorf("%w: %v", errors.ErrSessionInvalid, err)
	}
	return user.Public(), nil
}

func (s *SessionStore) recordInvalid(ctx context.Context, userID string, cause error) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Insert(domain.WithActor(ctx, domain.SystemActor), domain.SecurityAlert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Event:     domain.SecuritySessionInvalid,
		Detail:    cause.Error(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		s.log.Warn("Security alert not recorded", "user_id", userID, "error", err)
	}
}

// Active reports whether session id still has a live cache entry. It does
// not read the user, so it is cheap enough to call per streamed event.
func (s *SessionStore) Active(id string) bool {
	if id == "" {
		return false
	}
	_, ok := s.cache.Get(cache.SessionPrefix + id)
	return ok
}

func (s *SessionStore) Revoke(_ context.Context, id string) {
	if id == "" {
		return
	}
	if !s.cache.Delete(cache.SessionPrefix + id) {
		s.log.Warn("Session not removed from cache")
	}
}

// SessionBackend is where the sessions of a SessionService live: the shared
// cache in process, the portal service for a remote client.
type SessionBackend interface {
	Resolve(ctx context.Context, id string) (domain.User, error)
	Revoke(ctx context.Context, id string)
}

// SessionIssuer is a backend able to open sessions itself. Others hand
// sessions they opened to Adopt.
type SessionIssuer interface {
	Issue(userID string) (string, error)
}

// SessionService is the session state of one client: the signed-in user
// and the token persisted in its local storage.
//
// States: absent, active, then expired or invalidated. Expiry is detected
// lazily by Restore.
type SessionService struct {
	log      *slog.Logger
	sessions SessionBackend
	local    contract.LocalStorage
	group    singleflight.Group

	mu        sync.RWMutex
	user      *domain.User
	sessionID string
}

func NewSessionService(log *slog.Logger, sessions SessionBackend, local contract.LocalStorage) *SessionService {
	return &SessionService{log: log, sessions: sessions, local: local}
}

// Login opens a session for an already authenticated user.
func (s *SessionService) Login(ctx context.Context, user domain.User) error {
	issuer, ok := s.sessions.(SessionIssuer)
	if !ok {
		return errors.ErrSessionCreation
	}
	id, err := issuer.Issue(user.ID)
	if err != nil {
		return err
	}
	s.Adopt(ctx, user, id)
	return nil
}

// Adopt makes session id, opened for user, the session of this client. The
// session held before is revoked.
func (s *SessionService) Adopt(ctx context.Context, user domain.User, id string) {
	public := user.Public()
	s.mu.Lock()
	previous := s.sessionID
	s.user, s.sessionID = &public, id
	s.mu.Unlock()
	if previous == "" {
		previous, _ = s.local.GetItem(storage.SessionKey)
	}

	if err := s.local.SetItem(storage.SessionKey, id); err != nil {
		s.log.Warn("Session token not persisted locally", "user_id", user.ID, "error", err)
	}
	if previous != "" && previous != id {
		s.sessions.Revoke(ctx, previous)
	}
	s.log.Info("Session opened", "user_id", user.ID)
}

// Logout never fails and can be called any number of times. The in-memory
// state is cleared even when the cache or the local storage misbehave.
func (s *SessionService) Logout(ctx context.Context) {
	s.mu.Lock()
	id := s.sessionID
	s.user, s.sessionID = nil, ""
	s.mu.Unlock()

	if id == "" {
		id, _ = s.local.GetItem(storage.SessionKey)
	}
	s.sessions.Revoke(ctx, id)
	s.dropLocalToken()
}

// Restore is the start-up check of a persisted session. Concurrent callers
// share one check and all block until it completes. A missing, expired or
// orphaned session leaves the client logged out, the error then only
// describes why.
func (s *SessionService) Restore(ctx context.Context) (bool, error) {
	_, err, _ := s.group.Do("restore", func() (interface{}, error) {
		return nil, s.restore(ctx)
	})
	return s.IsAuthenticated(), err
}

func (s *SessionService) restore(ctx context.Context) error {
	id, ok := s.local.GetItem(storage.SessionKey)
	if !ok || id == "" {
		s.clear()
		return nil
	}
	user, err := s.sessions.Resolve(ctx, id)
	if err != nil {
		s.clear()
		// The token is kept when the backend could not answer.
		if !errors.Is(err, errors.ErrSessionInvalid) {
			s.log.Warn("Stored session not checked", "error", err)
			return err
		}
		s.log.Info("Stored session is no longer valid", "error", err)
		s.dropLocalToken()
		return err
	}
	s.mu.Lock()
	s.user, s.sessionID = &user, id
	s.mu.Unlock()
	return nil
}

func (s *SessionService) clear() {
	s.mu.Lock()
	s.user, s.sessionID = nil, ""
	s.mu.Unlock()
}

func (s *SessionService) dropLocalToken() {
	if err := s.local.RemoveItem(storage.SessionKey); err != nil {
		s.log.Warn("Session token not removed locally", "error", err)
	}
}

func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns a copy of the signed-in user, nil when logged out.
func (s *SessionService) User() *domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *SessionService) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}
