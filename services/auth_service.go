//go:generate go run go.uber.org/mock/mockgen -source=auth_service.go -destination=../mocks/mock_auth_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"client-portal/auth"
	"client-portal/domain"
	"client-portal/errors"
	"client-portal/repositories"
)

type IAuthService interface {
	Authenticate(ctx context.Context, email, password string) (domain.User, error)
	Register(ctx context.Context, req auth.RegisterRequest, role domain.Role, companyName string) (domain.User, error)
}

// SecurityRecorder stores security audit rows.
type SecurityRecorder interface {
	Insert(ctx context.Context, alert domain.SecurityAlert) (domain.SecurityAlert, error)
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	audit          SecurityRecorder
	lockout        auth.Lockout
	now            func() time.Time
}

// NewAuthService builds the credential checker. audit may be nil.
func NewAuthService(log *slog.Logger, repo repositories.IUserRepository, audit SecurityRecorder,
	lockout auth.Lockout) *AuthService {
	return &AuthService{log: log, userRepository: repo, audit: audit, lockout: lockout, now: time.Now}
}

// Register creates an account on behalf of the caller in ctx, only an
// admin (or the system) passes the users policy.
func (s *AuthService) Register(ctx context.Context, req auth.RegisterRequest, role domain.Role,
	companyName string) (domain.User, error) {
	// Business rules are checked before any expensive cryptographic operation
	if err := auth.ValidateRegister(req); err != nil {
		return domain.User{}, err
	}

	// Hashing happens here so the repository never sees plain passwords
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, fmt.Errorf("hashing failed: %w", err)
	}

	user, err := s.userRepository.CreateUser(ctx, domain.User{
		Email:        req.Email,
		Name:         req.Name,
		CompanyName:  companyName,
		Role:         role,
		PasswordHash: hashedPassword,
	})
	if errors.Is(err, errors.ErrConstraint) {
		return domain.User{}, fmt.Errorf("%w: %w", errors.ErrUserAlreadyExists, err)
	}
	if err != nil {
		return domain.User{}, err
	}
	s.log.Info("User registered", "user_id", user.ID, "role", role)
	return user.Public(), nil
}

// Authenticate checks the credentials of email. After lockout.MaxAttempts
// consecutive failures the account is locked for lockout.Window, any
// successful login resets the counter.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	sys := domain.WithActor(ctx, domain.SystemActor)
	now := s.now()

	user, err := s.userRepository.GetUserByEmail(sys, email)
	if errors.Is(err, errors.ErrNotFound) {
		// Same answer as a wrong password to prevent user enumeration
		return domain.User{}, errors.ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}

	if user.IsLocked(now) {
		s.record(sys, user.ID, domain.SecurityAccountLocked, "login attempted while locked")
		return domain.User{}, errors.ErrAccountLocked
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		_, locked, recordErr := s.userRepository.RecordFailedLogin(sys, user.ID, s.lockout, now)
		if recordErr != nil {
			return domain.User{}, recordErr
		}
		s.record(sys, user.ID, domain.SecurityFailedLogin, "wrong password")
		if locked {
			s.log.Warn("Account locked", "user_id", user.ID, "until", now.Add(s.lockout.Window))
			s.record(sys, user.ID, domain.SecurityAccountLocked,
				fmt.Sprintf("%d consecutive failures", s.lockout.MaxAttempts))
			return domain.User{}, errors.ErrAccountLocked
		}
		return domain.User{}, errors.ErrInvalidCredentials
	}

	if err = s.userRepository.RecordSuccessfulLogin(sys, user.ID, s.lockout, now); err != nil {
		return domain.User{}, err
	}
	user.FailedAttempts, user.LockedUntil, user.LastLoginAt = 0, nil, &now
	return user.Public(), nil
}

// record is best effort, the login outcome never depends on the audit row.
func (s *AuthService) record(ctx context.Context, userID string, event domain.SecurityEvent, detail string) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Insert(ctx, domain.SecurityAlert{
		ID:        uuid.NewString(),
		UserID:    userID,
		Event:     event,
		Detail:    detail,
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		s.log.Warn("Security alert not recorded", "user_id", userID, "event", event, "error", err)
	}
}
